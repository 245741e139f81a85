package stack

// Unit name constants used for dependency edges between deployment units.
const (
	UnitRegistry           = "registry"
	UnitRoles              = "roles"
	UnitSecret             = "secret"
	UnitRuntime            = "runtime"
	UnitCredentialProvider = "credential_provider"
	UnitGateway            = "gateway"
	UnitGatewayTarget      = "gateway_target"
)

// Resource type constants used across plan, deploy, destroy, and status.
const (
	ResTypeRepository         = "repository"
	ResTypeRole               = "iam_role"
	ResTypeSecret             = "secret"
	ResTypeMemory             = "memory"
	ResTypeAgentRuntime       = "agent_runtime"
	ResTypeCredentialProvider = "credential_provider"
	ResTypeGateway            = "gateway"
	ResTypeGatewayTarget      = "gateway_target"
)

// Health status constants returned by resource checks.
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
	StatusMissing   = "missing"
)

// StackState holds resource info from previous deploys. It is persisted to a
// local state file between runs so plan can distinguish create from update and
// destroy knows what exists.
type StackState struct {
	App        string            `json:"app"`
	Region     string            `json:"region"`
	DeployedAt string            `json:"deployed_at,omitempty"`
	Resources  []ResourceState   `json:"resources"`
	Outputs    map[string]string `json:"outputs,omitempty"`
}

// ResourceState describes a single deployed resource.
type ResourceState struct {
	Type     string            `json:"type"`
	Name     string            `json:"name"`
	ARN      string            `json:"arn,omitempty"`
	Status   string            `json:"status,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// resourceKey returns a unique key for a resource type+name pair.
func resourceKey(typ, name string) string {
	return typ + "/" + name
}

// FindResource returns the first resource of the given type, or nil.
func (s *StackState) FindResource(typ string) *ResourceState {
	for i := range s.Resources {
		if s.Resources[i].Type == typ {
			return &s.Resources[i]
		}
	}
	return nil
}

// priorMap builds a lookup of resources keyed by resourceKey(type, name).
func (s *StackState) priorMap() map[string]ResourceState {
	m := make(map[string]ResourceState, len(s.Resources))
	for _, r := range s.Resources {
		m[resourceKey(r.Type, r.Name)] = r
	}
	return m
}
