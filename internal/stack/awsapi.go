package stack

import "context"

// registryAPI abstracts the container registry calls for testing.
type registryAPI interface {
	// EnsureRepository creates the repository with its retention policy,
	// adopting an existing repository with the same name.
	EnsureRepository(ctx context.Context, name string, tags map[string]string) (uri, arn string, err error)
	DeleteRepository(ctx context.Context, name string) error
	CheckRepository(ctx context.Context, name string) (string, error)
}

// NamedPolicy is an inline IAM policy document attached to a role under a
// name.
type NamedPolicy struct {
	Name     string
	Document string
}

// iamAPI abstracts IAM role provisioning for testing.
type iamAPI interface {
	// EnsureRole creates the role with its trust policy and inline policies,
	// adopting an existing role with the same name.
	EnsureRole(ctx context.Context, name, trustPolicy string, policies []NamedPolicy, tags map[string]string) (arn string, err error)
	DeleteRole(ctx context.Context, name string, policyNames []string) error
	CheckRole(ctx context.Context, name string) (string, error)
}

// secretsAPI abstracts the secret placeholder calls for testing.
type secretsAPI interface {
	// EnsureSecret creates an empty placeholder secret, adopting an existing
	// one. The real value is populated out-of-band after deployment.
	EnsureSecret(ctx context.Context, name, description string, tags map[string]string) (arn string, err error)
	DeleteSecret(ctx context.Context, name string) error
	CheckSecret(ctx context.Context, name string) (string, error)
}

// JWTAuthorizer configures a custom JWT authorizer from an OIDC discovery URL.
type JWTAuthorizer struct {
	DiscoveryURL   string
	AllowedClients []string
}

// RuntimeSpec carries everything the control plane needs to create or update
// an agent runtime.
type RuntimeSpec struct {
	ImageRef   string
	RoleARN    string
	Protocol   string // ProtocolHTTP or ProtocolMCP
	Env        map[string]string
	Authorizer *JWTAuthorizer // nil for the default IAM authorizer
	Tags       map[string]string
}

// MemorySpec carries the memory resource configuration.
type MemorySpec struct {
	Strategies      []MemoryStrategy
	EventExpiryDays int32
	RoleARN         string
	Tags            map[string]string
}

// GatewaySpec carries the gateway configuration.
type GatewaySpec struct {
	RoleARN    string
	Protocol   string // gateway protocol; MCP in every profile
	Authorizer string // GatewayAuthNone or GatewayAuthJWT
	JWT        *JWTAuthorizer
	Tags       map[string]string
}

// OAuthTargetCredential references the credential provider handle used by a
// gateway target's outbound OAuth configuration.
type OAuthTargetCredential struct {
	ProviderARN string
	Scopes      []string
}

// TargetSpec carries the gateway target configuration. Credential is nil in
// the gateway-IAM profile.
type TargetSpec struct {
	EndpointURL string
	Credential  *OAuthTargetCredential
}

// controlAPI abstracts the AgentCore control-plane calls for testing.
// Create methods are idempotent-adopt: a name conflict resolves to the
// existing resource's identifiers.
type controlAPI interface {
	CreateRuntime(ctx context.Context, name string, spec RuntimeSpec) (id, arn string, err error)
	UpdateRuntime(ctx context.Context, id string, spec RuntimeSpec) error
	DeleteRuntime(ctx context.Context, id string) error
	CheckRuntime(ctx context.Context, id string) (string, error)

	CreateMemory(ctx context.Context, name string, spec MemorySpec) (id, arn string, err error)
	DeleteMemory(ctx context.Context, id string) error
	CheckMemory(ctx context.Context, id string) (string, error)

	CreateGateway(ctx context.Context, name string, spec GatewaySpec) (id, arn, url string, err error)
	DeleteGateway(ctx context.Context, id string) error
	CheckGateway(ctx context.Context, id string) (string, error)

	CreateTarget(ctx context.Context, gatewayID, name string, spec TargetSpec) (targetID string, err error)
	DeleteTarget(ctx context.Context, gatewayID, targetID string) error
	CheckTarget(ctx context.Context, gatewayID, targetID string) (string, error)

	EnsureLogGroup(ctx context.Context, name string) error
}

// credentialAPI abstracts the remote identity and credential-service calls
// made by the credential provisioning step. Unlike controlAPI, these are raw:
// the step itself owns the idempotent-adopt and already-deleted semantics.
type credentialAPI interface {
	DescribeClientSecret(ctx context.Context, userPoolID, clientID string) (string, error)
	CreateProvider(ctx context.Context, name, discoveryURL, clientID, clientSecret string) (arn string, err error)
	GetProvider(ctx context.Context, name string) (arn string, err error)
	DeleteProvider(ctx context.Context, name string) error
}

// runtimePinger abstracts the data-plane smoke check run after deployment.
type runtimePinger interface {
	PingRuntime(ctx context.Context, runtimeARN string) error
}

// Clients bundles the per-concern AWS clients threaded through units. Tests
// substitute simulated implementations.
type Clients struct {
	Registry    registryAPI
	IAM         iamAPI
	Secrets     secretsAPI
	Control     controlAPI
	Credentials credentialAPI
	Pinger      runtimePinger
}
