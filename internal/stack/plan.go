package stack

import (
	"fmt"
)

// Action constants for planned resource changes.
const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionNoop   = "noop"
	ActionDelete = "delete"
)

// ResourceChange is one entry in a deployment plan.
type ResourceChange struct {
	Type   string `json:"type"`
	Name   string `json:"name"`
	Action string `json:"action"`
	Detail string `json:"detail,omitempty"`
}

// PlanResponse is the result of planning a deployment.
type PlanResponse struct {
	Changes []ResourceChange `json:"changes"`
	Summary string           `json:"summary"`
}

// Plan computes the set of resource changes a deploy would make, diffing the
// desired resource set derived from the config against the prior state. prior
// may be nil on first deploy.
func Plan(cfg *Config, prior *StackState) (*PlanResponse, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("config validation failed: %s", errs[0])
	}
	if errs := validateDerivedNames(cfg.App); len(errs) > 0 {
		return nil, fmt.Errorf("derived resource names invalid: %s", errs[0])
	}

	desired := desiredResources(cfg)
	changes := diffResources(desired, prior)
	return &PlanResponse{
		Changes: changes,
		Summary: buildSummary(changes),
	}, nil
}

// desiredResources builds the full desired resource list for the config, in
// a valid realization order.
func desiredResources(cfg *Config) []ResourceChange {
	app := cfg.App
	desired := []ResourceChange{
		{
			Type:   ResTypeRepository,
			Name:   repositoryName(app),
			Detail: "container registry repository with scan-on-push and retention policy",
		},
		{
			Type:   ResTypeRole,
			Name:   runtimeRoleName(app),
			Detail: "runtime execution role",
		},
		{
			Type:   ResTypeRole,
			Name:   gatewayRoleName(app),
			Detail: "gateway execution role",
		},
		{
			Type:   ResTypeSecret,
			Name:   secretName(app),
			Detail: "placeholder API key secret (value populated out-of-band)",
		},
		{
			Type:   ResTypeMemory,
			Name:   memoryName(app),
			Detail: fmt.Sprintf("memory resource with %d strategies", len(cfg.Memory.Strategies)),
		},
		{
			Type:   ResTypeAgentRuntime,
			Name:   runtimeName(app),
			Detail: fmt.Sprintf("agent runtime (%s protocol)", cfg.Profile.Protocol),
		},
	}

	if cfg.Profile.TargetAuth == TargetAuthOAuth {
		desired = append(desired, ResourceChange{
			Type:   ResTypeCredentialProvider,
			Name:   credentialProviderName(app),
			Detail: "OAuth2 client-credentials provider",
		})
	}

	desired = append(desired,
		ResourceChange{
			Type:   ResTypeGateway,
			Name:   gatewayName(app),
			Detail: fmt.Sprintf("MCP gateway (%s authorizer)", cfg.Profile.GatewayAuth),
		},
		ResourceChange{
			Type:   ResTypeGatewayTarget,
			Name:   gatewayTargetName(app),
			Detail: fmt.Sprintf("gateway target (%s credentials)", cfg.Profile.TargetAuth),
		},
	)
	return desired
}

// diffResources assigns an action to each desired resource by comparing
// against prior state, then marks prior resources absent from the desired set
// for deletion.
func diffResources(desired []ResourceChange, prior *StackState) []ResourceChange {
	var priorKeys map[string]ResourceState
	if prior != nil {
		priorKeys = prior.priorMap()
	}

	changes := make([]ResourceChange, 0, len(desired))
	desiredKeys := make(map[string]bool, len(desired))
	for _, d := range desired {
		key := resourceKey(d.Type, d.Name)
		desiredKeys[key] = true
		d.Action = ActionCreate
		if _, ok := priorKeys[key]; ok {
			// The runtime is updated in place on redeploy; everything else is
			// idempotently re-ensured.
			if d.Type == ResTypeAgentRuntime {
				d.Action = ActionUpdate
			} else {
				d.Action = ActionNoop
			}
		}
		changes = append(changes, d)
	}

	if prior != nil {
		for _, r := range prior.Resources {
			if !desiredKeys[resourceKey(r.Type, r.Name)] {
				changes = append(changes, ResourceChange{
					Type:   r.Type,
					Name:   r.Name,
					Action: ActionDelete,
					Detail: "no longer in the desired configuration",
				})
			}
		}
	}
	return changes
}

// buildSummary returns a one-line summary of planned changes.
func buildSummary(changes []ResourceChange) string {
	counts := map[string]int{}
	for _, c := range changes {
		counts[c.Action]++
	}
	return fmt.Sprintf("%d to create, %d to update, %d unchanged, %d to delete",
		counts[ActionCreate], counts[ActionUpdate], counts[ActionNoop], counts[ActionDelete])
}
