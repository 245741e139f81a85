package stack

import (
	"context"
	"fmt"
	"log"
)

// destroyOrder defines the reverse dependency order for teardown. Resources
// are grouped by type; each group is deleted in sequence.
var destroyOrder = []string{
	ResTypeGatewayTarget,
	ResTypeGateway,
	ResTypeCredentialProvider,
	ResTypeAgentRuntime,
	ResTypeMemory,
	ResTypeSecret,
	ResTypeRole,
	ResTypeRepository,
}

// Destroy tears down all resources recorded in the persisted state in reverse
// dependency order. Teardown is best-effort: a failed deletion is logged and
// the pass continues, with the combined error returned at the end. The state
// file is removed only on a fully clean pass.
func Destroy(ctx context.Context, cfg *Config, clients *Clients, store *StateStore) error {
	state, err := store.Load()
	if err != nil {
		return err
	}
	if state == nil || len(state.Resources) == 0 {
		log.Printf("stack: nothing to destroy")
		return nil
	}

	byType := make(map[string][]ResourceState)
	for _, r := range state.Resources {
		byType[r.Type] = append(byType[r.Type], r)
	}

	log.Printf("stack: destroying %d resources", len(state.Resources))

	var destroyErr error
	for _, rtype := range destroyOrder {
		for _, res := range byType[rtype] {
			if err := deleteResource(ctx, cfg, clients, res); err != nil {
				log.Printf("stack: failed to delete %s %q: %v", res.Type, res.Name, err)
				destroyErr = combineErrors(destroyErr, newDeployError("delete", res.Type, res.Name, err))
				continue
			}
			log.Printf("stack: deleted %s %q", res.Type, res.Name)
		}
	}

	if destroyErr != nil {
		return destroyErr
	}
	return store.Remove()
}

// deleteResource dispatches deletion of one recorded resource to the client
// that owns its type.
func deleteResource(ctx context.Context, cfg *Config, clients *Clients, res ResourceState) error {
	switch res.Type {
	case ResTypeGatewayTarget:
		gatewayID := res.Metadata["gateway_id"]
		targetID := res.Metadata["id"]
		if gatewayID == "" || targetID == "" {
			return fmt.Errorf("state record missing gateway or target identifier")
		}
		return clients.Control.DeleteTarget(ctx, gatewayID, targetID)
	case ResTypeGateway:
		return clients.Control.DeleteGateway(ctx, res.Metadata["id"])
	case ResTypeCredentialProvider:
		step := NewCredentialStep(cfg)
		return step.Delete(ctx, clients.Credentials)
	case ResTypeAgentRuntime:
		return clients.Control.DeleteRuntime(ctx, res.Metadata["id"])
	case ResTypeMemory:
		return clients.Control.DeleteMemory(ctx, res.Metadata["id"])
	case ResTypeSecret:
		return clients.Secrets.DeleteSecret(ctx, res.Name)
	case ResTypeRole:
		return clients.IAM.DeleteRole(ctx, res.Name, rolePolicyNames(cfg, res.Name))
	case ResTypeRepository:
		return clients.Registry.DeleteRepository(ctx, res.Name)
	default:
		return fmt.Errorf("unknown resource type %q", res.Type)
	}
}

// rolePolicyNames returns the inline policy names attached to a recorded
// role.
func rolePolicyNames(cfg *Config, roleName string) []string {
	if roleName == gatewayRoleName(cfg.App) {
		return gatewayPolicyNames()
	}
	return runtimePolicyNames()
}

// combineErrors joins two errors, preferring the first non-nil.
func combineErrors(existing, new error) error {
	if existing == nil {
		return new
	}
	return fmt.Errorf("%w; %v", existing, new)
}
