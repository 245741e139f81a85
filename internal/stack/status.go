package stack

import (
	"context"
	"fmt"
)

// Deployment-level status constants.
const (
	DeployStatusHealthy     = "healthy"
	DeployStatusDegraded    = "degraded"
	DeployStatusNotDeployed = "not_deployed"
)

// ResourceStatus is the checked health of one deployed resource.
type ResourceStatus struct {
	Type   string `json:"type"`
	Name   string `json:"name"`
	Health string `json:"health"`
	Detail string `json:"detail,omitempty"`
}

// StatusReport is the result of checking a deployed stack against AWS.
type StatusReport struct {
	Status    string           `json:"status"`
	Resources []ResourceStatus `json:"resources,omitempty"`
	Ping      string           `json:"ping,omitempty"`
}

// Status checks every resource recorded in the persisted state against AWS
// and reports drift. A resource present in state but missing remotely was
// deleted out-of-band. When the runtime is healthy, a data-plane invocation
// verifies it actually answers, not just that the control plane says READY.
func Status(ctx context.Context, cfg *Config, clients *Clients, store *StateStore) (*StatusReport, error) {
	state, err := store.Load()
	if err != nil {
		return nil, err
	}
	if state == nil || len(state.Resources) == 0 {
		return &StatusReport{Status: DeployStatusNotDeployed}, nil
	}

	report := &StatusReport{Status: DeployStatusHealthy}
	runtimeHealthy := false
	var runtimeARN string

	for _, res := range state.Resources {
		health, checkErr := checkResource(ctx, clients, res)
		rs := ResourceStatus{Type: res.Type, Name: res.Name, Health: health}
		if checkErr != nil {
			rs.Detail = checkErr.Error()
		}
		if health == StatusMissing {
			rs.Detail = "present in state but missing remotely (deleted out-of-band?)"
		}
		if health != StatusHealthy {
			report.Status = DeployStatusDegraded
		}
		if res.Type == ResTypeAgentRuntime && health == StatusHealthy {
			runtimeHealthy = true
			runtimeARN = res.ARN
		}
		report.Resources = append(report.Resources, rs)
	}

	if runtimeHealthy && clients.Pinger != nil {
		if err := clients.Pinger.PingRuntime(ctx, runtimeARN); err != nil {
			report.Status = DeployStatusDegraded
			report.Ping = fmt.Sprintf("failed: %v", err)
		} else {
			report.Ping = "ok"
		}
	}

	return report, nil
}

// checkResource dispatches the health check for one recorded resource.
func checkResource(ctx context.Context, clients *Clients, res ResourceState) (string, error) {
	switch res.Type {
	case ResTypeRepository:
		return clients.Registry.CheckRepository(ctx, res.Name)
	case ResTypeRole:
		return clients.IAM.CheckRole(ctx, res.Name)
	case ResTypeSecret:
		return clients.Secrets.CheckSecret(ctx, res.Name)
	case ResTypeMemory:
		return clients.Control.CheckMemory(ctx, res.Metadata["id"])
	case ResTypeAgentRuntime:
		return clients.Control.CheckRuntime(ctx, res.Metadata["id"])
	case ResTypeCredentialProvider:
		if _, err := clients.Credentials.GetProvider(ctx, res.Name); err != nil {
			if isProviderNotFound(err) {
				return StatusMissing, nil
			}
			return StatusUnhealthy, err
		}
		return StatusHealthy, nil
	case ResTypeGateway:
		return clients.Control.CheckGateway(ctx, res.Metadata["id"])
	case ResTypeGatewayTarget:
		return clients.Control.CheckTarget(ctx, res.Metadata["gateway_id"], res.Metadata["id"])
	default:
		return StatusUnhealthy, fmt.Errorf("unknown resource type %q", res.Type)
	}
}
