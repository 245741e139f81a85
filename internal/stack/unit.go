package stack

import (
	"context"
	"sync"
	"time"
)

// Unit is a named deployment unit realized against AWS. Units publish outputs
// and declare ordering edges; the graph runner realizes them in dependency
// order. The credential provisioning step satisfies the same contract as the
// native declarative units, so the rest of the graph cannot tell the
// difference.
type Unit interface {
	// Name returns the unit's stable identifier, used in ordering edges.
	Name() string

	// Requires lists the names of units that must complete before this one
	// starts. Edges not implied by data flow (target-after-role,
	// target-after-credential-provider) are declared here explicitly.
	Requires() []string

	// Provision realizes the unit. It reads published outputs of earlier
	// units from d.Outputs and publishes its own before returning.
	Provision(ctx context.Context, d *Deployment) error
}

// Deployment carries the shared deployment-pass state threaded through units:
// configuration, AWS clients, published outputs, and the realized resource
// record. Output threading is append-only; units communicate only through
// copied identifier strings.
type Deployment struct {
	Cfg     *Config
	Clients *Clients
	Outputs *Outputs

	mu        sync.Mutex
	resources []ResourceState
	prior     map[string]ResourceState
}

// NewDeployment builds a Deployment for one pass. prior may be nil on first
// deploy.
func NewDeployment(cfg *Config, clients *Clients, prior *StackState) *Deployment {
	d := &Deployment{
		Cfg:     cfg,
		Clients: clients,
		Outputs: NewOutputs(),
		prior:   make(map[string]ResourceState),
	}
	if prior != nil {
		d.prior = prior.priorMap()
	}
	return d
}

// record appends a realized resource to the deployment record.
func (d *Deployment) record(res ResourceState) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resources = append(d.resources, res)
}

// priorResource returns the prior state for a resource, if it was realized in
// an earlier deployment pass.
func (d *Deployment) priorResource(typ, name string) (ResourceState, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.prior[resourceKey(typ, name)]
	return r, ok
}

// State snapshots the deployment record into a persistable StackState.
// Prior resources not re-recorded this pass are carried forward, so a pass
// that fails early never shrinks the state below what earlier passes
// realized and destroy still knows about every remote resource.
func (d *Deployment) State() *StackState {
	d.mu.Lock()
	defer d.mu.Unlock()
	resources := make([]ResourceState, len(d.resources))
	copy(resources, d.resources)
	recorded := make(map[string]bool, len(d.resources))
	for _, r := range d.resources {
		recorded[resourceKey(r.Type, r.Name)] = true
	}
	for _, key := range sortedKeys(d.prior) {
		if !recorded[key] {
			resources = append(resources, d.prior[key])
		}
	}
	return &StackState{
		App:        d.Cfg.App,
		Region:     d.Cfg.Region,
		DeployedAt: time.Now().UTC().Format(time.RFC3339),
		Resources:  resources,
		Outputs:    d.Outputs.Snapshot(),
	}
}
