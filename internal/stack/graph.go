package stack

import (
	"context"
	"fmt"
	"log"
	"sort"

	"golang.org/x/sync/errgroup"
)

// Graph is a validated set of deployment units in dependency order. Units with
// no path between them are parallel-eligible; units connected by an edge are
// strictly serialized.
type Graph struct {
	units map[string]Unit
	order []string
}

// NewGraph validates the unit set (every declared edge names a known unit, no
// cycles) and computes a deterministic topological order. An invalid edge set
// is a graph-construction bug, not a runtime condition, so it fails here
// before anything is realized.
func NewGraph(units []Unit) (*Graph, error) {
	byName := make(map[string]Unit, len(units))
	for _, u := range units {
		if _, dup := byName[u.Name()]; dup {
			return nil, fmt.Errorf("duplicate unit %q", u.Name())
		}
		byName[u.Name()] = u
	}

	for _, u := range units {
		for _, dep := range u.Requires() {
			if _, ok := byName[dep]; !ok {
				return nil, fmt.Errorf("unit %q requires unknown unit %q", u.Name(), dep)
			}
		}
	}

	order, err := topoOrder(byName)
	if err != nil {
		return nil, err
	}
	return &Graph{units: byName, order: order}, nil
}

// topoOrder returns a deterministic topological order (Kahn's algorithm,
// ready units processed in name order) or an error if the edges form a cycle.
func topoOrder(units map[string]Unit) ([]string, error) {
	indegree := make(map[string]int, len(units))
	dependents := make(map[string][]string, len(units))
	for name, u := range units {
		indegree[name] += 0
		for _, dep := range u.Requires() {
			indegree[name]++
			dependents[dep] = append(dependents[dep], name)
		}
	}

	var ready []string
	for name, n := range indegree {
		if n == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(units))
	for len(ready) > 0 {
		name := ready[0]
		ready = ready[1:]
		order = append(order, name)

		var unblocked []string
		for _, dep := range dependents[name] {
			indegree[dep]--
			if indegree[dep] == 0 {
				unblocked = append(unblocked, dep)
			}
		}
		sort.Strings(unblocked)
		ready = append(ready, unblocked...)
	}

	if len(order) != len(units) {
		return nil, fmt.Errorf("unit dependency cycle detected")
	}
	return order, nil
}

// Order returns the unit names in a valid serial realization order.
func (g *Graph) Order() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// HasEdge reports whether unit "to" declares a direct ordering edge on unit
// "from".
func (g *Graph) HasEdge(from, to string) bool {
	u, ok := g.units[to]
	if !ok {
		return false
	}
	for _, dep := range u.Requires() {
		if dep == from {
			return true
		}
	}
	return false
}

// Unit returns the unit with the given name, or nil.
func (g *Graph) Unit(name string) Unit {
	return g.units[name]
}

// Run realizes all units. Every unit runs in its own goroutine but blocks
// until each of its declared prerequisites has completed, so independent
// units proceed in parallel while edges serialize. The first unit failure
// cancels the pass; no unit starts after that.
func (g *Graph) Run(ctx context.Context, d *Deployment) error {
	done := make(map[string]chan struct{}, len(g.units))
	for name := range g.units {
		done[name] = make(chan struct{})
	}

	eg, ctx := errgroup.WithContext(ctx)
	for _, name := range g.order {
		u := g.units[name]
		eg.Go(func() error {
			for _, dep := range u.Requires() {
				select {
				case <-done[dep]:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			log.Printf("stack: realizing unit %s", u.Name())
			if err := u.Provision(ctx, d); err != nil {
				return fmt.Errorf("unit %s: %w", u.Name(), err)
			}
			close(done[u.Name()])
			return nil
		})
	}
	return eg.Wait()
}

// Compose builds the full deployment unit graph for the config, threading
// ordering edges per the profile:
//
//   - registry → runtime exists only when the artifact reference is derived
//     from the registry's own identity; an external reference leaves the two
//     parallel-eligible.
//   - gateway_target → {gateway, roles, runtime} always, plus
//     credential_provider in the OAuth profile: the target's OAuth block needs
//     a resolved handle, not a promise of one.
func Compose(cfg *Config) (*Graph, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("config validation failed: %s", errs[0])
	}
	if errs := validateDerivedNames(cfg.App); len(errs) > 0 {
		return nil, fmt.Errorf("derived resource names invalid: %s", errs[0])
	}

	runtimeDeps := []string{UnitRoles, UnitSecret}
	if !cfg.HasExternalImage() {
		runtimeDeps = append(runtimeDeps, UnitRegistry)
	}

	targetDeps := []string{UnitGateway, UnitRoles, UnitRuntime}
	if cfg.Profile.TargetAuth == TargetAuthOAuth {
		targetDeps = append(targetDeps, UnitCredentialProvider)
	}

	units := []Unit{
		&registryUnit{},
		&rolesUnit{},
		&secretUnit{},
		&runtimeUnit{deps: runtimeDeps},
		&gatewayUnit{deps: []string{UnitRoles}},
		&gatewayTargetUnit{deps: targetDeps},
	}
	if cfg.Profile.TargetAuth == TargetAuthOAuth {
		units = append(units, NewCredentialStep(cfg))
	}

	return NewGraph(units)
}
