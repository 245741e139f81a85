package stack

import (
	"context"
	"log"
)

// Deploy realizes the full unit graph for the config, persists the resulting
// state, and runs a post-deploy data-plane smoke check against the runtime.
// A prior state makes the pass an update: resources are re-ensured and the
// runtime is updated in place.
func Deploy(ctx context.Context, cfg *Config, clients *Clients, store *StateStore) (*StackState, error) {
	prior, err := store.Load()
	if err != nil {
		return nil, err
	}

	graph, err := Compose(cfg)
	if err != nil {
		return nil, err
	}

	d := NewDeployment(cfg, clients, prior)
	runErr := graph.Run(ctx, d)

	// Persist whatever was realized even on a failed pass, so a retry adopts
	// instead of duplicating and destroy knows what exists.
	state := d.State()
	if len(state.Resources) > 0 {
		if saveErr := store.Save(state); saveErr != nil {
			log.Printf("stack: failed to persist state: %v", saveErr)
		}
	}
	if runErr != nil {
		return state, runErr
	}

	if clients.Pinger != nil {
		if arn, ok := d.Outputs.Get(OutRuntimeARN); ok {
			if err := clients.Pinger.PingRuntime(ctx, arn); err != nil {
				log.Printf("stack: post-deploy smoke check failed: %v", err)
			} else {
				log.Printf("stack: post-deploy smoke check passed")
			}
		}
	}

	return state, nil
}
