package stack

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
)

// Credential step lifecycle states. Transitions are strictly
// absent → creating → present on provision and present → deleting → absent on
// removal; a failure mid-transition leaves the step in the transitional state
// it was in.
const (
	CredentialAbsent   = "absent"
	CredentialCreating = "creating"
	CredentialPresent  = "present"
	CredentialDeleting = "deleting"
)

// CredentialStep provisions the OAuth2 client-credentials provider that the
// gateway target uses to authenticate to the runtime. It is an imperative
// step behind the same Unit contract as the declarative units: the graph
// runner cannot tell the difference. The client secret it fetches is held
// only in memory for the duration of the registration call and is never
// logged, recorded, or published.
type CredentialStep struct {
	cfg *Config

	mu    sync.Mutex
	state string
}

// NewCredentialStep builds the credential provisioning step for the config.
func NewCredentialStep(cfg *Config) *CredentialStep {
	return &CredentialStep{cfg: cfg, state: CredentialAbsent}
}

func (s *CredentialStep) Name() string { return UnitCredentialProvider }

// Requires is empty: the provider depends on nothing the graph provisions.
// The gateway target declares its edge on this step, not the other way
// around.
func (s *CredentialStep) Requires() []string { return nil }

// State returns the step's current lifecycle state.
func (s *CredentialStep) State() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// setState records a lifecycle transition.
func (s *CredentialStep) setState(state string) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Provision makes the credential provider present. On a first pass it
// registers the provider; when prior state already records one, the pass
// revalidates it instead so an out-of-band deletion is caught and repaired.
// Validation failures are terminal before any remote call.
func (s *CredentialStep) Provision(ctx context.Context, d *Deployment) error {
	if err := s.validate(); err != nil {
		return err
	}
	name := credentialProviderName(s.cfg.App)
	if _, ok := d.priorResource(ResTypeCredentialProvider, name); ok {
		return s.Revalidate(ctx, d)
	}
	return s.register(ctx, d)
}

// register fetches the client secret from the identity pool, then registers
// provider name, secret, and discovery URL in one atomic call. A name
// conflict adopts the existing provider.
func (s *CredentialStep) register(ctx context.Context, d *Deployment) error {
	s.setState(CredentialCreating)

	secret, err := d.Clients.Credentials.DescribeClientSecret(
		ctx, s.cfg.Identity.UserPoolID, s.cfg.Identity.ClientID)
	if err != nil {
		return err
	}

	name := credentialProviderName(s.cfg.App)
	arn, err := d.Clients.Credentials.CreateProvider(
		ctx, name, s.cfg.DiscoveryURL(), s.cfg.Identity.ClientID, secret)
	if err != nil {
		if !isConflictError(err) {
			return fmt.Errorf("register credential provider %q: %w", name, err)
		}
		log.Printf("stack: credential provider %q already exists, adopting", name)
		if arn, err = d.Clients.Credentials.GetProvider(ctx, name); err != nil {
			return fmt.Errorf("register credential provider %q (adopt): %w", name, err)
		}
	}
	s.setState(CredentialPresent)
	log.Printf("stack: credential provider %s ready", name)

	d.Outputs.Publish(OutCredentialProviderARN, arn)
	d.record(ResourceState{
		Type:   ResTypeCredentialProvider,
		Name:   name,
		ARN:    arn,
		Status: StatusHealthy,
	})
	return nil
}

// Revalidate checks a previously provisioned provider during an update pass.
// A provider deleted out-of-band is re-created rather than treated as an
// error; the replacement is logged because its ARN changes.
func (s *CredentialStep) Revalidate(ctx context.Context, d *Deployment) error {
	name := credentialProviderName(s.cfg.App)
	arn, err := d.Clients.Credentials.GetProvider(ctx, name)
	if err == nil {
		s.setState(CredentialPresent)
		d.Outputs.Publish(OutCredentialProviderARN, arn)
		d.record(ResourceState{
			Type:   ResTypeCredentialProvider,
			Name:   name,
			ARN:    arn,
			Status: StatusHealthy,
		})
		return nil
	}
	if !isProviderNotFound(err) {
		return fmt.Errorf("revalidate credential provider %q: %w", name, err)
	}
	log.Printf("stack: credential provider %q missing, re-creating", name)
	s.setState(CredentialAbsent)
	return s.register(ctx, d)
}

// Delete deregisters the credential provider. An already-deleted provider is
// success, so removal retries converge.
func (s *CredentialStep) Delete(ctx context.Context, api credentialAPI) error {
	s.setState(CredentialDeleting)
	name := credentialProviderName(s.cfg.App)
	if err := api.DeleteProvider(ctx, name); err != nil && !isProviderNotFound(err) {
		return fmt.Errorf("delete credential provider %q: %w", name, err)
	}
	s.setState(CredentialAbsent)
	return nil
}

// validate checks the step's inputs before any remote call.
func (s *CredentialStep) validate() error {
	if s.cfg.Identity == nil {
		return fmt.Errorf("credential provider requires identity configuration")
	}
	if s.cfg.Identity.UserPoolID == "" {
		return fmt.Errorf("credential provider requires identity.user_pool_id")
	}
	if s.cfg.Identity.ClientID == "" {
		return fmt.Errorf("credential provider requires identity.client_id")
	}
	return nil
}

// isProviderNotFound classifies not-found errors from the credential service.
// The typed check covers the control-plane SDK; the string check covers
// simulated clients and wrapped transport errors.
func isProviderNotFound(err error) bool {
	return isNotFound(err) || (err != nil && strings.Contains(err.Error(), "ResourceNotFoundException"))
}
