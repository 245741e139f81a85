package stack

import (
	"context"
	"log"
)

// secretUnit provisions the empty placeholder secret for the third-party API
// key. Only the secret's name is injected into the runtime environment; the
// value is populated out-of-band after deployment and never appears in config,
// state, or outputs.
type secretUnit struct{}

func (u *secretUnit) Name() string { return UnitSecret }

func (u *secretUnit) Requires() []string { return nil }

func (u *secretUnit) Provision(ctx context.Context, d *Deployment) error {
	name := secretName(d.Cfg.App)
	description := "API key for " + repositoryName(d.Cfg.App) + " (populate after deployment)"

	arn, err := d.Clients.Secrets.EnsureSecret(ctx, name, description, d.Cfg.Tags)
	if err != nil {
		return err
	}
	log.Printf("stack: secret %s ready", name)

	d.Outputs.Publish(OutSecretName, name)
	d.Outputs.Publish(OutSecretARN, arn)
	d.record(ResourceState{
		Type:   ResTypeSecret,
		Name:   name,
		ARN:    arn,
		Status: StatusHealthy,
	})
	return nil
}
