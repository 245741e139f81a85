package stack

import (
	"context"
	"log"
)

// runtimeUnit provisions the memory resource and the agent runtime as one
// unit. The memory handle is created first so its ID can be injected into the
// runtime environment; a runtime without its memory handle is useless, so the
// two share a lifecycle.
type runtimeUnit struct {
	deps []string
}

func (u *runtimeUnit) Name() string { return UnitRuntime }

func (u *runtimeUnit) Requires() []string { return u.deps }

func (u *runtimeUnit) Provision(ctx context.Context, d *Deployment) error {
	roleARN, err := d.Outputs.Require(OutRuntimeRoleARN)
	if err != nil {
		return err
	}
	secret, err := d.Outputs.Require(OutSecretName)
	if err != nil {
		return err
	}

	imageRef := d.Cfg.ImageRef
	if !d.Cfg.HasExternalImage() {
		if imageRef, err = d.Outputs.Require(OutImageRef); err != nil {
			return err
		}
	}

	if err := u.provisionMemory(ctx, d, roleARN); err != nil {
		return err
	}
	memoryID, err := d.Outputs.Require(OutMemoryID)
	if err != nil {
		return err
	}

	if d.Cfg.Observability != nil && d.Cfg.Observability.TracingEnabled {
		logGroup := d.Cfg.Observability.LogGroup
		if logGroup == "" {
			logGroup = defaultLogGroup(d.Cfg.App)
		}
		if err := d.Clients.Control.EnsureLogGroup(ctx, logGroup); err != nil {
			return err
		}
	}

	name := runtimeName(d.Cfg.App)
	spec := RuntimeSpec{
		ImageRef: imageRef,
		RoleARN:  roleARN,
		Protocol: d.Cfg.Profile.Protocol,
		Env:      runtimeEnvVars(d.Cfg, memoryID, secret),
		Tags:     d.Cfg.Tags,
	}
	if d.Cfg.Profile.GatewayAuth == GatewayAuthJWT {
		spec.Authorizer = &JWTAuthorizer{
			DiscoveryURL:   d.Cfg.DiscoveryURL(),
			AllowedClients: []string{d.Cfg.Identity.ClientID},
		}
	}

	// A prior runtime is updated in place so its ARN (and anything holding
	// it) stays stable across redeploys.
	var id, arn string
	if prior, ok := d.priorResource(ResTypeAgentRuntime, name); ok && prior.Metadata["id"] != "" {
		id, arn = prior.Metadata["id"], prior.ARN
		log.Printf("stack: updating runtime %s", name)
		if err := d.Clients.Control.UpdateRuntime(ctx, id, spec); err != nil {
			return err
		}
	} else {
		if id, arn, err = d.Clients.Control.CreateRuntime(ctx, name, spec); err != nil {
			return err
		}
	}
	log.Printf("stack: runtime %s ready (%s)", name, arn)

	d.Outputs.Publish(OutRuntimeID, id)
	d.Outputs.Publish(OutRuntimeARN, arn)
	d.record(ResourceState{
		Type:     ResTypeAgentRuntime,
		Name:     name,
		ARN:      arn,
		Status:   StatusHealthy,
		Metadata: map[string]string{"id": id, "image_ref": imageRef},
	})
	return nil
}

// provisionMemory creates or adopts the long-term memory resource and
// publishes its handle.
func (u *runtimeUnit) provisionMemory(ctx context.Context, d *Deployment, roleARN string) error {
	name := memoryName(d.Cfg.App)
	spec := MemorySpec{
		Strategies:      d.Cfg.Memory.Strategies,
		EventExpiryDays: d.Cfg.Memory.expiryDays(),
		RoleARN:         roleARN,
		Tags:            d.Cfg.Tags,
	}

	id, arn, err := d.Clients.Control.CreateMemory(ctx, name, spec)
	if err != nil {
		return err
	}
	log.Printf("stack: memory %s active (%s)", name, id)

	d.Outputs.Publish(OutMemoryID, id)
	d.Outputs.Publish(OutMemoryARN, arn)
	d.record(ResourceState{
		Type:     ResTypeMemory,
		Name:     name,
		ARN:      arn,
		Status:   StatusHealthy,
		Metadata: map[string]string{"id": id},
	})
	return nil
}
