package stack

import (
	"context"
	"log"
)

// registryUnit provisions the container registry repository and publishes the
// artifact reference consumed by the runtime unit. When the operator supplies
// an external image reference, the repository is still created (it anchors the
// app's push target) but the published reference is the external one,
// untouched.
type registryUnit struct{}

func (u *registryUnit) Name() string { return UnitRegistry }

func (u *registryUnit) Requires() []string { return nil }

func (u *registryUnit) Provision(ctx context.Context, d *Deployment) error {
	name := repositoryName(d.Cfg.App)

	uri, arn, err := d.Clients.Registry.EnsureRepository(ctx, name, d.Cfg.Tags)
	if err != nil {
		return err
	}
	log.Printf("stack: repository %s ready (%s)", name, uri)

	d.Outputs.Publish(OutRepositoryURI, uri)
	d.Outputs.Publish(OutRepositoryARN, arn)

	// The derived artifact reference threads to the runtime unit through the
	// registry → runtime edge. With an external reference there is no edge and
	// the runtime reads the config directly.
	imageRef := d.Cfg.ImageRef
	if !d.Cfg.HasExternalImage() {
		imageRef = defaultImageRef(d.Cfg.AccountID, d.Cfg.Region, d.Cfg.App)
		d.Outputs.Publish(OutImageRef, imageRef)
	}

	d.record(ResourceState{
		Type:   ResTypeRepository,
		Name:   name,
		ARN:    arn,
		Status: StatusHealthy,
		Metadata: map[string]string{
			"uri":       uri,
			"image_ref": imageRef,
		},
	})
	return nil
}
