package stack

import (
	"context"
	"fmt"
	"log"
	"net/url"
)

// runtimeInvocationURL returns the data-plane invocation endpoint for a
// runtime ARN. The ARN is percent-encoded into the path and the DEFAULT
// qualifier is selected explicitly.
func runtimeInvocationURL(region, runtimeARN string) string {
	return fmt.Sprintf(
		"https://bedrock-agentcore.%s.amazonaws.com/runtimes/%s/invocations?qualifier=DEFAULT",
		region, url.QueryEscape(runtimeARN))
}

// gatewayUnit provisions the MCP gateway and publishes its identifiers and
// public URL.
type gatewayUnit struct {
	deps []string
}

func (u *gatewayUnit) Name() string { return UnitGateway }

func (u *gatewayUnit) Requires() []string { return u.deps }

func (u *gatewayUnit) Provision(ctx context.Context, d *Deployment) error {
	roleARN, err := d.Outputs.Require(OutGatewayRoleARN)
	if err != nil {
		return err
	}

	name := gatewayName(d.Cfg.App)
	spec := GatewaySpec{
		RoleARN:    roleARN,
		Protocol:   ProtocolMCP,
		Authorizer: d.Cfg.Profile.GatewayAuth,
		Tags:       d.Cfg.Tags,
	}
	switch d.Cfg.Profile.GatewayAuth {
	case GatewayAuthJWT:
		spec.JWT = &JWTAuthorizer{
			DiscoveryURL:   d.Cfg.DiscoveryURL(),
			AllowedClients: []string{d.Cfg.Identity.ClientID},
		}
	case GatewayAuthNone:
		log.Printf("stack: gateway %s has no inbound authorizer, not suitable for production", name)
	}

	id, arn, gwURL, err := d.Clients.Control.CreateGateway(ctx, name, spec)
	if err != nil {
		return err
	}
	log.Printf("stack: gateway %s ready (%s)", name, gwURL)

	d.Outputs.Publish(OutGatewayID, id)
	d.Outputs.Publish(OutGatewayARN, arn)
	d.Outputs.Publish(OutGatewayURL, gwURL)
	d.record(ResourceState{
		Type:     ResTypeGateway,
		Name:     name,
		ARN:      arn,
		Status:   StatusHealthy,
		Metadata: map[string]string{"id": id, "url": gwURL},
	})
	return nil
}

// gatewayTargetUnit provisions the gateway target routing MCP traffic to the
// runtime's invocation endpoint. In the OAuth profile the target's outbound
// credential block references the provisioned credential provider handle.
type gatewayTargetUnit struct {
	deps []string
}

func (u *gatewayTargetUnit) Name() string { return UnitGatewayTarget }

func (u *gatewayTargetUnit) Requires() []string { return u.deps }

func (u *gatewayTargetUnit) Provision(ctx context.Context, d *Deployment) error {
	gatewayID, err := d.Outputs.Require(OutGatewayID)
	if err != nil {
		return err
	}
	runtimeARN, err := d.Outputs.Require(OutRuntimeARN)
	if err != nil {
		return err
	}

	spec := TargetSpec{
		EndpointURL: runtimeInvocationURL(d.Cfg.Region, runtimeARN),
	}
	if d.Cfg.Profile.TargetAuth == TargetAuthOAuth {
		providerARN, err := d.Outputs.Require(OutCredentialProviderARN)
		if err != nil {
			return err
		}
		spec.Credential = &OAuthTargetCredential{
			ProviderARN: providerARN,
			Scopes:      []string{oauthScope(d.Cfg.App)},
		}
	}

	name := gatewayTargetName(d.Cfg.App)
	targetID, err := d.Clients.Control.CreateTarget(ctx, gatewayID, name, spec)
	if err != nil {
		return err
	}
	log.Printf("stack: gateway target %s ready (%s)", name, targetID)

	d.Outputs.Publish(OutGatewayTargetID, targetID)
	d.record(ResourceState{
		Type:   ResTypeGatewayTarget,
		Name:   name,
		ARN:    "",
		Status: StatusHealthy,
		Metadata: map[string]string{
			"id":         targetID,
			"gateway_id": gatewayID,
			"endpoint":   spec.EndpointURL,
		},
	})
	return nil
}
