// Package stack composes and realizes an AWS Bedrock AgentCore application
// stack: a container registry, an agent runtime with long-term memory, an
// OAuth2 credential provider, and an MCP gateway fronting the runtime.
package stack

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Protocol mode constants for the agent runtime.
const (
	ProtocolHTTP = "HTTP"
	ProtocolMCP  = "MCP"
)

// Gateway authorizer mode constants.
const (
	GatewayAuthNone = "none"
	GatewayAuthJWT  = "jwt"
)

// Gateway target credential mode constants.
const (
	TargetAuthOAuth      = "oauth"
	TargetAuthGatewayIAM = "gateway_iam"
)

// Profile selects one point on the deployment configuration axis: runtime
// protocol, gateway authorizer, and how the gateway target authenticates to
// the runtime.
type Profile struct {
	Protocol    string `yaml:"protocol"`
	GatewayAuth string `yaml:"gateway_auth"`
	TargetAuth  string `yaml:"target_auth"`
}

// IdentityConfig holds the externally supplied Cognito identity-pool
// parameters consumed by the credential provisioning step and the JWT
// gateway authorizer.
type IdentityConfig struct {
	UserPoolID string `yaml:"user_pool_id"`
	ClientID   string `yaml:"client_id"`
}

// ObservabilityConfig holds observability settings for the runtime.
type ObservabilityConfig struct {
	LogGroup       string `yaml:"log_group,omitempty"`
	TracingEnabled bool   `yaml:"tracing,omitempty"`
}

// Config holds the full deployment configuration for one application stack.
type Config struct {
	App    string `yaml:"app"`
	Region string `yaml:"region"`

	// ImageRef is an externally supplied artifact reference. When empty the
	// composer derives the default reference from the registry unit's identity
	// and the "latest" tag.
	ImageRef string `yaml:"image,omitempty"`

	Profile       Profile              `yaml:"profile"`
	Memory        MemoryConfig         `yaml:"memory,omitempty"`
	Identity      *IdentityConfig      `yaml:"identity,omitempty"`
	Observability *ObservabilityConfig `yaml:"observability,omitempty"`
	Tags          map[string]string    `yaml:"tags,omitempty"`

	// AccountID is discovered via STS at client construction time.
	// NOT read from the config file.
	AccountID string `yaml:"-"`
}

var (
	regionRE   = regexp.MustCompile(`^[a-z]{2}-[a-z]+-\d+$`)
	imageRefRE = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]*(:\d+)?/[a-z0-9][a-z0-9._/-]*:[a-zA-Z0-9._-]+$`)
)

// LoadConfig reads and parses a YAML deploy config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills unset profile and memory fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.Profile.Protocol == "" {
		c.Profile.Protocol = ProtocolMCP
	}
	if c.Profile.GatewayAuth == "" {
		c.Profile.GatewayAuth = GatewayAuthNone
	}
	if c.Profile.TargetAuth == "" {
		c.Profile.TargetAuth = TargetAuthOAuth
	}
	if len(c.Memory.Strategies) == 0 {
		c.Memory.Strategies = DefaultStrategies()
	}
}

// Validate checks the config and returns all validation errors. It must pass
// before any remote call is made.
func (c *Config) Validate() []string {
	var errs []string

	if c.App == "" {
		errs = append(errs, "app is required")
	} else if err := validateAppName(c.App); err != nil {
		errs = append(errs, err.Error())
	}

	if c.Region == "" {
		errs = append(errs, "region is required")
	} else if !regionRE.MatchString(c.Region) {
		errs = append(errs, fmt.Sprintf("region %q does not match expected format (e.g. us-east-2)", c.Region))
	}

	if c.ImageRef != "" && !imageRefRE.MatchString(c.ImageRef) {
		errs = append(errs, fmt.Sprintf(
			"image %q is not a valid artifact reference (<registry-host>/<repository>:<tag>)", c.ImageRef))
	}

	errs = append(errs, c.Profile.validate()...)
	errs = append(errs, c.Memory.validate()...)
	errs = append(errs, c.validateIdentity()...)
	errs = append(errs, validateTags(c.Tags)...)

	return errs
}

// validate checks the profile enum fields.
func (p *Profile) validate() []string {
	var errs []string
	switch p.Protocol {
	case ProtocolHTTP, ProtocolMCP:
	default:
		errs = append(errs, fmt.Sprintf("profile.protocol %q must be %q or %q", p.Protocol, ProtocolHTTP, ProtocolMCP))
	}
	switch p.GatewayAuth {
	case GatewayAuthNone, GatewayAuthJWT:
	default:
		errs = append(errs, fmt.Sprintf("profile.gateway_auth %q must be %q or %q", p.GatewayAuth, GatewayAuthNone, GatewayAuthJWT))
	}
	switch p.TargetAuth {
	case TargetAuthOAuth, TargetAuthGatewayIAM:
	default:
		errs = append(errs, fmt.Sprintf("profile.target_auth %q must be %q or %q", p.TargetAuth, TargetAuthOAuth, TargetAuthGatewayIAM))
	}
	return errs
}

// validateIdentity checks that identity-pool parameters are present whenever a
// profile feature needs them. Missing parameters must fail fast here, before
// any remote call.
func (c *Config) validateIdentity() []string {
	needsIdentity := c.Profile.TargetAuth == TargetAuthOAuth || c.Profile.GatewayAuth == GatewayAuthJWT
	if !needsIdentity {
		return nil
	}
	if c.Identity == nil {
		return []string{fmt.Sprintf(
			"identity is required when profile.target_auth is %q or profile.gateway_auth is %q",
			TargetAuthOAuth, GatewayAuthJWT)}
	}
	var errs []string
	if c.Identity.UserPoolID == "" {
		errs = append(errs, "identity.user_pool_id is required")
	}
	if c.Identity.ClientID == "" {
		errs = append(errs, "identity.client_id is required")
	}
	return errs
}

// maxTagKeyLen is the maximum allowed length for a tag key.
const maxTagKeyLen = 128

// maxTagValueLen is the maximum allowed length for a tag value.
const maxTagValueLen = 256

// maxTagCount is the maximum number of user-defined tags.
const maxTagCount = 50

// validateTags checks user-defined tags for valid keys and values.
func validateTags(tags map[string]string) []string {
	if len(tags) == 0 {
		return nil
	}
	var errs []string
	if len(tags) > maxTagCount {
		errs = append(errs, fmt.Sprintf("tags: at most %d tags allowed, got %d", maxTagCount, len(tags)))
	}
	for k, v := range tags {
		if k == "" {
			errs = append(errs, "tags: key must not be empty")
		}
		if len(k) > maxTagKeyLen {
			errs = append(errs, fmt.Sprintf("tags: key %q exceeds max length %d", k, maxTagKeyLen))
		}
		if len(v) > maxTagValueLen {
			errs = append(errs, fmt.Sprintf("tags: value for key %q exceeds max length %d", k, maxTagValueLen))
		}
	}
	return errs
}

// DiscoveryURL returns the OIDC discovery URL for the configured user pool.
func (c *Config) DiscoveryURL() string {
	if c.Identity == nil {
		return ""
	}
	return fmt.Sprintf(
		"https://cognito-idp.%s.amazonaws.com/%s/.well-known/openid-configuration",
		c.Region, c.Identity.UserPoolID)
}

// HasExternalImage reports whether an external artifact reference was supplied.
// When true, the runtime unit has no structural dependency on the registry unit
// and the two may be realized in parallel.
func (c *Config) HasExternalImage() bool {
	return c.ImageRef != ""
}
