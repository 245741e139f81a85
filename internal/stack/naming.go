package stack

import (
	"fmt"
	"regexp"
	"strings"
)

// awsNamePattern is the regex pattern for valid AWS Bedrock AgentCore resource
// names. Names must start with a letter, contain only letters, digits, and
// underscores, and be at most 48 characters long.
const awsNamePattern = `^[a-zA-Z][a-zA-Z0-9_]{0,47}$`

// awsNameRe is the compiled regex for validating AWS resource names.
var awsNameRe = regexp.MustCompile(awsNamePattern)

// appNameRe restricts application names to letters, digits, and hyphens,
// starting with a letter.
var appNameRe = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9-]{0,39}$`)

// repositorySuffix is appended to the app slug to form the registry repository
// name. The same suffix scopes the OAuth2 resource-server identifier so
// deploy-time naming and token scopes stay aligned.
const repositorySuffix = "-mcp"

// defaultImageTag is the floating tag used when no external artifact reference
// is supplied. The image must already exist under this tag before the runtime
// unit is realized; the composer does not verify that.
const defaultImageTag = "latest"

// validateAppName checks whether name is a usable application name.
func validateAppName(name string) error {
	if !appNameRe.MatchString(name) {
		return fmt.Errorf("app name %q is invalid: must match %s", name, appNameRe.String())
	}
	return nil
}

// appSlug case-folds the application name exactly once. All derived resource
// names start from this slug so identical inputs always produce identical
// names.
func appSlug(app string) string {
	return strings.ToLower(app)
}

// repositoryName returns the registry repository name for the app.
func repositoryName(app string) string {
	return appSlug(app) + repositorySuffix
}

// defaultImageRef computes the default artifact reference from the registry
// unit's own identity and the floating default tag.
func defaultImageRef(accountID, region, app string) string {
	return fmt.Sprintf("%s.dkr.ecr.%s.amazonaws.com/%s:%s",
		accountID, region, repositoryName(app), defaultImageTag)
}

// runtimeName returns the AgentCore runtime name for the app. AgentCore names
// forbid hyphens, so the slug is folded to underscores.
func runtimeName(app string) string {
	return underscored(appSlug(app)) + "_mcp"
}

// memoryName returns the AgentCore memory resource name for the app.
func memoryName(app string) string {
	return underscored(appSlug(app)) + "_memory"
}

// gatewayName returns the gateway name for the app.
func gatewayName(app string) string {
	return appSlug(app) + "-gateway"
}

// gatewayTargetName returns the gateway target name for the app.
func gatewayTargetName(app string) string {
	return underscored(appSlug(app)) + "_runtime_target"
}

// secretName returns the Secrets Manager secret name holding the third-party
// API key. Only the name is injected into the runtime environment; the value
// is populated out-of-band after deployment.
func secretName(app string) string {
	return repositoryName(app) + "/api-key"
}

// credentialProviderName returns the OAuth2 credential provider name for the
// app.
func credentialProviderName(app string) string {
	return appSlug(app) + "-oauth2-provider"
}

// runtimeRoleName returns the IAM role name assumed by the agent runtime.
func runtimeRoleName(app string) string {
	return appSlug(app) + "-runtime-role"
}

// gatewayRoleName returns the IAM role name assumed by the gateway.
func gatewayRoleName(app string) string {
	return appSlug(app) + "-gateway-role"
}

// oauthScope returns the fixed OAuth2 scope requested by the gateway target
// when authenticating to the runtime.
func oauthScope(app string) string {
	return repositoryName(app) + "/invoke"
}

// underscored folds hyphens to underscores for AgentCore name constraints.
func underscored(s string) string {
	return strings.ReplaceAll(s, "-", "_")
}

// validateAWSName checks whether name is a valid AgentCore resource name and
// returns an error describing the problem if not. The resourceType is used in
// the error message to help users identify which resource is invalid.
func validateAWSName(name, resourceType string) error {
	if !awsNameRe.MatchString(name) {
		return fmt.Errorf(
			"resource name %q (%s) is invalid: must match %s",
			name, resourceType, awsNamePattern,
		)
	}
	return nil
}

// derivedNames builds a map of all derived AgentCore resource names to their
// resource types, using the same naming helpers the units use.
func derivedNames(app string) map[string]string {
	return map[string]string{
		runtimeName(app):       ResTypeAgentRuntime,
		memoryName(app):        ResTypeMemory,
		gatewayTargetName(app): ResTypeGatewayTarget,
	}
}

// validateDerivedNames validates every derived AgentCore resource name against
// the AWS naming pattern. Returns a list of validation errors, or nil if all
// names are valid.
func validateDerivedNames(app string) []string {
	derived := derivedNames(app)

	keys := sortedKeys(derived)

	var errs []string
	for _, name := range keys {
		if err := validateAWSName(name, derived[name]); err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}
