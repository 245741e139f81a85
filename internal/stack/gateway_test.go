package stack

import (
	"context"
	"strings"
	"testing"
)

func TestRuntimeInvocationURL(t *testing.T) {
	arn := "arn:aws:bedrock-agentcore:us-east-2:123456789012:runtime/placefinder_mcp-abc123"
	got := runtimeInvocationURL("us-east-2", arn)
	want := "https://bedrock-agentcore.us-east-2.amazonaws.com/runtimes/" +
		"arn%3Aaws%3Abedrock-agentcore%3Aus-east-2%3A123456789012%3Aruntime%2Fplacefinder_mcp-abc123" +
		"/invocations?qualifier=DEFAULT"
	if got != want {
		t.Errorf("runtimeInvocationURL =\n  %s\nwant\n  %s", got, want)
	}
}

// runAllUnits provisions the full graph against simulated clients.
func runAllUnits(t *testing.T, cfg *Config, sim *simClients) *Deployment {
	t.Helper()
	g, err := Compose(cfg)
	if err != nil {
		t.Fatal(err)
	}
	d := NewDeployment(cfg, sim.bundle(), nil)
	if err := g.Run(context.Background(), d); err != nil {
		t.Fatal(err)
	}
	return d
}

func TestGatewayTarget_OAuthProfile(t *testing.T) {
	cfg := validTestConfig()
	sim := newSimClients()
	sim.clientSecrets["us-east-2_pool123/client456"] = "s3cret"
	d := runAllUnits(t, cfg, sim)

	targetID, err := d.Outputs.Require(OutGatewayTargetID)
	if err != nil {
		t.Fatal(err)
	}
	if targetID == "" {
		t.Error("empty target ID")
	}

	// Target endpoint is the runtime's percent-encoded invocation URL.
	state := d.State()
	var target *ResourceState
	for i := range state.Resources {
		if state.Resources[i].Type == ResTypeGatewayTarget {
			target = &state.Resources[i]
		}
	}
	if target == nil {
		t.Fatal("no gateway target in state")
	}
	endpoint := target.Metadata["endpoint"]
	runtimeARN, _ := d.Outputs.Require(OutRuntimeARN)
	if !strings.Contains(endpoint, "bedrock-agentcore.us-east-2.amazonaws.com/runtimes/") {
		t.Errorf("endpoint = %q", endpoint)
	}
	if strings.Contains(endpoint, runtimeARN) {
		t.Errorf("endpoint must carry the percent-encoded ARN, got raw: %q", endpoint)
	}
	if !strings.HasSuffix(endpoint, "?qualifier=DEFAULT") {
		t.Errorf("endpoint missing qualifier: %q", endpoint)
	}
}

func TestGatewayTarget_GatewayIAMProfileSkipsCredentials(t *testing.T) {
	cfg := validTestConfig()
	cfg.Profile.TargetAuth = TargetAuthGatewayIAM
	cfg.Identity = nil
	sim := newSimClients()
	d := runAllUnits(t, cfg, sim)

	if _, ok := d.Outputs.Get(OutCredentialProviderARN); ok {
		t.Error("credential provider output must not exist in gateway_iam profile")
	}
	for _, c := range sim.callNames() {
		if c == "DescribeClientSecret" || c == "CreateProvider" {
			t.Errorf("unexpected credential call %s in gateway_iam profile", c)
		}
	}
	if _, err := d.Outputs.Require(OutGatewayTargetID); err != nil {
		t.Errorf("target should still be provisioned: %v", err)
	}
}

func TestGateway_PublishesURL(t *testing.T) {
	cfg := validTestConfig()
	sim := newSimClients()
	sim.clientSecrets["us-east-2_pool123/client456"] = "s3cret"
	d := runAllUnits(t, cfg, sim)

	url, err := d.Outputs.Require(OutGatewayURL)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(url, "https://") || !strings.HasSuffix(url, "/mcp") {
		t.Errorf("gateway URL = %q", url)
	}
}
