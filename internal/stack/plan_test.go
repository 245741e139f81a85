package stack

import (
	"strings"
	"testing"
)

func TestPlan_FirstDeployCreatesEverything(t *testing.T) {
	cfg := validTestConfig()
	plan, err := Plan(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}

	// OAuth profile: repository, two roles, secret, memory, runtime,
	// credential provider, gateway, target.
	if len(plan.Changes) != 9 {
		t.Errorf("changes = %d, want 9: %+v", len(plan.Changes), plan.Changes)
	}
	for _, c := range plan.Changes {
		if c.Action != ActionCreate {
			t.Errorf("%s %s action = %q, want create", c.Type, c.Name, c.Action)
		}
	}
	if !strings.Contains(plan.Summary, "9 to create") {
		t.Errorf("summary = %q", plan.Summary)
	}
}

func TestPlan_GatewayIAMProfileOmitsProvider(t *testing.T) {
	cfg := validTestConfig()
	cfg.Profile.TargetAuth = TargetAuthGatewayIAM
	cfg.Identity = nil
	plan, err := Plan(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range plan.Changes {
		if c.Type == ResTypeCredentialProvider {
			t.Error("gateway_iam profile must not plan a credential provider")
		}
	}
}

func TestPlan_RedeployUpdatesRuntimeOnly(t *testing.T) {
	cfg := validTestConfig()
	first, err := Plan(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}

	prior := &StackState{App: cfg.App, Region: cfg.Region}
	for _, c := range first.Changes {
		prior.Resources = append(prior.Resources, ResourceState{Type: c.Type, Name: c.Name})
	}

	second, err := Plan(cfg, prior)
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range second.Changes {
		want := ActionNoop
		if c.Type == ResTypeAgentRuntime {
			want = ActionUpdate
		}
		if c.Action != want {
			t.Errorf("%s %s action = %q, want %q", c.Type, c.Name, c.Action, want)
		}
	}
}

func TestPlan_OrphanedResourceMarkedForDeletion(t *testing.T) {
	cfg := validTestConfig()
	cfg.Profile.TargetAuth = TargetAuthGatewayIAM
	cfg.Identity = nil

	// Provider exists from a previous OAuth deploy but is no longer desired.
	prior := &StackState{
		App: cfg.App,
		Resources: []ResourceState{
			{Type: ResTypeCredentialProvider, Name: credentialProviderName(cfg.App)},
		},
	}
	plan, err := Plan(cfg, prior)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, c := range plan.Changes {
		if c.Type == ResTypeCredentialProvider && c.Action == ActionDelete {
			found = true
		}
	}
	if !found {
		t.Errorf("expected delete for orphaned credential provider: %+v", plan.Changes)
	}
}

func TestPlan_InvalidConfig(t *testing.T) {
	cfg := validTestConfig()
	cfg.App = ""
	if _, err := Plan(cfg, nil); err == nil {
		t.Fatal("expected error for invalid config")
	}
}
