package stack

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
)

func testStore(t *testing.T) *StateStore {
	t.Helper()
	return NewStateStore(filepath.Join(t.TempDir(), "test.state.json"))
}

func TestDeploy_FullStack(t *testing.T) {
	cfg := validTestConfig()
	sim := newSimClients()
	sim.clientSecrets["us-east-2_pool123/client456"] = "s3cret"
	store := testStore(t)

	state, err := Deploy(context.Background(), cfg, sim.bundle(), store)
	if err != nil {
		t.Fatal(err)
	}

	// One of each resource, plus two roles.
	byType := map[string]int{}
	for _, r := range state.Resources {
		byType[r.Type]++
	}
	want := map[string]int{
		ResTypeRepository:         1,
		ResTypeRole:               2,
		ResTypeSecret:             1,
		ResTypeMemory:             1,
		ResTypeAgentRuntime:       1,
		ResTypeCredentialProvider: 1,
		ResTypeGateway:            1,
		ResTypeGatewayTarget:      1,
	}
	for typ, n := range want {
		if byType[typ] != n {
			t.Errorf("resources of type %s = %d, want %d", typ, byType[typ], n)
		}
	}

	// Derived artifact reference threads registry identity into the runtime.
	if got := state.Outputs[OutImageRef]; got != "123456789012.dkr.ecr.us-east-2.amazonaws.com/placefinder-mcp:latest" {
		t.Errorf("image_ref = %q", got)
	}
	for _, key := range []string{OutRuntimeARN, OutGatewayURL, OutCredentialProviderARN, OutGatewayTargetID} {
		if state.Outputs[key] == "" {
			t.Errorf("output %s not published", key)
		}
	}

	// Post-deploy smoke check hit the runtime's data plane.
	if len(sim.pinged) != 1 || sim.pinged[0] != state.Outputs[OutRuntimeARN] {
		t.Errorf("pinged = %v", sim.pinged)
	}

	// State was persisted.
	persisted, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if persisted == nil || len(persisted.Resources) != len(state.Resources) {
		t.Errorf("persisted state mismatch: %+v", persisted)
	}
}

func TestDeploy_RedeployUpdatesRuntimeInPlace(t *testing.T) {
	cfg := validTestConfig()
	sim := newSimClients()
	sim.clientSecrets["us-east-2_pool123/client456"] = "s3cret"
	store := testStore(t)

	if _, err := Deploy(context.Background(), cfg, sim.bundle(), store); err != nil {
		t.Fatal(err)
	}
	firstCalls := len(sim.callNames())

	if _, err := Deploy(context.Background(), cfg, sim.bundle(), store); err != nil {
		t.Fatal(err)
	}
	secondCalls := sim.callNames()[firstCalls:]

	sawUpdate, sawCreate := false, false
	for _, c := range secondCalls {
		switch c {
		case "UpdateRuntime":
			sawUpdate = true
		case "CreateRuntime":
			sawCreate = true
		}
	}
	if !sawUpdate {
		t.Error("redeploy should update the runtime in place")
	}
	if sawCreate {
		t.Error("redeploy must not create a second runtime")
	}
}

func TestDeploy_FailedRedeployKeepsPriorState(t *testing.T) {
	cfg := validTestConfig()
	sim := newSimClients()
	sim.clientSecrets["us-east-2_pool123/client456"] = "s3cret"
	store := testStore(t)

	first, err := Deploy(context.Background(), cfg, sim.bundle(), store)
	if err != nil {
		t.Fatal(err)
	}

	// Second pass dies in the roles unit before most resources re-ensure.
	sim.fail("EnsureRole", fmt.Errorf("ThrottlingException: rate exceeded"))
	if _, err := Deploy(context.Background(), cfg, sim.bundle(), store); err == nil {
		t.Fatal("expected deploy error")
	}

	// The state must not shrink below what the first pass realized, or a
	// later destroy leaks the resources the failed pass never reached.
	persisted, loadErr := store.Load()
	if loadErr != nil {
		t.Fatal(loadErr)
	}
	if persisted == nil || len(persisted.Resources) != len(first.Resources) {
		t.Fatalf("persisted %d resources, want %d", len(persisted.Resources), len(first.Resources))
	}
	for _, typ := range []string{
		ResTypeAgentRuntime, ResTypeGateway, ResTypeGatewayTarget, ResTypeCredentialProvider,
	} {
		if persisted.FindResource(typ) == nil {
			t.Errorf("state lost %s after failed redeploy", typ)
		}
	}
}

func TestDeploy_RedeployRevalidatesProvider(t *testing.T) {
	cfg := validTestConfig()
	sim := newSimClients()
	sim.clientSecrets["us-east-2_pool123/client456"] = "s3cret"
	store := testStore(t)

	if _, err := Deploy(context.Background(), cfg, sim.bundle(), store); err != nil {
		t.Fatal(err)
	}
	firstCalls := len(sim.callNames())

	state, err := Deploy(context.Background(), cfg, sim.bundle(), store)
	if err != nil {
		t.Fatal(err)
	}

	sawGet, sawCreate := false, false
	for _, c := range sim.callNames()[firstCalls:] {
		switch c {
		case "GetProvider":
			sawGet = true
		case "CreateProvider":
			sawCreate = true
		}
	}
	if !sawGet {
		t.Error("redeploy should revalidate the existing provider")
	}
	if sawCreate {
		t.Error("a healthy provider must not be re-registered")
	}
	if state.Outputs[OutCredentialProviderARN] == "" {
		t.Error("revalidated provider must still publish its ARN")
	}
}

func TestDeploy_RedeployRecreatesDriftedProvider(t *testing.T) {
	cfg := validTestConfig()
	sim := newSimClients()
	sim.clientSecrets["us-east-2_pool123/client456"] = "s3cret"
	store := testStore(t)

	if _, err := Deploy(context.Background(), cfg, sim.bundle(), store); err != nil {
		t.Fatal(err)
	}

	// Out-of-band deletion between passes.
	name := credentialProviderName(cfg.App)
	delete(sim.providers, name)

	state, err := Deploy(context.Background(), cfg, sim.bundle(), store)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := sim.providers[name]; !ok {
		t.Error("drifted provider should be re-registered on redeploy")
	}
	if state.Outputs[OutCredentialProviderARN] == "" {
		t.Error("re-created provider must publish its ARN")
	}
}

func TestDeploy_ExternalImageSkipsDerivation(t *testing.T) {
	cfg := validTestConfig()
	cfg.ImageRef = "registry.example.com/tools/place-finder:v1.2.3"
	sim := newSimClients()
	sim.clientSecrets["us-east-2_pool123/client456"] = "s3cret"

	state, err := Deploy(context.Background(), cfg, sim.bundle(), testStore(t))
	if err != nil {
		t.Fatal(err)
	}
	// The external reference is used untouched and never re-derived.
	var runtime *ResourceState
	for i := range state.Resources {
		if state.Resources[i].Type == ResTypeAgentRuntime {
			runtime = &state.Resources[i]
		}
	}
	if runtime == nil {
		t.Fatal("no runtime in state")
	}
	if runtime.Metadata["image_ref"] != cfg.ImageRef {
		t.Errorf("runtime image = %q, want external ref", runtime.Metadata["image_ref"])
	}
	if _, ok := state.Outputs[OutImageRef]; ok {
		t.Error("derived image_ref output must not exist with an external image")
	}
}

func TestDeploy_UnitFailurePersistsPartialState(t *testing.T) {
	cfg := validTestConfig()
	sim := newSimClients()
	sim.clientSecrets["us-east-2_pool123/client456"] = "s3cret"
	sim.fail("CreateGateway", fmt.Errorf("ThrottlingException: rate exceeded"))
	store := testStore(t)

	_, err := Deploy(context.Background(), cfg, sim.bundle(), store)
	if err == nil {
		t.Fatal("expected deploy error")
	}
	if !strings.Contains(err.Error(), "unit gateway") {
		t.Errorf("error should name the failed unit: %v", err)
	}

	// Whatever was realized before the failure is on disk so a retry adopts.
	persisted, loadErr := store.Load()
	if loadErr != nil {
		t.Fatal(loadErr)
	}
	if persisted == nil || len(persisted.Resources) == 0 {
		t.Error("partial state should be persisted on failure")
	}
	for _, r := range persisted.Resources {
		if r.Type == ResTypeGateway {
			t.Error("failed gateway must not be recorded")
		}
	}
}

func TestDeploy_PingFailureDoesNotFailDeploy(t *testing.T) {
	cfg := validTestConfig()
	sim := newSimClients()
	sim.clientSecrets["us-east-2_pool123/client456"] = "s3cret"
	sim.fail("PingRuntime", fmt.Errorf("runtime not answering"))

	if _, err := Deploy(context.Background(), cfg, sim.bundle(), testStore(t)); err != nil {
		t.Fatalf("smoke check failure must not fail the deploy: %v", err)
	}
}
