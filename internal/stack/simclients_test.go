package stack

import (
	"context"
	"fmt"
	"sync"
)

// simClients is an in-memory implementation of every client interface.
// Creates record the resource and return deterministic identifiers; injected
// errors simulate AWS failures. No AWS credentials are required.
type simClients struct {
	region    string
	accountID string

	mu    sync.Mutex
	calls []string

	repositories map[string]bool
	roles        map[string]bool
	secrets      map[string]bool
	runtimes     map[string]string // name -> id
	memories     map[string]string
	gateways     map[string]string
	targets      map[string]string // gatewayID/name -> targetID
	providers    map[string]string // name -> arn

	clientSecrets map[string]string // userPoolID/clientID -> secret

	failures map[string]error // call name -> injected error
	pinged   []string
}

func newSimClients() *simClients {
	return &simClients{
		region:        "us-east-2",
		accountID:     "123456789012",
		repositories:  make(map[string]bool),
		roles:         make(map[string]bool),
		secrets:       make(map[string]bool),
		runtimes:      make(map[string]string),
		memories:      make(map[string]string),
		gateways:      make(map[string]string),
		targets:       make(map[string]string),
		providers:     make(map[string]string),
		clientSecrets: make(map[string]string),
		failures:      make(map[string]error),
	}
}

// bundle wraps the simulated client in a Clients value.
func (s *simClients) bundle() *Clients {
	return &Clients{
		Registry:    s,
		IAM:         s,
		Secrets:     s,
		Control:     s,
		Credentials: s,
		Pinger:      s,
	}
}

// record appends a call name for later ordering assertions.
func (s *simClients) record(call string) {
	s.mu.Lock()
	s.calls = append(s.calls, call)
	s.mu.Unlock()
}

// callNames returns the recorded calls.
func (s *simClients) callNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.calls))
	copy(out, s.calls)
	return out
}

// fail injects an error for a named call.
func (s *simClients) fail(call string, err error) {
	s.mu.Lock()
	s.failures[call] = err
	s.mu.Unlock()
}

func (s *simClients) failureFor(call string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures[call]
}

func (s *simClients) arn(service, resType, name string) string {
	return fmt.Sprintf("arn:aws:%s:%s:%s:%s/%s", service, s.region, s.accountID, resType, name)
}

// ---------- registryAPI ----------

func (s *simClients) EnsureRepository(_ context.Context, name string, _ map[string]string) (string, string, error) {
	s.record("EnsureRepository")
	if err := s.failureFor("EnsureRepository"); err != nil {
		return "", "", err
	}
	s.mu.Lock()
	s.repositories[name] = true
	s.mu.Unlock()
	uri := fmt.Sprintf("%s.dkr.ecr.%s.amazonaws.com/%s", s.accountID, s.region, name)
	return uri, s.arn("ecr", "repository", name), nil
}

func (s *simClients) DeleteRepository(_ context.Context, name string) error {
	s.record("DeleteRepository")
	if err := s.failureFor("DeleteRepository"); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.repositories, name)
	s.mu.Unlock()
	return nil
}

func (s *simClients) CheckRepository(_ context.Context, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.repositories[name] {
		return StatusHealthy, nil
	}
	return StatusMissing, nil
}

// ---------- iamAPI ----------

func (s *simClients) EnsureRole(_ context.Context, name, _ string, _ []NamedPolicy, _ map[string]string) (string, error) {
	s.record("EnsureRole")
	if err := s.failureFor("EnsureRole"); err != nil {
		return "", err
	}
	s.mu.Lock()
	s.roles[name] = true
	s.mu.Unlock()
	return fmt.Sprintf("arn:aws:iam::%s:role/%s", s.accountID, name), nil
}

func (s *simClients) DeleteRole(_ context.Context, name string, _ []string) error {
	s.record("DeleteRole")
	if err := s.failureFor("DeleteRole"); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.roles, name)
	s.mu.Unlock()
	return nil
}

func (s *simClients) CheckRole(_ context.Context, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.roles[name] {
		return StatusHealthy, nil
	}
	return StatusMissing, nil
}

// ---------- secretsAPI ----------

func (s *simClients) EnsureSecret(_ context.Context, name, _ string, _ map[string]string) (string, error) {
	s.record("EnsureSecret")
	if err := s.failureFor("EnsureSecret"); err != nil {
		return "", err
	}
	s.mu.Lock()
	s.secrets[name] = true
	s.mu.Unlock()
	return s.arn("secretsmanager", "secret", name), nil
}

func (s *simClients) DeleteSecret(_ context.Context, name string) error {
	s.record("DeleteSecret")
	if err := s.failureFor("DeleteSecret"); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.secrets, name)
	s.mu.Unlock()
	return nil
}

func (s *simClients) CheckSecret(_ context.Context, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.secrets[name] {
		return StatusHealthy, nil
	}
	return StatusMissing, nil
}

// ---------- controlAPI ----------

func (s *simClients) CreateRuntime(_ context.Context, name string, _ RuntimeSpec) (string, string, error) {
	s.record("CreateRuntime")
	if err := s.failureFor("CreateRuntime"); err != nil {
		return "", "", err
	}
	id := name + "-id"
	s.mu.Lock()
	s.runtimes[name] = id
	s.mu.Unlock()
	return id, s.arn("bedrock-agentcore", "runtime", id), nil
}

func (s *simClients) UpdateRuntime(_ context.Context, id string, _ RuntimeSpec) error {
	s.record("UpdateRuntime")
	return s.failureFor("UpdateRuntime")
}

func (s *simClients) DeleteRuntime(_ context.Context, id string) error {
	s.record("DeleteRuntime")
	if err := s.failureFor("DeleteRuntime"); err != nil {
		return err
	}
	s.mu.Lock()
	for name, rid := range s.runtimes {
		if rid == id {
			delete(s.runtimes, name)
		}
	}
	s.mu.Unlock()
	return nil
}

func (s *simClients) CheckRuntime(_ context.Context, id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rid := range s.runtimes {
		if rid == id {
			return StatusHealthy, nil
		}
	}
	return StatusMissing, nil
}

func (s *simClients) CreateMemory(_ context.Context, name string, _ MemorySpec) (string, string, error) {
	s.record("CreateMemory")
	if err := s.failureFor("CreateMemory"); err != nil {
		return "", "", err
	}
	id := name + "-mem"
	s.mu.Lock()
	s.memories[name] = id
	s.mu.Unlock()
	return id, s.arn("bedrock-agentcore", "memory", id), nil
}

func (s *simClients) DeleteMemory(_ context.Context, id string) error {
	s.record("DeleteMemory")
	if err := s.failureFor("DeleteMemory"); err != nil {
		return err
	}
	s.mu.Lock()
	for name, mid := range s.memories {
		if mid == id {
			delete(s.memories, name)
		}
	}
	s.mu.Unlock()
	return nil
}

func (s *simClients) CheckMemory(_ context.Context, id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, mid := range s.memories {
		if mid == id {
			return StatusHealthy, nil
		}
	}
	return StatusMissing, nil
}

func (s *simClients) CreateGateway(_ context.Context, name string, _ GatewaySpec) (string, string, string, error) {
	s.record("CreateGateway")
	if err := s.failureFor("CreateGateway"); err != nil {
		return "", "", "", err
	}
	id := name + "-gw"
	s.mu.Lock()
	s.gateways[name] = id
	s.mu.Unlock()
	url := fmt.Sprintf("https://%s.gateway.bedrock-agentcore.%s.amazonaws.com/mcp", id, s.region)
	return id, s.arn("bedrock-agentcore", "gateway", id), url, nil
}

func (s *simClients) DeleteGateway(_ context.Context, id string) error {
	s.record("DeleteGateway")
	if err := s.failureFor("DeleteGateway"); err != nil {
		return err
	}
	s.mu.Lock()
	for name, gid := range s.gateways {
		if gid == id {
			delete(s.gateways, name)
		}
	}
	s.mu.Unlock()
	return nil
}

func (s *simClients) CheckGateway(_ context.Context, id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, gid := range s.gateways {
		if gid == id {
			return StatusHealthy, nil
		}
	}
	return StatusMissing, nil
}

func (s *simClients) CreateTarget(_ context.Context, gatewayID, name string, spec TargetSpec) (string, error) {
	s.record("CreateTarget")
	if err := s.failureFor("CreateTarget"); err != nil {
		return "", err
	}
	targetID := name + "-tgt"
	s.mu.Lock()
	s.targets[gatewayID+"/"+name] = targetID
	s.mu.Unlock()
	return targetID, nil
}

func (s *simClients) DeleteTarget(_ context.Context, gatewayID, targetID string) error {
	s.record("DeleteTarget")
	if err := s.failureFor("DeleteTarget"); err != nil {
		return err
	}
	s.mu.Lock()
	for key, tid := range s.targets {
		if tid == targetID {
			delete(s.targets, key)
		}
	}
	s.mu.Unlock()
	return nil
}

func (s *simClients) CheckTarget(_ context.Context, _, targetID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tid := range s.targets {
		if tid == targetID {
			return StatusHealthy, nil
		}
	}
	return StatusMissing, nil
}

func (s *simClients) EnsureLogGroup(_ context.Context, name string) error {
	s.record("EnsureLogGroup")
	return s.failureFor("EnsureLogGroup")
}

// ---------- credentialAPI ----------

func (s *simClients) DescribeClientSecret(_ context.Context, userPoolID, clientID string) (string, error) {
	s.record("DescribeClientSecret")
	if err := s.failureFor("DescribeClientSecret"); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	secret, ok := s.clientSecrets[userPoolID+"/"+clientID]
	if !ok {
		return "", fmt.Errorf("ResourceNotFoundException: user pool client %s not found", clientID)
	}
	return secret, nil
}

func (s *simClients) CreateProvider(_ context.Context, name, _, _, _ string) (string, error) {
	s.record("CreateProvider")
	if err := s.failureFor("CreateProvider"); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.providers[name]; exists {
		return "", fmt.Errorf("ConflictException: credential provider %s already exists", name)
	}
	arn := s.arn("bedrock-agentcore", "token-vault/default/oauth2credentialprovider", name)
	s.providers[name] = arn
	return arn, nil
}

func (s *simClients) GetProvider(_ context.Context, name string) (string, error) {
	s.record("GetProvider")
	if err := s.failureFor("GetProvider"); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	arn, ok := s.providers[name]
	if !ok {
		return "", fmt.Errorf("ResourceNotFoundException: credential provider %s not found", name)
	}
	return arn, nil
}

func (s *simClients) DeleteProvider(_ context.Context, name string) error {
	s.record("DeleteProvider")
	if err := s.failureFor("DeleteProvider"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.providers[name]; !ok {
		return fmt.Errorf("ResourceNotFoundException: credential provider %s not found", name)
	}
	delete(s.providers, name)
	return nil
}

// ---------- runtimePinger ----------

func (s *simClients) PingRuntime(_ context.Context, runtimeARN string) error {
	s.record("PingRuntime")
	if err := s.failureFor("PingRuntime"); err != nil {
		return err
	}
	s.mu.Lock()
	s.pinged = append(s.pinged, runtimeARN)
	s.mu.Unlock()
	return nil
}
