package stack

import (
	"fmt"
	"sort"
	"sync"
)

// Output key constants. Each published output is a plain string threaded into
// dependent units and exported for operator consumption after deployment.
const (
	OutImageRef              = "image_ref"
	OutRepositoryURI         = "repository_uri"
	OutRepositoryARN         = "repository_arn"
	OutRuntimeRoleARN        = "runtime_role_arn"
	OutGatewayRoleARN        = "gateway_role_arn"
	OutSecretName            = "secret_name"
	OutSecretARN             = "secret_arn"
	OutMemoryID              = "memory_id"
	OutMemoryARN             = "memory_arn"
	OutRuntimeID             = "runtime_id"
	OutRuntimeARN            = "runtime_arn"
	OutCredentialProviderARN = "credential_provider_arn"
	OutGatewayID             = "gateway_id"
	OutGatewayARN            = "gateway_arn"
	OutGatewayURL            = "gateway_url"
	OutGatewayTargetID       = "gateway_target_id"
)

// Outputs collects the values published by deployment units. Values are
// copied strings; once captured, later units do not observe further changes
// to earlier ones.
type Outputs struct {
	mu     sync.Mutex
	values map[string]string
}

// NewOutputs returns an empty output set.
func NewOutputs() *Outputs {
	return &Outputs{values: make(map[string]string)}
}

// Publish records a single output value. Re-publishing a key within one
// deployment pass indicates a graph-construction bug and panics.
func (o *Outputs) Publish(key, value string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, exists := o.values[key]; exists {
		panic(fmt.Sprintf("output %q published twice", key))
	}
	o.values[key] = value
}

// Get returns the value for key and whether it has been published.
func (o *Outputs) Get(key string) (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	v, ok := o.values[key]
	return v, ok
}

// Require returns the value for key, or an error if the producing unit has
// not published it. A missing required output indicates an under-declared
// ordering edge.
func (o *Outputs) Require(key string) (string, error) {
	v, ok := o.Get(key)
	if !ok {
		return "", fmt.Errorf("required output %q has not been published (missing ordering edge?)", key)
	}
	return v, nil
}

// Snapshot returns a copy of all published outputs.
func (o *Outputs) Snapshot() map[string]string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[string]string, len(o.values))
	for k, v := range o.values {
		out[k] = v
	}
	return out
}

// Exported returns the outputs keyed by their operator-facing export names,
// scoped by the application slug (e.g. "placefinder-mcp/runtime_arn").
func (o *Outputs) Exported(app string) map[string]string {
	return ExportOutputs(app, o.Snapshot())
}

// ExportOutputs returns persisted outputs keyed by their operator-facing
// export names, scoped by the application slug.
func ExportOutputs(app string, outputs map[string]string) map[string]string {
	out := make(map[string]string, len(outputs))
	prefix := repositoryName(app) + "/"
	for k, v := range outputs {
		out[prefix+k] = v
	}
	return out
}

// sortedKeys returns the keys of a map in sorted order.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
