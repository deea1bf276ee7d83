package models

import (
	"fmt"
	"maps"
	"reflect"
	"sort"
	"strings"

	"github.com/kubev2v/hypervisor-collector/pkg/errors"
)

const redacted = "********"

// sensitiveParams are never rendered when a backend is logged or printed.
var sensitiveParams = map[string]struct{}{
	"password":          {},
	"secret_key":        {},
	"secret_access_key": {},
	"sasl_password":     {},
	"token":             {},
}

// ConfigSource is one parsed configuration document.
type ConfigSource struct {
	// Path is the file the document was read from.
	Path string
	// Data is the parsed top level mapping.
	Data map[string]any
}

// BackendSpec is one configured hypervisor backend.
type BackendSpec struct {
	ID      string
	Type    string
	Enabled bool
	Params  map[string]any
	// Source is the document that declared the backend. It does not take part
	// in equality.
	Source string
}

// Equal reports whether two declarations are structurally identical.
func (b BackendSpec) Equal(other BackendSpec) bool {
	if b.ID != other.ID || b.Type != other.Type || b.Enabled != other.Enabled {
		return false
	}
	if len(b.Params) == 0 && len(other.Params) == 0 {
		return true
	}
	return reflect.DeepEqual(b.Params, other.Params)
}

// Redacted returns a copy of the params with sensitive values masked.
func (b BackendSpec) Redacted() map[string]any {
	out := maps.Clone(b.Params)
	if out == nil {
		out = map[string]any{}
	}
	for k := range out {
		if _, ok := sensitiveParams[strings.ToLower(k)]; ok {
			out[k] = redacted
		}
	}
	return out
}

func (b BackendSpec) String() string {
	params := b.Redacted()
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	fmt.Fprintf(&sb, "{id: %s, type: %s, enabled: %t", b.ID, b.Type, b.Enabled)
	for _, k := range keys {
		fmt.Fprintf(&sb, ", %s: %v", k, params[k])
	}
	sb.WriteString("}")
	return sb.String()
}

// ConfigData is the resolved configuration handed to the scheduler. It is
// read-only once returned by the merge.
type ConfigData struct {
	// Backends in first-seen order.
	Backends    []BackendSpec
	Credentials *SccCredentials
	// Sources lists the documents merged, in load order.
	Sources []string
	// Errors recorded while loading and merging. None of them stopped the merge.
	Errors []*errors.Error
}

// EnabledBackends returns the backends that should be collected.
func (c *ConfigData) EnabledBackends() []BackendSpec {
	var out []BackendSpec
	for _, b := range c.Backends {
		if b.Enabled {
			out = append(out, b)
		}
	}
	return out
}

// Valid reports whether no configuration error was recorded.
func (c *ConfigData) Valid() bool {
	return len(c.Errors) == 0
}

// ErrorMessages renders the recorded errors for display.
func (c *ConfigData) ErrorMessages() []string {
	msgs := make([]string, 0, len(c.Errors))
	for _, e := range c.Errors {
		msgs = append(msgs, e.Error())
	}
	return msgs
}

// ErrorsOfKind returns the recorded errors of the given kind.
func (c *ConfigData) ErrorsOfKind(kind errors.Kind) []*errors.Error {
	var out []*errors.Error
	for _, e := range c.Errors {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}
