package gatherers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/kubev2v/hypervisor-collector/internal/models"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrDuplicateType      = errors.New("backend type already registered")
	ErrMissingParams      = errors.New("missing required parameters")
)

// Gatherer collects hypervisor details from one configured backend.
type Gatherer interface {
	Collect(ctx context.Context) (models.HypervisorDetails, error)
}

// Factory builds a gatherer from the backend parameters. It must not
// contact the backend.
type Factory func(params map[string]any) (Gatherer, error)

// Descriptor registers one backend type.
type Descriptor struct {
	Type     string
	Aliases  []string
	Required []string
	New      Factory
}

// Validate checks that params can instantiate a gatherer.
func (d Descriptor) Validate(params map[string]any) error {
	var missing []string
	for _, r := range d.Required {
		v, ok := params[r]
		if !ok || v == nil || v == "" {
			missing = append(missing, r)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w for %s: %s", ErrMissingParams, d.Type, strings.Join(missing, ", "))
	}
	_, err := d.New(params)
	return err
}

// Registry maps backend type names, case-insensitively, to descriptors.
type Registry struct {
	mu          sync.RWMutex
	descriptors map[string]Descriptor
	types       []string
}

func NewRegistry() *Registry {
	return &Registry{descriptors: make(map[string]Descriptor)}
}

func (r *Registry) Register(d Descriptor) error {
	if d.Type == "" || d.New == nil {
		return fmt.Errorf("descriptor requires a type and a factory")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	names := append([]string{d.Type}, d.Aliases...)
	for _, n := range names {
		if _, ok := r.descriptors[strings.ToLower(n)]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateType, n)
		}
	}
	for _, n := range names {
		r.descriptors[strings.ToLower(n)] = d
	}
	r.types = append(r.types, d.Type)
	sort.Strings(r.types)

	return nil
}

// Resolve looks up a type name or alias.
func (r *Registry) Resolve(typ string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.descriptors[strings.ToLower(typ)]
	return d, ok
}

// Types returns the canonical names of the registered types.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]string(nil), r.types...)
}

// DefaultRegistry returns a registry holding every built-in gatherer.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, d := range []Descriptor{VMwareDescriptor(), LibvirtDescriptor(), FileDescriptor()} {
		if err := r.Register(d); err != nil {
			panic(err)
		}
	}
	return r
}
