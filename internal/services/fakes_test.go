package services_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kubev2v/hypervisor-collector/internal/gatherers"
	"github.com/kubev2v/hypervisor-collector/internal/models"
)

var errUnreachable = errors.New("backend unreachable")

// fakeBackends records the calls made to fake gatherers. The behaviour of a
// fake gatherer is driven by its params:
//
//	host:   name of the collected host
//	fail:   return errUnreachable
//	block:  wait for the context
//	hang:   ignore the context until release is closed
//	delay:  sleep before returning
//	panic:  panic while the gatherer is created
type fakeBackends struct {
	mu      sync.Mutex
	calls   map[string]int
	params  map[string]map[string]any
	release chan struct{}

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func newFakeBackends() *fakeBackends {
	return &fakeBackends{
		calls:   make(map[string]int),
		params:  make(map[string]map[string]any),
		release: make(chan struct{}),
	}
}

func (f *fakeBackends) Calls(host string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[host]
}

func (f *fakeBackends) Params(host string) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.params[host]
}

func (f *fakeBackends) Release() {
	close(f.release)
}

func (f *fakeBackends) Descriptor() gatherers.Descriptor {
	return gatherers.Descriptor{
		Type:     "Fake",
		Required: []string{"host"},
		New: func(params map[string]any) (gatherers.Gatherer, error) {
			if msg, ok := params["panic"].(string); ok {
				panic(msg)
			}
			return &fakeGatherer{backends: f, params: params}, nil
		},
	}
}

func (f *fakeBackends) Registry() *gatherers.Registry {
	r := gatherers.NewRegistry()
	if err := r.Register(f.Descriptor()); err != nil {
		panic(err)
	}
	return r
}

type fakeGatherer struct {
	backends *fakeBackends
	params   map[string]any
}

func (g *fakeGatherer) Collect(ctx context.Context) (models.HypervisorDetails, error) {
	f := g.backends
	host, _ := g.params["host"].(string)

	f.mu.Lock()
	f.calls[host]++
	f.params[host] = g.params
	f.mu.Unlock()

	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxInFlight.Load()
		if n <= m || f.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}

	// mutate the params to prove the caller handed us a copy
	g.params["touched"] = true

	if d, ok := g.params["delay"].(time.Duration); ok {
		time.Sleep(d)
	}
	if hang, _ := g.params["hang"].(bool); hang {
		<-f.release
		return nil, errors.New("released")
	}
	if block, _ := g.params["block"].(bool); block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if fail, _ := g.params["fail"].(bool); fail {
		return nil, errUnreachable
	}

	return models.HypervisorDetails{
		host: models.HostDetails{
			Name: host,
			ID:   host + "-id",
			VMs:  map[string]models.VMDetails{"vm1": {UUID: host + "-vm1", State: "running"}},
		},
	}, nil
}

func fakeBackend(id string, params map[string]any) models.BackendSpec {
	p := map[string]any{"host": id}
	for k, v := range params {
		p[k] = v
	}
	return models.BackendSpec{ID: id, Type: "Fake", Enabled: true, Params: p}
}
