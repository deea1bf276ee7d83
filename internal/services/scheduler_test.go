package services_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/kubev2v/hypervisor-collector/internal/gatherers"
	"github.com/kubev2v/hypervisor-collector/internal/models"
	"github.com/kubev2v/hypervisor-collector/internal/services"
	"github.com/kubev2v/hypervisor-collector/pkg/errors"
)

func ids[T any](items []T, id func(T) string) []string {
	out := make([]string, 0, len(items))
	for _, i := range items {
		out = append(out, id(i))
	}
	return out
}

func recordID(r models.HypervisorRecord) string   { return r.Backend.ID }
func failureID(f models.CollectionFailure) string { return f.BackendID }

var _ = Describe("CollectionScheduler", func() {
	var (
		backends *fakeBackends
		registry *gatherers.Registry
	)

	BeforeEach(func() {
		backends = newFakeBackends()
		registry = backends.Registry()
	})

	AfterEach(func() {
		select {
		case <-backends.release:
		default:
			backends.Release()
		}
	})

	It("should isolate failing backends", func() {
		data := &models.ConfigData{Backends: []models.BackendSpec{
			fakeBackend("b1", nil),
			fakeBackend("b2", map[string]any{"fail": true}),
			fakeBackend("b3", nil),
			fakeBackend("b4", map[string]any{"fail": true}),
			fakeBackend("b5", nil),
		}}

		s := services.NewCollectionScheduler(data, registry)
		Expect(s.State()).To(Equal(models.SchedulerStateIdle))
		Expect(s.RunID()).NotTo(BeEmpty())
		Expect(s.RunID()).NotTo(Equal(services.NewCollectionScheduler(data, registry).RunID()))

		Expect(s.Run(context.Background())).To(Succeed())
		Expect(s.State()).To(Equal(models.SchedulerStateCompleted))

		Expect(ids(s.Hypervisors(), recordID)).To(Equal([]string{"b1", "b3", "b5"}))
		Expect(ids(s.Failures(), failureID)).To(Equal([]string{"b2", "b4"}))
		Expect(s.Results()).To(HaveLen(5))

		Expect(s.Hypervisors()[0].Details).To(HaveKey("b1"))
		Expect(s.Hypervisors()[0].CollectedAt).NotTo(BeZero())

		for _, f := range s.Failures() {
			Expect(f.BackendType).To(Equal("Fake"))
			Expect(f.Message).To(ContainSubstring(errUnreachable.Error()))
			Expect(f.Err).To(MatchError(errors.Sentinel(errors.KindCollectionFailed)))
		}
	})

	It("should record a backend whose worker panicked", func() {
		data := &models.ConfigData{Backends: []models.BackendSpec{
			fakeBackend("b1", map[string]any{"panic": "factory exploded"}),
			fakeBackend("b2", nil),
		}}
		s := services.NewCollectionScheduler(data, registry)

		Expect(s.Run(context.Background())).To(Succeed())
		Expect(ids(s.Hypervisors(), recordID)).To(Equal([]string{"b2"}))
		Expect(s.Failures()).To(HaveLen(1))

		f := s.Failures()[0]
		Expect(f.BackendID).To(Equal("b1"))
		Expect(f.Err).To(MatchError(errors.Sentinel(errors.KindCollectionFailed)))
		Expect(f.Message).To(HavePrefix("collection failed"))
		Expect(f.Message).To(ContainSubstring("factory exploded"))
		Expect(f.Message).NotTo(ContainSubstring("%!"))
	})

	It("should never pass disabled backends to a gatherer", func() {
		disabled := fakeBackend("off", nil)
		disabled.Enabled = false

		data := &models.ConfigData{Backends: []models.BackendSpec{fakeBackend("on", nil), disabled}}
		s := services.NewCollectionScheduler(data, registry)

		Expect(s.Run(context.Background())).To(Succeed())
		Expect(backends.Calls("off")).To(BeZero())
		Expect(backends.Calls("on")).To(Equal(1))
		Expect(ids(s.Hypervisors(), recordID)).To(Equal([]string{"on"}))
		Expect(s.Failures()).To(BeEmpty())
	})

	It("should complete when every backend is disabled", func() {
		disabled := fakeBackend("off", nil)
		disabled.Enabled = false

		s := services.NewCollectionScheduler(&models.ConfigData{Backends: []models.BackendSpec{disabled}}, registry)

		Expect(s.Run(context.Background())).To(Succeed())
		Expect(s.Hypervisors()).To(BeEmpty())
		Expect(s.Failures()).To(BeEmpty())
		Expect(s.State()).To(Equal(models.SchedulerStateCompleted))
	})

	It("should record an unknown backend type as a failure", func() {
		data := &models.ConfigData{Backends: []models.BackendSpec{
			{ID: "hv1", Type: "HyperV", Enabled: true},
		}}
		s := services.NewCollectionScheduler(data, registry)

		Expect(s.Run(context.Background())).To(Succeed())
		Expect(s.Hypervisors()).To(BeEmpty())
		Expect(s.Failures()).To(HaveLen(1))
		Expect(s.Failures()[0].Message).To(ContainSubstring("HyperV"))
		Expect(s.Failures()[0].Err).To(MatchError(errors.Sentinel(errors.KindUnknownBackendType)))
	})

	It("should hand gatherers a copy of the parameters", func() {
		data := &models.ConfigData{Backends: []models.BackendSpec{fakeBackend("b1", nil)}}
		s := services.NewCollectionScheduler(data, registry)

		Expect(s.Run(context.Background())).To(Succeed())
		Expect(backends.Params("b1")).To(HaveKey("touched"))
		Expect(data.Backends[0].Params).NotTo(HaveKey("touched"))
	})

	It("should bound the number of concurrent collections", func() {
		var specs []models.BackendSpec
		for _, id := range []string{"b1", "b2", "b3", "b4", "b5", "b6"} {
			specs = append(specs, fakeBackend(id, map[string]any{"delay": 20 * time.Millisecond}))
		}
		s := services.NewCollectionScheduler(&models.ConfigData{Backends: specs}, registry, services.WithWorkers(2))

		Expect(s.Run(context.Background())).To(Succeed())
		Expect(s.Hypervisors()).To(HaveLen(6))
		Expect(backends.maxInFlight.Load()).To(BeNumerically("<=", 2))
	})

	It("should time out a hung backend without stalling the others", func() {
		data := &models.ConfigData{Backends: []models.BackendSpec{
			fakeBackend("hung", map[string]any{"hang": true}),
			fakeBackend("ok", nil),
		}}
		s := services.NewCollectionScheduler(data, registry, services.WithBackendTimeout(100*time.Millisecond))

		start := time.Now()
		Expect(s.Run(context.Background())).To(Succeed())
		Expect(time.Since(start)).To(BeNumerically("<", 5*time.Second))

		Expect(ids(s.Hypervisors(), recordID)).To(Equal([]string{"ok"}))
		Expect(s.Failures()).To(HaveLen(1))
		Expect(s.Failures()[0].Err).To(MatchError(errors.Sentinel(errors.KindTimeout)))
	})

	It("should keep collected data when the run is cancelled", func() {
		data := &models.ConfigData{Backends: []models.BackendSpec{
			fakeBackend("done", nil),
			fakeBackend("blocked", map[string]any{"block": true}),
			fakeBackend("queued", nil),
		}}
		s := services.NewCollectionScheduler(data, registry, services.WithWorkers(2))

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			defer GinkgoRecover()
			defer cancel()
			Eventually(func() int { return backends.Calls("blocked") }).Should(Equal(1))
			Eventually(func() []string { return ids(s.Hypervisors(), recordID) }).Should(ContainElement("done"))
		}()

		Expect(s.Run(ctx)).To(Succeed())
		Expect(s.State()).To(Equal(models.SchedulerStateCompleted))

		Expect(s.Results()).To(HaveLen(3))
		Expect(ids(s.Failures(), failureID)).To(ContainElement("blocked"))
		for _, f := range s.Failures() {
			Expect(f.Err).To(MatchError(errors.Sentinel(errors.KindCancelled)))
		}
		Expect(ids(s.Hypervisors(), recordID)).To(ContainElement("done"))
	})

	It("should record metrics", func() {
		metrics := services.NewMetrics()
		data := &models.ConfigData{Backends: []models.BackendSpec{
			fakeBackend("b1", nil),
			fakeBackend("b2", map[string]any{"fail": true}),
		}}
		s := services.NewCollectionScheduler(data, registry, services.WithMetrics(metrics))
		Expect(s.Run(context.Background())).To(Succeed())

		families, err := metrics.Registry().Gather()
		Expect(err).NotTo(HaveOccurred())
		names := []string{}
		for _, f := range families {
			names = append(names, f.GetName())
		}
		Expect(names).To(ContainElements(
			"hypervisor_collector_collections_total",
			"hypervisor_collector_hosts",
			"hypervisor_collector_last_run_timestamp_seconds",
		))
	})

	Context("preconditions", func() {
		It("should reject a configuration without backends", func() {
			err := services.NewCollectionScheduler(&models.ConfigData{}, registry).Run(context.Background())
			Expect(err).To(MatchError(errors.Sentinel(errors.KindInvalidConfig)))

			err = services.NewCollectionScheduler(nil, registry).Run(context.Background())
			Expect(err).To(MatchError(errors.Sentinel(errors.KindInvalidConfig)))
		})

		It("should run only once", func() {
			data := &models.ConfigData{Backends: []models.BackendSpec{fakeBackend("b1", nil)}}
			s := services.NewCollectionScheduler(data, registry)

			Expect(s.Run(context.Background())).To(Succeed())
			err := s.Run(context.Background())
			Expect(err).To(MatchError(errors.Sentinel(errors.KindAlreadyRun)))
			Expect(errors.IsFatal(err)).To(BeTrue())
			Expect(backends.Calls("b1")).To(Equal(1))
			Expect(s.Hypervisors()).To(HaveLen(1))
		})
	})
})

var _ = Describe("HypervisorCollector", func() {
	It("should report its state", func() {
		backends := newFakeBackends()
		c := services.NewHypervisorCollector(fakeBackend("b1", map[string]any{"fail": true}), backends.Registry(), time.Second)
		Expect(c.GetStatus().State).To(Equal(models.CollectorStateReady))

		r := c.Collect(context.Background())
		Expect(r.Succeeded()).To(BeFalse())
		Expect(r.Duration).To(BeNumerically(">=", 0))

		status := c.GetStatus()
		Expect(status.BackendID).To(Equal("b1"))
		Expect(status.State).To(Equal(models.CollectorStateError))
		Expect(status.Error).To(ContainSubstring(errUnreachable.Error()))
	})
})
