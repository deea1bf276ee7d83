package services_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/kubev2v/hypervisor-collector/internal/gatherers"
	"github.com/kubev2v/hypervisor-collector/internal/models"
	"github.com/kubev2v/hypervisor-collector/internal/services"
	"github.com/kubev2v/hypervisor-collector/internal/sources"
	"github.com/kubev2v/hypervisor-collector/pkg/errors"
)

func source(path string, backends ...any) models.ConfigSource {
	return models.ConfigSource{Path: path, Data: map[string]any{"backends": backends}}
}

func backend(fields ...any) map[string]any {
	m := map[string]any{}
	for i := 0; i+1 < len(fields); i += 2 {
		m[fields[i].(string)] = fields[i+1]
	}
	return m
}

var _ = Describe("Merge", func() {
	Context("empty configuration", func() {
		It("should record an empty configuration when no source declares backends", func() {
			data, err := services.Merge([]models.ConfigSource{
				{Path: "a.yaml", Data: map[string]any{}},
				{Path: "b.yaml", Data: map[string]any{"backends": nil}},
				source("c.yaml"),
			}, nil, services.MergeOptions{})

			Expect(err).NotTo(HaveOccurred())
			Expect(data.Backends).To(BeEmpty())
			Expect(data.Sources).To(Equal([]string{"a.yaml", "b.yaml", "c.yaml"}))
			Expect(data.ErrorsOfKind(errors.KindEmptyConfiguration)).To(HaveLen(1))
			Expect(data.Valid()).To(BeFalse())
		})

		It("should fail in strict mode", func() {
			data, err := services.Merge([]models.ConfigSource{source("a.yaml")}, nil, services.MergeOptions{Strict: true})

			Expect(data).To(BeNil())
			Expect(err).To(MatchError(errors.Sentinel(errors.KindEmptyConfiguration)))
			Expect(errors.IsFatal(err)).To(BeTrue())
		})

		It("should fail without sources", func() {
			_, err := services.Merge(nil, nil, services.MergeOptions{})
			Expect(err).To(MatchError(errors.Sentinel(errors.KindNoSourcesFound)))
		})
	})

	Context("duplicate backend ids", func() {
		It("should keep the first declaration and record one conflict", func() {
			data, err := services.Merge([]models.ConfigSource{
				source("a.yaml", backend("id", "vc1", "type", "vcenter", "host", "a")),
				source("b.yaml", backend("id", "vc1", "type", "vcenter", "host", "b")),
			}, nil, services.MergeOptions{})

			Expect(err).NotTo(HaveOccurred())
			Expect(data.Backends).To(HaveLen(1))
			Expect(data.Backends[0].Params).To(HaveKeyWithValue("host", "a"))
			Expect(data.Backends[0].Source).To(Equal("a.yaml"))

			conflicts := data.ErrorsOfKind(errors.KindBackendConflict)
			Expect(conflicts).To(HaveLen(1))
			Expect(conflicts[0].Context).To(HaveKeyWithValue("backend_id", "vc1"))
			Expect(conflicts[0].Context).To(HaveKeyWithValue("first_source", "a.yaml"))
			Expect(conflicts[0].Context).To(HaveKeyWithValue("source", "b.yaml"))
			Expect(conflicts[0].Error()).To(ContainSubstring("vc1"))
		})

		It("should ignore identical declarations", func() {
			data, err := services.Merge([]models.ConfigSource{
				source("a.yaml", backend("id", "vc1", "type", "vcenter", "host", "a")),
				source("b.yaml", backend("id", "vc1", "type", "vcenter", "host", "a", "enabled", true)),
			}, nil, services.MergeOptions{})

			Expect(err).NotTo(HaveOccurred())
			Expect(data.Backends).To(HaveLen(1))
			Expect(data.Errors).To(BeEmpty())
		})

		It("should treat a different enabled flag as a conflict", func() {
			data, err := services.Merge([]models.ConfigSource{
				source("a.yaml", backend("id", "vc1", "type", "vcenter")),
				source("b.yaml", backend("id", "vc1", "type", "vcenter", "enabled", false)),
			}, nil, services.MergeOptions{})

			Expect(err).NotTo(HaveOccurred())
			Expect(data.Backends[0].Enabled).To(BeTrue())
			Expect(data.ErrorsOfKind(errors.KindBackendConflict)).To(HaveLen(1))
		})

		It("should detect duplicates within one source", func() {
			data, err := services.Merge([]models.ConfigSource{
				source("a.yaml",
					backend("id", "kvm1", "type", "Libvirt", "hostname", "h1"),
					backend("id", "kvm1", "type", "Libvirt", "hostname", "h2"),
				),
			}, nil, services.MergeOptions{})

			Expect(err).NotTo(HaveOccurred())
			Expect(data.Backends).To(HaveLen(1))
			Expect(data.ErrorsOfKind(errors.KindBackendConflict)).To(HaveLen(1))
		})
	})

	Context("structural validation", func() {
		It("should record and exclude malformed entries", func() {
			data, err := services.Merge([]models.ConfigSource{
				source("a.yaml",
					"not a mapping",
					backend("type", "vcenter"),
					backend("id", "", "type", "vcenter"),
					backend("id", "no-type"),
					backend("id", "bad-enabled", "type", "vcenter", "enabled", "yes"),
					backend("id", "ok", "type", "vcenter"),
				),
			}, nil, services.MergeOptions{})

			Expect(err).NotTo(HaveOccurred())
			Expect(data.Backends).To(HaveLen(1))
			Expect(data.Backends[0].ID).To(Equal("ok"))
			Expect(data.ErrorsOfKind(errors.KindInvalidBackend)).To(HaveLen(5))
			for _, e := range data.Errors {
				Expect(e.IsFatal()).To(BeFalse())
				Expect(e.Context).To(HaveKeyWithValue("source", "a.yaml"))
			}
		})

		It("should reject a backends key that is not a list", func() {
			data, err := services.Merge([]models.ConfigSource{
				{Path: "a.yaml", Data: map[string]any{"backends": map[string]any{"id": "vc1"}}},
				source("b.yaml", backend("id", "vc2", "type", "vcenter")),
			}, nil, services.MergeOptions{})

			Expect(err).NotTo(HaveOccurred())
			Expect(data.Backends).To(HaveLen(1))
			Expect(data.ErrorsOfKind(errors.KindInvalidBackend)).To(HaveLen(1))
		})

		It("should accept the legacy module key and default enabled to true", func() {
			data, err := services.Merge([]models.ConfigSource{
				source("a.yaml", backend("id", "vc1", "module", "VMware", "hostname", "vc")),
			}, nil, services.MergeOptions{})

			Expect(err).NotTo(HaveOccurred())
			Expect(data.Backends).To(ConsistOf(HaveField("Type", "VMware")))
			Expect(data.Backends[0].Enabled).To(BeTrue())
			Expect(data.Backends[0].Params).To(Equal(map[string]any{"hostname": "vc"}))
		})

		It("should keep first-seen order", func() {
			data, err := services.Merge([]models.ConfigSource{
				source("a.yaml", backend("id", "c", "type", "t"), backend("id", "a", "type", "t")),
				source("b.yaml", backend("id", "b", "type", "t"), backend("id", "a", "type", "t")),
			}, nil, services.MergeOptions{})

			Expect(err).NotTo(HaveOccurred())
			ids := []string{}
			for _, b := range data.Backends {
				ids = append(ids, b.ID)
			}
			Expect(ids).To(Equal([]string{"c", "a", "b"}))
		})
	})

	Context("with a registry", func() {
		var registry *gatherers.Registry

		BeforeEach(func() {
			registry = gatherers.DefaultRegistry()
		})

		It("should record unknown types", func() {
			data, err := services.Merge([]models.ConfigSource{
				source("a.yaml",
					backend("id", "hv1", "type", "HyperV"),
					backend("id", "f1", "type", "file", "path", "/tmp/details.yaml"),
				),
			}, registry, services.MergeOptions{})

			Expect(err).NotTo(HaveOccurred())
			Expect(data.Backends).To(HaveLen(1))
			Expect(data.Backends[0].Type).To(Equal("File"))

			unknown := data.ErrorsOfKind(errors.KindUnknownBackendType)
			Expect(unknown).To(HaveLen(1))
			Expect(unknown[0].Error()).To(ContainSubstring("HyperV"))
		})

		It("should record missing required parameters", func() {
			data, err := services.Merge([]models.ConfigSource{
				source("a.yaml", backend("id", "vc1", "type", "vcenter", "hostname", "vc")),
			}, registry, services.MergeOptions{})

			Expect(err).NotTo(HaveOccurred())
			Expect(data.Backends).To(BeEmpty())
			invalid := data.ErrorsOfKind(errors.KindInvalidBackend)
			Expect(invalid).To(HaveLen(1))
			Expect(invalid[0].Error()).To(ContainSubstring("username"))
			Expect(data.ErrorsOfKind(errors.KindEmptyConfiguration)).To(HaveLen(1))
		})

		It("should name an invalid redeclaration as a conflict", func() {
			data, err := services.Merge([]models.ConfigSource{
				source("a.yaml", backend("id", "vc1", "type", "VMware", "hostname", "vc", "username", "u", "password", "p")),
				source("b.yaml", backend("id", "vc1", "type", "vmware", "hostname", "vc")),
			}, registry, services.MergeOptions{})

			Expect(err).NotTo(HaveOccurred())
			Expect(data.Backends).To(HaveLen(1))
			Expect(data.Backends[0].Source).To(Equal("a.yaml"))
			Expect(data.ErrorsOfKind(errors.KindInvalidBackend)).To(BeEmpty())

			conflicts := data.ErrorsOfKind(errors.KindBackendConflict)
			Expect(conflicts).To(HaveLen(1))
			Expect(conflicts[0].Error()).To(ContainSubstring(`"vc1"`))
			Expect(conflicts[0].Context).To(HaveKeyWithValue("first_source", "a.yaml"))
		})

		It("should not report a conflict for the same declaration with an aliased type", func() {
			data, err := services.Merge([]models.ConfigSource{
				source("a.yaml", backend("id", "f1", "type", "File", "path", "/tmp/details.yaml")),
				source("b.yaml", backend("id", "f1", "type", "static", "path", "/tmp/details.yaml")),
			}, registry, services.MergeOptions{})

			Expect(err).NotTo(HaveOccurred())
			Expect(data.Backends).To(HaveLen(1))
			Expect(data.Errors).To(BeEmpty())
		})

		It("should not validate disabled backends", func() {
			data, err := services.Merge([]models.ConfigSource{
				source("a.yaml", backend("id", "vc1", "type", "vcenter", "enabled", false)),
			}, registry, services.MergeOptions{})

			Expect(err).NotTo(HaveOccurred())
			Expect(data.Backends).To(HaveLen(1))
			Expect(data.EnabledBackends()).To(BeEmpty())
			Expect(data.Errors).To(BeEmpty())
		})
	})

	Context("credentials", func() {
		withCreds := func(path, user, pass string) models.ConfigSource {
			src := source(path, backend("id", path, "type", "t"))
			src.Data["credentials"] = map[string]any{
				"scc": map[string]any{"username": user, "password": pass},
			}
			return src
		}

		It("should take the first declared credentials", func() {
			data, err := services.Merge([]models.ConfigSource{
				source("a.yaml", backend("id", "a", "type", "t")),
				withCreds("b.yaml", "SCC_1", "secret"),
				withCreds("c.yaml", "SCC_1", "secret"),
			}, nil, services.MergeOptions{RequireCredentials: true})

			Expect(err).NotTo(HaveOccurred())
			Expect(data.Credentials).To(Equal(&models.SccCredentials{Username: "SCC_1", Password: "secret"}))
			Expect(data.Errors).To(BeEmpty())
		})

		It("should record conflicting credentials", func() {
			data, err := services.Merge([]models.ConfigSource{
				withCreds("a.yaml", "SCC_1", "secret"),
				withCreds("b.yaml", "SCC_2", "other"),
			}, nil, services.MergeOptions{})

			Expect(err).NotTo(HaveOccurred())
			Expect(data.Credentials.Username).To(Equal("SCC_1"))
			Expect(data.ErrorsOfKind(errors.KindCredentialsConflict)).To(HaveLen(1))
		})

		It("should record missing credentials only when required", func() {
			srcs := []models.ConfigSource{withCreds("a.yaml", "SCC_1", "")}

			data, err := services.Merge(srcs, nil, services.MergeOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(data.Errors).To(BeEmpty())

			data, err = services.Merge(srcs, nil, services.MergeOptions{RequireCredentials: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(data.ErrorsOfKind(errors.KindMissingCredentials)).To(HaveLen(1))
		})

		It("should record malformed credentials", func() {
			src := source("a.yaml", backend("id", "a", "type", "t"))
			src.Data["credentials"] = map[string]any{"scc": "SCC_1:secret"}

			data, err := services.Merge([]models.ConfigSource{src}, nil, services.MergeOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(data.Credentials).To(BeNil())
			Expect(data.ErrorsOfKind(errors.KindInvalidCredentials)).To(HaveLen(1))
		})
	})
})

var _ = Describe("ConfigManager", func() {
	var dir string

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
	})

	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		Expect(os.WriteFile(path, []byte(content), 0o600)).To(Succeed())
		return path
	}

	It("should load, merge and carry the parse errors", func() {
		main := write("main.yaml", `
credentials:
  scc:
    username: SCC_1
    password: secret
backends:
  - id: vc1
    type: VMware
    hostname: vc.example.com
    username: admin
    password: p
`)
		write("10-broken.yaml", "backends: [")
		write("20-kvm.json", `{"backends": [{"id": "kvm1", "type": "kvm", "hostname": "kvm1.example.com", "port": "16510"}]}`)

		loader := sources.NewLoader(main, dir)
		data, err := services.NewConfigManager(loader, gatherers.DefaultRegistry(), services.MergeOptions{RequireCredentials: true}).Load()
		Expect(err).NotTo(HaveOccurred())

		Expect(data.Backends).To(HaveLen(2))
		Expect(data.Backends[0].ID).To(Equal("vc1"))
		Expect(data.Backends[1].Type).To(Equal("Libvirt"))
		Expect(data.Credentials.Complete()).To(BeTrue())
		Expect(data.Errors).To(HaveLen(1))
		Expect(data.Errors[0].Kind).To(Equal(errors.KindParseFailed))
		Expect(data.Sources).To(HaveLen(2))
	})

	It("should record an empty configuration when every source is broken", func() {
		write("broken.yaml", "backends: [")

		data, err := services.NewConfigManager(sources.NewLoader("", dir), nil, services.MergeOptions{}).Load()
		Expect(err).NotTo(HaveOccurred())
		Expect(data.ErrorsOfKind(errors.KindParseFailed)).To(HaveLen(1))
		Expect(data.ErrorsOfKind(errors.KindEmptyConfiguration)).To(HaveLen(1))
	})

	It("should return the fatal loader error", func() {
		_, err := services.NewConfigManager(sources.NewLoader(filepath.Join(dir, "missing.yaml"), filepath.Join(dir, "conf.d")), nil, services.MergeOptions{}).Load()
		Expect(err).To(MatchError(errors.Sentinel(errors.KindNoSourcesFound)))
	})
})
