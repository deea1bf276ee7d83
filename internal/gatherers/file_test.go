package gatherers_test

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/kubev2v/hypervisor-collector/internal/gatherers"
)

const staticDetails = `
esx1.example.com:
  id: 4c4c4544-0051-3010-8057-b2c04f4d3232
  capabilities:
    cpu_topology:
      arch: x86_64
      sockets: 2
      cores: 16
      threads: 32
    ram_mb: 262144
    type: vmware
  vms:
    db01:
      uuid: 4230a41c-9f3b-5a6e-1b7c-6ab1c0e1f001
      vmState: running
kvm1.example.com:
  id: 1f9a1c2e-0000-4000-8000-000000000001
`

var _ = Describe("File", func() {
	var path string

	BeforeEach(func() {
		path = filepath.Join(GinkgoT().TempDir(), "details.yaml")
	})

	It("should read the details document", func() {
		Expect(os.WriteFile(path, []byte(staticDetails), 0o600)).To(Succeed())

		g, err := gatherers.NewFile(map[string]any{"path": path})
		Expect(err).NotTo(HaveOccurred())

		details, err := g.Collect(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(details).To(HaveLen(2))

		esx := details["esx1.example.com"]
		Expect(esx.Name).To(Equal("esx1.example.com"))
		Expect(esx.Capabilities.CPUTopology.Sockets).To(Equal(2))
		Expect(esx.Capabilities.RAMMB).To(BeEquivalentTo(262144))
		Expect(esx.VMs).To(HaveKeyWithValue("db01", HaveField("State", "running")))

		Expect(details["kvm1.example.com"].VMs).NotTo(BeNil())
	})

	It("should fail on a missing document", func() {
		g, err := gatherers.NewFile(map[string]any{"path": path})
		Expect(err).NotTo(HaveOccurred())

		_, err = g.Collect(context.Background())
		Expect(os.IsNotExist(err)).To(BeTrue())
	})

	It("should fail on a malformed document", func() {
		Expect(os.WriteFile(path, []byte("- not\n- a mapping\n"), 0o600)).To(Succeed())

		g, err := gatherers.NewFile(map[string]any{"path": path})
		Expect(err).NotTo(HaveOccurred())

		_, err = g.Collect(context.Background())
		Expect(err).To(MatchError(ContainSubstring("failed to parse")))
	})

	It("should not read when the context is done", func() {
		g, err := gatherers.NewFile(map[string]any{"path": path})
		Expect(err).NotTo(HaveOccurred())

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err = g.Collect(ctx)
		Expect(err).To(MatchError(context.Canceled))
	})
})
