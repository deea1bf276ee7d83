package gatherers

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/digitalocean/go-libvirt"
	"github.com/digitalocean/go-libvirt/socket/dialers"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kubev2v/hypervisor-collector/internal/models"
)

type LibvirtParams struct {
	RetryParams `mapstructure:",squash"`
	Hostname    string        `mapstructure:"hostname"`
	Port        int           `mapstructure:"port" default:"16509"`
	Socket      string        `mapstructure:"socket"`
	DialTimeout time.Duration `mapstructure:"dial_timeout" default:"30s"`
}

// Libvirt collects a KVM host and its domains over the libvirt RPC protocol.
type Libvirt struct {
	params LibvirtParams
}

func LibvirtDescriptor() Descriptor {
	return Descriptor{
		Type:    "Libvirt",
		Aliases: []string{"kvm"},
		New:     NewLibvirt,
	}
}

func NewLibvirt(params map[string]any) (Gatherer, error) {
	var p LibvirtParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Hostname == "" && p.Socket == "" {
		return nil, fmt.Errorf("%w for Libvirt: hostname or socket", ErrMissingParams)
	}
	if p.Hostname != "" && p.Socket != "" {
		return nil, fmt.Errorf("hostname and socket are mutually exclusive")
	}
	return &Libvirt{params: p}, nil
}

func (l *Libvirt) endpoint() string {
	if l.params.Socket != "" {
		return "unix://" + l.params.Socket
	}
	return fmt.Sprintf("tcp://%s:%d", l.params.Hostname, l.params.Port)
}

func (l *Libvirt) Collect(ctx context.Context) (models.HypervisorDetails, error) {
	return retry(ctx, l.params.RetryParams, l.endpoint(), l.collect)
}

func (l *Libvirt) collect(ctx context.Context) (models.HypervisorDetails, error) {
	var conn *libvirt.Libvirt
	if l.params.Socket != "" {
		conn = libvirt.NewWithDialer(dialers.NewLocal(
			dialers.WithSocket(l.params.Socket),
			dialers.WithLocalTimeout(l.params.DialTimeout),
		))
	} else {
		conn = libvirt.NewWithDialer(dialers.NewRemote(
			l.params.Hostname,
			dialers.UsePort(strconv.Itoa(l.params.Port)),
			dialers.WithRemoteTimeout(l.params.DialTimeout),
		))
	}

	if err := conn.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", l.endpoint(), err)
	}
	// The RPC calls take no context: closing the connection unblocks them.
	stop := context.AfterFunc(ctx, func() { _ = conn.Disconnect() })
	defer func() {
		if stop() {
			_ = conn.Disconnect()
		}
	}()

	hostname, err := conn.ConnectGetHostname()
	if err != nil {
		return nil, fmt.Errorf("failed to get hostname: %w", err)
	}

	hvType, err := conn.ConnectGetType()
	if err != nil {
		return nil, fmt.Errorf("failed to get hypervisor type: %w", err)
	}

	model, memory, _, _, nodes, sockets, cores, threads, err := conn.NodeGetInfo()
	if err != nil {
		return nil, fmt.Errorf("failed to get node info: %w", err)
	}

	domains, _, err := conn.ConnectListAllDomains(1, libvirt.ConnectListDomainsActive|libvirt.ConnectListDomainsInactive)
	if err != nil {
		return nil, fmt.Errorf("failed to list domains: %w", err)
	}

	infos := make([]domainInfo, 0, len(domains))
	for _, d := range domains {
		state, _, err := conn.DomainGetState(d, 0)
		if err != nil {
			zap.S().Named("gatherer").Warnw("failed to get domain state", "domain", d.Name, "error", err)
			state = int32(libvirt.DomainNostate)
		}
		infos = append(infos, domainInfo{
			Name:  d.Name,
			UUID:  uuid.UUID(d.UUID),
			State: libvirt.DomainState(state),
		})
	}

	node := nodeInfo{
		Hostname: hostname,
		Type:     hvType,
		Arch:     int8String(model[:]),
		MemoryKB: memory,
		Nodes:    nodes,
		Sockets:  sockets,
		Cores:    cores,
		Threads:  threads,
	}

	return libvirtDetails(node, infos), nil
}

type nodeInfo struct {
	Hostname string
	Type     string
	Arch     string
	MemoryKB uint64
	Nodes    int32
	Sockets  int32
	Cores    int32
	Threads  int32
}

type domainInfo struct {
	Name  string
	UUID  uuid.UUID
	State libvirt.DomainState
}

func libvirtDetails(node nodeInfo, domains []domainInfo) models.HypervisorDetails {
	sockets := int(node.Sockets) * int(max(node.Nodes, 1))
	cores := sockets * int(node.Cores)

	host := models.HostDetails{
		Name: node.Hostname,
		// Stable id derived from the host name.
		ID: uuid.NewSHA1(uuid.NameSpaceDNS, []byte(node.Hostname)).String(),
		Capabilities: models.Capabilities{
			CPUTopology: models.CPUTopology{
				Arch:    node.Arch,
				Sockets: sockets,
				Cores:   cores,
				Threads: cores * int(max(node.Threads, 1)),
			},
			RAMMB: int64(node.MemoryKB / 1024),
			Type:  libvirtType(node.Type),
		},
		VMs: make(map[string]models.VMDetails, len(domains)),
	}

	for _, d := range domains {
		host.VMs[d.Name] = models.VMDetails{
			UUID:  d.UUID.String(),
			State: libvirtState(d.State),
		}
	}

	return models.HypervisorDetails{node.Hostname: host}
}

func libvirtType(t string) string {
	t = strings.ToLower(t)
	if t == "qemu" {
		return "kvm"
	}
	return t
}

func libvirtState(s libvirt.DomainState) string {
	switch s {
	case libvirt.DomainRunning, libvirt.DomainBlocked:
		return vmStateRunning
	case libvirt.DomainPaused, libvirt.DomainPmsuspended:
		return vmStatePaused
	case libvirt.DomainShutdown, libvirt.DomainShutoff, libvirt.DomainCrashed:
		return vmStateStopped
	default:
		return vmStateUnknown
	}
}

func int8String(b []int8) string {
	buf := make([]byte, 0, len(b))
	for _, c := range b {
		buf = append(buf, byte(c))
	}
	if i := bytes.IndexByte(buf, 0); i >= 0 {
		buf = buf[:i]
	}
	return string(buf)
}
