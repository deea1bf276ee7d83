package gatherers

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/vmware/govmomi"
	"github.com/vmware/govmomi/session"
	"github.com/vmware/govmomi/view"
	"github.com/vmware/govmomi/vim25"
	"github.com/vmware/govmomi/vim25/mo"
	"github.com/vmware/govmomi/vim25/soap"
	"github.com/vmware/govmomi/vim25/types"
	"go.uber.org/zap"

	"github.com/kubev2v/hypervisor-collector/internal/models"
)

const (
	vmStateRunning = "running"
	vmStateStopped = "stopped"
	vmStatePaused  = "paused"
	vmStateUnknown = "unknown"
)

type VMwareParams struct {
	RetryParams `mapstructure:",squash"`
	Hostname    string `mapstructure:"hostname"`
	Port        int    `mapstructure:"port" default:"443"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	Insecure    bool   `mapstructure:"insecure"`
}

// VMware collects ESXi hosts and their VMs from a vCenter or a standalone ESXi.
type VMware struct {
	params VMwareParams
	url    *url.URL
}

func VMwareDescriptor() Descriptor {
	return Descriptor{
		Type:     "VMware",
		Aliases:  []string{"vcenter", "esxi"},
		Required: []string{"hostname", "username", "password"},
		New:      NewVMware,
	}
}

func NewVMware(params map[string]any) (Gatherer, error) {
	var p VMwareParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	u, err := parseVCenterURL(p)
	if err != nil {
		return nil, err
	}

	return &VMware{params: p, url: u}, nil
}

func (v *VMware) Collect(ctx context.Context) (models.HypervisorDetails, error) {
	return retry(ctx, v.params.RetryParams, v.url.Host, v.collect)
}

func (v *VMware) collect(ctx context.Context) (models.HypervisorDetails, error) {
	client, err := v.login(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = client.Logout(context.Background())
		client.CloseIdleConnections()
	}()

	m := view.NewManager(client.Client)

	hostView, err := m.CreateContainerView(ctx, client.ServiceContent.RootFolder, []string{"HostSystem"}, true)
	if err != nil {
		return nil, fmt.Errorf("failed to create host view: %w", err)
	}
	defer func() { _ = hostView.Destroy(context.Background()) }()

	var hosts []mo.HostSystem
	if err := hostView.Retrieve(ctx, []string{"HostSystem"}, []string{"name", "summary"}, &hosts); err != nil {
		return nil, fmt.Errorf("failed to retrieve hosts: %w", err)
	}

	vmView, err := m.CreateContainerView(ctx, client.ServiceContent.RootFolder, []string{"VirtualMachine"}, true)
	if err != nil {
		return nil, fmt.Errorf("failed to create vm view: %w", err)
	}
	defer func() { _ = vmView.Destroy(context.Background()) }()

	var vms []mo.VirtualMachine
	if err := vmView.Retrieve(ctx, []string{"VirtualMachine"}, []string{"summary"}, &vms); err != nil {
		return nil, fmt.Errorf("failed to retrieve vms: %w", err)
	}

	zap.S().Named("gatherer").Debugw("vmware inventory retrieved", "host", v.url.Host, "hosts", len(hosts), "vms", len(vms))

	return vmwareDetails(hosts, vms), nil
}

func (v *VMware) login(ctx context.Context) (*govmomi.Client, error) {
	vimClient, err := vim25.NewClient(ctx, soap.NewClient(v.url, v.params.Insecure))
	if err != nil {
		return nil, err
	}

	client := &govmomi.Client{
		SessionManager: session.NewManager(vimClient),
		Client:         vimClient,
	}

	if err := client.Login(ctx, v.url.User); err != nil {
		if strings.Contains(err.Error(), "Login failure") ||
			(strings.Contains(err.Error(), "incorrect") && strings.Contains(err.Error(), "password")) {
			return nil, fmt.Errorf("%s: %w", v.url.Host, ErrInvalidCredentials)
		}
		return nil, err
	}

	return client, nil
}

func parseVCenterURL(p VMwareParams) (*url.URL, error) {
	if p.Hostname == "" {
		return nil, fmt.Errorf("hostname is empty")
	}

	host := p.Hostname
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, strconv.Itoa(p.Port))
	}

	u, err := url.ParseRequestURI("https://" + host + "/sdk")
	if err != nil {
		return nil, err
	}
	u.User = url.UserPassword(p.Username, p.Password)
	return u, nil
}

func vmwareDetails(hosts []mo.HostSystem, vms []mo.VirtualMachine) models.HypervisorDetails {
	details := make(models.HypervisorDetails, len(hosts))
	names := make(map[string]string, len(hosts))

	for _, h := range hosts {
		host := models.HostDetails{
			Name: h.Name,
			Capabilities: models.Capabilities{
				CPUTopology: models.CPUTopology{Arch: "x86_64"},
				Type:        "vmware",
			},
			VMs: map[string]models.VMDetails{},
		}
		if hw := h.Summary.Hardware; hw != nil {
			host.ID = hw.Uuid
			host.Capabilities.RAMMB = hw.MemorySize / (1024 * 1024)
			host.Capabilities.CPUTopology.Sockets = int(hw.NumCpuPkgs)
			host.Capabilities.CPUTopology.Cores = int(hw.NumCpuCores)
			host.Capabilities.CPUTopology.Threads = int(hw.NumCpuThreads)
		}
		if product := h.Summary.Config.Product; product != nil && strings.Contains(product.OsType, "arm") {
			host.Capabilities.CPUTopology.Arch = "aarch64"
		}

		names[h.Self.Value] = h.Name
		details[h.Name] = host
	}

	for _, vm := range vms {
		if vm.Summary.Runtime.Host == nil {
			continue
		}
		name, ok := names[vm.Summary.Runtime.Host.Value]
		if !ok {
			continue
		}
		details[name].VMs[vm.Summary.Config.Name] = models.VMDetails{
			UUID:  vm.Summary.Config.Uuid,
			State: vmwarePowerState(vm.Summary.Runtime.PowerState),
		}
	}

	return details
}

func vmwarePowerState(s types.VirtualMachinePowerState) string {
	switch s {
	case types.VirtualMachinePowerStatePoweredOn:
		return vmStateRunning
	case types.VirtualMachinePowerStatePoweredOff:
		return vmStateStopped
	case types.VirtualMachinePowerStateSuspended:
		return vmStatePaused
	default:
		return vmStateUnknown
	}
}
