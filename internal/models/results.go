package models

import (
	"sort"
	"time"
)

// HypervisorDetails maps a hypervisor host name to the details collected for it.
type HypervisorDetails map[string]HostDetails

// HostDetails describes one hypervisor host and the VMs it runs.
type HostDetails struct {
	Name         string               `json:"name" yaml:"name"`
	ID           string               `json:"id" yaml:"id"`
	Capabilities Capabilities         `json:"capabilities" yaml:"capabilities"`
	VMs          map[string]VMDetails `json:"vms" yaml:"vms"`
}

type Capabilities struct {
	CPUTopology CPUTopology `json:"cpu_topology" yaml:"cpu_topology"`
	RAMMB       int64       `json:"ram_mb" yaml:"ram_mb"`
	Type        string      `json:"type" yaml:"type"`
}

type CPUTopology struct {
	Arch    string `json:"arch" yaml:"arch"`
	Sockets int    `json:"sockets" yaml:"sockets"`
	Cores   int    `json:"cores" yaml:"cores"`
	Threads int    `json:"threads" yaml:"threads"`
}

type VMDetails struct {
	UUID  string `json:"uuid" yaml:"uuid"`
	State string `json:"vmState,omitempty" yaml:"vmState,omitempty"`
}

// Hosts returns the sorted host names found in the details.
func (d HypervisorDetails) Hosts() []string {
	hosts := make([]string, 0, len(d))
	for h := range d {
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)
	return hosts
}

// CollectionResult is the outcome of running one backend's gatherer.
type CollectionResult struct {
	Backend  BackendSpec
	Details  HypervisorDetails
	Err      error
	Duration time.Duration
}

func (r CollectionResult) Succeeded() bool {
	return r.Err == nil
}

// HypervisorRecord is a successfully collected backend, immutable once created.
type HypervisorRecord struct {
	Backend     BackendSpec
	Details     HypervisorDetails
	CollectedAt time.Time
}

// CollectionFailure is a backend whose collection failed.
type CollectionFailure struct {
	BackendID   string
	BackendType string
	Message     string
	Err         error
}
