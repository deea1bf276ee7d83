package gatherers

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kubev2v/hypervisor-collector/internal/models"
)

type FileParams struct {
	Path string `mapstructure:"path"`
}

// File reads pre-collected details from a YAML or JSON document. It is used
// for hosts that cannot be reached from the collector.
type File struct {
	path string
}

func FileDescriptor() Descriptor {
	return Descriptor{
		Type:     "File",
		Aliases:  []string{"static"},
		Required: []string{"path"},
		New:      NewFile,
	}
}

func NewFile(params map[string]any) (Gatherer, error) {
	var p FileParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Path == "" {
		return nil, fmt.Errorf("%w for File: path", ErrMissingParams)
	}
	return &File{path: p.Path}, nil
}

func (f *File) Collect(ctx context.Context) (models.HypervisorDetails, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, err
	}

	var details models.HypervisorDetails
	if err := yaml.Unmarshal(data, &details); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", f.path, err)
	}
	if details == nil {
		details = models.HypervisorDetails{}
	}

	for name, host := range details {
		if host.Name == "" {
			host.Name = name
		}
		if host.VMs == nil {
			host.VMs = map[string]models.VMDetails{}
		}
		details[name] = host
	}

	return details, nil
}
