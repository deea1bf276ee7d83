package services

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/kubev2v/hypervisor-collector/internal/gatherers"
	"github.com/kubev2v/hypervisor-collector/internal/models"
	"github.com/kubev2v/hypervisor-collector/internal/sources"
	"github.com/kubev2v/hypervisor-collector/pkg/errors"
)

// BackendRegistry resolves a backend type name to its gatherer.
type BackendRegistry interface {
	Resolve(typ string) (gatherers.Descriptor, bool)
}

type MergeOptions struct {
	// Strict turns an empty configuration into a fatal error.
	Strict bool
	// RequireCredentials records an error when no complete SCC credentials
	// are configured.
	RequireCredentials bool
}

// ConfigManager loads the configuration sources and merges them.
type ConfigManager struct {
	loader   *sources.Loader
	registry BackendRegistry
	opts     MergeOptions
}

func NewConfigManager(loader *sources.Loader, registry BackendRegistry, opts MergeOptions) *ConfigManager {
	return &ConfigManager{
		loader:   loader,
		registry: registry,
		opts:     opts,
	}
}

// Load returns the resolved configuration. Only fatal conditions are
// returned as errors; everything else is recorded in ConfigData.Errors.
func (c *ConfigManager) Load() (*models.ConfigData, error) {
	loaded, recorded, err := c.loader.Load()
	if err != nil {
		return nil, err
	}
	return merge(loaded, recorded, c.registry, c.opts)
}

// Merge combines the sources in order. The first declaration of a backend id
// wins. registry may be nil, in which case backend types are not checked.
func Merge(srcs []models.ConfigSource, registry BackendRegistry, opts MergeOptions) (*models.ConfigData, error) {
	if len(srcs) == 0 {
		return nil, errors.Fatal(errors.SubsystemMerge, errors.KindNoSourcesFound, "no configuration sources to merge")
	}
	return merge(srcs, nil, registry, opts)
}

type merger struct {
	registry BackendRegistry
	data     *models.ConfigData
	index    map[string]int
	// credsSource is the source the credentials were taken from.
	credsSource string
}

func merge(srcs []models.ConfigSource, recorded []*errors.Error, registry BackendRegistry, opts MergeOptions) (*models.ConfigData, error) {
	m := &merger{
		registry: registry,
		data: &models.ConfigData{
			Backends: []models.BackendSpec{},
			Errors:   append([]*errors.Error{}, recorded...),
		},
		index: make(map[string]int),
	}

	for _, src := range srcs {
		m.data.Sources = append(m.data.Sources, src.Path)
		m.mergeCredentials(src)
		m.mergeBackends(src)
	}

	if opts.RequireCredentials && !m.data.Credentials.Complete() {
		m.record(errors.Recoverable(errors.SubsystemMerge, errors.KindMissingCredentials,
			"SCC credentials are missing or incomplete"))
	}

	if len(m.data.Backends) == 0 {
		e := errors.Recoverable(errors.SubsystemMerge, errors.KindEmptyConfiguration, "no backends configured").
			WithContext("sources", len(srcs))
		if opts.Strict {
			e.Severity = errors.SeverityFatal
			return nil, e
		}
		m.record(e)
	}

	zap.S().Named("config").Infow("configuration merged",
		"sources", len(m.data.Sources),
		"backends", len(m.data.Backends),
		"errors", len(m.data.Errors))

	return m.data, nil
}

func (m *merger) record(e *errors.Error) {
	zap.S().Named("config").Warnw("configuration error", "kind", e.Kind, "error", e.Error())
	m.data.Errors = append(m.data.Errors, e)
}

func (m *merger) mergeBackends(src models.ConfigSource) {
	raw, ok := src.Data["backends"]
	if !ok || raw == nil {
		return
	}

	entries, ok := raw.([]any)
	if !ok {
		m.record(errors.Recoverable(errors.SubsystemMerge, errors.KindInvalidBackend,
			"backends must be a list, got %T", raw).WithContext("source", src.Path))
		return
	}

	for i, entry := range entries {
		spec, err := m.parseBackend(src.Path, entry)
		if err != nil {
			m.record(err.WithContext("source", src.Path).WithContext("index", i))
			continue
		}

		if pos, ok := m.index[spec.ID]; ok {
			first := m.data.Backends[pos]
			if !first.Equal(m.canonical(spec)) {
				m.record(errors.Recoverable(errors.SubsystemMerge, errors.KindBackendConflict,
					"conflicting declarations of backend %q", spec.ID).
					WithContext("backend_id", spec.ID).
					WithContext("first_source", first.Source).
					WithContext("source", src.Path))
			}
			continue
		}

		spec, err = m.validate(spec)
		if err != nil {
			m.record(err.WithContext("source", src.Path).WithContext("index", i))
			continue
		}

		m.index[spec.ID] = len(m.data.Backends)
		m.data.Backends = append(m.data.Backends, spec)
	}
}

func (m *merger) parseBackend(source string, entry any) (models.BackendSpec, *errors.Error) {
	fields, ok := entry.(map[string]any)
	if !ok {
		return models.BackendSpec{}, errors.Recoverable(errors.SubsystemMerge, errors.KindInvalidBackend,
			"backend entry must be a mapping, got %T", entry)
	}

	id, ok := fields["id"].(string)
	if !ok || id == "" {
		return models.BackendSpec{}, errors.Recoverable(errors.SubsystemMerge, errors.KindInvalidBackend,
			"backend id must be a non-empty string")
	}

	typ, ok := fields["type"].(string)
	if !ok {
		// legacy key
		typ, ok = fields["module"].(string)
	}
	if !ok || typ == "" {
		return models.BackendSpec{}, errors.Recoverable(errors.SubsystemMerge, errors.KindInvalidBackend,
			"backend type must be a non-empty string").WithContext("backend_id", id)
	}

	enabled := true
	if v, ok := fields["enabled"]; ok && v != nil {
		b, ok := v.(bool)
		if !ok {
			return models.BackendSpec{}, errors.Recoverable(errors.SubsystemMerge, errors.KindInvalidBackend,
				"enabled must be a boolean, got %T", v).WithContext("backend_id", id)
		}
		enabled = b
	}

	params := make(map[string]any, len(fields))
	for k, v := range fields {
		switch k {
		case "id", "type", "module", "enabled":
			continue
		}
		params[k] = v
	}

	return models.BackendSpec{
		ID:      id,
		Type:    typ,
		Enabled: enabled,
		Params:  params,
		Source:  source,
	}, nil
}

// canonical rewrites the type of spec to the registered name, when known.
func (m *merger) canonical(spec models.BackendSpec) models.BackendSpec {
	if m.registry == nil {
		return spec
	}
	if desc, ok := m.registry.Resolve(spec.Type); ok {
		spec.Type = desc.Type
	}
	return spec
}

// validate checks an enabled backend against the registry.
func (m *merger) validate(spec models.BackendSpec) (models.BackendSpec, *errors.Error) {
	if m.registry == nil || !spec.Enabled {
		return spec, nil
	}

	desc, ok := m.registry.Resolve(spec.Type)
	if !ok {
		return models.BackendSpec{}, errors.Recoverable(errors.SubsystemMerge, errors.KindUnknownBackendType,
			"unknown backend type %q", spec.Type).WithContext("backend_id", spec.ID)
	}
	spec.Type = desc.Type

	if err := desc.Validate(spec.Params); err != nil {
		return models.BackendSpec{}, errors.Wrap(errors.SubsystemMerge, errors.KindInvalidBackend, errors.SeverityRecoverable,
			err, "invalid parameters").WithContext("backend_id", spec.ID)
	}

	return spec, nil
}

func (m *merger) mergeCredentials(src models.ConfigSource) {
	raw, ok := src.Data["credentials"]
	if !ok || raw == nil {
		return
	}

	creds, err := parseCredentials(raw)
	if err != nil {
		m.record(errors.Wrap(errors.SubsystemMerge, errors.KindInvalidCredentials, errors.SeverityRecoverable,
			err, "invalid credentials").WithContext("source", src.Path))
		return
	}
	if creds == nil {
		return
	}

	if m.data.Credentials == nil {
		m.data.Credentials = creds
		m.credsSource = src.Path
		return
	}

	if *m.data.Credentials != *creds {
		m.record(errors.Recoverable(errors.SubsystemMerge, errors.KindCredentialsConflict,
			"conflicting SCC credentials").
			WithContext("first_source", m.credsSource).
			WithContext("source", src.Path))
	}
}

func parseCredentials(raw any) (*models.SccCredentials, error) {
	section, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("credentials must be a mapping, got %T", raw)
	}

	scc, ok := section["scc"]
	if !ok || scc == nil {
		return nil, nil
	}

	fields, ok := scc.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("credentials.scc must be a mapping, got %T", scc)
	}

	creds := &models.SccCredentials{}
	for key, dst := range map[string]*string{"username": &creds.Username, "password": &creds.Password} {
		v, ok := fields[key]
		if !ok || v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("credentials.scc.%s must be a string, got %T", key, v)
		}
		*dst = s
	}

	return creds, nil
}
