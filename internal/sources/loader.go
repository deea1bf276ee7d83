package sources

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/kubev2v/hypervisor-collector/internal/models"
	"github.com/kubev2v/hypervisor-collector/pkg/errors"
	"github.com/kubev2v/hypervisor-collector/pkg/permissions"
)

var extensions = map[string]struct{}{
	".yaml": {},
	".yml":  {},
	".json": {},
}

// Loader discovers and parses configuration documents from a primary file
// and a directory of drop-in files.
type Loader struct {
	file             string
	dir              string
	checkPermissions bool
}

type LoaderOption func(*Loader)

// WithPermissionCheck toggles the owner and mode checks on every source.
func WithPermissionCheck(enabled bool) LoaderOption {
	return func(l *Loader) {
		l.checkPermissions = enabled
	}
}

func NewLoader(file, dir string, opts ...LoaderOption) *Loader {
	l := &Loader{
		file:             file,
		dir:              dir,
		checkPermissions: true,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Discover returns the candidate documents in load order: the primary file
// first, then the directory files sorted by name.
func (l *Loader) Discover() ([]string, error) {
	if l.file == "" && l.dir == "" {
		return nil, errors.Fatal(errors.SubsystemConfigManager, errors.KindInvalidArguments,
			"a config file or a config directory is required")
	}

	file, err := expandHome(l.file)
	if err != nil {
		return nil, err
	}
	dir, err := expandHome(l.dir)
	if err != nil {
		return nil, err
	}

	var candidates []string
	seen := make(map[string]struct{})
	add := func(path string) {
		key := path
		if abs, err := filepath.Abs(path); err == nil {
			key = abs
		}
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		candidates = append(candidates, path)
	}

	if file != "" {
		info, err := os.Stat(file)
		switch {
		case err == nil && info.Mode().IsRegular():
			add(file)
		case err == nil:
			zap.S().Named("sources").Warnw("config file is not a regular file, ignoring", "path", file)
		case stderrors.Is(err, fs.ErrPermission):
			return nil, permissionError(file, err)
		case !stderrors.Is(err, fs.ErrNotExist):
			return nil, errors.Wrap(errors.SubsystemConfigManager, errors.KindInvalidArguments, errors.SeverityFatal, err,
				"failed to stat config file").WithContext("path", file)
		}
	}

	if dir != "" {
		files, err := listDir(dir)
		if err != nil {
			return nil, err
		}
		if files != nil && l.checkPermissions {
			if err := permissions.Check(dir); err != nil {
				return nil, permissionError(dir, err)
			}
		}
		for _, f := range files {
			add(f)
		}
	}

	if len(candidates) == 0 {
		return nil, errors.Fatal(errors.SubsystemConfigManager, errors.KindNoSourcesFound,
			"no configuration found at %q or in %q", file, dir).
			WithContext("file", file).
			WithContext("dir", dir)
	}

	if l.checkPermissions {
		for _, c := range candidates {
			if err := permissions.Check(c); err != nil {
				return nil, permissionError(c, err)
			}
		}
	}

	return candidates, nil
}

// Load parses every candidate. Documents that cannot be parsed are excluded
// and reported as recoverable errors. The returned error is always fatal.
func (l *Loader) Load() ([]models.ConfigSource, []*errors.Error, error) {
	paths, err := l.Discover()
	if err != nil {
		return nil, nil, err
	}

	var (
		loaded   []models.ConfigSource
		recorded []*errors.Error
	)
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			if stderrors.Is(err, fs.ErrPermission) {
				return nil, nil, permissionError(path, err)
			}
			recorded = append(recorded, errors.Wrap(errors.SubsystemConfigManager, errors.KindParseFailed,
				errors.SeverityRecoverable, err, "failed to read config").WithContext("source", path))
			continue
		}

		doc, err := Parse(data)
		if err != nil {
			zap.S().Named("sources").Warnw("skipping config source", "path", path, "error", err)
			recorded = append(recorded, errors.Wrap(errors.SubsystemConfigManager, errors.KindParseFailed,
				errors.SeverityRecoverable, err, "failed to parse config").WithContext("source", path))
			continue
		}

		zap.S().Named("sources").Debugw("loaded config source", "path", path)
		loaded = append(loaded, models.ConfigSource{Path: path, Data: doc})
	}

	return loaded, recorded, nil
}

// Parse decodes a YAML or JSON document whose top level must be a mapping.
// An empty document yields an empty mapping.
func Parse(data []byte) (map[string]any, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	switch v := doc.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return v, nil
	default:
		return nil, fmt.Errorf("top level must be a mapping, got %T", doc)
	}
}

// listDir returns the recognized config files directly under dir, sorted by
// name. A missing directory yields nil.
func listDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		switch {
		case stderrors.Is(err, fs.ErrNotExist):
			return nil, nil
		case stderrors.Is(err, fs.ErrPermission):
			return nil, permissionError(dir, err)
		default:
			return nil, errors.Wrap(errors.SubsystemConfigManager, errors.KindInvalidArguments, errors.SeverityFatal, err,
				"failed to read config directory").WithContext("path", dir)
		}
	}

	files := []string{}
	for _, e := range entries {
		if _, ok := extensions[strings.ToLower(filepath.Ext(e.Name()))]; !ok {
			continue
		}
		path := filepath.Join(dir, e.Name())
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		files = append(files, path)
	}
	return files, nil
}

func permissionError(path string, cause error) *errors.Error {
	return errors.Wrap(errors.SubsystemConfigManager, errors.KindPermission, errors.SeverityFatal, cause,
		"insufficient permissions").WithContext("path", path)
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(errors.SubsystemConfigManager, errors.KindInvalidArguments, errors.SeverityFatal, err,
			"failed to expand home directory").WithContext("path", path)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
