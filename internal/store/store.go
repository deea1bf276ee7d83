package store

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/kubev2v/hypervisor-collector/internal/models"
	"github.com/kubev2v/hypervisor-collector/pkg/errors"
	"github.com/kubev2v/hypervisor-collector/pkg/permissions"
)

// Record is one backend entry of a results file.
type Record struct {
	Backend     string                   `yaml:"backend"`
	Type        string                   `yaml:"type"`
	Valid       bool                     `yaml:"valid"`
	CollectedAt time.Time                `yaml:"collected_at,omitempty"`
	Details     models.HypervisorDetails `yaml:"details,omitempty"`
	Error       string                   `yaml:"error,omitempty"`
}

// ResultsStore persists the outcome of a collection run so that it can be
// uploaded by a later invocation.
type ResultsStore struct {
	checkPermissions bool
}

func NewResultsStore(checkPermissions bool) *ResultsStore {
	return &ResultsStore{checkPermissions: checkPermissions}
}

// Save writes one record per backend, in the given order.
func (s *ResultsStore) Save(path string, results []models.CollectionResult, collectedAt time.Time) error {
	records := make([]Record, 0, len(results))
	for _, r := range results {
		rec := Record{
			Backend: r.Backend.ID,
			Type:    r.Backend.Type,
			Valid:   r.Succeeded(),
		}
		if rec.Valid {
			rec.Details = r.Details
			rec.CollectedAt = collectedAt.UTC()
		} else {
			rec.Error = r.Err.Error()
		}
		records = append(records, rec)
	}

	data, err := yaml.Marshal(records)
	if err != nil {
		return errors.Wrap(errors.SubsystemResults, errors.KindInvalidResults, errors.SeverityFatal, err,
			"failed to encode results").WithContext("path", path)
	}

	if err := os.WriteFile(path, data, permissions.FileMode); err != nil {
		return s.fileError(path, err, "failed to write results")
	}
	// WriteFile keeps the mode of an existing file
	if err := os.Chmod(path, permissions.FileMode); err != nil {
		return s.fileError(path, err, "failed to set results file mode")
	}
	if s.checkPermissions {
		if err := permissions.Check(path); err != nil {
			return s.fileError(path, err, "results file has unsafe permissions")
		}
	}

	zap.S().Named("results_store").Infow("results saved", "path", path, "records", len(records))
	return nil
}

// Load reads a results file and returns the successfully collected backends.
func (s *ResultsStore) Load(path string) ([]models.HypervisorRecord, error) {
	if s.checkPermissions {
		if err := permissions.Check(path); err != nil {
			return nil, s.fileError(path, err, "results file has unsafe permissions")
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, s.fileError(path, err, "failed to read results")
	}

	var records []Record
	if err := yaml.Unmarshal(data, &records); err != nil {
		return nil, errors.Wrap(errors.SubsystemResults, errors.KindInvalidResults, errors.SeverityFatal, err,
			"failed to parse results").WithContext("path", path)
	}
	if len(records) == 0 {
		return nil, errors.Fatal(errors.SubsystemResults, errors.KindInvalidResults, "no results in %s", path).
			WithContext("path", path)
	}

	out := []models.HypervisorRecord{}
	for i, rec := range records {
		if err := validate(rec); err != nil {
			return nil, errors.Wrap(errors.SubsystemResults, errors.KindInvalidResults, errors.SeverityFatal, err,
				"invalid results record").WithContext("path", path).WithContext("index", i)
		}
		if !rec.Valid {
			zap.S().Named("results_store").Debugw("skipping failed backend", "backend", rec.Backend, "error", rec.Error)
			continue
		}
		if rec.Details == nil {
			rec.Details = models.HypervisorDetails{}
		}
		out = append(out, models.HypervisorRecord{
			Backend:     models.BackendSpec{ID: rec.Backend, Type: rec.Type, Enabled: true},
			Details:     rec.Details,
			CollectedAt: rec.CollectedAt,
		})
	}

	return out, nil
}

func validate(rec Record) error {
	switch {
	case rec.Backend == "":
		return stderrors.New("missing backend id")
	case rec.Type == "":
		return fmt.Errorf("missing type for backend %s", rec.Backend)
	case !rec.Valid && rec.Error == "":
		return fmt.Errorf("missing error for failed backend %s", rec.Backend)
	}
	return nil
}

func (s *ResultsStore) fileError(path string, err error, msg string) *errors.Error {
	kind := errors.KindInvalidResults
	if permissions.IsPermissionError(err) || stderrors.Is(err, fs.ErrPermission) {
		kind = errors.KindPermission
	}
	return errors.Wrap(errors.SubsystemResults, kind, errors.SeverityFatal, err, "%s", msg).WithContext("path", path)
}
