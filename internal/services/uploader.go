package services

import (
	"context"
	stderrors "errors"

	"go.uber.org/zap"

	"github.com/kubev2v/hypervisor-collector/internal/models"
	"github.com/kubev2v/hypervisor-collector/pkg/errors"
	"github.com/kubev2v/hypervisor-collector/pkg/scc"
)

// SccClient is the part of the SCC API used by the uploader.
type SccClient interface {
	CheckCredentials(ctx context.Context) error
	UploadHypervisors(ctx context.Context, details any) error
}

// UploadReport lists the backends uploaded and the ones that failed.
type UploadReport struct {
	Uploaded []string
	Failures []models.CollectionFailure
}

type Uploader struct {
	client  SccClient
	metrics *Metrics
}

func NewUploader(client SccClient, metrics *Metrics) *Uploader {
	return &Uploader{client: client, metrics: metrics}
}

// Upload verifies the credentials once and uploads every record. A record
// that fails to upload does not stop the others.
func (u *Uploader) Upload(ctx context.Context, records []models.HypervisorRecord) (*UploadReport, error) {
	if err := u.client.CheckCredentials(ctx); err != nil {
		kind := errors.KindUploadFailed
		if stderrors.Is(err, scc.ErrUnauthorized) {
			kind = errors.KindUnauthorized
		}
		return nil, errors.Wrap(errors.SubsystemUploader, kind, errors.SeverityFatal, err, "SCC credentials check failed")
	}

	report := &UploadReport{Uploaded: []string{}, Failures: []models.CollectionFailure{}}
	for _, r := range records {
		if err := ctx.Err(); err != nil {
			report.Failures = append(report.Failures, uploadFailure(r, errors.Wrap(errors.SubsystemUploader,
				errors.KindCancelled, errors.SeverityRecoverable, err, "upload cancelled")))
			continue
		}

		err := u.client.UploadHypervisors(ctx, r.Details)
		u.metrics.ObserveUpload(err)
		if err != nil {
			kind := errors.KindUploadFailed
			if stderrors.Is(err, scc.ErrUnauthorized) {
				kind = errors.KindUnauthorized
			}
			e := errors.Wrap(errors.SubsystemUploader, kind, errors.SeverityRecoverable, err, "upload failed")
			zap.S().Named("uploader").Errorw("failed to upload details to SCC", "backend", r.Backend.ID, "error", err)
			report.Failures = append(report.Failures, uploadFailure(r, e))
			continue
		}

		zap.S().Named("uploader").Infow("uploaded details to SCC", "backend", r.Backend.ID, "hosts", r.Details.Hosts())
		report.Uploaded = append(report.Uploaded, r.Backend.ID)
	}

	return report, nil
}

func uploadFailure(r models.HypervisorRecord, e *errors.Error) models.CollectionFailure {
	e = e.WithContext("backend_id", r.Backend.ID)
	return models.CollectionFailure{
		BackendID:   r.Backend.ID,
		BackendType: r.Backend.Type,
		Message:     e.Error(),
		Err:         e,
	}
}
