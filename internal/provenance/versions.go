package provenance

import (
	"context"
	"fmt"

	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/apperr"
	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/models"
	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/storage"
)

// CreateVersion appends the next version of a dataset. parentVersion must be
// the current head; the dataset's file hash and version follow the new head.
func (s *Service) CreateVersion(ctx context.Context, datasetID int64, contentHash string, parentVersion int, actor string) (v *models.DatasetVersion, err error) {
	ctx, done := s.begin(ctx, "create_version", datasetID)
	defer func() { done(err) }()

	if err := requireID(datasetID); err != nil {
		return nil, err
	}
	if contentHash == "" {
		return nil, fmt.Errorf("content hash is required: %w", apperr.ErrInvalidInput)
	}
	if parentVersion < 1 {
		return nil, fmt.Errorf("parent version must be at least 1: %w", apperr.ErrInvalidInput)
	}

	err = s.mutate(ctx, datasetID, func(q *storage.Queries) error {
		d, err := q.GetDataset(ctx, datasetID)
		if err != nil {
			return err
		}
		v, err = q.CreateNextVersion(ctx, datasetID, contentHash, parentVersion)
		if err != nil {
			return err
		}
		d.FileHash = contentHash
		d.Version = v.VersionNumber
		if err := q.SaveDataset(ctx, d); err != nil {
			return err
		}
		if err := s.appendLifecycle(ctx, q, datasetID, models.LifecycleVersioned, map[string]any{
			"version":       v.VersionNumber,
			"parentVersion": parentVersion,
			"fileHash":      contentHash,
		}); err != nil {
			return err
		}
		_, err = q.AppendAudit(ctx, datasetID, models.AuditVersionCreated, actorOrSystem(actor), map[string]any{
			"version":  v.VersionNumber,
			"fileHash": contentHash,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create version: %w", err)
	}
	s.logger.InfoContext(ctx, "version created", "dataset_id", datasetID, "version", v.VersionNumber)
	return v, nil
}

// GetVersions returns the version chain in ascending order.
func (s *Service) GetVersions(ctx context.Context, datasetID int64) ([]models.DatasetVersion, error) {
	if err := s.ensureDataset(ctx, datasetID); err != nil {
		return nil, err
	}
	return s.store.ListVersions(ctx, datasetID)
}
