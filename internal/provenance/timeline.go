package provenance

import (
	"context"
	"fmt"

	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/apperr"
	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/models"
	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/storage"
)

// GetTimeline returns lifecycle events in the requested order.
func (s *Service) GetTimeline(ctx context.Context, datasetID int64, order storage.Order) ([]models.LifecycleEvent, error) {
	if err := s.ensureDataset(ctx, datasetID); err != nil {
		return nil, err
	}
	return s.store.ListLifecycle(ctx, datasetID, order)
}

// GetAuditLog returns audit events in the requested order.
func (s *Service) GetAuditLog(ctx context.Context, datasetID int64, order storage.Order) ([]models.AuditEvent, error) {
	if err := s.ensureDataset(ctx, datasetID); err != nil {
		return nil, err
	}
	return s.store.ListAudit(ctx, datasetID, order)
}

// GetLedger returns ledger entries in insertion order.
func (s *Service) GetLedger(ctx context.Context, datasetID int64) ([]models.LedgerEntry, error) {
	if err := s.ensureDataset(ctx, datasetID); err != nil {
		return nil, err
	}
	return s.store.ListLedger(ctx, datasetID)
}

// SearchLedger returns the entries whose insight text contains query, ignoring case.
func (s *Service) SearchLedger(ctx context.Context, datasetID int64, query string) ([]models.LedgerEntry, error) {
	if err := s.ensureDataset(ctx, datasetID); err != nil {
		return nil, err
	}
	return s.store.SearchLedger(ctx, datasetID, query)
}

// GetStorageProof issues a fresh storage proof for the dataset's current content.
func (s *Service) GetStorageProof(ctx context.Context, datasetID int64) (*models.StorageProof, error) {
	if err := requireID(datasetID); err != nil {
		return nil, err
	}
	d, err := s.store.GetDataset(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	p := s.proofs.Generate(d.ID, d.FileHash)
	return &p, nil
}

// GenerateStorageProof issues a proof for an explicit content hash of a known dataset.
func (s *Service) GenerateStorageProof(ctx context.Context, datasetID int64, contentHash string) (*models.StorageProof, error) {
	if contentHash == "" {
		return nil, fmt.Errorf("content hash is required: %w", apperr.ErrInvalidInput)
	}
	if err := s.ensureDataset(ctx, datasetID); err != nil {
		return nil, err
	}
	p := s.proofs.Generate(datasetID, contentHash)
	return &p, nil
}

func (s *Service) ensureDataset(ctx context.Context, datasetID int64) error {
	if err := requireID(datasetID); err != nil {
		return err
	}
	_, err := s.store.GetDataset(ctx, datasetID)
	return err
}
