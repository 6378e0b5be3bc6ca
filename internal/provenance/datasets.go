package provenance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/apperr"
	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/hasher"
	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/lifecycle"
	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/models"
	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/storage"
	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/trust"
)

// PendingReport is the AI report hash of a dataset that has not been analyzed.
const PendingReport = "pending"

// CreateDatasetInput describes an ingested file.
type CreateDatasetInput struct {
	Name        string
	Description string
	OwnerWallet string
	ContentHash string
	Filename    string
}

// CreateDataset registers a newly ingested file: the dataset record with
// default scores, version 1, an UPLOAD lifecycle event and a DATASET_CREATED
// audit event, all in one transaction.
func (s *Service) CreateDataset(ctx context.Context, in CreateDatasetInput) (d *models.Dataset, err error) {
	ctx, done := s.begin(ctx, "create_dataset", 0)
	defer func() { done(err) }()

	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, fmt.Errorf("dataset name is required: %w", apperr.ErrInvalidInput)
	}
	if strings.TrimSpace(in.OwnerWallet) == "" {
		return nil, fmt.Errorf("owner wallet is required: %w", apperr.ErrInvalidInput)
	}
	if in.ContentHash == "" {
		return nil, fmt.Errorf("content hash is required: %w", apperr.ErrInvalidInput)
	}
	filename := in.Filename
	if filename == "" {
		filename = in.Name
	}

	scores := s.cfg.DefaultScores
	d = &models.Dataset{
		Name:         in.Name,
		Description:  in.Description,
		OwnerWallet:  in.OwnerWallet,
		StorageID:    "datahaven://" + hasher.RandomID(16),
		FileHash:     in.ContentHash,
		MetadataHash: hasher.RandomID(32),
		AIReportHash: PendingReport,
		Version:      1,
	}
	applySubScores(d, scores)
	s.rescore(d)

	// The row does not exist until the insert, so there is no id to lock yet.
	err = s.store.InTx(ctx, func(q *storage.Queries) error {
		if err := q.InsertDataset(ctx, d); err != nil {
			return err
		}
		if err := s.appendLifecycle(ctx, q, d.ID, models.LifecycleUpload, map[string]any{"filename": filename}); err != nil {
			return err
		}
		if _, err := q.AppendAudit(ctx, d.ID, models.AuditDatasetCreated, in.OwnerWallet, map[string]any{
			"filename": filename,
			"fileHash": in.ContentHash,
		}); err != nil {
			return err
		}
		_, err := q.CreateInitialVersion(ctx, d.ID, in.ContentHash)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create dataset: %w", err)
	}
	s.logger.InfoContext(ctx, "dataset created", "dataset_id", d.ID, "name", d.Name, "trust_score", d.TrustScore)
	return d, nil
}

// GetDataset returns the current record.
func (s *Service) GetDataset(ctx context.Context, datasetID int64) (*models.Dataset, error) {
	if err := requireID(datasetID); err != nil {
		return nil, err
	}
	return s.store.GetDataset(ctx, datasetID)
}

// ListDatasets returns every dataset.
func (s *Service) ListDatasets(ctx context.Context) ([]models.Dataset, error) {
	return s.store.ListDatasets(ctx)
}

// DeleteDataset removes a dataset with its versions, ledger and events.
func (s *Service) DeleteDataset(ctx context.Context, datasetID int64, actor string) (err error) {
	ctx, done := s.begin(ctx, "delete_dataset", datasetID)
	defer func() { done(err) }()

	if err := requireID(datasetID); err != nil {
		return err
	}
	err = s.mutate(ctx, datasetID, func(q *storage.Queries) error {
		return q.DeleteDataset(ctx, datasetID)
	})
	if err != nil {
		return fmt.Errorf("delete dataset: %w", err)
	}
	// Audit rows go with the dataset, so the log line is the only trace left.
	s.logger.InfoContext(ctx, "dataset deleted", "dataset_id", datasetID, "actor", actorOrSystem(actor))
	return nil
}

// Stage reports how far the dataset has progressed through UPLOAD, ANALYZED and VERIFIED.
func (s *Service) Stage(ctx context.Context, datasetID int64) (lifecycle.Stage, error) {
	events, err := s.GetTimeline(ctx, datasetID, storage.Ascending)
	if err != nil {
		return lifecycle.StageNone, err
	}
	return lifecycle.Derive(events), nil
}

// VerifyHash reports whether hash is known to the ledger as a dataset content
// hash, a version hash or an insight hash.
func (s *Service) VerifyHash(ctx context.Context, hash string) (*models.HashVerification, error) {
	hash = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(hash, "0x")))
	if hash == "" {
		return nil, fmt.Errorf("hash is required: %w", apperr.ErrInvalidInput)
	}
	out := &models.HashVerification{Hash: hash, Timestamp: time.Now().UTC()}

	lookups := []struct {
		kind string
		find func(context.Context, string) ([]int64, error)
	}{
		{"dataset", s.store.FindDatasetsByFileHash},
		{"version", s.store.FindDatasetsByVersionHash},
		{"insight", s.store.FindDatasetsByInsightHash},
	}
	for _, l := range lookups {
		ids, err := l.find(ctx, hash)
		if err != nil {
			return nil, fmt.Errorf("verify hash: %w", err)
		}
		for _, id := range ids {
			out.Matches = append(out.Matches, fmt.Sprintf("%s:%d", l.kind, id))
		}
	}
	out.Verified = len(out.Matches) > 0
	return out, nil
}

func subScoresOf(d *models.Dataset) trust.SubScores {
	return trust.SubScores{
		Completeness: d.CompletenessScore,
		Freshness:    d.FreshnessScore,
		Consistency:  d.ConsistencyScore,
		Schema:       d.SchemaScore,
		Verification: d.VerificationScore,
	}
}

func applySubScores(d *models.Dataset, s trust.SubScores) {
	d.CompletenessScore = s.Completeness
	d.FreshnessScore = s.Freshness
	d.ConsistencyScore = s.Consistency
	d.SchemaScore = s.Schema
	d.VerificationScore = s.Verification
}

func actorOrSystem(actor string) string {
	if strings.TrimSpace(actor) == "" {
		return models.SystemActor
	}
	return actor
}
