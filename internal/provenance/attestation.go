package provenance

import (
	"context"
	"fmt"

	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/apperr"
	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/attest"
	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/lifecycle"
	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/metrics"
	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/models"
	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/storage"
)

// StatusRegistered is the status of a successful registration.
const StatusRegistered = "registered"

// RegisterAttestation registers the dataset with the attestation authority and,
// on success, bumps its verification score, recomputes trust and records
// VERIFIED and BLOCKCHAIN_REGISTERED. The authority is called without holding
// the dataset lock; everything its answer triggers commits atomically under it.
// With lifecycle enforcement on, a dataset that cannot become VERIFIED is
// rejected before the authority is contacted.
func (s *Service) RegisterAttestation(ctx context.Context, datasetID int64, actor string) (reg *models.Registration, err error) {
	ctx, done := s.begin(ctx, "register_attestation", datasetID)
	defer func() { done(err) }()

	if err := requireID(datasetID); err != nil {
		return nil, err
	}
	actor = actorOrSystem(actor)
	d, err := s.store.GetDataset(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	if s.cfg.EnforceLifecycle {
		events, err := s.store.ListLifecycle(ctx, datasetID, storage.Ascending)
		if err != nil {
			return nil, err
		}
		if err := lifecycle.Check(lifecycle.Derive(events), models.LifecycleVerified); err != nil {
			metrics.RecordRegistration(false)
			s.logger.WarnContext(ctx, "registration rejected", "dataset_id", datasetID, "error", err)
			s.recordFailedRegistration(ctx, datasetID, actor, map[string]any{"error": err.Error()})
			return nil, fmt.Errorf("register dataset %d: %w", datasetID, err)
		}
	}

	callCtx := ctx
	if s.cfg.AttestationTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.cfg.AttestationTimeout)
		defer cancel()
	}
	receipt, err := s.registrar.Register(callCtx, attest.Request{
		DatasetID: d.ID,
		FileHash:  d.FileHash,
		StorageID: d.StorageID,
	})
	if err != nil {
		metrics.RecordRegistration(false)
		s.logger.ErrorContext(ctx, "attestation failed", "dataset_id", datasetID, "error", err)
		s.recordFailedRegistration(ctx, datasetID, actor, map[string]any{"error": err.Error()})
		return nil, fmt.Errorf("register dataset %d: %w: %w", datasetID, apperr.ErrInternal, err)
	}
	network := receipt.Network
	if network == "" {
		network = s.cfg.Network
	}

	err = s.mutate(ctx, datasetID, func(q *storage.Queries) error {
		cur, err := q.GetDataset(ctx, datasetID)
		if err != nil {
			return err
		}
		cur.VerificationScore = s.engine.BumpVerification(cur.VerificationScore, s.cfg.VerificationBump)
		s.rescore(cur)
		if err := q.SaveDataset(ctx, cur); err != nil {
			return err
		}
		meta := map[string]any{"txHash": receipt.TxHash, "network": network}
		if err := s.appendLifecycle(ctx, q, datasetID, models.LifecycleVerified, meta); err != nil {
			return err
		}
		if err := s.appendLifecycle(ctx, q, datasetID, models.LifecycleBlockchainRegistered, meta); err != nil {
			return err
		}
		if _, err := q.AppendAudit(ctx, datasetID, models.AuditBlockchainRegistered, actor, map[string]any{
			"txHash":            receipt.TxHash,
			"network":           network,
			"verificationScore": cur.VerificationScore,
			"trustScore":        cur.TrustScore,
		}); err != nil {
			return err
		}
		reg = &models.Registration{
			DatasetID:         datasetID,
			ProofRef:          receipt.TxHash,
			Status:            StatusRegistered,
			Network:           network,
			VerificationScore: cur.VerificationScore,
			TrustScore:        cur.TrustScore,
		}
		return nil
	})
	if err != nil {
		// The authority has already issued receipt.TxHash; keep it on record.
		metrics.RecordRegistration(false)
		s.logger.ErrorContext(ctx, "registration not recorded",
			"dataset_id", datasetID, "tx_hash", receipt.TxHash, "error", err)
		s.recordFailedRegistration(ctx, datasetID, actor, map[string]any{
			"error":   err.Error(),
			"txHash":  receipt.TxHash,
			"network": network,
		})
		return nil, fmt.Errorf("register dataset %d: %w", datasetID, err)
	}
	metrics.RecordRegistration(true)
	s.logger.InfoContext(ctx, "dataset registered",
		"dataset_id", datasetID, "tx_hash", reg.ProofRef, "trust_score", reg.TrustScore)
	return reg, nil
}

// recordFailedRegistration writes a distinct audit event for a failed attempt
// in its own transaction. Failing to write it is logged, not returned.
func (s *Service) recordFailedRegistration(ctx context.Context, datasetID int64, actor string, metadata map[string]any) {
	if !s.cfg.RecordFailedRegistrations {
		return
	}
	// The caller's context may be the one that just expired.
	ctx = context.WithoutCancel(ctx)
	err := s.mutate(ctx, datasetID, func(q *storage.Queries) error {
		_, err := q.AppendAudit(ctx, datasetID, models.AuditRegistrationFailed, actor, metadata)
		return err
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "record failed registration", "dataset_id", datasetID, "error", err)
	}
}
