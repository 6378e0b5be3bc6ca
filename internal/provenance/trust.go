package provenance

import (
	"context"
	"fmt"

	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/apperr"
	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/models"
	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/storage"
	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/trust"
)

// ScoreUpdate is a partial sub-score change. Nil fields are left alone.
type ScoreUpdate struct {
	Completeness *float64 `json:"completeness,omitempty"`
	Freshness    *float64 `json:"freshness,omitempty"`
	Consistency  *float64 `json:"consistency,omitempty"`
	Schema       *float64 `json:"schema,omitempty"`
	Verification *float64 `json:"verification,omitempty"`
}

func (u ScoreUpdate) empty() bool {
	return u.Completeness == nil && u.Freshness == nil && u.Consistency == nil && u.Schema == nil && u.Verification == nil
}

func (u ScoreUpdate) apply(s trust.SubScores) trust.SubScores {
	set := func(dst *float64, v *float64) {
		if v != nil {
			*dst = *v
		}
	}
	set(&s.Completeness, u.Completeness)
	set(&s.Freshness, u.Freshness)
	set(&s.Consistency, u.Consistency)
	set(&s.Schema, u.Schema)
	set(&s.Verification, u.Verification)
	return s.Clamp()
}

// UpdateSubScores sets some sub-scores (clamped to [0,100]) and recomputes trust.
func (s *Service) UpdateSubScores(ctx context.Context, datasetID int64, u ScoreUpdate, actor string) (b *models.TrustBreakdown, err error) {
	ctx, done := s.begin(ctx, "update_scores", datasetID)
	defer func() { done(err) }()

	if err := requireID(datasetID); err != nil {
		return nil, err
	}
	if u.empty() {
		return nil, fmt.Errorf("no scores to update: %w", apperr.ErrInvalidInput)
	}

	err = s.mutate(ctx, datasetID, func(q *storage.Queries) error {
		d, err := q.GetDataset(ctx, datasetID)
		if err != nil {
			return err
		}
		before := d.TrustScore
		applySubScores(d, u.apply(subScoresOf(d)))
		s.rescore(d)
		if err := q.SaveDataset(ctx, d); err != nil {
			return err
		}
		if _, err := q.AppendAudit(ctx, datasetID, models.AuditScoresUpdated, actorOrSystem(actor), map[string]any{
			"previousTrustScore": before,
			"trustScore":         d.TrustScore,
		}); err != nil {
			return err
		}
		b = s.breakdown(d)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update scores: %w", err)
	}
	return b, nil
}

// Recompute re-reads the sub-scores and writes back the derived trust score.
func (s *Service) Recompute(ctx context.Context, datasetID int64) (score float64, err error) {
	ctx, done := s.begin(ctx, "recompute", datasetID)
	defer func() { done(err) }()

	if err := requireID(datasetID); err != nil {
		return 0, err
	}
	err = s.mutate(ctx, datasetID, func(q *storage.Queries) error {
		d, err := q.GetDataset(ctx, datasetID)
		if err != nil {
			return err
		}
		before := d.TrustScore
		s.rescore(d)
		score = d.TrustScore
		if before == d.TrustScore {
			return nil
		}
		if err := q.SaveDataset(ctx, d); err != nil {
			return err
		}
		_, err = q.AppendAudit(ctx, datasetID, models.AuditTrustRecomputed, models.SystemActor, map[string]any{
			"previousTrustScore": before,
			"trustScore":         d.TrustScore,
		})
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("recompute trust: %w", err)
	}
	return score, nil
}

// GetTrustBreakdown returns the sub-scores, total and weights of a dataset.
func (s *Service) GetTrustBreakdown(ctx context.Context, datasetID int64) (*models.TrustBreakdown, error) {
	if err := requireID(datasetID); err != nil {
		return nil, err
	}
	d, err := s.store.GetDataset(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	return s.breakdown(d), nil
}

func (s *Service) breakdown(d *models.Dataset) *models.TrustBreakdown {
	return &models.TrustBreakdown{
		DatasetID:    d.ID,
		Completeness: d.CompletenessScore,
		Freshness:    d.FreshnessScore,
		Consistency:  d.ConsistencyScore,
		Schema:       d.SchemaScore,
		Verification: d.VerificationScore,
		Total:        d.TrustScore,
		Weights:      s.engine.Weights().Map(),
	}
}
