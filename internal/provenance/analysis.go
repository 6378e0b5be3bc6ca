package provenance

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/apperr"
	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/hasher"
	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/metrics"
	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/models"
	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/oracle"
	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/storage"
)

// RecordAnalysis appends one insight at the dataset's current version and
// marks the dataset ANALYZED.
func (s *Service) RecordAnalysis(ctx context.Context, datasetID int64, insightText string, confidence float64) (entry *models.LedgerEntry, err error) {
	ctx, done := s.begin(ctx, "record_analysis", datasetID)
	defer func() { done(err) }()

	entries, err := s.recordInsights(ctx, datasetID, []oracle.Insight{{Text: insightText, Confidence: confidence}})
	if err != nil {
		return nil, err
	}
	return &entries[0], nil
}

// Analyze asks the analysis oracle about the dataset and records every insight
// it returns in a single transaction. Nothing is written if the oracle fails.
func (s *Service) Analyze(ctx context.Context, datasetID int64) (entries []models.LedgerEntry, err error) {
	ctx, done := s.begin(ctx, "analyze", datasetID)
	defer func() { done(err) }()

	if err := requireID(datasetID); err != nil {
		return nil, err
	}
	d, err := s.store.GetDataset(ctx, datasetID)
	if err != nil {
		return nil, err
	}

	callCtx := ctx
	if s.cfg.AnalysisTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.cfg.AnalysisTimeout)
		defer cancel()
	}
	insights, err := s.analyzer.Analyze(callCtx, oracle.Request{
		DatasetID: d.ID,
		Name:      d.Name,
		FileHash:  d.FileHash,
		Version:   d.Version,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "analysis failed", "dataset_id", datasetID, "error", err)
		return nil, fmt.Errorf("analyze dataset %d: %w: %w", datasetID, apperr.ErrInternal, err)
	}
	if len(insights) == 0 {
		return nil, fmt.Errorf("analyze dataset %d: oracle returned no insights: %w", datasetID, apperr.ErrInternal)
	}
	return s.recordInsights(ctx, datasetID, insights)
}

func (s *Service) recordInsights(ctx context.Context, datasetID int64, insights []oracle.Insight) ([]models.LedgerEntry, error) {
	if err := requireID(datasetID); err != nil {
		return nil, err
	}
	for _, in := range insights {
		if strings.TrimSpace(in.Text) == "" {
			return nil, fmt.Errorf("insight text is required: %w", apperr.ErrInvalidInput)
		}
		if in.Confidence < 0 || in.Confidence > 1 || math.IsNaN(in.Confidence) {
			return nil, fmt.Errorf("confidence %v outside [0,1]: %w", in.Confidence, apperr.ErrInvalidInput)
		}
	}

	var entries []models.LedgerEntry
	err := s.mutate(ctx, datasetID, func(q *storage.Queries) error {
		d, err := q.GetDataset(ctx, datasetID)
		if err != nil {
			return err
		}
		texts := make([]string, 0, len(insights))
		var confidence float64
		for _, in := range insights {
			e, err := q.AppendLedgerEntry(ctx, datasetID, in.Text, in.Confidence, d.Version)
			if err != nil {
				return err
			}
			entries = append(entries, *e)
			texts = append(texts, in.Text)
			confidence += in.Confidence
		}
		confidence /= float64(len(insights))

		d.AIReportHash = hasher.HashString(strings.Join(texts, "\n"))
		if err := q.SaveDataset(ctx, d); err != nil {
			return err
		}
		if err := s.appendLifecycle(ctx, q, datasetID, models.LifecycleAnalyzed, map[string]any{
			"insightCount": len(entries),
			"version":      d.Version,
		}); err != nil {
			return err
		}
		_, err = q.AppendAudit(ctx, datasetID, models.AuditAnalysisRun, models.SystemActor, map[string]any{
			"analysisId":   entries[0].ID,
			"insightCount": len(entries),
			"confidence":   confidence,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("record analysis: %w", err)
	}
	metrics.RecordLedgerEntries(len(entries))
	s.logger.InfoContext(ctx, "analysis recorded", "dataset_id", datasetID, "entries", len(entries))
	return entries, nil
}

// GetReport returns the dataset's insights with their confidences, the average
// confidence and when it was last analyzed.
func (s *Service) GetReport(ctx context.Context, datasetID int64) (*models.AnalysisReport, error) {
	if err := requireID(datasetID); err != nil {
		return nil, err
	}
	d, err := s.store.GetDataset(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	entries, err := s.store.ListLedger(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	report := &models.AnalysisReport{
		DatasetID:    d.ID,
		Version:      d.Version,
		AIReportHash: d.AIReportHash,
		InsightCount: len(entries),
		Insights:     entries,
	}
	if len(entries) == 0 {
		report.Insights = []models.LedgerEntry{}
		return report, nil
	}
	var sum float64
	for _, e := range entries {
		sum += e.Confidence
	}
	report.AverageConfidence = sum / float64(len(entries))
	last := entries[len(entries)-1].CreatedAt
	report.LastAnalyzedAt = &last
	return report, nil
}
