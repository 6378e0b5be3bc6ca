package tools

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/models"
	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/provenance"
	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/storage"
)

// LedgerTools holds references needed by analysis, trust and history tool handlers.
type LedgerTools struct {
	Service *provenance.Service
}

// --- Input types ---

type RecordAnalysisInput struct {
	DatasetID   int64   `json:"dataset_id" jsonschema:"Numeric dataset id"`
	InsightText string  `json:"insight_text" jsonschema:"Insight produced by the analysis"`
	Confidence  float64 `json:"confidence,omitempty" jsonschema:"Analysis confidence between 0 and 1"`
}

type RegisterAttestationInput struct {
	DatasetID int64  `json:"dataset_id" jsonschema:"Numeric dataset id"`
	Actor     string `json:"actor,omitempty" jsonschema:"Who requested the registration, defaults to system"`
}

type UpdateScoresInput struct {
	DatasetID    int64    `json:"dataset_id" jsonschema:"Numeric dataset id"`
	Completeness *float64 `json:"completeness,omitempty" jsonschema:"New completeness sub-score (0-100)"`
	Freshness    *float64 `json:"freshness,omitempty" jsonschema:"New freshness sub-score (0-100)"`
	Consistency  *float64 `json:"consistency,omitempty" jsonschema:"New consistency sub-score (0-100)"`
	Schema       *float64 `json:"schema,omitempty" jsonschema:"New schema sub-score (0-100)"`
	Verification *float64 `json:"verification,omitempty" jsonschema:"New verification sub-score (0-100)"`
	Actor        string   `json:"actor,omitempty" jsonschema:"Who changed the scores, defaults to system"`
}

type HistoryInput struct {
	DatasetID int64  `json:"dataset_id" jsonschema:"Numeric dataset id"`
	Order     string `json:"order,omitempty" jsonschema:"Sort order: asc (oldest first, default) or desc"`
}

type SearchLedgerInput struct {
	DatasetID int64  `json:"dataset_id" jsonschema:"Numeric dataset id"`
	Query     string `json:"query" jsonschema:"Text to look for in insight text, matched as a case-insensitive substring"`
}

type CreateVersionInput struct {
	DatasetID     int64  `json:"dataset_id" jsonschema:"Numeric dataset id"`
	ContentHash   string `json:"content_hash" jsonschema:"SHA-256 hex digest of the new content"`
	ParentVersion int    `json:"parent_version" jsonschema:"Version number this version derives from, must be the latest"`
	Actor         string `json:"actor,omitempty" jsonschema:"Who created the version, defaults to system"`
}

type StorageProofInput struct {
	DatasetID   int64  `json:"dataset_id" jsonschema:"Numeric dataset id"`
	ContentHash string `json:"content_hash,omitempty" jsonschema:"Content hash to prove, defaults to the dataset's current file hash"`
}

// --- Handlers ---

func (t *LedgerTools) RecordAnalysis(ctx context.Context, _ *mcp.CallToolRequest, input RecordAnalysisInput) (*mcp.CallToolResult, any, error) {
	if input.InsightText == "" {
		return toolError("Insight text is required"), nil, nil
	}
	entry, err := t.Service.RecordAnalysis(ctx, input.DatasetID, input.InsightText, input.Confidence)
	if err != nil {
		return toolFailure("record analysis", err), nil, nil
	}
	return toolJSON(entry)
}

func (t *LedgerTools) AnalyzeDataset(ctx context.Context, _ *mcp.CallToolRequest, input DatasetIDInput) (*mcp.CallToolResult, any, error) {
	entries, err := t.Service.Analyze(ctx, input.DatasetID)
	if err != nil {
		return toolFailure("analyze dataset", err), nil, nil
	}
	return toolJSON(entries)
}

func (t *LedgerTools) RegisterAttestation(ctx context.Context, _ *mcp.CallToolRequest, input RegisterAttestationInput) (*mcp.CallToolResult, any, error) {
	reg, err := t.Service.RegisterAttestation(ctx, input.DatasetID, input.Actor)
	if err != nil {
		return toolFailure("register attestation", err), nil, nil
	}
	return toolJSON(reg)
}

func (t *LedgerTools) GetTrustBreakdown(ctx context.Context, _ *mcp.CallToolRequest, input DatasetIDInput) (*mcp.CallToolResult, any, error) {
	b, err := t.Service.GetTrustBreakdown(ctx, input.DatasetID)
	if err != nil {
		return toolFailure("get trust breakdown", err), nil, nil
	}
	return toolJSON(b)
}

func (t *LedgerTools) UpdateScores(ctx context.Context, _ *mcp.CallToolRequest, input UpdateScoresInput) (*mcp.CallToolResult, any, error) {
	b, err := t.Service.UpdateSubScores(ctx, input.DatasetID, provenance.ScoreUpdate{
		Completeness: input.Completeness,
		Freshness:    input.Freshness,
		Consistency:  input.Consistency,
		Schema:       input.Schema,
		Verification: input.Verification,
	}, input.Actor)
	if err != nil {
		return toolFailure("update scores", err), nil, nil
	}
	return toolJSON(b)
}

func (t *LedgerTools) RecomputeTrust(ctx context.Context, _ *mcp.CallToolRequest, input DatasetIDInput) (*mcp.CallToolResult, any, error) {
	score, err := t.Service.Recompute(ctx, input.DatasetID)
	if err != nil {
		return toolFailure("recompute trust", err), nil, nil
	}
	return toolJSON(map[string]any{"dataset_id": input.DatasetID, "trust_score": score})
}

func (t *LedgerTools) GetTimeline(ctx context.Context, _ *mcp.CallToolRequest, input HistoryInput) (*mcp.CallToolResult, any, error) {
	events, err := t.Service.GetTimeline(ctx, input.DatasetID, storage.ParseOrder(input.Order))
	if err != nil {
		return toolFailure("get timeline", err), nil, nil
	}
	if events == nil {
		events = []models.LifecycleEvent{}
	}
	return toolJSON(events)
}

func (t *LedgerTools) GetAuditLog(ctx context.Context, _ *mcp.CallToolRequest, input HistoryInput) (*mcp.CallToolResult, any, error) {
	events, err := t.Service.GetAuditLog(ctx, input.DatasetID, storage.ParseOrder(input.Order))
	if err != nil {
		return toolFailure("get audit log", err), nil, nil
	}
	if events == nil {
		events = []models.AuditEvent{}
	}
	return toolJSON(events)
}

func (t *LedgerTools) GetLedger(ctx context.Context, _ *mcp.CallToolRequest, input DatasetIDInput) (*mcp.CallToolResult, any, error) {
	entries, err := t.Service.GetLedger(ctx, input.DatasetID)
	if err != nil {
		return toolFailure("get ledger", err), nil, nil
	}
	if entries == nil {
		entries = []models.LedgerEntry{}
	}
	return toolJSON(entries)
}

func (t *LedgerTools) GetAnalysisReport(ctx context.Context, _ *mcp.CallToolRequest, input DatasetIDInput) (*mcp.CallToolResult, any, error) {
	report, err := t.Service.GetReport(ctx, input.DatasetID)
	if err != nil {
		return toolFailure("get analysis report", err), nil, nil
	}
	return toolJSON(report)
}

func (t *LedgerTools) SearchLedger(ctx context.Context, _ *mcp.CallToolRequest, input SearchLedgerInput) (*mcp.CallToolResult, any, error) {
	if input.Query == "" {
		return toolError("Search query is required"), nil, nil
	}
	entries, err := t.Service.SearchLedger(ctx, input.DatasetID, input.Query)
	if err != nil {
		return toolFailure("search ledger", err), nil, nil
	}
	if entries == nil {
		entries = []models.LedgerEntry{}
	}
	return toolJSON(entries)
}

func (t *LedgerTools) GetVersions(ctx context.Context, _ *mcp.CallToolRequest, input DatasetIDInput) (*mcp.CallToolResult, any, error) {
	versions, err := t.Service.GetVersions(ctx, input.DatasetID)
	if err != nil {
		return toolFailure("get versions", err), nil, nil
	}
	if versions == nil {
		versions = []models.DatasetVersion{}
	}
	return toolJSON(versions)
}

func (t *LedgerTools) CreateVersion(ctx context.Context, _ *mcp.CallToolRequest, input CreateVersionInput) (*mcp.CallToolResult, any, error) {
	v, err := t.Service.CreateVersion(ctx, input.DatasetID, input.ContentHash, input.ParentVersion, input.Actor)
	if err != nil {
		return toolFailure("create version", err), nil, nil
	}
	return toolJSON(v)
}

func (t *LedgerTools) GetStorageProof(ctx context.Context, _ *mcp.CallToolRequest, input StorageProofInput) (*mcp.CallToolResult, any, error) {
	var (
		p   *models.StorageProof
		err error
	)
	if input.ContentHash != "" {
		p, err = t.Service.GenerateStorageProof(ctx, input.DatasetID, input.ContentHash)
	} else {
		p, err = t.Service.GetStorageProof(ctx, input.DatasetID)
	}
	if err != nil {
		return toolFailure("get storage proof", err), nil, nil
	}
	return toolJSON(p)
}
