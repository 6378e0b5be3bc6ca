package server

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/provenance"
	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/tools"
)

// Version is reported to MCP clients during initialization.
const Version = "0.1.0"

// New creates a fully configured MCP server with all tools registered.
func New(svc *provenance.Service) *mcp.Server {
	dt := &tools.DatasetTools{Service: svc}
	lt := &tools.LedgerTools{Service: svc}

	srv := mcp.NewServer(&mcp.Implementation{
		Name:    "trust-ledger",
		Version: Version,
	}, nil)

	// Dataset tools
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "list_datasets",
		Description: "List all datasets with their current trust scores, oldest first",
	}, dt.ListDatasets)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "create_dataset",
		Description: "Register an ingested file as a dataset with default scores and version 1",
	}, dt.CreateDataset)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_dataset",
		Description: "Get a dataset by id, including its lifecycle stage",
	}, dt.GetDataset)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "delete_dataset",
		Description: "Permanently delete a dataset and its versions, ledger and events (irreversible)",
	}, dt.DeleteDataset)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "verify_hash",
		Description: "Check whether a content, version or insight hash is known to the ledger",
	}, dt.VerifyHash)

	// Analysis and attestation tools
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "record_analysis",
		Description: "Append an insight to the dataset's ledger at its current version",
	}, lt.RecordAnalysis)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "analyze_dataset",
		Description: "Run the analysis oracle on a dataset and record every insight it returns",
	}, lt.AnalyzeDataset)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "register_attestation",
		Description: "Register the dataset with the attestation authority and raise its verification score",
	}, lt.RegisterAttestation)

	// Trust tools
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_trust_breakdown",
		Description: "Get the five sub-scores, the weighted trust score and the weights used",
	}, lt.GetTrustBreakdown)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "update_scores",
		Description: "Set one or more sub-scores (clamped to 0-100) and recompute trust",
	}, lt.UpdateScores)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "recompute_trust",
		Description: "Recompute the trust score from the stored sub-scores",
	}, lt.RecomputeTrust)

	// History tools
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_timeline",
		Description: "Get the dataset's lifecycle events (asc or desc)",
	}, lt.GetTimeline)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_audit_log",
		Description: "Get the dataset's actor-attributed audit events (asc or desc)",
	}, lt.GetAuditLog)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_ledger",
		Description: "Get every insight recorded for the dataset in insertion order",
	}, lt.GetLedger)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_analysis_report",
		Description: "Get the dataset's analysis report: each insight with its confidence, the average confidence and the report hash",
	}, lt.GetAnalysisReport)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "search_ledger",
		Description: "Search the dataset's insights for text contained in them, ignoring case",
	}, lt.SearchLedger)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_versions",
		Description: "Get the dataset's version chain, oldest first",
	}, lt.GetVersions)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "create_version",
		Description: "Record new content for the dataset as the next version after parent_version",
	}, lt.CreateVersion)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_storage_proof",
		Description: "Issue a simulated storage proof with a Merkle root for the dataset's content",
	}, lt.GetStorageProof)

	return srv
}
