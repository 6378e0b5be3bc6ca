package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/apperr"
	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/models"
	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/provenance"
)

// DatasetTools holds references needed by dataset tool handlers.
type DatasetTools struct {
	Service *provenance.Service
}

// --- Input types ---

type CreateDatasetInput struct {
	Name        string `json:"name" jsonschema:"Human-readable dataset name"`
	Description string `json:"description,omitempty" jsonschema:"Optional dataset description"`
	OwnerWallet string `json:"owner_wallet" jsonschema:"Wallet address of the dataset owner"`
	ContentHash string `json:"content_hash" jsonschema:"SHA-256 hex digest of the file content"`
	Filename    string `json:"filename,omitempty" jsonschema:"Original file name, defaults to the dataset name"`
}

type DatasetIDInput struct {
	DatasetID int64 `json:"dataset_id" jsonschema:"Numeric dataset id"`
}

type DeleteDatasetInput struct {
	DatasetID int64  `json:"dataset_id" jsonschema:"Numeric dataset id to permanently delete"`
	Actor     string `json:"actor,omitempty" jsonschema:"Who is deleting the dataset, defaults to system"`
}

type VerifyHashInput struct {
	Hash string `json:"hash" jsonschema:"Hex digest to look up, with or without 0x prefix"`
}

// --- Handlers ---

func (t *DatasetTools) ListDatasets(ctx context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, any, error) {
	datasets, err := t.Service.ListDatasets(ctx)
	if err != nil {
		return toolFailure("list datasets", err), nil, nil
	}
	if datasets == nil {
		datasets = []models.Dataset{}
	}
	return toolJSON(datasets)
}

func (t *DatasetTools) CreateDataset(ctx context.Context, _ *mcp.CallToolRequest, input CreateDatasetInput) (*mcp.CallToolResult, any, error) {
	d, err := t.Service.CreateDataset(ctx, provenance.CreateDatasetInput{
		Name:        input.Name,
		Description: input.Description,
		OwnerWallet: input.OwnerWallet,
		ContentHash: input.ContentHash,
		Filename:    input.Filename,
	})
	if err != nil {
		return toolFailure("create dataset", err), nil, nil
	}
	return toolJSON(d)
}

func (t *DatasetTools) GetDataset(ctx context.Context, _ *mcp.CallToolRequest, input DatasetIDInput) (*mcp.CallToolResult, any, error) {
	d, err := t.Service.GetDataset(ctx, input.DatasetID)
	if err != nil {
		return toolFailure("get dataset", err), nil, nil
	}
	stage, err := t.Service.Stage(ctx, input.DatasetID)
	if err != nil {
		return toolFailure("get dataset stage", err), nil, nil
	}
	return toolJSON(struct {
		*models.Dataset
		Stage string `json:"stage"`
	}{d, stage.String()})
}

func (t *DatasetTools) DeleteDataset(ctx context.Context, _ *mcp.CallToolRequest, input DeleteDatasetInput) (*mcp.CallToolResult, any, error) {
	if err := t.Service.DeleteDataset(ctx, input.DatasetID, input.Actor); err != nil {
		return toolFailure("delete dataset", err), nil, nil
	}
	return toolText(fmt.Sprintf("Dataset %d permanently deleted.", input.DatasetID)), nil, nil
}

func (t *DatasetTools) VerifyHash(ctx context.Context, _ *mcp.CallToolRequest, input VerifyHashInput) (*mcp.CallToolResult, any, error) {
	res, err := t.Service.VerifyHash(ctx, input.Hash)
	if err != nil {
		return toolFailure("verify hash", err), nil, nil
	}
	return toolJSON(res)
}

// --- Helpers ---

func toolText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func toolError(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf(format, args...)}},
		IsError: true,
	}
}

// toolFailure reports err with its error kind so clients can tell a missing
// dataset from a conflict without parsing the message.
func toolFailure(action string, err error) *mcp.CallToolResult {
	return toolError("Failed to %s (%s): %v", action, apperr.Kind(err), err)
}

func toolJSON(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return toolError("Failed to marshal result: %v", err), nil, nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil, nil
}
