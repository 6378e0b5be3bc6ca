package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/apperr"
	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/models"
)

// LatestVersion returns the highest version number recorded for a dataset, or 0.
func (q *Queries) LatestVersion(ctx context.Context, datasetID int64) (int, error) {
	var latest sql.NullInt64
	err := q.q.QueryRowContext(ctx,
		`SELECT MAX(version_number) FROM dataset_versions WHERE dataset_id = ?`, datasetID,
	).Scan(&latest)
	if err != nil {
		return 0, dbError("latest version", err)
	}
	return int(latest.Int64), nil
}

// CreateInitialVersion records version 1 with no parent.
func (q *Queries) CreateInitialVersion(ctx context.Context, datasetID int64, fileHash string) (*models.DatasetVersion, error) {
	latest, err := q.LatestVersion(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	if latest != 0 {
		return nil, fmt.Errorf("dataset %d already has version %d: %w", datasetID, latest, apperr.ErrConflict)
	}
	return q.insertVersion(ctx, datasetID, 1, nil, fileHash)
}

// CreateNextVersion appends version N+1. parentVersion must be the current
// head N; anything else would fork the chain and fails with Conflict.
func (q *Queries) CreateNextVersion(ctx context.Context, datasetID int64, fileHash string, parentVersion int) (*models.DatasetVersion, error) {
	latest, err := q.LatestVersion(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	if latest == 0 {
		return nil, fmt.Errorf("dataset %d has no initial version: %w", datasetID, apperr.ErrConflict)
	}
	if parentVersion != latest {
		return nil, fmt.Errorf("parent version %d is not the head of dataset %d (head is %d): %w",
			parentVersion, datasetID, latest, apperr.ErrConflict)
	}
	parent := latest
	return q.insertVersion(ctx, datasetID, latest+1, &parent, fileHash)
}

func (q *Queries) insertVersion(ctx context.Context, datasetID int64, number int, parent *int, fileHash string) (*models.DatasetVersion, error) {
	ts, now := q.timestamp()
	var parentArg any
	if parent != nil {
		parentArg = *parent
	}
	result, err := q.q.ExecContext(ctx,
		`INSERT INTO dataset_versions (dataset_id, version_number, parent_version, file_hash, created_at) VALUES (?, ?, ?, ?, ?)`,
		datasetID, number, parentArg, fileHash, ts,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("dataset %d version %d already exists: %w", datasetID, number, apperr.ErrConflict)
		}
		return nil, dbError("insert version", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, dbError("version id", err)
	}
	return &models.DatasetVersion{
		ID:            id,
		DatasetID:     datasetID,
		VersionNumber: number,
		ParentVersion: parent,
		FileHash:      fileHash,
		CreatedAt:     now,
	}, nil
}

// ListVersions returns the chain in ascending version order.
func (q *Queries) ListVersions(ctx context.Context, datasetID int64) ([]models.DatasetVersion, error) {
	rows, err := q.q.QueryContext(ctx,
		`SELECT id, dataset_id, version_number, parent_version, file_hash, created_at
		 FROM dataset_versions WHERE dataset_id = ? ORDER BY version_number ASC`,
		datasetID,
	)
	if err != nil {
		return nil, dbError("list versions", err)
	}
	defer rows.Close()

	var versions []models.DatasetVersion
	for rows.Next() {
		var (
			v         models.DatasetVersion
			parent    sql.NullInt64
			createdAt string
		)
		if err := rows.Scan(&v.ID, &v.DatasetID, &v.VersionNumber, &parent, &v.FileHash, &createdAt); err != nil {
			return nil, dbError("scan version", err)
		}
		if parent.Valid {
			p := int(parent.Int64)
			v.ParentVersion = &p
		}
		v.CreatedAt = parseTime(createdAt)
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("list versions", err)
	}
	return versions, nil
}

// FindDatasetsByVersionHash returns ids of datasets with any version hashed to hash.
func (q *Queries) FindDatasetsByVersionHash(ctx context.Context, hash string) ([]int64, error) {
	return q.findIDs(ctx, `SELECT DISTINCT dataset_id FROM dataset_versions WHERE file_hash = ? ORDER BY dataset_id`, hash)
}
