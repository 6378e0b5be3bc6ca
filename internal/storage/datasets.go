package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/apperr"
	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/models"
)

const datasetColumns = `id, name, description, owner_wallet, storage_id, file_hash, metadata_hash, ai_report_hash,
	completeness_score, freshness_score, consistency_score, schema_score, verification_score,
	trust_score, version, revision, created_at, updated_at`

// InsertDataset stores d and fills in its id, revision and timestamps.
func (q *Queries) InsertDataset(ctx context.Context, d *models.Dataset) error {
	ts, now := q.timestamp()
	if d.Version < 1 {
		d.Version = 1
	}
	result, err := q.q.ExecContext(ctx,
		`INSERT INTO datasets (name, description, owner_wallet, storage_id, file_hash, metadata_hash, ai_report_hash,
			completeness_score, freshness_score, consistency_score, schema_score, verification_score,
			trust_score, version, revision, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		d.Name, d.Description, d.OwnerWallet, d.StorageID, d.FileHash, d.MetadataHash, d.AIReportHash,
		d.CompletenessScore, d.FreshnessScore, d.ConsistencyScore, d.SchemaScore, d.VerificationScore,
		d.TrustScore, d.Version, ts, ts,
	)
	if err != nil {
		return dbError("insert dataset", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return dbError("dataset id", err)
	}
	d.ID = id
	d.Revision = 0
	d.CreatedAt = now
	d.UpdatedAt = now
	return nil
}

// GetDataset loads one dataset.
func (q *Queries) GetDataset(ctx context.Context, id int64) (*models.Dataset, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+datasetColumns+` FROM datasets WHERE id = ?`, id)
	d, err := scanDataset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("dataset %d: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, dbError("scan dataset", err)
	}
	return d, nil
}

// ListDatasets returns every dataset ordered by id.
func (q *Queries) ListDatasets(ctx context.Context) ([]models.Dataset, error) {
	rows, err := q.q.QueryContext(ctx, `SELECT `+datasetColumns+` FROM datasets ORDER BY id`)
	if err != nil {
		return nil, dbError("list datasets", err)
	}
	defer rows.Close()

	var datasets []models.Dataset
	for rows.Next() {
		d, err := scanDataset(rows)
		if err != nil {
			return nil, dbError("scan dataset", err)
		}
		datasets = append(datasets, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("list datasets", err)
	}
	return datasets, nil
}

// SaveDataset writes every mutable column of d, guarded by its revision. A
// concurrent writer that got there first makes this fail with Conflict.
func (q *Queries) SaveDataset(ctx context.Context, d *models.Dataset) error {
	ts, now := q.timestamp()
	result, err := q.q.ExecContext(ctx,
		`UPDATE datasets SET
			file_hash = ?, ai_report_hash = ?,
			completeness_score = ?, freshness_score = ?, consistency_score = ?, schema_score = ?, verification_score = ?,
			trust_score = ?, version = ?, revision = revision + 1, updated_at = ?
		 WHERE id = ? AND revision = ?`,
		d.FileHash, d.AIReportHash,
		d.CompletenessScore, d.FreshnessScore, d.ConsistencyScore, d.SchemaScore, d.VerificationScore,
		d.TrustScore, d.Version, ts,
		d.ID, d.Revision,
	)
	if err != nil {
		return dbError("update dataset", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return dbError("update dataset", err)
	}
	if n == 0 {
		if _, err := q.GetDataset(ctx, d.ID); err != nil {
			return err
		}
		return fmt.Errorf("dataset %d changed since revision %d: %w", d.ID, d.Revision, apperr.ErrConflict)
	}
	d.Revision++
	d.UpdatedAt = now
	return nil
}

// DeleteDataset removes a dataset and everything it owns.
func (q *Queries) DeleteDataset(ctx context.Context, id int64) error {
	// Children first so MySQL and SQLite behave the same even without FK enforcement.
	for _, table := range []string{"ledger_entries", "lifecycle_events", "audit_events", "dataset_versions"} {
		if _, err := q.q.ExecContext(ctx, `DELETE FROM `+table+` WHERE dataset_id = ?`, id); err != nil {
			return dbError("delete "+table, err)
		}
	}
	result, err := q.q.ExecContext(ctx, `DELETE FROM datasets WHERE id = ?`, id)
	if err != nil {
		return dbError("delete dataset", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("dataset %d: %w", id, apperr.ErrNotFound)
	}
	return nil
}

// FindDatasetsByFileHash returns ids of datasets whose current content hash is hash.
func (q *Queries) FindDatasetsByFileHash(ctx context.Context, hash string) ([]int64, error) {
	return q.findIDs(ctx, `SELECT id FROM datasets WHERE file_hash = ? ORDER BY id`, hash)
}

func (q *Queries) findIDs(ctx context.Context, query string, args ...any) ([]int64, error) {
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbError("lookup ids", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, dbError("scan id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("lookup ids", err)
	}
	return ids, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDataset(row scanner) (*models.Dataset, error) {
	var (
		d                    models.Dataset
		createdAt, updatedAt string
	)
	err := row.Scan(
		&d.ID, &d.Name, &d.Description, &d.OwnerWallet, &d.StorageID, &d.FileHash, &d.MetadataHash, &d.AIReportHash,
		&d.CompletenessScore, &d.FreshnessScore, &d.ConsistencyScore, &d.SchemaScore, &d.VerificationScore,
		&d.TrustScore, &d.Version, &d.Revision, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	d.CreatedAt = parseTime(createdAt)
	d.UpdatedAt = parseTime(updatedAt)
	return &d, nil
}
