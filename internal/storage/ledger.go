package storage

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/apperr"
	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/hasher"
	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/models"
)

// minTrigramQuery is the shortest query the trigram index can answer.
const minTrigramQuery = 3

const ledgerColumns = `e.id, e.dataset_id, e.insight_text, e.insight_hash, e.confidence, e.dataset_version, e.verified, e.created_at`

// AppendLedgerEntry records an insight and its confidence against a dataset
// version. Entries are never updated; identical text appended twice yields two
// rows with one hash.
func (q *Queries) AppendLedgerEntry(ctx context.Context, datasetID int64, insightText string, confidence float64, atVersion int) (*models.LedgerEntry, error) {
	if strings.TrimSpace(insightText) == "" {
		return nil, fmt.Errorf("insight text is empty: %w", apperr.ErrInvalidInput)
	}
	ts, now := q.timestamp()
	hash := hasher.HashString(insightText)
	result, err := q.q.ExecContext(ctx,
		`INSERT INTO ledger_entries (dataset_id, insight_text, insight_hash, confidence, dataset_version, verified, created_at)
		 VALUES (?, ?, ?, ?, ?, 1, ?)`,
		datasetID, insightText, hash, confidence, atVersion, ts,
	)
	if err != nil {
		return nil, dbError("insert ledger entry", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, dbError("ledger entry id", err)
	}
	return &models.LedgerEntry{
		ID:             id,
		DatasetID:      datasetID,
		InsightText:    insightText,
		InsightHash:    hash,
		Confidence:     confidence,
		DatasetVersion: atVersion,
		Verified:       true,
		CreatedAt:      now,
	}, nil
}

// ListLedger returns a dataset's entries in insertion order.
func (q *Queries) ListLedger(ctx context.Context, datasetID int64) ([]models.LedgerEntry, error) {
	return q.queryLedger(ctx,
		`SELECT `+ledgerColumns+` FROM ledger_entries e WHERE e.dataset_id = ? ORDER BY e.created_at, e.id`,
		datasetID,
	)
}

// SearchLedger finds entries of one dataset whose insight text contains query
// as a substring, case-insensitively. On SQLite the trigram FTS5 index serves
// queries of three or more characters; shorter ones fall back to LIKE. MySQL
// always uses LIKE.
func (q *Queries) SearchLedger(ctx context.Context, datasetID int64, query string) ([]models.LedgerEntry, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return q.ListLedger(ctx, datasetID)
	}
	if q.dialect == DialectMySQL || utf8.RuneCountInString(query) < minTrigramQuery {
		return q.queryLedger(ctx,
			`SELECT `+ledgerColumns+` FROM ledger_entries e
			 WHERE e.dataset_id = ? AND e.insight_text LIKE ? ESCAPE '!'
			 ORDER BY e.created_at, e.id`,
			datasetID, "%"+escapeLike(query)+"%",
		)
	}
	return q.queryLedger(ctx,
		`SELECT `+ledgerColumns+` FROM ledger_entries e
		 JOIN ledger_trigram ON ledger_trigram.rowid = e.id
		 WHERE ledger_trigram MATCH ? AND e.dataset_id = ?
		 ORDER BY e.created_at, e.id`,
		ftsPhrase(query), datasetID,
	)
}

// FindDatasetsByInsightHash returns ids of datasets holding an entry hashed to hash.
func (q *Queries) FindDatasetsByInsightHash(ctx context.Context, hash string) ([]int64, error) {
	return q.findIDs(ctx, `SELECT DISTINCT dataset_id FROM ledger_entries WHERE insight_hash = ? ORDER BY dataset_id`, hash)
}

// CountLedger returns how many entries a dataset holds.
func (q *Queries) CountLedger(ctx context.Context, datasetID int64) (int, error) {
	var n int
	if err := q.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM ledger_entries WHERE dataset_id = ?`, datasetID).Scan(&n); err != nil {
		return 0, dbError("count ledger", err)
	}
	return n, nil
}

func (q *Queries) queryLedger(ctx context.Context, query string, args ...any) ([]models.LedgerEntry, error) {
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbError("query ledger", err)
	}
	defer rows.Close()

	var entries []models.LedgerEntry
	for rows.Next() {
		var (
			e         models.LedgerEntry
			createdAt string
		)
		if err := rows.Scan(&e.ID, &e.DatasetID, &e.InsightText, &e.InsightHash, &e.Confidence, &e.DatasetVersion, &e.Verified, &createdAt); err != nil {
			return nil, dbError("scan ledger entry", err)
		}
		e.CreatedAt = parseTime(createdAt)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("query ledger", err)
	}
	return entries, nil
}

// ftsPhrase quotes s as a single FTS5 phrase so operators in user input are literal.
func ftsPhrase(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// escapeLike escapes LIKE wildcards for ESCAPE '!'.
func escapeLike(s string) string {
	r := strings.NewReplacer(`!`, `!!`, `%`, `!%`, `_`, `!_`)
	return r.Replace(s)
}
