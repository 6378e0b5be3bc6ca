// Package export renders timelines, audit logs and ledgers as CSV.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/jszwec/csvutil"

	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/models"
)

// LifecycleRow is one lifecycle event flattened for CSV.
type LifecycleRow struct {
	ID        int64     `csv:"id"`
	DatasetID int64     `csv:"dataset_id"`
	EventType string    `csv:"event_type"`
	Metadata  string    `csv:"metadata"`
	CreatedAt time.Time `csv:"created_at"`
}

// AuditRow is one audit event flattened for CSV.
type AuditRow struct {
	ID        int64     `csv:"id"`
	DatasetID int64     `csv:"dataset_id"`
	EventType string    `csv:"event_type"`
	Actor     string    `csv:"actor"`
	Metadata  string    `csv:"metadata"`
	CreatedAt time.Time `csv:"created_at"`
}

// LedgerRow is one ledger entry for CSV.
type LedgerRow struct {
	ID             int64     `csv:"id"`
	DatasetID      int64     `csv:"dataset_id"`
	DatasetVersion int       `csv:"dataset_version"`
	InsightHash    string    `csv:"insight_hash"`
	InsightText    string    `csv:"insight_text"`
	Confidence     float64   `csv:"confidence"`
	Verified       bool      `csv:"verified"`
	CreatedAt      time.Time `csv:"created_at"`
}

// WriteLifecycle writes events with a header row.
func WriteLifecycle(w io.Writer, events []models.LifecycleEvent) error {
	rows := make([]LifecycleRow, 0, len(events))
	for _, e := range events {
		meta, err := metadataJSON(e.Metadata)
		if err != nil {
			return err
		}
		rows = append(rows, LifecycleRow{
			ID:        e.ID,
			DatasetID: e.DatasetID,
			EventType: e.EventType,
			Metadata:  meta,
			CreatedAt: e.CreatedAt,
		})
	}
	return encode(w, rows, LifecycleRow{})
}

// WriteAudit writes audit events with a header row.
func WriteAudit(w io.Writer, events []models.AuditEvent) error {
	rows := make([]AuditRow, 0, len(events))
	for _, e := range events {
		meta, err := metadataJSON(e.Metadata)
		if err != nil {
			return err
		}
		rows = append(rows, AuditRow{
			ID:        e.ID,
			DatasetID: e.DatasetID,
			EventType: e.EventType,
			Actor:     e.Actor,
			Metadata:  meta,
			CreatedAt: e.CreatedAt,
		})
	}
	return encode(w, rows, AuditRow{})
}

// WriteLedger writes ledger entries with a header row.
func WriteLedger(w io.Writer, entries []models.LedgerEntry) error {
	rows := make([]LedgerRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, LedgerRow{
			ID:             e.ID,
			DatasetID:      e.DatasetID,
			DatasetVersion: e.DatasetVersion,
			InsightHash:    e.InsightHash,
			InsightText:    e.InsightText,
			Confidence:     e.Confidence,
			Verified:       e.Verified,
			CreatedAt:      e.CreatedAt,
		})
	}
	return encode(w, rows, LedgerRow{})
}

// ReadLedger parses a CSV produced by WriteLedger.
func ReadLedger(r io.Reader) ([]LedgerRow, error) {
	dec, err := csvutil.NewDecoder(csv.NewReader(r))
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("create ledger csv decoder: %w", err)
	}
	var rows []LedgerRow
	if err := dec.Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode ledger csv: %w", err)
	}
	return rows, nil
}

// encode writes rows; the header is always written, even for no rows.
func encode[T any](w io.Writer, rows []T, zero T) error {
	cw := csv.NewWriter(w)
	enc := csvutil.NewEncoder(cw)
	enc.AutoHeader = false
	if err := enc.EncodeHeader(zero); err != nil {
		return fmt.Errorf("encode csv header: %w", err)
	}
	for _, row := range rows {
		if err := enc.Encode(row); err != nil {
			return fmt.Errorf("encode csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func metadataJSON(m map[string]any) (string, error) {
	if len(m) == 0 {
		return "", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	return string(b), nil
}
