package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/apperr"
	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/models"
)

// AppendLifecycle records a lifecycle event. Metadata may be nil.
func (q *Queries) AppendLifecycle(ctx context.Context, datasetID int64, eventType string, metadata map[string]any) (*models.LifecycleEvent, error) {
	if strings.TrimSpace(eventType) == "" {
		return nil, fmt.Errorf("lifecycle event type is empty: %w", apperr.ErrInvalidInput)
	}
	meta, err := encodeMetadata(metadata)
	if err != nil {
		return nil, err
	}
	ts, now := q.timestamp()
	result, err := q.q.ExecContext(ctx,
		`INSERT INTO lifecycle_events (dataset_id, event_type, metadata, created_at) VALUES (?, ?, ?, ?)`,
		datasetID, eventType, meta, ts,
	)
	if err != nil {
		return nil, dbError("insert lifecycle event", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, dbError("lifecycle event id", err)
	}
	return &models.LifecycleEvent{
		ID:        id,
		DatasetID: datasetID,
		EventType: eventType,
		Metadata:  orEmpty(metadata),
		CreatedAt: now,
	}, nil
}

// AppendAudit records an audit event. An empty actor is recorded as the system actor.
func (q *Queries) AppendAudit(ctx context.Context, datasetID int64, eventType, actor string, metadata map[string]any) (*models.AuditEvent, error) {
	if strings.TrimSpace(eventType) == "" {
		return nil, fmt.Errorf("audit event type is empty: %w", apperr.ErrInvalidInput)
	}
	if actor == "" {
		actor = models.SystemActor
	}
	meta, err := encodeMetadata(metadata)
	if err != nil {
		return nil, err
	}
	ts, now := q.timestamp()
	result, err := q.q.ExecContext(ctx,
		`INSERT INTO audit_events (dataset_id, event_type, actor, metadata, created_at) VALUES (?, ?, ?, ?, ?)`,
		datasetID, eventType, actor, meta, ts,
	)
	if err != nil {
		return nil, dbError("insert audit event", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, dbError("audit event id", err)
	}
	return &models.AuditEvent{
		ID:        id,
		DatasetID: datasetID,
		EventType: eventType,
		Actor:     actor,
		Metadata:  orEmpty(metadata),
		CreatedAt: now,
	}, nil
}

// ListLifecycle returns lifecycle events totally ordered by (created_at, id).
func (q *Queries) ListLifecycle(ctx context.Context, datasetID int64, order Order) ([]models.LifecycleEvent, error) {
	dir := order.sql()
	rows, err := q.q.QueryContext(ctx,
		`SELECT id, dataset_id, event_type, metadata, created_at FROM lifecycle_events
		 WHERE dataset_id = ? ORDER BY created_at `+dir+`, id `+dir,
		datasetID,
	)
	if err != nil {
		return nil, dbError("list lifecycle events", err)
	}
	defer rows.Close()

	var events []models.LifecycleEvent
	for rows.Next() {
		var (
			e         models.LifecycleEvent
			meta      sql.NullString
			createdAt string
		)
		if err := rows.Scan(&e.ID, &e.DatasetID, &e.EventType, &meta, &createdAt); err != nil {
			return nil, dbError("scan lifecycle event", err)
		}
		e.Metadata = decodeMetadata(meta)
		e.CreatedAt = parseTime(createdAt)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("list lifecycle events", err)
	}
	return events, nil
}

// ListAudit returns audit events totally ordered by (created_at, id).
func (q *Queries) ListAudit(ctx context.Context, datasetID int64, order Order) ([]models.AuditEvent, error) {
	dir := order.sql()
	rows, err := q.q.QueryContext(ctx,
		`SELECT id, dataset_id, event_type, actor, metadata, created_at FROM audit_events
		 WHERE dataset_id = ? ORDER BY created_at `+dir+`, id `+dir,
		datasetID,
	)
	if err != nil {
		return nil, dbError("list audit events", err)
	}
	defer rows.Close()

	var events []models.AuditEvent
	for rows.Next() {
		var (
			e         models.AuditEvent
			meta      sql.NullString
			createdAt string
		)
		if err := rows.Scan(&e.ID, &e.DatasetID, &e.EventType, &e.Actor, &meta, &createdAt); err != nil {
			return nil, dbError("scan audit event", err)
		}
		e.Metadata = decodeMetadata(meta)
		e.CreatedAt = parseTime(createdAt)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("list audit events", err)
	}
	return events, nil
}

func encodeMetadata(m map[string]any) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode event metadata: %w: %w", apperr.ErrInvalidInput, err)
	}
	return string(b), nil
}

func decodeMetadata(s sql.NullString) map[string]any {
	m := map[string]any{}
	if !s.Valid || s.String == "" {
		return m
	}
	// Rows are only ever written by encodeMetadata; a decode failure leaves the map empty.
	_ = json.Unmarshal([]byte(s.String), &m)
	return m
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
