// Package ingresslog is the relational record of every inbound ingest
// request (the "ApiLog" of the system this was distilled from).
package ingresslog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/fluxgate/correlator/internal/model"
)

const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// ErrLocked is returned when another worker already holds the row's lock
// (SQLSTATE 55P03), the same NOWAIT outcome eventrecord.Store surfaces.
var ErrLocked = errors.New("ingresslog: row locked")

type logRow struct {
	ID              int64          `db:"id"`
	Method          string         `db:"method"`
	TaskType        string         `db:"task_type"`
	Status          string         `db:"status"`
	MonitorToolIPID sql.NullInt64  `db:"monitor_tool_ip_id"`
	EventDocID      sql.NullString `db:"event_doc_id"`
	EventDocIndex   sql.NullString `db:"event_doc_index"`
	RawBody         string         `db:"raw_body"`
	TaskData        []byte         `db:"task_data"`
	CreatedAt       time.Time      `db:"created_at"`
	CompletedAt     sql.NullTime   `db:"completed_at"`
}

func (r logRow) toModel() (model.IngressLog, error) {
	log := model.IngressLog{
		ID:            r.ID,
		Method:        r.Method,
		TaskType:      r.TaskType,
		Status:        r.Status,
		EventDocID:    r.EventDocID.String,
		EventDocIndex: r.EventDocIndex.String,
		RawBody:       r.RawBody,
		CreatedAt:     r.CreatedAt,
	}
	if r.MonitorToolIPID.Valid {
		v := r.MonitorToolIPID.Int64
		log.MonitorToolIPID = &v
	}
	if r.CompletedAt.Valid {
		v := r.CompletedAt.Time
		log.CompletedAt = &v
	}
	if len(r.TaskData) > 0 {
		if err := json.Unmarshal(r.TaskData, &log.TaskData); err != nil {
			return model.IngressLog{}, err
		}
	}
	return log, nil
}

const selectColumns = `id, method, task_type, status, monitor_tool_ip_id, event_doc_id, event_doc_index, raw_body, task_data, created_at, completed_at`

// Store persists IngressLog rows.
type Store struct {
	db *sqlx.DB
}

// New constructs a Store.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Create inserts a pending ingress log entry, returning its assigned ID.
func (s *Store) Create(ctx context.Context, log model.IngressLog) (int64, error) {
	taskData, err := json.Marshal(log.TaskData)
	if err != nil {
		return 0, err
	}
	var id int64
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO ingress_logs (method, task_type, status, monitor_tool_ip_id, raw_body, task_data, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING id
	`, log.Method, log.TaskType, StatusPending, log.MonitorToolIPID, log.RawBody, taskData, time.Now().UTC()).Scan(&id)
	return id, err
}

// Complete marks an ingress log entry completed and links it to the event
// document it produced.
func (s *Store) Complete(ctx context.Context, id int64, docIndex, docID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE ingress_logs
		SET status = $2, event_doc_index = $3, event_doc_id = $4, completed_at = $5
		WHERE id = $1
	`, id, StatusCompleted, docIndex, docID, time.Now().UTC())
	return err
}

// Fail marks an ingress log entry failed.
func (s *Store) Fail(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE ingress_logs SET status = $2, completed_at = $3 WHERE id = $1
	`, id, StatusFailed, time.Now().UTC())
	return err
}

// Get reads a log entry outside of any lock.
func (s *Store) Get(ctx context.Context, id int64) (model.IngressLog, error) {
	var r logRow
	if err := s.db.GetContext(ctx, &r, `SELECT `+selectColumns+` FROM ingress_logs WHERE id = $1`, id); err != nil {
		return model.IngressLog{}, err
	}
	return r.toModel()
}

// LockForUpdate opens a transaction and locks the given log row with FOR
// UPDATE NOWAIT, mirroring eventrecord.Store's concurrency primitive so the
// ingest handler and the state-machine dispatcher share the same at-most-
// one-worker-per-row guarantee.
func (s *Store) LockForUpdate(ctx context.Context, id int64) (*sqlx.Tx, model.IngressLog, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, model.IngressLog{}, err
	}

	var r logRow
	err = tx.GetContext(ctx, &r, `SELECT `+selectColumns+` FROM ingress_logs WHERE id = $1 FOR UPDATE NOWAIT`, id)
	if err != nil {
		_ = tx.Rollback()
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "55P03" {
			return nil, model.IngressLog{}, ErrLocked
		}
		return nil, model.IngressLog{}, err
	}

	log, err := r.toModel()
	if err != nil {
		_ = tx.Rollback()
		return nil, model.IngressLog{}, err
	}
	return tx, log, nil
}

// PurgeOlderThan deletes terminal-status ingress logs (and orphaned pending
// ones) older than before, returning the number of rows removed.
func (s *Store) PurgeOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM ingress_logs
		WHERE created_at < $1
		  AND (status != $2 OR id NOT IN (SELECT ingress_log_id FROM event_records WHERE ingress_log_id IS NOT NULL))
	`, before, StatusPending)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
