// Package eventrecord is the relational mirror of an event document: the
// row the Dispatcher locks and the state machine advances.
package eventrecord

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/fluxgate/correlator/internal/model"
)

// ErrLocked is returned when a row is already locked by another transaction
// (SQLSTATE 55P03, lock_not_available — the NOWAIT outcome).
var ErrLocked = errors.New("eventrecord: row locked")

// Store reads and writes event_records rows.
type Store struct {
	db *sqlx.DB
}

// New constructs a Store.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

type row struct {
	ID              int64           `db:"id"`
	IngressLogID    sql.NullInt64   `db:"ingress_log_id"`
	MonitorToolIPID sql.NullInt64   `db:"monitor_tool_ip_id"`
	DocID           string          `db:"doc_id"`
	DocIndex        string          `db:"doc_index"`
	Status          string          `db:"status"`
	Level           sql.NullString  `db:"level"`
	Title           string          `db:"title"`
	EventTS         time.Time       `db:"event_ts"`
	EventType       string          `db:"event_type"`
	AssetUniqueID   string          `db:"asset_unique_id"`
	AssetType       sql.NullString  `db:"asset_type"`
	RetryCount      int             `db:"retry_count"`
	Extras          json.RawMessage `db:"extras"`
	CreatedAt       time.Time       `db:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at"`
}

func (r row) toModel() (model.EventRecord, error) {
	rec := model.EventRecord{
		ID:            r.ID,
		DocID:         r.DocID,
		DocIndex:      r.DocIndex,
		Status:        model.EventStatus(r.Status),
		Level:         r.Level.String,
		Title:         r.Title,
		EventTS:       r.EventTS,
		EventType:     model.EventType(r.EventType),
		AssetUniqueID: r.AssetUniqueID,
		AssetType:     r.AssetType.String,
		RetryCount:    r.RetryCount,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	if r.IngressLogID.Valid {
		v := r.IngressLogID.Int64
		rec.IngressLogID = &v
	}
	if r.MonitorToolIPID.Valid {
		v := r.MonitorToolIPID.Int64
		rec.MonitorToolIPID = &v
	}
	if len(r.Extras) > 0 {
		if err := json.Unmarshal(r.Extras, &rec.Extras); err != nil {
			return model.EventRecord{}, err
		}
	}
	if rec.Extras == nil {
		rec.Extras = map[string]any{}
	}
	return rec, nil
}

// Create inserts a new event record.
func (s *Store) Create(ctx context.Context, rec model.EventRecord) (model.EventRecord, error) {
	extras, err := json.Marshal(rec.Extras)
	if err != nil {
		return model.EventRecord{}, err
	}
	now := time.Now().UTC()
	rec.CreatedAt, rec.UpdatedAt = now, now

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO event_records
			(ingress_log_id, monitor_tool_ip_id, doc_id, doc_index, status, level, title,
			 event_ts, event_type, asset_unique_id, asset_type, retry_count, extras, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$14)
		RETURNING id
	`, rec.IngressLogID, rec.MonitorToolIPID, rec.DocID, rec.DocIndex, string(rec.Status), rec.Level, rec.Title,
		rec.EventTS, string(rec.EventType), rec.AssetUniqueID, rec.AssetType, rec.RetryCount, extras, now,
	).Scan(&rec.ID)
	if err != nil {
		return model.EventRecord{}, err
	}
	return rec, nil
}

// LockForUpdate opens a transaction and locks the given record's row with
// FOR UPDATE NOWAIT, the correlator's sole concurrency-safety primitive: one
// worker advances an entity's state at a time, and a contending worker
// observes ErrLocked instead of blocking.
func (s *Store) LockForUpdate(ctx context.Context, id int64) (*sqlx.Tx, model.EventRecord, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, model.EventRecord{}, err
	}

	var r row
	err = tx.GetContext(ctx, &r, `
		SELECT id, ingress_log_id, monitor_tool_ip_id, doc_id, doc_index, status, level, title,
		       event_ts, event_type, asset_unique_id, asset_type, retry_count, extras, created_at, updated_at
		FROM event_records WHERE id = $1 FOR UPDATE NOWAIT
	`, id)
	if err != nil {
		_ = tx.Rollback()
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "55P03" {
			return nil, model.EventRecord{}, ErrLocked
		}
		return nil, model.EventRecord{}, err
	}

	rec, err := r.toModel()
	if err != nil {
		_ = tx.Rollback()
		return nil, model.EventRecord{}, err
	}
	return tx, rec, nil
}

// Save writes rec's mutable fields back within tx.
func (s *Store) Save(ctx context.Context, tx *sqlx.Tx, rec model.EventRecord) error {
	extras, err := json.Marshal(rec.Extras)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE event_records
		SET status = $2, level = $3, retry_count = $4, extras = $5, updated_at = $6
		WHERE id = $1
	`, rec.ID, string(rec.Status), rec.Level, rec.RetryCount, extras, time.Now().UTC())
	return err
}

// Get reads a record outside of any lock, for read-only lookups (e.g.
// resolving a manual-resolve request's target).
func (s *Store) Get(ctx context.Context, id int64) (model.EventRecord, error) {
	var r row
	if err := s.db.GetContext(ctx, &r, `
		SELECT id, ingress_log_id, monitor_tool_ip_id, doc_id, doc_index, status, level, title,
		       event_ts, event_type, asset_unique_id, asset_type, retry_count, extras, created_at, updated_at
		FROM event_records WHERE id = $1
	`, id); err != nil {
		return model.EventRecord{}, err
	}
	return r.toModel()
}

// FindAlertedByTicket finds the unique alerted+down record carrying the
// given external ticket ID, used by manual-resolve.
func (s *Store) FindAlertedByTicket(ctx context.Context, ticketID int) (model.EventRecord, error) {
	var r row
	err := s.db.GetContext(ctx, &r, `
		SELECT id, ingress_log_id, monitor_tool_ip_id, doc_id, doc_index, status, level, title,
		       event_ts, event_type, asset_unique_id, asset_type, retry_count, extras, created_at, updated_at
		FROM event_records
		WHERE status = $1 AND event_type = $2 AND (extras->>'ticket_id')::int = $3
	`, string(model.StatusAlerted), string(model.EventTypeDown), ticketID)
	if err != nil {
		return model.EventRecord{}, fmt.Errorf("find alerted by ticket %d: %w", ticketID, err)
	}
	return r.toModel()
}

// PurgeTerminal deletes event_records in a terminal status (resolved,
// deduped, error) last updated before before, returning the count removed.
func (s *Store) PurgeTerminal(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM event_records
		WHERE status IN ($1, $2, $3) AND updated_at < $4
	`, string(model.StatusResolved), string(model.StatusDeduped), string(model.StatusError), before)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
