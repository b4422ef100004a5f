package eventstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// PGStore implements Store against the event_documents jsonb table.
type PGStore struct {
	db *sql.DB
}

var _ Store = (*PGStore)(nil)

// NewPGStore constructs a PGStore using the provided database handle.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Get(ctx context.Context, index, id string) (*Document, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT doc FROM event_documents WHERE doc_index = $1 AND doc_id = $2
	`, index, id).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("get", classify(err))
	}
	var src map[string]any
	if err := json.Unmarshal(raw, &src); err != nil {
		return nil, wrap("get", err)
	}
	return &Document{Index: index, ID: id, Src: src}, nil
}

func (s *PGStore) Index(ctx context.Context, index, id string, doc map[string]any, opType OpType) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return wrap("index", err)
	}
	now := time.Now().UTC()

	if opType == OpCreate {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO event_documents (doc_index, doc_id, doc, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $4)
		`, index, id, raw, now)
		if isUniqueViolation(err) {
			return wrap("index", fmt.Errorf("%w: %s/%s", ErrConflict, index, id))
		}
		return wrap("index", classify(err))
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO event_documents (doc_index, doc_id, doc, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (doc_index, doc_id) DO UPDATE
		SET doc = EXCLUDED.doc, updated_at = EXCLUDED.updated_at
	`, index, id, raw, now)
	return wrap("index", classify(err))
}

func (s *PGStore) Update(ctx context.Context, index, id string, partial map[string]any) error {
	raw, err := json.Marshal(partial)
	if err != nil {
		return wrap("update", err)
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE event_documents
		SET doc = doc || $3::jsonb, updated_at = $4
		WHERE doc_index = $1 AND doc_id = $2
	`, index, id, raw, time.Now().UTC())
	if err != nil {
		return wrap("update", classify(err))
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return wrap("update", fmt.Errorf("%w: %s/%s", ErrNotFound, index, id))
	}
	return nil
}

func (s *PGStore) Bulk(ctx context.Context, ops []BulkOp) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap("bulk", classify(err))
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	for _, op := range ops {
		raw, err := json.Marshal(op.Partial)
		if err != nil {
			return wrap("bulk", err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE event_documents
			SET doc = doc || $3::jsonb, updated_at = $4
			WHERE doc_index = $1 AND doc_id = $2
		`, op.Index, op.ID, raw, now); err != nil {
			return wrap("bulk", classify(err))
		}
	}
	if err := tx.Commit(); err != nil {
		return wrap("bulk", classify(err))
	}
	return nil
}

func (s *PGStore) Search(ctx context.Context, q Query) (*SearchResult, error) {
	where, args := buildWhere(q)
	order := buildOrder(q.Sort)
	limit := q.Size
	if limit <= 0 {
		limit = 1000
	}

	query := fmt.Sprintf(`
		SELECT doc_id, doc FROM event_documents
		WHERE doc_index = $1 %s
		%s
		LIMIT %d
	`, where, order, limit)

	rows, err := s.db.QueryContext(ctx, query, append([]any{q.Index}, args...)...)
	if err != nil {
		return nil, wrap("search", classify(err))
	}
	defer rows.Close()

	var hits []Document
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, wrap("search", err)
		}
		var src map[string]any
		if err := json.Unmarshal(raw, &src); err != nil {
			return nil, wrap("search", err)
		}
		hits = append(hits, Document{Index: q.Index, ID: id, Src: src})
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("search", classify(err))
	}

	switch q.Response {
	case ResponseExactlyOne:
		if len(hits) != 1 {
			return nil, wrap("search", fmt.Errorf("%w: expected exactly one, got %d", ErrConflict, len(hits)))
		}
	case ResponseFirst:
		if len(hits) > 1 {
			hits = hits[:1]
		}
	}

	return &SearchResult{Total: len(hits), Hits: hits}, nil
}

// buildWhere translates Query clauses into a parameterized jsonb predicate,
// the correlator's stand-in for a search engine's bool query.
func buildWhere(q Query) (string, []any) {
	var sb strings.Builder
	var args []any
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args)+1)
	}

	for _, c := range q.Must {
		sb.WriteString(" AND ")
		writeClause(&sb, c, next, false)
	}
	for _, c := range q.MustNot {
		sb.WriteString(" AND ")
		writeClause(&sb, c, next, true)
	}
	return sb.String(), args
}

func writeClause(sb *strings.Builder, c Clause, next func(any) string, negate bool) {
	path := fmt.Sprintf("doc->>'%s'", c.Field)
	not := ""
	if negate {
		not = "NOT "
	}
	switch c.Op {
	case OpTerm:
		fmt.Fprintf(sb, "%s(%s = %s)", not, path, next(fmt.Sprintf("%v", c.Value)))
	case OpTerms:
		placeholders := make([]string, 0, len(c.Values))
		for _, v := range c.Values {
			placeholders = append(placeholders, next(fmt.Sprintf("%v", v)))
		}
		fmt.Fprintf(sb, "%s(%s IN (%s))", not, path, strings.Join(placeholders, ","))
	case OpRange:
		fmt.Fprintf(sb, "%s(%s <= %s)", not, path, next(fmt.Sprintf("%v", c.Value)))
	case OpExists:
		fmt.Fprintf(sb, "%s(doc ? '%s')", not, c.Field)
	}
}

func buildOrder(sorts []SortField) string {
	if len(sorts) == 0 {
		return ""
	}
	parts := make([]string, 0, len(sorts))
	for _, s := range sorts {
		dir := "ASC"
		if s.Descending {
			dir = "DESC"
		}
		parts = append(parts, fmt.Sprintf("doc->>'%s' %s", s.Field, dir))
	}
	return "ORDER BY " + strings.Join(parts, ", ")
}

// StaleIndices returns every distinct doc_index whose "events-YYYYMMDD"
// date suffix is older than before, for the index-retention purge job.
func (s *PGStore) StaleIndices(ctx context.Context, before time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT doc_index FROM event_documents`)
	if err != nil {
		return nil, wrap("stale-indices", classify(err))
	}
	defer rows.Close()

	var stale []string
	for rows.Next() {
		var index string
		if err := rows.Scan(&index); err != nil {
			return nil, wrap("stale-indices", err)
		}
		if t, ok := indexDate(index); ok && t.Before(before) {
			stale = append(stale, index)
		}
	}
	return stale, rows.Err()
}

// AnyActiveDocument reports whether index still holds a document whose
// status is outside the terminal set, blocking deletion.
func (s *PGStore) AnyActiveDocument(ctx context.Context, index string, terminalStatuses []string) (bool, error) {
	placeholders := make([]string, len(terminalStatuses))
	args := make([]any, 0, len(terminalStatuses)+1)
	args = append(args, index)
	for i, st := range terminalStatuses {
		args = append(args, st)
		placeholders[i] = fmt.Sprintf("$%d", i+2)
	}
	query := fmt.Sprintf(`
		SELECT EXISTS(
			SELECT 1 FROM event_documents
			WHERE doc_index = $1 AND doc->>'status' NOT IN (%s)
		)
	`, strings.Join(placeholders, ","))

	var exists bool
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&exists); err != nil {
		return false, wrap("any-active-document", classify(err))
	}
	return exists, nil
}

// DeleteDocuments removes every document under index, returning the count removed.
func (s *PGStore) DeleteDocuments(ctx context.Context, index string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM event_documents WHERE doc_index = $1`, index)
	if err != nil {
		return 0, wrap("delete-documents", classify(err))
	}
	return result.RowsAffected()
}

func indexDate(index string) (time.Time, bool) {
	const prefix = "events-"
	if !strings.HasPrefix(index, prefix) {
		return time.Time{}, false
	}
	t, err := time.Parse("20060102", strings.TrimPrefix(index, prefix))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	if pqErr, ok := err.(*pq.Error); ok {
		switch pqErr.Code.Class() {
		case "08", "53", "57", "55": // connection, resource, operator intervention, lock
			return fmt.Errorf("%w: %v", ErrTransient, err)
		}
	}
	return err
}

func isUniqueViolation(err error) bool {
	pqErr, ok := err.(*pq.Error)
	return ok && pqErr.Code == "23505"
}
