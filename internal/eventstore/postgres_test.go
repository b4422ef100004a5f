package eventstore

import (
	"strings"
	"testing"
	"time"
)

func TestBuildWhereTermAndTerms(t *testing.T) {
	q := Query{
		Must: []Clause{
			{Field: "status", Op: OpTerm, Value: "new"},
			{Field: "level", Op: OpTerms, Values: []any{"critical", "major"}},
		},
		MustNot: []Clause{
			{Field: "asset_type", Op: OpExists},
		},
	}
	where, args := buildWhere(q)

	if !strings.Contains(where, "doc->>'status'") {
		t.Errorf("where clause missing status predicate: %s", where)
	}
	if !strings.Contains(where, "doc->>'level'") || !strings.Contains(where, "IN") {
		t.Errorf("where clause missing level IN predicate: %s", where)
	}
	if !strings.Contains(where, "NOT (doc ? 'asset_type')") {
		t.Errorf("where clause missing negated exists predicate: %s", where)
	}
	if len(args) != 3 {
		t.Fatalf("expected 3 bound args (1 term + 2 terms values), got %d: %v", len(args), args)
	}
}

func TestBuildWhereRange(t *testing.T) {
	q := Query{Must: []Clause{{Field: "event_ts", Op: OpRange, Value: "2026-01-01"}}}
	where, args := buildWhere(q)
	if !strings.Contains(where, "<=") {
		t.Errorf("range clause should use <=: %s", where)
	}
	if len(args) != 1 {
		t.Fatalf("expected 1 bound arg, got %d", len(args))
	}
}

func TestBuildOrder(t *testing.T) {
	if got := buildOrder(nil); got != "" {
		t.Errorf("buildOrder(nil) = %q, want empty", got)
	}
	got := buildOrder([]SortField{{Field: "event_ts", Descending: true}, {Field: "title"}})
	want := "ORDER BY doc->>'event_ts' DESC, doc->>'title' ASC"
	if got != want {
		t.Errorf("buildOrder() = %q, want %q", got, want)
	}
}

func TestIndexDate(t *testing.T) {
	cases := []struct {
		index   string
		wantOK  bool
		wantDay int
	}{
		{"events-20260730", true, 30},
		{"events-garbage", false, 0},
		{"other-index", false, 0},
		{"events-202607300", false, 0},
	}
	for _, tc := range cases {
		got, ok := indexDate(tc.index)
		if ok != tc.wantOK {
			t.Errorf("indexDate(%q) ok = %v, want %v", tc.index, ok, tc.wantOK)
			continue
		}
		if ok && got.Day() != tc.wantDay {
			t.Errorf("indexDate(%q).Day() = %d, want %d", tc.index, got.Day(), tc.wantDay)
		}
	}
}

func TestIndexDateBefore(t *testing.T) {
	t0, ok := indexDate("events-20260101")
	if !ok {
		t.Fatal("expected valid index date")
	}
	cutoff := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	if !t0.Before(cutoff) {
		t.Errorf("expected %v to be before %v", t0, cutoff)
	}
}
