package correlator

import (
	"testing"
	"time"

	"github.com/fluxgate/correlator/internal/model"
)

func TestMissingFields(t *testing.T) {
	cases := []struct {
		name string
		doc  map[string]any
		want []string
	}{
		{
			name: "all present",
			doc: map[string]any{
				fieldTitle: "disk full", fieldEventType: "up", fieldAssetUniqueID: "host-1",
			},
			want: nil,
		},
		{
			name: "missing asset id",
			doc: map[string]any{
				fieldTitle: "disk full", fieldEventType: "up",
			},
			want: []string{fieldAssetUniqueID},
		},
		{
			name: "empty string counts as missing",
			doc: map[string]any{
				fieldTitle: "", fieldEventType: "up", fieldAssetUniqueID: "host-1",
			},
			want: []string{fieldTitle},
		},
		{
			name: "nil value counts as missing",
			doc: map[string]any{
				fieldTitle: nil, fieldEventType: "up", fieldAssetUniqueID: "host-1",
			},
			want: []string{fieldTitle},
		},
		{
			name: "everything missing",
			doc:  map[string]any{},
			want: []string{fieldTitle, fieldEventType, fieldAssetUniqueID},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := missingFields(tc.doc)
			if len(got) != len(tc.want) {
				t.Fatalf("missingFields() = %v, want %v", got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("missingFields() = %v, want %v", got, tc.want)
				}
			}
		})
	}
}

func TestFollowOnForNew(t *testing.T) {
	cases := []struct {
		name       string
		rec        model.EventRecord
		wantTask   string
		wantOK     bool
		wantCtdown time.Duration
	}{
		{
			name:       "new up event re-enters TaskNew",
			rec:        model.EventRecord{Status: model.StatusNew, EventType: model.EventTypeUp},
			wantTask:   TaskNew,
			wantOK:     true,
			wantCtdown: countdownShort,
		},
		{
			name:       "new down event re-enters TaskNew",
			rec:        model.EventRecord{Status: model.StatusNew, EventType: model.EventTypeDown},
			wantTask:   TaskNew,
			wantOK:     true,
			wantCtdown: countdownShort,
		},
		{
			name:   "error status is terminal",
			rec:    model.EventRecord{Status: model.StatusError, EventType: model.EventTypeUp},
			wantOK: false,
		},
		{
			name:   "unrecognized event type with new status is terminal",
			rec:    model.EventRecord{Status: model.StatusNew, EventType: model.EventType("unknown")},
			wantOK: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			task, countdown, ok := followOnForNew(tc.rec)
			if ok != tc.wantOK {
				t.Fatalf("followOnForNew() ok = %v, want %v", ok, tc.wantOK)
			}
			if !ok {
				return
			}
			if task != tc.wantTask {
				t.Errorf("task = %q, want %q", task, tc.wantTask)
			}
			if countdown != tc.wantCtdown {
				t.Errorf("countdown = %v, want %v", countdown, tc.wantCtdown)
			}
		})
	}
}

func TestStringField(t *testing.T) {
	src := map[string]any{"title": "disk full", "count": 3}
	if got := stringField(src, "title"); got != "disk full" {
		t.Errorf("stringField(title) = %q, want %q", got, "disk full")
	}
	if got := stringField(src, "count"); got != "" {
		t.Errorf("stringField(count) = %q, want empty (non-string value)", got)
	}
	if got := stringField(src, "missing"); got != "" {
		t.Errorf("stringField(missing) = %q, want empty", got)
	}
}

func TestParseTimestamp(t *testing.T) {
	ts, ok := parseTimestamp("2026-07-30T10:00:00Z")
	if !ok {
		t.Fatal("expected parseTimestamp to succeed on RFC3339")
	}
	if ts.Year() != 2026 {
		t.Errorf("parsed year = %d, want 2026", ts.Year())
	}
	if _, ok := parseTimestamp("not-a-timestamp"); ok {
		t.Error("expected parseTimestamp to fail on garbage input")
	}
	if _, ok := parseTimestamp(42); ok {
		t.Error("expected parseTimestamp to fail on non-string input")
	}
}
