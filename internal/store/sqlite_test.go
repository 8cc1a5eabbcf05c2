package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/scbrown/cwhy/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	s, err := New(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func entry(id string, ts time.Time, sub model.Subcommand, modelID string) model.HistoryEntry {
	return model.HistoryEntry{
		ID:         id,
		Timestamp:  ts,
		Subcommand: sub,
		Command:    "gcc -c broken.c",
		ExitCode:   1,
		Model:      modelID,
		Prompt:     "This is my error: expected ';'",
		Response:   "Add a semicolon.",
		CWD:        "/src",
	}
}

func TestNewCreatesDir(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "a", "b", "c")
	s, err := New(filepath.Join(nested, "test.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()
	if _, err := os.Stat(nested); err != nil {
		t.Errorf("expected directory %s to exist: %v", nested, err)
	}
}

func TestMigrateIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	s1, err := New(dbPath)
	if err != nil {
		t.Fatalf("first New: %v", err)
	}
	s1.Close()

	s2, err := New(dbPath)
	if err != nil {
		t.Fatalf("second New: %v", err)
	}
	s2.Close()
}

func TestRecordAndListEntries(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 2, 7, 12, 0, 0, 0, time.UTC)

	for i, e := range []model.HistoryEntry{
		entry("aaa", base, model.Explain, "gpt-3.5-turbo"),
		entry("bbb", base.Add(time.Hour), model.Fix, "gpt-4"),
		entry("ccc", base.Add(2*time.Hour), model.Explain, "gpt-4"),
	} {
		if err := s.RecordEntry(ctx, e); err != nil {
			t.Fatalf("RecordEntry %d: %v", i, err)
		}
	}

	all, err := s.ListEntries(ctx, ListOpts{})
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d entries, want 3", len(all))
	}
	if all[0].ID != "ccc" || all[2].ID != "aaa" {
		t.Errorf("entries not newest first: %s, %s, %s", all[0].ID, all[1].ID, all[2].ID)
	}
	got := all[2]
	if got.Command != "gcc -c broken.c" || got.ExitCode != 1 || got.Model != "gpt-3.5-turbo" || got.CWD != "/src" {
		t.Errorf("round trip lost fields: %+v", got)
	}
	if !got.Timestamp.Equal(base) {
		t.Errorf("Timestamp = %v, want %v", got.Timestamp, base)
	}

	tests := []struct {
		name string
		opts ListOpts
		want int
	}{
		{"by subcommand", ListOpts{Subcommand: model.Explain}, 2},
		{"by model", ListOpts{Model: "gpt-4"}, 2},
		{"since", ListOpts{Since: base.Add(30 * time.Minute)}, 2},
		{"limit", ListOpts{Limit: 1}, 1},
		{"no match", ListOpts{Subcommand: model.Diff}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListEntries(ctx, tt.opts)
			if err != nil {
				t.Fatalf("ListEntries: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("got %d entries, want %d", len(got), tt.want)
			}
		})
	}
}

func TestGetEntry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()
	for _, id := range []string{"abc123", "abd456", "abc"} {
		if err := s.RecordEntry(ctx, entry(id, now, model.Explain, "gpt-4")); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		id      string
		want    string
		wantErr error
	}{
		{"abc123", "abc123", nil},
		{"abd", "abd456", nil},
		{"abc", "abc", nil}, // exact match wins over prefix
		{"ab", "", ErrAmbiguousID},
		{"zzz", "", nil},
		{"", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			got, err := s.GetEntry(ctx, tt.id)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("GetEntry: %v", err)
			}
			if tt.want == "" {
				if got != nil {
					t.Errorf("expected no entry, got %s", got.ID)
				}
				return
			}
			if got == nil || got.ID != tt.want {
				t.Errorf("got %v, want %s", got, tt.want)
			}
		})
	}
}

func TestStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats on empty db: %v", err)
	}
	if st.Total != 0 || !st.Earliest.IsZero() {
		t.Errorf("unexpected stats on empty db: %+v", st)
	}

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	s.RecordEntry(ctx, entry("1", base, model.Explain, "gpt-4"))
	s.RecordEntry(ctx, entry("2", base.Add(time.Hour), model.Explain, "gpt-4"))
	s.RecordEntry(ctx, entry("3", base.Add(2*time.Hour), model.Fix, "claude-3-5-sonnet"))

	st, err = s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Total != 3 {
		t.Errorf("Total = %d, want 3", st.Total)
	}
	if len(st.TopModels) != 2 || st.TopModels[0].Name != "gpt-4" || st.TopModels[0].Count != 2 {
		t.Errorf("TopModels = %+v", st.TopModels)
	}
	if len(st.BySubcommand) != 2 || st.BySubcommand[0].Name != "explain" {
		t.Errorf("BySubcommand = %+v", st.BySubcommand)
	}
	if !st.Earliest.Equal(base) || !st.Latest.Equal(base.Add(2*time.Hour)) {
		t.Errorf("range = %v..%v", st.Earliest, st.Latest)
	}
}
