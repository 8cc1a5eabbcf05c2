package record

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/scbrown/cwhy/internal/model"
	"github.com/scbrown/cwhy/internal/store"
)

// fakeStore records calls to RecordEntry for test inspection.
type fakeStore struct {
	recorded []model.HistoryEntry
	err      error
}

func (f *fakeStore) RecordEntry(_ context.Context, e model.HistoryEntry) error {
	if f.err != nil {
		return f.err
	}
	f.recorded = append(f.recorded, e)
	return nil
}

func (f *fakeStore) ListEntries(context.Context, store.ListOpts) ([]model.HistoryEntry, error) {
	return nil, nil
}
func (f *fakeStore) GetEntry(context.Context, string) (*model.HistoryEntry, error) { return nil, nil }
func (f *fakeStore) Stats(context.Context) (store.Stats, error)                     { return store.Stats{}, nil }
func (f *fakeStore) Close() error                                                  { return nil }

func TestRecord(t *testing.T) {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []struct {
		name    string
		entry   model.HistoryEntry
		wantErr string
		check   func(t *testing.T, e model.HistoryEntry)
	}{
		{
			name:  "generates id and timestamp",
			entry: model.HistoryEntry{Subcommand: model.Explain, Command: "gcc -c a.c"},
			check: func(t *testing.T, e model.HistoryEntry) {
				if _, err := uuid.Parse(e.ID); err != nil {
					t.Errorf("ID %q is not a UUID: %v", e.ID, err)
				}
				if e.Timestamp.IsZero() || time.Since(e.Timestamp) > time.Minute {
					t.Errorf("Timestamp = %v, want about now", e.Timestamp)
				}
				if e.CWD == "" {
					t.Error("CWD not filled in")
				}
			},
		},
		{
			name: "keeps provided values",
			entry: model.HistoryEntry{
				ID: "fixed-id", Timestamp: fixed, CWD: "/elsewhere",
				Subcommand: model.Fix, Command: "clang a.c",
			},
			check: func(t *testing.T, e model.HistoryEntry) {
				if e.ID != "fixed-id" || !e.Timestamp.Equal(fixed) || e.CWD != "/elsewhere" {
					t.Errorf("provided values overwritten: %+v", e)
				}
			},
		},
		{
			name:    "missing subcommand",
			entry:   model.HistoryEntry{Command: "gcc"},
			wantErr: "subcommand",
		},
		{
			name:    "missing command",
			entry:   model.HistoryEntry{Subcommand: model.Explain},
			wantErr: "command",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := &fakeStore{}
			got, err := Record(context.Background(), fs, tt.entry)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err = %v, want containing %q", err, tt.wantErr)
				}
				if len(fs.recorded) != 0 {
					t.Error("invalid entry was stored")
				}
				return
			}
			if err != nil {
				t.Fatalf("Record: %v", err)
			}
			if len(fs.recorded) != 1 || fs.recorded[0].ID != got.ID {
				t.Fatalf("stored %+v, returned %+v", fs.recorded, got)
			}
			tt.check(t, got)
		})
	}
}

func TestRecordStoreError(t *testing.T) {
	fs := &fakeStore{err: errors.New("disk full")}
	_, err := Record(context.Background(), fs, model.HistoryEntry{Subcommand: model.Explain, Command: "cc"})
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Errorf("err = %v, want wrapped store error", err)
	}
}

func TestEntry(t *testing.T) {
	diag := model.Diagnostic{Command: model.Invocation{"gcc", "-c", "broken.c"}, ExitCode: 1}
	p := model.Prompt{Diagnostic: "error: expected ';'", Instruction: "Explain."}
	e := Entry(model.Explain, diag, "gpt-4", p, "Add a semicolon.")
	if e.Command != "gcc -c broken.c" {
		t.Errorf("Command = %q", e.Command)
	}
	if e.ExitCode != 1 || e.Model != "gpt-4" || e.Response != "Add a semicolon." {
		t.Errorf("unexpected entry: %+v", e)
	}
	if !strings.Contains(e.Prompt, "expected ';'") {
		t.Errorf("Prompt does not contain the diagnostic:\n%s", e.Prompt)
	}
}
