// Package record turns a finished explanation into a history entry and
// persists it via the store.
package record

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/scbrown/cwhy/internal/model"
	"github.com/scbrown/cwhy/internal/store"
)

// Entry builds a HistoryEntry for an explanation of diag produced by modelID.
func Entry(sub model.Subcommand, diag model.Diagnostic, modelID string, p model.Prompt, response string) model.HistoryEntry {
	return model.HistoryEntry{
		Subcommand: sub,
		Command:    diag.Command.String(),
		ExitCode:   diag.ExitCode,
		Model:      modelID,
		Prompt:     p.String(),
		Response:   response,
	}
}

// Record fills in the id, timestamp and working directory when missing and
// stores e. The completed entry is returned.
//
// Subcommand and Command are required.
func Record(ctx context.Context, s store.Store, e model.HistoryEntry) (model.HistoryEntry, error) {
	if e.Subcommand == "" {
		return e, errors.New("missing required field: subcommand")
	}
	if e.Command == "" {
		return e, errors.New("missing required field: command")
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if e.CWD == "" {
		if wd, err := os.Getwd(); err == nil {
			e.CWD = wd
		}
	}

	if err := s.RecordEntry(ctx, e); err != nil {
		return e, fmt.Errorf("storing history entry: %w", err)
	}
	return e, nil
}
