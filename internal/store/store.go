// Package store defines the storage interface for the optional explanation
// history.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/scbrown/cwhy/internal/model"
)

// ErrAmbiguousID is returned when an id prefix matches more than one entry.
var ErrAmbiguousID = errors.New("id prefix matches more than one entry")

// Store is the persistence interface for history entries.
type Store interface {
	// RecordEntry persists a single explanation.
	RecordEntry(ctx context.Context, e model.HistoryEntry) error

	// ListEntries returns entries matching the given filter options, newest first.
	ListEntries(ctx context.Context, opts ListOpts) ([]model.HistoryEntry, error)

	// GetEntry returns the entry whose id equals or starts with id, or nil
	// if there is none.
	GetEntry(ctx context.Context, id string) (*model.HistoryEntry, error)

	// Stats returns summary statistics about stored entries.
	Stats(ctx context.Context) (Stats, error)

	// Close releases any resources held by the store.
	Close() error
}

// ListOpts controls filtering for ListEntries.
type ListOpts struct {
	Since      time.Time        // Only entries after this time.
	Subcommand model.Subcommand // Filter by subcommand.
	Model      string           // Filter by model id.
	Limit      int              // Maximum results; 0 means no limit.
}

// NameCount pairs a name (model or subcommand) with its occurrence count.
type NameCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Stats holds summary statistics about stored entries.
type Stats struct {
	Total        int         `json:"total"`
	TopModels    []NameCount `json:"top_models"`
	BySubcommand []NameCount `json:"by_subcommand"`
	Earliest     time.Time   `json:"earliest"`
	Latest       time.Time   `json:"latest"`
}
