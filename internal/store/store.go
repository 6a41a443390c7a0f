// Package store persists crawl-run history. Recording is best effort: a
// store failure is logged by the caller and never aborts a crawl.
package store

import (
	"context"

	"github.com/sells-group/docfetch/internal/model"
)

// Store records and lists crawl runs.
type Store interface {
	// CreateRun inserts a running record for the given crawl.
	CreateRun(ctx context.Context, repository string, mode model.Mode) (*model.CrawlRun, error)
	// FinishRun marks a run complete or failed with its page count.
	FinishRun(ctx context.Context, runID string, status model.RunStatus, pageCount int, errMsg string) error
	// ListRuns returns the most recent runs, newest first.
	ListRuns(ctx context.Context, limit int) ([]model.CrawlRun, error)
	// Close releases the underlying database.
	Close() error
}
