// Package model defines the domain types shared across docfetch.
package model

import "time"

// Mode selects the shape of a crawl result.
type Mode string

const (
	// ModeAggregate joins every fetched page into one document.
	ModeAggregate Mode = "aggregate"
	// ModePages returns the structured per-page list.
	ModePages Mode = "pages"
)

// Valid reports whether the mode is one of the defined values.
func (m Mode) Valid() bool {
	return m == ModeAggregate || m == ModePages
}

// Page is a single fetched documentation page. Immutable once created.
type Page struct {
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Depth     int       `json:"depth"`
	FetchedAt time.Time `json:"fetched_at"`
}

// CrawlResult is the terminal output of one crawl invocation.
// Content is set in aggregate mode, Pages in pages mode.
type CrawlResult struct {
	Repository string    `json:"repository"`
	Mode       Mode      `json:"mode"`
	Content    string    `json:"content,omitempty"`
	Pages      []Page    `json:"pages,omitempty"`
	PageCount  int       `json:"page_count"`
	FetchedAt  time.Time `json:"fetched_at"`
}

// RunStatus describes the lifecycle state of a recorded crawl run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// CrawlRun is a history record of one crawl, persisted by the store.
type CrawlRun struct {
	ID         string    `json:"id"`
	Repository string    `json:"repository"`
	Mode       Mode      `json:"mode"`
	Status     RunStatus `json:"status"`
	PageCount  int       `json:"page_count"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
}
