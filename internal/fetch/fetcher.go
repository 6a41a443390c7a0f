package fetch

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/docfetch/internal/cache"
	"github.com/sells-group/docfetch/internal/model"
)

// Result is one fetched page plus the same-repository links discovered in
// it. Links ride along in the cache entry so a cached page can still grow
// the crawl frontier.
type Result struct {
	Page  model.Page `json:"page"`
	Links []string   `json:"links"`
}

// PageFetcher turns a URL into a sanitized Page, consulting the cache before
// touching the decorator pipeline.
type PageFetcher struct {
	pipeline ContentFetcher
	cache    *cache.Store
	scope    string
	pageTTL  time.Duration

	now func() time.Time
}

// PageFetcherOptions configures a PageFetcher for one repository crawl.
type PageFetcherOptions struct {
	// Pipeline is the decorated network stack from NewPipeline.
	Pipeline ContentFetcher
	// Cache holds per-page entries. Required.
	Cache *cache.Store
	// Scope is the repository root URL; extracted links are limited to it.
	Scope string
	// PageTTL is the per-page cache lifetime. Default: 1h.
	PageTTL time.Duration
}

// NewPageFetcher creates a fetcher scoped to one repository.
func NewPageFetcher(opts PageFetcherOptions) *PageFetcher {
	if opts.PageTTL <= 0 {
		opts.PageTTL = time.Hour
	}
	return &PageFetcher{
		pipeline: opts.Pipeline,
		cache:    opts.Cache,
		scope:    opts.Scope,
		pageTTL:  opts.PageTTL,
		now:      time.Now,
	}
}

// Fetch returns the page at rawURL, from cache when possible. Depth is the
// crawl depth of the task that requested the page; cached content is reused
// across depths but the returned Page always reflects the requested depth.
func (f *PageFetcher) Fetch(ctx context.Context, rawURL string, depth int) (*Result, error) {
	key := pageKey(rawURL)
	if cached, ok := cache.GetAs[Result](f.cache, key); ok {
		cached.Page.Depth = depth
		zap.L().Debug("page cache hit", zap.String("url", rawURL))
		return &cached, nil
	}

	body, err := f.pipeline.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	links, err := ExtractLinks(body, rawURL, f.scope)
	if err != nil {
		zap.L().Warn("link extraction failed, page kept without links",
			zap.String("url", rawURL),
			zap.Error(err),
		)
		links = nil
	}

	res := &Result{
		Page: model.Page{
			URL:       rawURL,
			Title:     ExtractTitle(body),
			Content:   Sanitize(body),
			Depth:     depth,
			FetchedAt: f.now().UTC(),
		},
		Links: links,
	}

	f.cache.Set(key, res, f.pageTTL)
	return res, nil
}

func pageKey(url string) string {
	return "page:" + url
}
