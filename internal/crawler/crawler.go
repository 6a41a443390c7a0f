// Package crawler walks a repository's documentation tree breadth-first and
// assembles the aggregate or per-page result.
package crawler

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/docfetch/internal/cache"
	"github.com/sells-group/docfetch/internal/fetch"
	"github.com/sells-group/docfetch/internal/model"
	"github.com/sells-group/docfetch/internal/queue"
)

const (
	// maxPages is the safety cap on pages per crawl, regardless of how many
	// links are discoverable.
	maxPages = 100
	// defaultBatchSize is how many frontier tasks are dispatched together.
	defaultBatchSize = 5
)

// ErrNoContent is returned when a crawl produces no usable pages, including
// when the root page itself cannot be fetched.
var ErrNoContent = eris.New("no substantial content found")

var repoRe = regexp.MustCompile(`^[A-Za-z0-9_.-]+/[A-Za-z0-9_.-]+$`)

// PageSource fetches one page at a crawl depth. Satisfied by
// *fetch.PageFetcher.
type PageSource interface {
	Fetch(ctx context.Context, url string, depth int) (*fetch.Result, error)
}

// Options configures a Crawler.
type Options struct {
	// Cache holds both per-page entries and whole crawl results. Required.
	Cache *cache.Store
	// BaseURL is the documentation site root, e.g. "https://wiki.example.com".
	BaseURL string
	// Pipeline is the shared decorated network stack. One breaker and one
	// limiter serve every crawl against the upstream.
	Pipeline fetch.ContentFetcher
	// Queue bounds in-flight page fetches.
	Queue queue.Config
	// BatchSize is the frontier dispatch width. Default: 5.
	BatchSize int
	// ResultTTL is the crawl-result cache lifetime. Default: 1h.
	ResultTTL time.Duration
	// PageTTL is the per-page cache lifetime. Default: 1h.
	PageTTL time.Duration
}

// Crawler coordinates the frontier, the visited set, and batch dispatch. The
// visited set is only touched from the orchestration loop between batches,
// never from worker goroutines.
type Crawler struct {
	cache     *cache.Store
	baseURL   string
	q         *queue.Queue[*fetch.Result]
	batchSize int
	resultTTL time.Duration

	// newSource builds the page source for one crawl, scoped to the
	// repository root. Swapped out in tests.
	newSource func(scope string) PageSource

	now func() time.Time
}

// New creates a Crawler.
func New(opts Options) *Crawler {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.ResultTTL <= 0 {
		opts.ResultTTL = time.Hour
	}

	c := &Crawler{
		cache:     opts.Cache,
		baseURL:   strings.TrimSuffix(opts.BaseURL, "/"),
		q:         queue.New[*fetch.Result](opts.Queue),
		batchSize: opts.BatchSize,
		resultTTL: opts.ResultTTL,
		now:       time.Now,
	}
	c.newSource = func(scope string) PageSource {
		return fetch.NewPageFetcher(fetch.PageFetcherOptions{
			Pipeline: opts.Pipeline,
			Cache:    opts.Cache,
			Scope:    scope,
			PageTTL:  opts.PageTTL,
		})
	}
	return c
}

type crawlTask struct {
	url   string
	depth int
}

// Crawl walks the page tree rooted at rootURL down to maxDepth and returns
// the pages in discovery order. Individual page failures are logged and
// skipped; only an empty result is an error.
func (c *Crawler) Crawl(ctx context.Context, rootURL string, maxDepth int) ([]model.Page, error) {
	source := c.newSource(rootURL)
	visited := make(map[string]bool)
	frontier := []crawlTask{{url: strings.TrimSuffix(rootURL, "/"), depth: 0}}

	var pages []model.Page
	for len(frontier) > 0 && len(pages) < maxPages {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "crawl cancelled")
		}

		// Pop the next batch, skipping anything already dispatched or past
		// the depth bound. Marking visited before dispatch keeps two
		// concurrently-discovered references to one URL from racing.
		var batch []crawlTask
		for len(batch) < c.batchSize && len(frontier) > 0 {
			t := frontier[0]
			frontier = frontier[1:]
			if visited[t.url] || t.depth > maxDepth {
				continue
			}
			visited[t.url] = true
			batch = append(batch, t)
		}
		if len(batch) == 0 {
			continue
		}

		tasks := make([]queue.Task[*fetch.Result], len(batch))
		for i, t := range batch {
			t := t
			tasks[i] = func(ctx context.Context) (*fetch.Result, error) {
				return source.Fetch(ctx, t.url, t.depth)
			}
		}

		// Settled dispatch: one bad page never sinks the batch.
		for i, res := range c.q.AddAllSettled(ctx, tasks) {
			t := batch[i]
			if res.Err != nil {
				zap.L().Warn("page fetch failed, skipping",
					zap.String("url", t.url),
					zap.Int("depth", t.depth),
					zap.Error(res.Err),
				)
				continue
			}
			if len(pages) >= maxPages {
				break
			}
			pages = append(pages, res.Value.Page)

			if t.depth < maxDepth {
				for _, link := range res.Value.Links {
					if !visited[link] {
						frontier = append(frontier, crawlTask{url: link, depth: t.depth + 1})
					}
				}
			}
		}
	}

	if len(pages) == 0 {
		return nil, ErrNoContent
	}
	return pages, nil
}

// FetchAggregated crawls the repository and joins every page into one
// document. The assembled result is cached; repeat calls within the TTL skip
// the crawl entirely.
func (c *Crawler) FetchAggregated(ctx context.Context, repository string, maxDepth int) (*model.CrawlResult, error) {
	return c.fetch(ctx, repository, model.ModeAggregate, maxDepth)
}

// FetchPages crawls the repository and returns the structured page list.
func (c *Crawler) FetchPages(ctx context.Context, repository string, maxDepth int) (*model.CrawlResult, error) {
	return c.fetch(ctx, repository, model.ModePages, maxDepth)
}

func (c *Crawler) fetch(ctx context.Context, repository string, mode model.Mode, maxDepth int) (*model.CrawlResult, error) {
	rootURL, err := c.RepositoryURL(repository)
	if err != nil {
		return nil, err
	}

	key := resultKey(repository, mode, maxDepth)
	if cached, ok := cache.GetAs[model.CrawlResult](c.cache, key); ok {
		zap.L().Info("crawl result served from cache",
			zap.String("repository", repository),
			zap.String("mode", string(mode)),
		)
		return &cached, nil
	}

	start := c.now()
	pages, err := c.Crawl(ctx, rootURL, maxDepth)
	if err != nil {
		return nil, err
	}

	result := &model.CrawlResult{
		Repository: repository,
		Mode:       mode,
		PageCount:  len(pages),
		FetchedAt:  start.UTC(),
	}
	switch mode {
	case model.ModeAggregate:
		result.Content = aggregate(pages)
	case model.ModePages:
		result.Pages = pages
	}

	c.cache.Set(key, result, c.resultTTL)

	zap.L().Info("crawl complete",
		zap.String("repository", repository),
		zap.String("mode", string(mode)),
		zap.Int("pages", len(pages)),
		zap.Duration("took", c.now().Sub(start)),
	)
	return result, nil
}

// RepositoryURL validates an "owner/repo" name and returns its root page URL.
func (c *Crawler) RepositoryURL(repository string) (string, error) {
	if !repoRe.MatchString(repository) {
		return "", eris.Errorf("invalid repository name %q, expected owner/repo", repository)
	}
	return c.baseURL + "/" + repository, nil
}

// aggregate joins pages as "# title\n\ncontent" blocks separated by a rule,
// in discovery order.
func aggregate(pages []model.Page) string {
	blocks := make([]string, 0, len(pages))
	for _, p := range pages {
		title := p.Title
		if title == "" {
			title = p.URL
		}
		blocks = append(blocks, "# "+title+"\n\n"+p.Content)
	}
	return strings.Join(blocks, "\n\n---\n\n")
}

func resultKey(repository string, mode model.Mode, maxDepth int) string {
	return fmt.Sprintf("crawl:%s:%s:%d", repository, mode, maxDepth)
}
