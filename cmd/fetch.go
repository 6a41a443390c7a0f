package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/docfetch/internal/cache"
	"github.com/sells-group/docfetch/internal/config"
	"github.com/sells-group/docfetch/internal/crawler"
	"github.com/sells-group/docfetch/internal/fetch"
	"github.com/sells-group/docfetch/internal/model"
	"github.com/sells-group/docfetch/internal/queue"
	"github.com/sells-group/docfetch/internal/ratelimit"
	"github.com/sells-group/docfetch/internal/resilience"
	"github.com/sells-group/docfetch/internal/store"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <owner/repo>",
	Short: "Fetch a repository's documentation",
	Long:  "Crawls the documentation tree for the named repository and prints the aggregated document, or the page list with --mode pages.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		repository := args[0]

		modeFlag, _ := cmd.Flags().GetString("mode")
		mode := model.Mode(modeFlag)
		if !mode.Valid() {
			return eris.Errorf("invalid mode %q, expected aggregate or pages", modeFlag)
		}

		maxDepth, _ := cmd.Flags().GetInt("max-depth")
		if maxDepth < 0 {
			maxDepth = cfg.Crawl.MaxDepth
		}
		asJSON, _ := cmd.Flags().GetBool("json")

		cs, c, err := openCache(cfg)
		if err != nil {
			return err
		}
		defer cs.Stop()

		run := recordRunStart(ctx, repository, mode)

		var result *model.CrawlResult
		switch mode {
		case model.ModeAggregate:
			result, err = c.FetchAggregated(ctx, repository, maxDepth)
		case model.ModePages:
			result, err = c.FetchPages(ctx, repository, maxDepth)
		}
		if err != nil {
			recordRunFinish(ctx, run, model.RunStatusFailed, 0, err.Error())
			return err
		}
		recordRunFinish(ctx, run, model.RunStatusComplete, result.PageCount, "")

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		}

		switch mode {
		case model.ModeAggregate:
			fmt.Println(result.Content)
		case model.ModePages:
			for _, p := range result.Pages {
				fmt.Printf("[%d] %s\n    %s\n", p.Depth, p.Title, p.URL)
			}
		}
		fmt.Fprintf(os.Stderr, "\n%d page(s) fetched at %s\n",
			result.PageCount, result.FetchedAt.Format(time.RFC3339))
		return nil
	},
}

func init() {
	fetchCmd.Flags().String("mode", "aggregate", "result shape: aggregate or pages")
	fetchCmd.Flags().Int("max-depth", -1, "link-following depth from the root page (default from config)")
	fetchCmd.Flags().Bool("json", false, "print the full result as JSON")
	rootCmd.AddCommand(fetchCmd)
}

// openCache builds the cache store and the fully wired crawler on top of it.
func openCache(cfg *config.Config) (*cache.Store, *crawler.Crawler, error) {
	cs, err := cache.New(cache.Config{
		Root:            cfg.Cache.Root,
		DefaultTTL:      time.Duration(cfg.Cache.TTLHours) * time.Hour,
		CleanupInterval: time.Duration(cfg.Cache.CleanupIntervalHours) * time.Hour,
	})
	if err != nil {
		return nil, nil, err
	}
	cs.StartCleanup()

	breaker := resilience.NewCircuitBreaker(resilience.CircuitConfig{
		FailureThreshold: cfg.Circuit.FailureThreshold,
		ResetTimeout:     time.Duration(cfg.Circuit.ResetTimeoutSecs) * time.Second,
		SuccessThreshold: cfg.Circuit.SuccessThreshold,
		OnStateChange: func(from, to resilience.CircuitState) {
			zap.L().Warn("circuit state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	pipeline := fetch.NewPipeline(
		fetch.HTTPOptions{
			UserAgent: cfg.Site.UserAgent,
			Timeout:   time.Duration(cfg.Site.TimeoutSecs) * time.Second,
		},
		resilience.RetryConfig{
			MaxAttempts:   cfg.Retry.MaxAttempts,
			BaseDelay:     cfg.Retry.BaseDelay(),
			MaxDelay:      cfg.Retry.MaxDelay(),
			BackoffFactor: cfg.Retry.BackoffFactor,
			ShouldRetry:   resilience.RetryTransient,
			OnRetry:       resilience.RetryLogger("page fetch"),
		},
		breaker,
		ratelimit.New(ratelimit.Config{
			MaxTokens:    cfg.RateLimit.MaxTokens,
			RefillPerSec: cfg.RateLimit.RefillPerSec,
		}),
	)

	c := crawler.New(crawler.Options{
		Cache:    cs,
		BaseURL:  cfg.Site.BaseURL,
		Pipeline: pipeline,
		Queue: queue.Config{
			MaxConcurrent: cfg.Queue.MaxConcurrent,
			TaskTimeout:   time.Duration(cfg.Queue.TaskTimeoutSecs) * time.Second,
		},
		BatchSize: cfg.Crawl.BatchSize,
		ResultTTL: time.Duration(cfg.Cache.TTLHours) * time.Hour,
		PageTTL:   time.Duration(cfg.Cache.TTLHours) * time.Hour,
	})
	return cs, c, nil
}

// initStore opens the run-history database. History is best effort, so
// callers log and continue on error.
func initStore(ctx context.Context) (*store.SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0o755); err != nil {
		return nil, eris.Wrap(err, "create store directory")
	}
	st, err := store.NewSQLite(cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

func recordRunStart(ctx context.Context, repository string, mode model.Mode) *model.CrawlRun {
	st, err := initStore(ctx)
	if err != nil {
		zap.L().Warn("run history unavailable", zap.Error(err))
		return nil
	}
	defer st.Close() //nolint:errcheck

	run, err := st.CreateRun(ctx, repository, mode)
	if err != nil {
		zap.L().Warn("failed to record run start", zap.Error(err))
		return nil
	}
	return run
}

func recordRunFinish(ctx context.Context, run *model.CrawlRun, status model.RunStatus, pageCount int, errMsg string) {
	if run == nil {
		return
	}
	st, err := initStore(ctx)
	if err != nil {
		zap.L().Warn("run history unavailable", zap.Error(err))
		return
	}
	defer st.Close() //nolint:errcheck

	if err := st.FinishRun(ctx, run.ID, status, pageCount, errMsg); err != nil {
		zap.L().Warn("failed to record run finish", zap.Error(err))
	}
}
