package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/docfetch/internal/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the page cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache entry counts and hit rates",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cs, err := openCacheStore()
		if err != nil {
			return err
		}
		defer cs.Stop()

		stats := cs.GetStats()
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintf(w, "Memory entries:\t%d\n", stats.MemoryEntries)
		_, _ = fmt.Fprintf(w, "Disk entries:\t%d\n", stats.DiskEntries)
		_, _ = fmt.Fprintf(w, "Hits:\t%d\n", stats.Hits)
		_, _ = fmt.Fprintf(w, "Misses:\t%d\n", stats.Misses)
		return w.Flush()
	},
}

var cacheCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove expired entries from both tiers",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cs, err := openCacheStore()
		if err != nil {
			return err
		}
		defer cs.Stop()

		removed := cs.Cleanup()
		fmt.Printf("Removed %d expired entr%s.\n", removed, plural(removed, "y", "ies"))
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop every cached entry",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cs, err := openCacheStore()
		if err != nil {
			return err
		}
		defer cs.Stop()

		cs.Clear()
		fmt.Println("Cache cleared.")
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheCleanupCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}

// openCacheStore opens the cache without the crawl stack, for maintenance
// commands.
func openCacheStore() (*cache.Store, error) {
	return cache.New(cache.Config{
		Root:            cfg.Cache.Root,
		DefaultTTL:      time.Duration(cfg.Cache.TTLHours) * time.Hour,
		CleanupInterval: time.Duration(cfg.Cache.CleanupIntervalHours) * time.Hour,
	})
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
