package main

import (
	"fmt"
	"io"
	"os"

	"github.com/baskills/meetingvoice/internal/cache"
	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	cacheCmd = &cobra.Command{
		Use:   "cache",
		Short: "Inspect or empty the synthesized audio cache",
		Args:  cobra.NoArgs,
	}

	cacheStatsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Show cache usage",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return withCache(func(m *cache.Manager) error {
				return printCacheStats(os.Stdout, m.Stats())
			})
		},
	}

	cacheClearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Delete all cached audio",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return withCache(func(m *cache.Manager) error {
				if err := m.Clear(); err != nil {
					return err
				}
				fmt.Println("Cache cleared.")
				return nil
			})
		},
	}

	cachePruneCmd = &cobra.Command{
		Use:   "prune",
		Short: "Delete cached audio older than the configured TTL",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return withCache(func(m *cache.Manager) error {
				n := m.Cleanup()
				fmt.Printf("Removed %d expired %s.\n", n, plural(int64(n), "entry"))
				return nil
			})
		},
	}
)

func init() {
	cacheCmd.AddCommand(cacheStatsCmd, cacheClearCmd, cachePruneCmd)
}

func withCache(fn func(*cache.Manager) error) error {
	c := cfg.CacheConfig()
	c.CleanupInterval = 0
	m, err := cache.NewManager(c, log.Default())
	if err != nil {
		return err
	}
	defer func() { _ = m.Close() }()
	return fn(m)
}

func printCacheStats(w io.Writer, stats []cache.Stats) error {
	fmt.Fprintf(w, "%-7s  %9s  %9s  %6s  %8s\n", "LEVEL", "SIZE", "CAPACITY", "ITEMS", "HIT RATE")
	for _, s := range stats {
		if _, err := fmt.Fprintf(w, "%-7s  %9s  %9s  %6d  %7.1f%%\n",
			s.Level,
			humanize.IBytes(uint64(max(0, s.Size))), //nolint:gosec
			humanize.IBytes(uint64(max(0, s.Capacity))), //nolint:gosec
			s.Items,
			s.HitRate()*100,
		); err != nil {
			return err
		}
	}
	return nil
}
