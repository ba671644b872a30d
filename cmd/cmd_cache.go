// Copyright 2026 The TimedGeo Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tourvisual/timedgeo/config"
	"github.com/tourvisual/timedgeo/geocache"
	"github.com/tourvisual/timedgeo/utils/textutils"
)

var cacheOpts struct {
	Path string
	JSON bool
	All  bool
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspects the persistent geocoding cache",
}

// openPersistentCache opens the DuckDB cache named by flags or configuration.
func openPersistentCache(cmd *cobra.Command) (*geocache.DuckDB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	if cmd.Flags().Changed("cache-path") {
		cfg.Cache.Path = cacheOpts.Path
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if _, err := os.Stat(cfg.Cache.Path); err != nil {
		return nil, fmt.Errorf("cache %s: %w", cfg.Cache.Path, err)
	}

	return geocache.OpenDuckDB(cfg.Cache.Path, cfg.Cache.TTL)
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Counts cached answers",
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := openPersistentCache(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		stats, err := c.Stats(cmd.Context())
		if err != nil {
			return err
		}

		if cacheOpts.JSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")

			return enc.Encode(stats)
		}

		fmt.Printf("Entries:  %s\n", textutils.FormatInt(stats.Entries))
		fmt.Printf("Found:    %s\n", textutils.FormatInt(stats.Found))
		fmt.Printf("Negative: %s\n", textutils.FormatInt(stats.Negative))
		fmt.Printf("Expired:  %s\n", textutils.FormatInt(stats.Expired))
		fmt.Printf("H3 cells: %s\n", textutils.FormatInt(stats.Cells))

		return nil
	},
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Removes expired answers, or all of them with --all",
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := openPersistentCache(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		n, err := c.Purge(cmd.Context(), cacheOpts.All)
		if err != nil {
			return err
		}

		fmt.Printf("✅ Removed %s entries\n", textutils.FormatInt(n))

		return nil
	},
}

func init() {
	cacheCmd.PersistentFlags().StringVar(&cacheOpts.Path, "cache-path", "", "DuckDB cache file, default: from configuration")
	cacheStatsCmd.Flags().BoolVar(&cacheOpts.JSON, "json", false, "Print the counters as JSON")
	cachePurgeCmd.Flags().BoolVar(&cacheOpts.All, "all", false, "Remove every entry, not only expired ones")

	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cachePurgeCmd)
	rootCmd.AddCommand(cacheCmd)
}
