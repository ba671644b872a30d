// Copyright 2026 The TimedGeo Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/tourvisual/timedgeo/config"
	"github.com/tourvisual/timedgeo/itinerary"
	"github.com/tourvisual/timedgeo/pipeline"
	"github.com/tourvisual/timedgeo/render"
)

type renderOptions struct {
	geocodingOptions
	Input  string
	Output string
	Title  string
}

var renderOpts renderOptions

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Renders an itinerary as an interactive map page",
	Long: `
Loads a JSON itinerary, resolves the places that lack coordinates and writes a
standalone HTML page showing the events on a Leaflet map, with a sidebar
listing them in order.
`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := renderOpts.loadConfig(cmd)
		if err != nil {
			return err
		}

		events, err := resolveItinerary(cmd.Context(), cfg, renderOpts.Input)
		if err != nil {
			return err
		}

		title := renderOpts.Title
		if title == "" {
			title = defaultTitle(renderOpts.Input)
		}

		if err := writePage(renderOpts.Output, events, title); err != nil {
			return err
		}

		fmt.Printf("✅ Wrote %s\n", renderOpts.Output)

		return nil
	},
}

// resolveItinerary loads the itinerary at path and resolves its places.
func resolveItinerary(ctx context.Context, cfg config.Config, path string) ([]itinerary.RenderEvent, error) {
	events, err := itinerary.Load(path)
	if err != nil {
		return nil, err
	}

	resolver, closeCache, err := newResolver(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer closeCache()

	return pipeline.Run(ctx, events, resolver, pipeline.Options{DefaultCountry: cfg.DefaultCountry})
}

func defaultTitle(input string) string {
	return render.DefaultTitle + " — " + filepath.Base(input)
}

func writePage(path string, events []itinerary.RenderEvent, title string) error {
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("creating output: %w", err)
	}

	if err := render.Write(f, events, title); err != nil {
		f.Close()

		return fmt.Errorf("rendering %s: %w", path, err)
	}

	return f.Close()
}

func init() {
	renderOpts.register(renderCmd)

	renderCmd.Flags().StringVarP(&renderOpts.Input, "input", "i", "", "Itinerary JSON file")
	renderCmd.Flags().StringVarP(&renderOpts.Output, "output", "o", "", "HTML file to write")
	renderCmd.Flags().StringVar(&renderOpts.Title, "title", "", "Page title, default: Timed Geo Visual — <input name>")

	if err := renderCmd.MarkFlagRequired("input"); err != nil {
		panic(err)
	}

	if err := renderCmd.MarkFlagRequired("output"); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(renderCmd)
}
