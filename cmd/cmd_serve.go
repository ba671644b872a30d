// Copyright 2026 The TimedGeo Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tourvisual/timedgeo/server"
)

type serveOptions struct {
	geocodingOptions
	Input string
	Title string
	Addr  string
}

var serveOpts serveOptions

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serves the map of an itinerary",
	Long: `
Resolves an itinerary once and serves its map page on / and the resolved
events as JSON on /api/events.
`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := serveOpts.loadConfig(cmd)
		if err != nil {
			return err
		}

		events, err := resolveItinerary(cmd.Context(), cfg, serveOpts.Input)
		if err != nil {
			return err
		}

		title := serveOpts.Title
		if title == "" {
			title = defaultTitle(serveOpts.Input)
		}

		s, err := server.New(events, title)
		if err != nil {
			return err
		}

		fmt.Printf("📍 Open http://%s\n", serveOpts.Addr)

		return s.Run(serveOpts.Addr)
	},
}

func init() {
	serveOpts.register(serveCmd)

	serveCmd.Flags().StringVarP(&serveOpts.Input, "input", "i", "", "Itinerary JSON file")
	serveCmd.Flags().StringVar(&serveOpts.Title, "title", "", "Page title")
	serveCmd.Flags().StringVar(&serveOpts.Addr, "addr", "localhost:8080", "Listen address")

	if err := serveCmd.MarkFlagRequired("input"); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(serveCmd)
}
