// Copyright 2026 The TimedGeo Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
)

type logWriter struct {
	writer io.Writer
}

func (w *logWriter) Write(bytes []byte) (int, error) {
	return fmt.Fprintf(w.writer, "%s %s", time.Now().Format("2006-01-02 15:04:05"), string(bytes))
}

func init() {
	log.SetFlags(0)
	log.SetOutput(&logWriter{writer: os.Stderr})
}

var rootCmd = &cobra.Command{
	Use:   "timedgeo",
	Short: "timed itineraries on an interactive map",
	Long: `
timedgeo turns a JSON itinerary of timed, located events into a standalone
Leaflet map page, resolving place names to coordinates with Google Maps or
OpenStreetMap (Photon) when the itinerary does not carry them.
`,
	SilenceUsage: true,
}

// configPath is the optional YAML configuration file.
var configPath string

var Version = "dev"

func Execute(version string) {
	Version = version

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&configPath,
		"config",
		"",
		"YAML configuration file",
	)
}
