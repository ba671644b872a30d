// Copyright 2026 The TimedGeo Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/tourvisual/timedgeo/geocode"
	"github.com/tourvisual/timedgeo/itinerary"
	"github.com/tourvisual/timedgeo/pipeline"
	"github.com/tourvisual/timedgeo/spatial"
)

// we say that it isn't.
func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}

	return (info.Mode() & os.ModeCharDevice) != 0
}

var debugCmd = &cobra.Command{
	Use:   "debug",
	Short: "Dev tools",
}

var debugGeocodeOpts geocodingOptions

var debugGeocodeCmd = &cobra.Command{
	Use:   "geocode",
	Short: "Geocodes one query per line",
	Long: `Reads one query per line and prints in stdout the query followed by the
best candidate and its H3 cell.

$ echo "Taipei 101, Taiwan" | timedgeo debug geocode --geocoder osm
Taipei 101, Taiwan		{"point":{"lat":25.03,"lon":121.56},…}	884ba0...
	`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := debugGeocodeOpts.loadConfig(cmd)
		if err != nil {
			return err
		}

		mode, g := newGeocoder(cmd.Context(), cfg)
		if mode == pipeline.ModeNone {
			return pipeline.ErrNoGeocoder
		}

		input := os.Stdin
		if isTerminal(input) {
			fmt.Fprintln(os.Stderr, "Enter places to geocode, one per line…")
		}

		scanner := bufio.NewScanner(input)
		for scanner.Scan() {
			query := scanner.Text()
			if query == "" {
				continue
			}

			c, found, err := geocodeOne(cmd, g, query)
			switch {
			case err != nil:
				fmt.Printf("%s\t%q\n", query, err)
			case !found:
				fmt.Printf("%s\tnot found\n", query)
			default:
				s, err := json.Marshal(c)
				if err != nil {
					log.Fatal(err)
				}

				fmt.Printf("%s\t\t%s\t%s\n", query, s, cellOf(c.Point))
			}
		}

		if err := scanner.Err(); err != nil {
			return fmt.Errorf("reading input: %w", err)
		}

		return nil
	},
}

func geocodeOne(cmd *cobra.Command, g geocode.Geocoder, query string) (geocode.Candidate, bool, error) {
	resp, err := g.Geocode(cmd.Context(), query)
	if err != nil {
		return geocode.Candidate{}, false, err
	}

	return resp.Candidate()
}

func cellOf(p spatial.Point) string {
	cell, err := p.H3Cell(spatial.CacheResolution)
	if err != nil {
		return "-"
	}

	return fmt.Sprintf("%x", cell)
}

var debugPendingOpts struct {
	DefaultCountry string
}

var debugPendingCmd = &cobra.Command{
	Use:   "pending <itinerary.json>",
	Short: "Lists the queries an itinerary would send to the geocoder",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		events, err := itinerary.Load(args[0])
		if err != nil {
			return err
		}

		for i := range events {
			events[i] = events[i].Backfill()
		}

		for _, p := range pipeline.BuildPending(events, debugPendingOpts.DefaultCountry) {
			fmt.Printf("%d\t%s\t%s\n", p.Index, p.Role, p.Query)
		}

		return nil
	},
}

func init() {
	debugGeocodeOpts.register(debugGeocodeCmd)
	debugPendingCmd.Flags().StringVar(&debugPendingOpts.DefaultCountry, "default-country", "", "Country bias for events without one")

	rootCmd.AddCommand(debugCmd)
	debugCmd.AddCommand(debugGeocodeCmd)
	debugCmd.AddCommand(debugPendingCmd)
}
