// Copyright 2026 The TimedGeo Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/tourvisual/timedgeo/config"
	"github.com/tourvisual/timedgeo/geocache"
	"github.com/tourvisual/timedgeo/geocode"
	"github.com/tourvisual/timedgeo/pipeline"
	"github.com/tourvisual/timedgeo/utils/httputils"
)

// geocodingOptions are the flags shared by the commands that resolve places.
type geocodingOptions struct {
	Geocoder       string
	Concurrency    int
	DefaultCountry string
	Cache          string
	CachePath      string
	CacheTTL       time.Duration
	TraceHTTP      bool
	TraceHTTPBody  bool
}

func (o *geocodingOptions) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&o.Geocoder, "geocoder", config.GeocoderAuto, "Geocoder to use: auto, google, osm or none")
	flags.IntVar(&o.Concurrency, "concurrency", 8, "Max in-flight OpenStreetMap queries")
	flags.StringVar(&o.DefaultCountry, "default-country", "", "Country bias for events without country or country_code")
	flags.StringVar(&o.Cache, "cache", config.CacheMemory, "Geocoding cache: memory or duckdb")
	flags.StringVar(&o.CachePath, "cache-path", "", "DuckDB cache file")
	flags.DurationVar(&o.CacheTTL, "cache-ttl", geocache.DefaultTTL, "How long cached answers stay valid")
	flags.BoolVar(&o.TraceHTTP, "trace-http", false, "Display HTTP requests-responses")
	flags.BoolVar(&o.TraceHTTPBody, "trace-http-body", false, "Display HTTP requests-responses bodies")
}

// loadConfig reads the configuration and lets explicit flags override it.
func (o *geocodingOptions) loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}

	flags := cmd.Flags()

	if flags.Changed("geocoder") {
		cfg.Geocoder = o.Geocoder
	}

	if flags.Changed("concurrency") {
		cfg.Concurrency = o.Concurrency
	}

	if flags.Changed("default-country") {
		cfg.DefaultCountry = o.DefaultCountry
	}

	if flags.Changed("cache") {
		cfg.Cache.Backend = o.Cache
	}

	if flags.Changed("cache-path") {
		cfg.Cache.Path = o.CachePath
	}

	if flags.Changed("cache-ttl") {
		cfg.Cache.TTL = o.CacheTTL
	}

	cfg.HTTP.Trace = cfg.HTTP.Trace || o.TraceHTTP || o.TraceHTTPBody
	cfg.HTTP.TraceBody = cfg.HTTP.TraceBody || o.TraceHTTPBody

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}

	return cfg, nil
}

func newHTTPClient(cfg config.Config) *http.Client {
	var traceWriter io.Writer
	if cfg.HTTP.Trace {
		traceWriter = os.Stderr
	}

	userAgent := cfg.HTTP.UserAgent
	if userAgent == "" {
		userAgent = fmt.Sprintf("timedgeo/%s (+https://github.com/tourvisual/timedgeo)", Version)
	}

	return httputils.NewClient(httputils.ClientOptions{
		UserAgent:       userAgent,
		Timeout:         cfg.HTTP.Timeout,
		MaxConnsPerHost: cfg.Concurrency,
		TraceWriter:     traceWriter,
		TraceBody:       cfg.HTTP.TraceBody,
	})
}

// apiKeyFromADC looks the Google key up; tests replace it.
var apiKeyFromADC = geocode.APIKeyFromADC

// newGeocoder builds the geocoder of the effective mode. A failed key lookup
// degrades auto to OpenStreetMap and an explicit google to ModeNone, with a
// warning.
func newGeocoder(ctx context.Context, cfg config.Config) (pipeline.Mode, geocode.Geocoder) {
	mode, warning := cfg.EffectiveGeocoder()
	if warning != "" {
		log.Printf("Warning: %s", warning)
	}

	switch mode {
	case config.GeocoderGoogle:
		apiKey := cfg.Google.APIKey
		if apiKey == "" {
			log.Println("GOOGLE_MAPS_API_KEY is not set. Attempting to retrieve via ADC...")

			var err error

			apiKey, err = apiKeyFromADC(ctx, cfg.Google.Project, cfg.Google.KeyName)
			if err != nil {
				if cfg.Geocoder == config.GeocoderAuto {
					log.Printf("Warning: failed to retrieve API key via ADC, using OpenStreetMap: %v", err)

					return pipeline.ModeOSM, geocode.NewPhotonGeocoder(cfg.Photon.BaseURL, newHTTPClient(cfg))
				}

				log.Printf("Warning: failed to retrieve API key via ADC, places will not be resolved: %v", err)

				return pipeline.ModeNone, nil
			}

			log.Println("✅ Successfully retrieved Google Maps API Key via ADC")
		}

		return pipeline.ModeGoogle, geocode.NewGoogleMapsGeocoder(apiKey, cfg.Google.BaseURL, newHTTPClient(cfg))
	case config.GeocoderOSM:
		return pipeline.ModeOSM, geocode.NewPhotonGeocoder(cfg.Photon.BaseURL, newHTTPClient(cfg))
	default:
		return pipeline.ModeNone, nil
	}
}

// openCache opens the configured cache. A DuckDB cache that cannot be opened
// degrades to memory.
func openCache(cfg config.Config) geocache.Cache {
	if cfg.Cache.Backend != config.CacheDuckDB {
		return geocache.NewMemory(cfg.Cache.TTL)
	}

	c, err := openDuckDBCache(cfg)
	if err != nil {
		log.Printf("Warning: %v, using an in-memory cache", err)

		return geocache.NewMemory(cfg.Cache.TTL)
	}

	return c
}

func openDuckDBCache(cfg config.Config) (*geocache.DuckDB, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Cache.Path), 0o750); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	return geocache.OpenDuckDB(cfg.Cache.Path, cfg.Cache.TTL)
}

// newResolver wires geocoder, cache and resolver. The returned func releases
// the cache.
func newResolver(ctx context.Context, cfg config.Config) (*pipeline.Resolver, func(), error) {
	mode, g := newGeocoder(ctx, cfg)

	var (
		cache    geocache.Cache
		interval time.Duration
	)

	if mode != pipeline.ModeNone {
		cache = openCache(cfg)
	}

	if mode == pipeline.ModeGoogle {
		interval = cfg.Google.Interval
	}

	closeCache := func() {
		if cache == nil {
			return
		}

		if err := cache.Close(); err != nil {
			log.Printf("Warning: closing cache: %v", err)
		}
	}

	resolver, err := pipeline.NewResolver(g, pipeline.ResolverOptions{
		Mode:        mode,
		Concurrency: cfg.Concurrency,
		Interval:    interval,
		Cache:       cache,
	})
	if err != nil {
		closeCache()

		return nil, nil, err
	}

	return resolver, closeCache, nil
}
