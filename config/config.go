// Copyright 2026 The TimedGeo Authors
// SPDX-License-Identifier: Apache-2.0

// Package config builds the process configuration once at startup.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/tourvisual/timedgeo/geocode"
	"gopkg.in/yaml.v3"
)

// Geocoder selections.
const (
	GeocoderAuto   = "auto"
	GeocoderGoogle = "google"
	GeocoderOSM    = "osm"
	GeocoderNone   = "none"
)

// Cache backends.
const (
	CacheMemory = "memory"
	CacheDuckDB = "duckdb"
)

// GoogleConfig configures the Google Maps geocoder.
type GoogleConfig struct {
	APIKey   string        `yaml:"api_key"`
	ADC      bool          `yaml:"adc"`      // look the key up with application default credentials
	Project  string        `yaml:"project"`  // project holding the key, default: from credentials
	KeyName  string        `yaml:"key_name"` // display name of the key
	BaseURL  string        `yaml:"base_url"`
	Interval time.Duration `yaml:"interval"` // spacing between calls, default 100ms
}

// PhotonConfig configures the OpenStreetMap geocoder.
type PhotonConfig struct {
	BaseURL string `yaml:"base_url"` // default https://photon.komoot.io
}

// CacheConfig configures the geocoding cache.
type CacheConfig struct {
	Backend string        `yaml:"backend"` // memory | duckdb
	Path    string        `yaml:"path"`    // duckdb file
	TTL     time.Duration `yaml:"ttl"`     // default 24h
}

// HTTPConfig configures the clients talking to geocoders.
type HTTPConfig struct {
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
	Trace     bool          `yaml:"trace"`
	TraceBody bool          `yaml:"trace_body"`
}

// Config is the whole configuration of a run.
type Config struct {
	Geocoder       string       `yaml:"geocoder"`   // auto | google | osm | none
	UseGoogle      bool         `yaml:"use_google"` // lets auto pick google
	Concurrency    int          `yaml:"concurrency"`
	DefaultCountry string       `yaml:"default_country"`
	Google         GoogleConfig `yaml:"google"`
	Photon         PhotonConfig `yaml:"photon"`
	Cache          CacheConfig  `yaml:"cache"`
	HTTP           HTTPConfig   `yaml:"http"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Geocoder:    GeocoderAuto,
		Concurrency: 8,
		Google: GoogleConfig{
			KeyName:  geocode.DefaultKeyDisplayName,
			Interval: 100 * time.Millisecond,
		},
		Cache: CacheConfig{
			Backend: CacheMemory,
			Path:    defaultCachePath(),
			TTL:     24 * time.Hour,
		},
		HTTP: HTTPConfig{
			Timeout: 30 * time.Second,
		},
	}
}

func defaultCachePath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "timedgeo-cache.duckdb"
	}

	return filepath.Join(dir, "timedgeo", "geocode.duckdb")
}

// Load builds the configuration: defaults, then the .env file of the working
// directory, then the YAML file at path (when not empty), then the
// environment. The result is not validated: callers apply their own
// overrides first and then call Validate.
func Load(path string) (Config, error) {
	// .env is optional
	_ = godotenv.Load()

	c := Default()

	if path != "" {
		b, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}

		if err := yaml.Unmarshal(b, &c); err != nil {
			return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	if err := c.applyEnv(); err != nil {
		return Config{}, err
	}

	return c, nil
}

func (c *Config) applyEnv() error {
	var errs []error

	c.Geocoder = getEnv("TIMED_GEO_GEOCODER", c.Geocoder)
	c.UseGoogle = getEnvBool("TIMED_GEO_USE_GOOGLE", c.UseGoogle)
	c.DefaultCountry = getEnv("TIMED_GEO_DEFAULT_COUNTRY", c.DefaultCountry)
	c.Google.APIKey = getEnv("GOOGLE_MAPS_API_KEY", getEnv("GOOGLE_API_KEY", c.Google.APIKey))
	c.Google.ADC = getEnvBool("TIMED_GEO_GOOGLE_ADC", c.Google.ADC)
	c.Google.Project = getEnv("TIMED_GEO_GOOGLE_PROJECT", c.Google.Project)
	c.Photon.BaseURL = getEnv("TIMED_GEO_PHOTON_URL", c.Photon.BaseURL)
	c.Cache.Backend = getEnv("TIMED_GEO_CACHE", c.Cache.Backend)
	c.Cache.Path = getEnv("TIMED_GEO_CACHE_PATH", c.Cache.Path)

	var err error

	if c.Concurrency, err = getEnvInt("TIMED_GEO_PHOTON_CONCURRENCY", c.Concurrency); err != nil {
		errs = append(errs, err)
	}

	if c.Cache.TTL, err = getEnvDuration("TIMED_GEO_CACHE_TTL", c.Cache.TTL); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Validate checks the values of c.
func (c Config) Validate() error {
	var errs []error

	switch c.Geocoder {
	case GeocoderAuto, GeocoderGoogle, GeocoderOSM, GeocoderNone:
	default:
		errs = append(errs, fmt.Errorf("geocoder must be one of auto, google, osm or none, got %q", c.Geocoder))
	}

	if c.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("concurrency must be positive, got %d", c.Concurrency))
	}

	switch c.Cache.Backend {
	case CacheMemory:
	case CacheDuckDB:
		if c.Cache.Path == "" {
			errs = append(errs, errors.New("duckdb cache needs a path"))
		}
	default:
		errs = append(errs, fmt.Errorf("cache must be memory or duckdb, got %q", c.Cache.Backend))
	}

	if c.Cache.TTL <= 0 {
		errs = append(errs, fmt.Errorf("cache ttl must be positive, got %v", c.Cache.TTL))
	}

	if c.Google.Interval < 0 {
		errs = append(errs, fmt.Errorf("google interval must not be negative, got %v", c.Google.Interval))
	}

	return errors.Join(errs...)
}

// HasGoogleCredential reports whether a Google key is configured or may be
// looked up.
func (c Config) HasGoogleCredential() bool {
	return c.Google.APIKey != "" || c.Google.ADC
}

// EffectiveGeocoder resolves the geocoder selection into google, osm or
// none. auto picks google only when UseGoogle is set and a credential is
// available. An explicit google without credential degrades to none; the
// returned warning explains why.
func (c Config) EffectiveGeocoder() (string, string) {
	switch c.Geocoder {
	case GeocoderNone, GeocoderOSM:
		return c.Geocoder, ""
	case GeocoderGoogle:
		if !c.HasGoogleCredential() {
			return GeocoderNone, "google geocoder selected but GOOGLE_MAPS_API_KEY is not set; places will not be resolved"
		}

		return GeocoderGoogle, ""
	default:
		if c.UseGoogle && c.HasGoogleCredential() {
			return GeocoderGoogle, ""
		}

		if c.UseGoogle {
			return GeocoderOSM, "use_google is set but no Google credential is available; using OpenStreetMap"
		}

		return GeocoderOSM, ""
	}
}

// getEnv returns the value of key, or defaultValue when unset or empty.
func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}

	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return defaultValue
	}

	return value == "true" || value == "1" || value == "yes"
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}

	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue, fmt.Errorf("%s: %w", key, err)
	}

	return n, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue, fmt.Errorf("%s: %w", key, err)
	}

	return d, nil
}
