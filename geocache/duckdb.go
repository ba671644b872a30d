// Copyright 2026 The TimedGeo Authors
// SPDX-License-Identifier: Apache-2.0

package geocache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	_ "github.com/duckdb/duckdb-go/v2" // registers the duckdb driver
	"github.com/tourvisual/timedgeo/spatial"
)

// DuckDB is a Cache persisted in a DuckDB database.
type DuckDB struct {
	db     *sql.DB
	ttl    time.Duration
	now    func() time.Time
	closer bool
}

// OpenDuckDB opens (or creates) the database at path and its schema. An
// empty path is an in-memory database.
func OpenDuckDB(path string, ttl time.Duration) (*DuckDB, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("opening cache %q: %w", path, err)
	}

	c := NewDuckDB(db, ttl)
	c.closer = true

	if err := c.CreateSchema(); err != nil {
		db.Close()

		return nil, err
	}

	return c, nil
}

// NewDuckDB wraps an already open database. The caller keeps ownership of db.
func NewDuckDB(db *sql.DB, ttl time.Duration) *DuckDB {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &DuckDB{db: db, ttl: ttl, now: time.Now}
}

// CreateSchema creates the geocode_cache table.
func (c *DuckDB) CreateSchema() error {
	_, err := c.db.Exec(`
		CREATE TABLE IF NOT EXISTS geocode_cache (
			provider   VARCHAR   NOT NULL,
			query      VARCHAR   NOT NULL,
			found      BOOLEAN   NOT NULL,
			point      VARCHAR,
			name       VARCHAR,
			countries  VARCHAR,
			confidence VARCHAR,
			address    VARCHAR,
			h3_res8    BIGINT,
			stored_at  TIMESTAMP NOT NULL,
			PRIMARY KEY (provider, query)
		);
	`)
	if err != nil {
		return fmt.Errorf("creating geocode_cache table: %w", err)
	}

	// caches written before addresses were kept lack the column
	if _, err := c.db.Exec(`ALTER TABLE geocode_cache ADD COLUMN IF NOT EXISTS address VARCHAR`); err != nil {
		return fmt.Errorf("adding geocode_cache.address: %w", err)
	}

	return nil
}

func (c *DuckDB) Get(ctx context.Context, namespace, query string) (Entry, bool, error) {
	var (
		e          Entry
		point      spatial.Point
		name       sql.NullString
		countries  sql.NullString
		confidence sql.NullString
		address    sql.NullString
	)

	err := c.db.QueryRowContext(ctx, `
		SELECT found, point, name, countries, confidence, address, stored_at
		FROM geocode_cache
		WHERE provider = ? AND query = ?
	`, namespace, query).Scan(&e.Found, &point, &name, &countries, &confidence, &address, &e.StoredAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}

	if err != nil {
		return Entry{}, false, fmt.Errorf("reading cache entry %q: %w", query, err)
	}

	if e.Expired(c.now(), c.ttl) {
		return Entry{}, false, nil
	}

	if e.Found {
		e.Candidate.Point = point
		e.Candidate.Name = name.String
		e.Candidate.Confidence = confidence.String
		e.Candidate.Provider = namespace

		if countries.Valid && countries.String != "" {
			if err := json.Unmarshal([]byte(countries.String), &e.Candidate.Countries); err != nil {
				return Entry{}, false, fmt.Errorf("decoding countries of %q: %w", query, err)
			}
		}

		if address.Valid && address.String != "" {
			if err := json.Unmarshal([]byte(address.String), &e.Candidate.Address); err != nil {
				return Entry{}, false, fmt.Errorf("decoding address of %q: %w", query, err)
			}
		}
	}

	return e, true, nil
}

func (c *DuckDB) Put(ctx context.Context, namespace, query string, entry Entry) error {
	if entry.StoredAt.IsZero() {
		entry.StoredAt = c.now()
	}

	var (
		point      sql.NullString
		name       sql.NullString
		countries  sql.NullString
		confidence sql.NullString
		address    sql.NullString
		cell       sql.NullInt64
	)

	if entry.Found {
		cand := entry.Candidate
		point = sql.NullString{String: cand.Point.String(), Valid: true}
		name = sql.NullString{String: cand.Name, Valid: cand.Name != ""}
		confidence = sql.NullString{String: cand.Confidence, Valid: cand.Confidence != ""}

		if len(cand.Countries) > 0 {
			data, err := json.Marshal(cand.Countries)
			if err != nil {
				return fmt.Errorf("encoding countries of %q: %w", query, err)
			}

			countries = sql.NullString{String: string(data), Valid: true}
		}

		if len(cand.Address) > 0 {
			data, err := json.Marshal(cand.Address)
			if err != nil {
				return fmt.Errorf("encoding address of %q: %w", query, err)
			}

			address = sql.NullString{String: string(data), Valid: true}
		}

		if h, err := cand.Point.H3Cell(spatial.CacheResolution); err != nil {
			log.Printf("Warning: %q: %v", query, err)
		} else {
			cell = sql.NullInt64{Int64: h, Valid: true}
		}
	}

	_, err := c.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO geocode_cache (provider, query, found, point, name, countries, confidence, address, h3_res8, stored_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, namespace, query, entry.Found, point, name, countries, confidence, address, cell, entry.StoredAt.UTC())
	if err != nil {
		return fmt.Errorf("storing cache entry %q: %w", query, err)
	}

	return nil
}

// Stats counts the stored entries.
func (c *DuckDB) Stats(ctx context.Context) (Stats, error) {
	var s Stats

	cutoff := c.now().Add(-c.ttl).UTC()

	err := c.db.QueryRowContext(ctx, `
		SELECT
			count(*),
			count(*) FILTER (WHERE found),
			count(*) FILTER (WHERE NOT found),
			count(*) FILTER (WHERE stored_at < ?),
			count(DISTINCT h3_res8)
		FROM geocode_cache
	`, cutoff).Scan(&s.Entries, &s.Found, &s.Negative, &s.Expired, &s.Cells)
	if err != nil {
		return Stats{}, fmt.Errorf("computing cache stats: %w", err)
	}

	return s, nil
}

// Purge deletes expired entries, or every entry when all is set. It returns
// the number of deleted rows.
func (c *DuckDB) Purge(ctx context.Context, all bool) (int64, error) {
	var (
		result sql.Result
		err    error
	)

	if all {
		result, err = c.db.ExecContext(ctx, `DELETE FROM geocode_cache`)
	} else {
		result, err = c.db.ExecContext(ctx, `DELETE FROM geocode_cache WHERE stored_at < ?`, c.now().Add(-c.ttl).UTC())
	}

	if err != nil {
		return 0, fmt.Errorf("purging cache: %w", err)
	}

	return result.RowsAffected()
}

// Close closes the database if it was opened by OpenDuckDB.
func (c *DuckDB) Close() error {
	if !c.closer {
		return nil
	}

	return c.db.Close()
}
