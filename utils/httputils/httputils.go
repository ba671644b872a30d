// Copyright 2026 The TimedGeo Authors
// SPDX-License-Identifier: Apache-2.0

// Package httputils provides utility functions for working with HTTP.
package httputils

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"strings"
	"time"
)

/////////////////////////////////////////
/// RoundTrippers

// LoggingRoundTripper adds a very primitive logging to a http transaction.
type LoggingRoundTripper struct {
	Transport http.RoundTripper
	Writer    io.Writer
	DumpBody  bool
}

// reduce the content of the lines.
func abbreviate(lines []string, prefix rune) []string {
	const maxLines, maxChars = 2048, 512

	for i, line := range lines {
		if i >= maxLines {
			break
		}

		lines[i] = fmt.Sprintf("%c %s", prefix, redactKey(line))
	}

	if len(lines) > maxLines {
		lines = lines[:maxLines]
		lines = append(lines, "…")
	}

	for i, line := range lines {
		if len(line) > maxChars {
			lines[i] = line[0:maxChars] + "…"
		}
	}

	return lines
}

// redactKey hides the value of a `key=` query parameter, which is how the
// Google Geocoding API receives its credential.
func redactKey(line string) string {
	for _, marker := range []string{"?key=", "&key="} {
		idx := strings.Index(line, marker)
		if idx == -1 {
			continue
		}

		start := idx + len(marker)
		end := strings.IndexAny(line[start:], "& ")

		if end == -1 {
			return line[:start] + "REDACTED"
		}

		return line[:start] + "REDACTED" + line[start+end:]
	}

	return line
}

func (t *LoggingRoundTripper) dumpRequest(req *http.Request) error {
	dump, err := httputil.DumpRequestOut(req, true)
	if err != nil {
		return fmt.Errorf("tracing HTTP request: %w", err)
	}

	lines := abbreviate(strings.Split(string(dump), "\n"), '>')
	lines = append(lines, "")
	_, err = fmt.Fprint(t.Writer, strings.Join(lines, "\n"))

	return err
}

func (t *LoggingRoundTripper) dumpResponse(resp *http.Response, duration time.Duration) error {
	dump, err := httputil.DumpResponse(resp, t.DumpBody)
	if err != nil {
		return fmt.Errorf("tracing HTTP request: %w", err)
	}

	lines := abbreviate(strings.Split(string(dump), "\n"), '<')

	_, err = fmt.Fprintf(t.Writer, "< RESPONSE: [%v]\n", duration)
	if err != nil {
		return fmt.Errorf("tracing HTTP request: %w", err)
	}

	lines = append(lines, "")
	_, err = fmt.Fprint(t.Writer, strings.Join(lines, "\n"))

	return err
}

// RoundTrip implements the http.RoundTripper interface.
func (t *LoggingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Writer == nil {
		return t.Transport.RoundTrip(req)
	}

	if err := t.dumpRequest(req); err != nil {
		return nil, err
	}

	start := time.Now()

	resp, err := t.Transport.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	if err := t.dumpResponse(resp, time.Since(start)); err != nil {
		return nil, err
	}

	return resp, nil
}

// AppendRequestHeadersRoundTripper adds headers to the request.
type AppendRequestHeadersRoundTripper struct {
	Transport http.RoundTripper
	Headers   map[string]string
}

// RoundTrip implements the http.RoundTripper interface.
func (t *AppendRequestHeadersRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	for k, v := range t.Headers {
		req.Header.Set(k, v)
	}

	resp, err := t.Transport.RoundTrip(req)

	return resp, err
}

////////////////////////////////////////////////////

// ClientOptions configures the clients built by NewClient.
type ClientOptions struct {
	// UserAgent is the User-Agent header to use in HTTP requests
	UserAgent string

	// Timeout bounds a whole request, zero means 30 seconds
	Timeout time.Duration

	// MaxConnsPerHost bounds the connections to a single provider, zero means 8
	MaxConnsPerHost int

	// TraceWriter receives request/response dumps when not nil
	TraceWriter io.Writer

	// TraceBody includes bodies in the dumps
	TraceBody bool
}

// NewClient builds an http.Client that sends the configured headers and
// optionally traces every transaction.
func NewClient(options ClientOptions) *http.Client {
	timeout := options.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	maxConns := options.MaxConnsPerHost
	if maxConns == 0 {
		maxConns = 8
	}

	userAgent := "timedgeo/unknown"
	if options.UserAgent != "" {
		userAgent = options.UserAgent
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   maxConns,
		MaxConnsPerHost:       maxConns,
		IdleConnTimeout:       30 * time.Second,
		ResponseHeaderTimeout: timeout,
	}

	loggingTransport := &LoggingRoundTripper{
		Writer:    options.TraceWriter,
		DumpBody:  options.TraceBody,
		Transport: transport,
	}

	return &http.Client{
		Timeout: timeout,
		Transport: &AppendRequestHeadersRoundTripper{
			Headers: map[string]string{
				"User-Agent":      userAgent,
				"Accept":          "application/json",
				"Accept-Language": "en",
			},
			Transport: loggingTransport,
		},
	}
}
