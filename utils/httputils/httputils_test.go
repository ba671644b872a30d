// Copyright 2026 The TimedGeo Authors
// SPDX-License-Identifier: Apache-2.0

package httputils

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// dummyRoundTripper is useful to simulate a response.
type dummyRoundTripper struct {
	response    *http.Response
	lastRequest *http.Request
}

func (d *dummyRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	d.lastRequest = req

	if d.response != nil {
		return d.response, nil
	}

	return &http.Response{
		Status:     "200 OK",
		StatusCode: http.StatusOK,
		Header:     make(http.Header),
		Body:       io.NopCloser(strings.NewReader("")),
	}, nil
}

//////////////////////////////////
// Test LoggingRoundTripper

// TestLoggingRoundTripper verifies that the LoggingRoundTripper logs both the request and
// the response (including timing information).
func TestLoggingRoundTripper(t *testing.T) {
	var logBuffer bytes.Buffer

	drt := &dummyRoundTripper{
		response: &http.Response{
			Status:     "200 OK",
			StatusCode: http.StatusOK,
			Header:     make(http.Header),
			Body:       io.NopCloser(strings.NewReader(`{"features":[]}`)),
		},
	}

	lt := &LoggingRoundTripper{
		Transport: drt,
		Writer:    &logBuffer,
		DumpBody:  true,
	}

	req, err := http.NewRequest(http.MethodGet, "http://example.com/api?q=Nagoya", nil)
	require.NoError(t, err)

	_, err = lt.RoundTrip(req)
	require.NoError(t, err)

	logContent := logBuffer.String()
	assert.Contains(t, logContent, "> GET /api?q=Nagoya")
	assert.Contains(t, logContent, "< RESPONSE: [")
	assert.Contains(t, logContent, `{"features":[]}`)
}

func TestLoggingRoundTripperRedactsKey(t *testing.T) {
	var logBuffer bytes.Buffer

	lt := &LoggingRoundTripper{
		Transport: &dummyRoundTripper{},
		Writer:    &logBuffer,
	}

	req, err := http.NewRequest(http.MethodGet, "http://example.com/geocode/json?address=Kuwana&key=SECRET123&language=en", nil)
	require.NoError(t, err)

	_, err = lt.RoundTrip(req)
	require.NoError(t, err)

	assert.NotContains(t, logBuffer.String(), "SECRET123")
	assert.Contains(t, logBuffer.String(), "key=REDACTED&language=en")
}

func TestLoggingRoundTripperWithoutWriter(t *testing.T) {
	drt := &dummyRoundTripper{}
	lt := &LoggingRoundTripper{Transport: drt}

	req, err := http.NewRequest(http.MethodGet, "http://example.com/", nil)
	require.NoError(t, err)

	_, err = lt.RoundTrip(req)
	require.NoError(t, err)
	assert.Same(t, req, drt.lastRequest)
}

func TestRedactKey(t *testing.T) {
	assert.Equal(t, "GET /json?key=REDACTED HTTP/1.1", redactKey("GET /json?key=abc HTTP/1.1"))
	assert.Equal(t, "/json?a=1&key=REDACTED", redactKey("/json?a=1&key=abc"))
	assert.Equal(t, "/json?monkey=1", redactKey("/json?monkey=1"))
}

//////////////////////////////////
// Test AppendRequestHeadersRoundTripper

func TestAppendRequestHeadersRoundTripper(t *testing.T) {
	dummy := &dummyRoundTripper{}

	atr := &AppendRequestHeadersRoundTripper{
		Transport: dummy,
		Headers: map[string]string{
			"X-Test-Header": "TestValue",
		},
	}

	req, err := http.NewRequest(http.MethodPost, "http://example.org", nil)
	require.NoError(t, err)
	require.Empty(t, req.Header.Get("X-Test-Header"))

	_, err = atr.RoundTrip(req)
	require.NoError(t, err)

	require.NotNil(t, dummy.lastRequest)
	assert.Equal(t, "TestValue", dummy.lastRequest.Header.Get("X-Test-Header"))
}

//////////////////////////////////
// Test NewClient

func TestNewClientSendsUserAgent(t *testing.T) {
	var gotUA, gotLang string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotLang = r.Header.Get("Accept-Language")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	var trace bytes.Buffer

	client := NewClient(ClientOptions{
		UserAgent:   "timedgeo/test",
		Timeout:     5 * time.Second,
		TraceWriter: &trace,
	})

	resp, err := client.Get(srv.URL + "/api")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	assert.Equal(t, "timedgeo/test", gotUA)
	assert.Equal(t, "en", gotLang)
	assert.Equal(t, 5*time.Second, client.Timeout)
	assert.Contains(t, trace.String(), "> GET /api")
}

func TestNewClientDefaults(t *testing.T) {
	client := NewClient(ClientOptions{})
	assert.Equal(t, 30*time.Second, client.Timeout)
}
