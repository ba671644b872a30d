// Copyright 2026 The TimedGeo Authors
// SPDX-License-Identifier: Apache-2.0

package geocode

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// PhotonBaseURL is the public Photon instance backed by OpenStreetMap data.
const PhotonBaseURL = "https://photon.komoot.io"

// PhotonGeocoder queries a Photon server. Answers are GeoJSON feature
// collections.
type PhotonGeocoder struct {
	baseURL    string
	lang       string
	httpClient *http.Client
}

// NewPhotonGeocoder creates a Photon geocoder. An empty baseURL selects
// PhotonBaseURL.
func NewPhotonGeocoder(baseURL string, client *http.Client) *PhotonGeocoder {
	if baseURL == "" {
		baseURL = PhotonBaseURL
	}

	if client == nil {
		client = http.DefaultClient
	}

	return &PhotonGeocoder{
		baseURL:    strings.TrimRight(baseURL, "/"),
		lang:       "en",
		httpClient: client,
	}
}

func (p *PhotonGeocoder) Name() string {
	return ProviderPhoton
}

func (p *PhotonGeocoder) Geocode(ctx context.Context, query string) (*Response, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("limit", "1")
	params.Set("lang", p.lang)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/?"+params.Encode(), nil)
	if err != nil {
		return nil, &GeocodingError{Type: ErrorTypeInvalidRequest, Message: "building photon request", Err: err}
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, ClassifyTransportError(err, ProviderPhoton)
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, ClassifyHTTPError(resp.StatusCode, ProviderPhoton)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ClassifyTransportError(err, ProviderPhoton)
	}

	r, err := ParseResponse(ProviderPhoton, body)
	if err != nil {
		return nil, fmt.Errorf("photon %q: %w", query, err)
	}

	return r, nil
}
