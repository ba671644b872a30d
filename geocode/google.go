// Copyright 2026 The TimedGeo Authors
// SPDX-License-Identifier: Apache-2.0

package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"slices"
)

// GoogleBaseURL is the Google Maps Geocoding endpoint.
const GoogleBaseURL = "https://maps.googleapis.com/maps/api/geocode/json"

// GoogleMapsGeocoder uses Google Maps Geocoding API.
type GoogleMapsGeocoder struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewGoogleMapsGeocoder creates a new Google Maps geocoder. An empty baseURL
// selects GoogleBaseURL.
func NewGoogleMapsGeocoder(apiKey, baseURL string, client *http.Client) *GoogleMapsGeocoder {
	if baseURL == "" {
		baseURL = GoogleBaseURL
	}

	if client == nil {
		client = http.DefaultClient
	}

	return &GoogleMapsGeocoder{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: client,
	}
}

type googleMapsResponse struct {
	Results []struct {
		Geometry struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
			LocationType string `json:"location_type"` // ROOFTOP, RANGE_INTERPOLATED, GEOMETRIC_CENTER, APPROXIMATE
		} `json:"geometry"`
		FormattedAddress  string `json:"formatted_address"`
		AddressComponents []struct {
			LongName  string   `json:"long_name"`
			ShortName string   `json:"short_name"`
			Types     []string `json:"types"`
		} `json:"address_components"`
	} `json:"results"`
	Status       string `json:"status"` // OK, ZERO_RESULTS, etc.
	ErrorMessage string `json:"error_message"`
}

func (g *GoogleMapsGeocoder) Name() string {
	return ProviderGoogle
}

func (g *GoogleMapsGeocoder) Geocode(ctx context.Context, query string) (*Response, error) {
	params := url.Values{}
	params.Set("address", query)
	params.Set("key", g.apiKey)
	params.Set("language", "en")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, &GeocodingError{Type: ErrorTypeInvalidRequest, Message: "building google request", Err: err}
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, ClassifyTransportError(err, ProviderGoogle)
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, ClassifyHTTPError(resp.StatusCode, ProviderGoogle)
	}

	var gmResp googleMapsResponse
	if err := json.NewDecoder(resp.Body).Decode(&gmResp); err != nil {
		return nil, fmt.Errorf("%w: decoding google response: %w", ErrInvalidResponse, err)
	}

	switch gmResp.Status {
	case "OK":
	case "ZERO_RESULTS":
		return &Response{Kind: KindEmpty, Provider: ProviderGoogle}, nil
	case "OVER_QUERY_LIMIT":
		return nil, &GeocodingError{Type: ErrorTypeRateLimit, Message: "google maps status: " + gmResp.Status}
	case "OVER_DAILY_LIMIT", "REQUEST_DENIED":
		return nil, &GeocodingError{Type: ErrorTypeQuotaExceeded, Message: googleStatusMessage(gmResp.Status, gmResp.ErrorMessage)}
	case "INVALID_REQUEST":
		return nil, &GeocodingError{Type: ErrorTypeInvalidRequest, Message: googleStatusMessage(gmResp.Status, gmResp.ErrorMessage)}
	default:
		return nil, &GeocodingError{Type: ErrorTypeUnknown, Message: googleStatusMessage(gmResp.Status, gmResp.ErrorMessage)}
	}

	out := &Response{Kind: KindLocationList, Provider: ProviderGoogle}

	for _, result := range gmResp.Results {
		loc := Location{
			Latitude:   result.Geometry.Location.Lat,
			Longitude:  result.Geometry.Location.Lng,
			Name:       result.FormattedAddress,
			Confidence: googleConfidence(result.Geometry.LocationType),
		}

		for _, c := range result.AddressComponents {
			if slices.Contains(c.Types, "country") {
				loc.Country, loc.CountryCode = c.LongName, c.ShortName

				continue
			}

			for _, t := range c.Types {
				key, ok := googleAddressKeys[t]
				if !ok || c.LongName == "" {
					continue
				}

				if loc.Address == nil {
					loc.Address = make(map[string]string)
				}

				if _, seen := loc.Address[key]; !seen {
					loc.Address[key] = c.LongName
				}
			}
		}

		out.Locations = append(out.Locations, loc)
	}

	if len(out.Locations) == 0 {
		out.Kind = KindEmpty
	}

	return out, nil
}

// googleAddressKeys maps address component types onto AddressKeys.
var googleAddressKeys = map[string]string{
	"street_number":               "housenumber",
	"route":                       "street",
	"postal_code":                 "postcode",
	"sublocality":                 "district",
	"locality":                    "city",
	"administrative_area_level_2": "county",
	"administrative_area_level_1": "state",
}

func googleStatusMessage(status, message string) string {
	if message == "" {
		return "google maps status: " + status
	}

	return fmt.Sprintf("google maps status: %s (%s)", status, message)
}

func googleConfidence(locationType string) string {
	switch locationType {
	case "ROOFTOP", "RANGE_INTERPOLATED":
		return "high"
	case "GEOMETRIC_CENTER":
		return "medium"
	default:
		return "low"
	}
}
