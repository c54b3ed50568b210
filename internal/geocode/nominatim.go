// README: OSM Nominatim reverse-geocoding provider (no API key needed).
package geocode

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultNominatimBaseURL = "https://nominatim.openstreetmap.org"

// NominatimGeocoder resolves addresses through the public Nominatim
// endpoint. Nominatim's usage policy caps clients at one request per
// second; the resolver's own rate limiting keeps us well under that.
type NominatimGeocoder struct {
	client *resty.Client
}

// NewNominatimGeocoder creates a NominatimGeocoder. baseURL may be
// empty to use the public endpoint (tests point it at a local server).
func NewNominatimGeocoder(baseURL string) *NominatimGeocoder {
	if baseURL == "" {
		baseURL = defaultNominatimBaseURL
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetHeader("User-Agent", "haven-location-service")
	return &NominatimGeocoder{client: client}
}

type nominatimResponse struct {
	DisplayName string `json:"display_name"`
	Error       string `json:"error"`
}

func (n *NominatimGeocoder) ReverseGeocode(ctx context.Context, lat, lng float64) (string, error) {
	var body nominatimResponse
	resp, err := n.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"lat":    fmt.Sprintf("%f", lat),
			"lon":    fmt.Sprintf("%f", lng),
			"format": "jsonv2",
		}).
		SetResult(&body).
		Get("/reverse")
	if err != nil {
		return "", fmt.Errorf("nominatim request: %w", err)
	}

	if resp.StatusCode() == http.StatusTooManyRequests {
		return "", ErrProviderRateLimited
	}
	if resp.IsError() {
		return "", fmt.Errorf("nominatim status %d", resp.StatusCode())
	}
	if body.DisplayName == "" {
		return "", ErrNoAddress
	}

	return body.DisplayName, nil
}
