// README: Google Maps reverse-geocoding provider.
package geocode

import (
	"context"
	"fmt"
	"strings"

	"googlemaps.github.io/maps"
)

// GoogleGeocoder resolves addresses through the Google Geocoding API.
type GoogleGeocoder struct {
	client *maps.Client
}

// NewGoogleGeocoder creates a GoogleGeocoder with the given API key.
func NewGoogleGeocoder(apiKey string) (*GoogleGeocoder, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &GoogleGeocoder{client: client}, nil
}

func (g *GoogleGeocoder) ReverseGeocode(ctx context.Context, lat, lng float64) (string, error) {
	r := &maps.GeocodingRequest{
		LatLng: &maps.LatLng{Lat: lat, Lng: lng},
	}

	results, err := g.client.ReverseGeocode(ctx, r)
	if err != nil {
		if isQuotaError(err) {
			return "", ErrProviderRateLimited
		}
		return "", fmt.Errorf("geocoding api error: %w", err)
	}
	if len(results) == 0 {
		return "", ErrNoAddress
	}

	return results[0].FormattedAddress, nil
}

// isQuotaError matches the status strings the Geocoding API uses for
// quota refusals (surfaced inside the wrapped error text).
func isQuotaError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "OVER_QUERY_LIMIT") ||
		strings.Contains(msg, "OVER_DAILY_LIMIT") ||
		strings.Contains(msg, "RESOURCE_EXHAUSTED")
}
