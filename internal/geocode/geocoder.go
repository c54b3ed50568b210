// README: Reverse-geocoding provider contract and shared errors.
package geocode

import (
	"context"
	"errors"
)

// Geocoder turns a coordinate into a human-readable address. Providers
// wrap their own transport errors; the two sentinel values below are
// the only classifications the resolver policy cares about.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lng float64) (string, error)
}

var (
	// ErrProviderRateLimited means the upstream provider refused the
	// call due to quota. The resolver falls back to cache or nil.
	ErrProviderRateLimited = errors.New("geocoder: provider rate limited")
	// ErrNoAddress means the provider answered but had no result for
	// the coordinate.
	ErrNoAddress = errors.New("geocoder: no address for coordinate")
)
