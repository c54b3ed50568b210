// README: Address resolver: caching and rate-limit policy over a Geocoder.
package geocode

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"haven/internal/geo"
	"haven/internal/types"
)

const (
	// minInterval throttles upstream calls process-wide.
	minInterval          = 120 * time.Second
	minIntervalEmergency = 30 * time.Second

	// distanceThreshold skips the upstream call when the device has not
	// moved far enough from the last resolved coordinate for a new
	// address to be worth fetching.
	distanceThreshold          = 500.0 // meters
	distanceThresholdEmergency = 50.0

	cacheTTL = 10 * time.Minute

	// cacheGrid rounds coordinates to 4 decimal places (~11 m cells).
	cacheGrid = 4
)

// Options controls a single Resolve call.
type Options struct {
	// Force bypasses the minimum-interval throttle (not the distance gate).
	Force bool
	// Emergency tightens both the throttle and the distance gate so SOS
	// flows get fresher addresses.
	Emergency bool
}

type cacheEntry struct {
	address  string
	cachedAt time.Time
}

// Resolver applies rate limiting, a movement gate, and a short-lived
// cache in front of a Geocoder. One Resolver is shared by the whole
// process: concurrent sessions contend for the same upstream budget.
type Resolver struct {
	geocoder Geocoder
	logger   *zap.Logger
	now      func() time.Time

	mu            sync.Mutex
	cache         map[string]cacheEntry
	lastCallAt    time.Time
	lastResolved  *types.Position
	loggedRateHit bool
}

func NewResolver(geocoder Geocoder, logger *zap.Logger) *Resolver {
	return &Resolver{
		geocoder: geocoder,
		logger:   logger,
		now:      time.Now,
		cache:    make(map[string]cacheEntry),
	}
}

// Resolve returns an address for the coordinate, or nil when neither
// the upstream nor the cache can supply one. It never returns an error:
// address resolution is best-effort everywhere it is used.
func (r *Resolver) Resolve(ctx context.Context, lat, lng float64, opts Options) *string {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	key := cacheKey(lat, lng)

	interval := minInterval
	gate := distanceThreshold
	if opts.Emergency {
		interval = minIntervalEmergency
		gate = distanceThresholdEmergency
	}

	// Throttle: do not touch the upstream more than once per interval.
	// Short-circuits do not advance lastCallAt.
	if !opts.Force && !r.lastCallAt.IsZero() && now.Sub(r.lastCallAt) < interval {
		return r.cached(key, now)
	}

	// Movement gate: a nearby coordinate resolves to the same address,
	// so skip the upstream call even when the throttle would allow it.
	if r.lastResolved != nil {
		pos := types.Position{Lat: lat, Lng: lng}
		if geo.DistanceMeters(*r.lastResolved, pos) < gate {
			return r.cached(key, now)
		}
	}

	address, err := r.geocoder.ReverseGeocode(ctx, lat, lng)
	// The upstream was actually called: advance the throttle window
	// whether it answered or refused.
	r.lastCallAt = now

	if err != nil {
		if errors.Is(err, ErrProviderRateLimited) {
			// Log quota refusals once; they tend to arrive in bursts.
			if !r.loggedRateHit {
				r.loggedRateHit = true
				r.logger.Warn("geocoder rate limited by provider, serving cache",
					zap.Float64("lat", lat),
					zap.Float64("lng", lng),
				)
			}
		} else {
			r.logger.Warn("reverse geocode failed, serving cache",
				zap.Float64("lat", lat),
				zap.Float64("lng", lng),
				zap.Error(err),
			)
		}
		return r.cached(key, now)
	}

	r.cache[key] = cacheEntry{address: address, cachedAt: now}
	r.lastResolved = &types.Position{Lat: lat, Lng: lng}
	return &address
}

// cached returns the cache entry for the key if still fresh, else nil.
func (r *Resolver) cached(key string, now time.Time) *string {
	entry, ok := r.cache[key]
	if !ok || now.Sub(entry.cachedAt) > cacheTTL {
		return nil
	}
	addr := entry.address
	return &addr
}

func cacheKey(lat, lng float64) string {
	return fmt.Sprintf("%.*f:%.*f", cacheGrid, lat, cacheGrid, lng)
}
