// README: Common value objects shared across modules.
package types

import "errors"

// ID identifies a user, group, or record. IDs come from the auth
// provider and are treated as opaque strings.
type ID string

var ErrInvalidCoordinate = errors.New("coordinate out of range")

// Position is an immutable coordinate pair with an optional resolved
// address. Positions are never mutated in place; derive new values.
type Position struct {
	Lat     float64
	Lng     float64
	Address *string
}

// NewPosition validates coordinate ranges at construction.
func NewPosition(lat, lng float64) (Position, error) {
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return Position{}, ErrInvalidCoordinate
	}
	return Position{Lat: lat, Lng: lng}, nil
}

// WithAddress returns a copy of p carrying the resolved address.
func (p Position) WithAddress(addr string) Position {
	p.Address = &addr
	return p
}

// BatteryLevel is a device battery percentage; -1 means unknown.
type BatteryLevel int

func (b BatteryLevel) Known() bool { return b >= 0 && b <= 100 }
