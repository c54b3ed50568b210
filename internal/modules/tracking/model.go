// README: Tracking core data model: fixes, records, session policy state.
package tracking

import (
	"time"

	"haven/internal/types"
)

// AccuracyProfile selects the positioning trade-off requested from the
// device. Values mirror what mobile location APIs expose.
type AccuracyProfile string

const (
	AccuracyBalanced          AccuracyProfile = "balanced"
	AccuracyHighest           AccuracyProfile = "highest"
	AccuracyBestForNavigation AccuracyProfile = "best_for_navigation"
)

// Fix is one raw position sample from a device.
type Fix struct {
	Position types.Position
	Battery  types.BatteryLevel
	At       time.Time
}

// Config is the recognized tracking configuration surface.
type Config struct {
	AccuracyProfile         AccuracyProfile
	UpdateInterval          time.Duration // push/poll backstop cadence, default 10 min
	DistanceThresholdMeters float64       // movement threshold, default 50
	HistoryWriteFrequency   time.Duration // history cadence, default 60 min
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		AccuracyProfile:         AccuracyBalanced,
		UpdateInterval:          10 * time.Minute,
		DistanceThresholdMeters: 50,
		HistoryWriteFrequency:   60 * time.Minute,
	}
}

// HistoryRecord is one accepted sample in the append-only trail.
// SOS recording updates existing rows in place; nothing else does.
type HistoryRecord struct {
	ID        int64
	UserID    types.ID
	Latitude  float64
	Longitude float64
	Address   *string
	CreatedAt time.Time
}

// PresenceRecord is the current-value projection a family group sees.
// It is upserted, never appended.
type PresenceRecord struct {
	GroupID       types.ID
	UserID        types.ID
	Latitude      *float64
	Longitude     *float64
	Address       *string
	BatteryLevel  *int
	IsOnline      bool
	ShareLocation bool
	UpdatedAt     *time.Time
}

// onlineWindow bounds how stale a presence update may be before the
// subject counts as offline.
const onlineWindow = 5 * time.Minute

// Online reports whether the subject counts as online: sharing enabled
// and updated within the last five minutes. Derived, never stored.
func (p PresenceRecord) Online(now time.Time) bool {
	return p.ShareLocation && p.UpdatedAt != nil && now.Sub(*p.UpdatedAt) <= onlineWindow
}

// PersistedPoint remembers the last presence write for a session.
type PersistedPoint struct {
	Position types.Position
	At       time.Time
}

// StationaryAnchor is the reference position and time used to measure
// how long a device has stayed within a small radius.
type StationaryAnchor struct {
	Position types.Position
	Since    time.Time
}
