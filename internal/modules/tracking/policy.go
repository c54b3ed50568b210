// README: Persistence decision policy (stationary/movement state machine).
package tracking

import (
	"time"

	"haven/internal/geo"
	"haven/internal/types"
)

const (
	// stationaryBlockDistance is the radius of the "near" zone around
	// the last persisted position and the stationary anchor.
	stationaryBlockDistance = 30.0 // meters
	// stationaryBlockThreshold: once the device has sat inside the
	// anchor zone this long, presence writes are suppressed entirely.
	stationaryBlockThreshold = time.Hour
	// stationaryUpdateInterval: below the movement threshold, presence
	// is still refreshed this often so "last seen" stays current.
	stationaryUpdateInterval = 30 * time.Minute
)

// PolicyState is the per-session input to the persistence decision.
// It holds exactly the fields the decision reads and writes, so the
// decision is deterministic given (state, position, now).
type PolicyState struct {
	LastPersisted *PersistedPoint
	Anchor        *StationaryAnchor
}

// Verdict is the outcome of one persistence decision. Anchor is the
// anchor state after the decision; callers must store it back.
type Verdict struct {
	Persist bool
	// Blocked is set when the one-hour stationary block suppressed the
	// write. The block is strictly dominant: when set, Persist is false
	// no matter what the freshness or movement checks would say.
	Blocked bool
	Anchor  *StationaryAnchor
}

// DecidePersist decides whether a new position should be written to the
// presence projection, and how the stationary anchor evolves.
//
// Invariants:
//   - with no prior persisted position, the first sample always persists;
//   - leaving the 30 m zone clears the anchor but does not by itself
//     force a write: the movement threshold still governs;
//   - once the device has stayed within 30 m of its anchor for an hour,
//     every call returns Blocked until it moves out of the zone;
//   - otherwise a write happens on >threshold movement, or as a
//     freshness refresh every 30 minutes.
func DecidePersist(state PolicyState, pos types.Position, now time.Time, thresholdMeters float64) Verdict {
	if state.LastPersisted == nil {
		return Verdict{Persist: true, Anchor: state.Anchor}
	}

	anchor := state.Anchor
	d := geo.DistanceMeters(state.LastPersisted.Position, pos)

	if d > stationaryBlockDistance {
		// The device left the near zone: the long-stationary block no
		// longer applies, but the standard threshold still decides.
		anchor = nil
	} else {
		switch {
		case anchor == nil:
			anchor = &StationaryAnchor{Position: pos, Since: now}
		case geo.DistanceMeters(anchor.Position, pos) <= stationaryBlockDistance:
			if now.Sub(anchor.Since) >= stationaryBlockThreshold {
				return Verdict{Persist: false, Blocked: true, Anchor: anchor}
			}
		default:
			// Still near the last persisted position but drifted away
			// from the anchor: restart the stationary clock here.
			anchor = &StationaryAnchor{Position: pos, Since: now}
		}
	}

	if now.Sub(state.LastPersisted.At) >= stationaryUpdateInterval {
		return Verdict{Persist: true, Anchor: anchor}
	}
	return Verdict{Persist: d > thresholdMeters, Anchor: anchor}
}

// StationaryBlocked reports whether the long-stationary block currently
// suppresses presence writes for this state. Shared with the connection
// sync job so both paths apply one predicate.
func (s PolicyState) StationaryBlocked(now time.Time) bool {
	return s.Anchor != nil && now.Sub(s.Anchor.Since) >= stationaryBlockThreshold
}
