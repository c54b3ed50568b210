// README: Connection presence data model.
package presence

import (
	"time"

	"haven/internal/types"
)

// ConnectionRecord is one directed edge: what owner sees of subject.
// Location fields are a current-value projection, updated in place by
// the sync job and nulled when the subject stops sharing.
type ConnectionRecord struct {
	OwnerID       types.ID
	SubjectID     types.ID
	Latitude      *float64
	Longitude     *float64
	Address       *string
	BatteryLevel  *int
	ShareLocation bool
	UpdatedAt     *time.Time
}

// Settings is the per-user sync configuration.
type Settings struct {
	Enabled  bool
	Interval time.Duration
}

// DefaultInterval is the sync cadence when the user has not chosen one.
const DefaultInterval = 60 * time.Minute
