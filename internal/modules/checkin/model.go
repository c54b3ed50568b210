// README: Check-in record and status definitions.
package checkin

import (
	"time"

	"haven/internal/types"
)

type Status string

const (
	StatusSafe      Status = "safe"
	StatusCaution   Status = "caution"
	StatusEmergency Status = "emergency"
)

func ValidStatus(s Status) bool {
	switch s {
	case StatusSafe, StatusCaution, StatusEmergency:
		return true
	}
	return false
}

// CheckInRecord is one timestamped "I'm safe" (or not) declaration.
// Location fields are nil when no fix could be obtained in budget.
type CheckInRecord struct {
	ID          types.ID
	UserID      types.ID
	Status      Status
	Message     *string
	Latitude    *float64
	Longitude   *float64
	Address     *string
	IsEmergency bool
	CreatedAt   time.Time
}
