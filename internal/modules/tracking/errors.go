// README: Error taxonomy for tracking and its collaborators.
package tracking

import "errors"

var (
	// ErrPermissionDenied: no or denied location permission. Surfaced
	// to the caller; tracking does not start.
	ErrPermissionDenied = errors.New("location permission denied")
	// ErrServicesDisabled: positioning services are off on the device.
	// Surfaced with an actionable message.
	ErrServicesDisabled = errors.New("location services disabled")
	// ErrTimeout: no fix arrived within the requested budget.
	ErrTimeout = errors.New("location fix timed out")
	// ErrNetworkUnavailable: the store or geocoder is unreachable.
	// Recovered locally through the fallback chain, never fatal to a
	// single cycle.
	ErrNetworkUnavailable = errors.New("network unavailable")
	// ErrNotFound: no record for the queried key.
	ErrNotFound = errors.New("record not found")
	// ErrNoSession: operation requires an active tracking session.
	ErrNoSession = errors.New("no active tracking session")
	// ErrBadRequest: malformed command.
	ErrBadRequest = errors.New("bad request")
)
