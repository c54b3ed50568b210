// README: Device feed; realizes the Geolocator contract over pushed fixes.
package tracking

import (
	"context"
	"sync"
	"time"

	"haven/internal/geo"
	"haven/internal/types"
)

// Geolocator supplies position readings on demand or via subscription.
// It abstracts the device positioning boundary: the service never sees
// vendor GPS semantics, only fixes and the three documented failures.
type Geolocator interface {
	// GetCurrentPosition returns a fix no older than maxAge, waiting up
	// to timeout for a fresh one. Fails with ErrPermissionDenied,
	// ErrServicesDisabled, or ErrTimeout.
	GetCurrentPosition(ctx context.Context, userID types.ID, profile AccuracyProfile, timeout, maxAge time.Duration) (Fix, error)
	// Subscribe delivers fixes filtered by minimum interval OR minimum
	// movement (either passing admits the fix). The returned func
	// cancels the subscription synchronously.
	Subscribe(userID types.ID, minInterval time.Duration, minDistanceMeters float64) (<-chan Fix, func())
}

// DeviceStatus is the permission/availability state a device last
// reported for its positioning hardware.
type DeviceStatus string

const (
	DeviceOK               DeviceStatus = "ok"
	DevicePermissionDenied DeviceStatus = "permission_denied"
	DeviceServicesDisabled DeviceStatus = "services_disabled"
)

// DeviceFeed is the production Geolocator: devices push raw fixes over
// the ingest endpoint and the feed fans them out to sessions.
type DeviceFeed struct {
	mu    sync.Mutex
	users map[types.ID]*feedState
	now   func() time.Time
}

type feedState struct {
	status  DeviceStatus
	last    *Fix
	subs    map[int]*feedSub
	nextSub int
	waiters []chan Fix
}

type feedSub struct {
	ch          chan Fix
	minInterval time.Duration
	minDistance float64
	lastSent    *Fix
}

func NewDeviceFeed() *DeviceFeed {
	return &DeviceFeed{
		users: make(map[types.ID]*feedState),
		now:   time.Now,
	}
}

func (f *DeviceFeed) state(userID types.ID) *feedState {
	st, ok := f.users[userID]
	if !ok {
		st = &feedState{status: DeviceOK, subs: make(map[int]*feedSub)}
		f.users[userID] = st
	}
	return st
}

// ReportStatus records the device's positioning availability. A device
// that loses permission pushes this instead of fixes.
func (f *DeviceFeed) ReportStatus(userID types.ID, status DeviceStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state(userID).status = status
}

// Push ingests one raw fix and wakes subscribers and pending waiters.
func (f *DeviceFeed) Push(userID types.ID, fix Fix) {
	f.mu.Lock()
	defer f.mu.Unlock()

	st := f.state(userID)
	st.status = DeviceOK
	st.last = &fix

	for _, w := range st.waiters {
		w <- fix
	}
	st.waiters = nil

	for _, sub := range st.subs {
		if !sub.admits(fix) {
			continue
		}
		select {
		case sub.ch <- fix:
			sub.lastSent = &fix
		default:
			// Subscriber is mid-cycle; it will catch up on the next
			// admitted fix or its poll backstop.
		}
	}
}

// admits applies the interval-or-distance filter: the first fix always
// passes, later ones pass when enough time elapsed or the device moved
// far enough.
func (s *feedSub) admits(fix Fix) bool {
	if s.lastSent == nil {
		return true
	}
	if fix.At.Sub(s.lastSent.At) >= s.minInterval {
		return true
	}
	return geo.DistanceMeters(s.lastSent.Position, fix.Position) >= s.minDistance
}

func (f *DeviceFeed) GetCurrentPosition(ctx context.Context, userID types.ID, profile AccuracyProfile, timeout, maxAge time.Duration) (Fix, error) {
	f.mu.Lock()
	st := f.state(userID)

	switch st.status {
	case DevicePermissionDenied:
		f.mu.Unlock()
		return Fix{}, ErrPermissionDenied
	case DeviceServicesDisabled:
		f.mu.Unlock()
		return Fix{}, ErrServicesDisabled
	}

	if st.last != nil && f.now().Sub(st.last.At) <= maxAge {
		fix := *st.last
		f.mu.Unlock()
		return fix, nil
	}

	// No fresh fix cached: wait for the next push, bounded by the
	// caller's budget.
	waiter := make(chan Fix, 1)
	st.waiters = append(st.waiters, waiter)
	f.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case fix := <-waiter:
		return fix, nil
	case <-timer.C:
		f.removeWaiter(userID, waiter)
		return Fix{}, ErrTimeout
	case <-ctx.Done():
		f.removeWaiter(userID, waiter)
		return Fix{}, ctx.Err()
	}
}

func (f *DeviceFeed) removeWaiter(userID types.ID, waiter chan Fix) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := f.state(userID)
	for i, w := range st.waiters {
		if w == waiter {
			st.waiters = append(st.waiters[:i], st.waiters[i+1:]...)
			return
		}
	}
}

func (f *DeviceFeed) Subscribe(userID types.ID, minInterval time.Duration, minDistanceMeters float64) (<-chan Fix, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	st := f.state(userID)
	id := st.nextSub
	st.nextSub++

	sub := &feedSub{
		ch:          make(chan Fix, 8),
		minInterval: minInterval,
		minDistance: minDistanceMeters,
	}
	st.subs[id] = sub

	cancel := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if _, ok := st.subs[id]; ok {
			delete(st.subs, id)
			close(sub.ch)
		}
	}
	return sub.ch, cancel
}
