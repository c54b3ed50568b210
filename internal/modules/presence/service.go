// README: Connection presence sync: periodic re-publish of the latest fix.
package presence

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"haven/internal/modules/tracking"
	"haven/internal/types"
)

// schedulerTick is how often the scheduler scans for due users. Sync
// intervals are multiples of minutes, so a minute resolution is enough.
const schedulerTick = time.Minute

// Snapshot budget for a sync cycle: favor the caches, never wait long.
const (
	syncTimeout = 2 * time.Second
	syncMaxAge  = 10 * time.Minute
)

// EdgeStore is the slice of the connection store the sync job needs.
type EdgeStore interface {
	UpdateSubjectLocation(ctx context.Context, subjectID types.ID, lat, lng float64, address *string, battery *int, at time.Time) error
	ClearSubjectLocation(ctx context.Context, subjectID types.ID) error
}

// Snapshotter obtains the freshest position within a budget.
type Snapshotter interface {
	Snapshot(ctx context.Context, userID types.ID, profile tracking.AccuracyProfile, timeout, maxAge time.Duration) (*tracking.Fix, error)
}

// StationaryQuery exposes the tracking core's long-stationary block so
// both presence write paths honor one rule.
type StationaryQuery interface {
	StationaryBlocked(userID types.ID) bool
}

type syncState struct {
	settings Settings
	lastSync time.Time
}

type Service struct {
	store     EdgeStore
	snapshots Snapshotter
	tracker   StationaryQuery
	logger    *zap.Logger
	now       func() time.Time

	mu    sync.Mutex
	users map[types.ID]*syncState
}

func NewService(store EdgeStore, snapshots Snapshotter, tracker StationaryQuery, logger *zap.Logger) *Service {
	return &Service{
		store:     store,
		snapshots: snapshots,
		tracker:   tracker,
		logger:    logger,
		now:       time.Now,
		users:     make(map[types.ID]*syncState),
	}
}

// SetSharing records the user's sharing choice. Disabling clears the
// location fields on every connection edge immediately; enabling takes
// effect on the next due cycle.
func (s *Service) SetSharing(ctx context.Context, userID types.ID, enabled bool, intervalMinutes int) error {
	if userID == "" {
		return tracking.ErrBadRequest
	}

	interval := DefaultInterval
	if intervalMinutes > 0 {
		interval = time.Duration(intervalMinutes) * time.Minute
	}

	s.mu.Lock()
	st, ok := s.users[userID]
	if !ok {
		st = &syncState{}
		s.users[userID] = st
	}
	st.settings = Settings{Enabled: enabled, Interval: interval}
	s.mu.Unlock()

	if !enabled {
		if err := s.store.ClearSubjectLocation(ctx, userID); err != nil {
			return err
		}
		s.logger.Info("sharing disabled, edges cleared", zap.String("user_id", string(userID)))
	}
	return nil
}

// RunScheduler drives due sync cycles until ctx is cancelled.
func (s *Service) RunScheduler(ctx context.Context) {
	ticker := time.NewTicker(schedulerTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, userID := range s.dueUsers() {
				s.SyncOnce(ctx, userID)
			}
		}
	}
}

// dueUsers returns sharing-enabled users whose interval has elapsed.
func (s *Service) dueUsers() []types.ID {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var due []types.ID
	for userID, st := range s.users {
		if !st.settings.Enabled {
			continue
		}
		if st.lastSync.IsZero() || now.Sub(st.lastSync) >= st.settings.Interval {
			due = append(due, userID)
		}
	}
	return due
}

// SyncOnce runs one cycle for one user: skip when sharing is off or
// the stationary block holds, otherwise publish the latest snapshot to
// every connection edge. Failures skip the cycle without advancing the
// clock, so the next tick retries.
func (s *Service) SyncOnce(ctx context.Context, userID types.ID) {
	s.mu.Lock()
	st, ok := s.users[userID]
	enabled := ok && st.settings.Enabled
	s.mu.Unlock()
	if !enabled {
		return
	}

	if s.tracker.StationaryBlocked(userID) {
		s.markSynced(userID)
		s.logger.Debug("sync skipped, stationary block", zap.String("user_id", string(userID)))
		return
	}

	fix, err := s.snapshots.Snapshot(ctx, userID, tracking.AccuracyBalanced, syncTimeout, syncMaxAge)
	if err != nil {
		s.logger.Debug("sync skipped, no position",
			zap.String("user_id", string(userID)),
			zap.Error(err),
		)
		return
	}

	now := s.now()
	var battery *int
	if fix.Battery.Known() {
		b := int(fix.Battery)
		battery = &b
	}
	if err := s.store.UpdateSubjectLocation(ctx, userID, fix.Position.Lat, fix.Position.Lng, fix.Position.Address, battery, now); err != nil {
		s.logger.Warn("edge update failed",
			zap.String("user_id", string(userID)),
			zap.Error(err),
		)
		return
	}
	s.markSynced(userID)
}

func (s *Service) markSynced(userID types.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.users[userID]; ok {
		st.lastSync = s.now()
	}
}
