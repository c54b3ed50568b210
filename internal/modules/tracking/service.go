// README: Tracking core: session lifecycle, trigger pipeline, dispatch.
package tracking

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"haven/internal/geocode"
	"haven/internal/types"
)

// DataStore is the persistence contract the tracking core needs. The
// production implementation is *Store; tests substitute fakes.
type DataStore interface {
	UpsertPresence(ctx context.Context, rec PresenceRecord) error
	MarkOffline(ctx context.Context, userID types.ID) error
	InsertHistory(ctx context.Context, rec HistoryRecord) (int64, error)
	LatestHistory(ctx context.Context, userID types.ID) (*HistoryRecord, error)
	SetLastFix(ctx context.Context, userID types.ID, fix Fix) error
	LastFix(ctx context.Context, userID types.ID) (*Fix, error)
}

// AddressResolver resolves a coordinate to an address, best-effort.
type AddressResolver interface {
	Resolve(ctx context.Context, lat, lng float64, opts geocode.Options) *string
}

// session is the process-lifetime state of one user's active tracking.
// All mutation happens under mu: the push and poll triggers share one
// pipeline and last-write-wins semantics must hold on a multi-threaded
// runtime.
type session struct {
	mu sync.Mutex

	userID  types.ID
	groupID types.ID
	share   bool
	cfg     Config

	lastKnown        *Fix
	policy           PolicyState
	lastHistoryWrite time.Time

	cancel      context.CancelFunc
	unsubscribe func()
	done        chan struct{}

	loggedStoreDown bool
}

type Service struct {
	store    DataStore
	geo      Geolocator
	resolver AddressResolver
	logger   *zap.Logger
	cfg      Config
	now      func() time.Time

	mu       sync.Mutex
	sessions map[types.ID]*session
}

func NewService(store DataStore, geo Geolocator, resolver AddressResolver, cfg Config, logger *zap.Logger) *Service {
	return &Service{
		store:    store,
		geo:      geo,
		resolver: resolver,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
		sessions: make(map[types.ID]*session),
	}
}

type StartCommand struct {
	UserID        types.ID
	GroupID       types.ID
	ShareLocation bool
	// HistoryWriteFrequencyMinutes overrides the history cadence for
	// this session; 0 keeps the service default.
	HistoryWriteFrequencyMinutes int
}

// Start begins tracking for a user. Starting an already-active session
// is a no-op. Permission and service-availability problems are
// surfaced immediately; anything else degrades per cycle.
func (s *Service) Start(ctx context.Context, cmd StartCommand) error {
	if cmd.UserID == "" || cmd.GroupID == "" {
		return ErrBadRequest
	}

	s.mu.Lock()
	if _, active := s.sessions[cmd.UserID]; active {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	// Probe the device so a denied permission or disabled services fail
	// the start, not the first cycle. A missing fix is fine.
	if _, err := s.geo.GetCurrentPosition(ctx, cmd.UserID, s.cfg.AccuracyProfile, 0, lastFixTTL); err != nil {
		if errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrServicesDisabled) {
			return err
		}
	}

	cfg := s.cfg
	if cmd.HistoryWriteFrequencyMinutes > 0 {
		cfg.HistoryWriteFrequency = time.Duration(cmd.HistoryWriteFrequencyMinutes) * time.Minute
	}

	runCtx, cancel := context.WithCancel(context.Background())
	fixes, unsubscribe := s.geo.Subscribe(cmd.UserID, cfg.UpdateInterval, cfg.DistanceThresholdMeters)

	sess := &session{
		userID:      cmd.UserID,
		groupID:     cmd.GroupID,
		share:       cmd.ShareLocation,
		cfg:         cfg,
		cancel:      cancel,
		unsubscribe: unsubscribe,
		done:        make(chan struct{}),
	}

	s.mu.Lock()
	if _, active := s.sessions[cmd.UserID]; active {
		// Lost the race to another Start; keep the winner.
		s.mu.Unlock()
		cancel()
		unsubscribe()
		return nil
	}
	s.sessions[cmd.UserID] = sess
	s.mu.Unlock()

	go s.run(runCtx, sess, fixes)

	s.logger.Info("tracking started",
		zap.String("user_id", string(cmd.UserID)),
		zap.Bool("share_location", cmd.ShareLocation),
	)
	return nil
}

// Stop ends tracking: it cancels the push subscription and poll timer,
// joins the run loop so no further writes happen for this session, and
// marks the subject offline.
func (s *Service) Stop(ctx context.Context, userID types.ID) error {
	s.mu.Lock()
	sess, active := s.sessions[userID]
	if !active {
		s.mu.Unlock()
		return ErrNoSession
	}
	delete(s.sessions, userID)
	s.mu.Unlock()

	sess.cancel()
	sess.unsubscribe()
	<-sess.done

	sess.mu.Lock()
	sess.lastKnown = nil
	sess.policy = PolicyState{}
	sess.mu.Unlock()

	if err := s.store.MarkOffline(ctx, userID); err != nil {
		s.logger.Warn("mark offline failed", zap.String("user_id", string(userID)), zap.Error(err))
	}

	s.logger.Info("tracking stopped", zap.String("user_id", string(userID)))
	return nil
}

// Active reports whether a session exists for the user.
func (s *Service) Active(userID types.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[userID]
	return ok
}

// StationaryBlocked exposes the long-stationary predicate to the
// connection sync job so both write paths honor one rule.
func (s *Service) StationaryBlocked(userID types.ID) bool {
	s.mu.Lock()
	sess, ok := s.sessions[userID]
	s.mu.Unlock()
	if !ok {
		return false
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.policy.StationaryBlocked(s.now())
}

// run is the per-session event loop: push trigger plus a poll backstop
// that fires even when the device goes quiet.
func (s *Service) run(ctx context.Context, sess *session, fixes <-chan Fix) {
	defer close(sess.done)

	ticker := time.NewTicker(sess.cfg.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case fix, ok := <-fixes:
			if !ok {
				return
			}
			s.handleFix(ctx, sess, fix, false)
		case <-ticker.C:
			s.pollOnce(ctx, sess)
		}
	}
}

// pollOnce runs the pipeline from the poll trigger. Fetch failures
// degrade to "no update this cycle" via the fallback chain.
func (s *Service) pollOnce(ctx context.Context, sess *session) {
	fix, source, err := firstFix(ctx, s.fallbackChain(sess, sess.userID, s.cfg.AccuracyProfile, 0, sess.cfg.UpdateInterval))
	if fix == nil {
		if err != nil {
			s.logger.Debug("poll cycle skipped",
				zap.String("user_id", string(sess.userID)),
				zap.Error(err),
			)
		}
		return
	}
	s.logger.Debug("poll cycle fix",
		zap.String("user_id", string(sess.userID)),
		zap.String("source", source),
	)
	s.handleFix(ctx, sess, *fix, true)
}

// handleFix is the shared pipeline: decide, address, dispatch, and the
// independent history gate. fastPath skips fresh geocoding so backstop
// cycles stay cheap.
func (s *Service) handleFix(ctx context.Context, sess *session, fix Fix, fastPath bool) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	now := s.now()
	sess.lastKnown = &fix

	if err := s.store.SetLastFix(ctx, sess.userID, fix); err != nil {
		s.warnStoreOnce(sess, "fix cache write failed", err)
	}

	// Step A: the persistence decision and anchor evolution.
	v := DecidePersist(sess.policy, fix.Position, now, sess.cfg.DistanceThresholdMeters)
	sess.policy.Anchor = v.Anchor

	if v.Persist {
		pos := fix.Position
		// Step B: addressing. Backstop cycles reuse the last resolved
		// address to bound latency.
		if pos.Address == nil {
			if fastPath {
				if lp := sess.policy.LastPersisted; lp != nil {
					pos.Address = lp.Position.Address
				}
			} else {
				pos.Address = s.resolver.Resolve(ctx, pos.Lat, pos.Lng, geocode.Options{})
			}
		}

		// Step C: presence dispatch.
		rec := PresenceRecord{
			GroupID:       sess.groupID,
			UserID:        sess.userID,
			Latitude:      &pos.Lat,
			Longitude:     &pos.Lng,
			Address:       pos.Address,
			BatteryLevel:  batteryPtr(fix.Battery),
			IsOnline:      sess.share,
			ShareLocation: sess.share,
			UpdatedAt:     &now,
		}
		if err := s.store.UpsertPresence(ctx, rec); err != nil {
			s.warnStoreOnce(sess, "presence upsert failed", err)
		} else {
			sess.policy.LastPersisted = &PersistedPoint{Position: pos, At: now}
			sess.loggedStoreDown = false
		}
	}

	// Step D: the history trail runs on its own gate no matter what
	// Step A decided — a presence block must not starve the audit trail.
	s.maybeWriteHistory(ctx, sess, fix, now)
}

// maybeWriteHistory appends to the trail at most once per configured
// window, resolving the address best-effort when missing.
func (s *Service) maybeWriteHistory(ctx context.Context, sess *session, fix Fix, now time.Time) {
	if !sess.lastHistoryWrite.IsZero() && now.Sub(sess.lastHistoryWrite) < sess.cfg.HistoryWriteFrequency {
		return
	}

	pos := fix.Position
	if pos.Address == nil {
		pos.Address = s.resolver.Resolve(ctx, pos.Lat, pos.Lng, geocode.Options{})
	}

	rec := HistoryRecord{
		UserID:    sess.userID,
		Latitude:  pos.Lat,
		Longitude: pos.Lng,
		Address:   pos.Address,
		CreatedAt: now,
	}
	if _, err := s.store.InsertHistory(ctx, rec); err != nil {
		// Leave the gate open so the next trigger retries.
		s.warnStoreOnce(sess, "history write failed", err)
		return
	}
	sess.lastHistoryWrite = now
}

// Snapshot returns the freshest position obtainable within the budget,
// walking the fallback chain: live fix, in-memory last known, cached
// fix, then the most recent history row.
func (s *Service) Snapshot(ctx context.Context, userID types.ID, profile AccuracyProfile, timeout, maxAge time.Duration) (*Fix, error) {
	s.mu.Lock()
	sess := s.sessions[userID]
	s.mu.Unlock()

	fix, source, err := firstFix(ctx, s.fallbackChain(sess, userID, profile, timeout, maxAge))
	if fix == nil {
		if err == nil {
			err = ErrNotFound
		}
		return nil, err
	}
	s.logger.Debug("snapshot served",
		zap.String("user_id", string(userID)),
		zap.String("source", source),
	)
	return fix, nil
}

// fallbackChain builds the ordered strategies for one user. sess may be
// nil when no session is active; the chain then starts at the caches.
func (s *Service) fallbackChain(sess *session, userID types.ID, profile AccuracyProfile, timeout, maxAge time.Duration) []fixSource {
	sources := []fixSource{}
	if sess != nil {
		sources = append(sources, fixSource{
			name: "live",
			get: func(ctx context.Context) (*Fix, error) {
				fix, err := s.geo.GetCurrentPosition(ctx, userID, profile, timeout, maxAge)
				if err != nil {
					return nil, err
				}
				return &fix, nil
			},
		})
		sources = append(sources, fixSource{
			name: "session",
			get: func(ctx context.Context) (*Fix, error) {
				sess.mu.Lock()
				defer sess.mu.Unlock()
				if sess.lastKnown == nil {
					return nil, nil
				}
				fix := *sess.lastKnown
				return &fix, nil
			},
		})
	}
	sources = append(sources, fixSource{
		name: "fix_cache",
		get: func(ctx context.Context) (*Fix, error) {
			fix, err := s.store.LastFix(ctx, userID)
			if errors.Is(err, ErrNotFound) {
				return nil, nil
			}
			return fix, err
		},
	})
	sources = append(sources, fixSource{
		name: "history",
		get: func(ctx context.Context) (*Fix, error) {
			rec, err := s.store.LatestHistory(ctx, userID)
			if errors.Is(err, ErrNotFound) {
				return nil, nil
			}
			if err != nil {
				return nil, err
			}
			return &Fix{
				Position: types.Position{Lat: rec.Latitude, Lng: rec.Longitude, Address: rec.Address},
				Battery:  -1,
				At:       rec.CreatedAt,
			}, nil
		},
	})
	return sources
}

// warnStoreOnce logs a store failure once per outage per session so a
// long network gap does not spam the log.
func (s *Service) warnStoreOnce(sess *session, msg string, err error) {
	if sess.loggedStoreDown {
		return
	}
	sess.loggedStoreDown = true
	s.logger.Warn(msg,
		zap.String("user_id", string(sess.userID)),
		zap.Error(err),
	)
}

func batteryPtr(b types.BatteryLevel) *int {
	if !b.Known() {
		return nil
	}
	v := int(b)
	return &v
}
