// README: Emergency recorder: rolling 5-row trail plus contact alerting.
package sos

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"haven/internal/geocode"
	"haven/internal/modules/tracking"
	"haven/internal/notify"
	"haven/internal/types"
)

// recordInterval is the fixed emergency cadence. It is independent of
// the tracking core's history gate; both may write concurrently.
const recordInterval = time.Hour

// Emergency snapshot budget: accuracy over speed, but still bounded.
const (
	snapshotTimeout = 20 * time.Second
	snapshotMaxAge  = time.Minute
)

// HistoryStore is the slice of the tracking store the recorder needs.
type HistoryStore interface {
	InsertHistory(ctx context.Context, rec tracking.HistoryRecord) (int64, error)
	UpdateHistory(ctx context.Context, id int64, lat, lng float64, address *string, at time.Time) error
	RecentHistoryIDs(ctx context.Context, userID types.ID, limit int) ([]int64, error)
}

// Snapshotter obtains the freshest position available within a budget.
// The production implementation is the tracking service.
type Snapshotter interface {
	Snapshot(ctx context.Context, userID types.ID, profile tracking.AccuracyProfile, timeout, maxAge time.Duration) (*tracking.Fix, error)
}

// ContactSource lists a user's emergency contacts.
type ContactSource interface {
	EmergencyContacts(ctx context.Context, userID types.ID) ([]types.ID, error)
}

type emergency struct {
	userID types.ID
	ring   ring
	cancel context.CancelFunc
	done   chan struct{}
}

type Service struct {
	store      HistoryStore
	snapshots  Snapshotter
	resolver   tracking.AddressResolver
	contacts   ContactSource
	dispatcher *notify.Dispatcher
	logger     *zap.Logger

	interval time.Duration
	now      func() time.Time

	mu     sync.Mutex
	active map[types.ID]*emergency
}

func NewService(store HistoryStore, snapshots Snapshotter, resolver tracking.AddressResolver, contacts ContactSource, dispatcher *notify.Dispatcher, logger *zap.Logger) *Service {
	return &Service{
		store:      store,
		snapshots:  snapshots,
		resolver:   resolver,
		contacts:   contacts,
		dispatcher: dispatcher,
		logger:     logger,
		interval:   recordInterval,
		now:        time.Now,
		active:     make(map[types.ID]*emergency),
	}
}

type StartCommand struct {
	UserID types.ID
	// Resume marks a restart of an emergency that was already running
	// before the process died: the rolling trail is rebuilt from the
	// user's most recent history rows instead of starting empty.
	Resume bool
}

// Start declares an emergency for the user. Starting one that is
// already active is a no-op. The first sample is recorded immediately;
// emergency contacts are alerted asynchronously.
func (s *Service) Start(ctx context.Context, cmd StartCommand) error {
	if cmd.UserID == "" {
		return tracking.ErrBadRequest
	}

	s.mu.Lock()
	if _, running := s.active[cmd.UserID]; running {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	em := &emergency{
		userID: cmd.UserID,
		done:   make(chan struct{}),
	}
	if cmd.Resume {
		ids, err := s.store.RecentHistoryIDs(ctx, cmd.UserID, ringSize)
		if err != nil {
			return err
		}
		em.ring = restoredRing(ids)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	em.cancel = cancel

	s.mu.Lock()
	if _, running := s.active[cmd.UserID]; running {
		s.mu.Unlock()
		cancel()
		return nil
	}
	s.active[cmd.UserID] = em
	s.mu.Unlock()

	go s.run(runCtx, em)
	s.alertContacts(cmd.UserID)

	s.logger.Info("emergency started",
		zap.String("user_id", string(cmd.UserID)),
		zap.Bool("resumed", cmd.Resume),
	)
	return nil
}

// Stop ends the user's emergency. The recorded trail stays in place.
func (s *Service) Stop(userID types.ID) error {
	s.mu.Lock()
	em, running := s.active[userID]
	if !running {
		s.mu.Unlock()
		return tracking.ErrNoSession
	}
	delete(s.active, userID)
	s.mu.Unlock()

	em.cancel()
	<-em.done

	s.logger.Info("emergency stopped", zap.String("user_id", string(userID)))
	return nil
}

// Active reports whether an emergency is running for the user.
func (s *Service) Active(userID types.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.active[userID]
	return ok
}

func (s *Service) run(ctx context.Context, em *emergency) {
	defer close(em.done)

	// Record right away; an emergency must not wait an hour for its
	// first sample.
	s.recordOnce(ctx, em)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.recordOnce(ctx, em)
		}
	}
}

// recordOnce captures one sample into the ring: insert while the ring
// is filling, overwrite the oldest row once it is full. Failures skip
// the tick; the emergency keeps running.
func (s *Service) recordOnce(ctx context.Context, em *emergency) {
	fix, err := s.snapshots.Snapshot(ctx, em.userID, tracking.AccuracyHighest, snapshotTimeout, snapshotMaxAge)
	if err != nil {
		s.logger.Warn("emergency sample unavailable",
			zap.String("user_id", string(em.userID)),
			zap.Error(err),
		)
		return
	}

	now := s.now()
	pos := fix.Position
	if pos.Address == nil {
		pos.Address = s.resolver.Resolve(ctx, pos.Lat, pos.Lng, geocode.Options{Emergency: true})
	}

	if !em.ring.full() {
		id, err := s.store.InsertHistory(ctx, tracking.HistoryRecord{
			UserID:    em.userID,
			Latitude:  pos.Lat,
			Longitude: pos.Lng,
			Address:   pos.Address,
			CreatedAt: now,
		})
		if err != nil {
			s.logger.Warn("emergency insert failed",
				zap.String("user_id", string(em.userID)),
				zap.Error(err),
			)
			return
		}
		em.ring.recordInsert(id)
		return
	}

	target := em.ring.overwriteTarget()
	if err := s.store.UpdateHistory(ctx, target, pos.Lat, pos.Lng, pos.Address, now); err != nil {
		s.logger.Warn("emergency overwrite failed",
			zap.String("user_id", string(em.userID)),
			zap.Int64("row_id", target),
			zap.Error(err),
		)
		return
	}
	em.ring.advance()
}

// alertContacts fans the SOS alert out to the user's emergency
// contacts through the async dispatcher. Best-effort by design.
func (s *Service) alertContacts(userID types.ID) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	contacts, err := s.contacts.EmergencyContacts(ctx, userID)
	if err != nil {
		s.logger.Warn("emergency contact lookup failed",
			zap.String("user_id", string(userID)),
			zap.Error(err),
		)
		return
	}
	if len(contacts) == 0 {
		return
	}

	s.dispatcher.Enqueue(notify.Message{
		UserIDs: contacts,
		Title:   "SOS alert",
		Body:    "An emergency was declared. Latest locations are being recorded.",
		Data: map[string]string{
			"type":    "sos_started",
			"user_id": string(userID),
		},
	})
}
