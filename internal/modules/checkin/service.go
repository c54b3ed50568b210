// README: Check-in orchestrator: snapshot, write-first, async fan-out.
package checkin

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"haven/internal/modules/tracking"
	"haven/internal/notify"
	"haven/internal/types"
)

// Snapshot budgets: emergencies wait for accuracy, ordinary check-ins
// take whatever is cached.
const (
	emergencyTimeout = 20 * time.Second
	ordinaryTimeout  = 2 * time.Second
	emergencyMaxAge  = time.Minute
	ordinaryMaxAge   = 10 * time.Minute
)

// fanOutBudget bounds the background recipient lookup and enqueue.
const fanOutBudget = 10 * time.Second

// CheckInStore persists check-in records.
type CheckInStore interface {
	Insert(ctx context.Context, rec CheckInRecord) error
}

// Snapshotter obtains the freshest position within a budget.
type Snapshotter interface {
	Snapshot(ctx context.Context, userID types.ID, profile tracking.AccuracyProfile, timeout, maxAge time.Duration) (*tracking.Fix, error)
}

// ConnectionSource lists the users connected to a subject.
type ConnectionSource interface {
	OwnersOf(ctx context.Context, subjectID types.ID) ([]types.ID, error)
}

// ContactSource lists a user's emergency contacts.
type ContactSource interface {
	EmergencyContacts(ctx context.Context, userID types.ID) ([]types.ID, error)
}

type Service struct {
	store       CheckInStore
	snapshots   Snapshotter
	connections ConnectionSource
	contacts    ContactSource
	dispatcher  *notify.Dispatcher
	logger      *zap.Logger
	now         func() time.Time
}

func NewService(store CheckInStore, snapshots Snapshotter, connections ConnectionSource, contacts ContactSource, dispatcher *notify.Dispatcher, logger *zap.Logger) *Service {
	return &Service{
		store:       store,
		snapshots:   snapshots,
		connections: connections,
		contacts:    contacts,
		dispatcher:  dispatcher,
		logger:      logger,
		now:         time.Now,
	}
}

type Command struct {
	UserID      types.ID
	Status      Status
	Message     *string
	IsEmergency bool
}

// CheckIn writes the record first, location included only if a fix
// arrived within budget, then fans out notifications in the
// background. Notification failures never roll back the write.
func (s *Service) CheckIn(ctx context.Context, cmd Command) (*CheckInRecord, error) {
	if cmd.UserID == "" || !ValidStatus(cmd.Status) {
		return nil, tracking.ErrBadRequest
	}

	rec := CheckInRecord{
		ID:          types.ID(uuid.NewString()),
		UserID:      cmd.UserID,
		Status:      cmd.Status,
		Message:     cmd.Message,
		IsEmergency: cmd.IsEmergency,
		CreatedAt:   s.now(),
	}

	profile, timeout, maxAge := tracking.AccuracyBalanced, ordinaryTimeout, ordinaryMaxAge
	if cmd.IsEmergency {
		profile, timeout, maxAge = tracking.AccuracyHighest, emergencyTimeout, emergencyMaxAge
	}

	fix, err := s.snapshots.Snapshot(ctx, cmd.UserID, profile, timeout, maxAge)
	if err != nil {
		s.logger.Debug("checkin without location",
			zap.String("user_id", string(cmd.UserID)),
			zap.Error(err),
		)
	} else {
		rec.Latitude = &fix.Position.Lat
		rec.Longitude = &fix.Position.Lng
		rec.Address = fix.Position.Address
	}

	if err := s.store.Insert(ctx, rec); err != nil {
		return nil, err
	}

	go s.fanOut(rec)
	return &rec, nil
}

// fanOut notifies the union of the user's connections and, for
// emergencies, their emergency contacts. Best-effort by design.
func (s *Service) fanOut(rec CheckInRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), fanOutBudget)
	defer cancel()

	recipients, err := s.connections.OwnersOf(ctx, rec.UserID)
	if err != nil {
		s.logger.Warn("checkin fan-out: connection lookup failed",
			zap.String("user_id", string(rec.UserID)),
			zap.Error(err),
		)
		recipients = nil
	}

	if rec.IsEmergency {
		contacts, err := s.contacts.EmergencyContacts(ctx, rec.UserID)
		if err != nil {
			s.logger.Warn("checkin fan-out: contact lookup failed",
				zap.String("user_id", string(rec.UserID)),
				zap.Error(err),
			)
		} else {
			recipients = append(recipients, contacts...)
		}
	}

	recipients = dedupe(recipients)
	if len(recipients) == 0 {
		return
	}

	title := "Check-in"
	if rec.IsEmergency {
		title = "Emergency check-in"
	}
	body := string(rec.Status)
	if rec.Message != nil && *rec.Message != "" {
		body = *rec.Message
	}

	s.dispatcher.Enqueue(notify.Message{
		UserIDs: recipients,
		Title:   title,
		Body:    body,
		Data: map[string]string{
			"type":       "checkin",
			"checkin_id": string(rec.ID),
			"user_id":    string(rec.UserID),
			"status":     string(rec.Status),
		},
	})
}

func dedupe(ids []types.ID) []types.ID {
	seen := make(map[types.ID]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
