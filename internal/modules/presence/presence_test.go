package presence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"haven/internal/modules/tracking"
	"haven/internal/types"
)

type edgeWrite struct {
	subject types.ID
	lat     float64
	cleared bool
}

type fakeEdges struct {
	mu        sync.Mutex
	writes    []edgeWrite
	updateErr error
}

func (f *fakeEdges) UpdateSubjectLocation(ctx context.Context, subjectID types.ID, lat, lng float64, address *string, battery *int, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	f.writes = append(f.writes, edgeWrite{subject: subjectID, lat: lat})
	return nil
}

func (f *fakeEdges) ClearSubjectLocation(ctx context.Context, subjectID types.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, edgeWrite{subject: subjectID, cleared: true})
	return nil
}

func (f *fakeEdges) all() []edgeWrite {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]edgeWrite(nil), f.writes...)
}

type stubSnapshots struct {
	fix *tracking.Fix
	err error
}

func (s stubSnapshots) Snapshot(ctx context.Context, userID types.ID, profile tracking.AccuracyProfile, timeout, maxAge time.Duration) (*tracking.Fix, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.fix, nil
}

type stubTracker struct {
	blocked bool
}

func (s stubTracker) StationaryBlocked(userID types.ID) bool { return s.blocked }

func testFix() *tracking.Fix {
	return &tracking.Fix{
		Position: types.Position{Lat: 25.033, Lng: 121.565},
		Battery:  55,
		At:       time.Now(),
	}
}

func TestSyncOncePublishesToEdges(t *testing.T) {
	edges := &fakeEdges{}
	svc := NewService(edges, stubSnapshots{fix: testFix()}, stubTracker{}, zap.NewNop())

	if err := svc.SetSharing(context.Background(), "u1", true, 0); err != nil {
		t.Fatalf("set sharing: %v", err)
	}
	svc.SyncOnce(context.Background(), "u1")

	writes := edges.all()
	if len(writes) != 1 || writes[0].subject != "u1" || writes[0].lat != 25.033 {
		t.Fatalf("expected one edge update, got %+v", writes)
	}
}

func TestSyncSkipsWhenStationaryBlocked(t *testing.T) {
	edges := &fakeEdges{}
	svc := NewService(edges, stubSnapshots{fix: testFix()}, stubTracker{blocked: true}, zap.NewNop())

	if err := svc.SetSharing(context.Background(), "u1", true, 0); err != nil {
		t.Fatalf("set sharing: %v", err)
	}
	svc.SyncOnce(context.Background(), "u1")

	if writes := edges.all(); len(writes) != 0 {
		t.Fatalf("expected no edge writes while blocked, got %+v", writes)
	}
}

func TestSyncSkipsWhenSharingDisabled(t *testing.T) {
	edges := &fakeEdges{}
	svc := NewService(edges, stubSnapshots{fix: testFix()}, stubTracker{}, zap.NewNop())

	svc.SyncOnce(context.Background(), "never-registered")
	if writes := edges.all(); len(writes) != 0 {
		t.Fatalf("expected no writes for unregistered user, got %+v", writes)
	}
}

func TestDisableSharingClearsEdgesImmediately(t *testing.T) {
	edges := &fakeEdges{}
	svc := NewService(edges, stubSnapshots{fix: testFix()}, stubTracker{}, zap.NewNop())

	if err := svc.SetSharing(context.Background(), "u1", true, 0); err != nil {
		t.Fatalf("enable: %v", err)
	}
	if err := svc.SetSharing(context.Background(), "u1", false, 0); err != nil {
		t.Fatalf("disable: %v", err)
	}

	writes := edges.all()
	if len(writes) != 1 || !writes[0].cleared {
		t.Fatalf("expected an immediate clear, got %+v", writes)
	}

	// Disabled users never come due.
	if due := svc.dueUsers(); len(due) != 0 {
		t.Fatalf("expected no due users, got %v", due)
	}
}

func TestDueUsersHonorsInterval(t *testing.T) {
	edges := &fakeEdges{}
	svc := NewService(edges, stubSnapshots{fix: testFix()}, stubTracker{}, zap.NewNop())

	base := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	now := base
	svc.now = func() time.Time { return now }

	if err := svc.SetSharing(context.Background(), "u1", true, 30); err != nil {
		t.Fatalf("set sharing: %v", err)
	}

	// Never synced: due right away.
	if due := svc.dueUsers(); len(due) != 1 {
		t.Fatalf("expected u1 due, got %v", due)
	}

	svc.SyncOnce(context.Background(), "u1")

	now = base.Add(10 * time.Minute)
	if due := svc.dueUsers(); len(due) != 0 {
		t.Fatalf("expected nobody due inside the interval, got %v", due)
	}

	now = base.Add(31 * time.Minute)
	if due := svc.dueUsers(); len(due) != 1 {
		t.Fatalf("expected u1 due after the interval, got %v", due)
	}
}

func TestSyncFailureDoesNotAdvanceClock(t *testing.T) {
	edges := &fakeEdges{updateErr: errors.New("db down")}
	svc := NewService(edges, stubSnapshots{fix: testFix()}, stubTracker{}, zap.NewNop())

	if err := svc.SetSharing(context.Background(), "u1", true, 30); err != nil {
		t.Fatalf("set sharing: %v", err)
	}
	svc.SyncOnce(context.Background(), "u1")

	// The failed cycle must leave the user due so the next tick retries.
	if due := svc.dueUsers(); len(due) != 1 {
		t.Fatalf("expected u1 still due after failure, got %v", due)
	}
}
