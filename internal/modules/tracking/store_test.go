package tracking

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"haven/internal/types"
)

func newRedisStore(t *testing.T) *Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewStore(nil, client)
}

func TestLastFixRoundTrip(t *testing.T) {
	store := newRedisStore(t)
	ctx := context.Background()

	addr := "12 Harbour Rd"
	at := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	fix := Fix{
		Position: types.Position{Lat: 25.033, Lng: 121.565, Address: &addr},
		Battery:  73,
		At:       at,
	}

	if err := store.SetLastFix(ctx, "u1", fix); err != nil {
		t.Fatalf("set last fix: %v", err)
	}

	got, err := store.LastFix(ctx, "u1")
	if err != nil {
		t.Fatalf("get last fix: %v", err)
	}
	if got.Position.Lat != fix.Position.Lat || got.Position.Lng != fix.Position.Lng {
		t.Fatalf("position mismatch: %+v", got.Position)
	}
	if got.Position.Address == nil || *got.Position.Address != addr {
		t.Fatalf("address mismatch: %+v", got.Position.Address)
	}
	if got.Battery != 73 {
		t.Fatalf("battery mismatch: %d", got.Battery)
	}
	if !got.At.Equal(at) {
		t.Fatalf("timestamp mismatch: %v", got.At)
	}
}

func TestLastFixMissing(t *testing.T) {
	store := newRedisStore(t)
	if _, err := store.LastFix(context.Background(), "ghost"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// testPool connects to the database named by HAVEN_TEST_DSN, skipping
// when it is unset. Schema comes from migrations/.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("HAVEN_TEST_DSN")
	if dsn == "" {
		t.Skip("HAVEN_TEST_DSN not set; skipping database integration test")
	}
	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

func TestHistoryIntegration(t *testing.T) {
	pool := testPool(t)
	store := NewStore(pool, nil)
	ctx := context.Background()

	userID := types.ID("it-user-history")
	if _, err := pool.Exec(ctx, `DELETE FROM location_history WHERE user_id = $1`, string(userID)); err != nil {
		t.Fatalf("cleanup: %v", err)
	}

	base := time.Now().UTC().Truncate(time.Millisecond)
	newestAddr := "12 Harbour Rd"
	var ids []int64
	for i := 0; i < 3; i++ {
		rec := HistoryRecord{
			UserID:    userID,
			Latitude:  25.0 + float64(i)*0.01,
			Longitude: 121.5,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if i == 2 {
			rec.Address = &newestAddr
		}
		id, err := store.InsertHistory(ctx, rec)
		if err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
		ids = append(ids, id)
	}

	latest, err := store.LatestHistory(ctx, userID)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.ID != ids[2] {
		t.Fatalf("expected newest row %d, got %d", ids[2], latest.ID)
	}
	if latest.Latitude != 25.02 || latest.Longitude != 121.5 {
		t.Fatalf("coordinates did not round-trip: lat=%v lng=%v", latest.Latitude, latest.Longitude)
	}
	if latest.Address == nil || *latest.Address != newestAddr {
		t.Fatalf("address did not round-trip: %v", latest.Address)
	}

	recent, err := store.RecentHistoryIDs(ctx, userID, 2)
	if err != nil {
		t.Fatalf("recent ids: %v", err)
	}
	if len(recent) != 2 || recent[0] != ids[1] || recent[1] != ids[2] {
		t.Fatalf("expected oldest-first window [%d %d], got %v", ids[1], ids[2], recent)
	}

	addr := "rewritten"
	if err := store.UpdateHistory(ctx, ids[0], 24.9, 121.4, &addr, base.Add(time.Hour)); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := store.UpdateHistory(ctx, -1, 24.9, 121.4, nil, base); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for missing row, got %v", err)
	}
}

func TestPresenceIntegration(t *testing.T) {
	pool := testPool(t)
	store := NewStore(pool, nil)
	ctx := context.Background()

	groupID := types.ID("it-group")
	userID := types.ID("it-user-presence")
	if _, err := pool.Exec(ctx, `DELETE FROM presence WHERE group_id = $1 AND user_id = $2`, string(groupID), string(userID)); err != nil {
		t.Fatalf("cleanup: %v", err)
	}

	lat, lng := 25.033, 121.565
	battery := 60
	now := time.Now().UTC()
	rec := PresenceRecord{
		GroupID:       groupID,
		UserID:        userID,
		Latitude:      &lat,
		Longitude:     &lng,
		BatteryLevel:  &battery,
		IsOnline:      true,
		ShareLocation: true,
		UpdatedAt:     &now,
	}
	if err := store.UpsertPresence(ctx, rec); err != nil {
		t.Fatalf("insert: %v", err)
	}

	// Second upsert on the same key must update, not conflict.
	lat2 := 25.04
	rec.Latitude = &lat2
	rec.IsOnline = false
	if err := store.UpsertPresence(ctx, rec); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	members, err := store.ListGroupPresence(ctx, groupID)
	if err != nil {
		t.Fatalf("list group presence: %v", err)
	}
	var got *PresenceRecord
	for i := range members {
		if members[i].UserID == userID {
			got = &members[i]
		}
	}
	if got == nil {
		t.Fatalf("user missing from group listing: %+v", members)
	}
	if got.Latitude == nil || *got.Latitude != lat2 || got.IsOnline {
		t.Fatalf("expected updated row (lat=%v online=false), got %+v", lat2, got)
	}
	if !got.Online(now.Add(time.Minute)) {
		t.Fatalf("fresh sharing row should derive online")
	}
	if got.Online(now.Add(10 * time.Minute)) {
		t.Fatalf("stale row should derive offline")
	}

	if err := store.MarkOffline(ctx, userID); err != nil {
		t.Fatalf("mark offline: %v", err)
	}
}
