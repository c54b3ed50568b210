// README: Tracking store backed by Postgres records and a Redis fix cache.
package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"haven/internal/types"
)

// lastFixTTL bounds how long a cached fix can serve the fast path.
const lastFixTTL = 24 * time.Hour

type Store struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

func NewStore(db *pgxpool.Pool, redis *redis.Client) *Store {
	return &Store{db: db, redis: redis}
}

// UpsertPresence writes the current-value projection for (group, user).
// Last write wins; the conflict arm makes concurrent upserts safe.
func (s *Store) UpsertPresence(ctx context.Context, rec PresenceRecord) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO presence (
			group_id, user_id, latitude, longitude, address,
			battery_level, is_online, share_location, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (group_id, user_id) DO UPDATE SET
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			address = EXCLUDED.address,
			battery_level = EXCLUDED.battery_level,
			is_online = EXCLUDED.is_online,
			share_location = EXCLUDED.share_location,
			updated_at = EXCLUDED.updated_at`,
		string(rec.GroupID),
		string(rec.UserID),
		rec.Latitude,
		rec.Longitude,
		rec.Address,
		rec.BatteryLevel,
		rec.IsOnline,
		rec.ShareLocation,
		rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert presence: %w", err)
	}
	return nil
}

// MarkOffline flips the subject's presence rows offline without
// touching the stored coordinates.
func (s *Store) MarkOffline(ctx context.Context, userID types.ID) error {
	_, err := s.db.Exec(ctx, `
		UPDATE presence SET is_online = FALSE WHERE user_id = $1`,
		string(userID),
	)
	if err != nil {
		return fmt.Errorf("mark offline: %w", err)
	}
	return nil
}

// ListGroupPresence returns the presence projection for every member
// of a group. Whether a member counts as online is derived by the
// caller via PresenceRecord.Online, never read from the stored flag.
func (s *Store) ListGroupPresence(ctx context.Context, groupID types.ID) ([]PresenceRecord, error) {
	rows, err := s.db.Query(ctx, `
		SELECT group_id, user_id, latitude, longitude, address,
		       battery_level, is_online, share_location, updated_at
		FROM presence
		WHERE group_id = $1
		ORDER BY user_id`, string(groupID),
	)
	if err != nil {
		return nil, fmt.Errorf("list group presence: %w", err)
	}
	defer rows.Close()

	var recs []PresenceRecord
	for rows.Next() {
		var rec PresenceRecord
		err := rows.Scan(
			&rec.GroupID, &rec.UserID, &rec.Latitude, &rec.Longitude,
			&rec.Address, &rec.BatteryLevel, &rec.IsOnline,
			&rec.ShareLocation, &rec.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func (s *Store) InsertHistory(ctx context.Context, rec HistoryRecord) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO location_history (user_id, latitude, longitude, address, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		string(rec.UserID),
		rec.Latitude,
		rec.Longitude,
		rec.Address,
		rec.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert history: %w", err)
	}
	return id, nil
}

// UpdateHistory rewrites an existing history row in place. Only the
// SOS ring does this.
func (s *Store) UpdateHistory(ctx context.Context, id int64, lat, lng float64, address *string, at time.Time) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE location_history
		SET latitude = $1, longitude = $2, address = $3, created_at = $4
		WHERE id = $5`,
		lat, lng, address, at, id,
	)
	if err != nil {
		return fmt.Errorf("update history: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) LatestHistory(ctx context.Context, userID types.ID) (*HistoryRecord, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, user_id, latitude, longitude, address, created_at
		FROM location_history
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT 1`, string(userID),
	)

	var rec HistoryRecord
	err := row.Scan(&rec.ID, &rec.UserID, &rec.Latitude, &rec.Longitude, &rec.Address, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest history: %w", err)
	}
	return &rec, nil
}

// RecentHistoryIDs returns up to limit most recent row ids for the
// user, oldest first. The SOS recorder uses this to rebuild its ring
// after a restart.
func (s *Store) RecentHistoryIDs(ctx context.Context, userID types.ID, limit int) ([]int64, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id FROM (
			SELECT id, created_at FROM location_history
			WHERE user_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC`,
		string(userID), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent history ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// cachedFix is the Redis representation of the most recent raw fix.
type cachedFix struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address *string `json:"address,omitempty"`
	Battery int     `json:"battery"`
	AtMs    int64   `json:"at_ms"`
}

func lastFixKey(userID types.ID) string {
	return "fix:last:" + string(userID)
}

// SetLastFix caches the newest raw fix for the fast-path snapshot.
func (s *Store) SetLastFix(ctx context.Context, userID types.ID, fix Fix) error {
	payload, err := json.Marshal(cachedFix{
		Lat:     fix.Position.Lat,
		Lng:     fix.Position.Lng,
		Address: fix.Position.Address,
		Battery: int(fix.Battery),
		AtMs:    fix.At.UnixMilli(),
	})
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, lastFixKey(userID), payload, lastFixTTL).Err(); err != nil {
		return fmt.Errorf("set last fix: %w", err)
	}
	return nil
}

func (s *Store) LastFix(ctx context.Context, userID types.ID) (*Fix, error) {
	val, err := s.redis.Get(ctx, lastFixKey(userID)).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get last fix: %w", err)
	}

	var c cachedFix
	if err := json.Unmarshal([]byte(val), &c); err != nil {
		return nil, fmt.Errorf("decode last fix: %w", err)
	}
	return &Fix{
		Position: types.Position{Lat: c.Lat, Lng: c.Lng, Address: c.Address},
		Battery:  types.BatteryLevel(c.Battery),
		At:       time.UnixMilli(c.AtMs),
	}, nil
}
