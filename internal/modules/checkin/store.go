// README: Check-in store backed by Postgres.
package checkin

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"haven/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Insert(ctx context.Context, rec CheckInRecord) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO checkins (
			id, user_id, status, message, latitude, longitude,
			address, is_emergency, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		string(rec.ID),
		string(rec.UserID),
		string(rec.Status),
		rec.Message,
		rec.Latitude,
		rec.Longitude,
		rec.Address,
		rec.IsEmergency,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert checkin: %w", err)
	}
	return nil
}

// ListRecent returns the user's newest check-ins, newest first.
func (s *Store) ListRecent(ctx context.Context, userID types.ID, limit int) ([]CheckInRecord, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, status, message, latitude, longitude,
		       address, is_emergency, created_at
		FROM checkins
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		string(userID), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list checkins: %w", err)
	}
	defer rows.Close()

	var recs []CheckInRecord
	for rows.Next() {
		var rec CheckInRecord
		err := rows.Scan(
			&rec.ID, &rec.UserID, &rec.Status, &rec.Message,
			&rec.Latitude, &rec.Longitude, &rec.Address,
			&rec.IsEmergency, &rec.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}
