// README: Connection edge store backed by Postgres.
package presence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"haven/internal/types"
)

const uniqueViolation = "23505"

type ConnectionStore struct {
	db *pgxpool.Pool
}

func NewConnectionStore(db *pgxpool.Pool) *ConnectionStore {
	return &ConnectionStore{db: db}
}

// CreateConnection inserts a directed edge. A concurrent insert of the
// same edge is recovered by updating the existing row instead of
// failing the caller.
func (s *ConnectionStore) CreateConnection(ctx context.Context, ownerID, subjectID types.ID) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO connections (owner_id, subject_id, share_location)
		VALUES ($1, $2, TRUE)`,
		string(ownerID), string(subjectID),
	)
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		_, err = s.db.Exec(ctx, `
			UPDATE connections SET share_location = TRUE
			WHERE owner_id = $1 AND subject_id = $2`,
			string(ownerID), string(subjectID),
		)
		if err != nil {
			return fmt.Errorf("recover connection insert: %w", err)
		}
		return nil
	}
	return fmt.Errorf("create connection: %w", err)
}

// EdgesOf returns every edge the owner holds: the subjects this user
// follows, with whatever location the sync job last published.
func (s *ConnectionStore) EdgesOf(ctx context.Context, ownerID types.ID) ([]ConnectionRecord, error) {
	rows, err := s.db.Query(ctx, `
		SELECT owner_id, subject_id, latitude, longitude, address,
		       battery_level, share_location, updated_at
		FROM connections
		WHERE owner_id = $1
		ORDER BY subject_id`, string(ownerID),
	)
	if err != nil {
		return nil, fmt.Errorf("query connection edges: %w", err)
	}
	defer rows.Close()

	var recs []ConnectionRecord
	for rows.Next() {
		var rec ConnectionRecord
		err := rows.Scan(
			&rec.OwnerID, &rec.SubjectID, &rec.Latitude, &rec.Longitude,
			&rec.Address, &rec.BatteryLevel, &rec.ShareLocation, &rec.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// UpdateSubjectLocation rewrites the location fields on every edge
// whose subject is the given user, i.e. what all connected users see
// of this subject.
func (s *ConnectionStore) UpdateSubjectLocation(ctx context.Context, subjectID types.ID, lat, lng float64, address *string, battery *int, at time.Time) error {
	_, err := s.db.Exec(ctx, `
		UPDATE connections SET
			latitude = $1,
			longitude = $2,
			address = $3,
			battery_level = $4,
			share_location = TRUE,
			updated_at = $5
		WHERE subject_id = $6`,
		lat, lng, address, battery, at, string(subjectID),
	)
	if err != nil {
		return fmt.Errorf("update subject location: %w", err)
	}
	return nil
}

// ClearSubjectLocation nulls the location fields on every edge for the
// subject. Called the moment sharing is disabled.
func (s *ConnectionStore) ClearSubjectLocation(ctx context.Context, subjectID types.ID) error {
	_, err := s.db.Exec(ctx, `
		UPDATE connections SET
			latitude = NULL,
			longitude = NULL,
			address = NULL,
			battery_level = NULL,
			share_location = FALSE,
			updated_at = NULL
		WHERE subject_id = $1`,
		string(subjectID),
	)
	if err != nil {
		return fmt.Errorf("clear subject location: %w", err)
	}
	return nil
}

// OwnersOf returns the users who hold a connection to the subject.
// The check-in fan-out notifies these users.
func (s *ConnectionStore) OwnersOf(ctx context.Context, subjectID types.ID) ([]types.ID, error) {
	rows, err := s.db.Query(ctx, `
		SELECT owner_id FROM connections WHERE subject_id = $1`,
		string(subjectID),
	)
	if err != nil {
		return nil, fmt.Errorf("query connection owners: %w", err)
	}
	defer rows.Close()

	var owners []types.ID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		owners = append(owners, types.ID(id))
	}
	return owners, rows.Err()
}
