// README: Device token lookup backed by Postgres.
package notify

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"haven/internal/types"
)

type TokenStore struct {
	db *pgxpool.Pool
}

func NewTokenStore(db *pgxpool.Pool) *TokenStore {
	return &TokenStore{db: db}
}

// Tokens returns every registered device token for the given users.
// Users without tokens simply contribute nothing.
func (s *TokenStore) Tokens(ctx context.Context, userIDs []types.ID) ([]string, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}

	ids := make([]string, len(userIDs))
	for i, id := range userIDs {
		ids[i] = string(id)
	}

	rows, err := s.db.Query(ctx, `
		SELECT token FROM device_tokens WHERE user_id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("query device tokens: %w", err)
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
	}
	return tokens, rows.Err()
}

// Register stores or refreshes a device token for a user.
func (s *TokenStore) Register(ctx context.Context, userID types.ID, token string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO device_tokens (user_id, token, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (token) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			updated_at = NOW()`,
		string(userID), token,
	)
	if err != nil {
		return fmt.Errorf("register device token: %w", err)
	}
	return nil
}
