// README: Emergency contact lookup backed by Postgres.
package sos

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"haven/internal/types"
)

type ContactStore struct {
	db *pgxpool.Pool
}

func NewContactStore(db *pgxpool.Pool) *ContactStore {
	return &ContactStore{db: db}
}

func (s *ContactStore) EmergencyContacts(ctx context.Context, userID types.ID) ([]types.ID, error) {
	rows, err := s.db.Query(ctx, `
		SELECT contact_user_id FROM emergency_contacts WHERE user_id = $1`,
		string(userID),
	)
	if err != nil {
		return nil, fmt.Errorf("query emergency contacts: %w", err)
	}
	defer rows.Close()

	var contacts []types.ID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		contacts = append(contacts, types.ID(id))
	}
	return contacts, rows.Err()
}

// AddContact registers an emergency contact for a user. Adding the
// same contact twice is a no-op.
func (s *ContactStore) AddContact(ctx context.Context, userID, contactID types.ID) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO emergency_contacts (user_id, contact_user_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id, contact_user_id) DO NOTHING`,
		string(userID), string(contactID),
	)
	if err != nil {
		return fmt.Errorf("add emergency contact: %w", err)
	}
	return nil
}
