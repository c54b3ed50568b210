package sos

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"haven/internal/types"
)

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

func TestEmergencyContactsIntegration(t *testing.T) {
	pool := testPool(t)
	store := NewContactStore(pool)
	ctx := context.Background()

	userID := types.ID("it-sos-user")
	contactID := types.ID("it-sos-contact")
	if _, err := pool.Exec(ctx, `DELETE FROM emergency_contacts WHERE user_id = $1`, string(userID)); err != nil {
		t.Fatalf("cleanup: %v", err)
	}

	contacts, err := store.EmergencyContacts(ctx, userID)
	if err != nil {
		t.Fatalf("empty lookup: %v", err)
	}
	if len(contacts) != 0 {
		t.Fatalf("expected no contacts, got %v", contacts)
	}

	if err := store.AddContact(ctx, userID, contactID); err != nil {
		t.Fatalf("add: %v", err)
	}
	// Re-adding the same contact is a no-op, not an error.
	if err := store.AddContact(ctx, userID, contactID); err != nil {
		t.Fatalf("duplicate add: %v", err)
	}

	contacts, err = store.EmergencyContacts(ctx, userID)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if len(contacts) != 1 || contacts[0] != contactID {
		t.Fatalf("unexpected contacts: %v", contacts)
	}
}
