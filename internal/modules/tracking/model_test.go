package tracking

import (
	"testing"
	"time"
)

func TestPresenceOnlineDerived(t *testing.T) {
	now := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	fresh := now.Add(-2 * time.Minute)
	stale := now.Add(-6 * time.Minute)
	edge := now.Add(-onlineWindow)

	cases := []struct {
		name      string
		share     bool
		updatedAt *time.Time
		want      bool
	}{
		{"sharing off, fresh update", false, &fresh, false},
		{"sharing on, fresh update", true, &fresh, true},
		{"sharing on, stale update", true, &stale, false},
		{"sharing on, exactly at window", true, &edge, true},
		{"sharing on, never updated", true, nil, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := PresenceRecord{
				ShareLocation: tc.share,
				UpdatedAt:     tc.updatedAt,
				// Stored flag deliberately contradicts the derivation:
				// it must never be consulted.
				IsOnline: !tc.want,
			}
			if got := rec.Online(now); got != tc.want {
				t.Fatalf("Online() = %v, want %v", got, tc.want)
			}
		})
	}
}
