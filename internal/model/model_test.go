package model

import (
	"encoding/json"
	"regexp"
	"testing"
)

// crockfordBase32 matches valid ULID strings (26 chars, Crockford Base32 alphabet).
var crockfordBase32 = regexp.MustCompile(`^[0123456789ABCDEFGHJKMNPQRSTVWXYZ]{26}$`)

func TestNewIDFormat(t *testing.T) {
	id := NewID()
	if !crockfordBase32.MatchString(id) {
		t.Errorf("NewID() = %q, does not match Crockford Base32 ULID format", id)
	}
}

func TestNewIDUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewID()
		if seen[id] {
			t.Fatalf("NewID() produced duplicate: %s", id)
		}
		seen[id] = true
	}
}

func TestEventConstants(t *testing.T) {
	events := []struct {
		constant string
		expected string
	}{
		{EventPending, "pending"},
		{EventFinal, "final"},
		{EventError, "error"},
	}
	for _, e := range events {
		if e.constant != e.expected {
			t.Errorf("event constant = %q, want %q", e.constant, e.expected)
		}
	}
}

func TestJobEventTerminal(t *testing.T) {
	tests := []struct {
		typ  string
		want bool
	}{
		{EventPending, false},
		{EventFinal, true},
		{EventError, true},
	}
	for _, tt := range tests {
		if got := (JobEvent{Type: tt.typ}).Terminal(); got != tt.want {
			t.Errorf("JobEvent{Type: %q}.Terminal() = %v, want %v", tt.typ, got, tt.want)
		}
	}
}

func TestQuotaUpdateJSON(t *testing.T) {
	b, err := json.Marshal(QuotaUpdate{
		MaxDurationSeconds:    60,
		WeeklyLimit:           10,
		RemainingTries:        4,
		CooldownUntilUnixTime: 1700000000,
	})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"max_duration_seconds":60,"weekly_limit":10,"remaining_tries":4,"cooldown_until_unix_time":1700000000}`
	if string(b) != want {
		t.Errorf("json = %s, want %s", b, want)
	}
}
