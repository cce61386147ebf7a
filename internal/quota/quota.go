// Package quota holds the speech recognition trial state: how many
// recognitions a user may start per week, how long each may be, how many are
// left, and when an exhausted quota replenishes.
//
// The limits themselves come from an external authority; this package only
// clamps, merges and persists what it is given.
package quota

import (
	"fmt"
	"math"

	"github.com/seantiz/scribe/internal/flagcodec"
	"github.com/seantiz/scribe/internal/model"
)

// codecVersion is the leading byte of a persisted State.
const codecVersion byte = 1

// numFields is the number of persisted fields, in State declaration order.
const numFields = 4

// State is the trial quota. The zero value is the default state.
type State struct {
	WeeklyLimit   int32 // recognitions grantable per rolling week
	MaxDuration   int32 // advisory per-job limit in seconds
	Remaining     int32 // tries left in the current window
	CooldownUntil int64 // unix time the quota resets; 0 means no cooldown
}

// Normalize applies replenishment as of now. When the cooldown has passed the
// quota is refilled; otherwise Remaining is clamped to WeeklyLimit.
// Normalize is idempotent.
func (s *State) Normalize(now int64) {
	if s.CooldownUntil <= now {
		s.CooldownUntil = 0
		s.Remaining = s.WeeklyLimit
	} else if s.Remaining > s.WeeklyLimit {
		s.Remaining = s.WeeklyLimit
	}
}

// ApplyExternalUpdate merges limits received from the quota authority.
// Negative inputs are clamped to zero and the current Remaining is carried
// over. It reports whether the state changed; an unchanged state is left
// exactly as it was.
func (s *State) ApplyExternalUpdate(weeklyLimit, maxDuration int32, cooldownUntil, now int64) bool {
	next := State{
		WeeklyLimit:   max(0, weeklyLimit),
		MaxDuration:   max(0, maxDuration),
		Remaining:     s.Remaining,
		CooldownUntil: max(0, cooldownUntil),
	}
	next.Normalize(now)
	if next == *s {
		return false
	}
	*s = next
	return true
}

// Snapshot returns the notification form of s.
func (s State) Snapshot() model.QuotaUpdate {
	return model.QuotaUpdate{
		MaxDurationSeconds:    s.MaxDuration,
		WeeklyLimit:           s.WeeklyLimit,
		RemainingTries:        s.Remaining,
		CooldownUntilUnixTime: s.CooldownUntil,
	}
}

// MarshalBinary encodes s with only its non-zero fields present.
func (s State) MarshalBinary() ([]byte, error) {
	if s.WeeklyLimit < 0 || s.MaxDuration < 0 || s.Remaining < 0 || s.CooldownUntil < 0 {
		return nil, fmt.Errorf("encode quota state: negative field in %+v", s)
	}
	return flagcodec.Encode(codecVersion, []uint64{
		uint64(s.WeeklyLimit),
		uint64(s.MaxDuration),
		uint64(s.Remaining),
		uint64(s.CooldownUntil),
	}), nil
}

// UnmarshalBinary decodes data produced by MarshalBinary. On error s is left
// unchanged.
func (s *State) UnmarshalBinary(data []byte) error {
	f, err := flagcodec.Decode(data, codecVersion, numFields)
	if err != nil {
		return fmt.Errorf("decode quota state: %w", err)
	}
	for i := range 3 {
		if f[i] > math.MaxInt32 {
			return fmt.Errorf("decode quota state: field %d out of range: %w", i, flagcodec.ErrCorrupt)
		}
	}
	if f[3] > math.MaxInt64 {
		return fmt.Errorf("decode quota state: cooldown out of range: %w", flagcodec.ErrCorrupt)
	}

	*s = State{
		WeeklyLimit:   int32(f[0]),
		MaxDuration:   int32(f[1]),
		Remaining:     int32(f[2]),
		CooldownUntil: int64(f[3]),
	}
	return nil
}
