package services

import "time"

const (
	DefaultMatchGrace      = 5 * time.Minute
	DefaultResyncTolerance = 5 * time.Second
)

// MatchStart is one player's running match clock.
type MatchStart struct {
	StartedAt  time.Time
	MatchID    string
	HeroKey    string
	LastSeenAt time.Time
	GraceUntil time.Time // zero while the player is in a match
}

// MatchTracker turns noisy per-tick "in match" readings into a continuous
// match clock per player. It is not safe for concurrent use; a Bridge guards
// its tracker with the bridge mutex.
type MatchTracker struct {
	entries   map[string]*MatchStart
	grace     time.Duration
	tolerance time.Duration
}

func NewMatchTracker(grace, tolerance time.Duration) *MatchTracker {
	if grace <= 0 {
		grace = DefaultMatchGrace
	}
	if tolerance <= 0 {
		tolerance = DefaultResyncTolerance
	}
	return &MatchTracker{
		entries:   make(map[string]*MatchStart),
		grace:     grace,
		tolerance: tolerance,
	}
}

// Observe advances the clock for steamID by one tick. It returns a copy of
// the entry (tracked is false when none exists after the tick) and whether
// this tick started a new match.
func (t *MatchTracker) Observe(steamID string, inMatch bool, matchID, heroKey string, now time.Time) (entry MatchStart, tracked bool, reset bool) {
	current, ok := t.entries[steamID]

	switch {
	case !ok && !inMatch:
		return MatchStart{}, false, false

	case !ok:
		current = &MatchStart{
			StartedAt:  now,
			MatchID:    matchID,
			HeroKey:    heroKey,
			LastSeenAt: now,
		}
		t.entries[steamID] = current
		return *current, true, true

	case inMatch:
		heroChanged := heroKey != "" && current.HeroKey != "" && heroKey != current.HeroKey
		matchChanged := matchID != "" && current.MatchID != "" && matchID != current.MatchID
		if heroChanged || matchChanged {
			current.StartedAt = now
			current.MatchID = matchID
			current.HeroKey = heroKey
			reset = true
		} else {
			if current.MatchID == "" {
				current.MatchID = matchID
			}
			if current.HeroKey == "" {
				current.HeroKey = heroKey
			}
		}
		current.LastSeenAt = now
		current.GraceUntil = time.Time{}
		return *current, true, reset

	default:
		if current.GraceUntil.IsZero() {
			current.GraceUntil = now.Add(t.grace)
		}
		if !now.Before(current.GraceUntil) {
			delete(t.entries, steamID)
			return MatchStart{}, false, false
		}
		return *current, true, false
	}
}

// Resync re-anchors the clock to telemetry when the two disagree by more
// than the tolerance. It reports whether StartedAt moved.
func (t *MatchTracker) Resync(steamID string, reportedSeconds int64, now time.Time) bool {
	current, ok := t.entries[steamID]
	if !ok {
		return false
	}
	own := now.Sub(current.StartedAt)
	reported := time.Duration(reportedSeconds) * time.Second
	diff := own - reported
	if diff < 0 {
		diff = -diff
	}
	if diff <= t.tolerance {
		return false
	}
	current.StartedAt = now.Add(-reported)
	return true
}

func (t *MatchTracker) Get(steamID string) (MatchStart, bool) {
	current, ok := t.entries[steamID]
	if !ok {
		return MatchStart{}, false
	}
	return *current, true
}

// Sweep drops entries whose grace window has elapsed and returns how many went.
func (t *MatchTracker) Sweep(now time.Time) int {
	removed := 0
	for id, entry := range t.entries {
		if !entry.GraceUntil.IsZero() && !now.Before(entry.GraceUntil) {
			delete(t.entries, id)
			removed++
		}
	}
	return removed
}

func (t *MatchTracker) Len() int {
	return len(t.entries)
}
