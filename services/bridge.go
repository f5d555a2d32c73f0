package services

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"chorus/presence-bridge/models"
	"chorus/presence-bridge/richpresence"
	"chorus/presence-bridge/utils"
)

// Bridge is one operator's Steam session together with the presence it has
// collected for that operator's friends.
type Bridge struct {
	ID        string
	UserID    string
	CreatedAt time.Time

	logger   *utils.Logger
	now      func() time.Time
	onChange func(*Bridge)

	mu         sync.Mutex
	state      models.BridgeState
	lastError  string
	lastSeenAt time.Time
	presences  map[string]*models.RawPresenceSample
	matches    *MatchTracker
	conn       Conn
	poll       *PeriodicTask
	closed     bool
}

type bridgeOptions struct {
	logger          *utils.Logger
	now             func() time.Time
	matchGrace      time.Duration
	resyncTolerance time.Duration
	onChange        func(*Bridge)
}

func newBridge(id, userID string, opts bridgeOptions) *Bridge {
	return &Bridge{
		ID:        id,
		UserID:    userID,
		CreatedAt: opts.now(),
		logger:    opts.logger.With("bridge_id", id, "user_id", userID),
		now:       opts.now,
		onChange:  opts.onChange,
		state:     models.BridgeConnecting,
		presences: make(map[string]*models.RawPresenceSample),
		matches:   NewMatchTracker(opts.matchGrace, opts.resyncTolerance),
	}
}

// LoggedOn implements ConnEvents.
func (b *Bridge) LoggedOn() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.state = models.BridgeOnline
	b.lastError = ""
	b.lastSeenAt = b.now()
	b.mu.Unlock()

	b.logger.Info("Bridge logged on")
	b.changed()
}

// Failed implements ConnEvents. The session stays registered in error state
// until an explicit reconnect.
func (b *Bridge) Failed(err error) {
	if err == nil {
		return
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.state = models.BridgeError
	b.lastError = err.Error()
	b.mu.Unlock()

	b.logger.Warn("Bridge error", "error", err)
	b.changed()
}

// FriendPresence implements ConnEvents. An update with no Rich Presence keeps
// the previously stored pairs so a bare persona change does not blank them.
func (b *Bridge) FriendPresence(update FriendUpdate) {
	id := strings.TrimSpace(update.SteamID64)
	if id == "" {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	now := b.now()
	sample := &models.RawPresenceSample{
		SteamID64:     id,
		PersonaState:  update.PersonaState,
		InGame:        update.InGame,
		LastUpdatedAt: now,
	}
	if update.AppID != 0 {
		appID := update.AppID
		sample.AppID = &appID
	}

	previous := b.presences[id]
	if len(update.RichPresence) == 0 && previous != nil {
		sample.RichPresenceRaw = previous.RichPresenceRaw
		sample.RichPresence = previous.RichPresence
	} else {
		sample.RichPresenceRaw = append([]models.KV(nil), update.RichPresence...)
		sample.RichPresence = richpresence.ObjectFromPairs(update.RichPresence)
	}

	b.presences[id] = sample
	b.lastSeenAt = now
}

// Presence derives the current presence of steamID. ok is false when no
// sample has arrived for that id yet.
func (b *Bridge) Presence(steamID string) (sample *models.RawPresenceSample, derived models.DerivedPresence, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	current, found := b.presences[steamID]
	if !found {
		return nil, models.DerivedPresence{}, false
	}
	derived = DerivePresence(current, b.matches, b.now())
	return current.Clone(), derived, true
}

// KeyCounts adds how often each Rich Presence key appears to counts and
// returns the number of samples inspected.
func (b *Bridge) KeyCounts(counts map[string]int) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sample := range b.presences {
		seen := make(map[string]bool)
		for _, kv := range richpresence.FromSample(sample).Pairs() {
			key := strings.ToLower(kv.Key)
			if seen[key] {
				continue
			}
			seen[key] = true
			counts[key]++
		}
	}
	return len(b.presences)
}

// FriendIDs lists the friends with a stored sample, sorted.
func (b *Bridge) FriendIDs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	ids := make([]string, 0, len(b.presences))
	for id := range b.presences {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (b *Bridge) Online() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == models.BridgeOnline
}

func (b *Bridge) status() models.BridgeStatus {
	b.mu.Lock()
	defer b.mu.Unlock()

	st := models.BridgeStatus{
		BridgeID:       b.ID,
		UserID:         b.UserID,
		Status:         b.state,
		LoggedOn:       b.state == models.BridgeOnline,
		ConnectedAt:    b.CreatedAt,
		Friends:        len(b.presences),
		TrackedMatches: b.matches.Len(),
	}
	if b.state != models.BridgeOnline {
		st.LastError = b.lastError
	}
	if !b.lastSeenAt.IsZero() {
		seen := b.lastSeenAt
		st.LastSeenAt = &seen
	}
	return st
}

// attach hands the bridge its connection and poll task. If the bridge was
// torn down while dialing, both are released immediately.
func (b *Bridge) attach(conn Conn, pollInterval time.Duration) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	b.conn = conn
	b.poll = StartPeriodic(pollInterval, b.pollTick)
	b.mu.Unlock()
}

func (b *Bridge) pollTick(_ context.Context) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	if n := b.matches.Sweep(b.now()); n > 0 {
		b.logger.Debug("Evicted finished matches", "count", n)
	}
	conn := b.conn
	online := b.state == models.BridgeOnline
	b.mu.Unlock()

	if !online || conn == nil {
		return
	}
	if err := conn.PollFriends(); err != nil {
		b.logger.Warn("Friend presence poll failed", "error", err)
	}
}

// close stops polling and logs off. When it returns no callback can mutate
// the bridge any more.
func (b *Bridge) close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.state = models.BridgeDisconnected
	poll := b.poll
	conn := b.conn
	b.poll = nil
	b.conn = nil
	b.mu.Unlock()

	poll.Stop()
	if conn != nil {
		conn.Close()
	}
	b.logger.Info("Bridge disconnected")
}

func (b *Bridge) changed() {
	if b.onChange != nil {
		b.onChange(b)
	}
}
