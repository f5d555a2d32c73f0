package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"chorus/presence-bridge/models"
	"chorus/presence-bridge/utils"
)

var (
	ErrBridgeNotFound = errors.New("bridge not found")
	ErrMissingFields  = errors.New("missing fields")
)

const DefaultPollInterval = 30 * time.Second

type ManagerOptions struct {
	Dialer          Dialer
	Mirror          *StatusMirror
	PollInterval    time.Duration
	MatchGrace      time.Duration
	ResyncTolerance time.Duration
	Now             func() time.Time
}

// Manager owns every bridge session and the user indexes over them.
type Manager struct {
	logger *utils.Logger
	opts   ManagerOptions

	mu       sync.RWMutex
	sessions map[string]*Bridge
	defaults map[string]string // userID -> bridgeID
}

func NewManager(logger *utils.Logger, opts ManagerOptions) *Manager {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		logger:   logger.With("component", "bridge_manager"),
		opts:     opts,
		sessions: make(map[string]*Bridge),
		defaults: make(map[string]string),
	}
}

// Connect replaces any existing session for bridgeID with a new login
// attempt. It returns as soon as the attempt is underway; the login outcome
// shows up later through Status.
func (m *Manager) Connect(bridgeID string, req models.ConnectRequest) (models.BridgeStatus, error) {
	bridgeID = strings.TrimSpace(bridgeID)
	userID := strings.TrimSpace(req.UserID)
	login := strings.TrimSpace(req.Login)
	if bridgeID == "" || userID == "" || login == "" || req.Password == "" {
		return models.BridgeStatus{}, ErrMissingFields
	}

	creds := Credentials{Login: login, Password: req.Password}
	if strings.TrimSpace(req.SharedSecret) != "" {
		code, err := GenerateAuthCode(req.SharedSecret, m.opts.Now())
		if err != nil {
			return models.BridgeStatus{}, err
		}
		creds.TwoFactorCode = code
	}

	bridge := newBridge(bridgeID, userID, bridgeOptions{
		logger:          m.logger,
		now:             m.opts.Now,
		matchGrace:      m.opts.MatchGrace,
		resyncTolerance: m.opts.ResyncTolerance,
		onChange:        m.publish,
	})

	m.mu.Lock()
	previous := m.sessions[bridgeID]
	m.sessions[bridgeID] = bridge
	if previous != nil && previous.UserID != userID && m.defaults[previous.UserID] == bridgeID {
		delete(m.defaults, previous.UserID)
	}
	if req.IsDefault {
		m.defaults[userID] = bridgeID
	}
	m.mu.Unlock()

	if previous != nil {
		m.logger.Info("Replacing existing bridge session", "bridge_id", bridgeID)
		previous.close()
	}

	m.logger.Info("Connecting bridge", "bridge_id", bridgeID, "user_id", userID, "two_factor", creds.TwoFactorCode != "")
	conn, err := m.opts.Dialer(creds, bridge)
	if err != nil {
		bridge.Failed(fmt.Errorf("failed to start steam session: %w", err))
	} else {
		bridge.attach(conn, m.opts.PollInterval)
	}

	m.publish(bridge)
	return m.snapshot(bridge), nil
}

// Disconnect tears the session down and clears the default-bridge mapping
// that pointed at it. It reports whether a session existed.
func (m *Manager) Disconnect(bridgeID, userID string) bool {
	m.mu.Lock()
	bridge := m.sessions[bridgeID]
	delete(m.sessions, bridgeID)
	for _, owner := range []string{userID, ownerOf(bridge)} {
		if owner != "" && m.defaults[owner] == bridgeID {
			delete(m.defaults, owner)
		}
	}
	m.mu.Unlock()

	if bridge == nil {
		return false
	}
	bridge.close()
	if err := m.opts.Mirror.Remove(context.Background(), bridgeID); err != nil {
		m.logger.Warn("Failed to remove bridge status", "bridge_id", bridgeID, "error", err)
	}
	return true
}

func (m *Manager) Status(bridgeID string) (models.BridgeStatus, error) {
	m.mu.RLock()
	bridge := m.sessions[bridgeID]
	m.mu.RUnlock()
	if bridge == nil {
		return models.BridgeStatus{}, ErrBridgeNotFound
	}
	return m.snapshot(bridge), nil
}

// ListByUser returns every session owned by userID, oldest first.
func (m *Manager) ListByUser(userID string) []models.BridgeStatus {
	bridges := m.ownedBy(userID)
	out := make([]models.BridgeStatus, 0, len(bridges))
	for _, b := range bridges {
		out = append(out, m.snapshot(b))
	}
	return out
}

func (m *Manager) DefaultBridge(userID string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.defaults[userID]
}

// Resolve finds the session a caller means: an exact bridge id first, then
// the user's default bridge, then the user's oldest session. With no selector
// at all the oldest session overall is used.
func (m *Manager) Resolve(userID, bridgeID string) *Bridge {
	m.mu.RLock()
	if b, ok := m.sessions[bridgeID]; ok && bridgeID != "" {
		m.mu.RUnlock()
		return b
	}
	if userID == "" {
		m.mu.RUnlock()
		if bridgeID != "" {
			return nil
		}
		// Single-operator deployments query without any selector.
		if all := m.Bridges(); len(all) > 0 {
			return all[0]
		}
		return nil
	}
	if id, ok := m.defaults[userID]; ok {
		if b, ok := m.sessions[id]; ok {
			m.mu.RUnlock()
			return b
		}
	}
	m.mu.RUnlock()

	owned := m.ownedBy(userID)
	if len(owned) == 0 {
		return nil
	}
	return owned[0]
}

// Bridges returns all sessions, oldest first.
func (m *Manager) Bridges() []*Bridge {
	m.mu.RLock()
	out := make([]*Bridge, 0, len(m.sessions))
	for _, b := range m.sessions {
		out = append(out, b)
	}
	m.mu.RUnlock()
	sortBridges(out)
	return out
}

func (m *Manager) AnyOnline() bool {
	for _, b := range m.Bridges() {
		if b.Online() {
			return true
		}
	}
	return false
}

func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Shutdown disconnects every session.
func (m *Manager) Shutdown() {
	for _, b := range m.Bridges() {
		m.Disconnect(b.ID, "")
	}
}

func (m *Manager) ownedBy(userID string) []*Bridge {
	m.mu.RLock()
	var out []*Bridge
	for _, b := range m.sessions {
		if b.UserID == userID {
			out = append(out, b)
		}
	}
	m.mu.RUnlock()
	sortBridges(out)
	return out
}

func (m *Manager) snapshot(b *Bridge) models.BridgeStatus {
	st := b.status()
	st.IsDefault = m.DefaultBridge(b.UserID) == b.ID
	return st
}

func (m *Manager) publish(b *Bridge) {
	if m.opts.Mirror == nil {
		return
	}
	m.mu.RLock()
	current := m.sessions[b.ID] == b
	m.mu.RUnlock()
	if !current {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.opts.Mirror.Publish(ctx, m.snapshot(b)); err != nil {
		m.logger.Warn("Failed to publish bridge status", "bridge_id", b.ID, "error", err)
	}
}

func sortBridges(bridges []*Bridge) {
	sort.SliceStable(bridges, func(i, j int) bool {
		if bridges[i].CreatedAt.Equal(bridges[j].CreatedAt) {
			return bridges[i].ID < bridges[j].ID
		}
		return bridges[i].CreatedAt.Before(bridges[j].CreatedAt)
	})
}

func ownerOf(b *Bridge) string {
	if b == nil {
		return ""
	}
	return b.UserID
}
