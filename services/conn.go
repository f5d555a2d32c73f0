package services

import "chorus/presence-bridge/models"

// Credentials for one operator login. TwoFactorCode is already generated.
type Credentials struct {
	Login         string
	Password      string
	TwoFactorCode string
}

// FriendUpdate is one per-friend persona/Rich Presence update from the network.
type FriendUpdate struct {
	SteamID64    string
	PersonaState int
	AppID        int // 0 when not playing
	InGame       bool
	RichPresence []models.KV
}

// ConnEvents receives asynchronous results from a Conn.
type ConnEvents interface {
	LoggedOn()
	Failed(err error)
	FriendPresence(update FriendUpdate)
}

// Conn is an authenticated network session owned by one bridge.
type Conn interface {
	// PollFriends asks the network for fresh presence of every known friend.
	PollFriends() error
	// Close logs off and returns once no further events will be delivered.
	Close()
}

// Dialer starts a login. It returns before the login completes; the outcome
// arrives through events.
type Dialer func(creds Credentials, events ConnEvents) (Conn, error)
