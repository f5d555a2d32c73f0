package models

import "time"

type BridgeState string

const (
	BridgeDisconnected BridgeState = "disconnected"
	BridgeConnecting   BridgeState = "connecting"
	BridgeOnline       BridgeState = "online"
	BridgeError        BridgeState = "error"
)

type BridgeStatus struct {
	BridgeID       string      `json:"bridge_id"`
	UserID         string      `json:"user_id"`
	Status         BridgeState `json:"status"`
	LoggedOn       bool        `json:"logged_on"`
	LastError      string      `json:"last_error,omitempty"`
	LastSeenAt     *time.Time  `json:"last_seen_at"`
	ConnectedAt    time.Time   `json:"connected_at"`
	IsDefault      bool        `json:"is_default"`
	Friends        int         `json:"friends"`
	TrackedMatches int         `json:"tracked_matches"`
}

type ConnectRequest struct {
	UserID       string `json:"user_id"`
	Login        string `json:"login"`
	Password     string `json:"password"`
	SharedSecret string `json:"shared_secret,omitempty"`
	IsDefault    bool   `json:"is_default,omitempty"`
}

type DisconnectRequest struct {
	UserID string `json:"user_id,omitempty"`
}

type ConnectResponse struct {
	OK        bool        `json:"ok"`
	BridgeID  string      `json:"bridge_id"`
	UserID    string      `json:"user_id"`
	Status    BridgeState `json:"status"`
	LastError string      `json:"last_error,omitempty"`
}

type DisconnectResponse struct {
	OK       bool   `json:"ok"`
	BridgeID string `json:"bridge_id"`
}

type UserBridgesResponse struct {
	UserID          string         `json:"user_id"`
	DefaultBridgeID string         `json:"default_bridge_id,omitempty"`
	Count           int            `json:"count"`
	Bridges         []BridgeStatus `json:"bridges"`
}

type HealthResponse struct {
	Status    string    `json:"status"`
	LoggedOn  bool      `json:"loggedOn"`
	Bridges   int       `json:"bridges"`
	Timestamp time.Time `json:"timestamp"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
