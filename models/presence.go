package models

import "time"

// KV is one raw Rich Presence pair as delivered by the network client.
type KV struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// RawPresenceSample is the latest network update for one friend of one bridge.
type RawPresenceSample struct {
	SteamID64       string            `json:"steamId64"`
	PersonaState    int               `json:"personaState"`
	AppID           *int              `json:"appId"`
	InGame          bool              `json:"inGame"`
	RichPresence    map[string]string `json:"richPresence"`
	RichPresenceRaw []KV              `json:"richPresenceRaw"`
	LastUpdatedAt   time.Time         `json:"lastUpdatedAt"`
}

// Clone returns a deep copy so callers can read a sample outside the bridge lock.
func (s *RawPresenceSample) Clone() *RawPresenceSample {
	if s == nil {
		return nil
	}
	out := *s
	if s.AppID != nil {
		appID := *s.AppID
		out.AppID = &appID
	}
	if s.RichPresence != nil {
		out.RichPresence = make(map[string]string, len(s.RichPresence))
		for k, v := range s.RichPresence {
			out.RichPresence[k] = v
		}
	}
	if s.RichPresenceRaw != nil {
		out.RichPresenceRaw = append([]KV(nil), s.RichPresenceRaw...)
	}
	return &out
}

type LobbyInfo struct {
	Raw      string `json:"raw"`
	LobbyID  string `json:"lobbyId,omitempty"`
	State    string `json:"state,omitempty"`
	GameMode string `json:"gameMode,omitempty"`
}

// DerivedPresence is computed on every read and never stored.
type DerivedPresence struct {
	InGame        bool       `json:"inGame"`
	InMatch       bool       `json:"inMatch"`
	InDemo        bool       `json:"inDemo"`
	InBotMatch    bool       `json:"inBotMatch"`
	InCustomGame  bool       `json:"inCustomGame"`
	LobbyInfo     *LobbyInfo `json:"lobbyInfo"`
	GameMode      *string    `json:"gameMode"`
	GameModeLabel *string    `json:"gameModeLabel"`
	MatchID       *string    `json:"matchId"`
	HeroToken     *string    `json:"heroToken"`
	HeroName      *string    `json:"heroName"`
	MatchSeconds  *int64     `json:"matchSeconds"`
	MatchTime     *string    `json:"matchTime"`
}

type PresenceResponse struct {
	SteamID64     string    `json:"steamId64"`
	LastUpdatedAt time.Time `json:"lastUpdatedAt"`
	DerivedPresence
}

// FullPresenceResponse merges the raw sample with the derived fields.
// The sample's own in_game flag is exposed as rawInGame.
type FullPresenceResponse struct {
	SteamID64       string            `json:"steamId64"`
	PersonaState    int               `json:"personaState"`
	AppID           *int              `json:"appId"`
	RawInGame       bool              `json:"rawInGame"`
	RichPresence    map[string]string `json:"richPresence"`
	RichPresenceRaw []KV              `json:"richPresenceRaw"`
	LastUpdatedAt   time.Time         `json:"lastUpdatedAt"`
	DerivedPresence
}

type DebugPresenceResponse struct {
	BridgeID string             `json:"bridge_id"`
	Sample   *RawPresenceSample `json:"sample"`
	Pairs    []KV               `json:"pairs"`
	Text     string             `json:"text"`
	Derived  DerivedPresence    `json:"derived"`
}

type KeyCount struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

type DebugKeysResponse struct {
	Bridges int        `json:"bridges"`
	Samples int        `json:"samples"`
	Keys    []KeyCount `json:"keys"`
}
