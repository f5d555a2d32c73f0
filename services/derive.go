package services

import (
	"strings"
	"time"

	"chorus/presence-bridge/models"
	"chorus/presence-bridge/richpresence"
)

// DerivePresence computes the public presence for one sample and advances
// that player's match clock in cache. It never fails; missing telemetry
// degrades to false/nil fields.
func DerivePresence(sample *models.RawPresenceSample, cache *MatchTracker, now time.Time) models.DerivedPresence {
	if sample == nil {
		return models.DerivedPresence{}
	}
	fields := richpresence.FromSample(sample)
	c := richpresence.Classify(fields)

	out := models.DerivedPresence{
		InMatch:      c.InMatch,
		InDemo:       c.InDemo,
		InBotMatch:   c.InBotMatch,
		InCustomGame: c.InCustomGame,
		LobbyInfo:    richpresence.ParseLobby(c.Lobby),
	}
	out.InGame = sample.InGame ||
		sample.AppID != nil ||
		c.Lobby != "" ||
		c.StatusKeywordHit ||
		c.InDemo ||
		c.InBotMatch ||
		c.InCustomGame

	if c.GameMode != "" {
		out.GameMode = stringPtr(c.GameMode)
		out.GameModeLabel = stringPtr(richpresence.GameModeLabel(c.GameMode))
	}

	matchID, _ := richpresence.MatchID(fields)
	if matchID != "" {
		out.MatchID = stringPtr(matchID)
	}
	heroToken, _ := richpresence.HeroToken(fields)
	if heroToken != "" {
		out.HeroToken = stringPtr(heroToken)
		if name := richpresence.HeroName(heroToken); name != "" {
			out.HeroName = stringPtr(name)
		}
	}

	if cache == nil {
		cache = NewMatchTracker(0, 0)
	}
	entry, tracked, reset := cache.Observe(sample.SteamID64, c.InMatch, matchID, strings.ToLower(heroToken), now)

	reported, hasReported := richpresence.ReportedElapsed(fields, now)
	if hasReported && tracked && c.InMatch && !reset {
		cache.Resync(sample.SteamID64, reported, now)
	}

	var seconds *int64
	switch {
	case reset:
		seconds = int64Ptr(0)
	case hasReported:
		seconds = int64Ptr(reported)
	case c.InMatch && tracked:
		elapsed := int64(now.Sub(entry.StartedAt) / time.Second)
		if elapsed < 0 {
			elapsed = 0
		}
		seconds = int64Ptr(elapsed)
	}
	if seconds != nil {
		out.MatchSeconds = seconds
		out.MatchTime = stringPtr(richpresence.FormatDuration(*seconds))
	}
	return out
}

func stringPtr(s string) *string { return &s }

func int64Ptr(n int64) *int64 { return &n }
