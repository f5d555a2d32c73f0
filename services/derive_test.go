package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chorus/presence-bridge/models"
)

func rankedSample(extra map[string]string) *models.RawPresenceSample {
	rp := map[string]string{
		"status":  "Playing Ranked",
		"lobby":   "lobby_state: RUN",
		"param0":  "#dota_hero_name",
		"param2":  "npc_dota_hero_antimage",
		"matchid": "123",
	}
	for k, v := range extra {
		rp[k] = v
	}
	return &models.RawPresenceSample{
		SteamID64:    player,
		PersonaState: 1,
		RichPresence: rp,
	}
}

func TestDerivePresenceScenario(t *testing.T) {
	cache := NewMatchTracker(0, 0)

	first := DerivePresence(rankedSample(nil), cache, t0)
	assert.True(t, first.InMatch)
	assert.True(t, first.InGame)
	require.NotNil(t, first.HeroName)
	assert.Equal(t, "Antimage", *first.HeroName)
	require.NotNil(t, first.MatchSeconds)
	assert.Equal(t, int64(0), *first.MatchSeconds)
	assert.Equal(t, "0:00", *first.MatchTime)
	require.NotNil(t, first.MatchID)
	assert.Equal(t, "123", *first.MatchID)
	require.NotNil(t, first.LobbyInfo)
	assert.Equal(t, "RUN", first.LobbyInfo.State)

	second := DerivePresence(rankedSample(nil), cache, t0.Add(30*time.Second))
	assert.True(t, second.InMatch)
	require.NotNil(t, second.MatchSeconds)
	assert.Equal(t, int64(30), *second.MatchSeconds)
	assert.Equal(t, "0:30", *second.MatchTime)

	third := DerivePresence(rankedSample(map[string]string{"param0": "#DOTA_RP_demo_hero_mode_name"}), cache, t0.Add(60*time.Second))
	assert.False(t, third.InMatch)
	assert.True(t, third.InDemo)
	assert.True(t, third.InGame)
}

func TestDerivePresenceMonotonic(t *testing.T) {
	cache := NewMatchTracker(0, 0)
	var last int64 = -1
	for i := 0; i < 10; i++ {
		got := DerivePresence(rankedSample(nil), cache, t0.Add(time.Duration(i)*17*time.Second))
		require.NotNil(t, got.MatchSeconds)
		if i > 0 {
			assert.Greater(t, *got.MatchSeconds, last)
		}
		last = *got.MatchSeconds
	}
}

func TestDerivePresenceHeroChangeResets(t *testing.T) {
	cache := NewMatchTracker(0, 0)
	DerivePresence(rankedSample(nil), cache, t0)
	DerivePresence(rankedSample(nil), cache, t0.Add(time.Minute))

	now := t0.Add(2 * time.Minute)
	got := DerivePresence(rankedSample(map[string]string{"param2": "npc_dota_hero_axe"}), cache, now)
	require.NotNil(t, got.MatchSeconds)
	assert.Equal(t, int64(0), *got.MatchSeconds)
	entry, ok := cache.Get(player)
	require.True(t, ok)
	assert.Equal(t, now, entry.StartedAt)
}

func TestDerivePresenceTelemetryResync(t *testing.T) {
	cache := NewMatchTracker(0, 5*time.Second)
	DerivePresence(rankedSample(nil), cache, t0)

	now := t0.Add(100 * time.Second)
	got := DerivePresence(rankedSample(map[string]string{"match_time": "40"}), cache, now)
	require.NotNil(t, got.MatchSeconds)
	assert.Equal(t, int64(40), *got.MatchSeconds)
	entry, _ := cache.Get(player)
	assert.Equal(t, now.Add(-40*time.Second), entry.StartedAt)

	// tracker clock carries on from the corrected anchor
	later := DerivePresence(rankedSample(nil), cache, now.Add(10*time.Second))
	assert.Equal(t, int64(50), *later.MatchSeconds)
}

func TestDerivePresenceNoResyncOnResetTick(t *testing.T) {
	cache := NewMatchTracker(0, 5*time.Second)
	got := DerivePresence(rankedSample(map[string]string{"match_time": "600"}), cache, t0)
	assert.Equal(t, int64(0), *got.MatchSeconds)
	entry, _ := cache.Get(player)
	assert.Equal(t, t0, entry.StartedAt)
}

func TestDerivePresenceCustomGame(t *testing.T) {
	cache := NewMatchTracker(0, 0)
	got := DerivePresence(&models.RawPresenceSample{
		SteamID64:    player,
		RichPresence: map[string]string{"lobby": "lobby_state: RUN game_mode: DOTA_GAMEMODE_CUSTOM"},
	}, cache, t0)
	assert.False(t, got.InMatch)
	assert.True(t, got.InCustomGame)
	assert.True(t, got.InGame)
	assert.Nil(t, got.MatchSeconds)
	require.NotNil(t, got.GameModeLabel)
	assert.Equal(t, "Custom Game", *got.GameModeLabel)
	assert.Equal(t, 0, cache.Len())
}

func TestDerivePresenceEmptySample(t *testing.T) {
	got := DerivePresence(&models.RawPresenceSample{SteamID64: player}, NewMatchTracker(0, 0), t0)
	assert.Equal(t, models.DerivedPresence{}, got)

	appID := 570
	got = DerivePresence(&models.RawPresenceSample{SteamID64: player, AppID: &appID}, nil, t0)
	assert.True(t, got.InGame)
	assert.False(t, got.InMatch)

	assert.Equal(t, models.DerivedPresence{}, DerivePresence(nil, nil, t0))
}
