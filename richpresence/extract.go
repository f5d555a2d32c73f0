package richpresence

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"chorus/presence-bridge/models"
)

// MaxMatchDuration bounds any reported elapsed value; anything longer is noise.
const MaxMatchDuration = 12 * time.Hour

const maxMatchSeconds = int64(MaxMatchDuration / time.Second)

const heroPrefix = "npc_dota_hero_"

var (
	gameModePattern  = regexp.MustCompile(`(?i)game_mode:\s*(\S+)`)
	lobbyPairPattern = regexp.MustCompile(`([A-Za-z_]+):\s*(\S+)`)

	heroKeys     = []string{"param2", "hero", "hero_name", "heroname", "npc_dota_hero"}
	elapsedKeys  = []string{"match_time", "matchtime", "game_time", "gametime", "elapsed", "elapsed_seconds", "match_seconds", "duration"}
	startKeys    = []string{"match_start", "matchstart", "start_time", "starttime", "game_start", "match_started_at"}
	gameModeKeys = []string{"game_mode", "gamemode", "mode"}

	titleCaser = cases.Title(language.English)

	gameModeLabels = map[string]string{
		"DOTA_GAMEMODE_NONE":          "None",
		"DOTA_GAMEMODE_AP":            "All Pick",
		"DOTA_GAMEMODE_CM":            "Captains Mode",
		"DOTA_GAMEMODE_RD":            "Random Draft",
		"DOTA_GAMEMODE_SD":            "Single Draft",
		"DOTA_GAMEMODE_AR":            "All Random",
		"DOTA_GAMEMODE_REVERSE_CM":    "Reverse Captains Mode",
		"DOTA_GAMEMODE_MO":            "Mid Only",
		"DOTA_GAMEMODE_LP":            "Least Played",
		"DOTA_GAMEMODE_CD":            "Captains Draft",
		"DOTA_GAMEMODE_ABILITY_DRAFT": "Ability Draft",
		"DOTA_GAMEMODE_ARDM":          "All Random Deathmatch",
		"DOTA_GAMEMODE_1V1MID":        "1v1 Mid",
		"DOTA_GAMEMODE_ALL_DRAFT":     "All Pick",
		"DOTA_GAMEMODE_TURBO":         "Turbo",
		"DOTA_GAMEMODE_MUTATION":      "Mutation",
		"DOTA_GAMEMODE_CUSTOM":        "Custom Game",
		"DOTA_GAMEMODE_TUTORIAL":      "Tutorial",
	}
)

// LobbyString prefers the object form and falls back to the raw list.
func LobbyString(f Fields) string {
	v, _ := f.Get("lobby")
	return strings.TrimSpace(v)
}

// GameMode reads a direct mode field or the game_mode token of the lobby string.
func GameMode(f Fields) (string, bool) {
	if v, ok := f.First(gameModeKeys...); ok {
		return v, true
	}
	if m := gameModePattern.FindStringSubmatch(LobbyString(f)); m != nil {
		return m[1], true
	}
	return "", false
}

// GameModeLabel turns a mode token into something an operator can read.
func GameModeLabel(mode string) string {
	token := strings.ToUpper(strings.TrimPrefix(strings.TrimSpace(mode), "#"))
	if token == "" {
		return ""
	}
	if label, ok := gameModeLabels[token]; ok {
		return label
	}
	if n, err := strconv.Atoi(token); err == nil {
		return fmt.Sprintf("Mode %d", n)
	}
	token = strings.TrimPrefix(token, "DOTA_GAMEMODE_")
	return titleWords(token)
}

func MatchID(f Fields) (string, bool) {
	for _, key := range matchIDKeys {
		if v, ok := f.Get(key); ok && validID(v) {
			return strings.TrimSpace(v), true
		}
	}
	return "", false
}

// HeroToken tries the hero fields in priority order, then scans raw pairs for param2.
func HeroToken(f Fields) (string, bool) {
	for _, key := range heroKeys {
		if v, ok := f.Object(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), true
		}
	}
	if v, ok := f.Raw("param2"); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v), true
	}
	return "", false
}

// HeroName renders "#npc_dota_hero_dark_willow" as "Dark Willow".
func HeroName(token string) string {
	name := strings.ToLower(strings.TrimSpace(token))
	name = strings.TrimPrefix(name, "#")
	name = strings.TrimPrefix(name, heroPrefix)
	return titleWords(name)
}

func titleWords(s string) string {
	words := strings.Fields(strings.ReplaceAll(s, "_", " "))
	if len(words) == 0 {
		return ""
	}
	return titleCaser.String(strings.ToLower(strings.Join(words, " ")))
}

// ParseLobby splits a lobby string like "lobby_id: 1 lobby_state: RUN game_mode: X".
func ParseLobby(lobby string) *models.LobbyInfo {
	lobby = strings.TrimSpace(lobby)
	if lobby == "" {
		return nil
	}
	info := &models.LobbyInfo{Raw: lobby}
	for _, m := range lobbyPairPattern.FindAllStringSubmatch(lobby, -1) {
		switch strings.ToLower(m[1]) {
		case "lobby_id", "lobbyid":
			info.LobbyID = m[2]
		case "lobby_state", "state":
			info.State = strings.ToUpper(m[2])
		case "game_mode":
			info.GameMode = m[2]
		}
	}
	return info
}

// ReportedElapsed returns the match duration the payload itself claims, in
// seconds. Direct durations win over start timestamps; values that are
// negative or longer than MaxMatchDuration are discarded.
func ReportedElapsed(f Fields, now time.Time) (int64, bool) {
	for _, key := range elapsedKeys {
		v, ok := f.Get(key)
		if !ok {
			continue
		}
		if secs, ok := parseElapsed(v, now); ok {
			return secs, true
		}
	}
	for _, key := range startKeys {
		v, ok := f.Get(key)
		if !ok {
			continue
		}
		if secs, ok := parseStart(v, now); ok {
			return secs, true
		}
	}
	return 0, false
}

func parseElapsed(v string, now time.Time) (int64, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	if strings.Contains(v, ":") {
		return parseClock(v)
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	// some clients put the start epoch in a duration field
	if n > 1e9 {
		return parseStart(v, now)
	}
	if !(n >= 0 && n <= float64(maxMatchSeconds)) {
		return 0, false
	}
	return plausible(int64(n))
}

func parseStart(v string, now time.Time) (int64, bool) {
	n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	// beyond 1e15 is not a plausible epoch in either unit
	if err != nil || !(n > 0 && n < 1e15) {
		return 0, false
	}
	var started time.Time
	switch {
	case n > 1e12:
		started = time.UnixMilli(int64(n))
	case n > 1e9:
		started = time.Unix(int64(n), 0)
	default:
		return 0, false
	}
	return plausible(int64(now.Sub(started) / time.Second))
}

func parseClock(v string) (int64, bool) {
	parts := strings.Split(v, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, false
	}
	var total int64
	for _, p := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil || n < 0 || n > maxMatchSeconds {
			return 0, false
		}
		total = total*60 + n
		if total > maxMatchSeconds {
			return 0, false
		}
	}
	return plausible(total)
}

func plausible(secs int64) (int64, bool) {
	if secs < 0 || secs > maxMatchSeconds {
		return 0, false
	}
	return secs, true
}

// FormatDuration renders seconds as H:MM:SS, or M:SS under an hour.
func FormatDuration(secs int64) string {
	if secs < 0 {
		secs = 0
	}
	h := secs / 3600
	m := (secs % 3600) / 60
	s := secs % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
