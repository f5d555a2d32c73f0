package richpresence

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	// \b treats underscore as a word character: "bot_match" hits, "#dota_rp_bots" does not
	botPattern = regexp.MustCompile(`\bbots?\b|\bbot[ _]match\b`)

	matchKeywords = []string{
		"heroselection",
		"strategytime",
		"playing",
		"ranked",
		"turbo",
		"captains",
		"draft",
		"match",
		"private_lobby",
		"finding_match",
	}

	activeLobbyStates = []string{"lobby_state: run", "lobby_state: serversetup"}
)

var (
	matchIDKeys = []string{"matchid", "match_id", "watchablegameid", "watchable_game_id"}
	lobbyIDKeys = []string{"lobbyid", "lobby_id"}
)

// Classification is the outcome of every heuristic over one payload.
type Classification struct {
	Lobby            string
	GameMode         string
	InDemo           bool
	InBotMatch       bool
	InCustomGame     bool
	ActiveMatch      bool
	ActiveMatchRaw   bool
	LobbyStateHit    bool
	StatusKeywordHit bool
	InMatch          bool
}

// Classify runs the classifiers in priority order. Demo mode overrides
// everything, custom games are never counted as matches.
func Classify(f Fields) Classification {
	c := Classification{
		Lobby: LobbyString(f),
	}
	c.GameMode, _ = GameMode(f)
	c.InCustomGame = IsCustomGame(c.GameMode)
	c.InDemo = IsDemoMode(f)
	c.InBotMatch = IsBotMatch(f)
	c.ActiveMatch = IsActiveMatch(f)
	c.ActiveMatchRaw = IsActiveMatchRaw(f)
	c.LobbyStateHit = lobbyStateActive(c.Lobby)
	c.StatusKeywordHit = statusKeywordHit(f)

	switch {
	case c.InDemo:
		c.InMatch = false
	case c.InCustomGame:
		c.InMatch = false
	default:
		c.InMatch = c.InBotMatch || c.ActiveMatch || c.ActiveMatchRaw || c.LobbyStateHit || c.StatusKeywordHit
	}
	return c
}

func IsDemoMode(f Fields) bool {
	param0, _ := f.Get("param0")
	param0 = strings.ToLower(param0)
	return strings.Contains(param0, "demo_hero_mode_name") || strings.Contains(param0, "demo")
}

func IsBotMatch(f Fields) bool {
	for _, key := range []string{"status", "steam_display", "lobby", "param0", "param1"} {
		v, ok := f.Get(key)
		if !ok {
			continue
		}
		if botPattern.MatchString(strings.ToLower(v)) {
			return true
		}
	}
	return false
}

func IsCustomGame(gameMode string) bool {
	return strings.Contains(strings.ToLower(gameMode), "custom")
}

// IsActiveMatch inspects the object form for any sign of a running match.
func IsActiveMatch(f Fields) bool {
	if v, ok := f.Object("level"); ok {
		if _, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return true
		}
	}
	for _, key := range matchIDKeys {
		if v, ok := f.Object(key); ok && validID(v) {
			return true
		}
	}
	for _, key := range lobbyIDKeys {
		if v, ok := f.Object(key); ok && validID(v) {
			return true
		}
	}
	if f.HasObject("state") || f.HasObject("mode") {
		return true
	}
	if lobby, ok := f.Object("lobby"); ok && lobbyStateActive(lobby) {
		return true
	}
	status, _ := f.Object("status")
	display, _ := f.Object("steam_display")
	return containsKeyword(status + " " + display)
}

// IsActiveMatchRaw is the fallback for a stale or empty object form: it only
// looks at the raw lobby pair.
func IsActiveMatchRaw(f Fields) bool {
	lobby, ok := f.Raw("lobby")
	return ok && lobbyStateActive(lobby)
}

func lobbyStateActive(lobby string) bool {
	lobby = strings.ToLower(lobby)
	for _, state := range activeLobbyStates {
		if strings.Contains(lobby, state) {
			return true
		}
	}
	return false
}

func statusKeywordHit(f Fields) bool {
	return containsKeyword(StatusText(f))
}

func containsKeyword(s string) bool {
	s = strings.ToLower(s)
	if strings.TrimSpace(s) == "" {
		return false
	}
	squashed := strings.NewReplacer("_", "", " ", "").Replace(s)
	for _, kw := range matchKeywords {
		if strings.Contains(s, kw) || strings.Contains(squashed, kw) {
			return true
		}
	}
	return false
}

// StatusText joins status and steam_display for keyword checks.
func StatusText(f Fields) string {
	status, _ := f.Get("status")
	display, _ := f.Get("steam_display")
	return strings.TrimSpace(status + " " + display)
}

func validID(v string) bool {
	v = strings.TrimSpace(v)
	return v != "" && v != "0"
}
