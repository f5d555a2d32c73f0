package handlers

import (
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"

	"chorus/presence-bridge/models"
	"chorus/presence-bridge/richpresence"
	"chorus/presence-bridge/services"
)

type DebugHandler struct {
	manager *services.Manager
}

func NewDebugHandler(manager *services.Manager) *DebugHandler {
	return &DebugHandler{manager: manager}
}

// Presence handles GET /debug/presence/:steamId
func (h *DebugHandler) Presence(c *gin.Context) {
	bridge := resolveBridge(c, h.manager)
	if bridge == nil {
		return
	}
	sample, derived, ok := bridge.Presence(c.Param("steamId"))
	if !ok {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "not_found"})
		return
	}

	fields := richpresence.FromSample(sample)
	c.JSON(http.StatusOK, models.DebugPresenceResponse{
		BridgeID: bridge.ID,
		Sample:   sample,
		Pairs:    fields.Pairs(),
		Text:     fields.Text(),
		Derived:  derived,
	})
}

// Keys handles GET /debug/keys. Without a selector every session is counted.
func (h *DebugHandler) Keys(c *gin.Context) {
	var bridges []*services.Bridge
	if c.Query("user_id") == "" && c.Query("bridge_id") == "" {
		bridges = h.manager.Bridges()
	} else {
		bridge := resolveBridge(c, h.manager)
		if bridge == nil {
			return
		}
		bridges = []*services.Bridge{bridge}
	}

	counts := make(map[string]int)
	samples := 0
	for _, b := range bridges {
		samples += b.KeyCounts(counts)
	}

	keys := make([]models.KeyCount, 0, len(counts))
	for k, n := range counts {
		keys = append(keys, models.KeyCount{Key: k, Count: n})
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Count != keys[j].Count {
			return keys[i].Count > keys[j].Count
		}
		return keys[i].Key < keys[j].Key
	})

	c.JSON(http.StatusOK, models.DebugKeysResponse{
		Bridges: len(bridges),
		Samples: samples,
		Keys:    keys,
	})
}
