package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chorus/presence-bridge/models"
	"chorus/presence-bridge/services"
)

type PresenceHandler struct {
	manager *services.Manager
}

func NewPresenceHandler(manager *services.Manager) *PresenceHandler {
	return &PresenceHandler{manager: manager}
}

// GetPresence handles GET /presence/:steamId
func (h *PresenceHandler) GetPresence(c *gin.Context) {
	sample, derived, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, compactPresence(sample, derived))
}

// GetFullPresence handles GET /presencefull/:steamId
func (h *PresenceHandler) GetFullPresence(c *gin.Context) {
	sample, derived, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, models.FullPresenceResponse{
		SteamID64:       sample.SteamID64,
		PersonaState:    sample.PersonaState,
		AppID:           sample.AppID,
		RawInGame:       sample.InGame,
		RichPresence:    sample.RichPresence,
		RichPresenceRaw: sample.RichPresenceRaw,
		LastUpdatedAt:   sample.LastUpdatedAt,
		DerivedPresence: derived,
	})
}

// lookup resolves the bridge from the query and derives the presence of the
// path's steam id, writing the 404 itself when either is missing.
func (h *PresenceHandler) lookup(c *gin.Context) (*models.RawPresenceSample, models.DerivedPresence, bool) {
	bridge := resolveBridge(c, h.manager)
	if bridge == nil {
		return nil, models.DerivedPresence{}, false
	}
	sample, derived, ok := bridge.Presence(c.Param("steamId"))
	if !ok {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "not_found"})
		return nil, models.DerivedPresence{}, false
	}
	return sample, derived, true
}

func resolveBridge(c *gin.Context, manager *services.Manager) *services.Bridge {
	bridge := manager.Resolve(c.Query("user_id"), c.Query("bridge_id"))
	if bridge == nil {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "bridge_not_found"})
	}
	return bridge
}

func compactPresence(sample *models.RawPresenceSample, derived models.DerivedPresence) models.PresenceResponse {
	return models.PresenceResponse{
		SteamID64:       sample.SteamID64,
		LastUpdatedAt:   sample.LastUpdatedAt,
		DerivedPresence: derived,
	}
}
