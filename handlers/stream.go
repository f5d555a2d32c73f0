package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"chorus/presence-bridge/models"
	"chorus/presence-bridge/services"
	"chorus/presence-bridge/utils"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Callers already passed the token gate.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type StreamHandler struct {
	manager  *services.Manager
	logger   *utils.Logger
	interval time.Duration
	now      func() time.Time
}

func NewStreamHandler(manager *services.Manager, logger *utils.Logger, interval time.Duration, now func() time.Time) *StreamHandler {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &StreamHandler{
		manager:  manager,
		logger:   logger.With("component", "stream"),
		interval: interval,
		now:      now,
	}
}

// streamFrame is pushed on every tick. Presence is nil until a sample exists
// or while no session resolves; BridgeID is empty in the latter case.
type streamFrame struct {
	BridgeID string                   `json:"bridge_id"`
	SteamID  string                   `json:"steam_id"`
	Presence *models.PresenceResponse `json:"presence"`
	SentAt   time.Time                `json:"sent_at"`
}

// Stream handles GET /stream/presence/:steamId. The bridge must resolve
// before upgrading so an unknown bridge still gets a plain 404; after that it
// is resolved again on every tick, so a reconnect is picked up by open streams.
func (h *StreamHandler) Stream(c *gin.Context) {
	if resolveBridge(c, h.manager) == nil {
		return
	}
	userID, bridgeID := c.Query("user_id"), c.Query("bridge_id")
	steamID := c.Param("steamId")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	log := h.logger.With("bridge_id", bridgeID, "user_id", userID, "steam_id", steamID)
	log.Debug("Stream opened")

	// The server's ReadTimeout would otherwise end the stream.
	_ = conn.SetReadDeadline(time.Time{})

	// The reader only exists to notice the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(h.frame(userID, bridgeID, steamID)); err != nil {
			log.Debug("Stream write failed", "error", err)
			return
		}

		select {
		case <-gone:
			log.Debug("Stream closed by client")
			return
		case <-c.Request.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

func (h *StreamHandler) frame(userID, bridgeID, steamID string) streamFrame {
	frame := streamFrame{SteamID: steamID, SentAt: h.now()}
	bridge := h.manager.Resolve(userID, bridgeID)
	if bridge == nil {
		return frame
	}
	frame.BridgeID = bridge.ID
	if sample, derived, ok := bridge.Presence(steamID); ok {
		p := compactPresence(sample, derived)
		frame.Presence = &p
	}
	return frame
}
