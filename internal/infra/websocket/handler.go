package websocket

import (
	"net/http"

	"github.com/gorilla/websocket"

	httpx "github.com/scanforge/api/internal/infra/http"
	"github.com/scanforge/api/pkg/apierror"
	"github.com/scanforge/api/pkg/domain/shared"
	"github.com/scanforge/api/pkg/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// In production, check origin against allowed domains
		// For now, allow all origins
		return true
	},
}

// Handler handles WebSocket connections.
type Handler struct {
	hub    *Hub
	logger *logger.Logger
}

// NewHandler creates a new WebSocket handler.
func NewHandler(hub *Hub, log *logger.Logger) *Handler {
	return &Handler{
		hub:    hub,
		logger: log,
	}
}

// ServeWS handles WebSocket upgrade requests for one scan's progress stream.
// GET /api/v1/ws/scans/{id}
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	rawID := httpx.PathParam(r, "id")
	scanID, err := shared.IDFromString(rawID)
	if err != nil {
		apierror.BadRequest("invalid scan id").WriteJSON(w)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed",
			"scan_id", scanID,
			"error", err,
		)
		return
	}

	client := NewClient(h.hub, conn, r.RemoteAddr, h.logger)

	h.hub.RegisterClient(client)

	// Subscribe the connection to its scan up front; clients may still
	// subscribe to additional scans over the socket.
	channel := ScanChannel(scanID.String())
	client.Subscribe(channel)
	h.hub.subscribeToChannel(client, channel)

	h.logger.Info("websocket client connected",
		"client_id", client.ID,
		"scan_id", scanID,
		"remote_addr", r.RemoteAddr,
	)

	go client.WritePump()
	go client.ReadPump()
}

// GetHub returns the hub instance.
func (h *Handler) GetHub() *Hub {
	return h.hub
}
