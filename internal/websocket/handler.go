package websocket

import (
	"net/http"
	"slices"

	"github.com/gorilla/websocket"

	apperrors "github.com/reelfetch/reelfetch/internal/errors"
	"github.com/reelfetch/reelfetch/internal/logger"
)

// Handler handles WebSocket connections.
type Handler struct {
	hub      *Hub
	upgrader websocket.Upgrader
	log      *logger.Logger
}

// NewHandler creates a new WebSocket handler. allowedOrigins follows the
// CORS configuration; "*" accepts any origin.
func NewHandler(hub *Hub, allowedOrigins []string, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Discard()
	}
	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		log: log,
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || slices.Contains(allowed, "*") {
			return true
		}
		return slices.Contains(allowed, origin)
	}
}

// ServeWS handles GET /api/ws/progress?id=<progress_id>. The id is the
// progress_id the browser will send with its download request.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	progressID := r.URL.Query().Get("id")
	if progressID == "" {
		apperrors.WriteError(w, apperrors.GetRequestID(r.Context()), apperrors.BadRequest("Progress id is required"))
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		h.log.Warn(r.Context(), "websocket upgrade failed", map[string]interface{}{"error": err.Error()})
		return
	}

	client := NewClient(h.hub, conn, progressID)
	if !h.hub.Register(client) {
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}
