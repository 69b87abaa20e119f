package chat

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	myMiddleware "github.com/eaeoz/social-chat-server/internal/middleware"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all for now (dev mode).
	},
}

// Handler upgrades authenticated HTTP requests to websocket clients. The
// auth middleware has already validated the token and put the identity in
// the request context; the authenticate event then binds it in the session
// directory.
type Handler struct {
	hub *Hub
	log *slog.Logger
}

func NewHandler(hub *Hub, log *slog.Logger) *Handler {
	return &Handler{hub: hub, log: log}
}

func (h *Handler) ServeWs(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(myMiddleware.UserKey).(string)
	username, ok2 := r.Context().Value(myMiddleware.UsernameKey).(string)
	if !ok || !ok2 || userID == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("websocket upgrade", "err", err)
		return
	}

	client := NewClient(h.hub, conn, userID, username)
	h.hub.Register(client)

	// The request context dies once the handler returns; the pump outlives
	// it, so it gets its own.
	go client.WritePump()
	go client.ReadPump(context.Background())
}
