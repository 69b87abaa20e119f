package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// broadcastChannel is the redis pub/sub channel carrying events addressed to
// every connected user (presence changes, room-activity notifications).
// Publishing here instead of fanning out directly means all server
// instances converge, while room/direct delivery stays instance-local.
const broadcastChannel = "chat-broadcast"

// Hub owns the connection set and the in-memory routing state (session
// directory, presence tracker, room registry) and wires inbound events to
// the router and relays. One Hub per process.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client // connID -> client

	Sessions   *SessionDirectory
	Presence   *PresenceTracker
	Rooms      *RoomRegistry
	Router     *MessageRouter
	Calls      *CallRelay
	Whiteboard *WhiteboardRelay

	rdb *redis.Client
	log *slog.Logger
}

// Options carries the tunables the hub's components need.
type Options struct {
	InactivityWindow   time.Duration
	WhiteboardDebounce time.Duration
	HistoryLimit       int
}

func NewHub(store MessageStore, status StatusStore, rdb *redis.Client, opts Options, log *slog.Logger) *Hub {
	h := &Hub{
		clients:  make(map[string]*Client),
		Sessions: NewSessionDirectory(),
		Rooms:    NewRoomRegistry(),
		rdb:      rdb,
		log:      log,
	}
	h.Presence = NewPresenceTracker(opts.InactivityWindow, status, h, log.With("component", "presence"))
	h.Router = NewMessageRouter(store, h.Sessions, h.Rooms, h, log.With("component", "router"), opts.HistoryLimit)
	h.Calls = NewCallRelay(h.Sessions, h, log.With("component", "calls"))
	h.Whiteboard = NewWhiteboardRelay(h, opts.WhiteboardDebounce)
	return h
}

// Run services the redis subscription, fanning cross-instance broadcasts out
// to local clients. Blocks until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	if h.rdb == nil {
		<-ctx.Done()
		return
	}
	pubsub := h.rdb.Subscribe(ctx, broadcastChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.fanOut([]byte(msg.Payload))
		}
	}
}

// Register adds a freshly upgraded connection.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()
	h.log.Info("client connected", "conn", c.ID, "user", c.UserID)
}

// Unregister tears a connection down: pending whiteboard frames are
// dropped, every joined room is notified, and — only if this connection is
// still the user's current session binding — the user goes offline. An
// orphaned connection (replaced by a newer authenticate) disconnecting must
// not flip a live user offline.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.ID)
	h.mu.Unlock()

	h.Whiteboard.Cancel(c.ID)

	for _, roomID := range h.Rooms.LeaveAll(c.ID) {
		h.ToRoom(roomID, EvUserLeft, RoomPayload{RoomID: roomID, UserID: c.UserID, Username: c.Username})
	}

	if userID, ok := h.Sessions.Unbind(c.ID); ok {
		h.Presence.Disconnect(userID)
	}

	c.closeSend()
	h.log.Info("client disconnected", "conn", c.ID, "user", c.UserID)
}

// HandleEvent dispatches one inbound frame. It runs on the connection's
// read goroutine, so events from a single connection are handled in order
// and never overlap.
func (h *Hub) HandleEvent(ctx context.Context, c *Client, frame []byte) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil || env.Event == "" {
		h.ToConn(c.ID, EvError, ErrorPayload{Reason: "malformed frame"})
		return
	}

	if env.Event != EvAuthenticate && !c.authed {
		h.ToConn(c.ID, EvError, ErrorPayload{Event: env.Event, Reason: "authenticate first"})
		return
	}

	switch env.Event {
	case EvAuthenticate:
		h.handleAuthenticate(c, env.Data)

	case EvActivity:
		h.Presence.RecordActivity(c.UserID)

	case EvJoinRoom:
		var p RoomPayload
		if !h.decode(c, env, &p) || p.RoomID == "" {
			h.ToConn(c.ID, EvError, ErrorPayload{Event: env.Event, Reason: "missing roomId"})
			return
		}
		h.Rooms.Join(c.ID, p.RoomID)
		h.ToRoomExcept(p.RoomID, c.ID, EvUserJoined, p)

	case EvLeaveRoom:
		var p RoomPayload
		if !h.decode(c, env, &p) || p.RoomID == "" {
			h.ToConn(c.ID, EvError, ErrorPayload{Event: env.Event, Reason: "missing roomId"})
			return
		}
		h.Rooms.Leave(c.ID, p.RoomID)
		h.Router.RoomLeft(p.RoomID, c.UserID)
		h.ToRoom(p.RoomID, EvUserLeft, p)

	case EvSendRoomMessage:
		var p RoomMessagePayload
		if h.decode(c, env, &p) {
			h.Router.SendRoomMessage(ctx, c.ID, p)
		}

	case EvSendPrivate:
		var p PrivateMessagePayload
		if h.decode(c, env, &p) {
			h.Router.SendPrivateMessage(ctx, c.ID, p)
		}

	case EvTyping, EvStopTyping:
		var p TypingPayload
		if h.decode(c, env, &p) {
			h.Router.Typing(c.ID, env.Event == EvStopTyping, p)
		}

	case EvMarkAsRead:
		var p MarkReadPayload
		if h.decode(c, env, &p) {
			h.Router.MarkRead(ctx, c.ID, p)
		}

	case EvMarkChatAsRead:
		var p MarkChatReadPayload
		if h.decode(c, env, &p) {
			h.Router.MarkChatRead(ctx, c.ID, p)
		}

	case EvGetRoomMessages:
		var p HistoryPayload
		if h.decode(c, env, &p) {
			h.Router.RoomHistory(ctx, c.ID, p)
		}

	case EvGetPrivateHistory:
		var p HistoryPayload
		if h.decode(c, env, &p) {
			h.Router.PrivateHistory(ctx, c.ID, c.UserID, p)
		}

	case EvInitiateCall, EvCallAccepted, EvCallRejected, EvCallOffer, EvCallAnswer, EvIceCandidate, EvEndCall:
		h.Calls.Relay(c.ID, env.Event, env.Data)

	case EvWhiteboardUpdate:
		var p WhiteboardPayload
		if h.decode(c, env, &p) {
			h.Whiteboard.Update(c.ID, p)
		}

	case EvWhiteboardReqState:
		var p WhiteboardPayload
		if h.decode(c, env, &p) {
			h.Whiteboard.RequestState(c.ID, p)
		}

	case EvWhiteboardState:
		var p WhiteboardPayload
		if h.decode(c, env, &p) {
			h.Whiteboard.State(c.ID, p)
		}

	default:
		h.ToConn(c.ID, EvError, ErrorPayload{Event: env.Event, Reason: "unknown event"})
	}
}

// handleAuthenticate binds the connection's verified identity into the
// session directory (last-authenticate-wins) and marks the user online.
// Authenticating counts as activity.
func (h *Hub) handleAuthenticate(c *Client, data json.RawMessage) {
	var p AuthenticatePayload
	if err := json.Unmarshal(data, &p); err != nil {
		h.ToConn(c.ID, EvError, ErrorPayload{Event: EvAuthenticate, Reason: "malformed payload"})
		return
	}
	if p.UserID != "" && p.UserID != c.UserID {
		// The token presented at upgrade is authoritative.
		h.log.Warn("authenticate payload user mismatch", "conn", c.ID, "token", c.UserID, "payload", p.UserID)
	}
	if p.Username != "" {
		c.Username = p.Username
	}
	c.authed = true
	h.Sessions.Bind(c.UserID, c.ID)
	h.Presence.RecordActivity(c.UserID)
}

// decode unmarshals the envelope payload, answering a structured error on
// malformed input. Malformed payloads are never forwarded or persisted.
func (h *Hub) decode(c *Client, env Envelope, v any) bool {
	if err := json.Unmarshal(env.Data, v); err != nil {
		h.ToConn(c.ID, EvError, ErrorPayload{Event: env.Event, Reason: "malformed payload"})
		return false
	}
	return true
}

// ToConn delivers one event to one local connection. Unknown connections
// are ignored: the peer being gone is an expected, silent outcome.
func (h *Hub) ToConn(connID, event string, data any) {
	h.mu.RLock()
	c, ok := h.clients[connID]
	h.mu.RUnlock()
	if ok {
		c.enqueue(mustMarshal(event, data))
	}
}

// ToRoom delivers to every connection currently joined to the room.
func (h *Hub) ToRoom(roomID, event string, data any) {
	h.ToRoomExcept(roomID, "", event, data)
}

// ToRoomExcept delivers to the room's members, skipping exceptConnID.
func (h *Hub) ToRoomExcept(roomID, exceptConnID, event string, data any) {
	frame := mustMarshal(event, data)
	for _, connID := range h.Rooms.Members(roomID) {
		if connID == exceptConnID {
			continue
		}
		h.mu.RLock()
		c, ok := h.clients[connID]
		h.mu.RUnlock()
		if ok {
			c.enqueue(frame)
		}
	}
}

// ToAll fans an event out to every connected user on every instance via
// redis. Publish failures are logged and swallowed: best-effort
// notifications must not cascade into the operation that triggered them.
func (h *Hub) ToAll(event string, data any) {
	frame := mustMarshal(event, data)
	if h.rdb == nil {
		h.fanOut(frame)
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.rdb.Publish(ctx, broadcastChannel, frame).Err(); err != nil {
			h.log.Error("publish broadcast", "event", event, "err", err)
			h.fanOut(frame) // still reach local clients
		}
	}()
}

// BroadcastAll satisfies the presence tracker's Broadcaster dependency.
func (h *Hub) BroadcastAll(event string, data any) {
	h.ToAll(event, data)
}

func (h *Hub) fanOut(frame []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		c.enqueue(frame)
	}
}
