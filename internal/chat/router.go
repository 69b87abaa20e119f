package chat

import (
	"context"
	"log/slog"
	"time"
)

// MessageStore is the storage collaborator for chat messages. Implemented by
// the Postgres repository; tests swap in a fake.
type MessageStore interface {
	SaveRoomMessage(ctx context.Context, msg *Message) (*Message, error)
	SavePrivateMessage(ctx context.Context, msg *Message) (*Message, error)
	UpsertPrivateChat(ctx context.Context, userA, userB string, lastMessageID int64) error
	MarkMessageRead(ctx context.Context, messageID int64) error
	MarkChatRead(ctx context.Context, userID, otherUserID string) error
	RoomMessages(ctx context.Context, roomID string, limit int) ([]*Message, error)
	PrivateMessages(ctx context.Context, userID, otherUserID string, limit int) ([]*Message, error)
	TouchRoomLastSeen(ctx context.Context, roomID, userID string) error
}

// Delivery abstracts outbound event delivery. Implemented by the Hub.
type Delivery interface {
	ToConn(connID, event string, data any)
	ToRoom(roomID, event string, data any)
	ToRoomExcept(roomID, exceptConnID, event string, data any)
	ToAll(event string, data any)
}

// MessageRouter persists and forwards chat events. The one invariant both
// delivery modes share: persist before broadcast. A message is durably
// stored before any delivery attempt, so a delivery failure never loses
// data; the receiver can always recover it from a history fetch.
type MessageRouter struct {
	store    MessageStore
	sessions *SessionDirectory
	rooms    *RoomRegistry
	out      Delivery
	log      *slog.Logger
	limit    int // default history fetch size
}

func NewMessageRouter(store MessageStore, sessions *SessionDirectory, rooms *RoomRegistry, out Delivery, log *slog.Logger, historyLimit int) *MessageRouter {
	return &MessageRouter{
		store:    store,
		sessions: sessions,
		rooms:    rooms,
		out:      out,
		log:      log,
		limit:    historyLimit,
	}
}

// SendRoomMessage persists the message, echoes it to every connection joined
// to the room (the sender's own echo doubles as the delivery ack), then
// emits one lightweight notification to all connected users so unread
// badges update for users not viewing the room. The notification omits the
// message body on purpose.
func (r *MessageRouter) SendRoomMessage(ctx context.Context, connID string, p RoomMessagePayload) {
	if p.RoomID == "" || p.SenderID == "" || p.Content == "" {
		r.reject(connID, EvSendRoomMessage, "missing required field")
		return
	}

	msg := &Message{
		RoomID:      p.RoomID,
		SenderID:    p.SenderID,
		SenderName:  p.SenderName,
		Content:     p.Content,
		MessageType: messageType(p.MessageType),
	}
	saved, err := r.store.SaveRoomMessage(ctx, msg)
	if err != nil {
		r.log.Error("persist room message", "room", p.RoomID, "sender", p.SenderID, "err", err)
		r.reject(connID, EvSendRoomMessage, "message could not be saved")
		return
	}

	r.out.ToRoom(p.RoomID, EvRoomMessage, saved)
	r.out.ToAll(EvRoomNotification, RoomNotificationPayload{RoomID: p.RoomID, SenderID: p.SenderID})
}

// SendPrivateMessage persists the message, upserts the private-chat summary
// record, then delivers: an echo to the sender's connection and, if the
// receiver is currently bound, a copy to theirs. An offline receiver gets
// nothing pushed; they discover the message on their next history fetch.
func (r *MessageRouter) SendPrivateMessage(ctx context.Context, connID string, p PrivateMessagePayload) {
	if p.ReceiverID == "" || p.SenderID == "" || p.Content == "" {
		r.reject(connID, EvSendPrivate, "missing required field")
		return
	}

	msg := &Message{
		SenderID:    p.SenderID,
		SenderName:  p.SenderName,
		ReceiverID:  p.ReceiverID,
		Content:     p.Content,
		MessageType: messageType(p.MessageType),
	}
	saved, err := r.store.SavePrivateMessage(ctx, msg)
	if err != nil {
		r.log.Error("persist private message", "sender", p.SenderID, "receiver", p.ReceiverID, "err", err)
		r.reject(connID, EvSendPrivate, "message could not be saved")
		return
	}

	// The summary row is what chat-list UIs read; it must not be skipped.
	// The message itself is already durable, so a summary failure is logged
	// and delivery proceeds.
	if err := r.store.UpsertPrivateChat(ctx, p.SenderID, p.ReceiverID, saved.ID); err != nil {
		r.log.Error("upsert private chat", "sender", p.SenderID, "receiver", p.ReceiverID, "err", err)
	}

	r.out.ToConn(connID, EvPrivateMessage, saved)

	recvConn, ok := r.sessions.Lookup(p.ReceiverID)
	if !ok {
		// Expected, silent outcome: no retry, no store-and-forward push.
		return
	}
	if recvConn == connID {
		// Self-chat: the echo above already delivered the single copy.
		return
	}
	r.out.ToConn(recvConn, EvPrivateMessage, saved)
}

// Typing forwards a typing indicator. Ephemeral: never persisted, never
// retried, and a missing target is not an error.
func (r *MessageRouter) Typing(connID string, stop bool, p TypingPayload) {
	event := EvUserTyping
	if stop {
		event = EvUserStopTyping
	}
	switch {
	case p.RoomID != "":
		r.out.ToRoomExcept(p.RoomID, connID, event, p)
	case p.TargetID != "":
		if target, ok := r.sessions.Lookup(p.TargetID); ok {
			r.out.ToConn(target, event, p)
		}
	default:
		r.reject(connID, EvTyping, "missing roomId or targetId")
	}
}

func (r *MessageRouter) MarkRead(ctx context.Context, connID string, p MarkReadPayload) {
	if p.MessageID == 0 {
		r.reject(connID, EvMarkAsRead, "missing messageId")
		return
	}
	if err := r.store.MarkMessageRead(ctx, p.MessageID); err != nil {
		r.log.Error("mark message read", "message", p.MessageID, "err", err)
		r.reject(connID, EvMarkAsRead, "update failed")
	}
}

func (r *MessageRouter) MarkChatRead(ctx context.Context, connID string, p MarkChatReadPayload) {
	if p.UserID == "" || p.OtherUserID == "" {
		r.reject(connID, EvMarkChatAsRead, "missing user ids")
		return
	}
	if err := r.store.MarkChatRead(ctx, p.UserID, p.OtherUserID); err != nil {
		r.log.Error("mark chat read", "user", p.UserID, "other", p.OtherUserID, "err", err)
		r.reject(connID, EvMarkChatAsRead, "update failed")
	}
}

// RoomHistory fetches recent room messages, newest first from storage,
// reversed to chronological order before returning to the requester.
func (r *MessageRouter) RoomHistory(ctx context.Context, connID string, p HistoryPayload) {
	if p.RoomID == "" {
		r.reject(connID, EvGetRoomMessages, "missing roomId")
		return
	}
	msgs, err := r.store.RoomMessages(ctx, p.RoomID, r.capLimit(p.Limit))
	if err != nil {
		r.log.Error("fetch room history", "room", p.RoomID, "err", err)
		r.reject(connID, EvGetRoomMessages, "history unavailable")
		return
	}
	reverse(msgs)
	r.out.ToConn(connID, EvRoomMessages, msgs)
}

func (r *MessageRouter) PrivateHistory(ctx context.Context, connID, userID string, p HistoryPayload) {
	if p.OtherUserID == "" {
		r.reject(connID, EvGetPrivateHistory, "missing otherUserId")
		return
	}
	msgs, err := r.store.PrivateMessages(ctx, userID, p.OtherUserID, r.capLimit(p.Limit))
	if err != nil {
		r.log.Error("fetch private history", "user", userID, "other", p.OtherUserID, "err", err)
		r.reject(connID, EvGetPrivateHistory, "history unavailable")
		return
	}
	reverse(msgs)
	r.out.ToConn(connID, EvPrivateMessages, msgs)
}

// RoomLeft persists the per-user "last seen in room" timestamp. Only called
// on an explicit leave: a deliberate navigation away is a read signal, a
// dropped connection is not, so unread counts reflect what the user actually
// saw rather than transport churn. Fire-and-forget.
func (r *MessageRouter) RoomLeft(roomID, userID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.store.TouchRoomLastSeen(ctx, roomID, userID); err != nil {
			r.log.Error("touch room last seen", "room", roomID, "user", userID, "err", err)
		}
	}()
}

// reject reports an error back to the originating connection only; request
// errors are never broadcast.
func (r *MessageRouter) reject(connID, event, reason string) {
	r.out.ToConn(connID, EvError, ErrorPayload{Event: event, Reason: reason})
}

func (r *MessageRouter) capLimit(limit int) int {
	if limit <= 0 || limit > r.limit {
		return r.limit
	}
	return limit
}

func messageType(t string) string {
	if t == "" {
		return "text"
	}
	return t
}

func reverse(msgs []*Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}
