package chat

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (*MessageRouter, *fakeStore, *fakeDelivery, *SessionDirectory) {
	t.Helper()
	store := &fakeStore{}
	out := &fakeDelivery{}
	sessions := NewSessionDirectory()
	rooms := NewRoomRegistry()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewMessageRouter(store, sessions, rooms, out, log, 50), store, out, sessions
}

func TestRoomMessagePersistThenBroadcast(t *testing.T) {
	r, store, out, _ := newTestRouter(t)

	r.SendRoomMessage(context.Background(), "c1", RoomMessagePayload{
		RoomID: "r1", SenderID: "u1", SenderName: "alice", Content: "hello",
	})

	require.Equal(t, 1, store.roomSavedCount())

	msgs := out.byEvent(EvRoomMessage)
	require.Len(t, msgs, 1)
	assert.Equal(t, "r1", msgs[0].roomID)
	saved := msgs[0].data.(*Message)
	assert.Equal(t, "hello", saved.Content)
	assert.Equal(t, "u1", saved.SenderID)
	assert.NotZero(t, saved.ID, "broadcast carries the persisted message")

	// Exactly one lightweight notification regardless of room size, and it
	// carries no message body.
	notes := out.byEvent(EvRoomNotification)
	require.Len(t, notes, 1)
	assert.Equal(t, "all", notes[0].scope)
	note := notes[0].data.(RoomNotificationPayload)
	assert.Equal(t, "r1", note.RoomID)
	assert.Equal(t, "u1", note.SenderID)
}

func TestRoomMessagePersistFailureAbortsBroadcast(t *testing.T) {
	r, store, out, _ := newTestRouter(t)
	store.failSave = true

	r.SendRoomMessage(context.Background(), "c1", RoomMessagePayload{
		RoomID: "r1", SenderID: "u1", Content: "hello",
	})

	assert.Zero(t, out.count(EvRoomMessage), "unpersisted message must not be broadcast")
	assert.Zero(t, out.count(EvRoomNotification))

	errs := out.byEvent(EvError)
	require.Len(t, errs, 1)
	assert.Equal(t, "c1", errs[0].connID, "error goes to the sender only")
}

func TestRoomMessageMissingFieldRejected(t *testing.T) {
	r, store, out, _ := newTestRouter(t)

	r.SendRoomMessage(context.Background(), "c1", RoomMessagePayload{SenderID: "u1"})

	assert.Zero(t, store.roomSavedCount(), "malformed payload never persisted")
	require.Equal(t, 1, out.count(EvError))
}

func TestPrivateMessageOnlineReceiver(t *testing.T) {
	r, store, out, sessions := newTestRouter(t)
	sessions.Bind("u2", "c2")

	r.SendPrivateMessage(context.Background(), "c1", PrivateMessagePayload{
		SenderID: "u1", ReceiverID: "u2", Content: "hi",
	})

	require.Equal(t, 1, store.privateSavedCount())
	require.Equal(t, 1, store.upsertCount())

	deliveries := out.byEvent(EvPrivateMessage)
	require.Len(t, deliveries, 2)
	conns := []string{deliveries[0].connID, deliveries[1].connID}
	assert.ElementsMatch(t, []string{"c1", "c2"}, conns, "echo to sender plus copy to receiver")
}

func TestPrivateMessageOfflineReceiver(t *testing.T) {
	r, store, out, _ := newTestRouter(t)

	r.SendPrivateMessage(context.Background(), "c1", PrivateMessagePayload{
		SenderID: "u1", ReceiverID: "u2", Content: "hi",
	})

	// Persisted and summarized, but only the sender echo goes out; the
	// receiver discovers the message on the next history fetch.
	require.Equal(t, 1, store.privateSavedCount())
	require.Equal(t, 1, store.upsertCount())

	deliveries := out.byEvent(EvPrivateMessage)
	require.Len(t, deliveries, 1)
	assert.Equal(t, "c1", deliveries[0].connID)
	assert.Zero(t, out.count(EvError), "offline peer is not an error")
}

func TestPrivateMessageSelfChatSingleDelivery(t *testing.T) {
	r, _, out, sessions := newTestRouter(t)
	sessions.Bind("u1", "c1")

	r.SendPrivateMessage(context.Background(), "c1", PrivateMessagePayload{
		SenderID: "u1", ReceiverID: "u1", Content: "note to self",
	})

	deliveries := out.byEvent(EvPrivateMessage)
	require.Len(t, deliveries, 1, "sender-echo and receiver-lookup resolve to the same connection")
	assert.Equal(t, "c1", deliveries[0].connID)
}

func TestPrivateMessagePersistFailure(t *testing.T) {
	r, store, out, sessions := newTestRouter(t)
	store.failSave = true
	sessions.Bind("u2", "c2")

	r.SendPrivateMessage(context.Background(), "c1", PrivateMessagePayload{
		SenderID: "u1", ReceiverID: "u2", Content: "hi",
	})

	assert.Zero(t, out.count(EvPrivateMessage))
	assert.Zero(t, store.upsertCount(), "no summary for an unpersisted message")
	errs := out.byEvent(EvError)
	require.Len(t, errs, 1)
	assert.Equal(t, "c1", errs[0].connID)
}

func TestTypingEphemeral(t *testing.T) {
	r, store, out, sessions := newTestRouter(t)
	sessions.Bind("u2", "c2")

	r.Typing("c1", false, TypingPayload{RoomID: "r1", UserID: "u1"})
	r.Typing("c1", true, TypingPayload{RoomID: "r1", UserID: "u1"})
	r.Typing("c1", false, TypingPayload{TargetID: "u2", UserID: "u1"})
	r.Typing("c1", false, TypingPayload{TargetID: "nobody", UserID: "u1"})

	assert.Zero(t, store.roomSavedCount())
	assert.Zero(t, store.privateSavedCount())

	roomTyping := out.byEvent(EvUserTyping)
	require.Len(t, roomTyping, 2)
	assert.Equal(t, "c1", roomTyping[0].except, "sender excluded from room typing fanout")
	assert.Equal(t, "c2", roomTyping[1].connID)

	require.Equal(t, 1, out.count(EvUserStopTyping))
	assert.Zero(t, out.count(EvError), "unreachable typing target is silent")
}

func TestRoomHistoryChronological(t *testing.T) {
	r, store, out, _ := newTestRouter(t)
	now := time.Now()
	// Storage returns newest first.
	store.roomHistory = []*Message{
		{ID: 3, Content: "three", CreatedAt: now},
		{ID: 2, Content: "two", CreatedAt: now.Add(-time.Minute)},
		{ID: 1, Content: "one", CreatedAt: now.Add(-2 * time.Minute)},
	}

	r.RoomHistory(context.Background(), "c1", HistoryPayload{RoomID: "r1"})

	replies := out.byEvent(EvRoomMessages)
	require.Len(t, replies, 1)
	assert.Equal(t, "c1", replies[0].connID)
	msgs := replies[0].data.([]*Message)
	require.Len(t, msgs, 3)
	assert.Equal(t, int64(1), msgs[0].ID, "history is reversed to chronological order")
	assert.Equal(t, int64(3), msgs[2].ID)
}

func TestPrivateHistoryChronological(t *testing.T) {
	r, store, out, _ := newTestRouter(t)
	store.privateHistory = []*Message{
		{ID: 2, Content: "later"},
		{ID: 1, Content: "earlier"},
	}

	r.PrivateHistory(context.Background(), "c1", "u1", HistoryPayload{OtherUserID: "u2"})

	replies := out.byEvent(EvPrivateMessages)
	require.Len(t, replies, 1)
	msgs := replies[0].data.([]*Message)
	require.Len(t, msgs, 2)
	assert.Equal(t, int64(1), msgs[0].ID)
}

func TestMarkReadOperations(t *testing.T) {
	r, store, out, _ := newTestRouter(t)

	r.MarkRead(context.Background(), "c1", MarkReadPayload{MessageID: 42})
	r.MarkChatRead(context.Background(), "c1", MarkChatReadPayload{UserID: "u1", OtherUserID: "u2"})

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Equal(t, []int64{42}, store.readMsgs)
	assert.Equal(t, [][2]string{{"u1", "u2"}}, store.readChats)
	assert.Zero(t, out.count(EvError))
}

func TestRoomLeftPersistsLastSeen(t *testing.T) {
	r, store, _, _ := newTestRouter(t)

	r.RoomLeft("r1", "u1")

	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.lastSeen) == 1
	}, time.Second, 5*time.Millisecond)

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Equal(t, [2]string{"r1", "u1"}, store.lastSeen[0])
}
