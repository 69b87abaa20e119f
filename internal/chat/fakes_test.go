package chat

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ---- fake delivery ----

type sentEvent struct {
	scope  string // "conn", "room", "all"
	connID string
	roomID string
	except string
	event  string
	data   any
}

type fakeDelivery struct {
	mu   sync.Mutex
	sent []sentEvent
}

func (f *fakeDelivery) ToConn(connID, event string, data any) {
	f.record(sentEvent{scope: "conn", connID: connID, event: event, data: data})
}

func (f *fakeDelivery) ToRoom(roomID, event string, data any) {
	f.record(sentEvent{scope: "room", roomID: roomID, event: event, data: data})
}

func (f *fakeDelivery) ToRoomExcept(roomID, exceptConnID, event string, data any) {
	f.record(sentEvent{scope: "room", roomID: roomID, except: exceptConnID, event: event, data: data})
}

func (f *fakeDelivery) ToAll(event string, data any) {
	f.record(sentEvent{scope: "all", event: event, data: data})
}

func (f *fakeDelivery) record(e sentEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, e)
}

func (f *fakeDelivery) byEvent(event string) []sentEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentEvent
	for _, e := range f.sent {
		if e.event == event {
			out = append(out, e)
		}
	}
	return out
}

func (f *fakeDelivery) count(event string) int {
	return len(f.byEvent(event))
}

// ---- fake message store ----

type fakeStore struct {
	mu       sync.Mutex
	failSave bool
	nextID   int64

	roomSaved    []*Message
	privateSaved []*Message
	upserts      []int64
	readMsgs     []int64
	readChats    [][2]string
	lastSeen     [][2]string

	roomHistory    []*Message
	privateHistory []*Message
}

var errStoreDown = errors.New("storage unavailable")

func (f *fakeStore) SaveRoomMessage(ctx context.Context, msg *Message) (*Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSave {
		return nil, errStoreDown
	}
	f.nextID++
	msg.ID = f.nextID
	msg.CreatedAt = time.Now()
	f.roomSaved = append(f.roomSaved, msg)
	return msg, nil
}

func (f *fakeStore) SavePrivateMessage(ctx context.Context, msg *Message) (*Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSave {
		return nil, errStoreDown
	}
	f.nextID++
	msg.ID = f.nextID
	msg.CreatedAt = time.Now()
	f.privateSaved = append(f.privateSaved, msg)
	return msg, nil
}

func (f *fakeStore) UpsertPrivateChat(ctx context.Context, userA, userB string, lastMessageID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts = append(f.upserts, lastMessageID)
	return nil
}

func (f *fakeStore) MarkMessageRead(ctx context.Context, messageID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readMsgs = append(f.readMsgs, messageID)
	return nil
}

func (f *fakeStore) MarkChatRead(ctx context.Context, userID, otherUserID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readChats = append(f.readChats, [2]string{userID, otherUserID})
	return nil
}

func (f *fakeStore) RoomMessages(ctx context.Context, roomID string, limit int) ([]*Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.roomHistory, nil
}

func (f *fakeStore) PrivateMessages(ctx context.Context, userID, otherUserID string, limit int) ([]*Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.privateHistory, nil
}

func (f *fakeStore) TouchRoomLastSeen(ctx context.Context, roomID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastSeen = append(f.lastSeen, [2]string{roomID, userID})
	return nil
}

func (f *fakeStore) roomSavedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.roomSaved)
}

func (f *fakeStore) privateSavedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.privateSaved)
}

func (f *fakeStore) upsertCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.upserts)
}

// ---- fake status store / broadcaster for presence ----

type fakeStatusStore struct {
	mu      sync.Mutex
	changes []StatusChangedPayload
}

func (f *fakeStatusStore) SetStatus(ctx context.Context, userID, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.changes = append(f.changes, StatusChangedPayload{UserID: userID, Status: status})
	return nil
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	events []StatusChangedPayload
}

func (f *fakeBroadcaster) BroadcastAll(event string, data any) {
	p, ok := data.(StatusChangedPayload)
	if !ok {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, p)
}

func (f *fakeBroadcaster) statusCount(userID, status string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.events {
		if e.UserID == userID && e.Status == status {
			n++
		}
	}
	return n
}
