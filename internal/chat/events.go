package chat

import "encoding/json"

// Envelope is the frame exchanged over the websocket in both directions.
// Data is kept raw so call-signaling payloads can pass through untouched.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Inbound event names.
const (
	EvAuthenticate      = "authenticate"
	EvActivity          = "activity"
	EvJoinRoom          = "join_room"
	EvLeaveRoom         = "leave_room"
	EvSendRoomMessage   = "send_room_message"
	EvSendPrivate       = "send_private_message"
	EvTyping            = "typing"
	EvStopTyping        = "stop_typing"
	EvMarkAsRead        = "mark_as_read"
	EvMarkChatAsRead    = "mark_chat_as_read"
	EvGetRoomMessages   = "get_room_messages"
	EvGetPrivateHistory = "get_private_messages"

	EvInitiateCall = "initiate-call"
	EvCallAccepted = "call-accepted"
	EvCallRejected = "call-rejected"
	EvCallOffer    = "call-offer"
	EvCallAnswer   = "call-answer"
	EvIceCandidate = "ice-candidate"
	EvEndCall      = "end-call"

	EvWhiteboardUpdate   = "whiteboard-update"
	EvWhiteboardReqState = "whiteboard-request-state"
	EvWhiteboardState    = "whiteboard-state"
)

// Outbound event names.
const (
	EvRoomMessage       = "room_message"
	EvPrivateMessage    = "private_message"
	EvRoomNotification  = "room_message_notification"
	EvRoomMessages      = "room_messages"
	EvPrivateMessages   = "private_messages"
	EvUserTyping        = "user_typing"
	EvUserStopTyping    = "user_stop_typing"
	EvUserJoined        = "user_joined"
	EvUserLeft          = "user_left"
	EvUserStatusChanged = "user_status_changed"
	EvIncomingCall      = "incoming-call"
	EvCallError         = "call-error"
	EvWhiteboardStateRq = "whiteboard-state-request"
	EvError             = "error"
)

type AuthenticatePayload struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type RoomPayload struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type RoomMessagePayload struct {
	RoomID      string `json:"roomId"`
	SenderID    string `json:"senderId"`
	SenderName  string `json:"senderName"`
	Content     string `json:"content"`
	MessageType string `json:"messageType"`
}

type PrivateMessagePayload struct {
	ReceiverID  string `json:"receiverId"`
	SenderID    string `json:"senderId"`
	SenderName  string `json:"senderName"`
	Content     string `json:"content"`
	MessageType string `json:"messageType"`
}

// TypingPayload covers both room and private typing indicators: exactly one
// of RoomID / TargetID is set.
type TypingPayload struct {
	RoomID   string `json:"roomId,omitempty"`
	TargetID string `json:"targetId,omitempty"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type MarkReadPayload struct {
	MessageID int64 `json:"messageId"`
}

type MarkChatReadPayload struct {
	UserID      string `json:"userId"`
	OtherUserID string `json:"otherUserId"`
}

type HistoryPayload struct {
	RoomID      string `json:"roomId,omitempty"`
	OtherUserID string `json:"otherUserId,omitempty"`
	Limit       int    `json:"limit,omitempty"`
}

// CallPayload carries only the fields the relay needs for addressing; the
// rest of the signaling body is forwarded verbatim from the envelope.
type CallPayload struct {
	TargetID string `json:"targetId"`
}

type WhiteboardPayload struct {
	RoomID   string          `json:"roomId"`
	Elements json.RawMessage `json:"elements,omitempty"`
	AppState json.RawMessage `json:"appState,omitempty"`
	// TargetConn routes a whiteboard-state reply back to the requester.
	TargetConn string `json:"targetConn,omitempty"`
}

type StatusChangedPayload struct {
	UserID string `json:"userId"`
	Status string `json:"status"`
}

type RoomNotificationPayload struct {
	RoomID   string `json:"roomId"`
	SenderID string `json:"senderId"`
}

type ErrorPayload struct {
	Event  string `json:"event"`
	Reason string `json:"reason"`
}

func mustMarshal(event string, data any) []byte {
	raw, err := json.Marshal(data)
	if err != nil {
		// Payload structs are all marshalable; this fires only on a
		// programming error.
		raw = []byte("{}")
	}
	frame, _ := json.Marshal(Envelope{Event: event, Data: raw})
	return frame
}
