package chat

import "time"

// Message is the persisted chat message. RoomID is set for room broadcasts,
// ReceiverID for private messages; never both.
type Message struct {
	ID          int64     `json:"id"`
	RoomID      string    `json:"roomId,omitempty"`
	SenderID    string    `json:"senderId"`
	SenderName  string    `json:"senderName"`
	ReceiverID  string    `json:"receiverId,omitempty"`
	Content     string    `json:"content"`
	MessageType string    `json:"messageType"`
	Read        bool      `json:"read"`
	CreatedAt   time.Time `json:"createdAt"`
}

// PrivateChat is the durable summary record a chat-list UI reads: one row
// per user pair, pointing at the latest message between them.
type PrivateChat struct {
	ID            int64     `json:"id"`
	UserA         string    `json:"userA"`
	UserB         string    `json:"userB"`
	LastMessageID int64     `json:"lastMessageId"`
	UpdatedAt     time.Time `json:"updatedAt"`
}
