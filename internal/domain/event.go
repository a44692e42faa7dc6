package domain

// Event names pushed to connected clients. One consistent wire vocabulary is
// used for both the websocket and any future transport.
const (
	EventConnected       = "connected"
	EventIdentityStatus  = "identityStatus"
	EventNewMessage      = "newMessage"
	EventMessagesRead    = "messagesRead"
	EventTypingStart     = "typingStart"
	EventTypingStop      = "typingStop"
	EventNewNotification = "newNotification"
	EventError           = "error"
)

// Event is an outbound envelope pushed to a connection.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// TypingPayload carries a typing start/stop signal. ChatID is the canonical
// conversation key so the client can route the indicator to the right thread.
type TypingPayload struct {
	SenderID string `json:"senderId"`
	ChatID   string `json:"chatId"`
}

// MessagesReadPayload tells the original sender who read their messages.
type MessagesReadPayload struct {
	ReaderID string `json:"readerId"`
}

// ConnectedEvent acknowledges a successful registration.
func ConnectedEvent(identity Identity) Event {
	return Event{Type: EventConnected, Data: identity}
}

// IdentityStatusEvent announces an online or offline transition.
func IdentityStatusEvent(status PresenceStatus) Event {
	return Event{Type: EventIdentityStatus, Data: status}
}

// NewMessageEvent carries the full persisted message to the receiver.
func NewMessageEvent(m *Message) Event {
	return Event{Type: EventNewMessage, Data: m}
}

// MessagesReadEvent tells a sender their messages were read.
func MessagesReadEvent(readerID string) Event {
	return Event{Type: EventMessagesRead, Data: MessagesReadPayload{ReaderID: readerID}}
}

// TypingStartEvent signals that senderID started typing in the chat.
func TypingStartEvent(senderID, chatID string) Event {
	return Event{Type: EventTypingStart, Data: TypingPayload{SenderID: senderID, ChatID: chatID}}
}

// TypingStopEvent signals that senderID stopped typing in the chat.
func TypingStopEvent(senderID, chatID string) Event {
	return Event{Type: EventTypingStop, Data: TypingPayload{SenderID: senderID, ChatID: chatID}}
}

// NewNotificationEvent carries a freshly persisted notification.
func NewNotificationEvent(n *Notification) Event {
	return Event{Type: EventNewNotification, Data: n}
}
