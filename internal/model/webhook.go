package model

// WebhookPayload is the body Facebook posts to the webhook.
type WebhookPayload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// Entry groups messaging events for one page.
type Entry struct {
	ID        string           `json:"id"`
	Time      int64            `json:"time"`
	Messaging []MessagingEvent `json:"messaging"`
}

// MessagingEvent is a single inbound event.
type MessagingEvent struct {
	Sender    Participant     `json:"sender"`
	Recipient Participant     `json:"recipient"`
	Timestamp int64           `json:"timestamp"`
	Message   *InboundMessage `json:"message,omitempty"`
	Postback  *Postback       `json:"postback,omitempty"`
}

// Participant identifies a sender or recipient.
type Participant struct {
	ID string `json:"id"`
}

// InboundMessage is the message part of an event.
type InboundMessage struct {
	MID         string       `json:"mid"`
	Text        string       `json:"text,omitempty"`
	IsEcho      bool         `json:"is_echo,omitempty"`
	QuickReply  *QuickReply  `json:"quick_reply,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// QuickReply carries the payload of a tapped quick reply button.
type QuickReply struct {
	Payload string `json:"payload"`
}

// Postback carries the payload of a tapped postback button.
type Postback struct {
	Title   string `json:"title"`
	Payload string `json:"payload"`
}

// Attachment is a non-text message part.
type Attachment struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Input returns the text the bot should answer: a quick reply payload wins
// over the typed text.
func (m *InboundMessage) Input() string {
	if m == nil {
		return ""
	}
	if m.QuickReply != nil && m.QuickReply.Payload != "" {
		return m.QuickReply.Payload
	}
	return m.Text
}
