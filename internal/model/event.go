package model

import (
	"time"
)

// EventType represents the type of conversation event.
type EventType string

const (
	EventTypeTurn      EventType = "turn"
	EventTypeThrottled EventType = "throttled"
	EventTypeFallback  EventType = "fallback"
	EventTypePruned    EventType = "pruned"
)

// ConversationEvent is published to the event stream for downstream
// consumers. It is never read back by the bot itself.
type ConversationEvent struct {
	ID        string         `json:"id"`
	PageID    string         `json:"page_id"`
	SenderID  string         `json:"sender_id"`
	Type      EventType      `json:"type"`
	Route     string         `json:"route,omitempty"`
	Reason    string         `json:"reason,omitempty"`
	Message   *Message       `json:"message,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
