// Package model defines data structures for the Messenger support bot.
package model

import (
	"time"
)

// Role represents the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one stored conversation turn. Messages are append-only and are
// removed only by history pruning.
type Message struct {
	ID        int64     `json:"id"`
	PageID    string    `json:"page_id"`
	SenderID  string    `json:"sender_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Line renders the message as a "role: content" transcript line.
func (m Message) Line() string {
	return string(m.Role) + ": " + m.Content
}

// HistoryResponse is the inspection API response for a sender's history.
type HistoryResponse struct {
	PageID   string    `json:"page_id"`
	SenderID string    `json:"sender_id"`
	Messages []Message `json:"messages"`
}
