package model

import (
	"time"
)

// Profile is the per-sender conversation state kept next to the history:
// the running summary of pruned turns plus identity details the sender
// shared. One profile exists per (page, sender).
type Profile struct {
	PageID      string    `json:"page_id"`
	SenderID    string    `json:"sender_id"`
	Summary     string    `json:"summary"`
	ExternalID  string    `json:"external_id,omitempty"`
	DisplayName string    `json:"display_name,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}

// Tenant is a connected Facebook page with its own credentials and
// knowledge base.
type Tenant struct {
	PageID        string    `json:"page_id"`
	AccessToken   string    `json:"-"`
	KnowledgeBase string    `json:"-"`
	BotName       string    `json:"bot_name"`
	PageName      string    `json:"page_name"`
	CreatedAt     time.Time `json:"created_at"`
}
