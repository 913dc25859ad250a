package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/speednet-khulna/messenger-bot/internal/middleware"
	"github.com/speednet-khulna/messenger-bot/internal/model"
	"github.com/speednet-khulna/messenger-bot/internal/store"
	"github.com/speednet-khulna/messenger-bot/pkg/logger"
)

// EventReader reads published conversation events.
type EventReader interface {
	Events(ctx context.Context, pageID, senderID string, since time.Time, limit int) ([]model.ConversationEvent, error)
}

// ConversationHandler serves the read-only conversation inspection API.
type ConversationHandler struct {
	store  store.Conversations
	events EventReader
	logger *logger.Logger
}

// NewConversationHandler creates a conversation handler. events may be nil
// when no event stream is configured.
func NewConversationHandler(s store.Conversations, events EventReader, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{
		store:  s,
		events: events,
		logger: log,
	}
}

// params validates the page and sender URL parameters and the token's page
// restriction. It writes the error response itself.
func (h *ConversationHandler) params(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	pageID := chi.URLParam(r, "pageID")
	senderID := chi.URLParam(r, "senderID")

	if err := middleware.ValidatePageID(pageID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", "", false
	}
	if err := middleware.ValidateSenderID(senderID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", "", false
	}
	if !middleware.CanAccessPage(r.Context(), pageID) {
		writeError(w, http.StatusForbidden, "token not valid for this page")
		return "", "", false
	}
	return pageID, senderID, true
}

// Profile handles GET /api/v1/pages/{pageID}/senders/{senderID}/profile
func (h *ConversationHandler) Profile(w http.ResponseWriter, r *http.Request) {
	pageID, senderID, ok := h.params(w, r)
	if !ok {
		return
	}

	profile, err := h.store.Profile(r.Context(), pageID, senderID)
	if err != nil {
		h.logger.Error("failed to load profile", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load profile")
		return
	}

	writeJSON(w, http.StatusOK, profile)
}

// History handles GET /api/v1/pages/{pageID}/senders/{senderID}/history
func (h *ConversationHandler) History(w http.ResponseWriter, r *http.Request) {
	pageID, senderID, ok := h.params(w, r)
	if !ok {
		return
	}

	limit, err := middleware.ParseLimit(r.URL.Query().Get("limit"), 20, 100)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	msgs, err := h.store.History(r.Context(), pageID, senderID, limit)
	if err != nil {
		h.logger.Error("failed to load history", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	if msgs == nil {
		msgs = []model.Message{}
	}

	writeJSON(w, http.StatusOK, model.HistoryResponse{
		PageID:   pageID,
		SenderID: senderID,
		Messages: msgs,
	})
}

// Events handles GET /api/v1/pages/{pageID}/senders/{senderID}/events
// Supports ?since=<RFC3339> and ?limit=N.
func (h *ConversationHandler) Events(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		writeError(w, http.StatusNotImplemented, "event stream not configured")
		return
	}
	pageID, senderID, ok := h.params(w, r)
	if !ok {
		return
	}

	limit, err := middleware.ParseLimit(r.URL.Query().Get("limit"), 50, 500)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var since time.Time
	if s := r.URL.Query().Get("since"); s != "" {
		if since, err = time.Parse(time.RFC3339, s); err != nil {
			writeError(w, http.StatusBadRequest, "since must be an RFC3339 time")
			return
		}
	}

	events, err := h.events.Events(r.Context(), pageID, senderID, since, limit)
	if err != nil {
		h.logger.Error("failed to read events", zap.Error(err))
		writeError(w, http.StatusBadGateway, "failed to read events")
		return
	}
	if events == nil {
		events = []model.ConversationEvent{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"page_id":   pageID,
		"sender_id": senderID,
		"events":    events,
	})
}
