// Package handler provides the HTTP handlers of the bot server.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/speednet-khulna/messenger-bot/internal/bot"
	"github.com/speednet-khulna/messenger-bot/internal/middleware"
	"github.com/speednet-khulna/messenger-bot/internal/model"
	"github.com/speednet-khulna/messenger-bot/pkg/logger"
	"github.com/speednet-khulna/messenger-bot/pkg/metrics"
)

// EventReceived is the body of every webhook POST response.
const EventReceived = "EVENT_RECEIVED"

// Submitter queues events for asynchronous processing.
type Submitter interface {
	Submit(ev bot.Event) error
}

// WebhookHandler implements the Messenger webhook.
type WebhookHandler struct {
	verifyToken string
	submitter   Submitter
	logger      *logger.Logger
}

// NewWebhookHandler creates a webhook handler.
func NewWebhookHandler(verifyToken string, submitter Submitter, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		verifyToken: verifyToken,
		submitter:   submitter,
		logger:      log,
	}
}

// Verify handles GET /webhook, the subscription handshake.
func (h *WebhookHandler) Verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if h.verifyToken == "" || q.Get("hub.verify_token") != h.verifyToken {
		h.logger.Warn("Webhook verification failed", zap.String("mode", q.Get("hub.mode")))
		writeText(w, http.StatusForbidden, "Verification Token Mismatch")
		return
	}
	writeText(w, http.StatusOK, q.Get("hub.challenge"))
}

// Receive handles POST /webhook. It always acknowledges with 200 so Facebook
// does not redeliver; processing happens on the worker pool.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	defer writeText(w, http.StatusOK, EventReceived)

	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)
	log := h.logger.With(zap.String("correlation_id", correlationID))

	if !middleware.SignatureValid(ctx) {
		log.Warn("Webhook signature mismatch, dropping delivery")
		metrics.WebhookEventsTotal.WithLabelValues("bad_signature").Inc()
		return
	}

	var payload model.WebhookPayload
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, middleware.MaxWebhookBody)).Decode(&payload); err != nil {
		log.Warn("Malformed webhook body", zap.Error(err))
		metrics.WebhookEventsTotal.WithLabelValues("malformed").Inc()
		return
	}
	if payload.Object != "page" {
		log.Debug("Ignoring non-page webhook", zap.String("object", payload.Object))
		return
	}

	for _, entry := range payload.Entry {
		for _, ev := range entry.Messaging {
			if ev.Message == nil || ev.Message.IsEcho {
				metrics.WebhookEventsTotal.WithLabelValues("ignored").Inc()
				continue
			}
			if ev.Recipient.ID == "" {
				ev.Recipient.ID = entry.ID
			}

			err := h.submitter.Submit(bot.NewEvent(correlationID, ev))
			switch {
			case err == nil:
				metrics.WebhookEventsTotal.WithLabelValues("queued").Inc()
			case errors.Is(err, bot.ErrQueueFull):
				log.Warn("Worker queue full, dropping event",
					zap.String("page_id", ev.Recipient.ID),
					zap.String("sender_id", ev.Sender.ID),
				)
				metrics.WebhookEventsTotal.WithLabelValues("dropped").Inc()
			default:
				log.Error("Failed to queue event", zap.Error(err))
				metrics.WebhookEventsTotal.WithLabelValues("dropped").Inc()
			}
		}
	}
}
