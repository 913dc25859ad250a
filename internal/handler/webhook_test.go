package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/speednet-khulna/messenger-bot/internal/bot"
	"github.com/speednet-khulna/messenger-bot/internal/middleware"
	"github.com/speednet-khulna/messenger-bot/pkg/logger"
)

type recordingSubmitter struct {
	mu     sync.Mutex
	events []bot.Event
	err    error
}

func (s *recordingSubmitter) Submit(ev bot.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, ev)
	return nil
}

const webhookBody = `{
  "object": "page",
  "entry": [{
    "id": "111",
    "time": 1700000000,
    "messaging": [
      {"sender": {"id": "222"}, "recipient": {"id": "111"}, "message": {"mid": "m1", "text": "package price?"}},
      {"sender": {"id": "111"}, "recipient": {"id": "222"}, "message": {"mid": "m2", "text": "echo", "is_echo": true}},
      {"sender": {"id": "333"}, "recipient": {"id": "111"}, "delivery": {"watermark": 1}},
      {"sender": {"id": "444"}, "recipient": {}, "message": {"mid": "m3", "quick_reply": {"payload": "বিল পেমেন্ট"}, "text": "💳 বিল পেমেন্ট"}}
    ]
  }]
}`

func TestVerify(t *testing.T) {
	h := NewWebhookHandler("secret-token", &recordingSubmitter{}, logger.NewNop())

	rec := httptest.NewRecorder()
	h.Verify(rec, httptest.NewRequest(http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=secret-token&hub.challenge=CHALLENGE", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "CHALLENGE" {
		t.Errorf("verify = %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.Verify(rec, httptest.NewRequest(http.MethodGet, "/webhook?hub.verify_token=wrong&hub.challenge=CHALLENGE", nil))
	if rec.Code != http.StatusForbidden {
		t.Errorf("mismatch status = %d", rec.Code)
	}
}

func TestReceiveQueuesMessages(t *testing.T) {
	sub := &recordingSubmitter{}
	h := NewWebhookHandler("t", sub, logger.NewNop())

	rec := httptest.NewRecorder()
	h.Receive(rec, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(webhookBody)))

	if rec.Code != http.StatusOK || rec.Body.String() != EventReceived {
		t.Fatalf("response = %d %q", rec.Code, rec.Body.String())
	}
	if len(sub.events) != 2 {
		t.Fatalf("queued %d events, want 2", len(sub.events))
	}
	if sub.events[0].PageID != "111" || sub.events[0].SenderID != "222" || sub.events[0].Message.Input() != "package price?" {
		t.Errorf("first event = %+v", sub.events[0])
	}
	if sub.events[1].PageID != "111" {
		t.Errorf("missing recipient should fall back to the entry id, got %q", sub.events[1].PageID)
	}
	if sub.events[1].Message.Input() != "বিল পেমেন্ট" {
		t.Errorf("quick reply input = %q", sub.events[1].Message.Input())
	}
}

func TestReceiveAlwaysAcknowledges(t *testing.T) {
	tests := []struct {
		name string
		body string
		sub  *recordingSubmitter
	}{
		{"malformed", `{"object":`, &recordingSubmitter{}},
		{"not a page", `{"object":"instagram","entry":[]}`, &recordingSubmitter{}},
		{"queue full", webhookBody, &recordingSubmitter{err: bot.ErrQueueFull}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewWebhookHandler("t", tt.sub, logger.NewNop())
			rec := httptest.NewRecorder()
			h.Receive(rec, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(tt.body)))
			if rec.Code != http.StatusOK || rec.Body.String() != EventReceived {
				t.Errorf("response = %d %q", rec.Code, rec.Body.String())
			}
			if len(tt.sub.events) != 0 {
				t.Errorf("queued %d events", len(tt.sub.events))
			}
		})
	}
}

func TestReceiveDropsBadSignature(t *testing.T) {
	sub := &recordingSubmitter{}
	h := middleware.HubSignature("app-secret")(http.HandlerFunc(NewWebhookHandler("t", sub, logger.NewNop()).Receive))

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(webhookBody))
	req.Header.Set("X-Hub-Signature-256", "sha256=00")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
	if len(sub.events) != 0 {
		t.Errorf("queued %d events despite bad signature", len(sub.events))
	}
}
