package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/speednet-khulna/messenger-bot/internal/middleware"
	"github.com/speednet-khulna/messenger-bot/internal/model"
	"github.com/speednet-khulna/messenger-bot/internal/store"
	"github.com/speednet-khulna/messenger-bot/pkg/logger"
)

const jwtSecret = "inspect-secret"

type stubEvents struct {
	err error
}

func (s stubEvents) Events(_ context.Context, pageID, senderID string, _ time.Time, _ int) ([]model.ConversationEvent, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []model.ConversationEvent{{PageID: pageID, SenderID: senderID, Type: model.EventTypeTurn}}, nil
}

func newInspectionRouter(t *testing.T, events EventReader) (http.Handler, store.Store) {
	t.Helper()
	st := store.NewMemory()
	ctx := context.Background()
	for _, text := range []string{"hello", "welcome", "package?", "20 Mbps"} {
		st.Append(ctx, &model.Message{PageID: "111", SenderID: "222", Role: model.RoleUser, Content: text})
	}
	st.UpsertExternalID(ctx, "111", "222", "abc123")

	h := NewConversationHandler(st, events, logger.NewNop())
	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(jwtSecret))
		r.Use(middleware.RequireScope(middleware.ScopeConversationsRead))
		r.Get("/pages/{pageID}/senders/{senderID}/profile", h.Profile)
		r.Get("/pages/{pageID}/senders/{senderID}/history", h.History)
		r.Get("/pages/{pageID}/senders/{senderID}/events", h.Events)
	})
	return r, st
}

func get(t *testing.T, h http.Handler, path, pageRestriction string) *httptest.ResponseRecorder {
	t.Helper()
	token, err := middleware.NewToken(jwtSecret, "ops", pageRestriction, []string{middleware.ScopeConversationsRead}, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestProfileEndpoint(t *testing.T) {
	h, _ := newInspectionRouter(t, nil)

	rec := get(t, h, "/api/v1/pages/111/senders/222/profile", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}
	var p model.Profile
	json.NewDecoder(rec.Body).Decode(&p)
	if p.ExternalID != "abc123" {
		t.Errorf("profile = %+v", p)
	}

	if rec := get(t, h, "/api/v1/pages/111/senders/222/profile", "999"); rec.Code != http.StatusForbidden {
		t.Errorf("other page token status = %d", rec.Code)
	}
	if rec := get(t, h, "/api/v1/pages/abc/senders/222/profile", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad page id status = %d", rec.Code)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	h, _ := newInspectionRouter(t, nil)

	rec := get(t, h, "/api/v1/pages/111/senders/222/history?limit=2", "111")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp model.HistoryResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if len(resp.Messages) != 2 || resp.Messages[0].Content != "package?" || resp.Messages[1].Content != "20 Mbps" {
		t.Errorf("history = %+v", resp.Messages)
	}

	if rec := get(t, h, "/api/v1/pages/111/senders/222/history?limit=zero", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d", rec.Code)
	}

	rec = get(t, h, "/api/v1/pages/111/senders/555/history", "")
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Messages == nil || len(resp.Messages) != 0 {
		t.Errorf("unknown sender history = %+v", resp.Messages)
	}
}

func TestEventsEndpoint(t *testing.T) {
	h, _ := newInspectionRouter(t, nil)
	if rec := get(t, h, "/api/v1/pages/111/senders/222/events", ""); rec.Code != http.StatusNotImplemented {
		t.Errorf("without stream status = %d", rec.Code)
	}

	h, _ = newInspectionRouter(t, stubEvents{})
	if rec := get(t, h, "/api/v1/pages/111/senders/222/events?since=2024-01-01T00:00:00Z", ""); rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
	if rec := get(t, h, "/api/v1/pages/111/senders/222/events?since=yesterday", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad since status = %d", rec.Code)
	}

	h, _ = newInspectionRouter(t, stubEvents{err: errors.New("nats down")})
	if rec := get(t, h, "/api/v1/pages/111/senders/222/events", ""); rec.Code != http.StatusBadGateway {
		t.Errorf("stream failure status = %d", rec.Code)
	}
}

func TestReady(t *testing.T) {
	ok := NewHealthHandler("up", map[string]Pinger{"store": store.NewMemory(), "nats": nil})
	rec := httptest.NewRecorder()
	ok.Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("ready = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	ok.Home(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Body.String() != "up" {
		t.Errorf("home = %q", rec.Body.String())
	}
}
