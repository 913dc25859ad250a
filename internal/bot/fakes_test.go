package bot

import (
	"context"
	"errors"
	"sync"

	"github.com/speednet-khulna/messenger-bot/internal/llm"
	"github.com/speednet-khulna/messenger-bot/internal/messenger"
	"github.com/speednet-khulna/messenger-bot/internal/model"
	"github.com/speednet-khulna/messenger-bot/internal/store"
)

type sent struct {
	kind    string
	to      string
	text    string
	image   string
	action  messenger.Action
	replies []messenger.QuickReply
}

type fakeSender struct {
	mu      sync.Mutex
	sent    []sent
	profile messenger.UserProfile
	lookups int
}

func (f *fakeSender) SendText(_ context.Context, _, to, text string, replies ...messenger.QuickReply) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{kind: "text", to: to, text: text, replies: replies})
	return nil
}

func (f *fakeSender) SendImage(_ context.Context, _, to, url, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{kind: "image", to: to, image: url})
	return nil
}

func (f *fakeSender) SendAction(_ context.Context, _, to string, action messenger.Action) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{kind: "action", to: to, action: action})
	return nil
}

func (f *fakeSender) UserProfile(context.Context, string, string) (messenger.UserProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	return f.profile, nil
}

func (f *fakeSender) texts() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sent
	for _, s := range f.sent {
		if s.kind == "text" {
			out = append(out, s)
		}
	}
	return out
}

func (f *fakeSender) all() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.sent...)
}

type fakeLLM struct {
	mu    sync.Mutex
	reqs  []*llm.CompletionRequest
	reply string
	err   error
}

func (f *fakeLLM) Complete(_ context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return &llm.CompletionResponse{Content: f.reply, TokensIn: 10, TokensOut: 5}, nil
}

func (f *fakeLLM) Name() string { return "fake" }

func (f *fakeLLM) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reqs)
}

type fakePublisher struct {
	mu     sync.Mutex
	events []model.ConversationEvent
}

func (f *fakePublisher) Publish(_ context.Context, ev *model.ConversationEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, *ev)
	return nil
}

func (f *fakePublisher) types() []model.EventType {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.EventType
	for _, e := range f.events {
		out = append(out, e.Type)
	}
	return out
}

type fakePruner struct {
	mu    sync.Mutex
	calls int
}

func (f *fakePruner) PruneIfNeeded(context.Context, string, string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return false, nil
}

// failingStore fails every write to history.
type failingStore struct {
	store.Store
}

func (failingStore) Append(context.Context, *model.Message) error {
	return errors.New("disk full")
}

// outageStore fails tenant lookups while down is set.
type outageStore struct {
	store.Store
	down bool
}

func (s *outageStore) GetTenant(ctx context.Context, pageID string) (model.Tenant, error) {
	if s.down {
		return model.Tenant{}, errors.New("connection refused")
	}
	return s.Store.GetTenant(ctx, pageID)
}
