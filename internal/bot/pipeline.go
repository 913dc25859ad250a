// Package bot turns inbound Messenger events into replies: tenant lookup,
// throttling, routing, history bookkeeping and sending.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/speednet-khulna/messenger-bot/internal/knowledge"
	"github.com/speednet-khulna/messenger-bot/internal/llm"
	"github.com/speednet-khulna/messenger-bot/internal/messenger"
	"github.com/speednet-khulna/messenger-bot/internal/model"
	"github.com/speednet-khulna/messenger-bot/internal/store"
	"github.com/speednet-khulna/messenger-bot/internal/throttle"
	"github.com/speednet-khulna/messenger-bot/pkg/logger"
	"github.com/speednet-khulna/messenger-bot/pkg/metrics"
	"github.com/speednet-khulna/messenger-bot/pkg/tracing"
)

// Sender delivers replies to Messenger.
type Sender interface {
	SendText(ctx context.Context, token, recipientID, text string, replies ...messenger.QuickReply) error
	SendImage(ctx context.Context, token, recipientID, imageURL, followup string) error
	SendAction(ctx context.Context, token, recipientID string, action messenger.Action) error
	UserProfile(ctx context.Context, token, psid string) (messenger.UserProfile, error)
}

// Publisher receives conversation events for downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, event *model.ConversationEvent) error
}

// Pruner bounds a sender's history.
type Pruner interface {
	PruneIfNeeded(ctx context.Context, pageID, senderID string) (bool, error)
}

// Event is one inbound message addressed to a page.
type Event struct {
	CorrelationID string
	PageID        string
	SenderID      string
	Message       *model.InboundMessage
	ReceivedAt    time.Time
}

// NewEvent converts a webhook messaging event.
func NewEvent(correlationID string, ev model.MessagingEvent) Event {
	return Event{
		CorrelationID: correlationID,
		PageID:        ev.Recipient.ID,
		SenderID:      ev.Sender.ID,
		Message:       ev.Message,
		ReceivedAt:    time.Now(),
	}
}

// Config tunes the pipeline.
type Config struct {
	DefaultPageID string
	// SingleTenant answers every event as DefaultPageID, for deployments
	// that do not know their page id.
	SingleTenant    bool
	Hotline         string
	PackageImageURL string
	PackageKeywords []string
	Triggers        []knowledge.Trigger

	Model         string
	MaxTokens     int
	Temperature   float64
	LLMTimeout    time.Duration
	HistoryWindow int
}

// DefaultPackageKeywords send a message straight to the packages route.
var DefaultPackageKeywords = []string{"package", "প্যাকেজ", "price", "দাম", "mbps", "এমবিপিএস"}

// Deps are the collaborators of a pipeline. Publisher and Pruner are optional.
type Deps struct {
	Store     store.Store
	Limiter   throttle.Limiter
	LLM       llm.Client
	Sender    Sender
	Pruner    Pruner
	Publisher Publisher
	Logger    *logger.Logger
	Now       func() time.Time
}

// Pipeline processes inbound events one at a time; it is safe for concurrent
// use by the worker pool.
type Pipeline struct {
	cfg       Config
	store     store.Store
	limiter   throttle.Limiter
	llm       llm.Client
	sender    Sender
	pruner    Pruner
	publisher Publisher
	logger    *logger.Logger
	now       func() time.Time

	kb       *knowledge.Cache
	selector *knowledge.Selector
	router   *Router

	// last tenant loaded per page, used to reach the sender when the store
	// is down
	mu      sync.RWMutex
	tenants map[string]model.Tenant
}

// NewPipeline creates a pipeline.
func NewPipeline(cfg Config, deps Deps) *Pipeline {
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = 6
	}
	if cfg.LLMTimeout <= 0 {
		cfg.LLMTimeout = 60 * time.Second
	}
	if cfg.Triggers == nil {
		cfg.Triggers = knowledge.DefaultTriggers
	}
	if cfg.PackageKeywords == nil {
		cfg.PackageKeywords = DefaultPackageKeywords
	}
	keywords := make([]string, len(cfg.PackageKeywords))
	for i, kw := range cfg.PackageKeywords {
		keywords[i] = strings.ToLower(kw)
	}
	cfg.PackageKeywords = keywords
	if deps.Logger == nil {
		deps.Logger = logger.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	p := &Pipeline{
		cfg:       cfg,
		store:     deps.Store,
		limiter:   deps.Limiter,
		llm:       deps.LLM,
		sender:    deps.Sender,
		pruner:    deps.Pruner,
		publisher: deps.Publisher,
		logger:    deps.Logger,
		now:       deps.Now,
		kb:        knowledge.NewCache(),
		tenants:   make(map[string]model.Tenant),
		selector:  knowledge.NewSelector(cfg.Triggers, NoInfoText(cfg.Hotline)),
	}
	p.router = NewRouter(p.externalIDRoute(), p.greetingRoute(), p.packagesRoute(), p.aiRoute())
	return p
}

// Process handles one event. Failures are logged and, where a reply is
// still possible, answered with the fallback text.
func (p *Pipeline) Process(ctx context.Context, ev Event) {
	ctx, span := tracing.Tracer("bot").Start(ctx, "pipeline.process")
	defer span.End()

	if ev.CorrelationID == "" {
		ev.CorrelationID = uuid.NewString()
	}
	pageID := ev.PageID
	if pageID == "" || p.cfg.SingleTenant {
		pageID = p.cfg.DefaultPageID
	}
	log := p.logger.WithContext(ev.CorrelationID, pageID, ev.SenderID)
	span.SetAttributes(attribute.String("page_id", pageID), attribute.String("sender_id", ev.SenderID))

	tenant, err := p.store.GetTenant(ctx, pageID)
	if errors.Is(err, store.ErrTenantNotFound) {
		p.forgetTenant(pageID)
		log.Warn("No tenant for page, dropping event")
		metrics.WebhookEventsTotal.WithLabelValues("unknown_tenant").Inc()
		return
	}
	if err != nil {
		log.Error("Failed to load tenant", zap.Error(err))
		metrics.WebhookEventsTotal.WithLabelValues("store_error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "tenant lookup failed")
		cached, ok := p.cachedTenant(pageID)
		if !ok {
			log.Warn("No cached tenant, cannot reply")
			return
		}
		if !p.allow(ctx, log, pageID, ev.SenderID) {
			return
		}
		p.sendAction(context.WithoutCancel(ctx), log, cached, ev.SenderID, messenger.ActionTypingOff)
		p.sendText(ctx, log, cached, ev.SenderID, Reply{Text: FallbackText(p.cfg.Hotline)})
		p.publish(ctx, log, &model.ConversationEvent{
			PageID: pageID, SenderID: ev.SenderID, Type: model.EventTypeFallback, Reason: err.Error(),
		})
		return
	}
	p.CacheTenant(tenant)

	if !p.allow(ctx, log, pageID, ev.SenderID) {
		return
	}

	text := strings.TrimSpace(ev.Message.Input())
	if text == "" {
		p.sendText(ctx, log, tenant, ev.SenderID, Reply{Text: nonTextText})
		metrics.WebhookEventsTotal.WithLabelValues("non_text").Inc()
		return
	}

	p.sendAction(ctx, log, tenant, ev.SenderID, messenger.ActionTypingOn)

	route, err := p.answer(ctx, log, tenant, ev.SenderID, text)

	// The typing indicator is cleared even when the request was cancelled.
	p.sendAction(context.WithoutCancel(ctx), log, tenant, ev.SenderID, messenger.ActionTypingOff)

	if err != nil {
		log.Error("Failed to answer, sending fallback", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "answer failed")
		metrics.WebhookEventsTotal.WithLabelValues("store_error").Inc()
		p.sendText(ctx, log, tenant, ev.SenderID, Reply{Text: FallbackText(p.cfg.Hotline)})
		p.publish(ctx, log, &model.ConversationEvent{
			PageID: pageID, SenderID: ev.SenderID, Type: model.EventTypeFallback, Route: route, Reason: err.Error(),
		})
		return
	}
	metrics.WebhookEventsTotal.WithLabelValues("answered").Inc()

	p.prune(ctx, log, pageID, ev.SenderID)
}

// allow applies the sender cooldown. Limiter errors let the message through.
func (p *Pipeline) allow(ctx context.Context, log *logger.Logger, pageID, senderID string) bool {
	allowed, err := p.limiter.Allow(ctx, throttle.Key(pageID, senderID), p.now())
	if err != nil {
		log.Warn("Throttle unavailable, allowing message", zap.Error(err))
		return true
	}
	if !allowed {
		log.Debug("Sender throttled")
		metrics.ThrottledTotal.WithLabelValues(pageID).Inc()
		metrics.WebhookEventsTotal.WithLabelValues("throttled").Inc()
		p.publish(ctx, log, &model.ConversationEvent{PageID: pageID, SenderID: senderID, Type: model.EventTypeThrottled})
	}
	return allowed
}

// CacheTenant records the last known tenant of a page.
func (p *Pipeline) CacheTenant(t model.Tenant) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tenants[t.PageID] = t
}

func (p *Pipeline) cachedTenant(pageID string) (model.Tenant, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	t, ok := p.tenants[pageID]
	return t, ok
}

func (p *Pipeline) forgetTenant(pageID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.tenants, pageID)
}

// answer routes the question, records both turns and sends the reply. It
// returns an error only for store failures.
func (p *Pipeline) answer(ctx context.Context, log *logger.Logger, tenant model.Tenant, senderID, text string) (string, error) {
	profile, err := p.ensureProfile(ctx, log, tenant, senderID)
	if err != nil {
		return "", err
	}

	turn := Turn{
		Tenant:   tenant,
		SenderID: senderID,
		Text:     text,
		Profile:  profile,
		Base:     p.kb.Get(tenant.PageID, tenant.KnowledgeBase),
	}
	route, reply, err := p.router.Dispatch(ctx, turn)
	if err != nil {
		return route, err
	}
	metrics.RoutesTotal.WithLabelValues(tenant.PageID, route).Inc()
	log.Debug("Message routed", zap.String("route", route))

	question := &model.Message{PageID: tenant.PageID, SenderID: senderID, Role: model.RoleUser, Content: text}
	if err := p.store.Append(ctx, question); err != nil {
		return route, fmt.Errorf("failed to store question: %w", err)
	}
	metrics.MessagesTotal.WithLabelValues(tenant.PageID, string(model.RoleUser)).Inc()

	answer := &model.Message{PageID: tenant.PageID, SenderID: senderID, Role: model.RoleAssistant, Content: reply.Text}
	if err := p.store.Append(ctx, answer); err != nil {
		return route, fmt.Errorf("failed to store answer: %w", err)
	}
	metrics.MessagesTotal.WithLabelValues(tenant.PageID, string(model.RoleAssistant)).Inc()

	p.sendText(ctx, log, tenant, senderID, reply)

	eventType := model.EventTypeTurn
	if reply.Fallback {
		eventType = model.EventTypeFallback
	}
	p.publish(ctx, log, &model.ConversationEvent{
		PageID:   tenant.PageID,
		SenderID: senderID,
		Type:     eventType,
		Route:    route,
		Message:  answer,
		Metadata: map[string]any{"question": text},
	})
	return route, nil
}

// ensureProfile loads the sender's profile and fills in the display name on
// first contact. The Graph lookup is best effort.
func (p *Pipeline) ensureProfile(ctx context.Context, log *logger.Logger, tenant model.Tenant, senderID string) (model.Profile, error) {
	profile, err := p.store.Profile(ctx, tenant.PageID, senderID)
	if err != nil {
		return profile, fmt.Errorf("failed to load profile: %w", err)
	}
	if profile.DisplayName != "" {
		return profile, nil
	}

	lookupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	user, err := p.sender.UserProfile(lookupCtx, tenant.AccessToken, senderID)
	if err != nil {
		log.Debug("Profile lookup failed", zap.Error(err))
		return profile, nil
	}
	name := user.Name()
	if name == "" {
		return profile, nil
	}
	if err := p.store.UpsertDisplayName(ctx, tenant.PageID, senderID, name); err != nil {
		return profile, fmt.Errorf("failed to store display name: %w", err)
	}
	profile.DisplayName = name
	return profile, nil
}

func (p *Pipeline) prune(ctx context.Context, log *logger.Logger, pageID, senderID string) {
	if p.pruner == nil {
		return
	}
	pruned, err := p.pruner.PruneIfNeeded(ctx, pageID, senderID)
	if err != nil {
		log.Warn("History prune failed, will retry on next message", zap.Error(err))
		return
	}
	if pruned {
		p.publish(ctx, log, &model.ConversationEvent{PageID: pageID, SenderID: senderID, Type: model.EventTypePruned})
	}
}

func (p *Pipeline) sendText(ctx context.Context, log *logger.Logger, tenant model.Tenant, recipientID string, reply Reply) {
	if reply.ImageURL != "" {
		err := p.sender.SendImage(ctx, tenant.AccessToken, recipientID, reply.ImageURL, "")
		metrics.RecordSend("image", err)
		if err != nil {
			log.Error("Failed to send image", zap.Error(err))
		}
	}
	err := p.sender.SendText(ctx, tenant.AccessToken, recipientID, reply.Text, reply.QuickReplies...)
	metrics.RecordSend("text", err)
	if err != nil {
		log.Error("Failed to send reply", zap.Error(err))
	}
}

func (p *Pipeline) sendAction(ctx context.Context, log *logger.Logger, tenant model.Tenant, recipientID string, action messenger.Action) {
	err := p.sender.SendAction(ctx, tenant.AccessToken, recipientID, action)
	metrics.RecordSend(string(action), err)
	if err != nil {
		log.Debug("Failed to send action", zap.String("action", string(action)), zap.Error(err))
	}
}

func (p *Pipeline) publish(ctx context.Context, log *logger.Logger, event *model.ConversationEvent) {
	if p.publisher == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := p.publisher.Publish(pubCtx, event); err != nil {
		log.Warn("Failed to publish conversation event", zap.String("type", string(event.Type)), zap.Error(err))
	}
}
