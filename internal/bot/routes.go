package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/speednet-khulna/messenger-bot/internal/llm"
	"github.com/speednet-khulna/messenger-bot/internal/model"
	"github.com/speednet-khulna/messenger-bot/pkg/metrics"
	"github.com/speednet-khulna/messenger-bot/pkg/tracing"
)

func (p *Pipeline) externalIDRoute() Route {
	return Route{
		Name: RouteExternalID,
		Match: func(t Turn) bool {
			_, ok := ParseExternalID(t.Text)
			return ok
		},
		Handle: func(ctx context.Context, t Turn) (Reply, error) {
			id, _ := ParseExternalID(t.Text)
			if err := p.store.UpsertExternalID(ctx, t.Tenant.PageID, t.SenderID, id); err != nil {
				return Reply{}, fmt.Errorf("failed to store external id: %w", err)
			}
			return Reply{Text: externalIDConfirmText(id)}, nil
		},
	}
}

func (p *Pipeline) greetingRoute() Route {
	return Route{
		Name:  RouteGreeting,
		Match: func(t Turn) bool { return IsGreeting(t.Text) },
		Handle: func(_ context.Context, t Turn) (Reply, error) {
			return Reply{
				Text:         welcomeText(t.Tenant.BotName, t.Tenant.PageName),
				QuickReplies: WelcomeQuickReplies,
			}, nil
		},
	}
}

func (p *Pipeline) packagesRoute() Route {
	return Route{
		Name:  RoutePackages,
		Match: func(t Turn) bool { return containsAny(t.Text, p.cfg.PackageKeywords) },
		Handle: func(_ context.Context, t Turn) (Reply, error) {
			return Reply{
				Text:     packagesText(t.Base),
				ImageURL: p.cfg.PackageImageURL,
			}, nil
		},
	}
}

func (p *Pipeline) aiRoute() Route {
	return Route{
		Name:   RouteAI,
		Match:  func(Turn) bool { return true },
		Handle: p.askLLM,
	}
}

// askLLM answers from the selected knowledge, the running summary and the
// recent history. A completion failure yields the fallback reply, not an
// error.
func (p *Pipeline) askLLM(ctx context.Context, t Turn) (Reply, error) {
	history, err := p.store.History(ctx, t.Tenant.PageID, t.SenderID, p.cfg.HistoryWindow)
	if err != nil {
		return Reply{}, fmt.Errorf("failed to load history: %w", err)
	}

	req := &llm.CompletionRequest{
		Model:       p.cfg.Model,
		Messages:    p.buildMessages(t, history),
		MaxTokens:   p.cfg.MaxTokens,
		Temperature: p.cfg.Temperature,
	}

	ctx, span := tracing.Tracer("bot").Start(ctx, "llm.complete")
	defer span.End()
	span.SetAttributes(attribute.String("model", p.cfg.Model), attribute.Int("history", len(history)))

	callCtx, cancel := context.WithTimeout(ctx, p.cfg.LLMTimeout)
	defer cancel()

	start := time.Now()
	resp, err := p.llm.Complete(callCtx, req)
	if err == nil && strings.TrimSpace(resp.Content) == "" {
		err = llm.ErrEmptyCompletion
	}
	if err != nil {
		metrics.RecordLLM(p.cfg.Model, "error", time.Since(start).Seconds(), 0, 0)
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		p.logger.Error("Completion failed",
			zap.String("page_id", t.Tenant.PageID),
			zap.String("sender_id", t.SenderID),
			zap.String("provider", p.llm.Name()),
			zap.Error(err),
		)
		return Reply{Text: FallbackText(p.cfg.Hotline), Fallback: true}, nil
	}
	metrics.RecordLLM(p.cfg.Model, "ok", time.Since(start).Seconds(), resp.TokensIn, resp.TokensOut)

	return Reply{Text: strings.TrimSpace(resp.Content)}, nil
}

func (p *Pipeline) buildMessages(t Turn, history []model.Message) []llm.ChatMessage {
	msgs := make([]llm.ChatMessage, 0, len(history)+2)
	msgs = append(msgs, llm.ChatMessage{Role: llm.RoleSystem, Content: p.systemPrompt(t)})
	for _, m := range history {
		role := llm.RoleUser
		if m.Role == model.RoleAssistant {
			role = llm.RoleAssistant
		}
		msgs = append(msgs, llm.ChatMessage{Role: role, Content: m.Content})
	}
	return append(msgs, llm.ChatMessage{Role: llm.RoleUser, Content: t.Text})
}

func (p *Pipeline) systemPrompt(t Turn) string {
	var b strings.Builder
	fmt.Fprintf(&b, "তুমি %s-এর কাস্টমার সাপোর্ট সহকারী %s। ", t.Tenant.PageName, t.Tenant.BotName)
	b.WriteString("নিচের তথ্য ব্যবহার করে খুব বিনয়ের সাথে সংক্ষেপে বাংলায় উত্তর দাও। ")
	fmt.Fprintf(&b, "তথ্যে উত্তর না থাকলে অফিসে বা হটলাইনে (%s) যোগাযোগ করতে বলো।", p.cfg.Hotline)

	b.WriteString("\n\nতথ্য:\n")
	b.WriteString(p.selector.Select(t.Base, t.Text))

	if t.Profile.Summary != "" {
		b.WriteString("\n\nআগের কথোপকথনের সারাংশ:\n")
		b.WriteString(t.Profile.Summary)
	}
	if t.Profile.DisplayName != "" {
		fmt.Fprintf(&b, "\n\nগ্রাহকের নাম: %s", t.Profile.DisplayName)
	}
	if t.Profile.ExternalID != "" {
		fmt.Fprintf(&b, "\nগ্রাহকের আইডি: %s", t.Profile.ExternalID)
	}
	return b.String()
}
