// Package conversation keeps per-sender history bounded by folding the
// oldest turns into a running summary.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/speednet-khulna/messenger-bot/internal/llm"
	"github.com/speednet-khulna/messenger-bot/internal/model"
	"github.com/speednet-khulna/messenger-bot/pkg/metrics"
	"github.com/speednet-khulna/messenger-bot/pkg/tracing"
)

// Summarizer folds turns into an existing summary.
type Summarizer interface {
	Summarize(ctx context.Context, previous string, turns []model.Message) (string, error)
}

const summaryInstruction = "You maintain a running summary of a customer support chat for an internet service provider. " +
	"Combine the previous summary with the new conversation lines and produce an updated concise summary. " +
	"Keep customer identifiers, reported problems, packages discussed and promises made. " +
	"Write in the language the customer used. Reply with the summary only."

// LLMSummarizer asks a completion model for the updated summary.
type LLMSummarizer struct {
	client    llm.Client
	model     string
	maxTokens int
}

// NewLLMSummarizer creates a summarizer using client and model.
func NewLLMSummarizer(client llm.Client, model string, maxTokens int) *LLMSummarizer {
	if maxTokens <= 0 {
		maxTokens = 256
	}
	return &LLMSummarizer{client: client, model: model, maxTokens: maxTokens}
}

// Summarize returns the updated summary. The previous summary is never
// modified on error.
func (s *LLMSummarizer) Summarize(ctx context.Context, previous string, turns []model.Message) (string, error) {
	ctx, span := tracing.Tracer("conversation").Start(ctx, "summarize")
	defer span.End()
	span.SetAttributes(attribute.Int("turns", len(turns)))

	start := time.Now()
	resp, err := s.client.Complete(ctx, &llm.CompletionRequest{
		Model: s.model,
		Messages: []llm.ChatMessage{
			{Role: llm.RoleSystem, Content: summaryInstruction},
			{Role: llm.RoleUser, Content: RenderPrompt(previous, turns)},
		},
		MaxTokens:   s.maxTokens,
		Temperature: 0.2,
	})
	if err != nil {
		metrics.RecordLLM(s.model, "error", time.Since(start).Seconds(), 0, 0)
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		return "", fmt.Errorf("failed to summarize: %w", err)
	}
	metrics.RecordLLM(s.model, "ok", time.Since(start).Seconds(), resp.TokensIn, resp.TokensOut)

	summary := strings.TrimSpace(resp.Content)
	if summary == "" {
		return "", errors.New("failed to summarize: empty summary")
	}
	return summary, nil
}

// RenderPrompt lays out the previous summary and the "role: content"
// transcript of turns.
func RenderPrompt(previous string, turns []model.Message) string {
	var b strings.Builder
	b.WriteString("Previous summary:\n")
	if previous == "" {
		b.WriteString("(none)")
	} else {
		b.WriteString(previous)
	}
	b.WriteString("\n\nNew conversation:\n")
	b.WriteString(Transcript(turns))
	return b.String()
}

// Transcript renders turns one per line as "role: content".
func Transcript(turns []model.Message) string {
	lines := make([]string, len(turns))
	for i, m := range turns {
		lines[i] = m.Line()
	}
	return strings.Join(lines, "\n")
}
