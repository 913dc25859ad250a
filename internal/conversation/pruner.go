package conversation

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/speednet-khulna/messenger-bot/internal/store"
	"github.com/speednet-khulna/messenger-bot/pkg/logger"
	"github.com/speednet-khulna/messenger-bot/pkg/metrics"
)

// Defaults for history pruning.
const (
	DefaultThreshold = 10
	DefaultBatch     = 5
)

// Pruner summarizes and deletes the oldest turns once a sender's history
// grows past the threshold.
type Pruner struct {
	store      store.Conversations
	summarizer Summarizer
	threshold  int
	batch      int
	logger     *logger.Logger

	mu       sync.Mutex
	inflight map[string]bool
}

// NewPruner creates a pruner. Non-positive sizes use the defaults.
func NewPruner(s store.Conversations, summarizer Summarizer, threshold, batch int, log *logger.Logger) *Pruner {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if batch <= 0 {
		batch = DefaultBatch
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Pruner{
		store:      s,
		summarizer: summarizer,
		threshold:  threshold,
		batch:      batch,
		logger:     log,
		inflight:   make(map[string]bool),
	}
}

// PruneIfNeeded folds the oldest batch into the summary when the history is
// longer than the threshold. It reports whether a prune happened. When the
// summarizer fails nothing is changed and the error is returned; the next
// call retries.
func (p *Pruner) PruneIfNeeded(ctx context.Context, pageID, senderID string) (bool, error) {
	key := pageID + ":" + senderID
	if !p.acquire(key) {
		return false, nil
	}
	defer p.release(key)

	count, err := p.store.Count(ctx, pageID, senderID)
	if err != nil {
		return false, err
	}
	if count <= p.threshold {
		return false, nil
	}

	oldest, err := p.store.Oldest(ctx, pageID, senderID, p.batch)
	if err != nil {
		return false, err
	}
	profile, err := p.store.Profile(ctx, pageID, senderID)
	if err != nil {
		return false, err
	}

	summary, err := p.summarizer.Summarize(ctx, profile.Summary, oldest)
	if err != nil {
		metrics.PrunesTotal.WithLabelValues("summarize_error").Inc()
		return false, err
	}

	ids := make([]int64, len(oldest))
	for i, m := range oldest {
		ids[i] = m.ID
	}
	if err := p.store.ReplaceSummaryAndPrune(ctx, pageID, senderID, summary, ids); err != nil {
		metrics.PrunesTotal.WithLabelValues("store_error").Inc()
		return false, fmt.Errorf("failed to store summary: %w", err)
	}

	metrics.PrunesTotal.WithLabelValues("ok").Inc()
	p.logger.Debug("History pruned",
		zap.String("page_id", pageID),
		zap.String("sender_id", senderID),
		zap.Int("pruned", len(ids)),
		zap.Int("remaining", count-len(ids)),
	)
	return true, nil
}

// acquire keeps two workers from summarizing the same batch twice.
func (p *Pruner) acquire(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inflight[key] {
		return false
	}
	p.inflight[key] = true
	return true
}

func (p *Pruner) release(key string) {
	p.mu.Lock()
	delete(p.inflight, key)
	p.mu.Unlock()
}
