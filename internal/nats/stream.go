package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/speednet-khulna/messenger-bot/internal/model"
	"github.com/speednet-khulna/messenger-bot/pkg/metrics"
)

const (
	// StreamName is the name of the conversation event stream.
	StreamName = "MESSENGER_EVENTS"

	// SubjectPrefix is the prefix for all conversation event subjects.
	SubjectPrefix = "bot"

	streamMaxAge = 30 * 24 * time.Hour
)

// EventPublisher publishes conversation events to JetStream.
type EventPublisher struct {
	js jetstream.JetStream
}

// NewEventPublisher creates a publisher on client's JetStream context.
func NewEventPublisher(client *Client) *EventPublisher {
	return &EventPublisher{js: client.JetStream()}
}

// EnsureStream creates the event stream when it does not exist yet.
func (p *EventPublisher) EnsureStream(ctx context.Context) error {
	_, err := p.js.Stream(ctx, StreamName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, jetstream.ErrStreamNotFound) {
		return fmt.Errorf("failed to look up stream: %w", err)
	}

	_, err = p.js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      streamMaxAge,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Duplicates:  2 * time.Minute,
		Description: "Messenger bot conversation events",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// EventSubject returns the subject for an event of one sender.
func EventSubject(pageID, senderID string, eventType model.EventType) string {
	return fmt.Sprintf("%s.%s.%s.%s", SubjectPrefix, token(pageID), token(senderID), eventType)
}

// ConversationFilter matches every event of one sender.
func ConversationFilter(pageID, senderID string) string {
	return fmt.Sprintf("%s.%s.%s.>", SubjectPrefix, token(pageID), token(senderID))
}

// token keeps ids from introducing extra subject levels or wildcards.
func token(s string) string {
	if s == "" {
		return "_"
	}
	return strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_").Replace(s)
}

// Publish sends event to the stream. ID and CreatedAt are filled in when
// empty; the ID doubles as the JetStream deduplication id.
func (p *EventPublisher) Publish(ctx context.Context, event *model.ConversationEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	_, err = p.js.Publish(ctx, EventSubject(event.PageID, event.SenderID, event.Type), data, jetstream.WithMsgID(event.ID))
	if err != nil {
		metrics.NATSPublishTotal.WithLabelValues(string(event.Type), "error").Inc()
		return fmt.Errorf("failed to publish event: %w", err)
	}
	metrics.NATSPublishTotal.WithLabelValues(string(event.Type), "ok").Inc()
	return nil
}

// Events returns up to limit events of one sender published at or after
// since, oldest first. A zero since reads from the start of the stream.
func (p *EventPublisher) Events(ctx context.Context, pageID, senderID string, since time.Time, limit int) ([]model.ConversationEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	cfg := jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{ConversationFilter(pageID, senderID)},
		DeliverPolicy:  jetstream.DeliverAllPolicy,
	}
	if !since.IsZero() {
		cfg.DeliverPolicy = jetstream.DeliverByStartTimePolicy
		cfg.OptStartTime = &since
	}

	consumer, err := p.js.OrderedConsumer(ctx, StreamName, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	batch, err := consumer.Fetch(limit, jetstream.FetchMaxWait(2*time.Second))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch events: %w", err)
	}

	var events []model.ConversationEvent
	for msg := range batch.Messages() {
		var event model.ConversationEvent
		if err := json.Unmarshal(msg.Data(), &event); err != nil {
			continue
		}
		events = append(events, event)
	}

	if err := batch.Error(); err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, jetstream.ErrNoMessages) {
		return nil, fmt.Errorf("batch error: %w", err)
	}
	return events, nil
}
