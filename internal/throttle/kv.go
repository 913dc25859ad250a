package throttle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// DefaultBucket is the JetStream key-value bucket holding sender cooldowns.
const DefaultBucket = "SENDER_COOLDOWN"

type keyCreator interface {
	Create(ctx context.Context, key string, value []byte) (uint64, error)
}

// KV is a Limiter shared by every instance connected to the same JetStream
// domain. The bucket TTL equals the cooldown, so a key exists exactly while
// its sender is cooling down. Expiry is enforced by the server and may lag
// the nominal cooldown slightly.
type KV struct {
	kv keyCreator
}

// NewKV opens the cooldown bucket, creating it when missing.
func NewKV(ctx context.Context, js jetstream.JetStream, bucket string, cooldown time.Duration) (*KV, error) {
	if bucket == "" {
		bucket = DefaultBucket
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}

	kv, err := js.KeyValue(ctx, bucket)
	if errors.Is(err, jetstream.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:      bucket,
			Description: "Per-sender message cooldown",
			TTL:         cooldown,
			History:     1,
			Storage:     jetstream.MemoryStorage,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open cooldown bucket: %w", err)
	}

	return &KV{kv: kv}, nil
}

// Allow creates the sender's key; an existing key means the sender is still
// cooling down.
func (l *KV) Allow(ctx context.Context, key string, now time.Time) (bool, error) {
	_, err := l.kv.Create(ctx, key, []byte(now.UTC().Format(time.RFC3339Nano)))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, jetstream.ErrKeyExists) {
		return false, nil
	}
	return false, fmt.Errorf("failed to record cooldown: %w", err)
}
