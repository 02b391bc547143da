package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	identity "github.com/MrEthical07/goIdentity"
	"github.com/redis/go-redis/v9"
)

// DefaultQueueKey is the Redis list messages are pushed to.
const DefaultQueueKey = "identity:notify"

// ErrQueueEmpty is returned by Dequeue when the wait timed out.
var ErrQueueEmpty = errors.New("notify: queue empty")

// Kind tells email and SMS envelopes apart.
type Kind string

const (
	KindEmail Kind = "email"
	KindSMS   Kind = "sms"
)

// Envelope is the queued form of a message.
type Envelope struct {
	Kind       Kind                   `json:"kind"`
	Email      *identity.EmailMessage `json:"email,omitempty"`
	SMS        *identity.SMSMessage   `json:"sms,omitempty"`
	EnqueuedAt time.Time              `json:"enqueuedAt"`
}

// RedisQueue is a FIFO of envelopes in a Redis list: producers LPUSH,
// consumers BRPOP.
type RedisQueue struct {
	rdb redis.UniversalClient
	key string
}

func NewRedisQueue(rdb redis.UniversalClient, key string) *RedisQueue {
	if key == "" {
		key = DefaultQueueKey
	}
	return &RedisQueue{rdb: rdb, key: key}
}

func (q *RedisQueue) EnqueueEmail(ctx context.Context, msg identity.EmailMessage) error {
	return q.push(ctx, Envelope{Kind: KindEmail, Email: &msg})
}

func (q *RedisQueue) EnqueueSMS(ctx context.Context, msg identity.SMSMessage) error {
	return q.push(ctx, Envelope{Kind: KindSMS, SMS: &msg})
}

func (q *RedisQueue) push(ctx context.Context, env Envelope) error {
	env.EnqueuedAt = time.Now().UTC()
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	if err := q.rdb.LPush(ctx, q.key, raw).Err(); err != nil {
		return fmt.Errorf("notify: enqueue: %w", err)
	}
	return nil
}

// Dequeue blocks up to wait for the oldest envelope.
func (q *RedisQueue) Dequeue(ctx context.Context, wait time.Duration) (Envelope, error) {
	res, err := q.rdb.BRPop(ctx, wait, q.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Envelope{}, ErrQueueEmpty
		}
		return Envelope{}, fmt.Errorf("notify: dequeue: %w", err)
	}
	// res is [key, value].
	var env Envelope
	if err := json.Unmarshal([]byte(res[1]), &env); err != nil {
		return Envelope{}, fmt.Errorf("notify: decode envelope: %w", err)
	}
	return env, nil
}

// Len returns the number of queued envelopes.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.key).Result()
}
