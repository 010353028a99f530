package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"enrolld/internal/enroll/models"
)

const (
	scheduledKey = "enroll:retry:scheduled"
	pendingKey   = "enroll:retry:pending"
)

// claimScript atomically moves due members from the scheduled set to the
// pending set, stamping each with a visibility deadline. Returning the moved
// members in the same step is what makes a claim exclusive: two consumers
// can never both receive the same member.
var claimScript = redis.NewScript(`
	local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
	for _, member in ipairs(due) do
		redis.call('ZREM', KEYS[1], member)
		redis.call('ZADD', KEYS[2], ARGV[3], member)
	end
	return due
`)

// reapScript returns expired pending members to the scheduled set so crashed
// consumers cannot strand envelopes. This is the at-least-once half of the
// queue contract.
var reapScript = redis.NewScript(`
	local expired = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
	for _, member in ipairs(expired) do
		redis.call('ZREM', KEYS[2], member)
		redis.call('ZADD', KEYS[1], ARGV[1], member)
	end
	return #expired
`)

// wireEnvelope is the sorted-set member format. The ID keeps members unique
// so two envelopes with identical payloads never collapse into one entry.
type wireEnvelope struct {
	ID       string          `json:"id"`
	Envelope models.Envelope `json:"envelope"`
}

// Redis is the production retry queue: two sorted sets, one keyed by ready-at
// time and one by visibility deadline.
type Redis struct {
	client     redis.Cmdable
	clock      func() time.Time
	visibility time.Duration
}

// RedisOption configures a Redis queue.
type RedisOption func(*Redis)

// WithRedisClock sets the clock function for testability.
func WithRedisClock(clock func() time.Time) RedisOption {
	return func(q *Redis) {
		if clock != nil {
			q.clock = clock
		}
	}
}

// WithVisibilityTimeout sets how long a claimed envelope stays invisible.
func WithVisibilityTimeout(d time.Duration) RedisOption {
	return func(q *Redis) {
		if d > 0 {
			q.visibility = d
		}
	}
}

// NewRedis constructs a redis-backed retry queue.
func NewRedis(client redis.Cmdable, opts ...RedisOption) *Redis {
	q := &Redis{
		client:     client,
		clock:      time.Now,
		visibility: time.Minute,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(q)
		}
	}
	return q
}

// Enqueue schedules the envelope to become visible after delay.
func (q *Redis) Enqueue(ctx context.Context, env models.Envelope, delay time.Duration) error {
	member, err := json.Marshal(wireEnvelope{ID: uuid.NewString(), Envelope: env})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	readyAt := float64(q.clock().Add(delay).UnixMilli())
	if err := q.client.ZAdd(ctx, scheduledKey, redis.Z{Score: readyAt, Member: string(member)}).Err(); err != nil {
		return fmt.Errorf("enqueue envelope: %w", err)
	}
	return nil
}

// Dequeue reaps expired claims, then claims up to max due envelopes.
func (q *Redis) Dequeue(ctx context.Context, max int) ([]Delivery, error) {
	now := strconv.FormatInt(q.clock().UnixMilli(), 10)
	limit := strconv.Itoa(max)

	if err := reapScript.Run(ctx, q.client, []string{scheduledKey, pendingKey}, now, limit).Err(); err != nil {
		return nil, fmt.Errorf("reap expired claims: %w", err)
	}

	deadline := strconv.FormatInt(q.clock().Add(q.visibility).UnixMilli(), 10)
	raw, err := claimScript.Run(ctx, q.client, []string{scheduledKey, pendingKey}, now, limit, deadline).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("claim due envelopes: %w", err)
	}

	deliveries := make([]Delivery, 0, len(raw))
	for _, member := range raw {
		var wire wireEnvelope
		if err := json.Unmarshal([]byte(member), &wire); err != nil {
			// Undecodable member: drop it from pending so it cannot
			// loop forever, and surface the problem.
			_ = q.client.ZRem(ctx, pendingKey, member).Err()
			return deliveries, fmt.Errorf("unmarshal envelope: %w", err)
		}
		deliveries = append(deliveries, Delivery{Envelope: wire.Envelope, Receipt: member})
	}
	return deliveries, nil
}

// Ack consumes a delivery.
func (q *Redis) Ack(ctx context.Context, d Delivery) error {
	if err := q.client.ZRem(ctx, pendingKey, d.Receipt).Err(); err != nil {
		return fmt.Errorf("ack envelope: %w", err)
	}
	return nil
}

// Depth reports envelopes waiting in the scheduled set.
func (q *Redis) Depth(ctx context.Context) (int64, error) {
	n, err := q.client.ZCard(ctx, scheduledKey).Result()
	if err != nil {
		return 0, fmt.Errorf("queue depth: %w", err)
	}
	return n, nil
}
