package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"enrolld/internal/enroll/models"
)

type memoryItem struct {
	payload  string
	readyAt  time.Time
	claimed  bool
	deadline time.Time
}

// InMemory mirrors the redis queue semantics for unit tests: delayed
// visibility, claim-on-dequeue, redelivery after the visibility timeout.
type InMemory struct {
	mu         sync.Mutex
	items      map[string]*memoryItem
	clock      func() time.Time
	visibility time.Duration
}

// NewInMemory constructs an empty in-memory retry queue.
func NewInMemory() *InMemory {
	return &InMemory{
		items:      make(map[string]*memoryItem),
		clock:      time.Now,
		visibility: time.Minute,
	}
}

// WithClock overrides the queue clock. Test helper.
func (q *InMemory) WithClock(clock func() time.Time) *InMemory {
	q.clock = clock
	return q
}

// Enqueue schedules the envelope to become visible after delay.
func (q *InMemory) Enqueue(ctx context.Context, env models.Envelope, delay time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.items[uuid.NewString()] = &memoryItem{
		payload: string(payload),
		readyAt: q.clock().Add(delay),
	}
	return nil
}

// Dequeue claims up to max due envelopes.
func (q *InMemory) Dequeue(ctx context.Context, max int) ([]Delivery, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.clock()

	type due struct {
		receipt string
		item    *memoryItem
	}
	var candidates []due
	for receipt, item := range q.items {
		if item.claimed && now.After(item.deadline) {
			item.claimed = false
		}
		if !item.claimed && !item.readyAt.After(now) {
			candidates = append(candidates, due{receipt: receipt, item: item})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].item.readyAt.Before(candidates[j].item.readyAt)
	})
	if len(candidates) > max {
		candidates = candidates[:max]
	}

	deliveries := make([]Delivery, 0, len(candidates))
	for _, c := range candidates {
		var env models.Envelope
		if err := json.Unmarshal([]byte(c.item.payload), &env); err != nil {
			return nil, fmt.Errorf("unmarshal envelope: %w", err)
		}
		c.item.claimed = true
		c.item.deadline = now.Add(q.visibility)
		deliveries = append(deliveries, Delivery{Envelope: env, Receipt: c.receipt})
	}
	return deliveries, nil
}

// Ack consumes a delivery.
func (q *InMemory) Ack(ctx context.Context, d Delivery) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.items, d.Receipt)
	return nil
}

// Depth reports envelopes waiting, claimed or not.
func (q *InMemory) Depth(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.items)), nil
}
