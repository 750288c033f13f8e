// Package queue is the Redis-backed sync-request queue.
//
// Router updates enqueue a request after writing the primary store; a
// long-running watcher subscribes and triggers sync passes. All keys and
// channels are namespaced with the workspace name so multiple workspaces
// can share one Redis. The queue is optional: a nil *Client no-ops.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Request asks for a synchronization pass covering one task.
type Request struct {
	ID          string    `json:"id"`
	TaskID      string    `json:"task_id"`
	Origin      string    `json:"origin"` // Store that just changed: "monolith" or "distributed"
	Reason      string    `json:"reason"` // e.g. "status-update", "field-update"
	RequestedAt time.Time `json:"requested_at"`
}

// Client provides workspace-scoped queue operations. It is safe for
// concurrent use.
type Client struct {
	rdb       *redis.Client
	workspace string
}

// New creates a queue client for the given workspace.
// Returns an error if workspace is empty.
func New(redisOpts *redis.Options, workspace string) (*Client, error) {
	if workspace == "" {
		return nil, fmt.Errorf("workspace name cannot be empty")
	}
	return &Client{rdb: redis.NewClient(redisOpts), workspace: workspace}, nil
}

// queueKey is the pending-request list, newest at the head.
func queueKey(workspace string) string {
	return fmt.Sprintf("warren:%s:sync_queue", workspace)
}

// eventsChannel carries full request JSON for live subscribers.
func eventsChannel(workspace string) string {
	return fmt.Sprintf("warren:%s:sync_events", workspace)
}

// Close closes the Redis connection. Implements io.Closer. A nil client
// closes trivially.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	return c.rdb.Close()
}

// Ping verifies Redis connectivity.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.rdb.Ping(ctx).Err()
}

// Enqueue pushes a sync request and publishes it to live subscribers. The
// request's ID and timestamp are assigned here if unset. A nil client
// drops the request silently; the store write it follows has already
// succeeded.
func (c *Client) Enqueue(ctx context.Context, req *Request) error {
	if c == nil {
		return nil
	}
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if req.RequestedAt.IsZero() {
		req.RequestedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal sync request: %w", err)
	}

	if err := c.rdb.LPush(ctx, queueKey(c.workspace), payload).Err(); err != nil {
		return fmt.Errorf("failed to enqueue sync request: %w", err)
	}
	if err := c.rdb.Publish(ctx, eventsChannel(c.workspace), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish sync request: %w", err)
	}
	return nil
}

// Pending returns every queued request, oldest first, without consuming.
func (c *Client) Pending(ctx context.Context) ([]*Request, error) {
	if c == nil {
		return nil, nil
	}
	raw, err := c.rdb.LRange(ctx, queueKey(c.workspace), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read sync queue: %w", err)
	}

	// LPUSH puts the newest at index 0; walk backwards for arrival order.
	reqs := make([]*Request, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var req Request
		if err := json.Unmarshal([]byte(raw[i]), &req); err != nil {
			return nil, fmt.Errorf("failed to unmarshal queued request: %w", err)
		}
		reqs = append(reqs, &req)
	}
	return reqs, nil
}

// Dequeue pops the oldest queued request, blocking up to timeout. Returns
// (nil, nil) when the timeout expires with nothing queued.
func (c *Client) Dequeue(ctx context.Context, timeout time.Duration) (*Request, error) {
	if c == nil {
		return nil, nil
	}
	res, err := c.rdb.BRPop(ctx, timeout, queueKey(c.workspace)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue sync request: %w", err)
	}

	var req Request
	if err := json.Unmarshal([]byte(res[1]), &req); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sync request: %w", err)
	}
	return &req, nil
}

// Subscription delivers live sync requests as they are published.
type Subscription struct {
	events <-chan *Request
	errors <-chan error
	cancel func()
	once   sync.Once
}

// Events returns the channel of sync requests. It is closed when the
// subscription is closed or the context is cancelled.
func (s *Subscription) Events() <-chan *Request {
	return s.events
}

// Errors returns the channel of non-fatal subscription errors. The
// subscription continues after errors; bad messages are skipped.
func (s *Subscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription and cleans up resources. Implements io.Closer.
// Safe to call multiple times.
func (s *Subscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// Subscribe listens for sync requests published in this workspace. The
// caller must Close() the subscription when done.
func (c *Client) Subscribe(ctx context.Context) (*Subscription, error) {
	if c == nil {
		return nil, fmt.Errorf("queueing is not configured")
	}
	pubsub := c.rdb.Subscribe(ctx, eventsChannel(c.workspace))

	eventsChan := make(chan *Request, 10)
	errorsChan := make(chan error, 10)
	subCtx, cancelFunc := context.WithCancel(ctx)

	go func() {
		defer close(eventsChan)
		defer close(errorsChan)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var req Request
				if err := json.Unmarshal([]byte(msg.Payload), &req); err != nil {
					select {
					case errorsChan <- fmt.Errorf("failed to unmarshal sync request event: %w", err):
					case <-subCtx.Done():
						return
					}
					continue
				}

				select {
				case eventsChan <- &req:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &Subscription{
		events: eventsChan,
		errors: errorsChan,
		cancel: cancelFunc,
	}, nil
}
