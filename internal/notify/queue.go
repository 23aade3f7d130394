package notify

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	ChannelSMS      = "sms"
	ChannelWhatsApp = "whatsapp"
	ChannelEmail    = "email"
)

// DefaultBackoff is the wait before the first, second and third retry.
var DefaultBackoff = []time.Duration{30 * time.Second, 60 * time.Second, 5 * time.Minute}

const (
	DefaultMaxRetries = 3
	idlePoll          = time.Second
)

type QueuedMessage struct {
	ID          string    `json:"id"`
	Channel     string    `json:"channel"`
	To          string    `json:"to"`
	Body        string    `json:"body"`
	Retries     int       `json:"retries"`
	LastError   string    `json:"last_error,omitempty"`
	LastAttempt time.Time `json:"last_attempt"`
	NextRetryAt time.Time `json:"next_retry_at"`
	CreatedAt   time.Time `json:"created_at"`
}

type QueueStats struct {
	Name    string `json:"name"`
	Pending int    `json:"pending"`
	Sent    uint64 `json:"sent"`
	Failed  uint64 `json:"failed_attempts"`
	Dropped uint64 `json:"dropped"`
}

// Queue delivers messages through one Sender, one at a time. A failed
// message is retried after a growing delay and dropped once it has used
// up its retries.
type Queue struct {
	Name       string
	Channel    string
	Sender     Sender
	Backoff    []time.Duration
	MaxRetries int
	// OnDrop is called for every message given up on.
	OnDrop func(ctx context.Context, m QueuedMessage)

	log  *slog.Logger
	now  func() time.Time
	wake chan struct{}

	mu    sync.Mutex
	items []*QueuedMessage

	sent, failed, dropped atomic.Uint64
}

func NewQueue(name, channel string, sender Sender, log *slog.Logger) *Queue {
	return &Queue{
		Name:       name,
		Channel:    channel,
		Sender:     sender,
		Backoff:    DefaultBackoff,
		MaxRetries: DefaultMaxRetries,
		log:        log.With("svc", "notify.queue", "queue", name),
		now:        time.Now,
		wake:       make(chan struct{}, 1),
	}
}

// WithClock replaces the time source; tests only.
func (q *Queue) WithClock(now func() time.Time) *Queue {
	q.now = now
	return q
}

func (q *Queue) Enqueue(to, body string) string {
	now := q.now()
	m := &QueuedMessage{
		ID:          uuid.NewString(),
		Channel:     q.Channel,
		To:          to,
		Body:        body,
		NextRetryAt: now,
		CreatedAt:   now,
	}

	q.mu.Lock()
	q.items = append(q.items, m)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return m.ID
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) Stats() QueueStats {
	return QueueStats{
		Name:    q.Name,
		Pending: q.Len(),
		Sent:    q.sent.Load(),
		Failed:  q.failed.Load(),
		Dropped: q.dropped.Load(),
	}
}

// ProcessOnce takes the head message. One that is not due yet goes back to
// the tail untouched. It reports whether a delivery was attempted.
func (q *Queue) ProcessOnce(ctx context.Context) bool {
	q.mu.Lock()
	if len(q.items) == 0 {
		q.mu.Unlock()
		return false
	}
	m := q.items[0]
	q.items = q.items[1:]
	now := q.now()
	if now.Before(m.NextRetryAt) {
		q.items = append(q.items, m)
		q.mu.Unlock()
		return false
	}
	q.mu.Unlock()

	receipt, err := q.Sender.Send(ctx, m.To, m.Body)
	m.LastAttempt = now
	if err == nil {
		q.sent.Add(1)
		q.log.Info("message_sent", "message_id", m.ID, "provider_id", receipt.ID, "retries", m.Retries)
		return true
	}

	q.failed.Add(1)
	m.LastError = err.Error()
	if m.Retries >= q.MaxRetries {
		q.dropped.Add(1)
		q.log.Error("message_dropped", "message_id", m.ID, "to", m.To, "retries", m.Retries, "error", err)
		if q.OnDrop != nil {
			q.OnDrop(ctx, *m)
		}
		return true
	}

	m.Retries++
	m.NextRetryAt = now.Add(q.backoff(m.Retries))
	q.log.Warn("message_retry_scheduled", "message_id", m.ID, "retries", m.Retries, "next_retry_at", m.NextRetryAt, "error", err)

	q.mu.Lock()
	q.items = append(q.items, m)
	q.mu.Unlock()
	return true
}

func (q *Queue) backoff(retries int) time.Duration {
	if len(q.Backoff) == 0 {
		return 0
	}
	i := min(retries, len(q.Backoff)) - 1
	return q.Backoff[i]
}

// Drain makes one pass over the queue and returns how many deliveries it
// attempted.
func (q *Queue) Drain(ctx context.Context) int {
	attempted := 0
	for range q.Len() {
		if ctx.Err() != nil {
			break
		}
		if q.ProcessOnce(ctx) {
			attempted++
		}
	}
	return attempted
}

// Run is the single consumer of the queue. It returns when ctx is done.
func (q *Queue) Run(ctx context.Context) {
	q.log.Info("queue_started")
	timer := time.NewTimer(idlePoll)
	defer timer.Stop()

	for {
		if q.Drain(ctx) > 0 {
			continue
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(idlePoll)

		select {
		case <-ctx.Done():
			q.log.Info("queue_stopped", "pending", q.Len())
			return
		case <-q.wake:
		case <-timer.C:
		}
	}
}
