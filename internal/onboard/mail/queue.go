package mail

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the delivery state of a queued message.
type Status string

const (
	StatusPending Status = "pending"
	StatusSending Status = "sending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// Message is one email in flight. Messages are mutated only by the delivery
// worker and leave the active queue once Sent or terminally Failed.
type Message struct {
	ID          string
	Recipient   string
	Subject     string
	HTMLBody    string
	TextBody    string
	Attempts    int
	MaxAttempts int
	NextRetryAt time.Time
	Status      Status
	LastError   string
	CreatedAt   time.Time
}

// Config tunes the delivery worker.
type Config struct {
	// Interval is the worker wake-up period (default 5s).
	Interval time.Duration
	// MaxAttempts before a message is terminally Failed (default 3).
	MaxAttempts int
	// BaseDelay seeds the exponential backoff (default 1s).
	BaseDelay time.Duration
	// MaxDelay caps the backoff (default 30s).
	MaxDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = 5 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	return c
}

// QueueStatus is a point-in-time snapshot for monitoring.
type QueueStatus struct {
	Pending int `json:"pending"`
	Sending int `json:"sending"`
	Total   int `json:"total"`
}

// Queue renders templates and delivers the results asynchronously with
// bounded retries. Construct one per process, Start it after the transport
// is ready, and Stop it on shutdown; tests build their own instance instead
// of sharing global state.
type Queue struct {
	transport Transport
	logger    *slog.Logger
	cfg       Config

	mu       sync.Mutex
	messages map[string]*Message

	// now is the clock source, swappable in tests.
	now func() time.Time

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewQueue creates a stopped queue around the given transport.
func NewQueue(transport Transport, logger *slog.Logger, cfg Config) *Queue {
	return &Queue{
		transport: transport,
		logger:    logger,
		cfg:       cfg.withDefaults(),
		messages:  make(map[string]*Message),
		now:       time.Now,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Enqueue renders the template with vars and queues the result for the
// recipient. It returns immediately; delivery happens on the worker's next
// tick. The returned message ID is stable for log correlation.
func (q *Queue) Enqueue(tpl Template, recipient string, vars map[string]string) string {
	subject, html, text := tpl.Render(vars)
	now := q.now()

	msg := &Message{
		ID:          "msg_" + uuid.NewString(),
		Recipient:   recipient,
		Subject:     subject,
		HTMLBody:    html,
		TextBody:    text,
		MaxAttempts: q.cfg.MaxAttempts,
		NextRetryAt: now,
		Status:      StatusPending,
		CreatedAt:   now,
	}

	q.mu.Lock()
	q.messages[msg.ID] = msg
	q.mu.Unlock()

	q.logger.Debug("message enqueued",
		slog.String("message_id", msg.ID),
		slog.String("template", tpl.Name),
		slog.String("recipient", recipient),
	)
	return msg.ID
}

// Status reports the current queue composition.
func (q *Queue) Status() QueueStatus {
	q.mu.Lock()
	defer q.mu.Unlock()

	var st QueueStatus
	for _, m := range q.messages {
		switch m.Status {
		case StatusPending:
			st.Pending++
		case StatusSending:
			st.Sending++
		}
	}
	st.Total = len(q.messages)
	return st
}

// Start launches the background delivery worker.
func (q *Queue) Start() {
	go q.run()
	q.logger.Info("email delivery queue started",
		slog.Duration("interval", q.cfg.Interval),
		slog.Int("max_attempts", q.cfg.MaxAttempts),
	)
}

// Stop shuts the worker down and blocks until in-flight processing ends.
func (q *Queue) Stop() {
	close(q.stopCh)
	<-q.doneCh
	q.logger.Info("email delivery queue stopped")
}

func (q *Queue) run() {
	defer close(q.doneCh)

	ticker := time.NewTicker(q.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			q.deliverDue(context.Background())
		case <-q.stopCh:
			return
		}
	}
}

// deliverDue attempts every pending message whose retry time has arrived.
// Sends run outside the lock; only state transitions hold it.
func (q *Queue) deliverDue(ctx context.Context) {
	now := q.now()

	q.mu.Lock()
	var due []*Message
	for _, m := range q.messages {
		if m.Status == StatusPending && !m.NextRetryAt.After(now) {
			m.Status = StatusSending
			due = append(due, m)
		}
	}
	q.mu.Unlock()

	for _, m := range due {
		err := q.transport.Send(ctx, m.Recipient, m.Subject, m.HTMLBody, m.TextBody)
		q.settle(m, err)
	}
}

func (q *Queue) settle(m *Message, sendErr error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	m.Attempts++

	if sendErr == nil {
		m.Status = StatusSent
		delete(q.messages, m.ID)
		q.logger.Debug("message delivered",
			slog.String("message_id", m.ID),
			slog.Int("attempts", m.Attempts),
		)
		return
	}

	m.LastError = sendErr.Error()

	if m.Attempts >= m.MaxAttempts {
		// Terminal. Surfaced to the operator log, never retried again.
		m.Status = StatusFailed
		delete(q.messages, m.ID)
		q.logger.Error("message delivery failed permanently",
			slog.String("message_id", m.ID),
			slog.String("recipient", m.Recipient),
			slog.Int("attempts", m.Attempts),
			slog.String("error", m.LastError),
		)
		return
	}

	delay := q.backoffDelay(m.Attempts)
	m.Status = StatusPending
	m.NextRetryAt = q.now().Add(delay)
	q.logger.Warn("message delivery failed, will retry",
		slog.String("message_id", m.ID),
		slog.Int("attempts", m.Attempts),
		slog.Duration("retry_in", delay),
		slog.String("error", m.LastError),
	)
}

// backoffDelay doubles the base delay per prior attempt up to the cap, then
// adds up to 10% jitter so synchronized failures don't retry in lockstep.
func (q *Queue) backoffDelay(attempts int) time.Duration {
	delay := q.cfg.BaseDelay << (attempts - 1)
	if delay > q.cfg.MaxDelay || delay <= 0 {
		delay = q.cfg.MaxDelay
	}

	jitter := time.Duration(rand.Float64() * 0.1 * float64(delay))
	return delay + jitter
}
