package mail

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	mu    sync.Mutex
	calls []string
	// failFirst makes the first N sends fail.
	failFirst int
	sent      int
}

func (f *fakeTransport) Send(_ context.Context, to, _, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, to)
	f.sent++
	if f.sent <= f.failFirst {
		return errors.New("smtp unavailable")
	}
	return nil
}

func (f *fakeTransport) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testQueue(tr Transport) (*Queue, *time.Time) {
	q := NewQueue(tr, testLogger(), Config{})
	current := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return current }
	return q, &current
}

func TestQueueDeliversPendingMessage(t *testing.T) {
	tr := &fakeTransport{}
	q, _ := testQueue(tr)

	id := q.Enqueue(InvitationTemplate, "new@school.edu", map[string]string{
		"tenantName": "Northside High",
	})
	require.NotEmpty(t, id)
	require.Equal(t, QueueStatus{Pending: 1, Total: 1}, q.Status())

	q.deliverDue(context.Background())

	require.Equal(t, 1, tr.callCount())
	require.Equal(t, "new@school.edu", tr.calls[0])
	require.Equal(t, QueueStatus{}, q.Status(), "sent messages leave the queue")
}

func TestQueueRetriesWithBackoffThenSucceeds(t *testing.T) {
	tr := &fakeTransport{failFirst: 1}
	q, clock := testQueue(tr)

	q.Enqueue(SetupConfirmationTemplate, "admin@school.edu", nil)

	q.deliverDue(context.Background())
	require.Equal(t, 1, tr.callCount())
	require.Equal(t, 1, q.Status().Pending, "failed send returns to pending")

	// Not yet due: backoff pushed the retry into the future.
	q.deliverDue(context.Background())
	require.Equal(t, 1, tr.callCount())

	*clock = clock.Add(2 * time.Second)
	q.deliverDue(context.Background())
	require.Equal(t, 2, tr.callCount())
	require.Equal(t, QueueStatus{}, q.Status())
}

func TestQueueFailsPermanentlyAfterMaxAttempts(t *testing.T) {
	tr := &fakeTransport{failFirst: 10}
	q, clock := testQueue(tr)

	q.Enqueue(InvitationTemplate, "new@school.edu", nil)

	for i := 0; i < 3; i++ {
		q.deliverDue(context.Background())
		*clock = clock.Add(time.Minute)
	}

	require.Equal(t, 3, tr.callCount(), "exactly max attempts, then terminal")
	require.Equal(t, QueueStatus{}, q.Status())

	// Nothing left to retry.
	q.deliverDue(context.Background())
	require.Equal(t, 3, tr.callCount())
}

func TestQueueBackoffDelays(t *testing.T) {
	q := NewQueue(&fakeTransport{}, testLogger(), Config{})

	tests := []struct {
		attempts int
		base     time.Duration
	}{
		{attempts: 1, base: time.Second},
		{attempts: 2, base: 2 * time.Second},
		{attempts: 3, base: 4 * time.Second},
		{attempts: 5, base: 16 * time.Second},
		{attempts: 6, base: 30 * time.Second},
		{attempts: 20, base: 30 * time.Second},
	}
	for _, tc := range tests {
		d := q.backoffDelay(tc.attempts)
		require.GreaterOrEqual(t, d, tc.base, "attempt %d", tc.attempts)
		require.LessOrEqual(t, d, tc.base+tc.base/10, "attempt %d jitter within 10%%", tc.attempts)
	}
}

func TestQueueStatusCountsStates(t *testing.T) {
	q, _ := testQueue(&fakeTransport{})

	q.Enqueue(InvitationTemplate, "a@school.edu", nil)
	q.Enqueue(InvitationTemplate, "b@school.edu", nil)

	st := q.Status()
	require.Equal(t, 2, st.Pending)
	require.Equal(t, 0, st.Sending)
	require.Equal(t, 2, st.Total)
}

func TestQueueStartStop(t *testing.T) {
	tr := &fakeTransport{}
	q := NewQueue(tr, testLogger(), Config{Interval: 10 * time.Millisecond})

	q.Enqueue(InvitationTemplate, "new@school.edu", nil)
	q.Start()

	require.Eventually(t, func() bool {
		return tr.callCount() == 1
	}, time.Second, 5*time.Millisecond)

	q.Stop()
}
