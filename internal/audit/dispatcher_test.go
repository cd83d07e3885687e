package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attendguard/internal/attendance"
	"attendguard/internal/metrics"
	"attendguard/internal/notify"
	"attendguard/internal/queue"
	"attendguard/internal/session"
)

type recorder struct {
	mu   sync.Mutex
	msgs []notify.Message
	err  error
}

func (r *recorder) Notify(_ context.Context, msg notify.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return r.err
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

type alerts struct {
	texts []string
}

func (a *alerts) Alert(_ context.Context, text string) error {
	a.texts = append(a.texts, text)
	return nil
}

func record() session.Record {
	return session.Record{
		ID: "r1", Date: "2026-03-02", Timestamp: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		IdentityID: "7", Name: "Ada", Success: true, Action: session.ActionLogin,
	}
}

func TestRecord_InlineDelivery(t *testing.T) {
	st := attendance.NewMemoryStore()
	email, chat := &recorder{}, &recorder{err: errors.New("slack down")}
	d := NewDispatcher(st, nil, nil, nil)
	d.AddChannel("email", email)
	d.AddChannel("slack", chat)

	require.NoError(t, d.Record(context.Background(), record()))
	d.Wait()

	recs, _ := st.List(context.Background(), attendance.Filter{})
	assert.Len(t, recs, 1)
	assert.Equal(t, 1, email.count(), "one channel failing does not stop the other")
	assert.Equal(t, 1, chat.count())
	assert.Equal(t, "Attendance: Ada - Login", email.msgs[0].Subject)
}

// stalled blocks every notification until release closes.
type stalled struct {
	release chan struct{}
	sent    chan struct{}
}

func (s *stalled) Notify(ctx context.Context, _ notify.Message) error {
	select {
	case <-s.release:
		close(s.sent)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestRecord_SlowChannelDoesNotHoldCaller(t *testing.T) {
	st := attendance.NewMemoryStore()
	slow := &stalled{release: make(chan struct{}), sent: make(chan struct{})}
	d := NewDispatcher(st, nil, nil, nil)
	d.AddChannel("email", slow)

	ctx, cancel := context.WithCancel(context.Background())
	returned := make(chan error, 1)
	go func() { returned <- d.Record(ctx, record()) }()
	select {
	case err := <-returned:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Record waited on notification delivery")
	}
	recs, _ := st.List(context.Background(), attendance.Filter{})
	assert.Len(t, recs, 1, "stored before delivery")

	// Delivery outlives the caller's context.
	cancel()
	close(slow.release)
	d.Wait()
	select {
	case <-slow.sent:
	default:
		t.Fatal("notification was not delivered")
	}
}

func TestRecord_PersistenceFailureAlerts(t *testing.T) {
	st := attendance.NewMemoryStore()
	st.FailWith(errors.New("disk full"))
	email := &recorder{}
	al := &alerts{}
	reg := prometheus.NewRegistry()
	d := NewDispatcher(st, nil, al, metrics.New(reg))
	d.AddChannel("email", email)

	err := d.Record(context.Background(), record())
	assert.ErrorContains(t, err, "disk full")
	require.Len(t, al.texts, 1)
	assert.Contains(t, al.texts[0], "r1")
	assert.Equal(t, 0, email.count())

	families, err := reg.Gather()
	require.NoError(t, err)
	found := false
	for _, f := range families {
		if f.GetName() == "attendguard_persistence_failures_total" {
			found = true
			assert.Equal(t, 1.0, f.GetMetric()[0].GetCounter().GetValue())
		}
	}
	assert.True(t, found)
}

func TestRecord_QueuedDelivery(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := queue.NewInMemory(4)
	email := &recorder{}
	d := NewDispatcher(attendance.NewMemoryStore(), q, nil, nil)
	d.AddChannel("email", email)

	require.NoError(t, d.Record(ctx, record()))
	assert.Equal(t, 0, email.count(), "delivery is asynchronous")

	msgs, err := q.Consume(ctx)
	require.NoError(t, err)
	go d.Consume(ctx, msgs)

	assert.Eventually(t, func() bool { return email.count() == 1 }, time.Second, 5*time.Millisecond)
}
