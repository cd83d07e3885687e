package audit

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"attendguard/internal/attendance"
	"attendguard/internal/metrics"
	"attendguard/internal/notify"
	"attendguard/internal/queue"
	"attendguard/internal/session"
)

const (
	deliveryTimeout = 15 * time.Second
	// publishTimeout bounds the queue hand-off, which runs while the
	// caller holds the identity's session.
	publishTimeout = 2 * time.Second
)

// Alerter raises operator alerts.
type Alerter interface {
	Alert(ctx context.Context, text string) error
}

// Dispatcher persists attendance records and fans out notifications. Storage
// always happens first and is never undone by a notification failure.
type Dispatcher struct {
	store    attendance.Store
	queue    queue.Queue
	alerter  Alerter
	metrics  *metrics.Metrics
	channels map[string]notify.Notifier

	inflight sync.WaitGroup
}

// NewDispatcher creates a dispatcher. With a nil queue notifications are
// delivered in the background by this process.
func NewDispatcher(store attendance.Store, q queue.Queue, alerter Alerter, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		store:    store,
		queue:    q,
		alerter:  alerter,
		metrics:  m,
		channels: map[string]notify.Notifier{},
	}
}

// AddChannel registers a notification channel under name.
func (d *Dispatcher) AddChannel(name string, n notify.Notifier) {
	d.channels[name] = n
}

// Record appends rec and schedules its notifications. It is called with the
// identity's session held, so only the store append waits on I/O for long;
// delivery never runs on the caller's goroutine.
func (d *Dispatcher) Record(ctx context.Context, rec session.Record) error {
	if err := d.store.Append(ctx, rec); err != nil {
		d.metrics.PersistenceFailure()
		log.Printf("persist %s record for %s failed: %v", rec.Action, rec.IdentityID, err)
		if d.alerter != nil {
			text := fmt.Sprintf("attendance record %s (%s %s at %s) was not stored: %v",
				rec.ID, rec.IdentityID, rec.Action, rec.Timestamp.Format(time.RFC3339), err)
			if aerr := d.alerter.Alert(ctx, text); aerr != nil {
				log.Printf("operator alert failed: %v", aerr)
			}
		}
		return err
	}

	if d.queue == nil {
		d.inflight.Add(1)
		go func() {
			defer d.inflight.Done()
			d.Deliver(context.WithoutCancel(ctx), rec)
		}()
		return nil
	}
	msg, err := queue.Encode(queue.TypeNotification, rec)
	if err == nil {
		pctx, cancel := context.WithTimeout(ctx, publishTimeout)
		err = d.queue.Publish(pctx, msg)
		cancel()
	}
	if err != nil {
		d.metrics.NotifyFailure("queue")
		log.Printf("queue notification for %s: %v", rec.ID, err)
	}
	return nil
}

// Deliver sends rec over every channel. Each channel is attempted
// independently and failures are only logged.
func (d *Dispatcher) Deliver(ctx context.Context, rec session.Record) {
	msg := notify.ForRecord(rec)
	names := make([]string, 0, len(d.channels))
	for name := range d.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		cctx, cancel := context.WithTimeout(ctx, deliveryTimeout)
		err := d.channels[name].Notify(cctx, msg)
		cancel()
		if err != nil {
			d.metrics.NotifyFailure(name)
			log.Printf("%s notification for %s failed: %v", name, rec.ID, err)
		}
	}
}

// Wait blocks until background deliveries started by Record finish.
func (d *Dispatcher) Wait() {
	d.inflight.Wait()
}

// Consume delivers queued notifications until msgs closes.
func (d *Dispatcher) Consume(ctx context.Context, msgs <-chan queue.Message) {
	for msg := range msgs {
		if msg.Type != queue.TypeNotification {
			continue
		}
		var rec session.Record
		if err := msg.Decode(&rec); err != nil {
			log.Printf("bad notification message: %v", err)
			continue
		}
		d.Deliver(ctx, rec)
	}
}
