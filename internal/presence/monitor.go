package presence

import (
	"context"
	"errors"
	"log"
	"time"

	"attendguard/internal/metrics"
	"attendguard/internal/session"
)

const (
	DefaultInterval = 10 * time.Second
	DefaultTimeout  = 300 * time.Second
)

// PollResult summarizes one presence tick.
type PollResult struct {
	Devices    int
	Present    bool
	Touched    []string
	Reaffirmed []string
	Closed     []string
	// Busy sessions were held by a login attempt and wait for the next tick.
	Busy []string
}

// Monitor closes open sessions once no device has been seen on the network
// for longer than Timeout, and re-opens detached sessions when devices
// reappear. Presence is a single shared signal, not per identity.
type Monitor struct {
	registry  *session.Registry
	discovery Discovery
	metrics   *metrics.Metrics

	Interval time.Duration
	Timeout  time.Duration
	Now      func() time.Time
}

// NewMonitor creates a monitor with default interval and timeout.
func NewMonitor(registry *session.Registry, discovery Discovery, m *metrics.Metrics) *Monitor {
	return &Monitor{
		registry:  registry,
		discovery: discovery,
		metrics:   m,
		Interval:  DefaultInterval,
		Timeout:   DefaultTimeout,
		Now:       time.Now,
	}
}

// Present performs a fresh discovery. Used by the code verifier.
func (m *Monitor) Present(ctx context.Context) (bool, error) {
	devices, err := m.discovery.Devices(ctx)
	if err != nil {
		return false, err
	}
	return len(devices) > 0, nil
}

// Poll runs one presence evaluation at now.
func (m *Monitor) Poll(ctx context.Context, now time.Time) PollResult {
	devices, err := m.discovery.Devices(ctx)
	if err != nil {
		log.Printf("device discovery failed, treating as absent: %v", err)
		devices = nil
	}
	res := PollResult{Devices: len(devices), Present: len(devices) > 0}
	m.metrics.SetDevicesPresent(res.Devices)

	open := 0
	res.Busy = m.registry.Each(func(s *session.Session) {
		s.Normalize(now)
		switch s.State() {
		case session.Open:
			if res.Present {
				s.Touch(now)
				res.Touched = append(res.Touched, s.ID())
				open++
				return
			}
			last, ok := s.LastSeen()
			if !ok {
				last, _ = s.Entry()
			}
			if now.Sub(last) <= m.Timeout {
				open++
				return
			}
			hours, err := s.Logout(ctx, now, session.TriggerTimeout)
			if err != nil {
				log.Printf("presence logout for %s: %v", s.ID(), err)
				return
			}
			m.metrics.Transition(string(session.ActionLogout), string(session.TriggerTimeout))
			log.Printf("%s logged out after %s without presence, %.2f hours", s.ID(), now.Sub(last).Truncate(time.Second), hours)
			res.Closed = append(res.Closed, s.ID())
		case session.Detached:
			if !res.Present {
				return
			}
			if err := s.Reaffirm(ctx, now); err != nil {
				log.Printf("reaffirm %s: %v", s.ID(), err)
				return
			}
			m.metrics.Transition(string(session.ActionLogin), string(session.TriggerReaffirm))
			log.Printf("%s re-affirmed by network presence", s.ID())
			res.Reaffirmed = append(res.Reaffirmed, s.ID())
			open++
		}
	})
	m.metrics.SetOpenSessions(open)
	return res
}

// Run polls every Interval until ctx is done. Each tick is bounded by the
// interval so a hung discovery cannot stall the loop.
func (m *Monitor) Run(ctx context.Context) error {
	interval := m.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	now := m.Now
	if now == nil {
		now = time.Now
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			tickCtx, cancel := context.WithTimeout(ctx, interval)
			res := m.Poll(tickCtx, now())
			cancel()
			if len(res.Closed) > 0 || len(res.Reaffirmed) > 0 {
				log.Printf("presence tick: devices=%d closed=%d reaffirmed=%d", res.Devices, len(res.Closed), len(res.Reaffirmed))
			}
		}
	}
}
