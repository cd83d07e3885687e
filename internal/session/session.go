package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"attendguard/internal/identity"
)

// DateLayout formats calendar days.
const DateLayout = "2006-01-02"

var (
	ErrUnknownIdentity   = errors.New("session: unknown identity")
	ErrInvalidTransition = errors.New("session: invalid transition")
)

// State is the daily lifecycle position of one identity.
type State int

const (
	// NotStarted has no login today.
	NotStarted State = iota
	// Open holds an entry time.
	Open
	// Closed has logged out today; terminal until the day changes.
	Closed
	// Detached is logged in today without an entry time, for example after
	// a restart. Presence on the network re-opens it.
	Detached
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not-started"
	case Open:
		return "open"
	case Closed:
		return "closed"
	case Detached:
		return "detached"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Status is the per-day login/logout flag pair.
type Status struct {
	Date      string `json:"date"`
	LoggedIn  bool   `json:"logged_in"`
	LoggedOut bool   `json:"logged_out"`
}

// Session is the mutable state of one identity. Every method requires the
// caller to hold the session through Registry.With or Registry.Each.
type Session struct {
	mu sync.Mutex

	ident *identity.Identity
	loc   *time.Location
	sink  RecordSink

	status     Status
	entry      time.Time
	hasEntry   bool
	lastAction time.Time
	lastSeen   time.Time
}

// ID returns the identity id.
func (s *Session) ID() string { return s.ident.ID }

// Identity returns the enrolled identity.
func (s *Session) Identity() *identity.Identity { return s.ident }

// Status returns the current daily status.
func (s *Session) Status() Status { return s.status }

// State derives the lifecycle state from status and entry.
func (s *Session) State() State {
	switch {
	case s.hasEntry:
		return Open
	case s.status.LoggedIn && s.status.LoggedOut:
		return Closed
	case s.status.LoggedIn:
		return Detached
	}
	return NotStarted
}

// Entry returns the entry time of the open session.
func (s *Session) Entry() (time.Time, bool) { return s.entry, s.hasEntry }

// LastSeen returns when presence was last observed for the open session.
func (s *Session) LastSeen() (time.Time, bool) { return s.lastSeen, !s.lastSeen.IsZero() }

// LastAction returns the time of the last accepted authorization decision.
func (s *Session) LastAction() (time.Time, bool) { return s.lastAction, !s.lastAction.IsZero() }

// CoolingDown reports whether now falls inside window after the last action.
func (s *Session) CoolingDown(now time.Time, window time.Duration) bool {
	return !s.lastAction.IsZero() && now.Sub(s.lastAction) < window
}

// MarkAction records an authorization decision for cooldown purposes.
func (s *Session) MarkAction(now time.Time) { s.lastAction = now }

// Day returns the calendar day of t in the session's location.
func (s *Session) Day(t time.Time) string { return t.In(s.loc).Format(DateLayout) }

// Normalize lazily resets the daily status when the day changed. A session
// still open from an earlier day stays open for the new day.
func (s *Session) Normalize(now time.Time) {
	day := s.Day(now)
	if s.status.Date == day {
		return
	}
	if s.status.Date != "" {
		log.Printf("day changed for %s: %s -> %s", s.ident.ID, s.status.Date, day)
	}
	s.status = Status{Date: day, LoggedIn: s.hasEntry}
}

// Touch refreshes the last-seen time of an open session.
func (s *Session) Touch(now time.Time) {
	if s.hasEntry {
		s.lastSeen = now
	}
}

// Login opens the session (NotStarted -> Open) and emits a login record.
func (s *Session) Login(ctx context.Context, now time.Time) error {
	s.Normalize(now)
	if st := s.State(); st != NotStarted {
		return fmt.Errorf("%w: login from %s", ErrInvalidTransition, st)
	}
	s.open(now)
	s.status.LoggedIn = true
	s.emit(ctx, now, ActionLogin, 0, TriggerVerification)
	return nil
}

// Reaffirm re-opens a detached session (presence reappeared) and emits a
// login record.
func (s *Session) Reaffirm(ctx context.Context, now time.Time) error {
	if st := s.State(); st != Detached {
		return fmt.Errorf("%w: reaffirm from %s", ErrInvalidTransition, st)
	}
	s.open(now)
	s.emit(ctx, now, ActionLogin, 0, TriggerReaffirm)
	return nil
}

// Logout closes the open session (Open -> Closed), returning hours worked.
func (s *Session) Logout(ctx context.Context, now time.Time, trigger Trigger) (float64, error) {
	if !s.hasEntry {
		return 0, fmt.Errorf("%w: logout from %s", ErrInvalidTransition, s.State())
	}
	hours := now.Sub(s.entry).Hours()
	if hours < 0 {
		hours = 0
	}
	s.entry = time.Time{}
	s.hasEntry = false
	s.lastSeen = time.Time{}
	s.status.LoggedIn = true
	s.status.LoggedOut = true
	s.emit(ctx, now, ActionLogout, hours, trigger)
	return hours, nil
}

func (s *Session) open(now time.Time) {
	s.entry = now
	s.hasEntry = true
	s.lastSeen = now
}

func (s *Session) emit(ctx context.Context, now time.Time, action Action, hours float64, trigger Trigger) {
	rec := Record{
		ID:          uuid.NewString(),
		Date:        s.Day(now),
		Timestamp:   now,
		IdentityID:  s.ident.ID,
		Name:        s.ident.Name,
		Department:  s.ident.Department,
		HoursWorked: hours,
		Success:     true,
		Action:      action,
		Trigger:     trigger,
	}
	if s.sink == nil {
		return
	}
	if err := s.sink.Record(ctx, rec); err != nil {
		log.Printf("record %s %s for %s not stored: %v", action, rec.ID, s.ident.ID, err)
	}
}
