package session

import (
	"time"

	"attendguard/internal/identity"
)

// Registry owns one Session per enrolled identity. Each session has its own
// lock so transitions for one identity are serialized while different
// identities proceed independently. The map is fixed at construction.
type Registry struct {
	sessions map[string]*Session
	order    []string
	loc      *time.Location
}

// NewRegistry creates a session for every identity in the roster.
func NewRegistry(roster *identity.Roster, sink RecordSink, loc *time.Location) *Registry {
	if loc == nil {
		loc = time.Local
	}
	r := &Registry{
		sessions: make(map[string]*Session, roster.Len()),
		order:    roster.IDs(),
		loc:      loc,
	}
	for _, id := range r.order {
		ident, _ := roster.Get(id)
		r.sessions[id] = &Session{ident: ident, loc: loc, sink: sink}
	}
	return r
}

// With runs fn while holding the identity's session lock.
func (r *Registry) With(id string, fn func(*Session) error) error {
	s, ok := r.sessions[id]
	if !ok {
		return ErrUnknownIdentity
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s)
}

// Each visits every session in enrollment order, locking one at a time.
// A session held elsewhere, typically by a login waiting on factor input, is
// retried once after the rest and skipped if still held. Skipped ids are
// returned so callers can report them.
func (r *Registry) Each(fn func(*Session)) (busy []string) {
	var retry []*Session
	for _, id := range r.order {
		s := r.sessions[id]
		if !s.mu.TryLock() {
			retry = append(retry, s)
			continue
		}
		fn(s)
		s.mu.Unlock()
	}
	for _, s := range retry {
		if !s.mu.TryLock() {
			busy = append(busy, s.ident.ID)
			continue
		}
		fn(s)
		s.mu.Unlock()
	}
	return busy
}

// Location returns the timezone used for day boundaries.
func (r *Registry) Location() *time.Location { return r.loc }

// View is a read-only snapshot of one session. A Busy view carries only the
// identity; its session was held by an attempt in progress.
type View struct {
	IdentityID string     `json:"identity_id"`
	Name       string     `json:"name"`
	State      string     `json:"state"`
	Busy       bool       `json:"busy,omitempty"`
	Status     Status     `json:"status"`
	EntryTime  *time.Time `json:"entry_time,omitempty"`
	LastSeen   *time.Time `json:"last_seen,omitempty"`
	LastAction *time.Time `json:"last_action,omitempty"`
}

// StateVerifying labels a busy view.
const StateVerifying = "verifying"

// Snapshot returns a view of every session in enrollment order without
// waiting on sessions that are mid-attempt.
func (r *Registry) Snapshot() []View {
	views := make(map[string]View, len(r.order))
	busy := r.Each(func(s *Session) {
		v := View{
			IdentityID: s.ident.ID,
			Name:       s.ident.Name,
			State:      s.State().String(),
			Status:     s.status,
		}
		if t, ok := s.Entry(); ok {
			v.EntryTime = &t
		}
		if t, ok := s.LastSeen(); ok {
			v.LastSeen = &t
		}
		if t, ok := s.LastAction(); ok {
			v.LastAction = &t
		}
		views[v.IdentityID] = v
	})
	for _, id := range busy {
		views[id] = View{IdentityID: id, Name: r.sessions[id].ident.Name, State: StateVerifying, Busy: true}
	}
	out := make([]View, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, views[id])
	}
	return out
}

// OpenCount returns the number of sessions holding an entry time. Busy
// sessions are not counted; factor prompts only run before an entry exists.
func (r *Registry) OpenCount() int {
	n := 0
	r.Each(func(s *Session) {
		if s.hasEntry {
			n++
		}
	})
	return n
}

// Restore rebuilds today's daily status from stored records in insertion
// order. Sessions whose last record is a login become Detached, since the
// entry time of a previous process is not trusted. Returns the number of
// identities restored.
func (r *Registry) Restore(records []Record, now time.Time) int {
	day := now.In(r.loc).Format(DateLayout)
	last := map[string]Action{}
	for _, rec := range records {
		if rec.Date != day || !rec.Success {
			continue
		}
		if _, ok := r.sessions[rec.IdentityID]; !ok {
			continue
		}
		last[rec.IdentityID] = rec.Action
	}
	for id, action := range last {
		_ = r.With(id, func(s *Session) error {
			s.status = Status{Date: day, LoggedIn: true, LoggedOut: action == ActionLogout}
			return nil
		})
	}
	return len(last)
}
