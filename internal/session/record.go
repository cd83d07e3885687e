package session

import (
	"context"
	"time"
)

// Action is the kind of attendance transition.
type Action string

const (
	ActionLogin  Action = "login"
	ActionLogout Action = "logout"
)

// Trigger names what caused a transition.
type Trigger string

const (
	TriggerVerification Trigger = "verification"
	TriggerTimeout      Trigger = "presence-timeout"
	TriggerReaffirm     Trigger = "presence-reaffirm"
	TriggerManual       Trigger = "manual"
)

// Record is one append-only attendance entry, emitted once per transition.
type Record struct {
	ID          string    `json:"id"`
	Date        string    `json:"date"`
	Timestamp   time.Time `json:"timestamp"`
	IdentityID  string    `json:"identity_id"`
	Name        string    `json:"name"`
	Department  string    `json:"department"`
	HoursWorked float64   `json:"hours_worked"`
	Success     bool      `json:"success"`
	Action      Action    `json:"action"`
	Trigger     Trigger   `json:"trigger,omitempty"`
}

// RecordSink receives records for confirmed transitions. A sink error never
// rolls back the transition that produced the record.
type RecordSink interface {
	Record(ctx context.Context, rec Record) error
}

// SinkFunc adapts a function to RecordSink.
type SinkFunc func(ctx context.Context, rec Record) error

func (f SinkFunc) Record(ctx context.Context, rec Record) error { return f(ctx, rec) }
