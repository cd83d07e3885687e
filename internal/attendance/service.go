package attendance

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"attendguard/internal/factor"
	"attendguard/internal/identity"
	"attendguard/internal/matcher"
	"attendguard/internal/metrics"
	"attendguard/internal/narrate"
	"attendguard/internal/prompt"
	"attendguard/internal/session"
)

const (
	DefaultCooldown      = 120 * time.Second
	DefaultFactorTimeout = 30 * time.Second
)

// Reason classifies an authorization decision.
type Reason string

const (
	ReasonGranted      Reason = "granted"
	ReasonCooldown     Reason = "cooldown"
	ReasonFactorFailed Reason = "factor-failed"
	ReasonAlreadyOpen  Reason = "already-open"
	ReasonClosed       Reason = "closed-today"
)

// Failure names the factor check that denied a login.
type Failure string

const (
	FailureNone       Failure = ""
	FailureWrongPIN   Failure = "wrong-pin"
	FailureWrongCode  Failure = "wrong-code"
	FailureNoPresence Failure = "no-presence"
	FailureTimeout    Failure = "timeout"
	FailureNoInput    Failure = "no-input"
)

// Decision is the outcome of one authorization attempt.
type Decision struct {
	IdentityID string    `json:"identity_id"`
	Name       string    `json:"name"`
	Reason     Reason    `json:"reason"`
	Failure    Failure   `json:"failure,omitempty"`
	Confidence float64   `json:"confidence"`
	At         time.Time `json:"at"`
	Message    string    `json:"message"`
}

// Granted reports whether a session was opened.
func (d Decision) Granted() bool { return d.Reason == ReasonGranted }

// Options tunes the orchestrator.
type Options struct {
	Cooldown      time.Duration
	FactorTimeout time.Duration
}

// Service turns a positive face match into a login, running the second
// factors while holding the identity's session.
type Service struct {
	registry *session.Registry
	pins     *factor.PINVerifier
	codes    *factor.CodeVerifier
	prompter prompt.Prompter
	narrator narrate.Narrator
	metrics  *metrics.Metrics

	cooldown      time.Duration
	factorTimeout time.Duration
}

// NewService wires the orchestrator.
func NewService(
	registry *session.Registry,
	pins *factor.PINVerifier,
	codes *factor.CodeVerifier,
	prompter prompt.Prompter,
	narrator narrate.Narrator,
	m *metrics.Metrics,
	opts Options,
) *Service {
	if opts.Cooldown <= 0 {
		opts.Cooldown = DefaultCooldown
	}
	if opts.FactorTimeout <= 0 {
		opts.FactorTimeout = DefaultFactorTimeout
	}
	if narrator == nil {
		narrator = narrate.Log{}
	}
	return &Service{
		registry:      registry,
		pins:          pins,
		codes:         codes,
		prompter:      prompter,
		narrator:      narrator,
		metrics:       m,
		cooldown:      opts.Cooldown,
		factorTimeout: opts.FactorTimeout,
	}
}

// Authorize decides what a recognized face at now means for identityID.
// The identity's session is held for the whole call, prompts included, so
// concurrent attempts for the same person are serialized.
func (s *Service) Authorize(ctx context.Context, identityID string, evidence matcher.Result, now time.Time) (Decision, error) {
	var d Decision
	err := s.registry.With(identityID, func(sess *session.Session) error {
		d = s.decide(ctx, sess, evidence, now)
		return nil
	})
	if err != nil {
		return Decision{}, fmt.Errorf("authorize %s: %w", identityID, err)
	}
	s.metrics.Decision(string(d.Reason))
	log.Printf("decision for %s: %s %s", identityID, d.Reason, d.Failure)
	return d, nil
}

func (s *Service) decide(ctx context.Context, sess *session.Session, evidence matcher.Result, now time.Time) Decision {
	who := sess.Identity()
	d := Decision{IdentityID: who.ID, Name: who.Name, Confidence: evidence.Confidence, At: now}

	if sess.CoolingDown(now, s.cooldown) {
		d.Reason = ReasonCooldown
		d.Message = fmt.Sprintf("%s, wait %s before next action.", who.Name, waitText(s.cooldown))
		s.narrator.Say(d.Message)
		return d
	}
	defer sess.MarkAction(now)

	sess.Normalize(now)
	switch sess.State() {
	case session.NotStarted:
		if failure := s.verifyFactors(ctx, who, now); failure != FailureNone {
			d.Reason = ReasonFactorFailed
			d.Failure = failure
			d.Message = fmt.Sprintf("%s, PIN or OTP not verified!", who.Name)
			s.metrics.FactorFailure(string(failure))
			s.narrator.Say(d.Message)
			return d
		}
		if err := sess.Login(ctx, now); err != nil {
			// Normalize and State above make this unreachable while held.
			log.Printf("login %s: %v", who.ID, err)
			d.Reason = ReasonAlreadyOpen
			return d
		}
		s.metrics.Transition(string(session.ActionLogin), string(session.TriggerVerification))
		s.metrics.ObserveConfidence(evidence.Confidence)
		d.Reason = ReasonGranted
		d.Message = fmt.Sprintf("Welcome %s!", who.Name)
		s.narrator.Say(fmt.Sprintf("%s logged in at %s", who.Name, now.In(s.registry.Location()).Format("03:04 PM")))
	case session.Open, session.Detached:
		d.Reason = ReasonAlreadyOpen
		d.Message = fmt.Sprintf("%s, already logged in today. Monitoring via hotspot.", who.Name)
		s.narrator.Say(d.Message)
	case session.Closed:
		d.Reason = ReasonClosed
		d.Message = fmt.Sprintf("%s, already logged out today.", who.Name)
		s.narrator.Say(d.Message)
	}
	return d
}

// verifyFactors asks for the PIN, then checks presence, then asks for the
// code. The first failure ends the attempt. The code is checked at now plus
// the time spent waiting on the prompts.
func (s *Service) verifyFactors(ctx context.Context, who *identity.Identity, now time.Time) Failure {
	started := time.Now()
	s.narrator.Say(fmt.Sprintf("Please enter your 4-digit PIN for %s", who.Name))
	pin, err := s.ask(ctx, who, prompt.KindPIN)
	if err != nil {
		return promptFailure(err)
	}
	if !s.pins.Verify(who.ID, pin) {
		log.Printf("wrong pin for %s", who.ID)
		return FailureWrongPIN
	}

	s.narrator.Say(fmt.Sprintf("Please connect to the hotspot and enter your code for %s", who.Name))
	if err := s.codes.Ready(ctx); err != nil {
		s.narrator.Say("No devices connected to the hotspot. Please connect and try again.")
		return FailureNoPresence
	}
	code, err := s.ask(ctx, who, prompt.KindCode)
	if err != nil {
		return promptFailure(err)
	}
	switch res := s.codes.Check(code, now.Add(time.Since(started))); res {
	case factor.CodeAccepted:
		return FailureNone
	case factor.CodeMissing:
		s.narrator.Say("No OTP entered. Please try again.")
		return FailureNoInput
	default:
		log.Printf("code for %s rejected: %s", who.ID, res)
		s.narrator.Say(fmt.Sprintf("Invalid OTP %s. Please try again.", code))
		return FailureWrongCode
	}
}

func (s *Service) ask(ctx context.Context, who *identity.Identity, kind prompt.Kind) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.factorTimeout)
	defer cancel()
	return s.prompter.Prompt(ctx, who, kind)
}

func promptFailure(err error) Failure {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return FailureTimeout
	}
	log.Printf("prompt failed: %v", err)
	return FailureNoInput
}

func waitText(d time.Duration) string {
	if d%time.Minute == 0 {
		if d == time.Minute {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", int(d/time.Minute))
	}
	return d.String()
}
