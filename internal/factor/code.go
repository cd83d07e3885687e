package factor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// DefaultStep is the lifetime of one presence code.
const DefaultStep = 30 * time.Second

// ErrNoPresence means no device is associated with the local network.
var ErrNoPresence = errors.New("factor: no devices present on the network")

// PresenceSource reports whether any device is currently on the network.
type PresenceSource interface {
	Present(ctx context.Context) (bool, error)
}

// CodeResult is the outcome of a presence code check.
type CodeResult int

const (
	CodeAccepted CodeResult = iota
	CodeInvalid
	CodeMissing
	CodeNoPresence
)

func (r CodeResult) String() string {
	switch r {
	case CodeAccepted:
		return "accepted"
	case CodeInvalid:
		return "invalid"
	case CodeMissing:
		return "missing"
	case CodeNoPresence:
		return "no-presence"
	}
	return fmt.Sprintf("CodeResult(%d)", int(r))
}

// CodeVerifier validates time-based one-time codes derived from a shared
// secret, gated on local network presence.
type CodeVerifier struct {
	secret   string
	opts     totp.ValidateOpts
	step     time.Duration
	presence PresenceSource
}

// NewCodeVerifier creates a verifier. The secret is base32.
func NewCodeVerifier(secret string, step time.Duration, presence PresenceSource) (*CodeVerifier, error) {
	if step <= 0 {
		step = DefaultStep
	}
	v := &CodeVerifier{
		secret: strings.TrimSpace(secret),
		step:   step,
		opts: totp.ValidateOpts{
			Period:    uint(step / time.Second),
			Digits:    otp.DigitsSix,
			Algorithm: otp.AlgorithmSHA1,
		},
		presence: presence,
	}
	if _, err := v.CurrentCode(time.Now()); err != nil {
		return nil, fmt.Errorf("invalid code secret: %w", err)
	}
	return v, nil
}

// CurrentCode returns the code valid for the step containing now.
func (v *CodeVerifier) CurrentCode(now time.Time) (string, error) {
	return totp.GenerateCodeCustom(v.secret, now, v.opts)
}

// Ready checks presence before any code is requested from the user.
func (v *CodeVerifier) Ready(ctx context.Context) error {
	if v.presence == nil {
		return ErrNoPresence
	}
	ok, err := v.presence.Present(ctx)
	if err != nil {
		log.Printf("presence check failed: %v", err)
		return ErrNoPresence
	}
	if !ok {
		return ErrNoPresence
	}
	return nil
}

// Check compares submitted against the current and the preceding step.
func (v *CodeVerifier) Check(submitted string, now time.Time) CodeResult {
	submitted = strings.TrimSpace(submitted)
	if submitted == "" {
		return CodeMissing
	}
	for _, at := range []time.Time{now, now.Add(-v.step)} {
		code, err := v.CurrentCode(at)
		if err != nil {
			log.Printf("code generation failed: %v", err)
			return CodeInvalid
		}
		if code == submitted {
			return CodeAccepted
		}
	}
	return CodeInvalid
}

// Verify runs the presence gate and then the code check.
func (v *CodeVerifier) Verify(ctx context.Context, identityID, submitted string, now time.Time) CodeResult {
	if err := v.Ready(ctx); err != nil {
		log.Printf("no presence for %s", identityID)
		return CodeNoPresence
	}
	res := v.Check(submitted, now)
	if res != CodeAccepted {
		log.Printf("code for %s rejected: %s", identityID, res)
	}
	return res
}
