package factor

import (
	"crypto/subtle"
	"strings"
)

// PINStore looks up the enrolled PIN for an identity.
type PINStore interface {
	PIN(identityID string) (string, bool)
}

// PINVerifier checks a submitted PIN against the enrolled one. There is no
// lockout; the orchestrator's cooldown is the only rate limit.
type PINVerifier struct {
	pins PINStore
}

func NewPINVerifier(pins PINStore) *PINVerifier {
	return &PINVerifier{pins: pins}
}

// Verify reports whether submitted equals the stored PIN exactly.
func (v *PINVerifier) Verify(identityID, submitted string) bool {
	stored, ok := v.pins.PIN(identityID)
	if !ok || stored == "" {
		return false
	}
	submitted = strings.TrimSpace(submitted)
	return subtle.ConstantTimeCompare([]byte(stored), []byte(submitted)) == 1
}
