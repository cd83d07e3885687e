package factor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pinMap map[string]string

func (p pinMap) PIN(id string) (string, bool) {
	v, ok := p[id]
	return v, ok
}

type presence struct {
	ok  bool
	err error
}

func (p presence) Present(context.Context) (bool, error) { return p.ok, p.err }

// RFC 6238 SHA1 seed "12345678901234567890" in base32.
const rfcSecret = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"

func TestPINVerifier(t *testing.T) {
	v := NewPINVerifier(pinMap{"7": "4821"})

	assert.True(t, v.Verify("7", "4821"))
	assert.True(t, v.Verify("7", " 4821\n"))
	assert.False(t, v.Verify("7", "4822"))
	assert.False(t, v.Verify("7", ""))
	assert.False(t, v.Verify("8", "4821"))
}

func TestCurrentCode_RFCVector(t *testing.T) {
	v, err := NewCodeVerifier(rfcSecret, 30*time.Second, presence{ok: true})
	require.NoError(t, err)

	code, err := v.CurrentCode(time.Unix(59, 0))
	require.NoError(t, err)
	assert.Equal(t, "287082", code)
}

func TestNewCodeVerifier_BadSecret(t *testing.T) {
	_, err := NewCodeVerifier("!!!", 30*time.Second, nil)
	assert.Error(t, err)
}

func TestCheck_Window(t *testing.T) {
	v, err := NewCodeVerifier(rfcSecret, 30*time.Second, presence{ok: true})
	require.NoError(t, err)

	now := time.Date(2026, 3, 2, 9, 0, 10, 0, time.UTC)
	current, err := v.CurrentCode(now)
	require.NoError(t, err)
	previous, err := v.CurrentCode(now.Add(-30 * time.Second))
	require.NoError(t, err)
	older, err := v.CurrentCode(now.Add(-60 * time.Second))
	require.NoError(t, err)

	assert.Equal(t, CodeAccepted, v.Check(current, now))
	assert.Equal(t, CodeAccepted, v.Check(previous, now), "one step of grace")
	if older != current && older != previous {
		assert.Equal(t, CodeInvalid, v.Check(older, now))
	}
	assert.Equal(t, CodeMissing, v.Check("  ", now))
}

func TestVerify_PresenceGate(t *testing.T) {
	now := time.Now()

	absent, err := NewCodeVerifier(rfcSecret, 30*time.Second, presence{ok: false})
	require.NoError(t, err)
	code, err := absent.CurrentCode(now)
	require.NoError(t, err)
	assert.Equal(t, CodeNoPresence, absent.Verify(context.Background(), "7", code, now))
	assert.ErrorIs(t, absent.Ready(context.Background()), ErrNoPresence)

	broken, err := NewCodeVerifier(rfcSecret, 30*time.Second, presence{err: errors.New("arp failed")})
	require.NoError(t, err)
	assert.Equal(t, CodeNoPresence, broken.Verify(context.Background(), "7", code, now))

	present, err := NewCodeVerifier(rfcSecret, 30*time.Second, presence{ok: true})
	require.NoError(t, err)
	assert.Equal(t, CodeAccepted, present.Verify(context.Background(), "7", code, now))
	assert.Equal(t, CodeInvalid, present.Verify(context.Background(), "7", "000000x", now))
}

func TestCodeResultString(t *testing.T) {
	assert.Equal(t, "no-presence", CodeNoPresence.String())
	assert.Equal(t, "CodeResult(42)", CodeResult(42).String())
}
