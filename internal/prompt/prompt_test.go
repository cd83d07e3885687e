package prompt

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attendguard/internal/identity"
)

var ada = &identity.Identity{ID: "7", Name: "Ada"}

func TestConsolePrompt(t *testing.T) {
	var out bytes.Buffer
	c := NewConsole(strings.NewReader(" 4821 \n123456\n"), &out)

	pin, err := c.Prompt(context.Background(), ada, KindPIN)
	require.NoError(t, err)
	assert.Equal(t, "4821", pin)

	code, err := c.Prompt(context.Background(), ada, KindCode)
	require.NoError(t, err)
	assert.Equal(t, "123456", code)
	assert.Contains(t, out.String(), "Ada, enter your 4-digit PIN")

	_, err = c.Prompt(context.Background(), ada, KindPIN)
	assert.ErrorIs(t, err, ErrNoInput)
}

func TestConsolePrompt_Timeout(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()
	c := NewConsole(r, io.Discard)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Prompt(ctx, ada, KindPIN)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// questions reports every write so a test can answer after a question is shown.
type questions chan string

func (q questions) Write(p []byte) (int, error) {
	q <- string(p)
	return len(p), nil
}

func TestConsolePrompt_LateAnswerIsDiscarded(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()
	out := make(questions, 16)
	c := NewConsole(r, out)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Prompt(ctx, ada, KindPIN)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// The PIN arrives after its prompt gave up.
	_, err = io.WriteString(w, "4821\n")
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)

	go func() {
		for q := range out {
			if strings.Contains(q, "code") {
				_, _ = io.WriteString(w, "123456\n")
				return
			}
		}
	}()
	ctx, cancel = context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	code, err := c.Prompt(ctx, ada, KindCode)
	require.NoError(t, err)
	assert.Equal(t, "123456", code)
}

func TestScripted(t *testing.T) {
	s := NewScripted([]string{"4821"}, nil)
	pin, err := s.Prompt(context.Background(), ada, KindPIN)
	require.NoError(t, err)
	assert.Equal(t, "4821", pin)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = s.Prompt(ctx, ada, KindCode)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, []Kind{KindPIN, KindCode}, s.Asked())
}
