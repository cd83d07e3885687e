package prompt

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"attendguard/internal/identity"
)

// Kind is the factor being requested.
type Kind string

const (
	KindPIN  Kind = "pin"
	KindCode Kind = "code"
)

// ErrNoInput means the input source is closed.
var ErrNoInput = errors.New("prompt: input closed")

// Prompter requests a factor from the person at the terminal. Implementations
// must return ctx.Err() when the context ends before an answer arrives.
type Prompter interface {
	Prompt(ctx context.Context, who *identity.Identity, kind Kind) (string, error)
}

// Console reads answers line by line from an input stream. One goroutine
// owns the reader; prompts are served one at a time. Once a prompt has timed
// out, lines read before the next question are discarded so a late answer is
// never applied to a different prompt.
type Console struct {
	out   io.Writer
	lines chan line
	mu    sync.Mutex
	stale bool
}

type line struct {
	text string
	at   time.Time
}

// NewConsole starts reading in and writes questions to out.
func NewConsole(in io.Reader, out io.Writer) *Console {
	c := &Console{out: out, lines: make(chan line)}
	go func() {
		defer close(c.lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			c.lines <- line{text: sc.Text(), at: time.Now()}
		}
	}()
	return c
}

func (c *Console) Prompt(ctx context.Context, who *identity.Identity, kind Kind) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	asked := time.Now()
	fmt.Fprintf(c.out, "%s, %s: ", who.Name, question(kind))
	for {
		select {
		case l, ok := <-c.lines:
			if !ok {
				return "", ErrNoInput
			}
			if c.stale && l.at.Before(asked) {
				log.Printf("discarding input typed after a timed-out prompt")
				continue
			}
			c.stale = false
			return strings.TrimSpace(l.text), nil
		case <-ctx.Done():
			c.stale = true
			fmt.Fprintln(c.out)
			return "", ctx.Err()
		}
	}
}

func question(kind Kind) string {
	switch kind {
	case KindPIN:
		return "enter your 4-digit PIN"
	case KindCode:
		return "enter the code shown on the hotspot display"
	}
	return "enter " + string(kind)
}

// Scripted answers prompts from a fixed queue per kind. An exhausted queue
// blocks until ctx ends, like a person who never answers.
type Scripted struct {
	mu      sync.Mutex
	answers map[Kind][]string
	asked   []Kind
}

// NewScripted creates a prompter answering pins then codes in order.
func NewScripted(pins, codes []string) *Scripted {
	return &Scripted{answers: map[Kind][]string{KindPIN: pins, KindCode: codes}}
}

func (s *Scripted) Prompt(ctx context.Context, _ *identity.Identity, kind Kind) (string, error) {
	s.mu.Lock()
	s.asked = append(s.asked, kind)
	queue := s.answers[kind]
	if len(queue) > 0 {
		s.answers[kind] = queue[1:]
		s.mu.Unlock()
		return queue[0], nil
	}
	s.mu.Unlock()
	<-ctx.Done()
	return "", ctx.Err()
}

// Asked returns the kinds requested so far.
func (s *Scripted) Asked() []Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Kind(nil), s.asked...)
}
