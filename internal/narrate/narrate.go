package narrate

import (
	"fmt"
	"io"
	"log"
	"sync"
)

// Narrator speaks short feedback to the person at the terminal. Calls are
// fire-and-forget and must not block verification.
type Narrator interface {
	Say(text string)
}

// Log writes narration to the process log.
type Log struct{}

func (Log) Say(text string) { log.Printf("spoke: %s", text) }

// Writer prints narration lines to w.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriter(w io.Writer) *Writer { return &Writer{w: w} }

func (n *Writer) Say(text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	fmt.Fprintln(n.w, text)
}

// Multi fans narration out to several narrators.
type Multi []Narrator

func (m Multi) Say(text string) {
	for _, n := range m {
		n.Say(text)
	}
}

// Recorder keeps narration in memory.
type Recorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *Recorder) Say(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, text)
}

// Lines returns everything said so far.
func (r *Recorder) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}
