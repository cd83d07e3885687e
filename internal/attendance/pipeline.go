package attendance

import (
	"context"
	"log"
	"time"

	"attendguard/internal/faceclient"
	"attendguard/internal/identity"
	"attendguard/internal/matcher"
	"attendguard/internal/metrics"
	"attendguard/internal/narrate"
	"attendguard/internal/queue"
)

// Frame is a captured image awaiting recognition.
type Frame struct {
	ID         string    `json:"id"`
	DeviceID   string    `json:"device_id"`
	ImageURL   string    `json:"image_url"`
	CapturedAt time.Time `json:"captured_at"`
}

// Extractor produces the embedding of the first face in an image.
type Extractor interface {
	EmbedWithScore(ctx context.Context, imageURL string) (*faceclient.EmbedResult, error)
}

// Outcome kinds for a processed frame.
const (
	OutcomeInvalid = "invalid"
	OutcomeNoFace  = "no-face"
	OutcomeUnknown = "unknown"
	OutcomeDecided = "decided"
)

// Outcome is what happened to one frame.
type Outcome struct {
	Kind     string
	Match    matcher.Result
	Decision *Decision
}

// Pipeline recognizes frames and hands positive matches to the service.
type Pipeline struct {
	extractor Extractor
	matcher   *matcher.Matcher
	gallery   map[string][]identity.Embedding
	service   *Service
	narrator  narrate.Narrator
	metrics   *metrics.Metrics

	Now func() time.Time
}

// NewPipeline snapshots the roster gallery.
func NewPipeline(extractor Extractor, m *matcher.Matcher, roster *identity.Roster, svc *Service, narrator narrate.Narrator, mt *metrics.Metrics) *Pipeline {
	if narrator == nil {
		narrator = narrate.Log{}
	}
	return &Pipeline{
		extractor: extractor,
		matcher:   m,
		gallery:   roster.Gallery(),
		service:   svc,
		narrator:  narrator,
		metrics:   mt,
		Now:       time.Now,
	}
}

// Process runs one frame through extraction, matching and authorization.
// An unreadable frame is reported as OutcomeInvalid, never as an error.
func (p *Pipeline) Process(ctx context.Context, f Frame) (Outcome, error) {
	res, err := p.extractor.EmbedWithScore(ctx, f.ImageURL)
	if err != nil {
		log.Printf("frame %s unreadable: %v", f.ID, err)
		p.metrics.Frame(OutcomeInvalid)
		return Outcome{Kind: OutcomeInvalid}, nil
	}
	if res.FacesDetected == 0 || len(res.Embedding) == 0 {
		p.metrics.Frame(OutcomeNoFace)
		p.narrator.Say("No Face")
		return Outcome{Kind: OutcomeNoFace}, nil
	}
	if res.FacesDetected > 1 {
		log.Printf("frame %s has %d faces, using the first", f.ID, res.FacesDetected)
	}

	m := p.matcher.Match(res.Embedding, p.gallery)
	if !m.Matched() {
		p.metrics.Frame(OutcomeUnknown)
		p.narrator.Say("Unknown Face")
		return Outcome{Kind: OutcomeUnknown, Match: m}, nil
	}
	log.Printf("recognized %s (confidence %.1f%%)", m.IdentityID, m.Confidence)

	d, err := p.service.Authorize(ctx, m.IdentityID, m, p.Now())
	if err != nil {
		return Outcome{Kind: OutcomeInvalid, Match: m}, err
	}
	p.metrics.Frame(OutcomeDecided)
	return Outcome{Kind: OutcomeDecided, Match: m, Decision: &d}, nil
}

// Serve processes frame messages until msgs closes. Frames are handled one
// at a time since factor prompts share one terminal.
func (p *Pipeline) Serve(ctx context.Context, msgs <-chan queue.Message) {
	for msg := range msgs {
		if msg.Type != queue.TypeFrame {
			log.Printf("pipeline: ignoring %q message", msg.Type)
			continue
		}
		var f Frame
		if err := msg.Decode(&f); err != nil {
			log.Printf("pipeline: bad frame message: %v", err)
			continue
		}
		if _, err := p.Process(ctx, f); err != nil {
			log.Printf("pipeline: frame %s: %v", f.ID, err)
		}
	}
}
