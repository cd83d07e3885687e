package matcher

import (
	"log"
	"math"
	"strconv"

	"attendguard/internal/identity"
)

const (
	// DefaultTolerance is the maximum Euclidean distance for a candidate match.
	DefaultTolerance = 0.6
	// AcceptanceFloor is the minimum confidence for an accepted match.
	AcceptanceFloor = 40.0
)

// Metric computes the distance between two embeddings.
type Metric func(a, b []float32) float64

// Result is the outcome of matching one query embedding. IdentityID is set
// only when the match was accepted.
type Result struct {
	IdentityID  string
	Confidence  float64
	Distance    float64
	HasDistance bool
}

// Matched reports whether an identity was accepted.
func (r Result) Matched() bool { return r.IdentityID != "" }

// Matcher performs nearest-neighbour matching against an enrolled gallery.
type Matcher struct {
	Metric    Metric
	Tolerance float64
	Floor     float64
}

// New creates a matcher. A nil metric means Euclidean distance.
func New(metric Metric, tolerance, floor float64) *Matcher {
	if metric == nil {
		metric = Euclidean
	}
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Matcher{Metric: metric, Tolerance: tolerance, Floor: floor}
}

// Match compares query against the gallery with Euclidean distance and the
// default acceptance floor.
func Match(query identity.Embedding, gallery map[string][]identity.Embedding, tolerance float64) Result {
	return New(Euclidean, tolerance, AcceptanceFloor).Match(query, gallery)
}

type candidate struct {
	id         string
	distance   float64
	confidence float64
}

// Match returns the best accepted identity for query, or a no-match result.
// An empty gallery or query is a no-match, not an error.
func (m *Matcher) Match(query identity.Embedding, gallery map[string][]identity.Embedding) Result {
	if len(query) == 0 || len(gallery) == 0 {
		return Result{}
	}

	var (
		best    *candidate
		closest = math.Inf(1)
	)
	for id, samples := range gallery {
		if len(samples) == 0 {
			log.Printf("no embeddings for identity %s", id)
			continue
		}
		dMin := math.Inf(1)
		for _, s := range samples {
			if len(s) != len(query) {
				continue
			}
			if d := m.Metric(query, s); d < dMin {
				dMin = d
			}
		}
		if math.IsInf(dMin, 1) {
			continue
		}
		if dMin < closest {
			closest = dMin
		}

		conf := m.confidence(dMin)
		log.Printf("identity %s: min distance=%.3f confidence=%.1f%%", id, dMin, conf)
		if dMin > m.Tolerance {
			continue
		}
		c := candidate{id: id, distance: dMin, confidence: conf}
		if best == nil || better(c, *best) {
			best = &c
		}
	}

	if best == nil || best.confidence < m.Floor {
		if best != nil {
			log.Printf("rejecting %s: confidence %.1f%% below floor %.0f%%", best.id, best.confidence, m.Floor)
		}
		if math.IsInf(closest, 1) {
			return Result{}
		}
		return Result{Distance: closest, HasDistance: true}
	}
	return Result{IdentityID: best.id, Confidence: best.confidence, Distance: best.distance, HasDistance: true}
}

func (m *Matcher) confidence(d float64) float64 {
	return math.Max(0, 100*(1-d/m.Tolerance))
}

// better orders candidates by confidence, then distance, then id.
func better(a, b candidate) bool {
	if a.confidence != b.confidence {
		return a.confidence > b.confidence
	}
	if a.distance != b.distance {
		return a.distance < b.distance
	}
	return lessID(a.id, b.id)
}

// lessID compares numerically when both ids are integers.
func lessID(a, b string) bool {
	ai, errA := strconv.ParseInt(a, 10, 64)
	bi, errB := strconv.ParseInt(b, 10, 64)
	if errA == nil && errB == nil {
		return ai < bi
	}
	return a < b
}
