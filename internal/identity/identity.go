package identity

import (
	"context"
	"errors"
	"fmt"
	"log"
)

const (
	// MinSamples is the fewest enrolled embeddings an identity needs to be matchable.
	MinSamples = 5
	// MaxSamples caps the embeddings kept per identity.
	MaxSamples = 10
	// PINLength is the exact number of digits in an enrolled PIN.
	PINLength = 4
)

var (
	ErrDuplicateID       = errors.New("identity: duplicate id")
	ErrMissingID         = errors.New("identity: id required")
	ErrInvalidPIN        = errors.New("identity: pin must be exactly 4 digits")
	ErrDimensionMismatch = errors.New("identity: embedding dimensionality mismatch")
)

// Embedding is a fixed-length face signature.
type Embedding []float32

// Identity is one enrolled person. It is read-only once loaded.
type Identity struct {
	ID          string      `yaml:"id"`
	Name        string      `yaml:"name"`
	Designation string      `yaml:"designation"`
	Department  string      `yaml:"department"`
	PIN         string      `yaml:"pin"`
	Embeddings  []Embedding `yaml:"embeddings"`
}

// Source loads enrollment records from durable storage.
type Source interface {
	Load(ctx context.Context) ([]Identity, error)
}

// Roster is the immutable, validated enrollment set used by the core.
type Roster struct {
	byID  map[string]*Identity
	order []string
	dim   int
}

// NewRoster validates identities and builds a roster. Identities with too
// few samples are logged and left out of the roster.
func NewRoster(identities []Identity) (*Roster, error) {
	r := &Roster{byID: make(map[string]*Identity, len(identities))}
	for i := range identities {
		id := identities[i]
		if id.ID == "" {
			return nil, ErrMissingID
		}
		if _, dup := r.byID[id.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, id.ID)
		}
		if !ValidPIN(id.PIN) {
			return nil, fmt.Errorf("%w: identity %s", ErrInvalidPIN, id.ID)
		}
		if len(id.Embeddings) < MinSamples {
			log.Printf("identity %s (%s) has %d samples, need %d; skipping", id.ID, id.Name, len(id.Embeddings), MinSamples)
			continue
		}
		if len(id.Embeddings) > MaxSamples {
			id.Embeddings = id.Embeddings[:MaxSamples]
		}
		for _, e := range id.Embeddings {
			if r.dim == 0 {
				r.dim = len(e)
			}
			if len(e) == 0 || len(e) != r.dim {
				return nil, fmt.Errorf("%w: identity %s has %d, roster uses %d", ErrDimensionMismatch, id.ID, len(e), r.dim)
			}
		}
		r.byID[id.ID] = &id
		r.order = append(r.order, id.ID)
	}
	return r, nil
}

// Load builds a roster from a source.
func Load(ctx context.Context, src Source) (*Roster, error) {
	ids, err := src.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load enrollment: %w", err)
	}
	return NewRoster(ids)
}

// ValidPIN reports whether pin is exactly four ASCII digits.
func ValidPIN(pin string) bool {
	if len(pin) != PINLength {
		return false
	}
	for _, c := range pin {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// Get returns the identity with the given id.
func (r *Roster) Get(id string) (*Identity, bool) {
	i, ok := r.byID[id]
	return i, ok
}

// PIN implements the PIN lookup used by the factor verifier.
func (r *Roster) PIN(id string) (string, bool) {
	i, ok := r.byID[id]
	if !ok {
		return "", false
	}
	return i.PIN, true
}

// IDs returns identity ids in enrollment order.
func (r *Roster) IDs() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of matchable identities.
func (r *Roster) Len() int { return len(r.order) }

// Dimension returns the shared embedding length, or 0 for an empty roster.
func (r *Roster) Dimension() int { return r.dim }

// Gallery returns the enrolled embeddings keyed by identity id.
func (r *Roster) Gallery() map[string][]Embedding {
	g := make(map[string][]Embedding, len(r.byID))
	for id, i := range r.byID {
		g[id] = i.Embeddings
	}
	return g
}
