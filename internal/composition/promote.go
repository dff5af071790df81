package composition

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/materia-group/blueline/internal/model"
)

// ErrInvalidTransition is returned on any attempt to re-promote a definitive
// composition. There is no demotion path at all.
var ErrInvalidTransition = eris.New("composition: record is already definitive")

// Guard enforces the one-way provisional → definitive lifecycle. Promotions
// are serialized per record so that two concurrent attempts on the same
// provisional record yield exactly one success.
type Guard struct {
	mu       sync.Mutex
	locks    map[string]*sync.Mutex
	promoted map[string]bool
	now      func() time.Time // injectable for testing
}

// NewGuard creates a Guard.
func NewGuard() *Guard {
	return &Guard{
		locks:    make(map[string]*sync.Mutex),
		promoted: make(map[string]bool),
		now:      time.Now,
	}
}

// WithNow sets a fixed clock for testing.
func (g *Guard) WithNow(t time.Time) *Guard {
	g.now = func() time.Time { return t }
	return g
}

func (g *Guard) lockFor(id string) *sync.Mutex {
	g.mu.Lock()
	defer g.mu.Unlock()
	l, ok := g.locks[id]
	if !ok {
		l = &sync.Mutex{}
		g.locks[id] = l
	}
	return l
}

// Promote supersedes a provisional record with a new definitive version
// backed by a trusted source. The input record is never mutated; the prior
// version stays retrievable for audit. Confidence is forced to 100 and the
// origin stamped with the trusted source. A nil newComponents keeps the
// record's existing components.
func (g *Guard) Promote(record *model.CompositionRecord, newComponents []model.IngredientComponent, trustedSource string) (*model.CompositionRecord, error) {
	l := g.lockFor(record.ID)
	l.Lock()
	defer l.Unlock()

	if record.State == model.CompositionDefinitive {
		return nil, eris.Wrapf(ErrInvalidTransition, "composition %s", record.ID)
	}
	g.mu.Lock()
	alreadyPromoted := g.promoted[record.ID]
	if !alreadyPromoted {
		g.promoted[record.ID] = true
	}
	g.mu.Unlock()
	if alreadyPromoted {
		return nil, eris.Wrapf(ErrInvalidTransition, "composition %s", record.ID)
	}

	components := newComponents
	if components == nil {
		components = make([]model.IngredientComponent, len(record.Components))
		copy(components, record.Components)
	}

	return &model.CompositionRecord{
		ID:           uuid.New().String(),
		MaterialID:   record.MaterialID,
		State:        model.CompositionDefinitive,
		Origin:       trustedSource,
		Confidence:   100,
		Version:      record.Version + 1,
		SupersedesID: record.ID,
		Components:   components,
		CreatedAt:    g.now().UTC(),
	}, nil
}
