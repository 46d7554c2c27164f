// Package registry resolves element ids to media elements.
package registry

import (
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"

	"github.com/osa030/mediasync/internal/domain/media"
)

var (
	ErrElementNotFound  = errors.New("element not found")
	ErrDuplicateElement = errors.New("element already registered")
)

// ElementRegistry manages media elements with thread-safe access.
type ElementRegistry struct {
	mu       sync.RWMutex
	elements map[string]media.Element
}

// NewElementRegistry creates a new element registry.
func NewElementRegistry() *ElementRegistry {
	return &ElementRegistry{
		elements: make(map[string]media.Element),
	}
}

// Register adds an element under its id.
func (r *ElementRegistry) Register(e media.Element) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.elements[e.ID()]; ok {
		return errors.Wrapf(ErrDuplicateElement, "id=%s", e.ID())
	}
	r.elements[e.ID()] = e
	return nil
}

// Get retrieves an element by id.
func (r *ElementRegistry) Get(id string) (media.Element, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.elements[id]
	if !ok {
		return nil, errors.Wrapf(ErrElementNotFound, "id=%s", id)
	}
	return e, nil
}

// All returns all elements ordered by id.
func (r *ElementRegistry) All() []media.Element {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := lo.Values(r.elements)
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID() < result[j].ID()
	})
	return result
}

// Close closes every element and empties the registry.
func (r *ElementRegistry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs error
	for id, e := range r.elements {
		if err := e.Close(); err != nil {
			errs = errors.CombineErrors(errs, errors.Wrapf(err, "close %s", id))
		}
	}
	r.elements = make(map[string]media.Element)
	return errs
}
