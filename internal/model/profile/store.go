package profile

import "github.com/pkg/errors"

// ErrProfileNotFound is returned when no profile carries the requested id.
var ErrProfileNotFound = errors.New("profile not found")

// Store exposes profile retrieval for the stand-in backend.
type Store interface {
	List() []Profile
	Get(id string) (Profile, error)
}

// MemoryStore is a read-only Store over a fixed set of profiles.
type MemoryStore struct {
	order []string
	byID  map[string]Profile
}

// NewMemoryStore indexes items by id. A later duplicate id replaces the
// earlier profile but keeps its position.
func NewMemoryStore(items []Profile) *MemoryStore {
	s := &MemoryStore{byID: make(map[string]Profile, len(items))}
	for _, item := range items {
		if _, seen := s.byID[item.ID]; !seen {
			s.order = append(s.order, item.ID)
		}
		s.byID[item.ID] = item
	}
	return s
}

// List returns every profile in registration order.
func (s *MemoryStore) List() []Profile {
	out := make([]Profile, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	return out
}

// Get returns the profile with the given id; an empty id selects DefaultID.
func (s *MemoryStore) Get(id string) (Profile, error) {
	if id == "" {
		id = DefaultID
	}
	p, ok := s.byID[id]
	if !ok {
		return Profile{}, errors.Wrapf(ErrProfileNotFound, "id %q", id)
	}
	return p, nil
}
