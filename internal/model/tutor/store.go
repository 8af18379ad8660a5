package tutor

// Store exposes tutor profile retrieval for handlers and services.
type Store interface {
	List() []Profile
	FindByID(id string) (Profile, bool)
}

// MemoryStore implements Store with an in-memory slice.
type MemoryStore struct {
	items []Profile
	index map[string]int
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied profiles.
func NewMemoryStore(items []Profile) *MemoryStore {
	store := &MemoryStore{
		items: append([]Profile(nil), items...),
		index: make(map[string]int, len(items)),
	}
	for i, item := range store.items {
		store.index[item.ID] = i
	}
	return store
}

// List returns the configured profiles in declaration order.
func (s *MemoryStore) List() []Profile {
	return append([]Profile(nil), s.items...)
}

// FindByID looks up a profile by identifier.
func (s *MemoryStore) FindByID(id string) (Profile, bool) {
	i, ok := s.index[id]
	if !ok {
		return Profile{}, false
	}
	return s.items[i], true
}
