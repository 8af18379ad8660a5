// Package audio keeps recorded and synthesized clips in memory and hands out
// opaque references the presentation layer can fetch.
package audio

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/language-partner/backend/internal/model/speech"
)

// Store is an LRU cache of clips with an optional TTL.
type Store struct {
	mu       sync.Mutex
	items    map[string]*list.Element
	order    *list.List // MRU at front
	maxItems int        // 0 = unlimited
	ttl      time.Duration
	now      func() time.Time
}

type item struct {
	ref     string
	clip    speech.Clip
	expires time.Time // zero = never
}

// NewStore creates a store holding at most maxItems clips for ttl each.
// Non-positive values disable the respective limit.
func NewStore(maxItems int, ttl time.Duration) *Store {
	if maxItems < 0 {
		maxItems = 0
	}
	return &Store{
		items:    make(map[string]*list.Element),
		order:    list.New(),
		maxItems: maxItems,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Put stores clip and returns its reference.
func (s *Store) Put(clip speech.Clip) string {
	ref := uuid.NewString()

	var expires time.Time
	if s.ttl > 0 {
		expires = s.now().Add(s.ttl)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[ref] = s.order.PushFront(&item{ref: ref, clip: clip, expires: expires})
	for s.maxItems > 0 && s.order.Len() > s.maxItems {
		s.removeElement(s.order.Back())
	}
	return ref
}

// Get returns the clip for ref if present and not expired.
func (s *Store) Get(ref string) (speech.Clip, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.items[ref]
	if !ok {
		return speech.Clip{}, false
	}
	it := elem.Value.(*item)
	if s.expired(it) {
		s.removeElement(elem)
		return speech.Clip{}, false
	}
	s.order.MoveToFront(elem)
	return it.clip, true
}

// Delete 删除指定音频。
func (s *Store) Delete(ref string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if elem, ok := s.items[ref]; ok {
		s.removeElement(elem)
	}
}

// Len returns the number of stored clips, expired ones included.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}

// Sweep removes expired clips and returns how many were dropped.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for elem := s.order.Back(); elem != nil; {
		prev := elem.Prev()
		if s.expired(elem.Value.(*item)) {
			s.removeElement(elem)
			removed++
		}
		elem = prev
	}
	return removed
}

// Run sweeps expired clips every interval until ctx is done.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	if s.ttl <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

func (s *Store) expired(it *item) bool {
	return !it.expires.IsZero() && s.now().After(it.expires)
}

// removeElement drops elem; caller must hold s.mu.
func (s *Store) removeElement(elem *list.Element) {
	if elem == nil {
		return
	}
	it := elem.Value.(*item)
	s.order.Remove(elem)
	delete(s.items, it.ref)
}
