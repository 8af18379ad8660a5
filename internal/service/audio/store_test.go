package audio

import (
	"testing"
	"time"

	"github.com/zhouzirui/language-partner/backend/internal/model/speech"
)

func TestPutGet(t *testing.T) {
	store := NewStore(0, 0)
	ref := store.Put(speech.Clip{Data: []byte("abc"), Format: "mp3"})

	clip, ok := store.Get(ref)
	if !ok {
		t.Fatal("expected clip to be stored")
	}
	if string(clip.Data) != "abc" || clip.Format != "mp3" {
		t.Fatalf("unexpected clip %+v", clip)
	}
	if _, ok := store.Get("missing"); ok {
		t.Fatal("expected miss for unknown ref")
	}
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	store := NewStore(2, 0)
	a := store.Put(speech.Clip{Data: []byte("a")})
	b := store.Put(speech.Clip{Data: []byte("b")})

	// touch a so b becomes the eviction candidate
	store.Get(a)
	c := store.Put(speech.Clip{Data: []byte("c")})

	if _, ok := store.Get(b); ok {
		t.Fatal("expected b to be evicted")
	}
	if _, ok := store.Get(a); !ok {
		t.Fatal("expected a to survive")
	}
	if _, ok := store.Get(c); !ok {
		t.Fatal("expected c to be present")
	}
	if store.Len() != 2 {
		t.Fatalf("expected 2 items, got %d", store.Len())
	}
}

func TestExpiry(t *testing.T) {
	store := NewStore(0, time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	first := store.Put(speech.Clip{Data: []byte("1")})
	now = now.Add(30 * time.Second)
	second := store.Put(speech.Clip{Data: []byte("2")})
	now = now.Add(45 * time.Second)

	if _, ok := store.Get(first); ok {
		t.Fatal("expected first clip to be expired")
	}
	if removed := store.Sweep(); removed != 0 {
		t.Fatalf("expected nothing left to sweep, removed %d", removed)
	}
	if _, ok := store.Get(second); !ok {
		t.Fatal("expected second clip to be alive")
	}

	now = now.Add(time.Minute)
	if removed := store.Sweep(); removed != 1 {
		t.Fatalf("expected 1 sweep removal, got %d", removed)
	}
}

func TestDelete(t *testing.T) {
	store := NewStore(0, 0)
	ref := store.Put(speech.Clip{Data: []byte("x")})
	store.Delete(ref)
	if _, ok := store.Get(ref); ok {
		t.Fatal("expected clip to be deleted")
	}
}
