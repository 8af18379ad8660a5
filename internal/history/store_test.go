package history

import (
	"sync"
	"testing"

	"github.com/zhouzirui/language-partner/backend/internal/model/chat"
)

func TestAppendAssignsIdentityAndKeepsOrder(t *testing.T) {
	store := NewStore()

	first, err := store.Append(chat.MessageEntry{Role: chat.RoleUser, Text: "こんにちは"})
	if err != nil {
		t.Fatalf("append first: %v", err)
	}
	second, err := store.Append(chat.MessageEntry{Role: chat.RoleBot, Text: "やあ"})
	if err != nil {
		t.Fatalf("append second: %v", err)
	}

	if first.ID == "" || second.ID == "" || first.ID == second.ID {
		t.Fatalf("expected distinct generated ids, got %q and %q", first.ID, second.ID)
	}
	if first.CreatedAt.IsZero() {
		t.Fatal("expected CreatedAt to be set")
	}

	snapshot := store.Snapshot()
	if len(snapshot) != 2 || snapshot[0].ID != first.ID || snapshot[1].ID != second.ID {
		t.Fatalf("unexpected snapshot order: %+v", snapshot)
	}
	if snapshot[0].Keywords == nil {
		t.Fatal("user entry keywords should be an empty slice, not nil")
	}
}

func TestAppendRejectsDuplicateID(t *testing.T) {
	store := NewStore()
	if _, err := store.Append(chat.MessageEntry{ID: "fixed", Role: chat.RoleUser}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := store.Append(chat.MessageEntry{ID: "fixed", Role: chat.RoleUser}); err != ErrDuplicateEntry {
		t.Fatalf("expected ErrDuplicateEntry, got %v", err)
	}
}

func TestPatchUnknownIDIsSilentNoop(t *testing.T) {
	store := NewStore()
	var events int
	store.Subscribe(func(Event) { events++ })

	if store.Patch("missing", WithAudio("ref")) {
		t.Fatal("expected patch of unknown id to report false")
	}
	if events != 0 {
		t.Fatalf("expected no notification, got %d", events)
	}
	if store.Version() != 0 {
		t.Fatalf("expected version to stay 0, got %d", store.Version())
	}
}

func TestPatchProducesNewStateAndLeavesOldSnapshotsAlone(t *testing.T) {
	store := NewStore()
	entry, _ := store.Append(chat.MessageEntry{Role: chat.RoleBot, Text: "犬", Keywords: []string{"犬"}})

	var captured []Event
	store.Subscribe(func(e Event) { captured = append(captured, e) })

	before := store.Snapshot()
	if !store.Patch(entry.ID, Patch{KeywordTranslations: map[string]string{"犬": "dog"}}) {
		t.Fatal("expected patch to apply")
	}
	if !store.Patch(entry.ID, WithAudio("audio-1")) {
		t.Fatal("expected audio patch to apply")
	}

	if before[0].AudioRef != "" || before[0].KeywordTranslations != nil {
		t.Fatalf("old snapshot changed: %+v", before[0])
	}
	if len(captured) != 2 {
		t.Fatalf("expected 2 events, got %d", len(captured))
	}
	if captured[0].Snapshot[0].AudioRef != "" {
		t.Fatal("first event snapshot must not see the later audio patch")
	}

	got, ok := store.Get(entry.ID)
	if !ok {
		t.Fatal("entry missing")
	}
	if got.AudioRef != "audio-1" || got.KeywordTranslations["犬"] != "dog" {
		t.Fatalf("unexpected patched entry: %+v", got)
	}
	if got.Text != "犬" || got.CreatedAt != entry.CreatedAt {
		t.Fatal("immutable fields must not change")
	}
}

func TestObserversNotifiedOncePerCallInOrder(t *testing.T) {
	store := NewStore()

	var kinds []EventKind
	var versions []uint64
	store.Subscribe(func(e Event) {
		kinds = append(kinds, e.Kind)
		versions = append(versions, e.Version)
	})

	entry, _ := store.Append(chat.MessageEntry{Role: chat.RoleUser, Text: "a"})
	store.Patch(entry.ID, WithFullTranslation("A"))
	store.Clear()

	want := []EventKind{EventAppended, EventPatched, EventCleared}
	if len(kinds) != len(want) {
		t.Fatalf("expected %d events, got %v", len(want), kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("event %d: got %s want %s", i, kinds[i], want[i])
		}
		if versions[i] != uint64(i+1) {
			t.Fatalf("event %d: got version %d", i, versions[i])
		}
	}
	if store.Len() != 0 {
		t.Fatalf("expected empty store after Clear, got %d", store.Len())
	}
}

func TestUnsubscribeStopsNotifications(t *testing.T) {
	store := NewStore()
	var count int
	unsubscribe := store.Subscribe(func(Event) { count++ })

	store.Append(chat.MessageEntry{Role: chat.RoleUser})
	unsubscribe()
	unsubscribe()
	store.Append(chat.MessageEntry{Role: chat.RoleUser})

	if count != 1 {
		t.Fatalf("expected exactly one notification, got %d", count)
	}
}

func TestConcurrentMutationsAreSerialised(t *testing.T) {
	store := NewStore()

	var mu sync.Mutex
	var last uint64
	ordered := true
	store.Subscribe(func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		if e.Version != last+1 {
			ordered = false
		}
		last = e.Version
		if len(e.Snapshot) != int(e.Version) {
			ordered = false
		}
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			store.Append(chat.MessageEntry{Role: chat.RoleUser, Text: "x"})
		}()
	}
	wg.Wait()

	if !ordered {
		t.Fatal("observers saw events out of call order")
	}
	if store.Len() != 50 {
		t.Fatalf("expected 50 entries, got %d", store.Len())
	}
}

func TestVersionedSnapshotMatchesEntries(t *testing.T) {
	store := NewStore()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if _, err := store.Append(chat.MessageEntry{Role: chat.RoleUser, Text: "hi"}); err != nil {
					t.Errorf("append: %v", err)
					return
				}
			}
		}()
	}

	// 只有追加操作时，版本号应与条目数一致。
	for i := 0; i < 200; i++ {
		entries, version := store.VersionedSnapshot()
		if uint64(len(entries)) != version {
			t.Fatalf("snapshot of %d entries labelled version %d", len(entries), version)
		}
	}
	wg.Wait()

	entries, version := store.VersionedSnapshot()
	if len(entries) != 200 || version != 200 {
		t.Fatalf("expected 200 entries at version 200, got %d at %d", len(entries), version)
	}
}
