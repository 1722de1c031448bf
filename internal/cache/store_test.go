package cache

import (
	"testing"

	"github.com/cihanisildar/abroado-client/internal/content"
)

func TestGetReturnsIsolatedCopies(t *testing.T) {
	store := NewStore()
	key := ViewKey{Kind: KindPost, Selector: "post-1"}
	store.Put(key, []content.Entity{&content.Post{ID: "post-1", Title: "original"}})

	entities, ok := store.Get(key)
	if !ok {
		t.Fatal("expected view")
	}
	entities[0].(*content.Post).Title = "mutated"

	again, _ := store.Get(key)
	if again[0].(*content.Post).Title != "original" {
		t.Fatal("caller mutation leaked into the store")
	}
}

func TestAppendDeduplicatesByID(t *testing.T) {
	store := NewStore()
	key := ViewKey{Kind: KindRoomMessages, Selector: "r1"}
	store.Put(key, nil)

	message := &content.ChatMessage{ID: "srv-42", RoomID: "r1", Body: "hi"}
	if !store.Append(key, message) {
		t.Fatal("first append should succeed")
	}
	if store.Append(key, message) {
		t.Fatal("second append with same id should be refused")
	}

	entities, _ := store.Get(key)
	if len(entities) != 1 {
		t.Fatalf("expected exactly one message, got %d", len(entities))
	}
}

func TestAppendRefusedForMissingView(t *testing.T) {
	store := NewStore()
	if store.Append(ViewKey{Kind: KindRoomMessages, Selector: "ghost"}, &content.ChatMessage{ID: "m1"}) {
		t.Fatal("append into a missing view must be refused")
	}
}

func TestReplaceByIDSwapsInPlace(t *testing.T) {
	store := NewStore()
	key := ViewKey{Kind: KindRoomMessages, Selector: "r1"}
	store.Put(key, []content.Entity{
		&content.ChatMessage{ID: "srv-1", RoomID: "r1", Body: "earlier"},
		&content.ChatMessage{ID: "tmp-1", RoomID: "r1", Body: "hi", Pending: true},
	})

	confirmed := &content.ChatMessage{ID: "srv-42", RoomID: "r1", Body: "hi"}
	if !store.ReplaceByID(key, "tmp-1", confirmed) {
		t.Fatal("expected replacement to succeed")
	}

	entities, _ := store.Get(key)
	if len(entities) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(entities))
	}
	last := entities[1].(*content.ChatMessage)
	if last.ID != "srv-42" || last.Pending {
		t.Fatalf("echo not reconciled: %+v", last)
	}
	for _, entity := range entities {
		if entity.EntityID() == "tmp-1" {
			t.Fatal("temporary id still present after reconciliation")
		}
	}
}

func TestRemoveMissingTargetIsNoop(t *testing.T) {
	store := NewStore()
	key := ViewKey{Kind: KindComments, Selector: "post-1"}
	store.Put(key, []content.Entity{&content.Comment{ID: "c1", PostID: "post-1"}})

	if store.Remove(key, "c2") {
		t.Fatal("removing an absent id should report false")
	}
	if !store.Remove(key, "c1") {
		t.Fatal("expected removal of held id")
	}
	entities, _ := store.Get(key)
	if len(entities) != 0 {
		t.Fatalf("expected empty view, got %d entries", len(entities))
	}
}
