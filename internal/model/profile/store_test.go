package profile

import (
	"testing"

	"github.com/pkg/errors"
)

func TestMemoryStoreGet(t *testing.T) {
	store := NewMemoryStore(Seed())

	p, err := store.Get(DefaultID)
	if err != nil {
		t.Fatalf("expected %s to exist: %v", DefaultID, err)
	}
	if p.Welcome == "" {
		t.Fatal("default profile needs a welcome line")
	}

	if p, err := store.Get(""); err != nil || p.ID != DefaultID {
		t.Fatalf("empty id should select the default profile, got %q, %v", p.ID, err)
	}

	_, err = store.Get("missing")
	if !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("expected ErrProfileNotFound, got %v", err)
	}
}

func TestMemoryStoreListKeepsOrder(t *testing.T) {
	seed := Seed()
	store := NewMemoryStore(seed)

	items := store.List()
	if len(items) != len(seed) {
		t.Fatalf("expected %d profiles, got %d", len(seed), len(items))
	}
	for i := range seed {
		if items[i].ID != seed[i].ID {
			t.Fatalf("position %d: expected %s, got %s", i, seed[i].ID, items[i].ID)
		}
	}

	items[0].Name = "changed"
	if store.List()[0].Name == "changed" {
		t.Fatal("List must return a copy")
	}
}

func TestMemoryStoreDuplicateReplaces(t *testing.T) {
	store := NewMemoryStore([]Profile{{ID: "a", Name: "first"}, {ID: "b"}, {ID: "a", Name: "second"}})

	items := store.List()
	if len(items) != 2 || items[0].ID != "a" || items[0].Name != "second" {
		t.Fatalf("unexpected list %+v", items)
	}
}
