package relay

import (
	"testing"

	"classroom-relay/internal/model"
)

func TestRegisterAssignsUniqueIDs(t *testing.T) {
	registry := NewRegistry()

	a := registry.Register(&fakeConn{}, 1, "Alice", model.RoleTutor)
	b := registry.Register(&fakeConn{}, 1, "Alice", model.RoleTutor)

	if a.ID == b.ID {
		t.Fatalf("two registrations got the same id %s", a.ID)
	}
	if registry.Count() != 2 {
		t.Fatalf("expected 2 connections, got %d", registry.Count())
	}

	got, ok := registry.Lookup(a.ID)
	if !ok || got != a {
		t.Fatalf("lookup of %s returned %v, %v", a.ID, got, ok)
	}
}

func TestUnregisterIsIdempotent(t *testing.T) {
	registry := NewRegistry()
	c := registry.Register(&fakeConn{}, 7, "Bob", model.RoleStudent)

	registry.Unregister(c.ID)
	registry.Unregister(c.ID)
	registry.Unregister("no-such-id")

	if registry.Count() != 0 {
		t.Fatalf("expected empty registry, got %d", registry.Count())
	}
	if _, ok := registry.Lookup(c.ID); ok {
		t.Fatal("unregistered connection still resolvable")
	}
}

func TestRoomsOfTracksMemberships(t *testing.T) {
	registry := NewRegistry()
	c := registry.Register(&fakeConn{}, 7, "Bob", model.RoleStudent)

	if rooms := registry.RoomsOf(c.ID); len(rooms) != 0 {
		t.Fatalf("fresh connection should be in no rooms, got %v", rooms)
	}

	c.setCallRoom("room-1")
	c.setBoardRoom("board-9")

	rooms := registry.RoomsOf(c.ID)
	if len(rooms) != 2 {
		t.Fatalf("expected 2 rooms, got %v", rooms)
	}

	c.setCallRoom("")
	rooms = registry.RoomsOf(c.ID)
	if len(rooms) != 1 || rooms[0] != "board-9" {
		t.Fatalf("expected only board-9, got %v", rooms)
	}

	if rooms := registry.RoomsOf("no-such-id"); rooms != nil {
		t.Fatalf("unknown connection should return nil, got %v", rooms)
	}
}
