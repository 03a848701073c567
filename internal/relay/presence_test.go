package relay

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"classroom-relay/internal/model"
)

func newTestClient(registry *Registry, name string, role model.UserRole) (*Client, *fakeConn) {
	conn := &fakeConn{}
	return registry.Register(conn, 1, name, role), conn
}

func decodePeerInfo(t *testing.T, env Envelope) PeerInfo {
	t.Helper()
	var p PeerInfo
	if err := json.Unmarshal(env.Data, &p); err != nil {
		t.Fatalf("bad user-joined payload: %v", err)
	}
	return p
}

// Three participants join the same room one after another. Each joiner
// gets the roster as it was before its join, and every earlier member is
// told about the newcomer exactly once.
func TestSequentialJoinsRosterAndNotices(t *testing.T) {
	registry := NewRegistry()
	rooms := NewCallRooms()

	a, connA := newTestClient(registry, "A", model.RoleTutor)
	b, connB := newTestClient(registry, "B", model.RoleStudent)
	c, _ := newTestClient(registry, "C", model.RoleStudent)

	if roster := rooms.Join("R1", a); len(roster) != 0 {
		t.Fatalf("first joiner should see empty roster, got %v", roster)
	}

	roster := rooms.Join("R1", b)
	if len(roster) != 1 || roster[0].ConnectionID != a.ID {
		t.Fatalf("B should see [A], got %v", roster)
	}
	joins := connA.eventsNamed(t, EventUserJoined)
	if len(joins) != 1 {
		t.Fatalf("A should have one user-joined, got %d", len(joins))
	}
	if got := decodePeerInfo(t, joins[0]); got.ConnectionID != b.ID || got.DisplayName != "B" {
		t.Fatalf("A got wrong join notice: %+v", got)
	}

	roster = rooms.Join("R1", c)
	if len(roster) != 2 {
		t.Fatalf("C should see 2 peers, got %v", roster)
	}
	seen := map[string]bool{}
	for _, p := range roster {
		seen[p.ConnectionID] = true
	}
	if !seen[a.ID] || !seen[b.ID] {
		t.Fatalf("C's roster missing a member: %v", roster)
	}

	if n := len(connA.eventsNamed(t, EventUserJoined)); n != 2 {
		t.Fatalf("A should have two user-joined notices, got %d", n)
	}
	if n := len(connB.eventsNamed(t, EventUserJoined)); n != 1 {
		t.Fatalf("B should have one user-joined notice, got %d", n)
	}
	if rooms.MemberCount("R1") != 3 {
		t.Fatalf("expected 3 members, got %d", rooms.MemberCount("R1"))
	}
}

func TestLeaveNotifiesRemainingExactlyOnce(t *testing.T) {
	registry := NewRegistry()
	rooms := NewCallRooms()

	a, connA := newTestClient(registry, "A", model.RoleTutor)
	b, connB := newTestClient(registry, "B", model.RoleStudent)
	c, connC := newTestClient(registry, "C", model.RoleStudent)
	rooms.Join("R1", a)
	rooms.Join("R1", b)
	rooms.Join("R1", c)

	rooms.Leave("R1", b.ID)

	for name, conn := range map[string]*fakeConn{"A": connA, "C": connC} {
		lefts := conn.eventsNamed(t, EventUserLeft)
		if len(lefts) != 1 {
			t.Fatalf("%s should have one user-left, got %d", name, len(lefts))
		}
		var p UserLeftPayload
		if err := json.Unmarshal(lefts[0].Data, &p); err != nil {
			t.Fatalf("bad user-left payload: %v", err)
		}
		if p.ConnectionID != b.ID {
			t.Fatalf("%s got user-left for %s, want %s", name, p.ConnectionID, b.ID)
		}
	}

	if n := len(connB.eventsNamed(t, EventUserLeft)); n != 0 {
		t.Fatalf("departed member should get no user-left, got %d", n)
	}
	if rooms.MemberCount("R1") != 2 {
		t.Fatalf("expected 2 remaining, got %d", rooms.MemberCount("R1"))
	}
	if b.CallRoom() != "" {
		t.Fatalf("departed member still tracks room %q", b.CallRoom())
	}
}

func TestLeaveWithoutJoinIsNoop(t *testing.T) {
	registry := NewRegistry()
	rooms := NewCallRooms()

	a, connA := newTestClient(registry, "A", model.RoleTutor)
	rooms.Join("R1", a)

	rooms.Leave("R1", "never-joined")
	rooms.Leave("no-such-room", a.ID)

	if n := len(connA.eventsNamed(t, EventUserLeft)); n != 0 {
		t.Fatalf("no-op leave produced %d notices", n)
	}
	if rooms.MemberCount("R1") != 1 {
		t.Fatalf("membership changed by no-op leave: %d", rooms.MemberCount("R1"))
	}
}

// A repeated join for the room the connection is already in must not
// hand the joiner a roster containing itself or notify it of its own
// arrival; that is what spawns self peer connections on the client.
func TestRejoinSameRoomExcludesSelf(t *testing.T) {
	registry := NewRegistry()
	rooms := NewCallRooms()

	a, connA := newTestClient(registry, "A", model.RoleTutor)
	b, _ := newTestClient(registry, "B", model.RoleStudent)
	rooms.Join("R1", a)
	rooms.Join("R1", b)

	roster := rooms.Join("R1", a)

	if len(roster) != 1 || roster[0].ConnectionID != b.ID {
		t.Fatalf("rejoin roster should be [B], got %v", roster)
	}
	for _, env := range connA.eventsNamed(t, EventUserJoined) {
		if p := decodePeerInfo(t, env); p.ConnectionID == a.ID {
			t.Fatalf("joiner was notified of its own arrival")
		}
	}
	if rooms.MemberCount("R1") != 2 {
		t.Fatalf("rejoin changed membership: %d", rooms.MemberCount("R1"))
	}
}

// Raceless by inspection is not enough here; this exists for the race
// detector, which flags unguarded nickname reads during roster builds.
func TestRenameDuringConcurrentJoins(t *testing.T) {
	registry := NewRegistry()
	rooms := NewCallRooms()

	a, _ := newTestClient(registry, "A", model.RoleTutor)
	rooms.Join("R1", a)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			a.SetNickname(fmt.Sprintf("A%d", i))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			b, _ := newTestClient(registry, "B", model.RoleStudent)
			rooms.Join("R1", b)
			rooms.Leave("R1", b.ID)
		}
	}()
	wg.Wait()

	if rooms.MemberCount("R1") != 1 {
		t.Fatalf("expected only A left, got %d", rooms.MemberCount("R1"))
	}
}

func TestRoomRemovedWhenLastMemberLeaves(t *testing.T) {
	registry := NewRegistry()
	rooms := NewCallRooms()

	a, _ := newTestClient(registry, "A", model.RoleTutor)
	b, _ := newTestClient(registry, "B", model.RoleStudent)
	rooms.Join("R1", a)
	rooms.Join("R1", b)

	rooms.Leave("R1", a.ID)
	if rooms.Count() != 1 {
		t.Fatalf("room dropped while still occupied")
	}

	rooms.Leave("R1", b.ID)
	if rooms.Count() != 0 {
		t.Fatalf("empty room not removed, count %d", rooms.Count())
	}
}

// The empty-room GC closes the room it removes; a join that still holds
// the old pointer must end up in a live room the table knows about, not
// stranded in the orphan.
func TestJoinAfterRemovalLandsInLiveRoom(t *testing.T) {
	registry := NewRegistry()
	rooms := NewCallRooms()

	a, _ := newTestClient(registry, "A", model.RoleTutor)
	rooms.Join("R1", a)
	stale := rooms.get("R1")

	rooms.Leave("R1", a.ID)

	stale.mu.Lock()
	closed := stale.closed
	stale.mu.Unlock()
	if !closed {
		t.Fatalf("removed room was not marked closed")
	}

	b, _ := newTestClient(registry, "B", model.RoleStudent)
	rooms.Join("R1", b)

	if rooms.get("R1") == stale {
		t.Fatalf("join resurrected the removed room")
	}
	if rooms.MemberCount("R1") != 1 {
		t.Fatalf("joiner not reachable through the table: %d members", rooms.MemberCount("R1"))
	}
}

func TestFailedDeliveryDoesNotBlockJoin(t *testing.T) {
	registry := NewRegistry()
	rooms := NewCallRooms()

	a, connA := newTestClient(registry, "A", model.RoleTutor)
	rooms.Join("R1", a)
	connA.fail()

	b, _ := newTestClient(registry, "B", model.RoleStudent)
	roster := rooms.Join("R1", b)

	if len(roster) != 1 || roster[0].ConnectionID != a.ID {
		t.Fatalf("join should succeed despite failed notice, roster %v", roster)
	}
	if rooms.MemberCount("R1") != 2 {
		t.Fatalf("expected 2 members, got %d", rooms.MemberCount("R1"))
	}
}
