package router_test

import (
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/vrouted/vrouted/internal/router"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestManagerNewNodeAndHandle(t *testing.T) {
	t.Parallel()

	mgr := router.NewManager(nil)
	defer mgr.Close()

	id, err := mgr.NewNode(4, 0, "", "")
	if err != nil {
		t.Fatalf("NewNode: %v", err)
	}

	mgr.Handle(id, 0, buildControl(t, '3', "2 10.0.0.5"))

	buf := buildData(t, "10.0.0.1", "10.0.0.5")
	result, err := mgr.Handle(id, 0, buf)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if result != 2 {
		t.Errorf("Handle = %d, want 2", result)
	}
}

func TestManagerUnknownNode(t *testing.T) {
	t.Parallel()

	mgr := router.NewManager(nil)
	defer mgr.Close()
	if _, err := mgr.Handle(999, 0, make([]byte, router.HeaderSize)); err == nil {
		t.Error("Handle on unknown node: want error, got nil")
	}
}

func TestManagerSnapshot(t *testing.T) {
	t.Parallel()

	mgr := router.NewManager(nil)
	defer mgr.Close()
	id, err := mgr.NewNode(4, 0, "", "")
	if err != nil {
		t.Fatalf("NewNode: %v", err)
	}

	mgr.Handle(id, 0, buildControl(t, '3', "2 10.0.0.5"))
	mgr.Handle(id, 0, buildControl(t, '5', "10.0.0.9"))

	snap, err := mgr.Snapshot(id)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.ID != id {
		t.Errorf("snapshot ID = %d, want %d", snap.ID, id)
	}
	if _, ok := snap.RoutingTable[mustIP(t, "10.0.0.5")]; !ok {
		t.Error("snapshot missing added host route")
	}
	if len(snap.Blocked) != 1 {
		t.Errorf("snapshot Blocked = %d entries, want 1", len(snap.Blocked))
	}
}

func TestManagerRouteChangesOnDVEmit(t *testing.T) {
	t.Parallel()

	mgr := router.NewManager(nil)
	defer mgr.Close()
	id, err := mgr.NewNode(4, 0, "", "")
	if err != nil {
		t.Fatalf("NewNode: %v", err)
	}

	result, err := mgr.Handle(id, 0, buildControl(t, '0', ""))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if result != 0 {
		t.Fatalf("trigger-DV: want 0, got %d", result)
	}

	select {
	case change := <-mgr.RouteChanges():
		if change.NodeID != id {
			t.Errorf("RouteChange.NodeID = %d, want %d", change.NodeID, id)
		}
	case <-time.After(time.Second):
		t.Error("expected a RouteChange notification after a DV emit")
	}
}

func TestManagerRemoveNode(t *testing.T) {
	t.Parallel()

	mgr := router.NewManager(nil)
	defer mgr.Close()

	id, err := mgr.NewNode(2, 0, "", "")
	if err != nil {
		t.Fatalf("NewNode: %v", err)
	}

	mgr.RemoveNode(id)

	if _, err := mgr.Handle(id, 0, make([]byte, router.HeaderSize)); err == nil {
		t.Error("Handle after RemoveNode: want error, got nil")
	}

	for _, removeID := range mgr.NodeIDs() {
		if removeID == id {
			t.Errorf("NodeIDs still contains removed id %d", id)
		}
	}

	// Removing an already-removed (or never-registered) id is a no-op.
	mgr.RemoveNode(id)
	mgr.RemoveNode(999999)
}

func TestManagerNodeIDs(t *testing.T) {
	t.Parallel()

	mgr := router.NewManager(nil)
	defer mgr.Close()
	a, err := mgr.NewNode(2, 0, "", "")
	if err != nil {
		t.Fatalf("NewNode: %v", err)
	}
	b, err := mgr.NewNode(2, 0, "", "")
	if err != nil {
		t.Fatalf("NewNode: %v", err)
	}

	ids := mgr.NodeIDs()
	if len(ids) != 2 {
		t.Fatalf("NodeIDs = %v, want 2 entries", ids)
	}
	found := map[uint32]bool{}
	for _, id := range ids {
		found[id] = true
	}
	if !found[a] || !found[b] {
		t.Errorf("NodeIDs %v missing %d or %d", ids, a, b)
	}
}
