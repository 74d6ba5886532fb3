package resources

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/shelfscan/shelfscan/internal/apierr"
	"github.com/shelfscan/shelfscan/internal/collection"
)

func newFriends(t *testing.T, confirm collection.Confirmer) (*Friends, *routeSender) {
	t.Helper()
	gw := newRouteSender(func(key string) { t.Errorf("unexpected request %s", key) })
	gw.respond("GET", "/api/friends", `[{"id":2,"username":"gene"}]`)
	gw.respond("GET", "/api/friends/requests", `[{"id":31,"from_user":{"id":3,"username":"ray"}}]`)
	gw.respond("GET", "/api/friends/outgoing", `[{"id":32,"to_user":{"id":4,"username":"octavia"}}]`)
	return NewFriends(gw, &fixedEpoch{}, confirm, zap.NewNop()), gw
}

func TestFriends_LoadAllThreeLists(t *testing.T) {
	f, _ := newFriends(t, nil)
	if err := f.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if friends := f.Friends(); len(friends) != 1 || friends[0].Username != "gene" {
		t.Errorf("friends = %+v; want [gene]", friends)
	}
	if in := f.Incoming(); len(in) != 1 || in[0].FromUser.Username != "ray" {
		t.Errorf("incoming = %+v; want request from ray", in)
	}
	if out := f.Outgoing(); len(out) != 1 || out[0].ToUser.Username != "octavia" {
		t.Errorf("outgoing = %+v; want request to octavia", out)
	}
}

func TestFriends_AcceptReloads(t *testing.T) {
	f, gw := newFriends(t, nil)
	if err := f.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	// After the accept the server moves ray into the friend list.
	gw.respond("POST", "/api/friends/3", `{"message":"accepted"}`)
	gw.respond("GET", "/api/friends", `[{"id":2,"username":"gene"},{"id":3,"username":"ray"}]`)
	gw.respond("GET", "/api/friends/requests", `[]`)

	if err := f.Accept(context.Background(), 3); err != nil {
		t.Fatalf("Accept: %v", err)
	}

	if friends := f.Friends(); len(friends) != 2 {
		t.Errorf("friends = %+v; want gene and ray", friends)
	}
	if in := f.Incoming(); len(in) != 0 {
		t.Errorf("incoming = %+v; want empty after accept", in)
	}
}

func TestFriends_MutationFailureSkipsReload(t *testing.T) {
	f, gw := newFriends(t, nil)
	if err := f.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	loads := gw.callCount("GET /api/friends")

	gw.fail("POST", "/api/friends/9", &apierr.ServerError{Status: 404, Msg: "user not found"})
	if err := f.Request(context.Background(), 9); err == nil {
		t.Fatal("Request should propagate the failure")
	}

	if got := gw.callCount("GET /api/friends"); got != loads {
		t.Errorf("friend list fetched %d times; a failed mutation must not reload", got)
	}
	if f.IsBusy(9) {
		t.Error("busy flag must clear after failure")
	}
}

func TestFriends_BusyGuard(t *testing.T) {
	f, gw := newFriends(t, nil)
	if err := f.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if err := f.busy.Acquire(3, collection.OpUpdating); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	err := f.Accept(context.Background(), 3)
	var ce *apierr.ConcurrencyError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v; want ConcurrencyError", err)
	}
	if n := gw.callCount("POST /api/friends/3"); n != 0 {
		t.Errorf("requests for busy user = %d; want 0", n)
	}
}

func TestFriends_RemoveNeedsConfirmation(t *testing.T) {
	f, gw := newFriends(t, neverConfirm{})
	if err := f.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if err := f.Remove(context.Background(), 2); !errors.Is(err, collection.ErrConfirmationDeclined) {
		t.Fatalf("err = %v; want ErrConfirmationDeclined", err)
	}
	if n := gw.callCount("DELETE /api/friends/2"); n != 0 {
		t.Errorf("delete requests = %d; want 0", n)
	}
	if friends := f.Friends(); len(friends) != 1 {
		t.Errorf("friends = %+v; want untouched", friends)
	}
}

func TestFriends_DeclineCancelsOutgoing(t *testing.T) {
	f, gw := newFriends(t, nil)
	if err := f.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	gw.respond("DELETE", "/api/friends/4", "")
	gw.respond("GET", "/api/friends/outgoing", `[]`)
	if err := f.Decline(context.Background(), 4); err != nil {
		t.Fatalf("Decline: %v", err)
	}
	if out := f.Outgoing(); len(out) != 0 {
		t.Errorf("outgoing = %+v; want empty after cancel", out)
	}
}

func TestFriends_ShelvesOf(t *testing.T) {
	f, gw := newFriends(t, nil)
	gw.respond("GET", "/api/users/2/bookshelves", `[{"id":8,"name":"Gene's shelf","book_count":3}]`)

	shelves, err := f.ShelvesOf(context.Background(), 2)
	if err != nil {
		t.Fatalf("ShelvesOf: %v", err)
	}
	if len(shelves) != 1 || shelves[0].ID != 8 {
		t.Errorf("shelves = %+v; want [id 8]", shelves)
	}
}

func TestFriends_Reset(t *testing.T) {
	f, _ := newFriends(t, nil)
	if err := f.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := f.busy.Acquire(3, collection.OpUpdating); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	f.Reset()

	if len(f.Friends()) != 0 || len(f.Incoming()) != 0 || len(f.Outgoing()) != 0 {
		t.Error("all three lists must be dropped on reset")
	}
	if f.IsBusy(3) {
		t.Error("busy marks must be dropped on reset")
	}
}
