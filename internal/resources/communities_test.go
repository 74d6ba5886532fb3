package resources

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/shelfscan/shelfscan/internal/apierr"
	"github.com/shelfscan/shelfscan/internal/collection"
	"github.com/shelfscan/shelfscan/internal/models"
)

func newCommunities(t *testing.T, confirm collection.Confirmer) (*Communities, *routeSender) {
	t.Helper()
	gw := newRouteSender(func(key string) { t.Errorf("unexpected request %s", key) })
	gw.respond("GET", "/api/communities", `[
		{"id":1,"name":"Golden Age SF","owner_id":2},
		{"id":2,"name":"Poetry Circle","owner_id":7}
	]`)
	gw.respond("GET", "/api/communities/mine", `[{"id":2,"name":"Poetry Circle","owner_id":7}]`)
	return NewCommunities(gw, &fixedEpoch{}, confirm, zap.NewNop()), gw
}

func TestCommunities_LoadDirectoryAndMine(t *testing.T) {
	c, _ := newCommunities(t, nil)
	if err := c.Load(context.Background(), ""); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if items := c.Items(); len(items) != 2 {
		t.Errorf("directory = %+v; want 2 communities", items)
	}
	if mine := c.Mine(); len(mine) != 1 || mine[0].ID != 2 {
		t.Errorf("mine = %+v; want [Poetry Circle]", mine)
	}
	if !c.IsMember(2) || c.IsMember(1) {
		t.Error("membership must reflect the mine list")
	}
}

func TestCommunities_SearchUsesSearchEndpoint(t *testing.T) {
	c, gw := newCommunities(t, nil)
	gw.respond("GET", "/api/communities/search?q=science+fiction", `[{"id":1,"name":"Golden Age SF","owner_id":2}]`)

	if err := c.Load(context.Background(), "science fiction"); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if n := gw.callCount("GET /api/communities/search?q=science+fiction"); n != 1 {
		t.Errorf("search endpoint hit %d times; want 1", n)
	}
	if n := gw.callCount("GET /api/communities"); n != 0 {
		t.Errorf("unfiltered list hit %d times; want 0", n)
	}
	if items := c.Items(); len(items) != 1 || items[0].ID != 1 {
		t.Errorf("directory = %+v; want only the match", items)
	}
}

func TestCommunities_CreateJoinsMine(t *testing.T) {
	c, gw := newCommunities(t, nil)
	if err := c.Load(context.Background(), ""); err != nil {
		t.Fatalf("Load: %v", err)
	}

	gw.respond("POST", "/api/communities", `{"id":5,"name":"Readers of Gene Wolfe","owner_id":9}`)
	created, err := c.Create(context.Background(), models.CommunityPayload{Name: "Readers of Gene Wolfe"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID != 5 {
		t.Errorf("created id = %d; want 5", created.ID)
	}
	if !c.IsMember(5) {
		t.Error("creator must be a member of the new community")
	}
	if items := c.Items(); len(items) != 3 {
		t.Errorf("directory = %+v; want the new community listed", items)
	}
}

func TestCommunities_JoinAndLeave(t *testing.T) {
	c, gw := newCommunities(t, nil)
	if err := c.Load(context.Background(), ""); err != nil {
		t.Fatalf("Load: %v", err)
	}

	gw.respond("POST", "/api/communities/1/join", `{"message":"joined"}`)
	if err := c.Join(context.Background(), 1); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if !c.IsMember(1) {
		t.Error("membership must be recorded after a confirmed join")
	}

	gw.respond("DELETE", "/api/communities/1/leave", "")
	if err := c.Leave(context.Background(), 1); err != nil {
		t.Fatalf("Leave: %v", err)
	}
	if c.IsMember(1) {
		t.Error("membership must be dropped after a confirmed leave")
	}
}

func TestCommunities_JoinOutsideDirectorySnapshot(t *testing.T) {
	c, gw := newCommunities(t, nil)
	gw.respond("GET", "/api/communities/search?q=poetry", `[{"id":2,"name":"Poetry Circle","owner_id":7}]`)
	if err := c.Load(context.Background(), "poetry"); err != nil {
		t.Fatalf("Load: %v", err)
	}

	// The joined id is absent from the filtered directory, so the
	// membership list has to come back from the server.
	gw.respond("POST", "/api/communities/9/join", `{"message":"joined"}`)
	gw.respond("GET", "/api/communities/mine", `[
		{"id":2,"name":"Poetry Circle","owner_id":7},
		{"id":9,"name":"Weird Fiction","owner_id":3}
	]`)
	if err := c.Join(context.Background(), 9); err != nil {
		t.Fatalf("Join: %v", err)
	}

	if !c.IsMember(9) {
		t.Error("membership must be recorded even when the directory lacks the community")
	}
	if !c.IsMember(2) {
		t.Error("existing memberships must survive the refresh")
	}
	if n := gw.callCount("GET /api/communities/mine"); n != 2 {
		t.Errorf("mine endpoint hit %d times; want the load plus one refresh", n)
	}
}

func TestCommunities_JoinFailureLeavesMembership(t *testing.T) {
	c, gw := newCommunities(t, nil)
	if err := c.Load(context.Background(), ""); err != nil {
		t.Fatalf("Load: %v", err)
	}

	gw.fail("POST", "/api/communities/1/join", &apierr.ServerError{Status: 500, Msg: "boom"})
	if err := c.Join(context.Background(), 1); err == nil {
		t.Fatal("Join should propagate the failure")
	}
	if c.IsMember(1) {
		t.Error("a failed join must not record membership")
	}
	if c.IsBusy(1) {
		t.Error("busy flag must clear after failure")
	}
}

func TestCommunities_UpdateSyncsMine(t *testing.T) {
	c, gw := newCommunities(t, nil)
	if err := c.Load(context.Background(), ""); err != nil {
		t.Fatalf("Load: %v", err)
	}

	gw.respond("PUT", "/api/communities/2", `{"id":2,"name":"Poetry & Prose","owner_id":7}`)
	if _, err := c.Update(context.Background(), 2, models.CommunityPayload{Name: "Poetry & Prose"}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	mine := c.Mine()
	if len(mine) != 1 || mine[0].Name != "Poetry & Prose" {
		t.Errorf("mine = %+v; want the rename mirrored", mine)
	}
}

func TestCommunities_DeleteRemovesEverywhere(t *testing.T) {
	c, gw := newCommunities(t, alwaysConfirm{})
	if err := c.Load(context.Background(), ""); err != nil {
		t.Fatalf("Load: %v", err)
	}

	gw.respond("DELETE", "/api/communities/2", "")
	if err := c.Delete(context.Background(), 2); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if c.IsMember(2) {
		t.Error("membership must go with the community")
	}
	for _, comm := range c.Items() {
		if comm.ID == 2 {
			t.Error("deleted community still in the directory")
		}
	}
}

func TestCommunities_DeleteDeclined(t *testing.T) {
	c, gw := newCommunities(t, neverConfirm{})
	if err := c.Load(context.Background(), ""); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if err := c.Delete(context.Background(), 2); !errors.Is(err, collection.ErrConfirmationDeclined) {
		t.Fatalf("err = %v; want ErrConfirmationDeclined", err)
	}
	if n := gw.callCount("DELETE /api/communities/2"); n != 0 {
		t.Errorf("delete requests = %d; want 0", n)
	}
}

func TestCommunities_Reset(t *testing.T) {
	c, _ := newCommunities(t, nil)
	if err := c.Load(context.Background(), ""); err != nil {
		t.Fatalf("Load: %v", err)
	}

	c.Reset()

	if len(c.Items()) != 0 || len(c.Mine()) != 0 {
		t.Error("directory and memberships must be dropped on reset")
	}
}
