package resources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"go.uber.org/zap"

	"github.com/shelfscan/shelfscan/internal/apierr"
	"github.com/shelfscan/shelfscan/internal/collection"
	"github.com/shelfscan/shelfscan/internal/gateway"
	"github.com/shelfscan/shelfscan/internal/models"
)

func communityPath(id int) string { return fmt.Sprintf("/api/communities/%d", id) }

// Communities controls the community directory together with the caller's
// own memberships. Load fetches both, optionally filtered by a search query.
type Communities struct {
	ctrl *collection.Controller[models.Community]
	gw   collection.Sender
	sess collection.Session
	log  *zap.Logger

	mu         sync.Mutex
	mine       []models.Community
	loadSeq    uint64
	appliedSeq uint64
}

// NewCommunities builds the community controller.
func NewCommunities(gw collection.Sender, sess collection.Session, confirm collection.Confirmer, log *zap.Logger) *Communities {
	cfg := collection.Config[models.Community]{
		Name:     "communities",
		ListPath: "/api/communities",
		ItemPath: communityPath,
		ConfirmRemove: func(c models.Community) string {
			return fmt.Sprintf("Delete the community %q?", c.Name)
		},
	}
	return &Communities{
		ctrl: collection.New(cfg, gw, sess, confirm, log),
		gw:   gw,
		sess: sess,
		log:  log,
	}
}

// Load fetches the directory (filtered by search when non-empty) and the
// caller's memberships, replacing both wholesale. Stale loads are discarded.
func (c *Communities) Load(ctx context.Context, search string) error {
	c.mu.Lock()
	c.loadSeq++
	seq := c.loadSeq
	epoch := c.sess.Epoch()
	c.mu.Unlock()

	listPath := "/api/communities"
	if search != "" {
		listPath = "/api/communities/search?q=" + url.QueryEscape(search)
	}

	all, err := c.fetchList(ctx, listPath)
	if err != nil {
		return fmt.Errorf("load communities: %w", err)
	}
	mine, err := c.fetchList(ctx, "/api/communities/mine")
	if err != nil {
		return fmt.Errorf("load communities: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if seq <= c.appliedSeq || epoch != c.sess.Epoch() {
		c.log.Debug("discarding superseded community load", zap.Uint64("seq", seq))
		return nil
	}
	c.appliedSeq = seq
	c.ctrl.Adopt(all)
	c.mine = mine
	return nil
}

func (c *Communities) fetchList(ctx context.Context, path string) ([]models.Community, error) {
	raw, err := c.gw.Send(ctx, gateway.Descriptor{
		Method:       http.MethodGet,
		Path:         path,
		AuthRequired: true,
	})
	if err != nil {
		return nil, err
	}
	var list []models.Community
	if raw != nil {
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, &apierr.ServerError{Status: http.StatusOK, Msg: "malformed community list"}
		}
	}
	if list == nil {
		list = []models.Community{}
	}
	return list, nil
}

// Items returns the directory snapshot.
func (c *Communities) Items() []models.Community { return c.ctrl.Items() }

// Mine returns the caller's memberships.
func (c *Communities) Mine() []models.Community {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.Community, len(c.mine))
	copy(out, c.mine)
	return out
}

// IsMember reports whether the caller belongs to the community.
func (c *Communities) IsMember(id int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range c.mine {
		if m.ID == id {
			return true
		}
	}
	return false
}

// IsBusy reports whether a mutation is in flight for the community.
func (c *Communities) IsBusy(id int) bool { return c.ctrl.IsBusy(id) }

// Create adds a new community; membership of the creator is server-side, so
// the new community also joins the mine list.
func (c *Communities) Create(ctx context.Context, payload models.CommunityPayload) (models.Community, error) {
	created, err := c.ctrl.Create(ctx, payload)
	if err != nil {
		return created, err
	}
	c.mu.Lock()
	c.mine = append(c.mine, created)
	c.mu.Unlock()
	return created, nil
}

// Update edits a community the caller owns.
func (c *Communities) Update(ctx context.Context, id int, payload models.CommunityPayload) (models.Community, error) {
	updated, err := c.ctrl.Update(ctx, id, payload)
	if err != nil {
		return updated, err
	}
	c.mu.Lock()
	for i := range c.mine {
		if c.mine[i].ID == id {
			c.mine[i] = updated
		}
	}
	c.mu.Unlock()
	return updated, nil
}

// Delete removes a community the caller owns, after confirmation.
func (c *Communities) Delete(ctx context.Context, id int) error {
	if err := c.ctrl.Remove(ctx, id); err != nil {
		return err
	}
	c.mu.Lock()
	c.removeMineLocked(id)
	c.mu.Unlock()
	return nil
}

// Join adds the caller to a community. Pessimistic: membership changes only
// after server confirmation.
func (c *Communities) Join(ctx context.Context, id int) error {
	busy := c.ctrl.Guard()
	if err := busy.Acquire(id, collection.OpUpdating); err != nil {
		return err
	}
	defer busy.Release(id)

	epoch := c.sess.Epoch()
	if _, err := c.gw.Send(ctx, gateway.Descriptor{
		Method:       http.MethodPost,
		Path:         communityPath(id) + "/join",
		AuthRequired: true,
	}); err != nil {
		return fmt.Errorf("join community %d: %w", id, err)
	}

	c.mu.Lock()
	if epoch != c.sess.Epoch() {
		c.mu.Unlock()
		return &apierr.AuthError{Msg: "session changed during join"}
	}
	for _, comm := range c.ctrl.Items() {
		if comm.ID == id {
			c.mine = append(c.mine, comm)
			c.mu.Unlock()
			return nil
		}
	}
	c.mu.Unlock()

	// The directory snapshot can lag behind the id the caller joined by,
	// e.g. after a filtered search. The server's membership list is
	// authoritative, so refetch it rather than invent a local record.
	mine, err := c.fetchList(ctx, "/api/communities/mine")
	if err != nil {
		return fmt.Errorf("join community %d: %w", id, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch != c.sess.Epoch() {
		return &apierr.AuthError{Msg: "session changed during join"}
	}
	c.mine = mine
	return nil
}

// Leave removes the caller from a community.
func (c *Communities) Leave(ctx context.Context, id int) error {
	busy := c.ctrl.Guard()
	if err := busy.Acquire(id, collection.OpUpdating); err != nil {
		return err
	}
	defer busy.Release(id)

	epoch := c.sess.Epoch()
	if _, err := c.gw.Send(ctx, gateway.Descriptor{
		Method:       http.MethodDelete,
		Path:         communityPath(id) + "/leave",
		AuthRequired: true,
	}); err != nil {
		return fmt.Errorf("leave community %d: %w", id, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch != c.sess.Epoch() {
		return &apierr.AuthError{Msg: "session changed during leave"}
	}
	c.removeMineLocked(id)
	return nil
}

// removeMineLocked drops id from the membership list. Callers hold mu.
func (c *Communities) removeMineLocked(id int) {
	for i := range c.mine {
		if c.mine[i].ID == id {
			c.mine = append(c.mine[:i], c.mine[i+1:]...)
			return
		}
	}
}

// Reset drops all local state on session transitions.
func (c *Communities) Reset() {
	c.ctrl.Reset()
	c.mu.Lock()
	c.mine = nil
	c.loadSeq++
	c.appliedSeq = c.loadSeq
	c.mu.Unlock()
}
