package resources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/shelfscan/shelfscan/internal/apierr"
	"github.com/shelfscan/shelfscan/internal/collection"
	"github.com/shelfscan/shelfscan/internal/gateway"
	"github.com/shelfscan/shelfscan/internal/models"
)

func friendPath(userID int) string { return fmt.Sprintf("/api/friends/%d", userID) }

// Friends controls the friendship state: the confirmed friend list plus the
// incoming and outgoing request queues. The three lists are server-computed
// from the same underlying relation, so every mutation is followed by a
// reload rather than a local edit.
type Friends struct {
	gw      collection.Sender
	sess    collection.Session
	confirm collection.Confirmer
	log     *zap.Logger

	// busy guards per-user mutations: a double-click on accept must not
	// issue a second request for the same user.
	busy collection.Busy

	mu         sync.Mutex
	friends    []models.User
	incoming   []models.FriendRequest
	outgoing   []models.FriendRequest
	loadSeq    uint64
	appliedSeq uint64
}

// NewFriends builds the friends controller.
func NewFriends(gw collection.Sender, sess collection.Session, confirm collection.Confirmer, log *zap.Logger) *Friends {
	return &Friends{gw: gw, sess: sess, confirm: confirm, log: log}
}

// Load fetches friends, incoming requests and outgoing requests, replacing
// all three wholesale. Stale loads are discarded.
func (f *Friends) Load(ctx context.Context) error {
	f.mu.Lock()
	f.loadSeq++
	seq := f.loadSeq
	epoch := f.sess.Epoch()
	f.mu.Unlock()

	var friends []models.User
	if err := f.fetch(ctx, "/api/friends", &friends); err != nil {
		return fmt.Errorf("load friends: %w", err)
	}
	var incoming, outgoing []models.FriendRequest
	if err := f.fetch(ctx, "/api/friends/requests", &incoming); err != nil {
		return fmt.Errorf("load friend requests: %w", err)
	}
	if err := f.fetch(ctx, "/api/friends/outgoing", &outgoing); err != nil {
		return fmt.Errorf("load outgoing requests: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if seq <= f.appliedSeq || epoch != f.sess.Epoch() {
		f.log.Debug("discarding superseded friends load", zap.Uint64("seq", seq))
		return nil
	}
	f.appliedSeq = seq
	f.friends = friends
	f.incoming = incoming
	f.outgoing = outgoing
	return nil
}

func (f *Friends) fetch(ctx context.Context, path string, out any) error {
	raw, err := f.gw.Send(ctx, gateway.Descriptor{
		Method:       http.MethodGet,
		Path:         path,
		AuthRequired: true,
	})
	if err != nil {
		return err
	}
	if raw == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &apierr.ServerError{Status: http.StatusOK, Msg: "malformed friend list"}
	}
	return nil
}

// Friends returns the confirmed friend snapshot.
func (f *Friends) Friends() []models.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.User, len(f.friends))
	copy(out, f.friends)
	return out
}

// Incoming returns the pending incoming requests.
func (f *Friends) Incoming() []models.FriendRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.FriendRequest, len(f.incoming))
	copy(out, f.incoming)
	return out
}

// Outgoing returns the pending outgoing requests.
func (f *Friends) Outgoing() []models.FriendRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.FriendRequest, len(f.outgoing))
	copy(out, f.outgoing)
	return out
}

// IsBusy reports whether a mutation is in flight for the given user.
func (f *Friends) IsBusy(userID int) bool {
	_, ok := f.busy.Current(userID)
	return ok
}

// mutate runs one guarded friend mutation and reloads the lists on success.
func (f *Friends) mutate(ctx context.Context, userID int, op collection.Op, method, action string) error {
	if err := f.busy.Acquire(userID, op); err != nil {
		return err
	}
	err := func() error {
		defer f.busy.Release(userID)
		if _, err := f.gw.Send(ctx, gateway.Descriptor{
			Method:       method,
			Path:         friendPath(userID),
			AuthRequired: true,
		}); err != nil {
			return fmt.Errorf("%s friend %d: %w", action, userID, err)
		}
		return nil
	}()
	if err != nil {
		return err
	}
	return f.Load(ctx)
}

// Request sends a friend request to userID.
func (f *Friends) Request(ctx context.Context, userID int) error {
	return f.mutate(ctx, userID, collection.OpCreating, http.MethodPost, "request")
}

// Accept confirms an incoming request from userID.
func (f *Friends) Accept(ctx context.Context, userID int) error {
	return f.mutate(ctx, userID, collection.OpUpdating, http.MethodPost, "accept")
}

// Decline rejects an incoming request, or cancels an outgoing one.
func (f *Friends) Decline(ctx context.Context, userID int) error {
	return f.mutate(ctx, userID, collection.OpDeleting, http.MethodDelete, "decline")
}

// Remove unfriends userID after confirmation.
func (f *Friends) Remove(ctx context.Context, userID int) error {
	if f.confirm != nil && !f.confirm.Confirm("Remove this friend?") {
		return collection.ErrConfirmationDeclined
	}
	return f.mutate(ctx, userID, collection.OpDeleting, http.MethodDelete, "remove")
}

// ShelvesOf fetches a friend's public bookshelves.
func (f *Friends) ShelvesOf(ctx context.Context, userID int) ([]models.Shelf, error) {
	raw, err := f.gw.Send(ctx, gateway.Descriptor{
		Method:       http.MethodGet,
		Path:         fmt.Sprintf("/api/users/%d/bookshelves", userID),
		AuthRequired: true,
	})
	if err != nil {
		return nil, fmt.Errorf("load friend shelves: %w", err)
	}
	var shelves []models.Shelf
	if raw != nil {
		if err := json.Unmarshal(raw, &shelves); err != nil {
			return nil, &apierr.ServerError{Status: http.StatusOK, Msg: "malformed shelf list"}
		}
	}
	return shelves, nil
}

// Reset drops all local state on session transitions.
func (f *Friends) Reset() {
	f.mu.Lock()
	f.friends = nil
	f.incoming = nil
	f.outgoing = nil
	f.loadSeq++
	f.appliedSeq = f.loadSeq
	f.mu.Unlock()
	f.busy.Reset()
}
