package collection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/shelfscan/shelfscan/internal/apierr"
	"github.com/shelfscan/shelfscan/internal/gateway"
	"github.com/shelfscan/shelfscan/internal/validate"
)

// Entity is any server-owned item keyed by a server-assigned id.
type Entity interface {
	EntityID() int
}

// Sender issues API requests. Satisfied by *gateway.Gateway.
type Sender interface {
	Send(ctx context.Context, d gateway.Descriptor) (json.RawMessage, error)
}

// Session exposes the session epoch used to discard completions that belong
// to a previous login. Satisfied by *session.Manager.
type Session interface {
	Epoch() uint64
}

// Confirmer asks the user to confirm a destructive operation.
type Confirmer interface {
	Confirm(message string) bool
}

// ErrConfirmationDeclined is returned by Remove when the user answers no.
var ErrConfirmationDeclined = errors.New("confirmation declined")

// Config describes one resource kind.
type Config[T Entity] struct {
	// Name labels log entries.
	Name string
	// ListPath is the GET endpoint returning the full collection.
	ListPath string
	// CreatePath is the POST endpoint; defaults to ListPath.
	CreatePath string
	// ItemPath builds the PUT/DELETE endpoint for one entity.
	ItemPath func(id int) string
	// Prepend inserts created entities at the front instead of the back.
	// Constant per resource kind.
	Prepend bool
	// ConfirmRemove builds the confirmation message for a deletion. Nil
	// means deletions need no confirmation.
	ConfirmRemove func(T) string
}

// Controller owns one ResourceCollection: the ordered entity slice, the busy
// state and the mutation protocol. All mutations are pessimistic; local state
// changes only after server confirmation.
type Controller[T Entity] struct {
	cfg     Config[T]
	gw      Sender
	sess    Session
	confirm Confirmer
	log     *zap.Logger

	mu    sync.Mutex
	items []T
	// loadSeq numbers issued loads; appliedSeq is the newest load whose
	// result was applied. Mutations raise appliedSeq to loadSeq so every
	// load still in flight is superseded.
	loadSeq    uint64
	appliedSeq uint64

	busy Busy
}

// New constructs a controller. confirm may be nil when the resource kind has
// no ConfirmRemove message.
func New[T Entity](cfg Config[T], gw Sender, sess Session, confirm Confirmer, log *zap.Logger) *Controller[T] {
	if cfg.CreatePath == "" {
		cfg.CreatePath = cfg.ListPath
	}
	return &Controller[T]{cfg: cfg, gw: gw, sess: sess, confirm: confirm, log: log}
}

// Items returns a snapshot of the collection in display order.
func (c *Controller[T]) Items() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]T, len(c.items))
	copy(out, c.items)
	return out
}

// IsBusy reports whether a mutation is in flight for id.
func (c *Controller[T]) IsBusy(id int) bool {
	_, ok := c.busy.Current(id)
	return ok
}

// Guard exposes the busy map so composed controllers can guard non-CRUD
// operations on the same entities.
func (c *Controller[T]) Guard() *Busy { return &c.busy }

// Reset drops all local state. Wired to session transitions so one user's
// collections never leak into the next session.
func (c *Controller[T]) Reset() {
	c.mu.Lock()
	c.items = nil
	c.loadSeq++
	c.appliedSeq = c.loadSeq
	c.mu.Unlock()
	c.busy.Reset()
}

// beginLoad reserves a load sequence number and records the session epoch the
// load belongs to.
func (c *Controller[T]) beginLoad() (seq, epoch uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loadSeq++
	return c.loadSeq, c.sess.Epoch()
}

// applyLoad installs a load result unless it was superseded by a newer load,
// a completed mutation, or a session transition.
func (c *Controller[T]) applyLoad(seq, epoch uint64, items []T) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if seq <= c.appliedSeq || epoch != c.sess.Epoch() {
		return false
	}
	c.items = items
	c.appliedSeq = seq
	return true
}

// Load fetches the full collection and replaces local state wholesale. A
// stale load that resolves after a newer load or mutation is discarded.
func (c *Controller[T]) Load(ctx context.Context) error {
	seq, epoch := c.beginLoad()

	raw, err := c.gw.Send(ctx, gateway.Descriptor{
		Method:       http.MethodGet,
		Path:         c.cfg.ListPath,
		AuthRequired: true,
	})
	if err != nil {
		return fmt.Errorf("load %s: %w", c.cfg.Name, err)
	}

	var items []T
	if raw != nil {
		if err := json.Unmarshal(raw, &items); err != nil {
			return &apierr.ServerError{Status: http.StatusOK, Msg: "malformed " + c.cfg.Name + " list"}
		}
	}
	if items == nil {
		items = []T{}
	}
	if !c.applyLoad(seq, epoch, items) {
		c.log.Debug("discarding superseded load", zap.String("resource", c.cfg.Name), zap.Uint64("seq", seq))
	}
	return nil
}

// Adopt installs externally fetched items as if a load had completed. Used by
// composed controllers whose parent fetch carries the child collection.
func (c *Controller[T]) Adopt(items []T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loadSeq++
	c.appliedSeq = c.loadSeq
	c.items = items
}

// supersedeLoads marks every in-flight load stale. Callers must hold mu.
func (c *Controller[T]) supersedeLoads() {
	c.appliedSeq = c.loadSeq
}

// Create validates the payload locally, issues the create request and, on
// success only, inserts the server-returned entity. The collection-level busy
// sentinel rejects a second concurrent create.
func (c *Controller[T]) Create(ctx context.Context, payload any) (T, error) {
	var zero T
	if err := validate.Struct(payload); err != nil {
		return zero, err
	}
	if err := c.busy.Acquire(CollectionKey, OpCreating); err != nil {
		return zero, err
	}
	defer c.busy.Release(CollectionKey)

	epoch := c.sess.Epoch()
	raw, err := c.gw.Send(ctx, gateway.Descriptor{
		Method:       http.MethodPost,
		Path:         c.cfg.CreatePath,
		Body:         gateway.JSONBody{Value: payload},
		AuthRequired: true,
	})
	if err != nil {
		return zero, fmt.Errorf("create %s: %w", c.cfg.Name, err)
	}

	var created T
	if err := json.Unmarshal(raw, &created); err != nil {
		return zero, &apierr.ServerError{Status: http.StatusOK, Msg: "malformed create response"}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch != c.sess.Epoch() {
		return zero, &apierr.AuthError{Msg: "session changed during create"}
	}
	if c.cfg.Prepend {
		c.items = append([]T{created}, c.items...)
	} else {
		c.items = append(c.items, created)
	}
	c.supersedeLoads()
	c.log.Debug("created", zap.String("resource", c.cfg.Name), zap.Int("id", created.EntityID()))
	return created, nil
}

// Update validates the payload, issues the update and replaces the entity
// with the server's authoritative response. A busy entity is rejected with a
// ConcurrencyError without a network call.
func (c *Controller[T]) Update(ctx context.Context, id int, payload any) (T, error) {
	var zero T
	if err := c.busy.Acquire(id, OpUpdating); err != nil {
		return zero, err
	}
	defer c.busy.Release(id)

	if err := validate.Struct(payload); err != nil {
		return zero, err
	}

	epoch := c.sess.Epoch()
	raw, err := c.gw.Send(ctx, gateway.Descriptor{
		Method:       http.MethodPut,
		Path:         c.cfg.ItemPath(id),
		Body:         gateway.JSONBody{Value: payload},
		AuthRequired: true,
	})
	if err != nil {
		return zero, fmt.Errorf("update %s %d: %w", c.cfg.Name, id, err)
	}

	var updated T
	if err := json.Unmarshal(raw, &updated); err != nil {
		return zero, &apierr.ServerError{Status: http.StatusOK, Msg: "malformed update response"}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch != c.sess.Epoch() {
		return zero, &apierr.AuthError{Msg: "session changed during update"}
	}
	for i := range c.items {
		if c.items[i].EntityID() == id {
			c.items[i] = updated
			break
		}
	}
	c.supersedeLoads()
	return updated, nil
}

// Remove deletes an entity pessimistically: it leaves the collection only
// after the server confirms. On failure the entity stays exactly where it
// was and the busy flag clears so the deletion can be retried.
func (c *Controller[T]) Remove(ctx context.Context, id int) error {
	if err := c.busy.Acquire(id, OpDeleting); err != nil {
		return err
	}
	defer c.busy.Release(id)

	if c.cfg.ConfirmRemove != nil && c.confirm != nil {
		if entity, ok := c.find(id); ok {
			if !c.confirm.Confirm(c.cfg.ConfirmRemove(entity)) {
				return ErrConfirmationDeclined
			}
		}
	}

	epoch := c.sess.Epoch()
	if _, err := c.gw.Send(ctx, gateway.Descriptor{
		Method:       http.MethodDelete,
		Path:         c.cfg.ItemPath(id),
		AuthRequired: true,
	}); err != nil {
		return fmt.Errorf("delete %s %d: %w", c.cfg.Name, id, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch != c.sess.Epoch() {
		return &apierr.AuthError{Msg: "session changed during delete"}
	}
	for i := range c.items {
		if c.items[i].EntityID() == id {
			c.items = append(c.items[:i], c.items[i+1:]...)
			break
		}
	}
	c.supersedeLoads()
	c.log.Debug("deleted", zap.String("resource", c.cfg.Name), zap.Int("id", id))
	return nil
}

func (c *Controller[T]) find(id int) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, it := range c.items {
		if it.EntityID() == id {
			return it, true
		}
	}
	var zero T
	return zero, false
}
