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
	"github.com/shelfscan/shelfscan/internal/validate"
)

// ShelfDetail composes the parent shelf metadata with its child book
// collection. One Load fetches both; they are mutated independently
// afterwards.
type ShelfDetail struct {
	shelfID int
	gw      collection.Sender
	sess    collection.Session
	confirm collection.Confirmer
	log     *zap.Logger

	books *collection.Controller[models.Book]

	mu         sync.Mutex
	shelf      *models.Shelf
	loadSeq    uint64
	appliedSeq uint64
	// shelfBusy serializes mutations of the shelf itself; the books have
	// their own guard inside the child controller.
	shelfBusy collection.Busy
}

// NewShelfDetail builds the composed controller for one shelf.
func NewShelfDetail(shelfID int, gw collection.Sender, sess collection.Session, confirm collection.Confirmer, log *zap.Logger) *ShelfDetail {
	booksCfg := collection.Config[models.Book]{
		Name:       "books",
		CreatePath: fmt.Sprintf("/api/bookshelves/%d/books", shelfID),
		ItemPath:   func(id int) string { return fmt.Sprintf("/api/books/%d", id) },
		ConfirmRemove: func(b models.Book) string {
			return fmt.Sprintf("Delete %q from this shelf?", b.Title)
		},
	}
	return &ShelfDetail{
		shelfID: shelfID,
		gw:      gw,
		sess:    sess,
		confirm: confirm,
		log:     log,
		books:   collection.New(booksCfg, gw, sess, confirm, log),
	}
}

// Load fetches the shelf and its books in one request, replacing both.
func (d *ShelfDetail) Load(ctx context.Context) error {
	d.mu.Lock()
	d.loadSeq++
	seq := d.loadSeq
	epoch := d.sess.Epoch()
	d.mu.Unlock()

	raw, err := d.gw.Send(ctx, gateway.Descriptor{
		Method:       http.MethodGet,
		Path:         shelfPath(d.shelfID),
		AuthRequired: true,
	})
	if err != nil {
		return fmt.Errorf("load shelf %d: %w", d.shelfID, err)
	}

	var detail models.ShelfDetail
	if err := json.Unmarshal(raw, &detail); err != nil {
		return &apierr.ServerError{Status: http.StatusOK, Msg: "malformed shelf detail"}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if seq <= d.appliedSeq || epoch != d.sess.Epoch() {
		d.log.Debug("discarding superseded shelf detail load", zap.Int("shelf_id", d.shelfID))
		return nil
	}
	d.appliedSeq = seq
	shelf := detail.Shelf
	d.shelf = &shelf
	books := detail.Books
	if books == nil {
		books = []models.Book{}
	}
	d.books.Adopt(books)
	return nil
}

// Shelf returns the loaded shelf metadata, or nil before the first Load.
func (d *ShelfDetail) Shelf() *models.Shelf {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.shelf == nil {
		return nil
	}
	s := *d.shelf
	return &s
}

// Books returns the child collection snapshot in display order.
func (d *ShelfDetail) Books() []models.Book { return d.books.Items() }

// AddBook appends a book to the shelf after server confirmation.
func (d *ShelfDetail) AddBook(ctx context.Context, payload models.BookPayload) (models.Book, error) {
	return d.books.Create(ctx, payload)
}

// RemoveBook deletes a book pessimistically.
func (d *ShelfDetail) RemoveBook(ctx context.Context, bookID int) error {
	return d.books.Remove(ctx, bookID)
}

// BookBusy reports whether a mutation is in flight for the given book.
func (d *ShelfDetail) BookBusy(bookID int) bool { return d.books.IsBusy(bookID) }

// UpdateShelf renames or re-describes the shelf. The server response is
// authoritative for the resulting metadata.
func (d *ShelfDetail) UpdateShelf(ctx context.Context, payload models.ShelfPayload) (models.Shelf, error) {
	var zero models.Shelf
	if err := d.shelfBusy.Acquire(d.shelfID, collection.OpUpdating); err != nil {
		return zero, err
	}
	defer d.shelfBusy.Release(d.shelfID)

	if err := validate.Struct(payload); err != nil {
		return zero, err
	}

	epoch := d.sess.Epoch()
	raw, err := d.gw.Send(ctx, gateway.Descriptor{
		Method:       http.MethodPut,
		Path:         shelfPath(d.shelfID),
		Body:         gateway.JSONBody{Value: payload},
		AuthRequired: true,
	})
	if err != nil {
		return zero, fmt.Errorf("update shelf %d: %w", d.shelfID, err)
	}

	var updated models.Shelf
	if err := json.Unmarshal(raw, &updated); err != nil {
		return zero, &apierr.ServerError{Status: http.StatusOK, Msg: "malformed shelf response"}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if epoch != d.sess.Epoch() {
		return zero, &apierr.AuthError{Msg: "session changed during update"}
	}
	d.shelf = &updated
	d.appliedSeq = d.loadSeq
	return updated, nil
}

// DeleteShelf removes the whole shelf after confirmation. On success the
// local state is cleared; the caller navigates back to the shelf list.
func (d *ShelfDetail) DeleteShelf(ctx context.Context) error {
	if err := d.shelfBusy.Acquire(d.shelfID, collection.OpDeleting); err != nil {
		return err
	}
	defer d.shelfBusy.Release(d.shelfID)

	if d.confirm != nil {
		name := ""
		if s := d.Shelf(); s != nil {
			name = s.Name
		}
		msg := fmt.Sprintf("Delete the bookshelf %q? This action cannot be undone.", name)
		if !d.confirm.Confirm(msg) {
			return collection.ErrConfirmationDeclined
		}
	}

	epoch := d.sess.Epoch()
	if _, err := d.gw.Send(ctx, gateway.Descriptor{
		Method:       http.MethodDelete,
		Path:         shelfPath(d.shelfID),
		AuthRequired: true,
	}); err != nil {
		return fmt.Errorf("delete shelf %d: %w", d.shelfID, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if epoch != d.sess.Epoch() {
		return &apierr.AuthError{Msg: "session changed during delete"}
	}
	d.shelf = nil
	d.appliedSeq = d.loadSeq
	d.books.Adopt([]models.Book{})
	return nil
}
