// Package resources instantiates the collection controller for each resource
// kind the ShelfScan API exposes: bookshelves, books within a shelf,
// communities and friends.
package resources

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/shelfscan/shelfscan/internal/collection"
	"github.com/shelfscan/shelfscan/internal/models"
)

func shelfPath(id int) string { return fmt.Sprintf("/api/bookshelves/%d", id) }

// Shelves controls the user's bookshelf list. New shelves are prepended, the
// order the service displays them in.
type Shelves struct {
	*collection.Controller[models.Shelf]
}

// NewShelves builds the bookshelf controller.
func NewShelves(gw collection.Sender, sess collection.Session, confirm collection.Confirmer, log *zap.Logger) *Shelves {
	cfg := collection.Config[models.Shelf]{
		Name:     "bookshelves",
		ListPath: "/api/bookshelves",
		ItemPath: shelfPath,
		Prepend:  true,
		ConfirmRemove: func(s models.Shelf) string {
			return fmt.Sprintf("Delete the bookshelf %q? This will also delete all books on it.", s.Name)
		},
	}
	return &Shelves{collection.New(cfg, gw, sess, confirm, log)}
}

// Create adds a new bookshelf.
func (s *Shelves) Create(ctx context.Context, payload models.ShelfPayload) (models.Shelf, error) {
	return s.Controller.Create(ctx, payload)
}

// Update renames or re-describes a bookshelf.
func (s *Shelves) Update(ctx context.Context, id int, payload models.ShelfPayload) (models.Shelf, error) {
	return s.Controller.Update(ctx, id, payload)
}
