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

const shelfDetailBody = `{
	"id": 5, "name": "Sci-Fi", "description": "space operas", "book_count": 2,
	"books": [
		{"id": 10, "title": "Dune", "author": "Frank Herbert"},
		{"id": 11, "title": "Hyperion", "author": "Dan Simmons"}
	]
}`

func newDetail(t *testing.T, confirm collection.Confirmer) (*ShelfDetail, *routeSender) {
	t.Helper()
	gw := newRouteSender(func(key string) { t.Errorf("unexpected request %s", key) })
	d := NewShelfDetail(5, gw, &fixedEpoch{}, confirm, zap.NewNop())
	return d, gw
}

func TestShelfDetail_LoadFetchesBoth(t *testing.T) {
	d, gw := newDetail(t, nil)
	gw.respond("GET", "/api/bookshelves/5", shelfDetailBody)

	if err := d.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	shelf := d.Shelf()
	if shelf == nil || shelf.Name != "Sci-Fi" || shelf.BookCount != 2 {
		t.Errorf("shelf = %+v; want Sci-Fi with 2 books", shelf)
	}
	books := d.Books()
	if len(books) != 2 || books[0].Title != "Dune" || books[1].Title != "Hyperion" {
		t.Errorf("books = %+v; want [Dune Hyperion]", books)
	}
}

func TestShelfDetail_LoadWithoutBooks(t *testing.T) {
	d, gw := newDetail(t, nil)
	gw.respond("GET", "/api/bookshelves/5", `{"id":5,"name":"Empty","book_count":0}`)

	if err := d.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if books := d.Books(); books == nil || len(books) != 0 {
		t.Errorf("books = %v; want empty non-nil", books)
	}
}

func TestShelfDetail_AddBookAppends(t *testing.T) {
	d, gw := newDetail(t, nil)
	gw.respond("GET", "/api/bookshelves/5", shelfDetailBody)
	if err := d.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	gw.respond("POST", "/api/bookshelves/5/books", `{"id":12,"title":"Solaris","author":"Stanislaw Lem"}`)
	book, err := d.AddBook(context.Background(), models.BookPayload{Title: "Solaris", Author: "Stanislaw Lem"})
	if err != nil {
		t.Fatalf("AddBook: %v", err)
	}
	if book.ID != 12 {
		t.Errorf("book id = %d; want the server-assigned 12", book.ID)
	}

	books := d.Books()
	if len(books) != 3 || books[2].Title != "Solaris" {
		t.Errorf("books = %+v; want Solaris appended last", books)
	}
}

func TestShelfDetail_AddBookValidation(t *testing.T) {
	d, gw := newDetail(t, nil)
	gw.respond("GET", "/api/bookshelves/5", shelfDetailBody)
	if err := d.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if _, err := d.AddBook(context.Background(), models.BookPayload{Title: ""}); !apierr.IsValidation(err) {
		t.Fatalf("err = %v; want ValidationError", err)
	}
	if n := gw.callCount("POST /api/bookshelves/5/books"); n != 0 {
		t.Errorf("create requests = %d; want 0", n)
	}
}

func TestShelfDetail_RemoveBookPessimistic(t *testing.T) {
	d, gw := newDetail(t, alwaysConfirm{})
	gw.respond("GET", "/api/bookshelves/5", shelfDetailBody)
	if err := d.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	gw.fail("DELETE", "/api/books/10", &apierr.ServerError{Status: 500, Msg: "boom"})
	if err := d.RemoveBook(context.Background(), 10); err == nil {
		t.Fatal("RemoveBook should propagate the failure")
	}
	if len(d.Books()) != 2 {
		t.Error("failed delete must leave the book in place")
	}
	if d.BookBusy(10) {
		t.Error("busy flag must clear after failure")
	}

	gw.respond("DELETE", "/api/books/10", "")
	if err := d.RemoveBook(context.Background(), 10); err != nil {
		t.Fatalf("retry: %v", err)
	}
	books := d.Books()
	if len(books) != 1 || books[0].ID != 11 {
		t.Errorf("books = %+v; want only Hyperion", books)
	}
}

func TestShelfDetail_UpdateShelf(t *testing.T) {
	d, gw := newDetail(t, nil)
	gw.respond("GET", "/api/bookshelves/5", shelfDetailBody)
	if err := d.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	gw.respond("PUT", "/api/bookshelves/5", `{"id":5,"name":"Space Opera","book_count":2}`)
	updated, err := d.UpdateShelf(context.Background(), models.ShelfPayload{Name: "Space Opera"})
	if err != nil {
		t.Fatalf("UpdateShelf: %v", err)
	}
	if updated.Name != "Space Opera" {
		t.Errorf("name = %q; want Space Opera", updated.Name)
	}
	if got := d.Shelf(); got == nil || got.Name != "Space Opera" {
		t.Errorf("shelf = %+v; want the server response installed", got)
	}
	// Books survive a metadata update.
	if len(d.Books()) != 2 {
		t.Errorf("books = %+v; must be untouched", d.Books())
	}
}

func TestShelfDetail_UpdateShelfValidation(t *testing.T) {
	d, gw := newDetail(t, nil)
	if _, err := d.UpdateShelf(context.Background(), models.ShelfPayload{Name: ""}); !apierr.IsValidation(err) {
		t.Fatalf("err = %v; want ValidationError", err)
	}
	if n := gw.callCount("PUT /api/bookshelves/5"); n != 0 {
		t.Errorf("update requests = %d; want 0", n)
	}
}

func TestShelfDetail_DeleteShelf(t *testing.T) {
	d, gw := newDetail(t, alwaysConfirm{})
	gw.respond("GET", "/api/bookshelves/5", shelfDetailBody)
	if err := d.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	gw.respond("DELETE", "/api/bookshelves/5", "")
	if err := d.DeleteShelf(context.Background()); err != nil {
		t.Fatalf("DeleteShelf: %v", err)
	}
	if d.Shelf() != nil {
		t.Error("shelf must be cleared after deletion")
	}
	if len(d.Books()) != 0 {
		t.Error("books must be cleared after deletion")
	}
}

func TestShelfDetail_DeleteShelfDeclined(t *testing.T) {
	d, gw := newDetail(t, neverConfirm{})
	gw.respond("GET", "/api/bookshelves/5", shelfDetailBody)
	if err := d.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if err := d.DeleteShelf(context.Background()); !errors.Is(err, collection.ErrConfirmationDeclined) {
		t.Fatalf("err = %v; want ErrConfirmationDeclined", err)
	}
	if n := gw.callCount("DELETE /api/bookshelves/5"); n != 0 {
		t.Errorf("delete requests = %d; want 0", n)
	}
	if d.Shelf() == nil {
		t.Error("declined delete must leave the shelf alone")
	}
}
