// Package models defines the entity shapes exchanged with the ShelfScan API
// and the client-side write payloads with their validation rules.
package models

// User represents an authenticated account as returned by the server.
type User struct {
	// ID is the server-assigned user identifier.
	ID int `json:"id"`
	// Username is the login name chosen by the user.
	Username string `json:"username"`
	// Email is the address given at registration, when the server includes it.
	Email string `json:"email,omitempty"`
}

// EntityID returns the collection key of the user.
func (u User) EntityID() int { return u.ID }

// Shelf is a bookshelf summary as listed by GET /api/bookshelves.
type Shelf struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	// BookCount is the number of books the server counts on the shelf.
	BookCount int `json:"book_count"`
}

// EntityID returns the collection key of the shelf.
func (s Shelf) EntityID() int { return s.ID }

// Book is a single book on a shelf.
type Book struct {
	ID     int    `json:"id"`
	Title  string `json:"title"`
	Author string `json:"author,omitempty"`
	ISBN   string `json:"isbn,omitempty"`
}

// EntityID returns the collection key of the book.
func (b Book) EntityID() int { return b.ID }

// ShelfDetail is the combined answer of GET /api/bookshelves/:id:
// the shelf metadata together with its books.
type ShelfDetail struct {
	Shelf
	Books []Book `json:"books"`
}

// Community is a reading community.
type Community struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	// OwnerID identifies the user who created the community and may edit it.
	OwnerID int `json:"owner_id"`
}

// EntityID returns the collection key of the community.
func (c Community) EntityID() int { return c.ID }

// FriendRequest is a pending friendship, incoming or outgoing.
type FriendRequest struct {
	ID       int   `json:"id"`
	FromUser *User `json:"from_user,omitempty"`
	ToUser   *User `json:"to_user,omitempty"`
}

// Recommendation is one suggested book from the recognition service.
type Recommendation struct {
	Title   string   `json:"title"`
	Authors []string `json:"authors,omitempty"`
	// Image is an optional cover reference (URL).
	Image string `json:"image,omitempty"`
}

// UploadResult is the merged answer of POST /api/upload.
//
// Recommendations distinguishes "not attempted" from "attempted, none found":
// a nil slice means the server sent no list (omitted or null), an empty
// non-nil slice means it searched and found nothing. The field must not carry
// omitempty: marshaling would collapse the empty list into absence and lose
// the distinction on the wire.
type UploadResult struct {
	DetectedBooks   []string         `json:"detected_books"`
	Recommendations []Recommendation `json:"recommendations"`
	SaveMessage     string           `json:"save_message,omitempty"`
}

// RecommendationsAttempted reports whether the server attempted a
// recommendation lookup at all.
func (r UploadResult) RecommendationsAttempted() bool { return r.Recommendations != nil }

// Credentials is the login payload.
type Credentials struct {
	Identifier string `json:"identifier" validate:"required"`
	Password   string `json:"password" validate:"required"`
}

// Registration is the sign-up payload. Field constraints mirror what the
// service enforces server-side.
type Registration struct {
	Username string `json:"username" validate:"required,min=3,max=30"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// ShelfPayload is the create/update body for a bookshelf.
type ShelfPayload struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description,omitempty"`
}

// BookPayload is the create body for a book.
type BookPayload struct {
	Title  string `json:"title" validate:"required"`
	Author string `json:"author,omitempty"`
	ISBN   string `json:"isbn,omitempty"`
}

// CommunityPayload is the create/update body for a community.
type CommunityPayload struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description,omitempty"`
}
