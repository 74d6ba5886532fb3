// Package stubserver implements the ShelfScan API in memory. It backs the
// integration tests and gives the CLI a zero-setup local target.
package stubserver

import (
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/shelfscan/shelfscan/internal/models"
)

// Store errors, mapped to HTTP statuses by the handlers.
var (
	errNotFound  = errors.New("not found")
	errConflict  = errors.New("already exists")
	errForbidden = errors.New("forbidden")
	errBadLogin  = errors.New("invalid credentials")
)

type account struct {
	user     models.User
	password string
}

type shelfRecord struct {
	shelf models.Shelf
	owner int
}

type bookRecord struct {
	book    models.Book
	shelfID int
}

type communityRecord struct {
	community models.Community
	members   map[int]bool
}

type friendRequest struct {
	id   int
	from int
	to   int
}

// Store holds all server state behind one mutex. Linear scans throughout;
// the fixture never holds enough data for that to matter.
type Store struct {
	mu     sync.Mutex
	nextID int

	accounts    map[int]*account
	tokens      map[string]int
	shelves     []*shelfRecord
	books       []*bookRecord
	communities []*communityRecord
	friendships map[int]map[int]bool
	requests    []friendRequest
}

// NewStore builds an empty store.
func NewStore() *Store {
	return &Store{
		accounts:    make(map[int]*account),
		tokens:      make(map[string]int),
		friendships: make(map[int]map[int]bool),
	}
}

func (s *Store) id() int {
	s.nextID++
	return s.nextID
}

// Register creates an account. Username and email must be unused.
func (s *Store) Register(username, email, password string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.user.Username == username || (email != "" && a.user.Email == email) {
			return models.User{}, errConflict
		}
	}
	u := models.User{ID: s.id(), Username: username, Email: email}
	s.accounts[u.ID] = &account{user: u, password: password}
	return u, nil
}

// Login matches identifier against username or email and issues a token.
func (s *Store) Login(identifier, password string) (string, models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if (a.user.Username == identifier || a.user.Email == identifier) && a.password == password {
			token := uuid.NewString()
			s.tokens[token] = a.user.ID
			return token, a.user, nil
		}
	}
	return "", models.User{}, errBadLogin
}

// UserForToken resolves a bearer token.
func (s *Store) UserForToken(token string) (models.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.tokens[token]
	if !ok {
		return models.User{}, false
	}
	return s.accounts[id].user, true
}

// RevokeToken invalidates a token. Used by tests to simulate expiry.
func (s *Store) RevokeToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
}

func (s *Store) bookCount(shelfID int) int {
	n := 0
	for _, b := range s.books {
		if b.shelfID == shelfID {
			n++
		}
	}
	return n
}

// Shelves lists a user's shelves newest first.
func (s *Store) Shelves(owner int) []models.Shelf {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Shelf
	for i := len(s.shelves) - 1; i >= 0; i-- {
		if s.shelves[i].owner == owner {
			sh := s.shelves[i].shelf
			sh.BookCount = s.bookCount(sh.ID)
			out = append(out, sh)
		}
	}
	if out == nil {
		out = []models.Shelf{}
	}
	return out
}

// CreateShelf adds a shelf for owner.
func (s *Store) CreateShelf(owner int, p models.ShelfPayload) models.Shelf {
	s.mu.Lock()
	defer s.mu.Unlock()
	sh := models.Shelf{ID: s.id(), Name: p.Name, Description: p.Description}
	s.shelves = append(s.shelves, &shelfRecord{shelf: sh, owner: owner})
	return sh
}

func (s *Store) findShelf(id int) (*shelfRecord, bool) {
	for _, r := range s.shelves {
		if r.shelf.ID == id {
			return r, true
		}
	}
	return nil, false
}

// ShelfDetail returns a shelf and its books. Only the owner may view it here;
// friend access goes through FriendShelves.
func (s *Store) ShelfDetail(owner, shelfID int) (models.ShelfDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.findShelf(shelfID)
	if !ok {
		return models.ShelfDetail{}, errNotFound
	}
	if r.owner != owner {
		return models.ShelfDetail{}, errForbidden
	}
	d := models.ShelfDetail{Shelf: r.shelf, Books: []models.Book{}}
	d.BookCount = s.bookCount(shelfID)
	for _, b := range s.books {
		if b.shelfID == shelfID {
			d.Books = append(d.Books, b.book)
		}
	}
	return d, nil
}

// UpdateShelf edits a shelf the caller owns.
func (s *Store) UpdateShelf(owner, shelfID int, p models.ShelfPayload) (models.Shelf, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.findShelf(shelfID)
	if !ok {
		return models.Shelf{}, errNotFound
	}
	if r.owner != owner {
		return models.Shelf{}, errForbidden
	}
	r.shelf.Name = p.Name
	r.shelf.Description = p.Description
	out := r.shelf
	out.BookCount = s.bookCount(shelfID)
	return out, nil
}

// DeleteShelf removes a shelf and its books.
func (s *Store) DeleteShelf(owner, shelfID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.shelves {
		if r.shelf.ID == shelfID {
			if r.owner != owner {
				return errForbidden
			}
			s.shelves = append(s.shelves[:i], s.shelves[i+1:]...)
			kept := s.books[:0]
			for _, b := range s.books {
				if b.shelfID != shelfID {
					kept = append(kept, b)
				}
			}
			s.books = kept
			return nil
		}
	}
	return errNotFound
}

// AddBook appends a book to a shelf the caller owns.
func (s *Store) AddBook(owner, shelfID int, p models.BookPayload) (models.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.findShelf(shelfID)
	if !ok {
		return models.Book{}, errNotFound
	}
	if r.owner != owner {
		return models.Book{}, errForbidden
	}
	b := models.Book{ID: s.id(), Title: p.Title, Author: p.Author, ISBN: p.ISBN}
	s.books = append(s.books, &bookRecord{book: b, shelfID: shelfID})
	return b, nil
}

// DeleteBook removes a book from whichever shelf holds it.
func (s *Store) DeleteBook(owner, bookID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, b := range s.books {
		if b.book.ID == bookID {
			if r, ok := s.findShelf(b.shelfID); !ok || r.owner != owner {
				return errForbidden
			}
			s.books = append(s.books[:i], s.books[i+1:]...)
			return nil
		}
	}
	return errNotFound
}

// Friends returns the confirmed friends of userID.
func (s *Store) Friends(userID int) []models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.User
	for id := range s.friendships[userID] {
		out = append(out, s.accounts[id].user)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if out == nil {
		out = []models.User{}
	}
	return out
}

// IncomingRequests returns requests addressed to userID.
func (s *Store) IncomingRequests(userID int) []models.FriendRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.FriendRequest{}
	for _, r := range s.requests {
		if r.to == userID {
			from := s.accounts[r.from].user
			out = append(out, models.FriendRequest{ID: r.id, FromUser: &from})
		}
	}
	return out
}

// OutgoingRequests returns requests sent by userID.
func (s *Store) OutgoingRequests(userID int) []models.FriendRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.FriendRequest{}
	for _, r := range s.requests {
		if r.from == userID {
			to := s.accounts[r.to].user
			out = append(out, models.FriendRequest{ID: r.id, ToUser: &to})
		}
	}
	return out
}

// RequestOrAccept sends a friend request, or accepts one when the other side
// already asked.
func (s *Store) RequestOrAccept(userID, otherID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[otherID]; !ok || otherID == userID {
		return errNotFound
	}
	if s.friendships[userID][otherID] {
		return errConflict
	}
	for i, r := range s.requests {
		if r.from == otherID && r.to == userID {
			s.requests = append(s.requests[:i], s.requests[i+1:]...)
			s.link(userID, otherID)
			return nil
		}
		if r.from == userID && r.to == otherID {
			return errConflict
		}
	}
	s.requests = append(s.requests, friendRequest{id: s.id(), from: userID, to: otherID})
	return nil
}

func (s *Store) link(a, b int) {
	if s.friendships[a] == nil {
		s.friendships[a] = make(map[int]bool)
	}
	if s.friendships[b] == nil {
		s.friendships[b] = make(map[int]bool)
	}
	s.friendships[a][b] = true
	s.friendships[b][a] = true
}

// RemoveOrDecline unfriends, declines an incoming request, or cancels an
// outgoing one, whichever relation exists.
func (s *Store) RemoveOrDecline(userID, otherID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.friendships[userID][otherID] {
		delete(s.friendships[userID], otherID)
		delete(s.friendships[otherID], userID)
		return nil
	}
	for i, r := range s.requests {
		if (r.from == userID && r.to == otherID) || (r.from == otherID && r.to == userID) {
			s.requests = append(s.requests[:i], s.requests[i+1:]...)
			return nil
		}
	}
	return errNotFound
}

// FriendShelves lists another user's shelves, friends only.
func (s *Store) FriendShelves(userID, otherID int) ([]models.Shelf, error) {
	s.mu.Lock()
	friends := s.friendships[userID][otherID]
	s.mu.Unlock()
	if !friends {
		return nil, errForbidden
	}
	return s.Shelves(otherID), nil
}

// Communities lists all communities, optionally filtered by a case-folded
// substring of the name or description.
func (s *Store) Communities(search string) []models.Community {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := strings.ToLower(search)
	out := []models.Community{}
	for _, r := range s.communities {
		if q != "" &&
			!strings.Contains(strings.ToLower(r.community.Name), q) &&
			!strings.Contains(strings.ToLower(r.community.Description), q) {
			continue
		}
		out = append(out, r.community)
	}
	return out
}

// MemberCommunities lists the communities userID belongs to.
func (s *Store) MemberCommunities(userID int) []models.Community {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Community{}
	for _, r := range s.communities {
		if r.members[userID] {
			out = append(out, r.community)
		}
	}
	return out
}

// CreateCommunity adds a community owned by userID, who joins it.
func (s *Store) CreateCommunity(userID int, p models.CommunityPayload) models.Community {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := models.Community{ID: s.id(), Name: p.Name, Description: p.Description, OwnerID: userID}
	s.communities = append(s.communities, &communityRecord{
		community: c,
		members:   map[int]bool{userID: true},
	})
	return c
}

func (s *Store) findCommunity(id int) (*communityRecord, bool) {
	for _, r := range s.communities {
		if r.community.ID == id {
			return r, true
		}
	}
	return nil, false
}

// UpdateCommunity edits a community the caller owns.
func (s *Store) UpdateCommunity(userID, id int, p models.CommunityPayload) (models.Community, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.findCommunity(id)
	if !ok {
		return models.Community{}, errNotFound
	}
	if r.community.OwnerID != userID {
		return models.Community{}, errForbidden
	}
	r.community.Name = p.Name
	r.community.Description = p.Description
	return r.community, nil
}

// DeleteCommunity removes a community the caller owns.
func (s *Store) DeleteCommunity(userID, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.communities {
		if r.community.ID == id {
			if r.community.OwnerID != userID {
				return errForbidden
			}
			s.communities = append(s.communities[:i], s.communities[i+1:]...)
			return nil
		}
	}
	return errNotFound
}

// JoinCommunity adds userID as a member.
func (s *Store) JoinCommunity(userID, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.findCommunity(id)
	if !ok {
		return errNotFound
	}
	if r.members[userID] {
		return errConflict
	}
	r.members[userID] = true
	return nil
}

// LeaveCommunity removes userID from the members.
func (s *Store) LeaveCommunity(userID, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.findCommunity(id)
	if !ok {
		return errNotFound
	}
	if !r.members[userID] {
		return errNotFound
	}
	delete(r.members, userID)
	return nil
}
