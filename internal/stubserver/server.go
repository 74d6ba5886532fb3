package stubserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/shelfscan/shelfscan/internal/models"
)

type ctxKey string

const userKey ctxKey = "user"

// Recognizer turns an uploaded image into detected titles. The default
// returns a canned sample; tests install their own.
type Recognizer func(image []byte) models.UploadResult

func defaultRecognizer([]byte) models.UploadResult {
	return models.UploadResult{
		DetectedBooks:   []string{"The Left Hand of Darkness", "A Wizard of Earthsea"},
		Recommendations: []models.Recommendation{},
		SaveMessage:     "Saved 2 detected books to your library.",
	}
}

// Server serves the ShelfScan API from an in-memory store.
type Server struct {
	store     *Store
	recognize Recognizer
	log       *zap.Logger
}

// New builds a server over the given store.
func New(store *Store, log *zap.Logger) *Server {
	return &Server{store: store, recognize: defaultRecognizer, log: log}
}

// SetRecognizer replaces the image recognizer.
func (s *Server) SetRecognizer(r Recognizer) { s.recognize = r }

// Router assembles the chi handler for every API endpoint.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.withRequestLogging)

	r.Route("/api", func(r chi.Router) {
		r.Post("/register", s.handleRegister)
		r.Post("/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(s.bearerAuth)

			r.Get("/verify_token", s.handleVerify)
			r.Post("/upload", s.handleUpload)

			r.Get("/bookshelves", s.handleListShelves)
			r.Post("/bookshelves", s.handleCreateShelf)
			r.Get("/bookshelves/{id}", s.handleShelfDetail)
			r.Put("/bookshelves/{id}", s.handleUpdateShelf)
			r.Delete("/bookshelves/{id}", s.handleDeleteShelf)
			r.Post("/bookshelves/{id}/books", s.handleAddBook)
			r.Delete("/books/{id}", s.handleDeleteBook)

			r.Get("/friends", s.handleFriends)
			r.Get("/friends/requests", s.handleIncoming)
			r.Get("/friends/outgoing", s.handleOutgoing)
			r.Post("/friends/{userId}", s.handleFriendRequest)
			r.Delete("/friends/{userId}", s.handleFriendRemove)
			r.Get("/users/{userId}/bookshelves", s.handleFriendShelves)

			r.Get("/communities", s.handleCommunities)
			r.Get("/communities/search", s.handleCommunities)
			r.Get("/communities/mine", s.handleMyCommunities)
			r.Post("/communities", s.handleCreateCommunity)
			r.Put("/communities/{id}", s.handleUpdateCommunity)
			r.Delete("/communities/{id}", s.handleDeleteCommunity)
			r.Post("/communities/{id}/join", s.handleJoinCommunity)
			r.Delete("/communities/{id}/leave", s.handleLeaveCommunity)
		})
	})
	return r
}

// withRequestLogging logs each request with its duration.
func (s *Server) withRequestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("took", time.Since(start)),
		)
	})
}

// bearerAuth resolves the Authorization header to a user and stores it in the
// request context.
func (s *Server) bearerAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		const prefix = "Bearer "
		header := r.Header.Get("Authorization")
		if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		user, ok := s.store.UserForToken(header[len(prefix):])
		if !ok {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		ctx := context.WithValue(r.Context(), userKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func currentUser(r *http.Request) models.User {
	u, _ := r.Context().Value(userKey).(models.User)
	return u
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeStoreError maps store errors to HTTP statuses.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, errConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, errForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, errBadLogin):
		writeError(w, http.StatusUnauthorized, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func urlID(r *http.Request, name string) (int, error) {
	id, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return id, nil
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req models.Registration
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username, email and password are required")
		return
	}
	user, err := s.store.Register(req.Username, req.Email, req.Password)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req models.Credentials
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	token, user, err := s.store.Login(req.Identifier, req.Password)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": token, "user": user})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, currentUser(r))
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	file, _, err := r.FormFile("bookshelfImage")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing bookshelfImage field")
		return
	}
	defer func() { _ = file.Close() }()
	image, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable upload")
		return
	}
	writeJSON(w, http.StatusOK, s.recognize(image))
}

func (s *Server) handleListShelves(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Shelves(currentUser(r).ID))
}

func (s *Server) handleCreateShelf(w http.ResponseWriter, r *http.Request) {
	var p models.ShelfPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil || p.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	writeJSON(w, http.StatusCreated, s.store.CreateShelf(currentUser(r).ID, p))
}

func (s *Server) handleShelfDetail(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	detail, err := s.store.ShelfDetail(currentUser(r).ID, id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleUpdateShelf(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var p models.ShelfPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil || p.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	shelf, err := s.store.UpdateShelf(currentUser(r).ID, id, p)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, shelf)
}

func (s *Server) handleDeleteShelf(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.DeleteShelf(currentUser(r).ID, id); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddBook(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var p models.BookPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil || p.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	book, err := s.store.AddBook(currentUser(r).ID, id, p)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, book)
}

func (s *Server) handleDeleteBook(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.DeleteBook(currentUser(r).ID, id); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleFriends(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Friends(currentUser(r).ID))
}

func (s *Server) handleIncoming(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.IncomingRequests(currentUser(r).ID))
}

func (s *Server) handleOutgoing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.OutgoingRequests(currentUser(r).ID))
}

func (s *Server) handleFriendRequest(w http.ResponseWriter, r *http.Request) {
	other, err := urlID(r, "userId")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.RequestOrAccept(currentUser(r).ID, other); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleFriendRemove(w http.ResponseWriter, r *http.Request) {
	other, err := urlID(r, "userId")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.RemoveOrDecline(currentUser(r).ID, other); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleFriendShelves(w http.ResponseWriter, r *http.Request) {
	other, err := urlID(r, "userId")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	shelves, err := s.store.FriendShelves(currentUser(r).ID, other)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, shelves)
}

func (s *Server) handleCommunities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Communities(r.URL.Query().Get("q")))
}

func (s *Server) handleMyCommunities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.MemberCommunities(currentUser(r).ID))
}

func (s *Server) handleCreateCommunity(w http.ResponseWriter, r *http.Request) {
	var p models.CommunityPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil || p.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	writeJSON(w, http.StatusCreated, s.store.CreateCommunity(currentUser(r).ID, p))
}

func (s *Server) handleUpdateCommunity(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var p models.CommunityPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil || p.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	community, err := s.store.UpdateCommunity(currentUser(r).ID, id, p)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, community)
}

func (s *Server) handleDeleteCommunity(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.DeleteCommunity(currentUser(r).ID, id); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleJoinCommunity(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.JoinCommunity(currentUser(r).ID, id); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLeaveCommunity(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.LeaveCommunity(currentUser(r).ID, id); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
