// Package gateway builds and issues normalized requests against the ShelfScan
// API and translates transport and HTTP outcomes into the typed errors of
// package apierr. It holds no state beyond its configuration; the bearer
// token is read fresh from the TokenSource on every call.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"go.uber.org/zap"

	"github.com/shelfscan/shelfscan/internal/apierr"
)

// TokenSource yields the current bearer token, if any. Implementations must
// return the token that is valid at the moment of the call, never a cached
// copy.
type TokenSource interface {
	Token() (string, bool)
}

// Body is the closed set of request body variants. A nil Body means no body.
type Body interface {
	contentType() string
	encode() (io.Reader, string, error)
}

// JSONBody carries a structured value serialized to JSON.
type JSONBody struct {
	Value any
}

func (b JSONBody) contentType() string { return "application/json" }

func (b JSONBody) encode() (io.Reader, string, error) {
	data, err := json.Marshal(b.Value)
	if err != nil {
		return nil, "", fmt.Errorf("encode request body: %w", err)
	}
	return bytes.NewReader(data), b.contentType(), nil
}

// FileBody carries an opaque binary payload sent as one multipart form field.
// The content is passed through untouched; only the multipart framing is
// added.
type FileBody struct {
	Field    string
	Filename string
	Content  []byte
}

func (b FileBody) contentType() string { return "multipart/form-data" }

func (b FileBody) encode() (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile(b.Field, b.Filename)
	if err != nil {
		return nil, "", fmt.Errorf("build multipart body: %w", err)
	}
	if _, err := part.Write(b.Content); err != nil {
		return nil, "", fmt.Errorf("build multipart body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("build multipart body: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

// Descriptor describes one request. Descriptors are built per call and never
// reused.
type Descriptor struct {
	Method string
	// Path is the URL path, including the /api prefix.
	Path string
	Body Body
	// AuthRequired makes the call fail locally with an AuthError when no
	// token is available.
	AuthRequired bool
}

// AuthRejectedFunc is invoked when the server rejects the credential of an
// authenticated call, so the session owner can force a logout.
type AuthRejectedFunc func()

// Gateway issues single-attempt requests. No retries, no backoff: every call
// is a user-initiated action and a silent retry could duplicate a mutation.
type Gateway struct {
	client         *http.Client
	baseURL        string
	tokens         TokenSource
	onAuthRejected AuthRejectedFunc
	log            *zap.Logger
}

// New constructs a Gateway for the given base URL. tokens must not be nil.
func New(baseURL string, tokens TokenSource, log *zap.Logger) *Gateway {
	return &Gateway{
		client:  &http.Client{},
		baseURL: baseURL,
		tokens:  tokens,
		log:     log,
	}
}

// OnAuthRejected registers the callback fired when an authenticated call is
// rejected with 401.
func (g *Gateway) OnAuthRejected(fn AuthRejectedFunc) { g.onAuthRejected = fn }

// errorBody is the error shape the server uses on every non-2xx response.
type errorBody struct {
	Error string `json:"error"`
}

// Send issues the described request and returns the raw JSON body of a
// successful response, or nil for an empty success (204 or no content).
//
// Classification rules:
//   - auth required but no token: AuthError, no network call
//   - no response received: TransportError
//   - 401: AuthError with the server message; authenticated calls also
//     trigger the OnAuthRejected callback
//   - other non-2xx: ServerError with the parsed {error} message, falling
//     back to the HTTP status text
//   - 2xx with a body that is not valid JSON: ServerError
func (g *Gateway) Send(ctx context.Context, d Descriptor) (json.RawMessage, error) {
	token, hasToken := g.tokens.Token()
	if d.AuthRequired && !hasToken {
		return nil, &apierr.AuthError{Msg: "not authenticated"}
	}

	var (
		reader      io.Reader
		contentType string
	)
	if d.Body != nil {
		var err error
		reader, contentType, err = d.Body.encode()
		if err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, d.Method, g.baseURL+d.Path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	// The token is attached whenever one exists, even on public endpoints,
	// so the server can identify the caller opportunistically.
	if hasToken {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	g.log.Debug("sending request",
		zap.String("method", d.Method),
		zap.String("path", d.Path),
		zap.Bool("auth_required", d.AuthRequired),
	)

	resp, err := g.client.Do(req)
	if err != nil {
		g.log.Warn("request failed", zap.String("path", d.Path), zap.Error(err))
		return nil, &apierr.TransportError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &apierr.TransportError{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := fmt.Sprintf("request failed: %s", resp.Status)
		var eb errorBody
		if jsonErr := json.Unmarshal(data, &eb); jsonErr == nil && eb.Error != "" {
			msg = eb.Error
		}
		// Only 401 means the credential itself was rejected. A 403 is a
		// permission failure on a live session and stays entity-scoped.
		if resp.StatusCode == http.StatusUnauthorized {
			if d.AuthRequired && g.onAuthRejected != nil {
				g.onAuthRejected()
			}
			return nil, &apierr.AuthError{Msg: msg}
		}
		return nil, &apierr.ServerError{Status: resp.StatusCode, Msg: msg}
	}

	if resp.StatusCode == http.StatusNoContent || len(data) == 0 {
		return nil, nil
	}
	if !json.Valid(data) {
		return nil, &apierr.ServerError{
			Status: resp.StatusCode,
			Msg:    "server returned a malformed response body",
		}
	}
	return json.RawMessage(data), nil
}
