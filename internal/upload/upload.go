// Package upload orchestrates the image-recognition flow: select an image,
// derive a preview, upload it as multipart data and merge the heterogeneous
// result.
package upload

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/shelfscan/shelfscan/internal/apierr"
	"github.com/shelfscan/shelfscan/internal/gateway"
	"github.com/shelfscan/shelfscan/internal/models"
)

// uploadField is the multipart form field the recognition endpoint expects.
const uploadField = "bookshelfImage"

// Phase is the workflow state.
type Phase int

const (
	// PhaseIdle means no file has been selected yet.
	PhaseIdle Phase = iota
	// PhaseFileSelected means an image is selected and ready to upload.
	PhaseFileSelected
	// PhaseUploading means one upload is in flight.
	PhaseUploading
	// PhaseSucceeded means the last upload produced a result.
	PhaseSucceeded
	// PhaseFailed means the last upload failed; the selection is retained
	// so the user can retry without re-selecting.
	PhaseFailed
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseFileSelected:
		return "file selected"
	case PhaseUploading:
		return "uploading"
	case PhaseSucceeded:
		return "succeeded"
	case PhaseFailed:
		return "failed"
	default:
		return "idle"
	}
}

// Sender issues API requests. Satisfied by *gateway.Gateway.
type Sender interface {
	Send(ctx context.Context, d gateway.Descriptor) (json.RawMessage, error)
}

// Controller owns the single live upload session. Selecting a new file
// discards any prior preview, result and error.
type Controller struct {
	gw  Sender
	log *zap.Logger

	// derivePreview builds the displayable preview for a selected file.
	// Replaceable in tests to control completion order.
	derivePreview func(name string, data []byte, mediaType string) string

	mu            sync.Mutex
	phase         Phase
	fileName      string
	fileData      []byte
	selSeq        uint64
	preview       string
	result        *models.UploadResult
	errMsg        string
	validationMsg string
	uploading     bool
}

// New builds an upload controller.
func New(gw Sender, log *zap.Logger) *Controller {
	c := &Controller{gw: gw, log: log}
	c.derivePreview = dataURI
	return c
}

// dataURI is the default preview derivation: a base64 data URI, the Go
// rendition of the FileReader preview the web client shows.
func dataURI(_ string, data []byte, mediaType string) string {
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// SelectFile validates that the candidate is an image and, on acceptance,
// starts deriving a preview. A non-image leaves the phase untouched and sets
// an inline validation message. Selecting a second file before the first
// preview resolves discards the first preview's eventual result.
func (c *Controller) SelectFile(name string, data []byte) error {
	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		c.mu.Lock()
		c.validationMsg = "please select an image file"
		c.mu.Unlock()
		return apierr.NewValidation("please select an image file")
	}

	c.mu.Lock()
	c.fileName = name
	c.fileData = data
	c.phase = PhaseFileSelected
	c.result = nil
	c.errMsg = ""
	c.validationMsg = ""
	c.selSeq++
	seq := c.selSeq
	derive := c.derivePreview
	c.mu.Unlock()

	// The prior preview stays visible until this one resolves.
	go func() {
		preview := derive(name, data, mt.String())
		c.mu.Lock()
		defer c.mu.Unlock()
		// Last selection wins; a superseded derivation is dropped.
		if seq != c.selSeq {
			return
		}
		c.preview = preview
	}()
	return nil
}

// Upload sends the selected image. With no file selected it fails locally
// with a user-visible prompt; while an upload is in flight a second call is
// rejected. On failure the selection and preview are retained for retry.
func (c *Controller) Upload(ctx context.Context) (*models.UploadResult, error) {
	c.mu.Lock()
	if len(c.fileData) == 0 {
		c.mu.Unlock()
		return nil, apierr.NewValidation("please select an image first")
	}
	if c.uploading {
		c.mu.Unlock()
		return nil, &apierr.ConcurrencyError{Op: "uploading"}
	}
	c.uploading = true
	c.phase = PhaseUploading
	name := c.fileName
	data := c.fileData
	c.mu.Unlock()

	raw, err := c.gw.Send(ctx, gateway.Descriptor{
		Method: http.MethodPost,
		Path:   "/api/upload",
		Body: gateway.FileBody{
			Field:    uploadField,
			Filename: name,
			Content:  data,
		},
		AuthRequired: true,
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	c.uploading = false
	if err != nil {
		c.phase = PhaseFailed
		c.errMsg = apiMessage(err)
		c.log.Warn("upload failed", zap.String("file", name), zap.Error(err))
		return nil, fmt.Errorf("upload %s: %w", name, err)
	}

	var result models.UploadResult
	if err := json.Unmarshal(raw, &result); err != nil {
		c.phase = PhaseFailed
		c.errMsg = "malformed recognition result"
		return nil, &apierr.ServerError{Status: http.StatusOK, Msg: "malformed recognition result"}
	}

	c.phase = PhaseSucceeded
	c.result = &result
	c.errMsg = ""
	c.log.Info("upload analyzed",
		zap.String("file", name),
		zap.Int("detected", len(result.DetectedBooks)),
		zap.Bool("recommendations_attempted", result.RecommendationsAttempted()),
	)
	res := result
	return &res, nil
}

func apiMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// Phase returns the workflow state.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Preview returns the current displayable preview, or "" before one resolves.
func (c *Controller) Preview() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.preview
}

// Result returns the last successful recognition result, or nil.
func (c *Controller) Result() *models.UploadResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.result == nil {
		return nil
	}
	r := *c.result
	return &r
}

// ErrorMessage returns the inline error from the last failed upload.
func (c *Controller) ErrorMessage() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errMsg
}

// ValidationMessage returns the inline message from the last rejected
// selection.
func (c *Controller) ValidationMessage() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.validationMsg
}

// FileName returns the selected file name, or "".
func (c *Controller) FileName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fileName
}
