package api

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"io"
	"net/http"

	_ "golang.org/x/image/webp" // register decoder

	"github.com/okian/reel/pkg/metrics"
)

const (
	uploadField = "imageFile"
	// multipart boundaries and headers around the file itself
	multipartOverhead = 64 << 10
)

// ClassifyHandler handles POST /api/classify.
type ClassifyHandler struct {
	deps     ClassifyDependencies
	maxBytes int64
}

// NewClassifyHandler creates a new classify handler.
func NewClassifyHandler(deps ClassifyDependencies, maxBytes int64) *ClassifyHandler {
	return &ClassifyHandler{deps: deps, maxBytes: maxBytes}
}

// HandleClassify reads the multipart imageFile field, checks that it is a
// png, jpeg, gif or webp image and returns the predicted label.
func (h *ClassifyHandler) HandleClassify(w http.ResponseWriter, r *http.Request) {
	data, err := h.readImage(w, r)
	if err != nil {
		metrics.RecordUpload("rejected")
		writeServiceError(w, err)
		return
	}

	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		metrics.RecordUpload("invalid_image")
		writeServiceError(w, fmt.Errorf("%w: %w", ErrInvalidImage, err))
		return
	}

	res, err := h.deps.Classify(r.Context(), data, "image/"+format)
	if err != nil {
		metrics.RecordUpload("failed")
		writeServiceError(w, err)
		return
	}
	metrics.RecordUpload("ok")
	writeJSON(w, http.StatusOK, res)
}

func (h *ClassifyHandler) readImage(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	limit := h.maxBytes + multipartOverhead
	if r.ContentLength > limit {
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrUploadTooLarge, h.maxBytes)
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, fmt.Errorf("%w: limit is %d bytes", ErrUploadTooLarge, h.maxBytes)
		}
		return nil, fmt.Errorf("%w: %w", ErrBadRequest, err)
	}

	file, header, err := r.FormFile(uploadField)
	if err != nil {
		return nil, fmt.Errorf("%w: missing %s", ErrBadRequest, uploadField)
	}
	defer file.Close() //nolint:errcheck // read-only

	if header.Size == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrBadRequest, uploadField)
	}
	if header.Size > h.maxBytes {
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrUploadTooLarge, h.maxBytes)
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrBadRequest, uploadField)
	}
	return data, nil
}
