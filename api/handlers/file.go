package handlers

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"mediaFetcher/api/delivery"
	"mediaFetcher/api/middleware"
)

type FileDelivery interface {
	Open(name string) (*delivery.Delivery, error)
	Stat(name string) (*delivery.Delivery, error)
}

type FileHandler struct {
	delivery FileDelivery
	logger   *zap.Logger
}

func NewFileHandler(d FileDelivery, logger *zap.Logger) *FileHandler {
	return &FileHandler{delivery: d, logger: logger}
}

// Download streams a produced file. Removal is already scheduled by the
// time the first byte is written, whether or not the copy succeeds. HEAD
// only describes the file and leaves it claimable.
func (h *FileHandler) Download(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())
	name := r.PathValue("file_name")

	if r.Method == http.MethodHead {
		d, err := h.delivery.Stat(name)
		if err != nil {
			h.handleLookupError(w, err, traceID)
			return
		}
		writeFileHeaders(w, d)
		w.WriteHeader(http.StatusOK)
		return
	}

	d, err := h.delivery.Open(name)
	if err != nil {
		h.handleLookupError(w, err, traceID)
		return
	}
	defer d.File.Close()

	writeFileHeaders(w, d)
	w.WriteHeader(http.StatusOK)

	written, err := io.Copy(w, d.File)
	if err != nil {
		h.logger.Warn("File stream interrupted",
			zap.String("trace_id", traceID),
			zap.String("file_name", d.Name),
			zap.Int64("written", written),
			zap.Error(err),
		)
		return
	}

	h.logger.Info("File delivered",
		zap.String("trace_id", traceID),
		zap.String("file_name", d.Name),
		zap.Int64("bytes", written),
	)
}

func (h *FileHandler) handleLookupError(w http.ResponseWriter, err error, traceID string) {
	if errors.Is(err, delivery.ErrFileNotFound) {
		handleError(w, h.logger, "File not found", err, traceID, http.StatusNotFound)
		return
	}
	handleError(w, h.logger, "Failed to open file", err, traceID, http.StatusInternalServerError)
}

func writeFileHeaders(w http.ResponseWriter, d *delivery.Delivery) {
	w.Header().Set("Content-Type", d.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(d.Size, 10))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": d.Name}))
}
