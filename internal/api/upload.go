package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/amillerrr/courtside/internal/metrics"
	"github.com/amillerrr/courtside/internal/storage"
	"github.com/amillerrr/courtside/internal/upload"
	"github.com/amillerrr/courtside/pkg/models"
)

// VideoFormField is the multipart field carrying the video.
const VideoFormField = "video"

// UploadWriteGrace is added to the pipeline timeout for the response write deadline.
const UploadWriteGrace = time.Minute

var errNotMultipart = errors.New("expected multipart/form-data")

// UploadFailedResponse is returned when the pipeline fails after validation.
type UploadFailedResponse struct {
	Error  string `json:"error"`
	GameID string `json:"gameId,omitempty"`
}

// uploadForm is the parsed multipart upload.
type uploadForm struct {
	values map[string]string
	file   upload.File
	// fields holds problems found while parsing.
	fields map[string]string
}

// UploadGameHandler accepts a multipart game video with its metadata and runs
// the upload pipeline synchronously. Progress can be polled on
// GET /games/{gameID}/progress while the request is in flight.
func (h *Handlers) UploadGameHandler(w http.ResponseWriter, r *http.Request) {
	teamID := r.PathValue("teamID")
	ctx, span := tracer.Start(r.Context(), "upload-game-handler",
		trace.WithAttributes(
			attribute.String("handler", "upload-game"),
			attribute.String("team.id", teamID),
		))
	defer span.End()

	// Large videos outlive the server's default deadlines.
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Now().Add(h.cfg.Upload.PipelineTimeout + UploadWriteGrace))

	maxSize := h.validator.MaxFileSize()
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+MaxFormOverhead)

	form, err := h.readUploadForm(ctx, r, maxSize)
	if form.file.Path != "" {
		defer h.spooler.Cleanup(form.file.Path)
	}
	if err != nil {
		span.RecordError(err)
		var maxBytesErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxBytesErr):
			metrics.RecordRejection(string(upload.FileTooLarge))
			h.writeFieldErrors(ctx, w, http.StatusRequestEntityTooLarge, map[string]string{"file": h.validator.FileTooLargeMessage()})
		case errors.Is(err, errNotMultipart):
			h.writeError(ctx, w, http.StatusBadRequest, "Expected multipart/form-data")
		default:
			h.log.WarnContext(ctx, "Failed to read upload form", "teamId", teamID, "error", err)
			h.writeError(ctx, w, http.StatusBadRequest, "Invalid upload form")
		}
		return
	}

	if form.file.Size > maxSize {
		metrics.RecordRejection(string(upload.FileTooLarge))
		h.writeFieldErrors(ctx, w, http.StatusRequestEntityTooLarge, map[string]string{"file": h.validator.FileTooLargeMessage()})
		return
	}

	meta, metaFields := gameMetadataFromForm(form.values)
	req := upload.Request{
		Identity: identity(r),
		TeamID:   teamID,
		File:     form.file,
		Game:     meta,
	}
	span.SetAttributes(
		attribute.Int64("video.size_bytes", req.File.Size),
		attribute.String("video.content_type", req.File.ContentType),
	)

	// Reject bad input before touching the record store.
	fields := map[string]string{}
	status := http.StatusBadRequest
	if err := h.validator.ValidateRequest(req); err != nil {
		var verr *upload.ValidationError
		if !errors.As(err, &verr) {
			h.writeError(ctx, w, http.StatusBadRequest, err.Error())
			return
		}
		for _, v := range verr.Violations {
			metrics.RecordRejection(string(v))
		}
		for k, msg := range verr.Fields {
			fields[k] = msg
		}
		if verr.Has(upload.FileTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
	}
	for k, msg := range metaFields {
		fields[k] = msg
	}
	for k, msg := range form.fields {
		fields[k] = msg
	}
	if len(fields) > 0 {
		h.writeFieldErrors(ctx, w, status, fields)
		return
	}

	if _, ok := h.ownedTeam(w, r, teamID); !ok {
		return
	}

	game, err := h.uploader.Upload(ctx, req, nil)
	if err != nil {
		span.RecordError(err)
		h.writeUploadError(ctx, w, err)
		return
	}

	h.writeJSON(ctx, w, http.StatusCreated, game)
}

// writeUploadError maps pipeline errors to responses.
func (h *Handlers) writeUploadError(ctx context.Context, w http.ResponseWriter, err error) {
	var verr *upload.ValidationError
	var stepErr *upload.StepError
	switch {
	case errors.As(err, &verr):
		status := http.StatusBadRequest
		if verr.Has(upload.FileTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		h.writeFieldErrors(ctx, w, status, verr.Fields)
	case errors.As(err, &stepErr):
		h.log.ErrorContext(ctx, "Upload pipeline failed",
			"gameId", stepErr.GameID,
			"step", stepErr.Step,
			"error", stepErr.Err,
		)
		h.writeJSON(ctx, w, http.StatusBadGateway, UploadFailedResponse{
			Error:  upload.MsgUploadFailed,
			GameID: stepErr.GameID,
		})
	case errors.Is(err, models.ErrInvalidPath):
		h.log.WarnContext(ctx, "Upload scope rejected", "error", err)
		h.writeError(ctx, w, http.StatusBadRequest, "Invalid upload location")
	case errors.Is(err, models.ErrRecordCreateFailed):
		h.writeJSON(ctx, w, http.StatusBadGateway, UploadFailedResponse{Error: upload.MsgUploadFailed})
	default:
		h.log.ErrorContext(ctx, "Unexpected upload error", "error", err)
		h.writeError(ctx, w, http.StatusInternalServerError, "Internal server error")
	}
}

// readUploadForm streams the multipart body, spooling the video part to disk
// and collecting the other fields. Reading stops at the first video part that
// exceeds maxSize.
func (h *Handlers) readUploadForm(ctx context.Context, r *http.Request, maxSize int64) (uploadForm, error) {
	form := uploadForm{values: map[string]string{}, fields: map[string]string{}}

	mr, err := r.MultipartReader()
	if err != nil {
		return form, fmt.Errorf("%w: %v", errNotMultipart, err)
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return form, nil
		}
		if err != nil {
			return form, err
		}

		name := part.FormName()
		switch {
		case name == VideoFormField && part.FileName() != "":
			if form.file.Path != "" {
				// Only the first video is used.
				part.Close()
				continue
			}
			filename, err := storage.SanitizeFilename(part.FileName())
			if err != nil {
				form.fields["file"] = "Invalid file name"
				part.Close()
				continue
			}
			path, n, err := h.spooler.Spool(ctx, part, filename, maxSize)
			part.Close()
			if err != nil {
				return form, err
			}
			form.file = upload.File{
				Name:        filename,
				ContentType: upload.DetectContentType(path, part.Header.Get("Content-Type")),
				Size:        n,
				Path:        path,
			}
			if n > maxSize {
				return form, nil
			}
		case name != "":
			value, err := io.ReadAll(io.LimitReader(part, MaxFormFieldSize))
			part.Close()
			if err != nil {
				return form, err
			}
			form.values[name] = string(value)
		default:
			part.Close()
		}
	}
}

// gameMetadataFromForm builds game metadata from form values. Unparseable
// scores are reported as field problems.
func gameMetadataFromForm(values map[string]string) (models.GameMetadata, map[string]string) {
	fields := map[string]string{}
	meta := models.GameMetadata{
		Opponent: values["opponent"],
		Date:     values["date"],
		GameType: values["gameType"],
		Location: values["location"],
		Score:    values["score"],
		Notes:    values["notes"],
	}

	parseScore := func(key string) *int {
		raw := strings.TrimSpace(values[key])
		if raw == "" {
			return nil
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			fields[key] = "Must be a whole number"
			return nil
		}
		return &n
	}
	meta.OurScore = parseScore("ourScore")
	meta.OpponentScore = parseScore("opponentScore")

	return meta, fields
}
