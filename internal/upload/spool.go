package upload

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"go.opentelemetry.io/otel/attribute"
)

// Spooler writes incoming video bodies to local temp files.
type Spooler struct {
	dir string
	log *slog.Logger
}

// NewSpooler creates a Spooler rooted at dir.
func NewSpooler(dir string, log *slog.Logger) *Spooler {
	return &Spooler{dir: dir, log: log}
}

// Spool copies at most limit+1 bytes of r into a temp file. A returned size
// above limit means the body was too large and was truncated.
func (s *Spooler) Spool(ctx context.Context, r io.Reader, filename string, limit int64) (string, int64, error) {
	ctx, span := tracer.Start(ctx, "spool-video")
	defer span.End()

	// Ensure spool directory exists
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", 0, fmt.Errorf("failed to create spool directory: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(filepath.Base(filename)))
	if len(ext) > 8 {
		ext = ""
	}
	tmpFile, err := os.CreateTemp(s.dir, fmt.Sprintf("video-*%s", ext))
	if err != nil {
		return "", 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	written, err := io.Copy(tmpFile, io.LimitReader(&ctxReader{ctx: ctx, r: r}, limit+1))
	if err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return "", 0, fmt.Errorf("failed to write file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return "", 0, fmt.Errorf("failed to close temp file: %w", err)
	}

	span.SetAttributes(attribute.Int64("video.size_bytes", written))
	return tmpPath, written, nil
}

// Cleanup removes a spooled file.
func (s *Spooler) Cleanup(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.log.Warn("Failed to remove spooled file", "path", path, "error", err)
	}
}

// DetectContentType trusts the declared type unless it is missing or generic,
// in which case the spooled bytes are sniffed.
func DetectContentType(path, declared string) string {
	ct := normalizeContentType(declared)
	if ct != "" && ct != "application/octet-stream" {
		return ct
	}
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return ct
	}
	return normalizeContentType(mt.String())
}

// ctxReader stops reading once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
