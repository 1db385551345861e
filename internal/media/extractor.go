package media

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/amillerrr/courtside/pkg/models"
)

const (
	// ThumbnailPosition is the fraction of the duration the thumbnail frame is taken from.
	ThumbnailPosition = 0.10

	// DefaultThumbnailQuality is the JPEG quality on a 0..1 scale.
	DefaultThumbnailQuality = 0.8

	// ThumbnailContentType is the media type of extracted thumbnails.
	ThumbnailContentType = "image/jpeg"

	defaultProbeTimeout = 30 * time.Second
)

var tracer = otel.Tracer("courtside-media")

// Runner executes an external command and returns its stdout.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// execRunner runs commands through os/exec.
type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s: context canceled", name)
		}
		return nil, fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(lastLine(stderr.String())))
	}
	return stdout.Bytes(), nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// Config holds configuration for the extractor.
type Config struct {
	FFmpegPath       string
	FFprobePath      string
	ThumbnailQuality float64
	Timeout          time.Duration
	Runner           Runner
	Logger           *slog.Logger
}

// Metadata is what could be derived from a video. Zero values mean unknown.
type Metadata struct {
	DurationSeconds int
	Thumbnail       []byte
}

// HasThumbnail reports whether a thumbnail was produced.
func (m Metadata) HasThumbnail() bool {
	return len(m.Thumbnail) > 0
}

// Extractor derives duration and a thumbnail from a local video file.
type Extractor struct {
	ffmpeg  string
	ffprobe string
	qscale  int
	timeout time.Duration
	runner  Runner
	log     *slog.Logger
}

// NewExtractor creates an Extractor, filling defaults for unset fields.
func NewExtractor(cfg Config) *Extractor {
	e := &Extractor{
		ffmpeg:  cfg.FFmpegPath,
		ffprobe: cfg.FFprobePath,
		qscale:  QScale(cfg.ThumbnailQuality),
		timeout: cfg.Timeout,
		runner:  cfg.Runner,
		log:     cfg.Logger,
	}
	if e.ffmpeg == "" {
		e.ffmpeg = "ffmpeg"
	}
	if e.ffprobe == "" {
		e.ffprobe = "ffprobe"
	}
	if cfg.ThumbnailQuality <= 0 {
		e.qscale = QScale(DefaultThumbnailQuality)
	}
	if e.timeout <= 0 {
		e.timeout = defaultProbeTimeout
	}
	if e.runner == nil {
		e.runner = execRunner{}
	}
	if e.log == nil {
		e.log = slog.Default()
	}
	return e
}

// Extract never fails: a failed duration probe yields 0 and a failed frame grab yields no thumbnail.
func (e *Extractor) Extract(ctx context.Context, path string) Metadata {
	ctx, span := tracer.Start(ctx, "extract-metadata")
	defer span.End()

	var md Metadata

	seconds, err := e.Duration(ctx, path)
	if err != nil {
		e.log.WarnContext(ctx, "Duration extraction failed", "error", err)
	}
	md.DurationSeconds = RoundDuration(seconds)

	thumb, err := e.Thumbnail(ctx, path, seconds)
	if err != nil {
		e.log.WarnContext(ctx, "Thumbnail extraction failed", "error", err)
	} else {
		md.Thumbnail = thumb
	}

	span.SetAttributes(
		attribute.Int("video.duration_seconds", md.DurationSeconds),
		attribute.Int("thumbnail.size_bytes", len(md.Thumbnail)),
	)
	return md
}

// Duration probes the container duration in seconds.
func (e *Extractor) Duration(ctx context.Context, path string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	out, err := e.runner.Run(ctx, e.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", models.ErrFFprobeFailed, err)
	}
	return ParseDuration(string(out))
}

// Thumbnail grabs one frame at ThumbnailPosition of duration and encodes it as JPEG.
func (e *Extractor) Thumbnail(ctx context.Context, path string, durationSeconds float64) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	out, err := e.runner.Run(ctx, e.ffmpeg, e.thumbnailArgs(path, durationSeconds)...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrFFmpegFailed, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no frame decoded", models.ErrFFmpegFailed)
	}
	if mt := mimetype.Detect(out); !mt.Is(ThumbnailContentType) {
		return nil, fmt.Errorf("%w: unexpected output %s", models.ErrFFmpegFailed, mt.String())
	}
	return out, nil
}

func (e *Extractor) thumbnailArgs(path string, durationSeconds float64) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-ss", strconv.FormatFloat(ThumbnailOffset(durationSeconds), 'f', 3, 64),
		"-i", path,
		"-frames:v", "1",
		"-q:v", strconv.Itoa(e.qscale),
		"-f", "image2",
		"-c:v", "mjpeg",
		"pipe:1",
	}
}

// ParseDuration parses ffprobe's duration output.
func ParseDuration(out string) (float64, error) {
	s := strings.TrimSpace(out)
	if s == "" || s == "N/A" {
		return 0, fmt.Errorf("%w: duration unavailable", models.ErrFFprobeFailed)
	}
	d, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: parse duration %q: %v", models.ErrFFprobeFailed, s, err)
	}
	if math.IsNaN(d) || math.IsInf(d, 0) || d < 0 {
		return 0, fmt.Errorf("%w: invalid duration %q", models.ErrFFprobeFailed, s)
	}
	return d, nil
}

// RoundDuration rounds to the nearest whole second, mapping invalid values to 0.
func RoundDuration(seconds float64) int {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds <= 0 {
		return 0
	}
	return int(math.Round(seconds))
}

// ThumbnailOffset is the seek position for the thumbnail frame.
func ThumbnailOffset(durationSeconds float64) float64 {
	if math.IsNaN(durationSeconds) || math.IsInf(durationSeconds, 0) || durationSeconds <= 0 {
		return 0
	}
	return durationSeconds * ThumbnailPosition
}

// QScale maps a 0..1 JPEG quality to ffmpeg's mjpeg qscale (2 best, 31 worst).
func QScale(quality float64) int {
	q := math.Min(math.Max(quality, 0), 1)
	return int(math.Round(2 + (1-q)*29))
}
