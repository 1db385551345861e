package upload

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/go-playground/validator/v10"

	"github.com/amillerrr/courtside/pkg/models"
)

// DefaultMaxFileSize is the largest accepted video.
const DefaultMaxFileSize int64 = 4 << 30

// AllowedContentTypes lists the accepted declared media types.
var AllowedContentTypes = map[string]bool{
	"video/mp4":       true,
	"video/mov":       true,
	"video/avi":       true,
	"video/quicktime": true,
	"video/x-msvideo": true,
}

// Violation is a single file policy failure.
type Violation string

const (
	UnsupportedFormat Violation = "UnsupportedFormat"
	FileTooLarge      Violation = "FileTooLarge"
)

// Err returns the sentinel error for v.
func (v Violation) Err() error {
	switch v {
	case UnsupportedFormat:
		return models.ErrUnsupportedFormat
	case FileTooLarge:
		return models.ErrFileTooLarge
	}
	return models.ErrInvalidMetadata
}

// User-facing messages.
const (
	MsgUnsupportedFormat = "Please upload a video file (MP4, MOV, or AVI format)"
	MsgMissingFile       = "Please select a video file"
	MsgMissingTeam       = "Please select a team first"
	MsgMissingOpponent   = "Opponent name is required"
	MsgMissingDate       = "Game date is required"
	MsgInvalidDate       = "Game date must be in YYYY-MM-DD format"
	MsgUploadFailed      = "Upload failed. Please try again."
)

// FileTooLargeMessage describes a size ceiling, e.g. "File size must be less than 4GB".
func FileTooLargeMessage(limit int64) string {
	var size string
	switch {
	case limit >= 1<<30 && limit%(1<<30) == 0:
		size = fmt.Sprintf("%dGB", limit>>30)
	case limit >= 1<<20 && limit%(1<<20) == 0:
		size = fmt.Sprintf("%dMB", limit>>20)
	default:
		size = humanize.IBytes(uint64(max(limit, 0)))
	}
	return "File size must be less than " + size
}

// ValidationError carries every violation found, keyed by form field.
type ValidationError struct {
	Violations []Violation
	Fields     map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Unwrap exposes the sentinel for each problem so errors.Is works.
func (e *ValidationError) Unwrap() []error {
	var errs []error
	for _, v := range e.Violations {
		errs = append(errs, v.Err())
	}
	for field := range e.Fields {
		switch field {
		case "file":
		case "team":
			errs = append(errs, models.ErrMissingTeam)
		default:
			errs = append(errs, models.ErrInvalidMetadata)
		}
	}
	return errs
}

// Has reports whether v was found.
func (e *ValidationError) Has(v Violation) bool {
	for _, got := range e.Violations {
		if got == v {
			return true
		}
	}
	return false
}

// Validator checks files and form data before any network call is made.
type Validator struct {
	maxFileSize int64
	validate    *validator.Validate
}

// NewValidator creates a Validator with the given size ceiling.
func NewValidator(maxFileSize int64) *Validator {
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &Validator{maxFileSize: maxFileSize, validate: v}
}

// MaxFileSize returns the size ceiling in bytes.
func (v *Validator) MaxFileSize() int64 {
	return v.maxFileSize
}

// FileTooLargeMessage describes this validator's ceiling.
func (v *Validator) FileTooLargeMessage() string {
	return FileTooLargeMessage(v.maxFileSize)
}

// ValidateFile returns every policy violation for f. It has no side effects.
func (v *Validator) ValidateFile(f File) []Violation {
	var out []Violation
	if !AllowedContentTypes[normalizeContentType(f.ContentType)] {
		out = append(out, UnsupportedFormat)
	}
	if f.Size > v.maxFileSize {
		out = append(out, FileTooLarge)
	}
	return out
}

// ValidateRequest checks the file, team selection and game metadata together.
func (v *Validator) ValidateRequest(req Request) error {
	fields := map[string]string{}
	violations := v.ValidateFile(req.File)

	// Size wins the file message, matching the upload form.
	for _, vi := range violations {
		switch vi {
		case UnsupportedFormat:
			fields["file"] = MsgUnsupportedFormat
		case FileTooLarge:
			fields["file"] = v.FileTooLargeMessage()
		}
	}
	if req.File.Name == "" && req.File.Size == 0 {
		fields["file"] = MsgMissingFile
	}
	if strings.TrimSpace(req.TeamID) == "" {
		fields["team"] = MsgMissingTeam
	}
	for k, msg := range v.StructFields(req.Game.Normalize()) {
		fields[k] = msg
	}

	if len(fields) == 0 {
		return nil
	}
	return &ValidationError{Violations: violations, Fields: fields}
}

// StructFields validates s by its validate tags and returns field -> message.
func (v *Validator) StructFields(s any) map[string]string {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string]string{"_": err.Error()}
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		if _, seen := fields[fe.Field()]; seen {
			continue
		}
		fields[fe.Field()] = fieldMessage(fe)
	}
	return fields
}

func fieldMessage(fe validator.FieldError) string {
	switch {
	case fe.Field() == "opponent" && fe.Tag() == "required":
		return MsgMissingOpponent
	case fe.Field() == "date" && fe.Tag() == "required":
		return MsgMissingDate
	case fe.Field() == "date" && fe.Tag() == "datetime":
		return MsgInvalidDate
	}

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	}
	return fmt.Sprintf("%s is invalid", fe.Field())
}

func normalizeContentType(ct string) string {
	ct = strings.ToLower(strings.TrimSpace(ct))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	return ct
}
