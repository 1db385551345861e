package storage

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/amillerrr/courtside/pkg/models"
)

// MaxFilenameLength bounds the filename segment of an object key.
const MaxFilenameLength = 255

// ThumbnailFilename is the fixed name of every game thumbnail.
const ThumbnailFilename = "thumbnail.jpg"

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._ -]+`)

// Scope identifies the owner, team and game an object belongs to.
type Scope struct {
	Identity string
	TeamID   string
	GameID   string
}

// ValidateOwner checks the identity and team segments. The game segment is
// not known until the record exists.
func (s Scope) ValidateOwner() error {
	return validateSegments(map[string]string{"identity": s.Identity, "team": s.TeamID})
}

func (s Scope) validate() error {
	return validateSegments(map[string]string{"identity": s.Identity, "team": s.TeamID, "game": s.GameID})
}

func validateSegments(segments map[string]string) error {
	for name, v := range segments {
		if err := validateSegment(v); err != nil {
			return fmt.Errorf("%w: %s %v", models.ErrInvalidPath, name, err)
		}
	}
	return nil
}

func (s Scope) prefix(kind string) string {
	return path.Join(kind, s.Identity, "team-"+s.TeamID, "game-"+s.GameID)
}

// VideoPath returns videos/{identity}/team-{team}/game-{game}/{filename}.
func VideoPath(s Scope, filename string) (string, error) {
	if err := s.validate(); err != nil {
		return "", err
	}
	name, err := SanitizeFilename(filename)
	if err != nil {
		return "", err
	}
	return s.prefix("videos") + "/" + name, nil
}

// ThumbnailPath returns thumbnails/{identity}/team-{team}/game-{game}/thumbnail.jpg.
func ThumbnailPath(s Scope) (string, error) {
	if err := s.validate(); err != nil {
		return "", err
	}
	return s.prefix("thumbnails") + "/" + ThumbnailFilename, nil
}

// SanitizeFilename reduces a client filename to a single safe key segment.
func SanitizeFilename(filename string) (string, error) {
	decoded, err := url.PathUnescape(filename)
	if err != nil {
		return "", fmt.Errorf("%w: invalid URL encoding", models.ErrInvalidFilename)
	}

	// Browsers on Windows may send the full client path.
	decoded = strings.ReplaceAll(decoded, "\\", "/")
	name := path.Base(strings.TrimSpace(decoded))
	name = unsafeFilenameChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, " .")

	if name == "" || name == "/" {
		return "", fmt.Errorf("%w: empty filename", models.ErrInvalidFilename)
	}
	if len(name) > MaxFilenameLength {
		return "", fmt.Errorf("%w: longer than %d characters", models.ErrInvalidFilename, MaxFilenameLength)
	}
	return name, nil
}

func validateSegment(v string) error {
	if v == "" {
		return errors.New("is empty")
	}
	if strings.Contains(v, "..") || strings.ContainsAny(v, "/\\") {
		return fmt.Errorf("%q contains path separators", v)
	}
	return nil
}
