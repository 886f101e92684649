package mailflow

import (
	"embed"
	"errors"
	"fmt"
	"html/template"
	"os"
	"path/filepath"

	"github.com/tonimelisma/graph-mailer/internal/localfile"
)

// DefaultPhotoName is the file the bundled default photo is written to
// inside the photo directory.
const DefaultPhotoName = "no-profile-photo.png"

//go:embed assets/no-profile-photo.png
var defaultPhotoPNG []byte

//go:embed templates/email.html
var templatesFS embed.FS

// DefaultPhoto writes the bundled default photo to dir (once) and returns
// its path and bytes. It stands in whenever the user has no profile photo.
func DefaultPhoto(dir string) (string, []byte, error) {
	path := filepath.Join(dir, DefaultPhotoName)

	existing, err := os.ReadFile(path)
	if err == nil && len(existing) > 0 {
		return path, existing, nil
	}

	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", nil, fmt.Errorf("mailflow: reading default photo: %w", err)
	}

	if err := localfile.WriteAtomic(path, defaultPhotoPNG, localfile.FilePerms); err != nil {
		return "", nil, fmt.Errorf("mailflow: writing default photo: %w", err)
	}

	return path, defaultPhotoPNG, nil
}

// loadEmailTemplate parses the override at path, or the built-in template
// when path is empty.
func loadEmailTemplate(path string) (*template.Template, error) {
	if path == "" {
		tmpl, err := template.ParseFS(templatesFS, "templates/email.html")
		if err != nil {
			return nil, fmt.Errorf("mailflow: parsing built-in email template: %w", err)
		}

		return tmpl, nil
	}

	tmpl, err := template.ParseFiles(path)
	if err != nil {
		return nil, fmt.Errorf("mailflow: parsing email template %s: %w", path, err)
	}

	return tmpl, nil
}
