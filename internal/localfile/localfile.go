// Package localfile handles the local filesystem side of the mail pipeline:
// atomic writes for cached profile photos and base64 reads for attachments
// and the inline photo preview.
package localfile

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
)

// FilePerms is used for cached photos. They are served back to the
// browser and attached to outgoing mail, so they are not secret.
const FilePerms = 0o644

// DirPerms is used when creating the photo cache directory.
const DirPerms = 0o700

// WriteAtomic writes data to path atomically (write-to-temp + rename).
// Missing parent directories are created with DirPerms.
func WriteAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if mkErr := os.MkdirAll(dir, DirPerms); mkErr != nil {
		return fmt.Errorf("localfile: creating directory %s: %w", dir, mkErr)
	}

	// Same directory guarantees same filesystem for rename(2).
	tmp, err := os.CreateTemp(dir, ".localfile-*.tmp")
	if err != nil {
		return fmt.Errorf("localfile: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	// Clean up temp file on any error path.
	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, perm); err != nil {
		tmp.Close()
		return fmt.Errorf("localfile: setting permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("localfile: writing %s: %w", path, err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("localfile: syncing %s: %w", path, err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("localfile: closing %s: %w", path, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("localfile: renaming to %s: %w", path, err)
	}

	success = true

	return nil
}

// ReadBase64 reads the whole file at path and returns its standard base64
// encoding.
func ReadBase64(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("localfile: reading %s: %w", path, err)
	}

	return base64.StdEncoding.EncodeToString(data), nil
}

// Within reports whether path resolves to a location inside dir.
// Both are cleaned and made absolute first.
func Within(dir, path string) bool {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return false
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}

	rel, err := filepath.Rel(absDir, absPath)
	if err != nil {
		return false
	}

	return rel != ".." && !filepath.IsAbs(rel) && !hasParentPrefix(rel)
}

func hasParentPrefix(rel string) bool {
	prefix := ".." + string(filepath.Separator)

	return len(rel) >= len(prefix) && rel[:len(prefix)] == prefix
}
