package graph

import (
	"mime"
	"path/filepath"
	"strings"
)

// ContentTypeFor guesses a MIME type from name's extension. Unknown
// extensions get application/octet-stream, for both uploads and attachments.
func ContentTypeFor(name string) string {
	ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(name)))
	if ct == "" {
		return contentTypeOctetStream
	}

	// Drop parameters such as "; charset=utf-8".
	if base, _, ok := strings.Cut(ct, ";"); ok {
		ct = strings.TrimSpace(base)
	}

	return ct
}
