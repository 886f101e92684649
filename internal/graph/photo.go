package graph

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/tonimelisma/graph-mailer/internal/localfile"
)

// SelfUserID selects the signed-in user's own photo.
const SelfUserID = "me"

const photoValueSuffix = "/$value"

// Photo is a profile photo fetched for one pipeline run.
// A zero Photo means no photo was available.
type Photo struct {
	Data        []byte
	ContentType string
	LocalPath   string // set only when the photo was persisted
}

// Empty reports whether the photo carries no bytes.
func (p *Photo) Empty() bool {
	return p == nil || len(p.Data) == 0
}

// photoMetadataResponse mirrors the profilePhoto metadata JSON we read.
type photoMetadataResponse struct {
	MediaContentType string `json:"@odata.mediaContentType"` //nolint:tagliatelle // OData annotation key
}

// photoPath maps a user ID to its photo-bytes endpoint.
func photoPath(userID string) string {
	if userID == "" || userID == SelfUserID {
		return "/me/photo" + photoValueSuffix
	}

	return "/users/" + url.PathEscape(userID) + "/photo" + photoValueSuffix
}

// ProfilePhoto fetches the profile photo of userID ("me" for the signed-in
// user). A missing photo is not an error: any non-2xx response, empty body,
// or transport failure yields an empty Photo so the caller can substitute a
// default. Only ErrUnauthenticated and context cancellation are returned.
//
// When persistAs is non-empty and bytes were returned, the photo is written
// to persistAs.<ext>, where ext comes from the content type, and LocalPath is
// set to that file.
func (c *Client) ProfilePhoto(ctx context.Context, userID, persistAs string) (*Photo, error) {
	endpoint := photoPath(userID)

	c.logger.Info("fetching profile photo", slog.String("user_id", userID))

	resp, err := c.Do(ctx, http.MethodGet, endpoint, nil, nil)
	if err != nil {
		if errors.Is(err, ErrUnauthenticated) || ctx.Err() != nil {
			return nil, err
		}

		c.logger.Warn("profile photo request failed, using no photo",
			slog.String("error", err.Error()),
		)

		return &Photo{}, nil
	}

	if !resp.OK() || len(resp.Body) == 0 {
		c.logger.Info("no profile photo available",
			slog.Int("status", resp.StatusCode),
			slog.Int("bytes", len(resp.Body)),
		)

		return &Photo{}, nil
	}

	photo := &Photo{
		Data:        resp.Body,
		ContentType: c.photoContentType(ctx, strings.TrimSuffix(endpoint, photoValueSuffix)),
	}

	if persistAs == "" {
		return photo, nil
	}

	path := persistAs + "." + PhotoExtension(photo.ContentType, photo.Data)
	if err := localfile.WriteAtomic(path, photo.Data, localfile.FilePerms); err != nil {
		c.logger.Warn("failed to persist profile photo",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)

		return photo, nil
	}

	photo.LocalPath = path

	c.logger.Debug("persisted profile photo",
		slog.String("path", path),
		slog.String("content_type", photo.ContentType),
	)

	return photo, nil
}

// photoContentType reads @odata.mediaContentType from the photo metadata
// endpoint. Any failure yields "".
func (c *Client) photoContentType(ctx context.Context, metadataPath string) string {
	resp, err := c.Do(ctx, http.MethodGet, metadataPath, nil, nil)
	if err != nil || !resp.OK() {
		c.logger.Debug("photo metadata unavailable", slog.String("path", metadataPath))
		return ""
	}

	var meta photoMetadataResponse
	if err := resp.JSON(&meta); err != nil {
		c.logger.Debug("photo metadata undecodable", slog.String("error", err.Error()))
		return ""
	}

	return meta.MediaContentType
}

// PhotoExtension derives a file extension from a photo content type.
// image/pjpeg is a legacy alias Graph still reports for JPEG photos and maps
// to "jpeg". An empty or malformed content type falls back to sniffing data.
func PhotoExtension(contentType string, data []byte) string {
	ext := mediaSubtype(contentType)
	if ext == "" && len(data) > 0 {
		ext = mediaSubtype(http.DetectContentType(data))
	}

	switch ext {
	case "":
		return "bin"
	case "pjpeg":
		return "jpeg"
	case "octet-stream":
		return "bin"
	default:
		return ext
	}
}

// mediaSubtype returns the lowercased subtype of a type/subtype media type,
// without parameters.
func mediaSubtype(contentType string) string {
	base, _, _ := strings.Cut(contentType, ";")

	_, sub, ok := strings.Cut(strings.TrimSpace(base), "/")
	if !ok {
		return ""
	}

	return strings.ToLower(strings.TrimSpace(sub))
}
