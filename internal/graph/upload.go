package graph

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// UploadResult is the outcome of a single-PUT upload. Success is derived
// purely from the status class. ItemID is empty when the upload failed or
// the response carried no item.
type UploadResult struct {
	StatusCode int
	Success    bool
	ItemID     string
	Item       *Item
	Body       []byte
}

// uploadPath builds the path-addressed content endpoint for name under
// folder (drive root when folder is empty). Segments are escaped
// individually so names with #, ?, % or spaces stay intact.
func uploadPath(name, folder string) string {
	folder = strings.Trim(folder, "/")
	if folder == "" {
		return "/me/drive/root:/" + encodePathSegments(name) + ":/content"
	}

	return "/me/drive/root:/" + encodePathSegments(folder+"/"+name) + ":/content"
}

// UploadFile PUTs the full contents of localPath to the signed-in user's
// drive as folder/<basename>, overwriting any existing file. Graph creates
// missing intermediate folders for path-addressed uploads, so no folder
// creation call is made. The name is NFC-normalized, which is the form
// OneDrive stores.
//
// A non-2xx response is reported through UploadResult, not as an error.
// Errors are returned only for local read failures and request failures.
func (c *Client) UploadFile(ctx context.Context, localPath, folder string) (*UploadResult, error) {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return nil, fmt.Errorf("graph: reading upload source %s: %w", localPath, err)
	}

	name := norm.NFC.String(filepath.Base(localPath))
	contentType := ContentTypeFor(name)
	path := uploadPath(name, folder)

	c.logger.Info("uploading file",
		slog.String("name", name),
		slog.String("folder", folder),
		slog.String("content_type", contentType),
		slog.Int("size", len(data)),
	)

	header := http.Header{}
	header.Set(headerContentType, contentType)

	resp, err := c.Do(ctx, http.MethodPut, path, header, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	result := &UploadResult{
		StatusCode: resp.StatusCode,
		Success:    resp.OK(),
		Body:       resp.Body,
	}

	if !result.Success {
		c.logger.Warn("upload failed",
			slog.String("name", name),
			slog.Int("status", resp.StatusCode),
			slog.String("request_id", resp.RequestID()),
		)

		return result, nil
	}

	var dir driveItemResponse
	if err := resp.JSON(&dir); err != nil {
		c.logger.Warn("upload response undecodable", slog.String("error", err.Error()))
		return result, nil
	}

	item := dir.toItem()
	result.Item = &item
	result.ItemID = item.ID

	c.logger.Debug("upload complete",
		slog.String("item_id", item.ID),
		slog.Int("status", resp.StatusCode),
	)

	return result, nil
}

// encodePathSegments URL-encodes each segment of a slash-separated path.
func encodePathSegments(path string) string {
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}

	return strings.Join(segments, "/")
}
