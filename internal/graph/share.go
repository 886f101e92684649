package graph

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
)

// Sharing link types accepted by createLink. LinkEmbed is OneDrive
// personal only.
const (
	LinkView  = "view"
	LinkEdit  = "edit"
	LinkEmbed = "embed"
)

type createLinkRequest struct {
	Type string `json:"type"`
}

type createLinkResponse struct {
	Link struct {
		WebURL string `json:"webUrl"`
	} `json:"link"`
}

// CreateLink requests a sharing link for the drive item itemID and returns
// its web URL. Both 201 (link created) and 200 (existing link returned)
// count as success. An empty itemID returns "" without any request, and a
// failed request degrades to "" as well: a missing link never aborts the
// pipeline. Only ErrUnauthenticated and context cancellation are returned.
func (c *Client) CreateLink(ctx context.Context, itemID, linkType string) (SharingURL, error) {
	if itemID == "" {
		c.logger.Debug("no item to share, skipping link creation")
		return "", nil
	}

	if linkType == "" {
		linkType = LinkView
	}

	path := "/me/drive/items/" + url.PathEscape(itemID) + "/createLink"

	c.logger.Info("creating sharing link",
		slog.String("item_id", itemID),
		slog.String("type", linkType),
	)

	resp, err := c.doJSON(ctx, http.MethodPost, path, createLinkRequest{Type: linkType})
	if err != nil {
		if errors.Is(err, ErrUnauthenticated) || ctx.Err() != nil {
			return "", err
		}

		c.logger.Warn("sharing link request failed", slog.String("error", err.Error()))

		return "", nil
	}

	if !resp.OK() {
		c.logger.Warn("sharing link not created",
			slog.Int("status", resp.StatusCode),
			slog.String("request_id", resp.RequestID()),
		)

		return "", nil
	}

	var out createLinkResponse
	if err := resp.JSON(&out); err != nil {
		c.logger.Warn("sharing link response undecodable", slog.String("error", err.Error()))
		return "", nil
	}

	link := SharingURL(out.Link.WebURL)

	c.logger.Debug("sharing link ready",
		slog.Int("status", resp.StatusCode),
		slog.Any("url", link),
	)

	return link, nil
}
