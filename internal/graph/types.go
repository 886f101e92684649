package graph

import "log/slog"

// User represents a Graph user profile.
// Fields are normalized from the Graph API response.
type User struct {
	ID                string
	DisplayName       string
	Email             string // mail, falling back to userPrincipalName
	UserPrincipalName string
}

// Item is the subset of a drive item the upload pipeline uses.
type Item struct {
	ID       string
	Name     string
	Size     int64
	MimeType string
	WebURL   string
}

// SharingURL is a capability URL: anyone holding it can open the item.
// It implements slog.LogValuer so it is never written to logs verbatim.
type SharingURL string

// LogValue implements slog.LogValuer, redacting the URL.
func (u SharingURL) LogValue() slog.Value {
	if u == "" {
		return slog.StringValue("")
	}

	return slog.StringValue("[REDACTED]")
}

// String returns the raw URL.
func (u SharingURL) String() string {
	return string(u)
}

// driveItemResponse mirrors the Graph API driveItem JSON fields we read.
// Unexported: callers use Item via toItem().
type driveItemResponse struct {
	ID     string     `json:"id"`
	Name   string     `json:"name"`
	Size   int64      `json:"size"`
	WebURL string     `json:"webUrl"`
	File   *fileFacet `json:"file"`
}

type fileFacet struct {
	MimeType string `json:"mimeType"`
}

func (d *driveItemResponse) toItem() Item {
	item := Item{
		ID:     d.ID,
		Name:   d.Name,
		Size:   d.Size,
		WebURL: d.WebURL,
	}

	if d.File != nil {
		item.MimeType = d.File.MimeType
	}

	return item
}
