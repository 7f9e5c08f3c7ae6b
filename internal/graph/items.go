package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// listChildrenPageSize is the $top value for ListChildren requests.
// 200 is the maximum allowed by the Graph API for drive item collections.
const listChildrenPageSize = 200

// driveItemResponse mirrors the Graph API driveItem JSON exactly.
// Unexported — callers use Item via toItem() normalization.
type driveItemResponse struct {
	ID                   string           `json:"id"`
	Name                 string           `json:"name"`
	Size                 int64            `json:"size"`
	ETag                 string           `json:"eTag"`
	CreatedDateTime      string           `json:"createdDateTime"`
	LastModifiedDateTime string           `json:"lastModifiedDateTime"`
	File                 *fileFacet       `json:"file"`
	Folder               *folderFacet     `json:"folder"`
	Deleted              *json.RawMessage `json:"deleted"`
	DownloadURL          string           `json:"@microsoft.graph.downloadUrl"` //nolint:tagliatelle // Graph API annotation key
}

type fileFacet struct {
	MimeType string `json:"mimeType"`
}

type folderFacet struct {
	ChildCount int `json:"childCount"`
}

type listChildrenResponse struct {
	Value    []driveItemResponse `json:"value"`
	NextLink string              `json:"@odata.nextLink"` //nolint:tagliatelle // OData annotation key
}

// toItem normalizes a Graph API driveItem response into our Item type.
func (d *driveItemResponse) toItem(logger *slog.Logger) Item {
	item := Item{
		ID:          d.ID,
		Name:        d.Name,
		Size:        d.Size,
		ETag:        d.ETag,
		IsFolder:    d.Folder != nil,
		IsDeleted:   d.Deleted != nil,
		DownloadURL: d.DownloadURL,
	}

	if d.File != nil {
		item.MimeType = d.File.MimeType
	}

	item.CreatedAt = parseTimestamp(d.CreatedDateTime, "createdDateTime", d.ID, logger)
	item.ModifiedAt = parseTimestamp(d.LastModifiedDateTime, "lastModifiedDateTime", d.ID, logger)

	return item
}

// parseTimestamp parses an RFC3339 timestamp, falling back to time.Now().UTC()
// with a warning on empty or malformed input.
func parseTimestamp(raw, field, itemID string, logger *slog.Logger) time.Time {
	if raw == "" {
		return time.Now().UTC()
	}

	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		logger.Warn("invalid timestamp, using current time",
			slog.String("field", field),
			slog.String("item_id", itemID),
			slog.String("raw", raw),
			slog.String("error", err.Error()),
		)

		return time.Now().UTC()
	}

	return t
}

// itemPath builds the API path for an item addressed by path relative to the
// drive root. remotePath must already be normalized (no surrounding slashes).
func itemPath(drive Drive, remotePath string) string {
	if remotePath == "" {
		return drive.Resource() + "/root"
	}

	return fmt.Sprintf("%s/root:/%s:", drive.Resource(), encodePathSegments(remotePath))
}

// GetItemByPath retrieves a drive item by its path relative to the drive root.
// Pass "" for the root folder itself.
func (c *Client) GetItemByPath(ctx context.Context, drive Drive, remotePath string) (*Item, error) {
	c.logger.Info("getting item by path",
		slog.String("drive_id", drive.DriveID),
		slog.String("path", remotePath),
	)

	resp, err := c.Do(ctx, http.MethodGet, itemPath(drive, remotePath), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var dir driveItemResponse
	if err := json.NewDecoder(resp.Body).Decode(&dir); err != nil {
		return nil, fmt.Errorf("graph: decoding item response: %w", err)
	}

	item := dir.toItem(c.logger)

	return &item, nil
}

// ListChildrenByPath returns all children of the folder at remotePath,
// handling pagination automatically. Pass "" for the drive root.
func (c *Client) ListChildrenByPath(ctx context.Context, drive Drive, remotePath string) ([]Item, error) {
	c.logger.Info("listing children",
		slog.String("drive_id", drive.DriveID),
		slog.String("remote_path", remotePath),
	)

	apiPath := fmt.Sprintf("%s/children?$top=%d", childrenBase(drive, remotePath), listChildrenPageSize)

	var items []Item

	page := 1

	for apiPath != "" {
		pageItems, nextPath, err := c.listChildrenPage(ctx, apiPath, page)
		if err != nil {
			return nil, err
		}

		items = append(items, pageItems...)
		apiPath = nextPath
		page++
	}

	c.logger.Info("listed children complete",
		slog.String("drive_id", drive.DriveID),
		slog.String("remote_path", remotePath),
		slog.Int("total_items", len(items)),
	)

	return items, nil
}

// childrenBase builds the API path prefix for a folder's children collection.
func childrenBase(drive Drive, remotePath string) string {
	if remotePath == "" {
		return drive.Resource() + "/root"
	}

	return fmt.Sprintf("%s/root:/%s:", drive.Resource(), encodePathSegments(remotePath))
}

// listChildrenPage fetches a single page of children and returns the items
// and the next page path (empty if no more pages).
func (c *Client) listChildrenPage(ctx context.Context, path string, page int) ([]Item, string, error) {
	resp, err := c.Do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	var lcr listChildrenResponse
	if err := json.NewDecoder(resp.Body).Decode(&lcr); err != nil {
		return nil, "", fmt.Errorf("graph: decoding children response: %w", err)
	}

	items := make([]Item, 0, len(lcr.Value))
	for i := range lcr.Value {
		items = append(items, lcr.Value[i].toItem(c.logger))
	}

	c.logger.Debug("fetched children page",
		slog.Int("page", page),
		slog.Int("count", len(items)),
	)

	var nextPath string
	if lcr.NextLink != "" {
		var stripErr error

		nextPath, stripErr = c.stripBaseURL(lcr.NextLink)
		if stripErr != nil {
			return nil, "", stripErr
		}
	}

	return items, nextPath, nil
}

// stripBaseURL removes the client's base URL prefix from a full URL,
// returning the path + query string for use with Do().
// Returns an error if the URL doesn't start with the expected base.
func (c *Client) stripBaseURL(fullURL string) (string, error) {
	if len(fullURL) < len(c.baseURL) || fullURL[:len(c.baseURL)] != c.baseURL {
		return "", fmt.Errorf("graph: nextLink URL %q does not match base URL %q", fullURL, c.baseURL)
	}

	return fullURL[len(c.baseURL):], nil
}

// DeleteItem deletes a drive item by ID. Returns nil on success (HTTP 204).
func (c *Client) DeleteItem(ctx context.Context, drive Drive, itemID string) error {
	c.logger.Info("deleting item",
		slog.String("drive_id", drive.DriveID),
		slog.String("item_id", itemID),
	)

	path := fmt.Sprintf("%s/items/%s", drive.Resource(), itemID)

	resp, err := c.Do(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}

	// 204 No Content — drain and close to reuse connection.
	defer resp.Body.Close()

	if _, copyErr := io.Copy(io.Discard, resp.Body); copyErr != nil {
		return fmt.Errorf("graph: draining delete response body: %w", copyErr)
	}

	return nil
}
