package graph

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// ErrNoDownloadURL is returned when a drive item has no pre-authenticated
// download URL. This happens for folders and some zero-byte files.
var ErrNoDownloadURL = errors.New("graph: item has no download URL")

// Download streams the content of a drive item to the given writer.
// The item must carry a pre-authenticated download URL (as returned by
// ListChildrenByPath / GetItemByPath); content is streamed directly from
// that URL, bypassing the Graph API. Returns the number of bytes written.
func (c *Client) Download(ctx context.Context, item *Item, w io.Writer) (int64, error) {
	c.logger.Info("downloading item",
		slog.String("item_id", item.ID),
		slog.String("name", item.Name),
	)

	if item.DownloadURL == "" {
		// Warn, not Error: expected for folders and zero-byte files.
		c.logger.Warn("item has no download URL",
			slog.String("item_id", item.ID),
			slog.Bool("is_folder", item.IsFolder),
		)

		return 0, ErrNoDownloadURL
	}

	// The download URL is pre-authenticated, so no Authorization header is
	// sent. The URL itself is never logged — it embeds an auth token.
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, item.DownloadURL, http.NoBody)
	if err != nil {
		return 0, fmt.Errorf("graph: creating download request: %w", err)
	}

	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("graph: download request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(resp.Body) //nolint:errcheck // best-effort read for error message

		return 0, &GraphError{
			StatusCode: resp.StatusCode,
			RequestID:  resp.Header.Get("request-id"),
			Message:    string(body),
			Err:        classifyStatus(resp.StatusCode),
		}
	}

	n, copyErr := io.Copy(w, resp.Body)
	if copyErr != nil {
		c.logger.Error("streaming download content failed",
			slog.String("error", copyErr.Error()),
			slog.Int64("bytes_before_error", n),
		)

		return n, fmt.Errorf("graph: streaming download content: %w", copyErr)
	}

	c.logger.Debug("download complete",
		slog.String("item_id", item.ID),
		slog.Int64("bytes_written", n),
	)

	return n, nil
}
