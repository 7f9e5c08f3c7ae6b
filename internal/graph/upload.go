package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// chunkAlignment is the required alignment for upload chunk sizes (320 KiB).
// All chunks except the final one must be a multiple of this value.
const chunkAlignment = 320 * 1024

// SimpleUploadMaxSize is the maximum file size for simple (single-request)
// upload (4 MB). Larger files go through an upload session.
const SimpleUploadMaxSize = 4 * 1024 * 1024

// uploadChunkSize is the per-request chunk size for session uploads:
// 32 alignment units, 10 MiB.
const uploadChunkSize = 32 * chunkAlignment

// Upload session request/response types for Graph API JSON serialization.
type createUploadSessionRequest struct {
	Item uploadSessionItem `json:"item"`
}

type uploadSessionItem struct {
	ConflictBehavior string `json:"@microsoft.graph.conflictBehavior"` //nolint:tagliatelle // Graph API annotation key
}

type uploadSessionResponse struct {
	UploadURL          string `json:"uploadUrl"`
	ExpirationDateTime string `json:"expirationDateTime"`
}

// uploadItemPath builds the path addressing a not-yet-existing child file.
// Handles the root-folder special case where the colon-path form breaks.
func uploadItemPath(drive Drive, remotePath, name string) string {
	if remotePath == "" {
		return fmt.Sprintf("%s/root:/%s:", drive.Resource(), url.PathEscape(name))
	}

	return fmt.Sprintf("%s/root:/%s/%s:", drive.Resource(), encodePathSegments(remotePath), url.PathEscape(name))
}

// SimpleUpload uploads a file up to SimpleUploadMaxSize using a single PUT.
// The content is sent as application/octet-stream. The upload is not retried:
// the reader may be partially consumed on failure.
func (c *Client) SimpleUpload(
	ctx context.Context, drive Drive, remotePath, name string, r io.Reader, size int64,
) (*Item, error) {
	c.logger.Info("simple upload",
		slog.String("drive_id", drive.DriveID),
		slog.String("remote_path", remotePath),
		slog.String("name", name),
		slog.Int64("size", size),
	)

	path := uploadItemPath(drive, remotePath, name) + "/content"

	resp, err := c.doRawUpload(ctx, http.MethodPut, path, "application/octet-stream", r, size)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var dir driveItemResponse
	if decErr := json.NewDecoder(resp.Body).Decode(&dir); decErr != nil {
		return nil, fmt.Errorf("graph: decoding simple upload response: %w", decErr)
	}

	item := dir.toItem(c.logger)

	return &item, nil
}

// CreateUploadSession creates a resumable upload session for a file.
// The returned UploadSession contains a pre-authenticated upload URL.
// Conflict behavior is "replace" — re-running an ETL overwrites the
// previous output rather than failing.
func (c *Client) CreateUploadSession(
	ctx context.Context, drive Drive, remotePath, name string,
) (*UploadSession, error) {
	c.logger.Info("creating upload session",
		slog.String("drive_id", drive.DriveID),
		slog.String("remote_path", remotePath),
		slog.String("name", name),
	)

	path := uploadItemPath(drive, remotePath, name) + "/createUploadSession"

	reqBody := createUploadSessionRequest{Item: uploadSessionItem{ConflictBehavior: "replace"}}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("graph: marshaling upload session request: %w", err)
	}

	resp, err := c.Do(ctx, http.MethodPost, path, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var usr uploadSessionResponse
	if decErr := json.NewDecoder(resp.Body).Decode(&usr); decErr != nil {
		return nil, fmt.Errorf("graph: decoding upload session response: %w", decErr)
	}

	expTime, parseErr := time.Parse(time.RFC3339, usr.ExpirationDateTime)
	if parseErr != nil {
		c.logger.Warn("invalid upload session expiration, using zero time",
			slog.String("raw", usr.ExpirationDateTime),
			slog.String("error", parseErr.Error()),
		)
	}

	session := &UploadSession{
		UploadURL:      usr.UploadURL,
		ExpirationTime: expTime,
	}

	c.logger.Debug("upload session created",
		slog.Time("expires", session.ExpirationTime),
	)

	return session, nil
}

// UploadFromSession uploads the full content of r to an upload session in
// Content-Range chunks, sequentially. Returns the completed item from the
// final chunk response.
func (c *Client) UploadFromSession(
	ctx context.Context, session *UploadSession, r io.Reader, total int64,
) (*Item, error) {
	var offset int64

	for offset < total {
		length := int64(uploadChunkSize)
		if remaining := total - offset; remaining < length {
			length = remaining
		}

		item, err := c.uploadChunk(ctx, session, io.LimitReader(r, length), offset, length, total)
		if err != nil {
			return nil, err
		}

		offset += length

		if item != nil {
			return item, nil
		}
	}

	return nil, fmt.Errorf("graph: upload session ended without a final item (uploaded %d of %d bytes)", offset, total)
}

// uploadChunk uploads one chunk to a session. Returns the completed Item on
// the final chunk (200/201), nil for intermediate chunks (202).
// The session URL is pre-authenticated, so no Authorization header is sent.
func (c *Client) uploadChunk(
	ctx context.Context, session *UploadSession, chunk io.Reader,
	offset, length, total int64,
) (*Item, error) {
	c.logger.Debug("uploading chunk",
		slog.Int64("offset", offset),
		slog.Int64("length", length),
		slog.Int64("total", total),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, session.UploadURL, chunk)
	if err != nil {
		return nil, fmt.Errorf("graph: creating chunk upload request: %w", err)
	}

	// Content-Length and Content-Range are both required by the session API.
	req.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", offset, offset+length-1, total))
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("User-Agent", userAgent)
	req.ContentLength = length

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("graph: chunk upload request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusAccepted:
		// Intermediate chunk accepted. Drain body to reuse connection.
		if _, drainErr := io.Copy(io.Discard, resp.Body); drainErr != nil {
			return nil, fmt.Errorf("graph: draining chunk response body: %w", drainErr)
		}

		return nil, nil

	case http.StatusOK, http.StatusCreated:
		var dir driveItemResponse
		if decErr := json.NewDecoder(resp.Body).Decode(&dir); decErr != nil {
			return nil, fmt.Errorf("graph: decoding final chunk response: %w", decErr)
		}

		item := dir.toItem(c.logger)

		c.logger.Debug("upload complete",
			slog.String("item_id", item.ID),
			slog.String("item_name", item.Name),
		)

		return &item, nil

	default:
		body, _ := io.ReadAll(resp.Body) //nolint:errcheck // best-effort read for error message

		return nil, &GraphError{
			StatusCode: resp.StatusCode,
			RequestID:  resp.Header.Get("request-id"),
			Message:    string(body),
			Err:        classifyStatus(resp.StatusCode),
		}
	}
}

// doRawUpload sends an authenticated request with a custom content type.
// Used for SimpleUpload where application/octet-stream is needed instead of
// application/json. Does not retry — retrying a partially consumed reader is
// not safe.
func (c *Client) doRawUpload(
	ctx context.Context, method, path, contentType string, body io.Reader, size int64,
) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("graph: creating raw upload request: %w", err)
	}

	tok, err := c.token.Token()
	if err != nil {
		return nil, fmt.Errorf("graph: obtaining token for upload: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", userAgent)
	req.ContentLength = size

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("raw upload request failed",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)

		return nil, fmt.Errorf("graph: raw upload request failed: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		errBody, _ := io.ReadAll(resp.Body) //nolint:errcheck // best-effort read for error message
		resp.Body.Close()

		return nil, &GraphError{
			StatusCode: resp.StatusCode,
			RequestID:  resp.Header.Get("request-id"),
			Message:    string(errBody),
			Err:        classifyStatus(resp.StatusCode),
		}
	}

	return resp, nil
}
