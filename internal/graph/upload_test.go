package graph

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimpleUpload(t *testing.T) {
	content := "hello,world\n"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/sites/site-1/drives/drive-1/root:/reports/out.csv:/content", r.URL.Path)
		assert.Equal(t, "application/octet-stream", r.Header.Get("Content-Type"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Equal(t, content, string(body))

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id": "new-item", "name": "out.csv", "size": 12, "file": {}}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	item, err := client.SimpleUpload(
		context.Background(), testDrive, "reports", "out.csv",
		strings.NewReader(content), int64(len(content)),
	)
	require.NoError(t, err)
	assert.Equal(t, "new-item", item.ID)
}

func TestSimpleUpload_RootFolder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sites/site-1/drives/drive-1/root:/out.csv:/content", r.URL.Path)
		_, _ = w.Write([]byte(`{"id": "new-item", "name": "out.csv"}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.SimpleUpload(context.Background(), testDrive, "", "out.csv", strings.NewReader("x"), 1)
	require.NoError(t, err)
}

func TestSimpleUpload_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.SimpleUpload(context.Background(), testDrive, "reports", "out.csv", strings.NewReader("x"), 1)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestCreateUploadSession(t *testing.T) {
	var sessionURL string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/sites/site-1/drives/drive-1/root:/reports/big.bin:/createUploadSession", r.URL.Path)

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), `"@microsoft.graph.conflictBehavior":"replace"`)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"uploadUrl": "` + sessionURL + `", "expirationDateTime": "2026-09-01T00:00:00Z"}`))
	}))
	defer srv.Close()

	sessionURL = srv.URL + "/session-1"

	client := newTestClient(t, srv.URL)
	session, err := client.CreateUploadSession(context.Background(), testDrive, "reports", "big.bin")
	require.NoError(t, err)
	assert.Equal(t, sessionURL, session.UploadURL)
	assert.Equal(t, 2026, session.ExpirationTime.Year())
}

func TestUploadFromSession_Chunked(t *testing.T) {
	// Two chunks: one full chunk plus a 5-byte tail.
	total := int64(uploadChunkSize + 5)
	content := strings.Repeat("x", int(total))

	var ranges []string

	var received int64

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		// Session URL is pre-authenticated; bearer token must not leak.
		assert.Empty(t, r.Header.Get("Authorization"))

		ranges = append(ranges, r.Header.Get("Content-Range"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		received += int64(len(body))

		if received < total {
			w.WriteHeader(http.StatusAccepted)
			_, _ = w.Write([]byte(`{"nextExpectedRanges": ["10485760-"]}`))

			return
		}

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id": "done-item", "name": "big.bin", "size": 10485765}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	session := &UploadSession{UploadURL: srv.URL + "/session-1"}

	item, err := client.UploadFromSession(context.Background(), session, strings.NewReader(content), total)
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, "done-item", item.ID)
	assert.Equal(t, total, received)

	require.Len(t, ranges, 2)
	assert.Equal(t, "bytes 0-10485759/10485765", ranges[0])
	assert.Equal(t, "bytes 10485760-10485764/10485765", ranges[1])
}

func TestUploadFromSession_ChunkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":{"code":"nameAlreadyExists"}}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	session := &UploadSession{UploadURL: srv.URL + "/session-1"}

	_, err := client.UploadFromSession(context.Background(), session, strings.NewReader("abc"), 3)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestChunkAlignment(t *testing.T) {
	assert.Zero(t, uploadChunkSize%chunkAlignment, "chunk size must be 320 KiB aligned")
}
