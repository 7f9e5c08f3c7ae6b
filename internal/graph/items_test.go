package graph

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDrive = Drive{SiteID: "site-1", DriveID: "drive-1"}

func TestDrive_Resource(t *testing.T) {
	assert.Equal(t, "/sites/site-1/drives/drive-1", testDrive.Resource())
	assert.False(t, testDrive.IsZero())
	assert.True(t, Drive{}.IsZero())
}

func TestGetItemByPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sites/site-1/drives/drive-1/root:/reports/q1.csv:", r.URL.Path)

		_, _ = w.Write([]byte(`{
			"id": "item-1",
			"name": "q1.csv",
			"size": 42,
			"eTag": "etag-1",
			"createdDateTime": "2026-01-02T03:04:05Z",
			"lastModifiedDateTime": "2026-01-03T03:04:05Z",
			"file": {"mimeType": "text/csv"},
			"@microsoft.graph.downloadUrl": "https://example.invalid/dl/q1"
		}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	item, err := client.GetItemByPath(context.Background(), testDrive, "reports/q1.csv")
	require.NoError(t, err)

	assert.Equal(t, "item-1", item.ID)
	assert.Equal(t, "q1.csv", item.Name)
	assert.Equal(t, int64(42), item.Size)
	assert.Equal(t, "text/csv", item.MimeType)
	assert.False(t, item.IsFolder)
	assert.Equal(t, "https://example.invalid/dl/q1", item.DownloadURL)
	assert.Equal(t, 2026, item.CreatedAt.Year())
}

func TestGetItemByPath_Root(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sites/site-1/drives/drive-1/root", r.URL.Path)
		_, _ = w.Write([]byte(`{"id": "root-id", "name": "root", "folder": {"childCount": 3}}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	item, err := client.GetItemByPath(context.Background(), testDrive, "")
	require.NoError(t, err)
	assert.True(t, item.IsFolder)
}

func TestGetItemByPath_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":"itemNotFound"}}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.GetItemByPath(context.Background(), testDrive, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListChildrenByPath_Pagination(t *testing.T) {
	var srvURL string

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)

	defer srv.Close()

	srvURL = srv.URL

	mux.HandleFunc("/sites/site-1/drives/drive-1/root:/etl:/children", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "200", r.URL.Query().Get("$top"))
		fmt.Fprintf(w, `{
			"value": [{"id": "a", "name": "a.csv", "file": {}}],
			"@odata.nextLink": %q
		}`, srvURL+"/page2")
	})

	mux.HandleFunc("/page2", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"value": [{"id": "b", "name": "b.csv", "file": {}}, {"id": "c", "name": "sub", "folder": {"childCount": 0}}]}`))
	})

	client := newTestClient(t, srv.URL)
	items, err := client.ListChildrenByPath(context.Background(), testDrive, "etl")
	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.Equal(t, "a.csv", items[0].Name)
	assert.Equal(t, "b.csv", items[1].Name)
	assert.True(t, items[2].IsFolder)
}

func TestListChildrenByPath_BadNextLink(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"value": [], "@odata.nextLink": "https://elsewhere.invalid/page2"}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.ListChildrenByPath(context.Background(), testDrive, "etl")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match base URL")
}

func TestListChildrenByPath_EncodesSegments(t *testing.T) {
	var gotPath string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		_, _ = w.Write([]byte(`{"value": []}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.ListChildrenByPath(context.Background(), testDrive, "month end/reports#final")
	require.NoError(t, err)
	assert.Contains(t, gotPath, "month%20end/reports%23final")
}

func TestDeleteItem(t *testing.T) {
	var deleted bool

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/sites/site-1/drives/drive-1/items/item-9", r.URL.Path)

		deleted = true

		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	require.NoError(t, client.DeleteItem(context.Background(), testDrive, "item-9"))
	assert.True(t, deleted)
}

func TestDeleteItem_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	err := client.DeleteItem(context.Background(), testDrive, "gone")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestToItem_InvalidTimestampFallsBack(t *testing.T) {
	dir := driveItemResponse{
		ID:                   "x",
		Name:                 "x.bin",
		CreatedDateTime:      "not-a-timestamp",
		LastModifiedDateTime: "2026-01-01T00:00:00Z",
	}

	item := dir.toItem(discardLogger())

	assert.False(t, item.CreatedAt.IsZero(), "invalid timestamp should fall back to now")
	assert.Equal(t, 2026, item.ModifiedAt.Year())
}
