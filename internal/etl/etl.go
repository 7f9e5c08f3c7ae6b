package etl

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/glennpai/graphetl/internal/graph"
)

// Transfer operation names as recorded in the journal.
const (
	OpFetch  = "fetch"
	OpDelete = "delete"
	OpUpload = "upload"
)

// TransferRecord describes one completed or failed transfer operation.
type TransferRecord struct {
	Op         string
	RemotePath string
	Name       string
	Bytes      int64
	Err        error
	Started    time.Time
	Finished   time.Time
}

// Recorder persists transfer records. Defined here at the consumer; the
// journal package provides the SQLite implementation. Recording is best
// effort — a Recorder error never fails the transfer it describes.
type Recorder interface {
	Record(ctx context.Context, rec TransferRecord) error
}

// ETL performs fetch, delete, and upload operations against one document
// library. It is not safe for concurrent use: operations are synchronous and
// meant to be interleaved with the caller's transform logic.
type ETL struct {
	lib      DocumentLibrary
	client   *graph.Client
	destDir  string
	recorder Recorder
	logger   *slog.Logger
}

// Option configures an ETL.
type Option func(*ETL)

// WithDestDir sets the directory fetched files are written to.
// Defaults to the working directory.
func WithDestDir(dir string) Option {
	return func(e *ETL) { e.destDir = dir }
}

// WithRecorder attaches a transfer journal.
func WithRecorder(r Recorder) Option {
	return func(e *ETL) { e.recorder = r }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *ETL) { e.logger = logger }
}

// New creates an ETL bound to the given library and Graph client.
func New(lib DocumentLibrary, client *graph.Client, opts ...Option) (*ETL, error) {
	if err := lib.Validate(); err != nil {
		return nil, err
	}

	e := &ETL{
		lib:     lib,
		client:  client,
		destDir: ".",
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e, nil
}

// Fetch lists the children of remotePath and downloads each file to the
// destination directory under its remote name. Folders and items without
// content are skipped. Returns the names of the files written.
//
// Authentication failures surface before anything touches the filesystem;
// a missing remote path yields ErrNotFound; write failures yield ErrLocalIO.
func (e *ETL) Fetch(ctx context.Context, remotePath string) ([]string, error) {
	started := time.Now()
	clean := graph.NormalizePath(remotePath)

	items, err := e.client.ListChildrenByPath(ctx, e.lib.Drive(), clean)
	if err != nil {
		e.record(ctx, TransferRecord{Op: OpFetch, RemotePath: clean, Err: err, Started: started})
		return nil, fmt.Errorf("etl: listing %q: %w", remotePath, err)
	}

	var fetched []string

	for i := range items {
		item := &items[i]

		if item.IsFolder || item.DownloadURL == "" {
			e.logger.Debug("skipping item without content",
				slog.String("name", item.Name),
				slog.Bool("is_folder", item.IsFolder),
			)

			continue
		}

		n, dlErr := e.downloadToFile(ctx, item)
		e.record(ctx, TransferRecord{
			Op: OpFetch, RemotePath: clean, Name: item.Name, Bytes: n, Err: dlErr, Started: started,
		})

		if dlErr != nil {
			return fetched, dlErr
		}

		fetched = append(fetched, item.Name)
	}

	e.logger.Info("fetch complete",
		slog.String("remote_path", clean),
		slog.Int("files", len(fetched)),
	)

	return fetched, nil
}

// downloadToFile streams one item to destDir/<name> via a .partial file and
// an atomic rename, so an interrupted download never leaves a truncated file
// under the final name.
func (e *ETL) downloadToFile(ctx context.Context, item *graph.Item) (int64, error) {
	// Base() guards against a remote name smuggling path separators.
	dest := filepath.Join(e.destDir, filepath.Base(item.Name))
	partial := dest + ".partial"

	f, err := os.Create(partial)
	if err != nil {
		return 0, fmt.Errorf("%w: creating %s: %w", ErrLocalIO, partial, err)
	}

	n, dlErr := e.client.Download(ctx, item, f)

	if closeErr := f.Close(); dlErr == nil && closeErr != nil {
		dlErr = fmt.Errorf("%w: closing %s: %w", ErrLocalIO, partial, closeErr)
	}

	if dlErr != nil {
		os.Remove(partial)
		return n, fmt.Errorf("etl: downloading %q: %w", item.Name, dlErr)
	}

	if err := os.Rename(partial, dest); err != nil {
		os.Remove(partial)
		return n, fmt.Errorf("%w: renaming %s: %w", ErrLocalIO, partial, err)
	}

	e.logger.Debug("downloaded file",
		slog.String("name", item.Name),
		slog.Int64("bytes", n),
	)

	return n, nil
}

// Delete removes the remote file named filename under remotePath.
// Returns ErrNotFound if the folder or the file does not exist.
func (e *ETL) Delete(ctx context.Context, remotePath, filename string) error {
	started := time.Now()
	clean := graph.NormalizePath(remotePath)

	err := e.deleteByName(ctx, clean, filename)
	e.record(ctx, TransferRecord{Op: OpDelete, RemotePath: clean, Name: filename, Err: err, Started: started})

	return err
}

func (e *ETL) deleteByName(ctx context.Context, clean, filename string) error {
	items, err := e.client.ListChildrenByPath(ctx, e.lib.Drive(), clean)
	if err != nil {
		return fmt.Errorf("etl: listing %q: %w", clean, err)
	}

	var itemID string

	for i := range items {
		if items[i].Name == filename {
			itemID = items[i].ID
			break
		}
	}

	if itemID == "" {
		return fmt.Errorf("etl: %q has no child named %q: %w", clean, filename, ErrNotFound)
	}

	if err := e.client.DeleteItem(ctx, e.lib.Drive(), itemID); err != nil {
		return fmt.Errorf("etl: deleting %q: %w", filename, err)
	}

	e.logger.Info("deleted remote file",
		slog.String("remote_path", clean),
		slog.String("name", filename),
	)

	return nil
}

// Upload sends the local file at filename to the remote folder remotePath
// under its base name, replacing any existing file of that name.
// A missing or unreadable local file yields ErrLocalIO before any remote
// request is issued.
func (e *ETL) Upload(ctx context.Context, remotePath, filename string) error {
	started := time.Now()
	clean := graph.NormalizePath(remotePath)
	name := filepath.Base(filename)

	n, err := e.uploadFile(ctx, clean, filename, name)
	e.record(ctx, TransferRecord{Op: OpUpload, RemotePath: clean, Name: name, Bytes: n, Err: err, Started: started})

	return err
}

func (e *ETL) uploadFile(ctx context.Context, clean, filename, name string) (int64, error) {
	fi, err := os.Stat(filename)
	if err != nil {
		return 0, fmt.Errorf("%w: stating %s: %w", ErrLocalIO, filename, err)
	}

	if fi.IsDir() {
		return 0, fmt.Errorf("%w: %s is a directory, not a file", ErrLocalIO, filename)
	}

	f, err := os.Open(filename)
	if err != nil {
		return 0, fmt.Errorf("%w: opening %s: %w", ErrLocalIO, filename, err)
	}
	defer f.Close()

	size := fi.Size()

	// Small files go up in one PUT; larger files use an upload session with
	// ranged PUTs, which is what the Graph API requires past 4 MB.
	if size <= graph.SimpleUploadMaxSize {
		if _, err := e.client.SimpleUpload(ctx, e.lib.Drive(), clean, name, f, size); err != nil {
			return 0, fmt.Errorf("etl: uploading %q: %w", name, err)
		}
	} else {
		session, err := e.client.CreateUploadSession(ctx, e.lib.Drive(), clean, name)
		if err != nil {
			return 0, fmt.Errorf("etl: creating upload session for %q: %w", name, err)
		}

		if _, err := e.client.UploadFromSession(ctx, session, f, size); err != nil {
			return 0, fmt.Errorf("etl: uploading %q: %w", name, err)
		}
	}

	e.logger.Info("uploaded file",
		slog.String("remote_path", clean),
		slog.String("name", name),
		slog.Int64("bytes", size),
	)

	return size, nil
}

// record writes a journal entry if a recorder is configured. Best effort.
func (e *ETL) record(ctx context.Context, rec TransferRecord) {
	if e.recorder == nil {
		return
	}

	rec.Finished = time.Now()

	if err := e.recorder.Record(ctx, rec); err != nil {
		e.logger.Warn("failed to record transfer in journal",
			slog.String("op", rec.Op),
			slog.String("error", err.Error()),
		)
	}
}
