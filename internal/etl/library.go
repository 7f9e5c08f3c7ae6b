// Package etl is a thin convenience wrapper for scripted ETL against a
// SharePoint document library: fetch the files under a remote folder, delete
// a remote file, upload a local one. Each operation is a single synchronous
// round trip; transform logic between calls belongs to the caller.
package etl

import (
	"errors"
	"fmt"

	"github.com/glennpai/graphetl/internal/graph"
)

// DocumentLibrary is the immutable configuration identifying one SharePoint
// document library and the app registration used to reach it.
type DocumentLibrary struct {
	ClientID  string // Azure AD app registration client ID
	SiteID    string // parent SharePoint site
	ResID     string // drive (document library) resource ID
	Authority string // e.g. https://login.microsoftonline.com/{tenant}
	Scope     string // e.g. https://graph.microsoft.com/.default
}

// Drive returns the library's drive reference for Graph API calls.
func (l DocumentLibrary) Drive() graph.Drive {
	return graph.Drive{SiteID: l.SiteID, DriveID: l.ResID}
}

// Validate checks that every identifying field is present.
func (l DocumentLibrary) Validate() error {
	missing := func(field string) error {
		return fmt.Errorf("etl: document library missing %s", field)
	}

	switch {
	case l.ClientID == "":
		return missing("client_id")
	case l.SiteID == "":
		return missing("site_id")
	case l.ResID == "":
		return missing("res_id")
	case l.Authority == "":
		return missing("authority")
	case l.Scope == "":
		return missing("scope")
	}

	return nil
}

// ErrLocalIO is returned for local filesystem failures: a missing upload
// source, an unwritable destination. Check with errors.Is.
var ErrLocalIO = errors.New("etl: local I/O failure")

// ErrNotFound is returned when the remote path or file does not exist.
// It is the graph package's sentinel so both layers match the same check.
var ErrNotFound = graph.ErrNotFound

// IsAuthError reports whether err is an authentication failure — either
// token acquisition failed before the drive call, or the API rejected the
// bearer token.
func IsAuthError(err error) bool {
	return errors.Is(err, graph.ErrAuth) ||
		errors.Is(err, graph.ErrUnauthorized) ||
		errors.Is(err, graph.ErrForbidden)
}
