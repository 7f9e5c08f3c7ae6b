package graph

import "time"

// Drive addresses a SharePoint document library by its parent site ID and
// drive (resource) ID. The zero value is invalid.
type Drive struct {
	SiteID  string
	DriveID string
}

// Resource returns the drive's API resource prefix, e.g.
// "/sites/{siteID}/drives/{driveID}". Appended to the client base URL when
// building item requests.
func (d Drive) Resource() string {
	return "/sites/" + d.SiteID + "/drives/" + d.DriveID
}

// IsZero reports whether the drive reference is unset.
func (d Drive) IsZero() bool {
	return d.SiteID == "" && d.DriveID == ""
}

// Item represents a drive item (file or folder).
// Fields are normalized from the Graph API response — callers never see raw API data.
type Item struct {
	ID          string
	Name        string
	Size        int64
	ETag        string
	IsFolder    bool
	IsDeleted   bool
	MimeType    string
	CreatedAt   time.Time
	ModifiedAt  time.Time
	DownloadURL string // pre-authenticated, ephemeral; never log
}

// UploadSession is a resumable upload session with a pre-authenticated URL.
type UploadSession struct {
	UploadURL      string
	ExpirationTime time.Time
}
