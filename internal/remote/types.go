package remote

import "time"

// MIME types with provider-level meaning.
const (
	// FolderMimeType marks a record as a folder rather than a file.
	FolderMimeType = "application/vnd.google-apps.folder"

	// TextMimeType is the content type of journal text records.
	TextMimeType = "text/plain"
)

// EntryIDProperty is the custom-property key carrying the owning
// entry's id on both text records and attachment files. It is the
// out-of-band identity link: file names may change, the property does
// not.
const EntryIDProperty = "entryId"

// RemoteRecord is the remote store's view of one file or folder.
// Transient: produced by queries, consumed during identity resolution
// and reconciliation, never persisted locally.
type RemoteRecord struct {
	ID           string
	Name         string
	MimeType     string
	Parents      []string
	ModifiedTime time.Time
	Properties   map[string]string
}

// IsFolder reports whether the record is a folder.
func (r *RemoteRecord) IsFolder() bool {
	return r.MimeType == FolderMimeType
}

// EntryID returns the owning entry id carried in the record's custom
// properties, or "" if the property is absent.
func (r *RemoteRecord) EntryID() string {
	return r.Properties[EntryIDProperty]
}

// HasParent reports whether the record lists the given folder id among
// its parents.
func (r *RemoteRecord) HasParent(folderID string) bool {
	for _, p := range r.Parents {
		if p == folderID {
			return true
		}
	}

	return false
}

// FileMeta describes a file to create. Parents and Properties may be
// nil.
type FileMeta struct {
	Name       string
	MimeType   string
	Parents    []string
	Properties map[string]string
}

// MetaPatch is a partial metadata update. Zero-value fields are left
// unchanged on the remote record.
type MetaPatch struct {
	Name          string
	AddParents    []string
	RemoveParents []string
	Properties    map[string]string
}

// IsZero reports whether the patch changes nothing.
func (p MetaPatch) IsZero() bool {
	return p.Name == "" && len(p.AddParents) == 0 && len(p.RemoveParents) == 0 && len(p.Properties) == 0
}

// wire representations for the files API.

type fileResource struct {
	ID            string            `json:"id,omitempty"`
	Name          string            `json:"name,omitempty"`
	MimeType      string            `json:"mimeType,omitempty"`
	Parents       []string          `json:"parents,omitempty"`
	ModifiedTime  string            `json:"modifiedTime,omitempty"`
	AppProperties map[string]string `json:"appProperties,omitempty"`
}

type fileListResponse struct {
	Files         []fileResource `json:"files"`
	NextPageToken string         `json:"nextPageToken"`
}

func (f fileResource) toRecord() RemoteRecord {
	rec := RemoteRecord{
		ID:         f.ID,
		Name:       f.Name,
		MimeType:   f.MimeType,
		Parents:    f.Parents,
		Properties: f.AppProperties,
	}

	if f.ModifiedTime != "" {
		if t, err := time.Parse(time.RFC3339, f.ModifiedTime); err == nil {
			rec.ModifiedTime = t
		}
	}

	return rec
}
