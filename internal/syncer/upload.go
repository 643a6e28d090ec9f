package syncer

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alexjbarnes/journal-sync/internal/journal"
	"github.com/alexjbarnes/journal-sync/internal/remote"
)

// Uploader pushes one entry to the remote store. Every step is
// idempotent: running Upload twice for an unchanged entry creates no
// duplicate remote objects and performs at most one metadata patch.
//
// All errors propagate; the orchestrator decides what is fatal
// (AuthError invalidates the session) and what is logged and swallowed.
type Uploader struct {
	store    FileStore
	resolver *Resolver
	logger   *slog.Logger
	rootName string
}

// NewUploader creates an Uploader that keeps entries under the named
// app root folder.
func NewUploader(store FileStore, rootName string, logger *slog.Logger) *Uploader {
	return &Uploader{
		store:    store,
		resolver: NewResolver(store, logger),
		logger:   logger,
		rootName: rootName,
	}
}

// Upload syncs one entry to the remote store: ensures the folder
// hierarchy, finds or creates the entry's text record, uploads content
// before patching metadata, then uploads any missing attachments.
// Returns the entry with RemoteFileName updated to the name the record
// now carries remotely.
func (u *Uploader) Upload(ctx context.Context, token string, e journal.Entry) (journal.Entry, error) {
	rootID, err := ensureFolder(ctx, u.store, token, u.rootName, "")
	if err != nil {
		return e, fmt.Errorf("ensuring root folder: %w", err)
	}

	dayName := DayFolderName(e.CreatedAt)

	dayID, err := ensureFolder(ctx, u.store, token, dayName, rootID)
	if err != nil {
		return e, fmt.Errorf("ensuring day folder %s: %w", dayName, err)
	}

	data := MarshalRecord(e)
	wantName := CanonicalFileName(e.Title)

	rec, err := u.resolver.Resolve(ctx, token, e, dayID, rootID)
	if err != nil {
		return e, err
	}

	if rec != nil {
		if err := u.updateRecord(ctx, token, e, rec, dayID, wantName, data); err != nil {
			return e, err
		}
	} else {
		if err := u.createRecord(ctx, token, e, dayID, wantName, data); err != nil {
			return e, err
		}
	}

	if err := u.uploadImages(ctx, token, e, dayID); err != nil {
		return e, err
	}

	e.RemoteFileName = wantName

	return e, nil
}

// updateRecord repairs and overwrites an existing remote record: moves
// it under the correct day folder if needed, replaces content, and
// patches name/property only when stale.
func (u *Uploader) updateRecord(ctx context.Context, token string, e journal.Entry, rec *remote.RemoteRecord, dayID, wantName string, data []byte) error {
	if !rec.HasParent(dayID) {
		// The record predates day-folder partitioning, or the entry's
		// creation date was edited. Re-home it.
		if err := u.store.PatchMetadata(ctx, token, rec.ID, remote.MetaPatch{
			AddParents:    []string{dayID},
			RemoveParents: rec.Parents,
		}); err != nil {
			return fmt.Errorf("moving record %s: %w", rec.ID, err)
		}

		u.logger.Debug("moved record to day folder", "entryID", e.ID, "fileID", rec.ID, "dayFolderID", dayID)
	}

	if err := u.store.UpdateContent(ctx, token, rec.ID, data, remote.TextMimeType); err != nil {
		return fmt.Errorf("uploading content for entry %s: %w", e.ID, err)
	}

	// Metadata patch strictly follows the content upload, and only when
	// something actually changed.
	patch := remote.MetaPatch{}
	if rec.Name != wantName {
		patch.Name = wantName
	}

	if rec.EntryID() != e.ID {
		patch.Properties = map[string]string{remote.EntryIDProperty: e.ID}
	}

	if err := u.store.PatchMetadata(ctx, token, rec.ID, patch); err != nil {
		return fmt.Errorf("patching record %s: %w", rec.ID, err)
	}

	return nil
}

// createRecord creates a fresh remote record with the canonical name,
// correct parent, and identity property set at creation time.
func (u *Uploader) createRecord(ctx context.Context, token string, e journal.Entry, dayID, wantName string, data []byte) error {
	id, err := u.store.CreateFile(ctx, token, remote.FileMeta{
		Name:       wantName,
		MimeType:   remote.TextMimeType,
		Parents:    []string{dayID},
		Properties: map[string]string{remote.EntryIDProperty: e.ID},
	})
	if err != nil {
		return fmt.Errorf("creating record for entry %s: %w", e.ID, err)
	}

	if err := u.store.UpdateContent(ctx, token, id, data, remote.TextMimeType); err != nil {
		return fmt.Errorf("uploading content for entry %s: %w", e.ID, err)
	}

	u.logger.Debug("created remote record", "entryID", e.ID, "fileID", id, "name", wantName)

	return nil
}

// uploadImages uploads the entry's attachments that are not already
// present under the day's images folder. Presence is judged by the
// deterministic image-{id}.{ext} name, which makes re-uploads free.
func (u *Uploader) uploadImages(ctx context.Context, token string, e journal.Entry, dayID string) error {
	if len(e.Images) == 0 {
		return nil
	}

	imagesID, err := ensureFolder(ctx, u.store, token, ImagesFolderName, dayID)
	if err != nil {
		return fmt.Errorf("ensuring images folder: %w", err)
	}

	for _, img := range e.Images {
		name := ImageFileName(img.ID, img.MimeType)

		existing, err := findByName(ctx, u.store, token, name, imagesID, false)
		if err != nil {
			return fmt.Errorf("checking attachment %s: %w", name, err)
		}

		if existing != nil {
			continue
		}

		raw, err := decodeImageData(img.Data)
		if err != nil {
			return fmt.Errorf("decoding attachment %s: %w", img.ID, err)
		}

		id, err := u.store.CreateFile(ctx, token, remote.FileMeta{
			Name:       name,
			MimeType:   img.MimeType,
			Parents:    []string{imagesID},
			Properties: map[string]string{remote.EntryIDProperty: e.ID},
		})
		if err != nil {
			return fmt.Errorf("creating attachment %s: %w", name, err)
		}

		if err := u.store.UpdateContent(ctx, token, id, raw, img.MimeType); err != nil {
			return fmt.Errorf("uploading attachment %s: %w", name, err)
		}

		u.logger.Debug("uploaded attachment", "entryID", e.ID, "imageID", img.ID, "fileID", id)
	}

	return nil
}

// ensureFolder finds a folder by name under the given parent, creating
// it when absent. An empty parentID scopes to the drive root.
func ensureFolder(ctx context.Context, store FileStore, token, name, parentID string) (string, error) {
	existing, err := findByName(ctx, store, token, name, parentID, true)
	if err != nil {
		return "", err
	}

	if existing != nil {
		return existing.ID, nil
	}

	return store.CreateFolder(ctx, token, name, parentID)
}

// findByName returns the first record with the given name under the
// parent, filtered to folders or files, or nil when nothing matches.
func findByName(ctx context.Context, store FileStore, token, name, parentID string, folder bool) (*remote.RemoteRecord, error) {
	q := remote.NewQuery().NameEquals(name)

	if parentID != "" {
		q = q.InParent(parentID)
	}

	if folder {
		q = q.MimeEquals(remote.FolderMimeType)
	} else {
		q = q.MimeNot(remote.FolderMimeType)
	}

	records, err := store.QueryAll(ctx, token, q.String())
	if err != nil {
		return nil, err
	}

	if len(records) == 0 {
		return nil, nil
	}

	return &records[0], nil
}

// DeleteRemote removes the entry's remote record, if one exists.
// Attachment files are left in place; only the text record is deleted.
func (u *Uploader) DeleteRemote(ctx context.Context, token string, e journal.Entry) error {
	root, err := findByName(ctx, u.store, token, u.rootName, "", true)
	if err != nil {
		return fmt.Errorf("finding root folder: %w", err)
	}

	if root == nil {
		return nil
	}

	dayScope := root.ID

	day, err := findByName(ctx, u.store, token, DayFolderName(e.CreatedAt), root.ID, true)
	if err != nil {
		return fmt.Errorf("finding day folder: %w", err)
	}

	if day != nil {
		dayScope = day.ID
	}

	rec, err := u.resolver.Resolve(ctx, token, e, dayScope, root.ID)
	if err != nil {
		return err
	}

	if rec == nil {
		return nil
	}

	if err := u.store.Delete(ctx, token, rec.ID); err != nil {
		return fmt.Errorf("deleting record %s: %w", rec.ID, err)
	}

	u.logger.Debug("deleted remote record", "entryID", e.ID, "fileID", rec.ID)

	return nil
}

// decodeImageData decodes the entry model's base64 image payload. A
// data-URL prefix (data:image/png;base64,) is tolerated and stripped.
func decodeImageData(data string) ([]byte, error) {
	if i := strings.Index(data, ","); i >= 0 && strings.HasPrefix(data, "data:") {
		data = data[i+1:]
	}

	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("decoding base64 image data: %w", err)
	}

	return raw, nil
}
