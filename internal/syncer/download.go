package syncer

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/alexjbarnes/journal-sync/internal/journal"
	"github.com/alexjbarnes/journal-sync/internal/remote"
)

// Downloader rebuilds the full entry list from the remote store. It
// walks the folder tree under the app root, downloads and parses every
// text record with bounded concurrency, and pairs attachments to
// entries strictly by the entryId property.
type Downloader struct {
	store       FileStore
	logger      *slog.Logger
	rootName    string
	concurrency int
}

// NewDownloader creates a Downloader. concurrency bounds the number of
// in-flight record downloads.
func NewDownloader(store FileStore, rootName string, concurrency int, logger *slog.Logger) *Downloader {
	if concurrency < 1 {
		concurrency = 1
	}

	return &Downloader{
		store:       store,
		logger:      logger,
		rootName:    rootName,
		concurrency: concurrency,
	}
}

// Run fetches every remote entry. The root folder is created when
// absent, so a first sync against an empty store succeeds and returns
// no entries. Records that fail to download or parse are logged and
// skipped; an AuthError aborts the whole pass.
func (d *Downloader) Run(ctx context.Context, token string) ([]journal.Entry, error) {
	rootID, err := ensureFolder(ctx, d.store, token, d.rootName, "")
	if err != nil {
		return nil, fmt.Errorf("ensuring root folder: %w", err)
	}

	texts, attachments, err := d.enumerate(ctx, token, rootID)
	if err != nil {
		return nil, err
	}

	byEntry := groupByEntryID(attachments)

	var (
		mu      sync.Mutex
		entries []journal.Entry
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)

	for _, rec := range texts {
		rec := rec
		g.Go(func() error {
			entry, err := d.fetchEntry(gctx, token, rec, byEntry)
			if err != nil {
				if skippable(err) {
					d.logger.Warn("skipping unreadable record", "fileID", rec.ID, "name", rec.Name, "error", err)
					return nil
				}

				return err
			}

			mu.Lock()
			entries = append(entries, entry)
			mu.Unlock()

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	d.logger.Info("remote fetch complete", "entries", len(entries), "records", len(texts), "attachments", len(attachments))

	return entries, nil
}

// enumerate walks the folder tree breadth-first from the root and
// returns every text record and every candidate attachment found
// anywhere beneath it. Entries may live at the root itself or nested
// under day folders; both are covered.
func (d *Downloader) enumerate(ctx context.Context, token, rootID string) (texts, attachments []remote.RemoteRecord, err error) {
	queue := []string{rootID}
	seen := map[string]bool{rootID: true}

	for len(queue) > 0 {
		folderID := queue[0]
		queue = queue[1:]

		expr := remote.NewQuery().InParent(folderID).String()

		records, err := d.store.QueryAll(ctx, token, expr)
		if err != nil {
			return nil, nil, fmt.Errorf("listing folder %s: %w", folderID, err)
		}

		for _, rec := range records {
			switch {
			case rec.IsFolder():
				if !seen[rec.ID] {
					seen[rec.ID] = true
					queue = append(queue, rec.ID)
				}
			case rec.MimeType == remote.TextMimeType:
				texts = append(texts, rec)
			default:
				attachments = append(attachments, rec)
			}
		}
	}

	return texts, attachments, nil
}

// fetchEntry downloads and parses one text record, then downloads its
// attachments.
func (d *Downloader) fetchEntry(ctx context.Context, token string, rec remote.RemoteRecord, byEntry map[string][]remote.RemoteRecord) (journal.Entry, error) {
	raw, err := d.store.DownloadBytes(ctx, token, rec.ID)
	if err != nil {
		return journal.Entry{}, err
	}

	entry, err := ParseRecord(raw, RecordMeta{
		FileID:       rec.ID,
		Name:         rec.Name,
		ModifiedTime: rec.ModifiedTime,
		Properties:   rec.Properties,
	})
	if err != nil {
		return journal.Entry{}, err
	}

	for _, att := range byEntry[entry.ID] {
		img, err := d.fetchImage(ctx, token, att)
		if err != nil {
			if skippable(err) {
				d.logger.Warn("skipping unreadable attachment", "fileID", att.ID, "name", att.Name, "error", err)
				continue
			}

			return journal.Entry{}, err
		}

		entry.Images = append(entry.Images, img)
	}

	return entry, nil
}

func (d *Downloader) fetchImage(ctx context.Context, token string, rec remote.RemoteRecord) (journal.Image, error) {
	raw, err := d.store.DownloadBytes(ctx, token, rec.ID)
	if err != nil {
		return journal.Image{}, err
	}

	id := ImageIDFromFileName(rec.Name)
	if id == "" {
		id = rec.ID
	}

	return journal.Image{
		ID:       id,
		Data:     base64.StdEncoding.EncodeToString(raw),
		MimeType: rec.MimeType,
	}, nil
}

// groupByEntryID indexes attachment candidates by the entryId property.
// Files without the property are unpairable and ignored: proximity or
// position never substitutes for the explicit link.
func groupByEntryID(attachments []remote.RemoteRecord) map[string][]remote.RemoteRecord {
	byEntry := make(map[string][]remote.RemoteRecord)

	for _, att := range attachments {
		id := att.EntryID()
		if id == "" {
			continue
		}

		byEntry[id] = append(byEntry[id], att)
	}

	// Deterministic image order within an entry.
	for _, group := range byEntry {
		sort.Slice(group, func(i, j int) bool { return group[i].Name < group[j].Name })
	}

	return byEntry
}

// skippable reports whether an error affects only one record: parse
// failures and non-auth remote errors. Auth failures and cancellation
// abort the whole pass.
func skippable(err error) bool {
	if IsParse(err) {
		return true
	}

	var re *remote.RemoteError
	return errors.As(err, &re)
}
