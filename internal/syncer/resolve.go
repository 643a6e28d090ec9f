package syncer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alexjbarnes/journal-sync/internal/journal"
	"github.com/alexjbarnes/journal-sync/internal/remote"
)

// FileStore is the slice of the remote client the sync engine uses.
// *remote.Client satisfies it; tests substitute an in-memory fake.
type FileStore interface {
	Query(ctx context.Context, token, expr, pageToken string) ([]remote.RemoteRecord, string, error)
	QueryAll(ctx context.Context, token, expr string) ([]remote.RemoteRecord, error)
	GetFile(ctx context.Context, token, id string) (*remote.RemoteRecord, error)
	CreateFolder(ctx context.Context, token, name, parentID string) (string, error)
	CreateFile(ctx context.Context, token string, meta remote.FileMeta) (string, error)
	UpdateContent(ctx context.Context, token, id string, data []byte, mimeType string) error
	PatchMetadata(ctx context.Context, token, id string, patch remote.MetaPatch) error
	Delete(ctx context.Context, token, id string) error
	DownloadBytes(ctx context.Context, token, id string) ([]byte, error)
}

// resolveStep is one lookup strategy in the identity chain. Steps are
// evaluated lazily in order; the first non-nil record wins.
type resolveStep struct {
	name string
	fn   func(ctx context.Context) (*remote.RemoteRecord, error)
}

// Resolver finds the pre-existing remote record for an entry. The
// remote naming scheme changed several times over the app's life, so
// resolution is an ordered chain of strategies, newest scheme first,
// and the engine must adopt files created under every prior scheme
// without duplicating them.
type Resolver struct {
	store  FileStore
	logger *slog.Logger
}

// NewResolver creates a Resolver over the given file store.
func NewResolver(store FileStore, logger *slog.Logger) *Resolver {
	return &Resolver{store: store, logger: logger}
}

// Resolve runs the identity chain for an entry: custom property, then
// direct remote-id lookup, then recorded file name, then canonical
// name, then legacy name patterns, all scoped to the day folder; the
// name-based steps then re-run scoped to the app root, rescuing files
// created before day-folder partitioning existed. Returns nil when no
// prior record exists. Any error aborts the chain.
func (r *Resolver) Resolve(ctx context.Context, token string, e journal.Entry, dayFolderID, rootFolderID string) (*remote.RemoteRecord, error) {
	daySteps := r.scopedSteps(token, e, dayFolderID, "day folder")

	// The property lookup always goes first; a direct id lookup slots
	// in right after it, before any name-based guessing, when the id
	// looks remote-native (the entry was first seen on the remote side,
	// so its id IS a file id worth trying).
	steps := daySteps[:1:1]

	if !e.HasLocalID() {
		steps = append(steps, resolveStep{
			name: "direct id lookup",
			fn: func(ctx context.Context) (*remote.RemoteRecord, error) {
				return r.store.GetFile(ctx, token, e.ID)
			},
		})
	}

	steps = append(steps, daySteps[1:]...)
	steps = append(steps, r.scopedSteps(token, e, rootFolderID, "app root")...)

	for _, step := range steps {
		rec, err := step.fn(ctx)
		if err != nil {
			return nil, fmt.Errorf("identity step %q: %w", step.name, err)
		}

		if rec != nil {
			r.logger.Debug("resolved remote record",
				"entryID", e.ID,
				"step", step.name,
				"fileID", rec.ID,
				"fileName", rec.Name)

			return rec, nil
		}
	}

	return nil, nil
}

// scopedSteps builds the name-based lookup strategies for one folder
// scope.
func (r *Resolver) scopedSteps(token string, e journal.Entry, folderID, scope string) []resolveStep {
	steps := []resolveStep{
		{
			name: "entryId property in " + scope,
			fn: func(ctx context.Context) (*remote.RemoteRecord, error) {
				expr := remote.NewQuery().
					Property(remote.EntryIDProperty, e.ID).
					InParent(folderID).
					MimeNot(remote.FolderMimeType).
					String()

				return r.firstMatch(ctx, token, expr)
			},
		},
	}

	if e.RemoteFileName != "" {
		steps = append(steps, resolveStep{
			name: "recorded file name in " + scope,
			fn: func(ctx context.Context) (*remote.RemoteRecord, error) {
				return r.byName(ctx, token, e.RemoteFileName, folderID)
			},
		})
	}

	steps = append(steps, resolveStep{
		name: "canonical file name in " + scope,
		fn: func(ctx context.Context) (*remote.RemoteRecord, error) {
			return r.byName(ctx, token, CanonicalFileName(e.Title), folderID)
		},
	})

	for _, legacy := range []string{LegacyEntryFileName(e.ID), legacyNotesName} {
		legacy := legacy
		steps = append(steps, resolveStep{
			name: fmt.Sprintf("legacy name %q in %s", legacy, scope),
			fn: func(ctx context.Context) (*remote.RemoteRecord, error) {
				return r.byName(ctx, token, legacy, folderID)
			},
		})
	}

	return steps
}

func (r *Resolver) byName(ctx context.Context, token, name, folderID string) (*remote.RemoteRecord, error) {
	expr := remote.NewQuery().
		NameEquals(name).
		InParent(folderID).
		MimeNot(remote.FolderMimeType).
		String()

	return r.firstMatch(ctx, token, expr)
}

// firstMatch runs a query to exhaustion and returns the first file
// record, or nil when nothing matched.
func (r *Resolver) firstMatch(ctx context.Context, token, expr string) (*remote.RemoteRecord, error) {
	records, err := r.store.QueryAll(ctx, token, expr)
	if err != nil {
		return nil, err
	}

	for i := range records {
		if !records[i].IsFolder() {
			return &records[i], nil
		}
	}

	return nil, nil
}
