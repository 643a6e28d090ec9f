// Package syncer is the bidirectional reconciliation engine between
// the local journal store and the remote file store: idempotent
// uploads, bounded-concurrency downloads, last-write-wins merging, and
// the orchestration state machine tying them together.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alexjbarnes/journal-sync/internal/journal"
	"github.com/alexjbarnes/journal-sync/internal/remote"
	"github.com/alexjbarnes/journal-sync/internal/session"
)

// uploadTimeout bounds one background upload run, images included.
const uploadTimeout = 2 * time.Minute

// Orchestrator drives the sync engine. It is the only writer of the
// local store, serializes remote uploads through a one-slot coalescing
// latch, and keeps full sync passes exclusive with each other.
//
// Save flow per entry: Idle -> Debouncing -> Saving(local) ->
// Saving(remote) -> Idle. The local put always happens; a failed
// remote leg leaves the entry saved locally.
type Orchestrator struct {
	store      *journal.Store
	uploader   *Uploader
	downloader *Downloader
	sess       *session.Session
	logger     *slog.Logger
	debounce   time.Duration

	mu sync.Mutex
	// One-slot upload latch: while an upload is in flight, the latest
	// save request parks in pending and runs next; earlier parked
	// requests are superseded, never queued.
	inflight bool
	pending  *journal.Entry
	// syncing suppresses re-entrant full sync requests.
	syncing bool
	timers  map[string]*time.Timer

	// storeMu serializes every store write the orchestrator performs:
	// saves, the post-upload name write-back, merge application, and
	// deletes. Without it a read-modify-write could overwrite an edit
	// that landed between its read and its write.
	storeMu sync.Mutex

	wg sync.WaitGroup
}

// NewOrchestrator wires the engine together. debounce is the delay
// between an edit and the save it triggers; zero disables debouncing.
func NewOrchestrator(store *journal.Store, uploader *Uploader, downloader *Downloader, sess *session.Session, debounce time.Duration, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		store:      store,
		uploader:   uploader,
		downloader: downloader,
		sess:       sess,
		logger:     logger,
		debounce:   debounce,
		timers:     map[string]*time.Timer{},
	}
}

// RequestSave schedules a save for the entry after the debounce delay.
// A newer request for the same entry restarts the delay and supersedes
// the older snapshot.
func (o *Orchestrator) RequestSave(e journal.Entry) {
	if o.debounce <= 0 {
		if err := o.SaveEntry(e); err != nil {
			o.logger.Error("saving entry", "entryID", e.ID, "error", err)
		}

		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if t, ok := o.timers[e.ID]; ok {
		t.Stop()
	}

	o.timers[e.ID] = time.AfterFunc(o.debounce, func() {
		o.mu.Lock()
		delete(o.timers, e.ID)
		o.mu.Unlock()

		if err := o.SaveEntry(e); err != nil {
			o.logger.Error("saving entry", "entryID", e.ID, "error", err)
		}
	})
}

// SaveEntry persists the entry locally, then uploads it in the
// background through the coalescing latch. The local put failing is
// the only error surfaced; remote failures are handled inside the
// upload loop.
func (o *Orchestrator) SaveEntry(e journal.Entry) error {
	o.storeMu.Lock()
	err := o.store.Put(e)
	o.storeMu.Unlock()

	if err != nil {
		return fmt.Errorf("saving entry locally: %w", err)
	}

	o.mu.Lock()

	if o.inflight {
		// Supersede whatever was parked; only the latest state matters.
		o.pending = &e
		o.mu.Unlock()

		return nil
	}

	o.inflight = true
	o.mu.Unlock()

	o.wg.Add(1)
	go o.uploadLoop(e)

	return nil
}

// uploadLoop runs uploads until the latch drains: the handed entry
// first, then whatever save requests parked while it was in flight.
func (o *Orchestrator) uploadLoop(e journal.Entry) {
	defer o.wg.Done()

	for {
		o.uploadOne(e)

		o.mu.Lock()

		if o.pending == nil {
			o.inflight = false
			o.mu.Unlock()

			return
		}

		e = *o.pending
		o.pending = nil
		o.mu.Unlock()
	}
}

// uploadOne pushes one entry remote. AuthError invalidates the
// session; any other failure is logged and swallowed, leaving the
// entry local-only until the next save or sync.
func (o *Orchestrator) uploadOne(e journal.Entry) {
	token, epoch := o.sess.Token()
	if token == "" {
		o.logger.Debug("skipping upload, logged out", "entryID", e.ID)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), uploadTimeout)
	defer cancel()

	got, err := o.uploader.Upload(ctx, token, e)
	if err != nil {
		if remote.IsAuth(err) {
			o.logger.Warn("upload rejected, invalidating session", "entryID", e.ID, "error", err)
			o.sess.Invalidate()

			return
		}

		o.logger.Error("upload failed, entry remains local", "entryID", e.ID, "error", err)

		return
	}

	if !o.sess.Current(epoch) {
		o.logger.Debug("discarding upload result, session changed", "entryID", e.ID)
		return
	}

	o.recordRemoteName(e, got.RemoteFileName)
}

// recordRemoteName persists the file name an upload synced under, for
// future identity resolution. The uploaded snapshot is never written
// back wholesale: a newer edit may have landed while the upload was in
// flight, and reverting it would lose data the remote leg cannot
// restore. When a pending save superseded this upload, or the stored
// copy has moved on, the name is dropped and the superseding upload
// records its own.
func (o *Orchestrator) recordRemoteName(e journal.Entry, name string) {
	o.mu.Lock()
	superseded := o.pending != nil
	o.mu.Unlock()

	if superseded {
		return
	}

	o.storeMu.Lock()
	defer o.storeMu.Unlock()

	stored, err := o.store.Get(e.ID)
	if err != nil {
		o.logger.Error("recording remote file name", "entryID", e.ID, "error", err)
		return
	}

	if stored == nil || stored.UpdatedAt.After(e.UpdatedAt) || stored.RemoteFileName == name {
		return
	}

	stored.RemoteFileName = name

	if err := o.store.Put(*stored); err != nil {
		o.logger.Error("recording remote file name", "entryID", e.ID, "error", err)
	}
}

// RunFullSync downloads the remote entry set and merges it into the
// local store. Runs on login and on manual request. A pass already in
// progress suppresses the new request; the save flow is unaffected
// either way.
func (o *Orchestrator) RunFullSync(ctx context.Context) error {
	o.mu.Lock()

	if o.syncing {
		o.mu.Unlock()
		o.logger.Debug("full sync already running, request suppressed")

		return nil
	}

	o.syncing = true
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.syncing = false
		o.mu.Unlock()
	}()

	token, epoch := o.sess.Token()
	if token == "" {
		return fmt.Errorf("full sync requires a logged-in session")
	}

	remoteEntries, err := o.downloader.Run(ctx, token)
	if err != nil {
		if remote.IsAuth(err) {
			o.logger.Warn("full sync rejected, invalidating session", "error", err)
			o.sess.Invalidate()
		}

		return fmt.Errorf("fetching remote entries: %w", err)
	}

	// The download may have raced a logout or token change; results
	// from the old session are discarded, not applied.
	if !o.sess.Current(epoch) {
		o.logger.Info("discarding sync results, session changed mid-pass")
		return nil
	}

	// Read-merge-apply runs under the store-write lock so a save
	// cannot land between the snapshot and the write and be rewritten
	// with its pre-save copy; a save completing first is seen by the
	// merge and kept by last-write-wins.
	o.storeMu.Lock()
	defer o.storeMu.Unlock()

	local, err := o.store.GetAll()
	if err != nil {
		return fmt.Errorf("reading local entries: %w", err)
	}

	merged, changed := MergeRemote(local, remoteEntries)
	if !changed {
		o.logger.Info("full sync complete, no changes", "entries", len(local))
		return nil
	}

	if err := o.store.PutAll(merged); err != nil {
		return fmt.Errorf("applying merge: %w", err)
	}

	o.logger.Info("full sync complete", "local", len(local), "remote", len(remoteEntries), "merged", len(merged))

	return nil
}

// DeleteEntry removes an entry remotely and locally. The remote delete
// goes first: an auth failure aborts the local delete too, so the
// entry reappears for retry after re-login. Any other remote failure
// is logged and the local delete proceeds.
func (o *Orchestrator) DeleteEntry(ctx context.Context, id string) error {
	e, err := o.store.Get(id)
	if err != nil {
		return fmt.Errorf("reading entry %s: %w", id, err)
	}

	if e == nil {
		return nil
	}

	if token, _ := o.sess.Token(); token != "" {
		if err := o.uploader.DeleteRemote(ctx, token, *e); err != nil {
			if remote.IsAuth(err) {
				o.sess.Invalidate()
				return fmt.Errorf("remote delete rejected: %w", err)
			}

			o.logger.Error("remote delete failed, deleting locally anyway", "entryID", id, "error", err)
		}
	}

	o.storeMu.Lock()
	err = o.store.Delete(id)
	o.storeMu.Unlock()

	if err != nil {
		return fmt.Errorf("deleting entry %s locally: %w", id, err)
	}

	return nil
}

// Flush blocks until all in-flight background uploads have drained.
// Pending debounce timers are not waited for.
func (o *Orchestrator) Flush() {
	o.wg.Wait()
}
