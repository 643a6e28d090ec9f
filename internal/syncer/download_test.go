package syncer

import (
	"context"
	"encoding/base64"
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexjbarnes/journal-sync/internal/remote"
)

func newTestDownloader(store *fakeStore) *Downloader {
	return NewDownloader(store, "JournalApp", 3, testLogger())
}

func TestDownloadRun_EmptyStoreCreatesRoot(t *testing.T) {
	store := newFakeStore()
	d := newTestDownloader(store)

	entries, err := d.Run(context.Background(), "tok")
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Equal(t, 1, store.callCount("CreateFolder"))
}

func TestDownloadRun_CollectsNestedAndRootRecords(t *testing.T) {
	store := newFakeStore()
	root := store.addFolder("JournalApp", "")
	day := store.addFolder("2024-03-01", root)

	store.addFile("Morning Run.txt", remote.TextMimeType, day,
		map[string]string{"entryId": "e1"},
		[]byte("Title: Morning Run\n\nRan 10k."))

	// Pre-partitioning record living directly at root.
	store.addFile("Old Day.txt", remote.TextMimeType, root,
		map[string]string{"entryId": "e2"},
		[]byte("Title: Old Day\n\nfrom before day folders"))

	d := newTestDownloader(store)

	entries, err := d.Run(context.Background(), "tok")
	require.NoError(t, err)
	require.Len(t, entries, 2)

	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })

	assert.Equal(t, "e1", entries[0].ID)
	assert.Equal(t, "Morning Run", entries[0].Title)
	assert.Equal(t, "Ran 10k.", entries[0].Content)

	assert.Equal(t, "e2", entries[1].ID)
	assert.Equal(t, "from before day folders", entries[1].Content)
}

func TestDownloadRun_FollowsQueryPages(t *testing.T) {
	store := newFakeStore()
	store.pageSize = 2

	root := store.addFolder("JournalApp", "")
	for i := 1; i <= 5; i++ {
		store.addFile(fmt.Sprintf("Day %d.txt", i), remote.TextMimeType, root,
			map[string]string{"entryId": fmt.Sprintf("e%d", i)},
			[]byte(fmt.Sprintf("Title: Day %d\n\nbody %d", i, i)))
	}

	d := newTestDownloader(store)

	// The folder listing spans three pages; every record on every page
	// must make it into the result.
	entries, err := d.Run(context.Background(), "tok")
	require.NoError(t, err)
	require.Len(t, entries, 5)

	ids := map[string]bool{}
	for _, e := range entries {
		ids[e.ID] = true
	}

	for i := 1; i <= 5; i++ {
		assert.True(t, ids[fmt.Sprintf("e%d", i)])
	}
}

func TestDownloadRun_PairsAttachmentsByPropertyOnly(t *testing.T) {
	store := newFakeStore()
	root := store.addFolder("JournalApp", "")
	day := store.addFolder("2024-03-01", root)
	images := store.addFolder("images", day)

	store.addFile("Hike.txt", remote.TextMimeType, day,
		map[string]string{"entryId": "e1"}, []byte("Title: Hike\n\nbody"))

	raw := []byte{0xFF, 0xD8, 0xFF}
	store.addFile("image-img1.jpg", "image/jpeg", images,
		map[string]string{"entryId": "e1"}, raw)

	// Same folder, different owner: must not leak into e1.
	store.addFile("image-img2.jpg", "image/jpeg", images,
		map[string]string{"entryId": "other"}, []byte("x"))

	// No property: unpairable, ignored.
	store.addFile("stray.jpg", "image/jpeg", images, nil, []byte("y"))

	d := newTestDownloader(store)

	entries, err := d.Run(context.Background(), "tok")
	require.NoError(t, err)
	require.Len(t, entries, 1)

	e := entries[0]
	require.Len(t, e.Images, 1)
	assert.Equal(t, "img1", e.Images[0].ID)
	assert.Equal(t, "image/jpeg", e.Images[0].MimeType)
	assert.Equal(t, base64.StdEncoding.EncodeToString(raw), e.Images[0].Data)
}

func TestDownloadRun_AttachmentOrderDeterministic(t *testing.T) {
	store := newFakeStore()
	root := store.addFolder("JournalApp", "")
	day := store.addFolder("2024-03-01", root)
	images := store.addFolder("images", day)

	store.addFile("Hike.txt", remote.TextMimeType, day,
		map[string]string{"entryId": "e1"}, []byte("Title: Hike\n\nbody"))

	store.addFile("image-b.png", "image/png", images, map[string]string{"entryId": "e1"}, []byte("b"))
	store.addFile("image-a.png", "image/png", images, map[string]string{"entryId": "e1"}, []byte("a"))

	d := newTestDownloader(store)

	entries, err := d.Run(context.Background(), "tok")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Len(t, entries[0].Images, 2)
	assert.Equal(t, []string{"a", "b"}, []string{entries[0].Images[0].ID, entries[0].Images[1].ID})
}

func TestDownloadRun_SkipsUnreadableRecords(t *testing.T) {
	store := newFakeStore()
	root := store.addFolder("JournalApp", "")
	store.addFile("Broken.txt", remote.TextMimeType, root,
		map[string]string{"entryId": "e1"}, []byte("x"))

	store.failWith("DownloadBytes", &remote.RemoteError{Status: 500, Message: "backend"})

	d := newTestDownloader(store)

	entries, err := d.Run(context.Background(), "tok")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDownloadRun_AuthErrorAborts(t *testing.T) {
	store := newFakeStore()
	root := store.addFolder("JournalApp", "")
	store.addFile("Day.txt", remote.TextMimeType, root,
		map[string]string{"entryId": "e1"}, []byte("body"))

	store.failWith("DownloadBytes", &remote.AuthError{Status: 401, Message: "expired"})

	d := newTestDownloader(store)

	_, err := d.Run(context.Background(), "tok")
	require.Error(t, err)
	assert.True(t, remote.IsAuth(err))
}

func TestDownloadRun_ImportedFileWithoutProperty(t *testing.T) {
	store := newFakeStore()
	root := store.addFolder("JournalApp", "")

	// A plain text file a human dropped into the folder by hand.
	id := store.addFile("Shopping_List.txt", remote.TextMimeType, root, nil,
		[]byte("milk\neggs"))

	d := newTestDownloader(store)

	entries, err := d.Run(context.Background(), "tok")
	require.NoError(t, err)
	require.Len(t, entries, 1)

	// The remote file id becomes the stable entry identity.
	assert.Equal(t, id, entries[0].ID)
	assert.Equal(t, "Shopping List", entries[0].Title)
	assert.Equal(t, "milk\neggs", entries[0].Content)
}
