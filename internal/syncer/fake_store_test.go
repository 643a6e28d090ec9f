package syncer

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/alexjbarnes/journal-sync/internal/remote"
)

// fakeStore is an in-memory FileStore for engine tests. It evaluates
// the same query grammar the real provider does (name, parents, mime,
// custom property terms ANDed together) against its file table, so
// resolver and pipeline tests exercise real query expressions.
type fakeStore struct {
	mu      sync.Mutex
	files   map[string]*fakeFile
	nextID  int
	calls   []string
	failOp  string
	failErr error

	// pageSize > 0 makes Query return results in pages of that size
	// with continuation tokens, so callers that must loop to exhaustion
	// are caught if they stop after the first page.
	pageSize int
}

type fakeFile struct {
	rec     remote.RemoteRecord
	content []byte
}

func newFakeStore() *fakeStore {
	return &fakeStore{files: map[string]*fakeFile{}}
}

// failWith makes the named operation return err on every call.
func (f *fakeStore) failWith(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failOp, f.failErr = op, err
}

func (f *fakeStore) record(op string) error {
	f.calls = append(f.calls, op)

	if f.failOp != "" && strings.HasPrefix(op, f.failOp) {
		return f.failErr
	}

	return nil
}

// callCount counts recorded calls whose op label starts with prefix.
func (f *fakeStore) callCount(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}

	return n
}

// addFile inserts a file and returns its id.
func (f *fakeStore) addFile(name, mimeType, parent string, props map[string]string, content []byte) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.addLocked(name, mimeType, parent, props, content)
}

func (f *fakeStore) addLocked(name, mimeType, parent string, props map[string]string, content []byte) string {
	f.nextID++
	id := fmt.Sprintf("remote-%d", f.nextID)

	rec := remote.RemoteRecord{
		ID:           id,
		Name:         name,
		MimeType:     mimeType,
		ModifiedTime: time.Now().UTC(),
		Properties:   props,
	}
	if parent != "" {
		rec.Parents = []string{parent}
	}

	f.files[id] = &fakeFile{rec: rec, content: content}

	return id
}

// addFolder inserts a folder and returns its id.
func (f *fakeStore) addFolder(name, parent string) string {
	return f.addFile(name, remote.FolderMimeType, parent, nil, nil)
}

func (f *fakeStore) get(id string) *fakeFile {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.files[id]
}

// splitTerms splits an expression on " and " without splitting inside
// a braced appProperties term.
func splitTerms(expr string) []string {
	var (
		terms []string
		depth int
		start int
	)

	for i := 0; i+5 <= len(expr); i++ {
		switch expr[i] {
		case '{':
			depth++
		case '}':
			depth--
		}

		if depth == 0 && expr[i:i+5] == " and " {
			terms = append(terms, expr[start:i])
			start = i + 5
		}
	}

	return append(terms, expr[start:])
}

// matchesQuery evaluates one ANDed query expression against a record.
func matchesQuery(rec remote.RemoteRecord, expr string) bool {
	for _, term := range splitTerms(expr) {
		term = strings.TrimSpace(term)

		switch {
		case term == "trashed = false":
			// The fake holds no trashed files.
		case strings.HasPrefix(term, "name = '"):
			want := unescapeTerm(strings.TrimSuffix(strings.TrimPrefix(term, "name = '"), "'"))
			if rec.Name != want {
				return false
			}
		case strings.HasSuffix(term, "' in parents"):
			want := unescapeTerm(strings.TrimSuffix(strings.TrimPrefix(term, "'"), "' in parents"))
			if !rec.HasParent(want) {
				return false
			}
		case strings.HasPrefix(term, "mimeType = '"):
			want := strings.TrimSuffix(strings.TrimPrefix(term, "mimeType = '"), "'")
			if rec.MimeType != want {
				return false
			}
		case strings.HasPrefix(term, "mimeType != '"):
			want := strings.TrimSuffix(strings.TrimPrefix(term, "mimeType != '"), "'")
			if rec.MimeType == want {
				return false
			}
		case strings.HasPrefix(term, "appProperties has {"):
			inner := strings.TrimSuffix(strings.TrimPrefix(term, "appProperties has { "), " }")
			var key, value string
			for _, kv := range strings.Split(inner, " and ") {
				switch {
				case strings.HasPrefix(kv, "key='"):
					key = unescapeTerm(strings.TrimSuffix(strings.TrimPrefix(kv, "key='"), "'"))
				case strings.HasPrefix(kv, "value='"):
					value = unescapeTerm(strings.TrimSuffix(strings.TrimPrefix(kv, "value='"), "'"))
				}
			}
			if key == "" || rec.Properties[key] != value {
				return false
			}
		default:
			return false
		}
	}

	return true
}

func unescapeTerm(s string) string {
	s = strings.ReplaceAll(s, `\'`, `'`)
	return strings.ReplaceAll(s, `\\`, `\`)
}

func (f *fakeStore) Query(ctx context.Context, token, expr, pageToken string) ([]remote.RemoteRecord, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.record("Query " + expr); err != nil {
		return nil, "", err
	}

	var out []remote.RemoteRecord
	for _, file := range f.files {
		if matchesQuery(file.rec, expr) {
			out = append(out, file.rec)
		}
	}

	// Stable order so pagination offsets stay consistent across calls.
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	if f.pageSize <= 0 {
		return out, "", nil
	}

	start := 0
	if pageToken != "" {
		start, _ = strconv.Atoi(pageToken)
	}

	if start > len(out) {
		start = len(out)
	}

	if end := start + f.pageSize; end < len(out) {
		return out[start:end], strconv.Itoa(end), nil
	}

	return out[start:], "", nil
}

func (f *fakeStore) QueryAll(ctx context.Context, token, expr string) ([]remote.RemoteRecord, error) {
	var (
		all       []remote.RemoteRecord
		pageToken string
	)

	for {
		records, next, err := f.Query(ctx, token, expr, pageToken)
		if err != nil {
			return nil, err
		}

		all = append(all, records...)

		if next == "" {
			return all, nil
		}

		pageToken = next
	}
}

func (f *fakeStore) GetFile(ctx context.Context, token, id string) (*remote.RemoteRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.record("GetFile " + id); err != nil {
		return nil, err
	}

	file, ok := f.files[id]
	if !ok {
		return nil, nil
	}

	rec := file.rec

	return &rec, nil
}

func (f *fakeStore) CreateFolder(ctx context.Context, token, name, parentID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.record("CreateFolder " + name); err != nil {
		return "", err
	}

	return f.addLocked(name, remote.FolderMimeType, parentID, nil, nil), nil
}

func (f *fakeStore) CreateFile(ctx context.Context, token string, meta remote.FileMeta) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.record("CreateFile " + meta.Name); err != nil {
		return "", err
	}

	parent := ""
	if len(meta.Parents) > 0 {
		parent = meta.Parents[0]
	}

	return f.addLocked(meta.Name, meta.MimeType, parent, meta.Properties, nil), nil
}

func (f *fakeStore) UpdateContent(ctx context.Context, token, id string, data []byte, mimeType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.record("UpdateContent " + id); err != nil {
		return err
	}

	file, ok := f.files[id]
	if !ok {
		return &remote.RemoteError{Status: 404, Message: "file not found"}
	}

	file.content = data
	file.rec.ModifiedTime = time.Now().UTC()

	return nil
}

func (f *fakeStore) PatchMetadata(ctx context.Context, token, id string, patch remote.MetaPatch) error {
	if patch.IsZero() {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.record("PatchMetadata " + id); err != nil {
		return err
	}

	file, ok := f.files[id]
	if !ok {
		return &remote.RemoteError{Status: 404, Message: "file not found"}
	}

	if patch.Name != "" {
		file.rec.Name = patch.Name
	}

	for _, rm := range patch.RemoveParents {
		for i, p := range file.rec.Parents {
			if p == rm {
				file.rec.Parents = append(file.rec.Parents[:i], file.rec.Parents[i+1:]...)
				break
			}
		}
	}

	file.rec.Parents = append(file.rec.Parents, patch.AddParents...)

	if len(patch.Properties) > 0 {
		if file.rec.Properties == nil {
			file.rec.Properties = map[string]string{}
		}
		for k, v := range patch.Properties {
			file.rec.Properties[k] = v
		}
	}

	return nil
}

func (f *fakeStore) Delete(ctx context.Context, token, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.record("Delete " + id); err != nil {
		return err
	}

	delete(f.files, id)

	return nil
}

func (f *fakeStore) DownloadBytes(ctx context.Context, token, id string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.record("DownloadBytes " + id); err != nil {
		return nil, err
	}

	file, ok := f.files[id]
	if !ok {
		return nil, &remote.RemoteError{Status: 404, Message: "file not found"}
	}

	return file.content, nil
}
