package syncer

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

const (
	// DefaultTitle is used when an entry has no usable title.
	DefaultTitle = "Untitled"

	// recordExt is the extension of journal text records.
	recordExt = ".txt"

	// ImagesFolderName is the per-day subfolder holding attachments.
	ImagesFolderName = "images"

	// legacyNotesName is the fixed file name the earliest client wrote
	// for every entry, one per day folder.
	legacyNotesName = "notes.txt"

	// legacyEntryPrefix is the name prefix of the second-generation
	// naming scheme, entry-{id}.txt.
	legacyEntryPrefix = "entry-"
)

// illegalNameChars are replaced with '_' in remote file names. The set
// covers every character some layer of the remote store or a syncing
// desktop filesystem rejects.
const illegalNameChars = `/\?%*:|"<>`

// DayFolderName returns the remote day-folder name for a creation
// time: YYYY-MM-DD in the timestamp's own location, so the folder
// reflects the calendar day the user experienced when writing.
func DayFolderName(t time.Time) string {
	return t.Format("2006-01-02")
}

// CanonicalFileName computes the remote file name for an entry title.
// The title is NFC-normalized so byte-different encodings of the same
// text map to one name, illegal characters become '_', and the result
// always carries a .txt suffix.
func CanonicalFileName(title string) string {
	title = norm.NFC.String(strings.TrimSpace(title))

	var b strings.Builder

	for _, r := range title {
		if r < 0x20 || strings.ContainsRune(illegalNameChars, r) {
			b.WriteRune('_')
		} else {
			b.WriteRune(r)
		}
	}

	name := strings.TrimSpace(b.String())
	if name == "" {
		name = DefaultTitle
	}

	if !strings.HasSuffix(strings.ToLower(name), recordExt) {
		name += recordExt
	}

	return name
}

// LegacyEntryFileName returns the second-generation file name for an
// entry id.
func LegacyEntryFileName(entryID string) string {
	return legacyEntryPrefix + entryID + recordExt
}

// trimRecordExt strips a .txt suffix regardless of case. Externally
// created files may carry .TXT; CanonicalFileName accepts that suffix,
// so title recovery must strip it the same way.
func trimRecordExt(name string) string {
	if strings.HasSuffix(strings.ToLower(name), recordExt) {
		return name[:len(name)-len(recordExt)]
	}

	return name
}

// isGenericName reports whether a file name carries no title
// information: the fixed legacy names and the default title.
func isGenericName(name string) bool {
	base := strings.ToLower(trimRecordExt(name))

	switch base {
	case "notes", strings.ToLower(DefaultTitle):
		return true
	}

	return strings.HasPrefix(base, legacyEntryPrefix)
}

// TitleFromFileName recovers a display title from a remote file name:
// extension stripped, underscores restored to spaces. The second
// result is false when the name is generic (legacy fixed names,
// Untitled) and therefore carries no usable title.
func TitleFromFileName(name string) (string, bool) {
	if isGenericName(name) {
		return "", false
	}

	title := trimRecordExt(name)
	title = strings.TrimSpace(strings.ReplaceAll(title, "_", " "))

	if title == "" {
		return "", false
	}

	return title, true
}

// ImageFileName returns the deterministic attachment file name for an
// image id and MIME type, image-{id}.{ext}. Determinism is what makes
// attachment uploads idempotent: a second upload finds the name taken
// and skips.
func ImageFileName(imageID, mimeType string) string {
	return fmt.Sprintf("image-%s.%s", imageID, extForMime(mimeType))
}

// ImageIDFromFileName recovers the image id from an attachment file
// name, or "" when the name does not follow the image-{id}.{ext}
// scheme.
func ImageIDFromFileName(name string) string {
	if !strings.HasPrefix(name, "image-") {
		return ""
	}

	id := strings.TrimPrefix(name, "image-")
	if dot := strings.LastIndex(id, "."); dot >= 0 {
		id = id[:dot]
	}

	return id
}

// extForMime maps an image MIME type to a file extension, defaulting
// to png for unknown types.
func extForMime(mimeType string) string {
	switch strings.ToLower(mimeType) {
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/gif":
		return "gif"
	case "image/webp":
		return "webp"
	case "image/heic":
		return "heic"
	default:
		return "png"
	}
}
