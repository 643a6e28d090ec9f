package syncer

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alexjbarnes/journal-sync/internal/journal"
	"github.com/alexjbarnes/journal-sync/internal/remote"
)

// Record header and footer markers. These lines ARE the durable
// on-disk contract: every version of the app must keep producing and
// parsing them, tolerating missing fields.
const (
	titleHeader = "Title: "
	dateHeader  = "Date: "
	moodHeader  = "Mood: "

	footerSeparator  = "---"
	attachmentsLabel = "attachments: "

	// dateDisplayLayout is the human-facing Date header format. The
	// header is display-only; timestamps for sync come from the remote
	// file's own modification time.
	dateDisplayLayout = "January 2, 2006 15:04"
)

// ParseError marks a remote record whose content could not be mapped
// to an entry. Reconciliation skips such records instead of aborting.
type ParseError struct {
	Name string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing record %q: %v", e.Name, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// IsParse reports whether err (or any error in its chain) is a
// ParseError.
func IsParse(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// RecordMeta is the remote file metadata that accompanies record
// content into the parser: the file's own identity and timestamps.
type RecordMeta struct {
	FileID       string
	Name         string
	ModifiedTime time.Time
	Properties   map[string]string
}

// MarshalRecord renders an entry as remote text-record content:
// a Title/Date/Mood header block, a blank line, the body, and -- when
// attachments exist -- a "---" separator followed by an informational
// attachments footer. Machine re-pairing of attachments uses the
// entryId custom property on each image file, not this footer.
func MarshalRecord(e journal.Entry) []byte {
	var b bytes.Buffer

	fmt.Fprintf(&b, "%s%s\n", titleHeader, e.Title)
	fmt.Fprintf(&b, "%s%s\n", dateHeader, e.CreatedAt.Format(dateDisplayLayout))

	if e.Mood != "" {
		fmt.Fprintf(&b, "%s%s\n", moodHeader, e.Mood)
	}

	b.WriteString("\n")
	b.WriteString(e.Content)

	if len(e.Images) > 0 {
		if !strings.HasSuffix(b.String(), "\n") {
			b.WriteString("\n")
		}

		ids := make([]string, len(e.Images))
		for i, img := range e.Images {
			ids[i] = img.ID
		}

		fmt.Fprintf(&b, "%s\n%s%s\n", footerSeparator, attachmentsLabel, strings.Join(ids, ","))
	}

	return b.Bytes()
}

// parseState is the phase of the record parser.
type parseState int

const (
	stateHeaderScan parseState = iota
	stateBodyAccumulate
)

// ParseRecord reconstructs a partial entry from record content and the
// file's remote metadata. Attachments are paired separately (by the
// entryId property on image files); the returned entry has no images.
//
// Title precedence: when the header title and the file name agree
// (the name is the header title's canonical form), the header wins --
// it preserves characters the name sanitized away. Otherwise a
// non-generic file name wins (a rename in the remote UI is the most
// recent intent), then the header, then Untitled.
//
// Both timestamps come from the file's remote modification time: for
// imported content the remote store is the timestamp source of truth,
// as a documented approximation of the original creation time.
func ParseRecord(raw []byte, meta RecordMeta) (journal.Entry, error) {
	var (
		headerTitle string
		mood        journal.Mood
		bodyLines   []string
		state       = stateHeaderScan
	)

	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := scanner.Text()

		switch state {
		case stateHeaderScan:
			switch {
			case strings.HasPrefix(line, titleHeader):
				headerTitle = strings.TrimSpace(strings.TrimPrefix(line, titleHeader))
			case strings.HasPrefix(line, dateHeader):
				// Display only; the remote mtime is authoritative.
			case strings.HasPrefix(line, moodHeader):
				if m, ok := journal.ParseMood(strings.TrimPrefix(line, moodHeader)); ok {
					mood = m
				}
			case strings.TrimSpace(line) == "":
				// Blank lines between header fields terminate nothing;
				// the body starts at the first non-header content line.
			default:
				state = stateBodyAccumulate
				bodyLines = append(bodyLines, line)
			}

		case stateBodyAccumulate:
			if strings.HasPrefix(line, attachmentsLabel) {
				// Footer reached: drop the separator line above it.
				if n := len(bodyLines); n > 0 && strings.TrimSpace(bodyLines[n-1]) == footerSeparator {
					bodyLines = bodyLines[:n-1]
				}

				return assembleEntry(headerTitle, mood, bodyLines, meta)
			}

			bodyLines = append(bodyLines, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return journal.Entry{}, &ParseError{Name: meta.Name, Err: err}
	}

	return assembleEntry(headerTitle, mood, bodyLines, meta)
}

func assembleEntry(headerTitle string, mood journal.Mood, bodyLines []string, meta RecordMeta) (journal.Entry, error) {
	id := meta.Properties[remote.EntryIDProperty]
	if id == "" {
		// No property: adopt the remote file id so the entry keeps a
		// stable identity across future syncs.
		id = meta.FileID
	}

	if id == "" {
		return journal.Entry{}, &ParseError{Name: meta.Name, Err: errors.New("record has neither entryId property nor file id")}
	}

	body := strings.TrimRight(strings.Join(bodyLines, "\n"), " \t\n")

	e := journal.Entry{
		ID:             id,
		Title:          resolveTitle(meta.Name, headerTitle),
		Content:        body,
		Mood:           mood,
		CreatedAt:      meta.ModifiedTime,
		UpdatedAt:      meta.ModifiedTime,
		RemoteFileName: meta.Name,
	}

	return e, nil
}

// resolveTitle applies the title precedence documented on ParseRecord.
func resolveTitle(fileName, headerTitle string) string {
	fromName, nameUsable := TitleFromFileName(fileName)

	if headerTitle != "" {
		// Header and name agree when the name is the header's
		// canonical form; prefer the header's exact characters.
		if CanonicalFileName(headerTitle) == fileName {
			return headerTitle
		}
	}

	if nameUsable {
		return fromName
	}

	if headerTitle != "" {
		return headerTitle
	}

	return DefaultTitle
}
