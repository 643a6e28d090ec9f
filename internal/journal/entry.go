// Package journal defines the journal entry model and its local
// persistent store.
package journal

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Mood is the optional mood recorded with an entry. The empty string
// means no mood was set.
type Mood string

// Mood values, in display order.
const (
	MoodGreat Mood = "Great"
	MoodGood  Mood = "Good"
	MoodOkay  Mood = "Okay"
	MoodBad   Mood = "Bad"
)

// ParseMood maps a string to a known Mood, case-insensitively. The
// second result is false for unknown or empty input.
func ParseMood(s string) (Mood, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "great":
		return MoodGreat, true
	case "good":
		return MoodGood, true
	case "okay":
		return MoodOkay, true
	case "bad":
		return MoodBad, true
	}

	return "", false
}

// Image is a single attachment owned by exactly one entry. Data holds
// the raw image bytes encoded as base64; decoding happens only at the
// remote upload boundary.
type Image struct {
	ID       string `json:"id"`
	Data     string `json:"data"`
	MimeType string `json:"mimeType"`
}

// Entry is a single journal record.
//
// ID is unique within the local store. New local entries get a
// millisecond-timestamp id; entries imported from the remote store keep
// the remote file id, so an id is not guaranteed to be numeric.
type Entry struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Mood      Mood      `json:"mood,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Images    []Image   `json:"images,omitempty"`

	// RemoteFileName is the file name this entry was last synced under,
	// used by identity resolution when the title has since changed.
	RemoteFileName string `json:"remoteFileName,omitempty"`
}

// NewEntry creates an empty entry with a fresh local id. CreatedAt
// carries the local time zone so the remote day folder reflects the
// calendar day the user experienced.
func NewEntry() Entry {
	now := time.Now()

	return Entry{
		ID:        strconv.FormatInt(now.UnixMilli(), 10),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Touch bumps UpdatedAt, keeping the updatedAt >= createdAt invariant.
func (e *Entry) Touch() {
	now := time.Now()
	if now.Before(e.CreatedAt) {
		now = e.CreatedAt
	}

	e.UpdatedAt = now
}

// AddImage attaches an image and bumps UpdatedAt. The image gets a
// fresh uuid so its remote file name is stable across uploads.
func (e *Entry) AddImage(data, mimeType string) Image {
	img := Image{
		ID:       uuid.NewString(),
		Data:     data,
		MimeType: mimeType,
	}

	e.Images = append(e.Images, img)
	e.Touch()

	return img
}

// RemoveImage detaches the image with the given id. Returns false if
// no image matched; UpdatedAt is bumped only on an actual removal.
func (e *Entry) RemoveImage(imageID string) bool {
	for i, img := range e.Images {
		if img.ID == imageID {
			e.Images = append(e.Images[:i], e.Images[i+1:]...)
			e.Touch()

			return true
		}
	}

	return false
}

// HasLocalID reports whether the entry id looks like a locally
// generated millisecond timestamp rather than a remote file id. Remote
// ids are long and contain non-digit characters; local ids are purely
// numeric.
func (e *Entry) HasLocalID() bool {
	if e.ID == "" {
		return false
	}

	for _, r := range e.ID {
		if r < '0' || r > '9' {
			return false
		}
	}

	return true
}
