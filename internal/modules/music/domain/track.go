package domain

import (
	"crypto/md5"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// TrackID is the content-derived identity of a track. Two lookups that
// resolve to the same logical song always collide to the same ID.
type TrackID string

// Track represents a playable audio track resolved from a search query.
type Track struct {
	ID           TrackID
	Title        string
	Artist       string
	Duration     time.Duration
	SourceURL    string // playable source (e.g. a YouTube watch URL)
	ThumbnailURL string
	CatalogID    string // external catalog identifier, empty if free-text
	Query        string // the search query that produced this track
	FromCache    bool   // true if served from the metadata cache
}

// NewTrack creates a Track and computes its identity from the
// normalized (title, artist, source URL) triple.
func NewTrack(title, artist string, duration time.Duration, sourceURL string) *Track {
	return &Track{
		ID:        Identity(title, artist, sourceURL),
		Title:     title,
		Artist:    artist,
		Duration:  duration,
		SourceURL: sourceURL,
	}
}

// Identity computes the content address for a track. The triple is
// normalized (trimmed, lowercased) before hashing so that lookups
// differing only in case or surrounding whitespace collide.
func Identity(title, artist, sourceURL string) TrackID {
	normalized := normalize(title) + "_" + normalize(artist) + "_" + normalize(sourceURL)
	sum := md5.Sum([]byte(normalized))
	return TrackID(hex.EncodeToString(sum[:]))
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// IsValid returns true if the track has the minimum required fields.
func (t *Track) IsValid() bool {
	return t.Title != "" && t.SourceURL != ""
}

// FormattedDuration returns the duration as mm:ss or hh:mm:ss.
func (t *Track) FormattedDuration() string {
	totalSeconds := int(t.Duration.Seconds())
	hours := totalSeconds / 3600
	minutes := (totalSeconds % 3600) / 60
	seconds := totalSeconds % 60

	if hours > 0 {
		return pad(hours) + ":" + pad(minutes) + ":" + pad(seconds)
	}
	return pad(minutes) + ":" + pad(seconds)
}

func pad(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}
