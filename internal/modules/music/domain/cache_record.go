package domain

import "time"

// CacheRecord is the persisted superset of Track held by the metadata
// cache. Records are mutated only through the store's atomic merge and
// never deleted except by an administrative purge.
type CacheRecord struct {
	Track
	PlayCount  int
	FirstSeen  time.Time
	LastPlayed time.Time
	Queries    []string // deduplicated search queries that resolved here
}

// CacheStats summarizes the metadata cache.
type CacheStats struct {
	TotalTracks int
	TotalPlays  int
	MostPlayed  []CacheRecord
}

// CatalogRef is a precise track reference from the external catalog
// (artist, title and duration known exactly). It is not directly
// playable; the resolver locates a playable source for it.
type CatalogRef struct {
	ID           string
	Title        string
	Artist       string
	Duration     time.Duration
	ThumbnailURL string
	URL          string
}

// SearchSeed returns the query used to locate a playable source for
// this catalog reference.
func (r CatalogRef) SearchSeed() string {
	return r.Title + " " + r.Artist
}

// Playlist describes a playlist owned by the configured catalog user.
type Playlist struct {
	ID         string
	Name       string
	TrackCount int
	IsPublic   bool
}
