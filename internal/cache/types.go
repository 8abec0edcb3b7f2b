package cache

import (
	"errors"
	"time"
)

var (
	// ErrNoDiskTier is returned by disk operations on a memory-only store
	ErrNoDiskTier = errors.New("cache has no persistent tier")

	// ErrInvalidKey is returned for keys that cannot name a cache file
	ErrInvalidKey = errors.New("invalid cache key")
)

// Backend selects which tiers a Store runs with. Chosen once at startup.
type Backend string

const (
	// BackendDisk keeps LRU metadata in memory and audio on disk
	BackendDisk Backend = "disk"

	// BackendMemory keeps LRU metadata only; audio is never retrievable
	BackendMemory Backend = "memory"
)

// Metadata describes a cached entry in the in-memory tier
type Metadata struct {
	Key       string
	Extension string
	MimeType  string
	Size      int64
	CreatedAt time.Time
}

// Stats holds cache counters and tier sizes
type Stats struct {
	Backend     Backend
	Compression bool
	Dir         string

	// In-memory tier
	Entries  int
	Capacity int

	// Persistent tier
	DiskFiles int
	DiskBytes int64

	Hits          int64
	Misses        int64
	Evictions     int64
	WriteFailures int64
	HitRate       float64
}

// Extension maps an audio mime type to its cache file extension
func Extension(mimeType string) string {
	switch mimeType {
	case "audio/ogg":
		return "ogg"
	case "audio/wav":
		return "wav"
	default:
		return "mp3"
	}
}

// MimeType maps a cache file extension back to its mime type
func MimeType(ext string) string {
	switch ext {
	case "ogg":
		return "audio/ogg"
	case "wav":
		return "audio/wav"
	default:
		return "audio/mpeg"
	}
}
