package cache

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/lexiqai/tts-gateway/internal/observability"
)

// Options configures a Store
type Options struct {
	Backend     Backend
	Dir         string // required for BackendDisk
	Capacity    int    // in-memory tier entries
	Compression bool   // zstd-compress disk files
}

// Store is the two-tier audio cache: an LRU index of entry metadata in
// memory, and on the disk backend the audio itself as files.
//
// On the memory backend Set only records metadata, so Has can report a key
// whose audio Get cannot return. Callers treat that as a miss.
type Store struct {
	backend Backend
	index   *lru.Cache[string, Metadata]
	disk    *DiskTier // nil on the memory backend
	logger  zerolog.Logger

	// Serializes touch-on-access and evict-on-insert with promotion from disk
	mu sync.Mutex

	capacity      int
	hits          atomic.Int64
	misses        atomic.Int64
	evictions     atomic.Int64
	writeFailures atomic.Int64
}

// New creates a Store. An unwritable directory on the disk backend is an error.
func New(opts Options, logger zerolog.Logger) (*Store, error) {
	if opts.Capacity <= 0 {
		return nil, fmt.Errorf("cache capacity must be positive, got %d", opts.Capacity)
	}

	s := &Store{
		backend:  opts.Backend,
		logger:   logger,
		capacity: opts.Capacity,
	}

	index, err := lru.New[string, Metadata](opts.Capacity)
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU index: %w", err)
	}
	s.index = index

	switch opts.Backend {
	case BackendDisk:
		s.disk, err = NewDiskTier(opts.Dir, opts.Compression)
		if err != nil {
			return nil, err
		}
		logger.Info().
			Str("dir", opts.Dir).
			Int("capacity", opts.Capacity).
			Bool("compression", opts.Compression).
			Msg("TTS cache: using disk + memory mode")
	case BackendMemory:
		logger.Info().
			Int("capacity", opts.Capacity).
			Msg("TTS cache: using memory-only mode, audio is not retained")
	default:
		return nil, fmt.Errorf("unknown cache backend %q", opts.Backend)
	}

	return s, nil
}

// Has reports whether key is cached. A disk-only entry is promoted into the
// in-memory index.
func (s *Store) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.index.Contains(key) {
		return true
	}
	if s.disk == nil {
		return false
	}

	md, ok := s.disk.Stat(key)
	if !ok {
		return false
	}
	s.add(key, md)
	return true
}

// Get returns the cached audio for key. The file is read without holding
// the store lock; only index repairs and promotion take it.
func (s *Store) Get(key string) ([]byte, bool) {
	// Get on the index counts as a use even when the audio turns out missing
	_, indexed := s.index.Get(key)

	if s.disk == nil {
		s.misses.Add(1)
		return nil, false
	}

	data, ext, ok := s.disk.Read(key)
	if !ok {
		if indexed {
			s.dropMissing(key)
		}
		s.misses.Add(1)
		return nil, false
	}

	if !indexed {
		s.mu.Lock()
		if !s.index.Contains(key) {
			s.add(key, Metadata{
				Key:       key,
				Extension: ext,
				MimeType:  MimeType(ext),
				Size:      int64(len(data)),
				CreatedAt: time.Now(),
			})
		}
		s.mu.Unlock()
	}
	s.hits.Add(1)
	return data, true
}

// dropMissing removes an indexed key whose file is gone. A concurrent Set may
// have written the file since the failed read, so the disk is checked again.
func (s *Store) dropMissing(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.disk.Stat(key); ok {
		return
	}
	s.index.Remove(key)
	observability.SetCacheEntries(s.index.Len())
}

// Set records key and, on the disk backend, writes its audio. Disk failures
// are logged and counted; the entry stays in the index.
func (s *Store) Set(key string, data []byte, mimeType string) {
	ext := Extension(mimeType)

	s.mu.Lock()
	s.add(key, Metadata{
		Key:       key,
		Extension: ext,
		MimeType:  mimeType,
		Size:      int64(len(data)),
		CreatedAt: time.Now(),
	})
	s.mu.Unlock()

	if s.disk == nil {
		return
	}

	if err := s.disk.Write(key, ext, data); err != nil {
		s.writeFailures.Add(1)
		observability.RecordCacheWriteFailure()
		s.logger.Warn().Err(err).Str("cache_key", key).Msg("Failed to write cache file")
		return
	}
	s.logger.Debug().Str("cache_key", key).Int("bytes", len(data)).Msg("Cached to disk")
}

// Peek returns the metadata for key without counting a use
func (s *Store) Peek(key string) (Metadata, bool) {
	return s.index.Peek(key)
}

// Backend returns the configured backend
func (s *Store) Backend() Backend {
	return s.backend
}

// Dir returns the disk tier directory, or "" on the memory backend
func (s *Store) Dir() string {
	if s.disk == nil {
		return ""
	}
	return s.disk.Dir()
}

// ServesFiles reports whether the disk tier holds plain audio files that can
// be served directly
func (s *Store) ServesFiles() bool {
	return s.disk != nil && !s.disk.Compressed()
}

// Stats returns counters and tier sizes
func (s *Store) Stats() (Stats, error) {
	stats := Stats{
		Backend:       s.backend,
		Entries:       s.index.Len(),
		Capacity:      s.capacity,
		Hits:          s.hits.Load(),
		Misses:        s.misses.Load(),
		Evictions:     s.evictions.Load(),
		WriteFailures: s.writeFailures.Load(),
	}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}

	if s.disk != nil {
		stats.Dir = s.disk.Dir()
		stats.Compression = s.disk.Compressed()
		files, size, err := s.disk.Usage()
		if err != nil {
			return stats, err
		}
		stats.DiskFiles = files
		stats.DiskBytes = size
	}
	return stats, nil
}

// Clear empties both tiers and returns the number of files removed. On the
// memory backend the index is emptied and ErrNoDiskTier is returned.
func (s *Store) Clear() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.index.Purge()
	observability.SetCacheEntries(0)

	if s.disk == nil {
		return 0, ErrNoDiskTier
	}
	removed, err := s.disk.Clear()
	if err != nil {
		return removed, err
	}
	s.logger.Info().Int("files", removed).Msg("TTS cache cleared")
	return removed, nil
}

// Close releases disk tier resources
func (s *Store) Close() {
	if s.disk != nil {
		s.disk.Close()
	}
}

// add inserts or refreshes key in the index; s.mu must be held
func (s *Store) add(key string, md Metadata) {
	if s.index.Add(key, md) {
		s.evictions.Add(1)
		observability.RecordCacheEviction()
	}
	observability.SetCacheEntries(s.index.Len())
}
