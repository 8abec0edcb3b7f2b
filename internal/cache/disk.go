package cache

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
)

// zstdMagic prefixes every zstd frame; files without it are stored raw
var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

// DiskTier stores audio as <key>.<ext> files in a single directory.
// Writes go to a temp file and are renamed into place, so readers never see
// a partial file and concurrent writers of the same key leave one complete copy.
type DiskTier struct {
	dir      string
	compress bool
	encoder  *zstd.Encoder
	decoder  *zstd.Decoder
}

// diskFile is one audio file found in the directory
type diskFile struct {
	path    string
	ext     string
	size    int64
	modTime time.Time
}

// NewDiskTier creates dir if needed and checks that it is writable
func NewDiskTier(dir string, compress bool) (*DiskTier, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	probe, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return nil, fmt.Errorf("cache directory %s is not writable: %w", dir, err)
	}
	probe.Close()
	os.Remove(probe.Name())

	d := &DiskTier{dir: dir, compress: compress}

	// The decoder is always available so files written with compression on
	// stay readable after it is turned off.
	d.decoder, err = zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	if compress {
		d.encoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
	}
	return d, nil
}

// Dir returns the cache directory
func (d *DiskTier) Dir() string {
	return d.dir
}

// Compressed reports whether new files are zstd-compressed
func (d *DiskTier) Compressed() bool {
	return d.compress
}

// Write stores data as <key>.<ext>
func (d *DiskTier) Write(key, ext string, data []byte) error {
	if !validKey(key) {
		return ErrInvalidKey
	}

	payload := data
	if d.compress {
		if compressed := d.encoder.EncodeAll(data, nil); len(compressed) < len(data) {
			payload = compressed
		}
	}

	tmp, err := os.CreateTemp(d.dir, "."+key+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close cache file: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to set cache file mode: %w", err)
	}

	if err := os.Rename(tmpName, filepath.Join(d.dir, key+"."+ext)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to move cache file into place: %w", err)
	}
	return nil
}

// Read returns the audio stored for key and its file extension
func (d *DiskTier) Read(key string) ([]byte, string, bool) {
	f, ok := d.find(key)
	if !ok {
		return nil, "", false
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, "", false
	}

	if bytes.HasPrefix(data, zstdMagic) {
		decoded, err := d.decoder.DecodeAll(data, nil)
		if err != nil {
			// Corrupt entry, drop it so the key is resynthesized
			os.Remove(f.path)
			return nil, "", false
		}
		data = decoded
	}
	return data, f.ext, true
}

// Stat returns the file metadata for key without reading it
func (d *DiskTier) Stat(key string) (Metadata, bool) {
	f, ok := d.find(key)
	if !ok {
		return Metadata{}, false
	}
	return Metadata{
		Key:       key,
		Extension: f.ext,
		MimeType:  MimeType(f.ext),
		Size:      f.size,
		CreatedAt: f.modTime,
	}, true
}

// Usage counts cache files and their total size on disk
func (d *DiskTier) Usage() (int, int64, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read cache directory: %w", err)
	}

	files := 0
	var total int64
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files++
		total += info.Size()
	}
	return files, total, nil
}

// Clear removes every cache file and returns how many were removed
func (d *DiskTier) Clear() (int, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read cache directory: %w", err)
	}

	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(d.dir, e.Name())); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("failed to remove %s: %w", e.Name(), err)
		}
		removed++
	}
	return removed, nil
}

// Close releases the zstd coders
func (d *DiskTier) Close() {
	if d.encoder != nil {
		d.encoder.Close()
	}
	d.decoder.Close()
}

// find locates <key>.<ext> for any extension
func (d *DiskTier) find(key string) (diskFile, bool) {
	if !validKey(key) {
		return diskFile{}, false
	}

	matches, err := filepath.Glob(filepath.Join(d.dir, key+".*"))
	if err != nil {
		return diskFile{}, false
	}

	for _, path := range matches {
		ext := strings.TrimPrefix(filepath.Ext(path), ".")
		if strings.HasSuffix(path, ".tmp") || filepath.Base(path) != key+"."+ext {
			continue
		}
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		return diskFile{path: path, ext: ext, size: info.Size(), modTime: info.ModTime()}, true
	}
	return diskFile{}, false
}

// validKey accepts hex digests and similar plain tokens
func validKey(key string) bool {
	if key == "" {
		return false
	}
	for _, r := range key {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}
