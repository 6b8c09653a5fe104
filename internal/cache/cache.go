// Package cache provides the durable video cache: streamed download
// ingestion, playback handles, and LRU eviction.
package cache

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ApenasGabs/queroAulas/internal/errs"
	"github.com/ApenasGabs/queroAulas/internal/logging"
	"github.com/ApenasGabs/queroAulas/internal/metrics"
)

const manifestName = "manifest.json"

// fileIDPattern matches the provider's opaque identifiers. The ID
// becomes the blob filename, so anything else could smuggle path
// separators out of the cache directory.
var fileIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ContentOpener streams a remote file's raw bytes.
type ContentOpener interface {
	OpenContent(ctx context.Context, fileID string) (io.ReadCloser, int64, error)
}

// Entry is one cached video record.
type Entry struct {
	FileID       string    `json:"fileId"`
	FileName     string    `json:"fileName"`
	Size         int64     `json:"size"`
	DownloadedAt time.Time `json:"downloadedAt"`
	LastAccess   time.Time `json:"lastAccess"`
	Pinned       bool      `json:"pinned,omitempty"`
}

// Handle is a locally resolvable reference usable by a player.
type Handle struct {
	FileID   string
	FileName string
	Path     string
	Size     int64
}

// Store manages cached video blobs under one directory, keyed by file ID.
// A manifest records metadata so the cache survives restarts.
type Store struct {
	dir     string
	maxSize int64 // 0 = unlimited
	now     func() time.Time

	mu       sync.Mutex
	entries  map[string]*Entry
	size     int64
	inflight map[string]*download
}

// download tracks one in-flight fetch so concurrent requests for the
// same file ID share a single transfer.
type download struct {
	done   chan struct{}
	handle *Handle
	err    error
}

// New opens the cache, creating the directory and reloading the
// manifest. Manifest entries whose blobs are missing are dropped.
func New(dir string, maxSize int64) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errs.Wrap(errs.KindStorage, "cache.New", err)
	}
	s := &Store{
		dir:      dir,
		maxSize:  maxSize,
		now:      time.Now,
		entries:  make(map[string]*Entry),
		inflight: make(map[string]*download),
	}
	if err := s.loadManifest(); err != nil {
		return nil, err
	}
	s.publishStats()
	return s, nil
}

func (s *Store) blobPath(fileID string) string {
	return filepath.Join(s.dir, fileID)
}

// Download streams the file from src into the cache and returns a
// playable handle. Progress, when the total size is declared, is
// reported as a monotonically non-decreasing percentage after each
// chunk. A read failure abandons the download and persists nothing.
// At most one download per file ID runs at a time; concurrent callers
// wait for and share the first result.
func (s *Store) Download(ctx context.Context, src ContentOpener, fileID, fileName string, onProgress func(pct float64)) (*Handle, error) {
	if !fileIDPattern.MatchString(fileID) {
		return nil, errs.Newf(errs.KindInvalidInput, "cache.Download", "malformed file id: %q", fileID)
	}

	s.mu.Lock()
	if d, ok := s.inflight[fileID]; ok {
		s.mu.Unlock()
		select {
		case <-d.done:
			return d.handle, d.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	d := &download{done: make(chan struct{})}
	s.inflight[fileID] = d
	s.mu.Unlock()

	handle, err := s.fetch(ctx, src, fileID, fileName, onProgress)

	s.mu.Lock()
	delete(s.inflight, fileID)
	s.mu.Unlock()

	d.handle, d.err = handle, err
	close(d.done)

	metrics.RecordDownload(err == nil)
	return handle, err
}

// fetch performs the actual transfer.
func (s *Store) fetch(ctx context.Context, src ContentOpener, fileID, fileName string, onProgress func(pct float64)) (*Handle, error) {
	const op = "cache.Download"

	body, total, err := src.OpenContent(ctx, fileID)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	tmp, err := os.CreateTemp(s.dir, fileID+".part-*")
	if err != nil {
		return nil, errs.Wrap(errs.KindStorage, op, err)
	}
	tmpPath := tmp.Name()

	var written int64
	buf := make([]byte, 64<<10)
	for {
		if err := ctx.Err(); err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return nil, err
		}

		n, rerr := body.Read(buf)
		if n > 0 {
			if _, werr := tmp.Write(buf[:n]); werr != nil {
				tmp.Close()
				os.Remove(tmpPath)
				return nil, errs.Wrap(errs.KindStorage, op, werr)
			}
			written += int64(n)
			metrics.AddDownloadBytes(int64(n))
			if onProgress != nil && total > 0 {
				onProgress(float64(written) / float64(total) * 100)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return nil, errs.Wrap(errs.KindTransient, op, rerr)
		}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, errs.Wrap(errs.KindStorage, op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// A blob that alone exceeds the cap would evict the whole cache and
	// still not fit; refuse it and keep any existing entry.
	if s.maxSize > 0 && written > s.maxSize {
		os.Remove(tmpPath)
		return nil, errs.Newf(errs.KindStorage, op,
			"file of %d bytes exceeds cache capacity %d", written, s.maxSize)
	}

	// Overwrite on re-download.
	if old, ok := s.entries[fileID]; ok {
		s.size -= old.Size
		delete(s.entries, fileID)
	}
	s.evictFor(written)

	path := s.blobPath(fileID)
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return nil, errs.Wrap(errs.KindStorage, op, err)
	}

	now := s.now()
	s.entries[fileID] = &Entry{
		FileID:       fileID,
		FileName:     fileName,
		Size:         written,
		DownloadedAt: now,
		LastAccess:   now,
	}
	s.size += written
	if err := s.saveManifest(); err != nil {
		logging.Error("cache manifest save failed", zap.Error(err))
	}
	s.publishStats()

	logging.Info("video cached",
		zap.String("file_id", fileID),
		zap.String("name", fileName),
		zap.Int64("size", written))

	return &Handle{FileID: fileID, FileName: fileName, Path: path, Size: written}, nil
}

// Play returns a fresh handle for a cached video, or ok=false if the
// video is not cached.
func (s *Store) Play(fileID string) (*Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[fileID]
	if !ok {
		return nil, false
	}
	entry.LastAccess = s.now()
	return &Handle{
		FileID:   entry.FileID,
		FileName: entry.FileName,
		Path:     s.blobPath(entry.FileID),
		Size:     entry.Size,
	}, true
}

// Delete removes a cached video. Deleting an absent ID succeeds.
func (s *Store) Delete(fileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[fileID]
	if !ok {
		return nil
	}
	if err := os.Remove(s.blobPath(fileID)); err != nil && !os.IsNotExist(err) {
		return errs.Wrap(errs.KindStorage, "cache.Delete", err)
	}
	s.size -= entry.Size
	delete(s.entries, fileID)
	if err := s.saveManifest(); err != nil {
		logging.Error("cache manifest save failed", zap.Error(err))
	}
	s.publishStats()
	return nil
}

// IsCached reports whether a video is cached.
func (s *Store) IsCached(fileID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[fileID]
	return ok
}

// List returns all cached entries, most recently downloaded first.
func (s *Store) List() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].DownloadedAt.After(out[j].DownloadedAt)
	})
	return out
}

// Pin marks a video to never be evicted.
func (s *Store) Pin(fileID string) error {
	return s.setPinned(fileID, true)
}

// Unpin allows a video to be evicted again.
func (s *Store) Unpin(fileID string) error {
	return s.setPinned(fileID, false)
}

func (s *Store) setPinned(fileID string, pinned bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[fileID]
	if !ok {
		return errs.Newf(errs.KindNotFound, "cache.Pin", "not cached: %s", fileID)
	}
	entry.Pinned = pinned
	if err := s.saveManifest(); err != nil {
		logging.Error("cache manifest save failed", zap.Error(err))
	}
	return nil
}

// Stats returns the total cached bytes and entry count.
func (s *Store) Stats() (size int64, count int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size, len(s.entries)
}

// evictFor frees room for incoming bytes by removing the least recently
// accessed unpinned entries. Must be called with the lock held.
func (s *Store) evictFor(incoming int64) {
	if s.maxSize <= 0 {
		return
	}
	for s.size+incoming > s.maxSize {
		var oldest *Entry
		for _, e := range s.entries {
			if e.Pinned {
				continue
			}
			if oldest == nil || e.LastAccess.Before(oldest.LastAccess) {
				oldest = e
			}
		}
		if oldest == nil {
			return
		}
		os.Remove(s.blobPath(oldest.FileID))
		s.size -= oldest.Size
		delete(s.entries, oldest.FileID)
		metrics.RecordEviction()
		logging.Debug("evicted cached video",
			zap.String("file_id", oldest.FileID),
			zap.Int64("size", oldest.Size))
	}
}

// saveManifest persists the entry index. Must be called with the lock held.
func (s *Store) saveManifest() error {
	entries := make([]*Entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return errs.Wrap(errs.KindStorage, "cache.saveManifest", err)
	}

	path := filepath.Join(s.dir, manifestName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return errs.Wrap(errs.KindStorage, "cache.saveManifest", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return errs.Wrap(errs.KindStorage, "cache.saveManifest", err)
	}
	return nil
}

// loadManifest restores the entry index, dropping records whose blobs
// are gone and adopting the actual blob size on disagreement.
func (s *Store) loadManifest() error {
	data, err := os.ReadFile(filepath.Join(s.dir, manifestName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errs.Wrap(errs.KindStorage, "cache.loadManifest", err)
	}

	var entries []*Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		logging.Warn("cache manifest unreadable, starting empty", zap.Error(err))
		return nil
	}

	for _, e := range entries {
		info, err := os.Stat(s.blobPath(e.FileID))
		if err != nil {
			continue
		}
		e.Size = info.Size()
		s.entries[e.FileID] = e
		s.size += e.Size
	}
	return nil
}

// publishStats updates the cache gauges. Must be called with the lock
// held (or before the store is shared).
func (s *Store) publishStats() {
	metrics.SetCacheStats(s.size, len(s.entries))
}
