// Package progress tracks per-user watch status for video items.
package progress

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ApenasGabs/queroAulas/internal/errs"
	"github.com/ApenasGabs/queroAulas/internal/logging"
	"github.com/ApenasGabs/queroAulas/internal/metrics"
	"github.com/ApenasGabs/queroAulas/internal/store"
)

// Status is the watch state of one video.
type Status string

const (
	NotStarted Status = "not-started"
	InProgress Status = "in-progress"
	Completed  Status = "completed"
)

// Record is the watch status of one video for the current user.
type Record struct {
	FileID      string    `json:"fileId"`
	FileName    string    `json:"fileName"`
	FolderID    string    `json:"folderId"`
	Status      Status    `json:"status"`
	LastWatched time.Time `json:"lastWatched"`
	CreatedAt   time.Time `json:"createdAt"`
	// CompletedAt is set on first completion and preserved if the
	// video is later re-watched.
	CompletedAt time.Time `json:"completedAt,omitzero"`
}

// Envelope is the whole per-user progress record, persisted as one unit.
type Envelope struct {
	UserID          string            `json:"userId"`
	Videos          map[string]Record `json:"videos"`
	LastVideoFileID string            `json:"lastVideoFileId,omitempty"`
	LastFolderID    string            `json:"lastFolderId,omitempty"`
	UpdatedAt       time.Time         `json:"updatedAt"`
}

// storageKey namespaces envelopes per user so switching accounts never
// clobbers another user's data.
func storageKey(userID string) string {
	return "progress/" + userID
}

// Store owns the envelope for one authenticated user. Every mutation
// rewrites the whole envelope to durable storage; a persistence failure
// is surfaced and leaves the in-memory state untouched.
type Store struct {
	kv     store.KV
	userID string
	now    func() time.Time

	mu   sync.Mutex
	data Envelope
}

// Open loads the user's envelope. A stored envelope belonging to a
// different user is left in place and a fresh empty one is started.
func Open(kv store.KV, userID string) (*Store, error) {
	if userID == "" {
		return nil, errs.New(errs.KindInvalidInput, "progress.Open", "user id is required")
	}

	s := &Store{
		kv:     kv,
		userID: userID,
		now:    time.Now,
	}
	s.data = Envelope{
		UserID:    userID,
		Videos:    make(map[string]Record),
		UpdatedAt: s.now(),
	}

	raw, ok, err := kv.Load(storageKey(userID))
	if err != nil {
		return nil, errs.Wrap(errs.KindStorage, "progress.Open", err)
	}
	if ok {
		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			logging.Warn("stored progress unreadable, starting fresh", zap.Error(err))
		} else if env.UserID == userID {
			if env.Videos == nil {
				env.Videos = make(map[string]Record)
			}
			s.data = env
		}
	}
	return s, nil
}

// UserID returns the owning user.
func (s *Store) UserID() string {
	return s.userID
}

// MarkInProgress upserts the record for fileID with status InProgress.
// CreatedAt is fixed at first write; CompletedAt survives re-watching.
// Also updates the envelope's last-video pointers.
func (s *Store) MarkInProgress(fileID, fileName, folderID string) error {
	return s.mark(fileID, fileName, folderID, InProgress)
}

// MarkCompleted upserts the record for fileID with status Completed.
func (s *Store) MarkCompleted(fileID, fileName, folderID string) error {
	return s.mark(fileID, fileName, folderID, Completed)
}

func (s *Store) mark(fileID, fileName, folderID string, status Status) error {
	const op = "progress.mark"
	if fileID == "" {
		return errs.New(errs.KindInvalidInput, op, "file id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	next := s.cloneLocked()

	rec := Record{
		FileID:      fileID,
		FileName:    fileName,
		FolderID:    folderID,
		Status:      status,
		LastWatched: now,
		CreatedAt:   now,
	}
	if existing, ok := next.Videos[fileID]; ok {
		rec.CreatedAt = existing.CreatedAt
		rec.CompletedAt = existing.CompletedAt
	}
	if status == Completed && rec.CompletedAt.IsZero() {
		rec.CompletedAt = now
	}
	next.Videos[fileID] = rec

	next.LastVideoFileID = fileID
	next.LastFolderID = folderID
	next.UpdatedAt = now

	return s.commitLocked(next)
}

// Get returns the record for fileID.
func (s *Store) Get(fileID string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.data.Videos[fileID]
	return rec, ok
}

// LastVideo returns the record of the most recently watched video.
func (s *Store) LastVideo() (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data.LastVideoFileID == "" {
		return Record{}, false
	}
	rec, ok := s.data.Videos[s.data.LastVideoFileID]
	return rec, ok
}

// CompletedCount counts completed records, optionally scoped to one
// folder by exact match. An empty folderID counts across all folders.
func (s *Store) CompletedCount(folderID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, rec := range s.data.Videos {
		if folderID != "" && rec.FolderID != folderID {
			continue
		}
		if rec.Status == Completed {
			count++
		}
	}
	return count
}

// TotalCount counts all records, optionally scoped to one folder.
func (s *Store) TotalCount(folderID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if folderID == "" {
		return len(s.data.Videos)
	}
	count := 0
	for _, rec := range s.data.Videos {
		if rec.FolderID == folderID {
			count++
		}
	}
	return count
}

// ClearAll removes every record.
func (s *Store) ClearAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cloneLocked()
	next.Videos = make(map[string]Record)
	next.LastVideoFileID = ""
	next.UpdatedAt = s.now()
	return s.commitLocked(next)
}

// ClearFolder removes records for one folder. The last-video pointer is
// invalidated when the last-watched record was among those removed.
func (s *Store) ClearFolder(folderID string) error {
	if folderID == "" {
		return errs.New(errs.KindInvalidInput, "progress.ClearFolder", "folder id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cloneLocked()
	for id, rec := range next.Videos {
		if rec.FolderID == folderID {
			delete(next.Videos, id)
		}
	}
	if _, ok := next.Videos[next.LastVideoFileID]; !ok {
		next.LastVideoFileID = ""
	}
	next.UpdatedAt = s.now()
	return s.commitLocked(next)
}

// cloneLocked copies the envelope so mutations can be committed only
// after a successful save. Must be called with the lock held.
func (s *Store) cloneLocked() Envelope {
	next := s.data
	next.Videos = make(map[string]Record, len(s.data.Videos))
	for id, rec := range s.data.Videos {
		next.Videos[id] = rec
	}
	return next
}

// commitLocked persists the candidate envelope, adopting it in memory
// only when the write succeeds. Must be called with the lock held.
func (s *Store) commitLocked(next Envelope) error {
	data, err := json.Marshal(next)
	if err != nil {
		metrics.RecordProgressWrite(false)
		return errs.Wrap(errs.KindStorage, "progress.commit", err)
	}
	if err := s.kv.Save(storageKey(s.userID), data); err != nil {
		metrics.RecordProgressWrite(false)
		logging.Error("progress save failed", zap.Error(err))
		return errs.Wrap(errs.KindStorage, "progress.commit", err)
	}
	s.data = next
	metrics.RecordProgressWrite(true)
	return nil
}
