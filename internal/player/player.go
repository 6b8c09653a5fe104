// Package player orchestrates the three playback strategies: remote
// embed, cached-local, and streamed-download-then-play.
package player

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ApenasGabs/queroAulas/internal/cache"
	"github.com/ApenasGabs/queroAulas/internal/errs"
	"github.com/ApenasGabs/queroAulas/internal/logging"
	"github.com/ApenasGabs/queroAulas/internal/progress"
)

// State is the playback controller state.
type State int

const (
	// StateRemoteEmbed plays through the provider-hosted embed surface.
	StateRemoteEmbed State = iota
	// StateRemoteEmbedFailed is entered when the embed fails to load.
	StateRemoteEmbedFailed
	// StateDownloading streams the file into the local cache.
	StateDownloading
	// StateLocalPlayback replays from the local cache.
	StateLocalPlayback
	// StateClosed is terminal.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateRemoteEmbed:
		return "remote_embed"
	case StateRemoteEmbedFailed:
		return "remote_embed_failed"
	case StateDownloading:
		return "downloading"
	case StateLocalPlayback:
		return "local_playback"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// embedLoadThreshold is how long the embed may load before the offline
// affordance is surfaced.
const embedLoadThreshold = 10 * time.Second

// Source provides the remote ends the player needs: the embed surface
// and the content stream feeding the cache.
type Source interface {
	cache.ContentOpener
	EmbedURL(fileID string) string
}

// Video identifies the item being played.
type Video struct {
	FileID   string
	Name     string
	FolderID string
}

// Config wires a player to its collaborators.
type Config struct {
	Video    Video
	Source   Source
	Cache    *cache.Store
	Progress *progress.Store
	// HasToken reports whether an auth token is available for
	// downloading. Downloads are refused without one.
	HasToken func() bool
	// Now is the clock; defaults to time.Now.
	Now func() time.Time
}

// Player is the playback controller for one opened video.
// Methods are not safe for concurrent use; the controller belongs to a
// single presentation loop.
type Player struct {
	video    Video
	src      Source
	cache    *cache.Store
	progress *progress.Store
	hasToken func() bool
	now      func() time.Time

	state       State
	openedAt    time.Time
	embedLoaded bool
	handle      *cache.Handle
	downloadPct float64
	lastErr     string

	paused   bool
	position float64 // seconds
	duration float64 // seconds, 0 = unknown
	volume   float64 // 0..1
}

// Open creates the player in RemoteEmbed state and returns the embed
// URL. The progress record is marked in-progress immediately,
// independent of how playback goes; a progress persistence failure is
// surfaced through LastError but does not block playback.
func Open(cfg Config) (*Player, string) {
	p := &Player{
		video:    cfg.Video,
		src:      cfg.Source,
		cache:    cfg.Cache,
		progress: cfg.Progress,
		hasToken: cfg.HasToken,
		now:      cfg.Now,
		state:    StateRemoteEmbed,
		volume:   1,
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.hasToken == nil {
		p.hasToken = func() bool { return false }
	}
	p.openedAt = p.now()

	if p.progress != nil {
		if err := p.progress.MarkInProgress(p.video.FileID, p.video.Name, p.video.FolderID); err != nil {
			logging.Error("mark in-progress failed", zap.Error(err))
			p.lastErr = err.Error()
		}
	}

	return p, p.src.EmbedURL(p.video.FileID)
}

// State returns the current state.
func (p *Player) State() State {
	return p.state
}

// EmbedLoaded records that the embed finished loading.
func (p *Player) EmbedLoaded() {
	if p.state == StateRemoteEmbed {
		p.embedLoaded = true
	}
}

// EmbedFailed transitions RemoteEmbed to RemoteEmbedFailed.
func (p *Player) EmbedFailed() {
	if p.state == StateRemoteEmbed {
		p.state = StateRemoteEmbedFailed
	}
}

// OfflineAvailable reports whether the offline/download affordance
// should be surfaced: immediately on embed failure or when the item is
// already cached, otherwise once the embed has taken longer than the
// load threshold.
func (p *Player) OfflineAvailable() bool {
	switch p.state {
	case StateRemoteEmbedFailed:
		return true
	case StateRemoteEmbed:
		if p.cache != nil && p.cache.IsCached(p.video.FileID) {
			return true
		}
		return !p.embedLoaded && p.now().Sub(p.openedAt) >= embedLoadThreshold
	default:
		return false
	}
}

// PlayOffline switches to local playback. A cached item plays
// immediately; otherwise the file is downloaded first. On failure the
// player remains in its prior state and the error is surfaced.
func (p *Player) PlayOffline(ctx context.Context) error {
	const op = "player.PlayOffline"

	switch p.state {
	case StateRemoteEmbed, StateRemoteEmbedFailed:
	default:
		return errs.Newf(errs.KindInvalidInput, op, "cannot start offline playback from %s", p.state)
	}

	if handle, ok := p.cache.Play(p.video.FileID); ok {
		p.enterLocal(handle)
		return nil
	}

	if !p.hasToken() {
		err := errs.New(errs.KindUnauthorized, op, "no access token available")
		p.lastErr = err.Error()
		return err
	}

	prior := p.state
	p.state = StateDownloading
	p.downloadPct = 0

	handle, err := p.cache.Download(ctx, p.src, p.video.FileID, p.video.Name, func(pct float64) {
		p.downloadPct = pct
	})
	if err != nil {
		p.state = prior
		p.lastErr = err.Error()
		logging.Error("download failed",
			zap.String("file_id", p.video.FileID),
			zap.Error(err))
		return err
	}

	p.enterLocal(handle)
	return nil
}

func (p *Player) enterLocal(handle *cache.Handle) {
	p.state = StateLocalPlayback
	p.handle = handle
	p.paused = false
	p.position = 0
	p.lastErr = ""
}

// Handle returns the local playback handle, nil outside LocalPlayback.
func (p *Player) Handle() *cache.Handle {
	return p.handle
}

// DownloadProgress returns the last reported download percentage.
func (p *Player) DownloadProgress() float64 {
	return p.downloadPct
}

// LastError returns the last surfaced error message, if any.
func (p *Player) LastError() string {
	return p.lastErr
}

// TogglePause flips play/pause and returns the new paused state.
func (p *Player) TogglePause() bool {
	if p.state == StateLocalPlayback {
		p.paused = !p.paused
	}
	return p.paused
}

// Paused reports whether local playback is paused.
func (p *Player) Paused() bool {
	return p.paused
}

// SetDuration records the media duration once the renderer knows it.
func (p *Player) SetDuration(seconds float64) {
	if seconds > 0 {
		p.duration = seconds
	}
}

// Seek moves to an absolute time, clamped to [0, duration].
func (p *Player) Seek(seconds float64) float64 {
	if p.state != StateLocalPlayback {
		return p.position
	}
	if seconds < 0 {
		seconds = 0
	}
	if p.duration > 0 && seconds > p.duration {
		seconds = p.duration
	}
	p.position = seconds
	return p.position
}

// Position returns the current playback position in seconds.
func (p *Player) Position() float64 {
	return p.position
}

// SetVolume adjusts the volume, clamped to [0, 1].
func (p *Player) SetVolume(v float64) float64 {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	p.volume = v
	return p.volume
}

// Volume returns the current volume.
func (p *Player) Volume() float64 {
	return p.volume
}

// MarkCompleted records completion and closes the player.
func (p *Player) MarkCompleted() error {
	var err error
	if p.progress != nil {
		err = p.progress.MarkCompleted(p.video.FileID, p.video.Name, p.video.FolderID)
		if err != nil {
			p.lastErr = err.Error()
		}
	}
	p.Close()
	return err
}

// DeleteFromCache removes the cached copy and closes the player.
func (p *Player) DeleteFromCache() error {
	err := p.cache.Delete(p.video.FileID)
	if err != nil {
		p.lastErr = err.Error()
	}
	p.Close()
	return err
}

// Close releases the playback handle. Safe from any state; no further
// side effects.
func (p *Player) Close() {
	p.handle = nil
	p.state = StateClosed
}
