// QueroAulas client
//
// Browses a shared drive folder, plays its videos through the provider
// embed surface or from a local offline cache, and tracks per-user
// watch progress.
//
// Sub-commands:
//
//	queroaulas login                 Sign in (authorization code flow)
//	queroaulas logout                Revoke tokens and clear the session
//	queroaulas tree <url-or-id>      Fetch and render a folder tree
//	queroaulas download <file-id>    Download a video into the cache
//	queroaulas play <file-id>        Play a video (embed or offline)
//	queroaulas cached                List cached videos
//	queroaulas rm <file-id>          Remove a video from the cache
//	queroaulas progress              Show watch progress
//	queroaulas status                Show session and cache status
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/ApenasGabs/queroAulas/internal/cache"
	"github.com/ApenasGabs/queroAulas/internal/config"
	"github.com/ApenasGabs/queroAulas/internal/drive"
	"github.com/ApenasGabs/queroAulas/internal/errs"
	"github.com/ApenasGabs/queroAulas/internal/logging"
	"github.com/ApenasGabs/queroAulas/internal/metrics"
	"github.com/ApenasGabs/queroAulas/internal/player"
	"github.com/ApenasGabs/queroAulas/internal/progress"
	"github.com/ApenasGabs/queroAulas/internal/session"
	"github.com/ApenasGabs/queroAulas/internal/store"
	"github.com/ApenasGabs/queroAulas/internal/tree"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cmd, args := os.Args[1], os.Args[2:]

	app, err := newApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logging.Sync()

	switch cmd {
	case "login":
		err = app.cmdLogin(args)
	case "logout":
		err = app.cmdLogout(args)
	case "tree":
		err = app.cmdTree(args)
	case "download":
		err = app.cmdDownload(args)
	case "play":
		err = app.cmdPlay(args)
	case "cached":
		err = app.cmdCached(args)
	case "rm":
		err = app.cmdRemove(args)
	case "progress":
		err = app.cmdProgress(args)
	case "status":
		err = app.cmdStatus(args)
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: queroaulas <login|logout|tree|download|play|cached|rm|progress|status> [args]")
}

// app holds the wired subsystems shared by the sub-commands.
type app struct {
	cfg  *config.Config
	drv  *drive.Client
	sess *session.Session
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	if err := logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	}); err != nil {
		return nil, err
	}

	if cfg.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			logging.Info("metrics listening", zap.String("addr", cfg.MetricsAddr))
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				logging.Error("metrics server error", zap.Error(err))
			}
		}()
	}

	a := &app{cfg: cfg}

	a.sess, _, err = session.Load(session.DefaultPath(cfg.StateDir))
	if err != nil {
		logging.Warn("session load failed", zap.Error(err))
	}

	a.drv = drive.New(drive.Config{
		APIBase:        cfg.DriveAPIBase,
		EmbedBase:      cfg.DriveEmbedBase,
		Timeout:        cfg.RequestTimeout,
		RequestsPerSec: cfg.RequestsPerSec,
		AuthToken:      a.token(),
	})

	return a, nil
}

func (a *app) token() string {
	if a.sess == nil {
		return ""
	}
	return a.sess.AccessToken
}

func (a *app) userID() string {
	if a.sess == nil {
		return ""
	}
	if a.sess.Claims.Email != "" {
		return a.sess.Claims.Email
	}
	return a.sess.Claims.Subject
}

func (a *app) auth(ctx context.Context) *session.Authenticator {
	return session.New(ctx, session.Config{
		IssuerURL:    a.cfg.OIDCIssuerURL,
		ClientID:     a.cfg.OAuthClientID,
		ClientSecret: a.cfg.OAuthClientSecret,
		RedirectURL:  a.cfg.OAuthRedirectURL,
	})
}

func (a *app) openCache() (*cache.Store, error) {
	return cache.New(a.cfg.CacheDir, a.cfg.CacheMaxSize)
}

func (a *app) openProgress() (*progress.Store, error) {
	userID := a.userID()
	if userID == "" {
		return nil, errs.New(errs.KindUnauthorized, "progress", "not signed in; run: queroaulas login")
	}
	kv, err := store.NewFileKV(a.cfg.StateDir)
	if err != nil {
		return nil, err
	}
	return progress.Open(kv, userID)
}

func (a *app) cmdLogin(args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	fs.Parse(args)

	if a.cfg.OAuthClientID == "" {
		return errs.New(errs.KindInvalidInput, "login", "OAUTH_CLIENT_ID is not set")
	}

	ctx := context.Background()
	auth := a.auth(ctx)

	fmt.Printf("\nTo sign in, open:\n\n  %s\n\n", auth.AuthCodeURL("queroaulas-cli"))
	fmt.Print("Paste the authorization code: ")

	reader := bufio.NewReader(os.Stdin)
	code, err := reader.ReadString('\n')
	if err != nil {
		return err
	}

	sess, err := auth.Exchange(ctx, strings.TrimSpace(code))
	if err != nil {
		return err
	}
	if err := session.Save(session.DefaultPath(a.cfg.StateDir), sess); err != nil {
		return err
	}

	fmt.Printf("Signed in as %s (%s)\n", sess.Claims.Name, sess.Claims.Email)
	return nil
}

func (a *app) cmdLogout(args []string) error {
	fs := flag.NewFlagSet("logout", flag.ExitOnError)
	fs.Parse(args)

	ctx := context.Background()
	if err := a.auth(ctx).Logout(ctx, a.sess, session.DefaultPath(a.cfg.StateDir)); err != nil {
		return err
	}
	fmt.Println("Signed out.")
	return nil
}

func (a *app) cmdTree(args []string) error {
	fs := flag.NewFlagSet("tree", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() < 1 {
		return errs.New(errs.KindInvalidInput, "tree", "folder link or ID is required")
	}

	folderID, ok := tree.ResolveFolderID(strings.TrimSpace(fs.Arg(0)))
	if !ok {
		return errs.New(errs.KindInvalidInput, "tree", "not a valid folder link or ID")
	}

	sync := tree.NewSynchronizer(a.drv,
		tree.WithWorkers(a.cfg.FetchConcurrency),
		tree.WithMaxDepth(a.cfg.MaxTreeDepth))

	root, err := sync.FetchTree(context.Background(), folderID)
	if err != nil {
		return describeFetchError(err)
	}

	prog, err := a.openProgress()
	if err != nil {
		logging.Debug("progress unavailable", zap.Error(err))
		prog = nil
	}

	renderTree(root, prog, 0)

	counts := tree.CountByClass(root)
	fmt.Printf("\n%d folders, %d videos, %d other files\n",
		counts.Folders, counts.Videos, counts.Others)
	if prog != nil {
		done, total := completedInTree(prog, root)
		fmt.Printf("Completed: %d/%d\n", done, total)
	}
	return nil
}

// completedInTree counts the tree's videos and how many of them are
// recorded completed, wherever in the tree they sit.
func completedInTree(prog *progress.Store, root *tree.Node) (done, total int) {
	videos := tree.Videos(root)
	for _, v := range videos {
		if rec, ok := prog.Get(v.ID); ok && rec.Status == progress.Completed {
			done++
		}
	}
	return done, len(videos)
}

func renderTree(node *tree.Node, prog *progress.Store, depth int) {
	for _, child := range node.Children {
		indent := strings.Repeat("  ", depth)
		switch {
		case child.IsFolder():
			done, total := 0, 0
			if prog != nil {
				done = prog.CompletedCount(child.ID)
				total = prog.TotalCount(child.ID)
			}
			if total > 0 {
				fmt.Printf("%s%s/ (%d/%d)\n", indent, child.Name, done, total)
			} else {
				fmt.Printf("%s%s/\n", indent, child.Name)
			}
			renderTree(child, prog, depth+1)
		case child.IsVideo():
			mark := " "
			if prog != nil {
				if rec, ok := prog.Get(child.ID); ok && rec.Status == progress.Completed {
					mark = "✓"
				}
			}
			fmt.Printf("%s[%s] %s  (%s)\n", indent, mark, child.Name, formatSize(child.Size))
		default:
			fmt.Printf("%s    %s\n", indent, child.Name)
		}
	}
}

func describeFetchError(err error) error {
	switch errs.KindOf(err) {
	case errs.KindNotFound:
		return fmt.Errorf("folder not found: %w", err)
	case errs.KindUnauthorized:
		return fmt.Errorf("session expired, run: queroaulas login (%w)", err)
	case errs.KindTransient:
		return fmt.Errorf("temporary failure, try again: %w", err)
	default:
		return err
	}
}

func (a *app) cmdDownload(args []string) error {
	fs := flag.NewFlagSet("download", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() < 1 {
		return errs.New(errs.KindInvalidInput, "download", "file ID is required")
	}
	fileID := fs.Arg(0)

	if a.token() == "" {
		return errs.New(errs.KindUnauthorized, "download", "not signed in; run: queroaulas login")
	}

	ctx := context.Background()
	item, err := a.drv.FileMetadata(ctx, fileID)
	if err != nil {
		return describeFetchError(err)
	}

	c, err := a.openCache()
	if err != nil {
		return err
	}

	lastPct := -1
	handle, err := c.Download(ctx, a.drv, item.ID, item.Name, func(pct float64) {
		if int(pct) != lastPct {
			lastPct = int(pct)
			fmt.Printf("\rDownloading %s... %3d%%", item.Name, lastPct)
		}
	})
	if err != nil {
		fmt.Println()
		return err
	}
	fmt.Printf("\rDownloaded %s (%s) -> %s\n", handle.FileName, formatSize(handle.Size), handle.Path)
	return nil
}

func (a *app) cmdPlay(args []string) error {
	fs := flag.NewFlagSet("play", flag.ExitOnError)
	offline := fs.Bool("offline", false, "play from the local cache, downloading if needed")
	folderID := fs.String("folder", "", "folder ID for progress tracking")
	fs.Parse(args)
	if fs.NArg() < 1 {
		return errs.New(errs.KindInvalidInput, "play", "file ID is required")
	}
	fileID := fs.Arg(0)

	ctx := context.Background()
	name := fileID
	if item, err := a.drv.FileMetadata(ctx, fileID); err == nil {
		name = item.Name
	}

	c, err := a.openCache()
	if err != nil {
		return err
	}
	prog, err := a.openProgress()
	if err != nil {
		logging.Debug("progress unavailable", zap.Error(err))
		prog = nil
	}

	p, embedURL := player.Open(player.Config{
		Video:    player.Video{FileID: fileID, Name: name, FolderID: *folderID},
		Source:   a.drv,
		Cache:    c,
		Progress: prog,
		HasToken: func() bool { return a.token() != "" },
	})
	defer p.Close()

	if !*offline {
		fmt.Printf("Embed URL:\n  %s\n", embedURL)
		if c.IsCached(fileID) {
			fmt.Println("Also cached locally; use -offline to play the local copy.")
		}
		return nil
	}

	if err := p.PlayOffline(ctx); err != nil {
		return err
	}

	handle := p.Handle()
	fmt.Printf("Playing from cache: %s\n", handle.Path)
	return nil
}

func (a *app) cmdCached(args []string) error {
	fs := flag.NewFlagSet("cached", flag.ExitOnError)
	fs.Parse(args)

	c, err := a.openCache()
	if err != nil {
		return err
	}

	entries := c.List()
	if len(entries) == 0 {
		fmt.Println("No cached videos.")
		return nil
	}
	for _, e := range entries {
		fmt.Printf("%-44s %10s  %s\n", e.FileID, formatSize(e.Size),
			e.FileName)
	}
	size, count := c.Stats()
	fmt.Printf("\n%d videos, %s total\n", count, formatSize(size))
	return nil
}

func (a *app) cmdRemove(args []string) error {
	fs := flag.NewFlagSet("rm", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() < 1 {
		return errs.New(errs.KindInvalidInput, "rm", "file ID is required")
	}

	c, err := a.openCache()
	if err != nil {
		return err
	}
	if err := c.Delete(fs.Arg(0)); err != nil {
		return err
	}
	fmt.Println("Removed.")
	return nil
}

func (a *app) cmdProgress(args []string) error {
	fs := flag.NewFlagSet("progress", flag.ExitOnError)
	fs.Parse(args)

	prog, err := a.openProgress()
	if err != nil {
		return err
	}

	if fs.NArg() > 0 && fs.Arg(0) == "clear" {
		if fs.NArg() > 1 {
			if err := prog.ClearFolder(fs.Arg(1)); err != nil {
				return err
			}
			fmt.Println("Folder progress cleared.")
			return nil
		}
		if err := prog.ClearAll(); err != nil {
			return err
		}
		fmt.Println("All progress cleared.")
		return nil
	}

	fmt.Printf("User: %s\n", prog.UserID())
	fmt.Printf("Watched: %d videos, %d completed\n",
		prog.TotalCount(""), prog.CompletedCount(""))
	if rec, ok := prog.LastVideo(); ok {
		fmt.Printf("Last watched: %s (%s)\n", rec.FileName, rec.Status)
	}
	return nil
}

func (a *app) cmdStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	fs.Parse(args)

	if a.sess == nil {
		fmt.Println("Not signed in.")
	} else {
		fmt.Printf("Signed in as %s (%s)\n", a.sess.Claims.Name, a.sess.Claims.Email)
		if a.sess.Expired(0) {
			fmt.Println("Access token has expired; run: queroaulas login")
		}
	}

	c, err := a.openCache()
	if err != nil {
		return err
	}
	size, count := c.Stats()
	fmt.Printf("Cache: %d videos, %s in %s\n", count, formatSize(size), a.cfg.CacheDir)
	return nil
}

func formatSize(bytes int64) string {
	switch {
	case bytes < 1024:
		return fmt.Sprintf("%d B", bytes)
	case bytes < 1024*1024:
		return fmt.Sprintf("%.1f KB", float64(bytes)/1024)
	case bytes < 1024*1024*1024:
		return fmt.Sprintf("%.1f MB", float64(bytes)/(1024*1024))
	default:
		return fmt.Sprintf("%.2f GB", float64(bytes)/(1024*1024*1024))
	}
}
