package tree

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ApenasGabs/queroAulas/internal/classify"
	"github.com/ApenasGabs/queroAulas/internal/drive"
	"github.com/ApenasGabs/queroAulas/internal/errs"
	"github.com/ApenasGabs/queroAulas/internal/logging"
	"github.com/ApenasGabs/queroAulas/internal/metrics"
	"github.com/ApenasGabs/queroAulas/internal/natsort"
)

var (
	folderURLPattern = regexp.MustCompile(`/folders/([a-zA-Z0-9_-]+)`)
	bareIDPattern    = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// ResolveFolderID parses a folder reference: either a bare opaque
// identifier (alphanumeric with dashes/underscores, longer than 10
// characters) or an identifier embedded in a /folders/ URL path segment.
// Re-running it on its own output returns the same identifier.
func ResolveFolderID(input string) (string, bool) {
	if m := folderURLPattern.FindStringSubmatch(input); m != nil {
		return m[1], true
	}
	if bareIDPattern.MatchString(input) && len(input) > 10 {
		return input, true
	}
	return "", false
}

// Lister is the listing collaborator consumed by the synchronizer.
type Lister interface {
	ListChildren(ctx context.Context, folderID string) ([]drive.Item, error)
}

// Synchronizer recursively expands a remote folder into a Node tree.
type Synchronizer struct {
	lister   Lister
	workers  int
	maxDepth int
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithWorkers bounds the number of concurrent folder listings.
func WithWorkers(n int) Option {
	return func(s *Synchronizer) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithMaxDepth bounds the recursion depth.
func WithMaxDepth(n int) Option {
	return func(s *Synchronizer) {
		if n > 0 {
			s.maxDepth = n
		}
	}
}

// NewSynchronizer creates a Synchronizer over a listing collaborator.
func NewSynchronizer(lister Lister, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		lister:   lister,
		workers:  4,
		maxDepth: 32,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FetchTree expands folderID into a complete tree. The fetch is all or
// nothing: the first listing failure aborts every in-flight subtree and
// the error is returned classified (NotFound, Unauthorized, Transient).
func (s *Synchronizer) FetchTree(ctx context.Context, folderID string) (*Node, error) {
	const op = "tree.FetchTree"
	if folderID == "" {
		return nil, errs.New(errs.KindInvalidInput, op, "folder id is required")
	}

	start := time.Now()
	root := &Node{ID: folderID, Class: classify.Folder}

	f := &fetch{
		lister:  s.lister,
		sem:     make(chan struct{}, s.workers),
		visited: make(map[string]bool),
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	f.cancel = cancel

	f.expand(ctx, root, 0, s.maxDepth)
	f.wg.Wait()

	if f.err != nil {
		return nil, f.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	n := CountNodes(root)
	metrics.RecordTreeFetch(time.Since(start).Seconds(), n)
	logging.Debug("tree fetch complete",
		zap.String("folder_id", folderID),
		zap.Int("nodes", n),
		zap.Duration("elapsed", time.Since(start)))
	return root, nil
}

// fetch tracks one tree expansion: bounded concurrency, a visited set
// guarding against cyclic parent/child structures, and first-error abort.
type fetch struct {
	lister Lister
	sem    chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	visited map[string]bool
	err     error
}

// fail records the first error and cancels all in-flight listings.
func (f *fetch) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err == nil {
		f.err = err
		f.cancel()
	}
}

// visit marks a folder as seen, reporting false if it was seen before.
func (f *fetch) visit(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.visited[id] {
		return false
	}
	f.visited[id] = true
	return true
}

// expand lists node's children and recurses into child folders.
// Sibling folders are expanded concurrently, bounded by the semaphore.
func (f *fetch) expand(ctx context.Context, node *Node, depth, maxDepth int) {
	if depth > maxDepth {
		f.fail(errs.Newf(errs.KindInvalidInput, "tree.FetchTree",
			"folder nesting exceeds %d levels", maxDepth))
		return
	}
	if !f.visit(node.ID) {
		f.fail(errs.Newf(errs.KindInvalidInput, "tree.FetchTree",
			"cycle detected at folder %s", node.ID))
		return
	}

	select {
	case f.sem <- struct{}{}:
	case <-ctx.Done():
		return
	}
	items, err := f.lister.ListChildren(ctx, node.ID)
	<-f.sem
	if err != nil {
		if ctx.Err() == nil {
			f.fail(err)
		}
		return
	}

	children := make([]*Node, 0, len(items))
	for _, item := range items {
		children = append(children, itemNode(item))
	}
	sort.SliceStable(children, func(i, j int) bool {
		return natsort.Less(children[i].Name, children[j].Name)
	})
	node.Children = children

	for _, child := range children {
		if !child.IsFolder() {
			continue
		}
		f.wg.Add(1)
		go func(child *Node) {
			defer f.wg.Done()
			f.expand(ctx, child, depth+1, maxDepth)
		}(child)
	}
}

// itemNode converts a listing item into a tree node.
func itemNode(item drive.Item) *Node {
	n := &Node{
		ID:    item.ID,
		Name:  item.Name,
		Class: classify.ByMime(item.MimeType, item.Name),
	}
	if item.Size != "" {
		if size, err := strconv.ParseInt(item.Size, 10, 64); err == nil {
			n.Size = size
		}
	}
	if item.ModifiedTime != "" {
		if t, err := time.Parse(time.RFC3339, item.ModifiedTime); err == nil {
			n.ModifiedTime = t
		}
	}
	return n
}
