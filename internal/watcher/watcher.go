// Package watcher turns directories into image inboxes: new image files dropped into a
// watched directory are handed to an ingest function once they stop changing.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 400 * time.Millisecond

// IngestFunc receives the path of a settled image file.
type IngestFunc func(ctx context.Context, path string) error

// Ledger remembers which file versions were ingested so restarts do not ingest them again.
type Ledger interface {
	WasIngested(ctx context.Context, path string, modTime time.Time, size int64) (bool, error)
	RecordIngest(ctx context.Context, path string, modTime time.Time, size int64) error
}

// Inbox watches directories and ingests matching files after writes settle. A file is
// ingested again only when its modification time or size changes.
type Inbox struct {
	roots      []string
	extensions []string
	recursive  bool
	ingest     IngestFunc
	debounce   time.Duration
	logger     *zap.Logger
	ledger     Ledger

	mu        sync.Mutex
	watcher   *fsnotify.Watcher
	ctx       context.Context
	pending   map[string]*time.Timer
	ingested  map[string]fileStamp
	rootPaths map[string][]string // root -> directories added to fsnotify
	done      chan struct{}
	started   bool
	stopOnce  sync.Once
	inflight  sync.WaitGroup
}

type fileStamp struct {
	modTime time.Time
	size    int64
}

// Option configures an Inbox.
type Option func(*Inbox)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(in *Inbox) {
		if l != nil {
			in.logger = l
		}
	}
}

// WithDebounce sets how long a file must be quiet before it is ingested.
func WithDebounce(d time.Duration) Option {
	return func(in *Inbox) {
		if d > 0 {
			in.debounce = d
		}
	}
}

// WithLedger persists ingested file versions across restarts.
func WithLedger(l Ledger) Option {
	return func(in *Inbox) {
		in.ledger = l
	}
}

// NewInbox creates an inbox over roots. Only files whose extension is in extensions are
// ingested; an empty list accepts every file.
func NewInbox(roots, extensions []string, recursive bool, ingest IngestFunc, opts ...Option) *Inbox {
	in := &Inbox{
		roots:      append([]string(nil), roots...),
		extensions: extensions,
		recursive:  recursive,
		ingest:     ingest,
		debounce:   defaultDebounce,
		logger:     zap.NewNop(),
		ctx:        context.Background(),
		pending:    make(map[string]*time.Timer),
		ingested:   make(map[string]fileStamp),
		rootPaths:  make(map[string][]string),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Start begins watching. It runs until ctx is cancelled or Stop is called. Missing roots
// are created.
func (in *Inbox) Start(ctx context.Context) error {
	in.mu.Lock()
	if in.started {
		in.mu.Unlock()
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		in.mu.Unlock()
		return err
	}
	in.watcher = w
	in.ctx = ctx
	in.started = true
	in.logger.Debug("inbox starting",
		zap.Strings("roots", in.roots),
		zap.Strings("extensions", in.extensions),
		zap.Bool("recursive", in.recursive))
	for _, root := range in.roots {
		if err := in.addRootLocked(root); err != nil {
			_ = in.watcher.Close()
			in.watcher = nil
			in.started = false
			in.mu.Unlock()
			return err
		}
	}
	in.mu.Unlock()
	go in.run(ctx, w)
	return nil
}

func (in *Inbox) run(ctx context.Context, w *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			in.Stop()
			return
		case <-in.done:
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			in.handleEvent(ev)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			if err != nil {
				in.logger.Debug("inbox watch error", zap.Error(err))
			}
		}
	}
}

func (in *Inbox) handleEvent(ev fsnotify.Event) {
	path := ev.Name
	if !in.underRoot(path) {
		return
	}
	in.logger.Debug("inbox event", zap.String("op", ev.Op.String()), zap.String("path", path))
	switch {
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		info, err := os.Stat(path)
		if err == nil && info.IsDir() {
			in.handleNewDirectory(path)
			return
		}
		if matchExtension(path, in.extensions) {
			in.schedule(path)
		}
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		in.mu.Lock()
		if t, ok := in.pending[path]; ok {
			t.Stop()
			delete(in.pending, path)
		}
		delete(in.ingested, path)
		in.mu.Unlock()
	}
}

// handleNewDirectory watches a directory created or moved into a root and ingests its files.
func (in *Inbox) handleNewDirectory(dir string) {
	in.mu.Lock()
	w := in.watcher
	recursive := in.recursive
	in.mu.Unlock()
	if w == nil {
		return
	}

	if recursive {
		_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if err := w.Add(path); err != nil {
					in.logger.Debug("inbox failed to watch directory", zap.String("path", path), zap.Error(err))
				}
			}
			return nil
		})
	} else if err := w.Add(dir); err != nil {
		in.logger.Debug("inbox failed to watch directory", zap.String("path", dir), zap.Error(err))
	}
	in.scan(dir)
}

func (in *Inbox) underRoot(path string) bool {
	in.mu.Lock()
	roots := append([]string(nil), in.roots...)
	in.mu.Unlock()
	clean := filepath.Clean(path)
	for _, root := range roots {
		if inDir(filepath.Clean(root), clean) {
			return true
		}
	}
	return false
}

func inDir(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func matchExtension(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, e := range extensions {
		if strings.TrimPrefix(strings.ToLower(e), ".") == ext {
			return true
		}
	}
	return false
}

// schedule (re)starts the quiet timer for path.
func (in *Inbox) schedule(path string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if t, ok := in.pending[path]; ok {
		t.Stop()
	}
	in.pending[path] = time.AfterFunc(in.debounce, func() {
		in.mu.Lock()
		delete(in.pending, path)
		in.mu.Unlock()
		in.ingestFile(path)
	})
}

// ingestFile hands path to the ingest function unless the same version was already ingested.
func (in *Inbox) ingestFile(path string) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}
	stamp := fileStamp{modTime: info.ModTime(), size: info.Size()}

	in.mu.Lock()
	if !in.started {
		in.mu.Unlock()
		return
	}
	if prev, ok := in.ingested[path]; ok && prev == stamp {
		in.mu.Unlock()
		return
	}
	in.ingested[path] = stamp
	ctx := in.ctx
	ingest := in.ingest
	in.inflight.Add(1)
	in.mu.Unlock()
	defer in.inflight.Done()

	if ingest == nil {
		return
	}
	if in.ledger != nil {
		seen, err := in.ledger.WasIngested(ctx, path, stamp.modTime, stamp.size)
		if err != nil {
			in.logger.Warn("inbox ledger lookup failed", zap.String("path", path), zap.Error(err))
		} else if seen {
			in.logger.Debug("inbox file already ingested", zap.String("path", path))
			return
		}
	}
	if err := ingest(ctx, path); err != nil {
		in.logger.Warn("inbox ingest failed", zap.String("path", path), zap.Error(err))
		in.mu.Lock()
		delete(in.ingested, path)
		in.mu.Unlock()
		return
	}
	if in.ledger != nil {
		if err := in.ledger.RecordIngest(ctx, path, stamp.modTime, stamp.size); err != nil {
			in.logger.Warn("inbox ledger update failed", zap.String("path", path), zap.Error(err))
		}
	}
	in.logger.Debug("inbox ingested file", zap.String("path", path))
}

// AddDirectory adds a root and optionally ingests the files already in it.
func (in *Inbox) AddDirectory(root string, syncExisting bool) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	abs = filepath.Clean(abs)
	in.mu.Lock()
	if in.watcher == nil {
		in.mu.Unlock()
		return nil
	}
	for _, r := range in.roots {
		if filepath.Clean(r) == abs {
			in.mu.Unlock()
			return nil
		}
	}
	if err := in.addRootLocked(abs); err != nil {
		in.mu.Unlock()
		return err
	}
	in.roots = append(in.roots, abs)
	in.mu.Unlock()

	in.logger.Debug("inbox directory added", zap.String("path", abs), zap.Bool("sync_existing", syncExisting))
	if syncExisting {
		go in.scan(abs)
	}
	return nil
}

func (in *Inbox) addRootLocked(root string) error {
	root = filepath.Clean(root)
	if err := os.MkdirAll(root, 0755); err != nil {
		return err
	}
	var paths []string
	if in.recursive {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() {
				return nil
			}
			if err := in.watcher.Add(path); err != nil {
				return err
			}
			paths = append(paths, path)
			return nil
		})
		if err != nil {
			return err
		}
	} else {
		if err := in.watcher.Add(root); err != nil {
			return err
		}
		paths = append(paths, root)
	}
	in.rootPaths[root] = paths
	return nil
}

// scan ingests every matching file under dir, honouring the recursive setting.
func (in *Inbox) scan(dir string) {
	in.mu.Lock()
	recursive := in.recursive
	in.mu.Unlock()
	in.logger.Debug("inbox scanning directory", zap.String("path", dir))
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && !recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if matchExtension(path, in.extensions) {
			in.ingestFile(path)
		}
		return nil
	})
}

// RemoveDirectory stops watching root. Images already ingested stay in the catalog.
func (in *Inbox) RemoveDirectory(root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	abs = filepath.Clean(abs)
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.watcher == nil {
		return nil
	}
	idx := -1
	for i, r := range in.roots {
		if filepath.Clean(r) == abs {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	for _, p := range in.rootPaths[abs] {
		_ = in.watcher.Remove(p)
	}
	delete(in.rootPaths, abs)
	in.roots = append(in.roots[:idx], in.roots[idx+1:]...)
	in.logger.Debug("inbox directory removed", zap.String("path", abs))
	return nil
}

// Directories returns the watched roots.
func (in *Inbox) Directories() []string {
	in.mu.Lock()
	defer in.mu.Unlock()
	return append([]string(nil), in.roots...)
}

// SyncExistingFiles ingests files that were already present in the roots. Call it after
// Start.
func (in *Inbox) SyncExistingFiles() {
	for _, root := range in.Directories() {
		in.scan(root)
	}
}

// Stop stops watching, cancels pending ingests and waits for running ones to finish.
func (in *Inbox) Stop() {
	in.mu.Lock()
	if !in.started || in.watcher == nil {
		in.mu.Unlock()
		in.inflight.Wait()
		return
	}
	for path, t := range in.pending {
		t.Stop()
		delete(in.pending, path)
	}
	_ = in.watcher.Close()
	in.watcher = nil
	in.started = false
	in.mu.Unlock()
	in.stopOnce.Do(func() { close(in.done) })
	in.inflight.Wait()
}
