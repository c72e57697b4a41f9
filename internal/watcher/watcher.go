package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

var ErrNotStable = errors.New("file size did not settle")

const (
	defaultStablePoll    = 500 * time.Millisecond
	defaultStableTimeout = 5 * time.Second
)

// Watcher reports image files arriving in a directory. Files already present
// at start are reported first. A path is reported once until Release is
// called for it.
type Watcher struct {
	dir  string
	exts []string

	stablePoll    time.Duration
	stableTimeout time.Duration

	mu       sync.Mutex
	inflight map[string]struct{}

	log *zap.Logger
}

func New(dir string, exts []string, log *zap.Logger) *Watcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Watcher{
		dir: dir,
		exts: lo.Map(exts, func(e string, _ int) string {
			return strings.ToLower(e)
		}),
		stablePoll:    defaultStablePoll,
		stableTimeout: defaultStableTimeout,
		inflight:      make(map[string]struct{}),
		log:           log.Named("watcher"),
	}
}

// Run watches until ctx is cancelled, sending ready file paths to out
func (w *Watcher) Run(ctx context.Context, out chan<- string) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create input dir: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fs watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.log.Info("watching", zap.String("dir", w.dir), zap.Strings("extensions", w.exts))

	existing, err := w.scan()
	if err != nil {
		return err
	}
	for _, path := range existing {
		w.submit(ctx, path, out)
	}

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) || !w.Match(ev.Name) {
				continue
			}
			if !w.claim(ev.Name) {
				continue
			}
			wg.Add(1)
			go func(path string) {
				defer wg.Done()
				if err := w.waitStable(ctx, path); err != nil {
					w.log.Warn("file_skipped", zap.String("path", path), zap.Error(err))
					w.Release(path)
					return
				}
				select {
				case out <- path:
				case <-ctx.Done():
				}
			}(ev.Name)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Error("watch_error", zap.Error(err))
		}
	}
}

func (w *Watcher) submit(ctx context.Context, path string, out chan<- string) {
	if !w.claim(path) {
		return
	}
	select {
	case out <- path:
	case <-ctx.Done():
	}
}

// Match reports whether the file has one of the watched extensions
func (w *Watcher) Match(path string) bool {
	return slices.Contains(w.exts, strings.ToLower(filepath.Ext(path)))
}

// Release makes path reportable again once it has been handled
func (w *Watcher) Release(path string) {
	w.mu.Lock()
	delete(w.inflight, path)
	w.mu.Unlock()
}

func (w *Watcher) claim(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.inflight[path]; ok {
		return false
	}
	w.inflight[path] = struct{}{}
	return true
}

// scan lists the matching files already in the directory, sorted by name
func (w *Watcher) scan() ([]string, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, fmt.Errorf("read input dir: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !w.Match(e.Name()) {
			continue
		}
		out = append(out, filepath.Join(w.dir, e.Name()))
	}
	return out, nil
}

// waitStable waits until the file size is non-zero and unchanged between two polls
func (w *Watcher) waitStable(ctx context.Context, path string) error {
	deadline := time.NewTimer(w.stableTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(w.stablePoll)
	defer ticker.Stop()

	last := int64(-1)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return ErrNotStable
		case <-ticker.C:
			fi, err := os.Stat(path)
			if err != nil {
				return err
			}
			size := fi.Size()
			if size > 0 && size == last {
				return nil
			}
			last = size
		}
	}
}
