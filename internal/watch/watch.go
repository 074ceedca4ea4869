// Package watch observes the site's input directories and triggers a full
// rebuild once changes settle.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is used when Options.Debounce is not positive.
const DefaultDebounce = 200 * time.Millisecond

// ChangeCallback is called once per settled burst of changes with the
// changed paths, sorted.
type ChangeCallback func(paths []string)

// Options configures Watch.
type Options struct {
	// Roots are the directories to watch recursively. Missing roots are
	// skipped.
	Roots []string
	// Ignore lists directories whose events are dropped, typically the
	// output root when it lives inside a watched tree.
	Ignore   []string
	Debounce time.Duration
}

// Watch runs an fsnotify watcher over opts.Roots until ctx is cancelled.
//
// New directories created at runtime are automatically added to the watch
// list. Dot files and the temp files of atomic writes never trigger a
// rebuild.
func Watch(ctx context.Context, opts Options, logger *slog.Logger, cb ChangeCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	ignore := make([]string, 0, len(opts.Ignore))
	for _, dir := range opts.Ignore {
		if abs, err := filepath.Abs(dir); err == nil {
			ignore = append(ignore, abs)
		}
	}
	skip := func(path string) bool {
		if strings.HasPrefix(filepath.Base(path), ".") {
			return true
		}
		for _, dir := range ignore {
			if path == dir || strings.HasPrefix(path, dir+string(os.PathSeparator)) {
				return true
			}
		}
		return false
	}

	for _, root := range opts.Roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			return err
		}
		if _, err := os.Stat(abs); os.IsNotExist(err) {
			logger.Debug("watcher: root missing, skipped", slog.String("root", abs))
			continue
		}
		if err := addDirsRecursive(w, abs, skip); err != nil {
			return err
		}
		logger.Info("watcher: started", slog.String("root", abs))
	}

	var (
		timer   *time.Timer
		timerCh <-chan time.Time
		pending = make(map[string]struct{})
	)
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(debounce)
			timerCh = timer.C
			return
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(debounce)
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-timerCh:
			if len(pending) == 0 {
				continue
			}
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			sort.Strings(paths)
			clear(pending)
			logger.Debug("watcher: changes settled", slog.Int("paths", len(paths)))
			if cb != nil {
				cb(paths)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if skip(ev.Name) || ev.Op == fsnotify.Chmod {
				continue
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name, skip); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					} else {
						logger.Debug("watcher: watching new dir", slog.String("path", ev.Name))
					}
				}
			}

			pending[ev.Name] = struct{}{}
			schedule()

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string, skip func(string) bool) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && skip(path) {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}
