// Package watch re-runs work when release config files change on disk.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ChangeFunc receives the sorted names, as passed to New, of the files that changed.
type ChangeFunc func(ctx context.Context, changed []string)

// Watcher watches a fixed set of files below a root directory.
type Watcher struct {
	dir      string
	files    map[string]string
	cooldown time.Duration
	onChange ChangeFunc
	logger   *zap.Logger

	watcher *fsnotify.Watcher
}

// New starts watching the files named, relative to dir, by names. The
// directory holding each file is watched and events are matched on the
// full path. Changes are delivered once no further event arrived for cooldown.
func New(dir string, names []string, cooldown time.Duration, onChange ChangeFunc, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	files := make(map[string]string, len(names))
	dirs := map[string]struct{}{filepath.Clean(dir): {}}
	for _, n := range names {
		full := filepath.Clean(filepath.Join(dir, n))
		files[full] = n
		dirs[filepath.Dir(full)] = struct{}{}
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	for d := range dirs {
		if err := fw.Add(d); err != nil {
			_ = fw.Close()
			return nil, fmt.Errorf("failed to watch %s: %w", d, err)
		}
	}

	return &Watcher{
		dir:      dir,
		files:    files,
		cooldown: cooldown,
		onChange: onChange,
		logger:   logger,
		watcher:  fw,
	}, nil
}

// Run dispatches changes until ctx is cancelled, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	pending := make(map[string]struct{})
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			name, ok := w.match(event)
			if !ok {
				continue
			}
			w.logger.Debug("config changed", zap.String("file", name), zap.String("op", event.Op.String()))
			pending[name] = struct{}{}
			timer.Reset(w.cooldown)

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			changed := make([]string, 0, len(pending))
			for name := range pending {
				changed = append(changed, name)
			}
			sort.Strings(changed)
			clear(pending)
			w.onChange(ctx, changed)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", zap.String("dir", w.dir), zap.Error(err))
		}
	}
}

func (w *Watcher) match(event fsnotify.Event) (string, bool) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return "", false
	}
	name, ok := w.files[filepath.Clean(event.Name)]
	return name, ok
}
