// Package watcher notifies a callback when a file is rewritten.
package watcher

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/fsnotify/fsnotify"
	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("peertrust/watcher")

// DefaultDebounce is the quiet period after the last event before onChange runs
const DefaultDebounce = 500 * time.Millisecond

// Watcher watches a file for changes
type Watcher struct {
	path     string
	onChange func()
	debounce time.Duration
	clock    clock.Clock
}

// New creates a new file watcher
func New(path string, onChange func()) *Watcher {
	return &Watcher{
		path:     path,
		onChange: onChange,
		debounce: DefaultDebounce,
		clock:    clock.New(),
	}
}

// WithDebounce sets the debounce duration
func (w *Watcher) WithDebounce(d time.Duration) *Watcher {
	w.debounce = d
	return w
}

// WithClock sets the clock used for debouncing
func (w *Watcher) WithClock(c clock.Clock) *Watcher {
	w.clock = c
	return w
}

// Watch blocks until ctx is cancelled, calling onChange once per burst of
// writes to the file
func (w *Watcher) Watch(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	// Watch the directory so editors that replace the file are still seen
	dir := filepath.Dir(w.path)
	filename := filepath.Base(w.path)
	if err := fw.Add(dir); err != nil {
		return err
	}

	log.Infof("Watching %s for changes", w.path)

	var (
		mu    sync.Mutex
		timer *clock.Timer
	)
	stop := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
	}
	defer stop()

	for {
		select {
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != filename {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			mu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timer = w.clock.AfterFunc(w.debounce, func() {
				log.Infof("File changed: %s", w.path)
				w.onChange()
			})
			mu.Unlock()

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.Warnf("Watcher error: %v", err)

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
