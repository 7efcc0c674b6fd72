// Package watch notifies about changes to a set of files.
package watch

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// DefaultDebounce collapses the burst of events a single save produces.
const DefaultDebounce = 200 * time.Millisecond

// Watcher calls a function when one of its files is written or replaced.
// Parent directories are watched so editors that save by rename are seen.
// Entries may be doublestar patterns such as "notes/**/*.md"; files created
// later in an already watched directory match too.
type Watcher struct {
	watcher  *fsnotify.Watcher
	files    map[string]struct{}
	patterns []string
	onChange func(path string)
	debounce time.Duration

	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
	mu      sync.Mutex

	pending map[string]*time.Timer
}

// NewWatcher watches files and calls onChange, at most once per debounce
// window per file, from the watcher's goroutine.
func NewWatcher(files []string, onChange func(path string)) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	watched := make(map[string]struct{}, len(files))
	dirs := make(map[string]struct{})
	var patterns []string
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			w.Close()
			return nil, err
		}
		if !hasMeta(abs) {
			watched[abs] = struct{}{}
			dirs[filepath.Dir(abs)] = struct{}{}
			continue
		}

		patterns = append(patterns, filepath.ToSlash(abs))
		base, _ := doublestar.SplitPattern(filepath.ToSlash(abs))
		dirs[filepath.FromSlash(base)] = struct{}{}
		matches, err := doublestar.FilepathGlob(abs, doublestar.WithFilesOnly())
		if err != nil {
			w.Close()
			return nil, fmt.Errorf("bad pattern %s: %w", f, err)
		}
		for _, m := range matches {
			dirs[filepath.Dir(m)] = struct{}{}
		}
	}
	for dir := range dirs {
		if err := w.Add(dir); err != nil {
			w.Close()
			return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}

	log.Debug().Int("files", len(watched)).Int("patterns", len(patterns)).Int("dirs", len(dirs)).Msg("file watcher initialized")

	return &Watcher{
		watcher:  w,
		files:    watched,
		patterns: patterns,
		onChange: onChange,
		debounce: DefaultDebounce,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		pending:  make(map[string]*time.Timer),
	}, nil
}

// Start begins watching.
func (w *Watcher) Start() {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()
	go w.run()
}

func (w *Watcher) run() {
	defer close(w.doneCh)

	for {
		select {
		case <-w.stopCh:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if name := filepath.Clean(ev.Name); w.matches(name) {
				w.schedule(name)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("file watcher error")
		}
	}
}

func hasMeta(path string) bool {
	return strings.ContainsAny(path, "*?[{")
}

func (w *Watcher) matches(path string) bool {
	if _, ok := w.files[path]; ok {
		return true
	}
	slashed := filepath.ToSlash(path)
	for _, p := range w.patterns {
		if ok, _ := doublestar.Match(p, slashed); ok {
			return true
		}
	}
	return false
}

func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[path]; ok {
		t.Reset(w.debounce)
		return
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()

		select {
		case <-w.stopCh:
			return
		default:
		}
		log.Debug().Str("file", path).Msg("file modified")
		w.onChange(path)
	})
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	started := w.started
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()

	select {
	case <-w.stopCh:
	default:
		close(w.stopCh)
	}

	if started {
		<-w.doneCh
	}

	return w.watcher.Close()
}
