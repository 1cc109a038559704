package metadatafile

import (
	"fmt"
	"path"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
)

const retryDuration = time.Second

// Reloader watches a metadata file and delivers a freshly loaded Table
// whenever the file changes. Editors that replace the file via rename are
// handled by also watching the containing directory.
type Reloader struct {
	watcher  *fsnotify.Watcher
	loggers  ldlog.Loggers
	path     string
	absPath  string
	onChange func(Table)
	closeCh  chan struct{}
}

// NewReloader loads the file once, delivers the initial Table to onChange,
// and keeps watching. onChange is called from a single background goroutine.
// Call Close to stop watching.
func NewReloader(filePath string, loggers ldlog.Loggers, onChange func(Table)) (*Reloader, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("unable to create file watcher: %w", err)
	}
	r := &Reloader{
		watcher:  watcher,
		loggers:  loggers,
		path:     filePath,
		onChange: onChange,
		closeCh:  make(chan struct{}),
	}
	go r.run()
	return r, nil
}

// Close stops the watcher. No onChange calls are made after Close returns.
func (r *Reloader) Close() {
	close(r.closeCh)
}

func (r *Reloader) run() {
	retryCh := make(chan struct{}, 1)
	scheduleRetry := func() {
		time.AfterFunc(retryDuration, func() {
			select {
			case retryCh <- struct{}{}: // one pending retry is enough
			default:
			}
		})
	}
	for {
		if err := r.setupWatch(); err != nil {
			r.loggers.Error(err.Error())
			scheduleRetry()
		}

		// Reload before waiting so that a change racing the watch setup is
		// not missed.
		r.reload()

		if quit := r.waitForEvents(retryCh); quit {
			return
		}
	}
}

func (r *Reloader) setupWatch() error {
	dirPath := path.Dir(r.path)
	realDirPath, err := filepath.EvalSymlinks(dirPath)
	if err != nil {
		return fmt.Errorf("unable to evaluate symlinks for %q: %w", dirPath, err)
	}
	r.absPath = path.Join(realDirPath, path.Base(r.path))
	if err := r.watcher.Add(r.absPath); err != nil {
		return fmt.Errorf("unable to watch %q: %w", r.absPath, err)
	}
	if err := r.watcher.Add(realDirPath); err != nil {
		return fmt.Errorf("unable to watch %q: %w", realDirPath, err)
	}
	return nil
}

func (r *Reloader) reload() {
	table, err := Load(r.path)
	if err != nil {
		r.loggers.Errorf("Metadata reload failed: %s", err)
		return
	}
	r.onChange(table)
}

func (r *Reloader) waitForEvents(retryCh <-chan struct{}) bool {
	for {
		select {
		case <-r.closeCh:
			if err := r.watcher.Close(); err != nil {
				r.loggers.Errorf("Error closing watcher: %s", err)
			}
			return true
		case event := <-r.watcher.Events:
			if event.Name != r.absPath {
				break
			}
			r.consumeExtraEvents()
			return false
		case err := <-r.watcher.Errors:
			r.loggers.Errorf("Watcher error: %s", err)
		case <-retryCh:
			consumeExtraRetries(retryCh)
			return false
		}
	}
}

func (r *Reloader) consumeExtraEvents() {
	for {
		select {
		case <-r.watcher.Events:
		default:
			return
		}
	}
}

func consumeExtraRetries(retryCh <-chan struct{}) {
	for {
		select {
		case <-retryCh:
		default:
			return
		}
	}
}
