// Package fswatch recursively watches a directory tree and reports changes as
// Events.
package fswatch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/labsync/pkg/errors"
)

// renameWindow is how long a rename waits for the create that reports its new
// name. fsnotify reports the two halves of a rename separately, and if the
// new name never shows up, the path was moved out of the watched tree.
const renameWindow = 100 * time.Millisecond

// eventBufferSize is the number of events that can be buffered before the
// watcher blocks on the consumer.
const eventBufferSize = 1024

// Mocked out for unit testing.
var (
	fs     = afero.NewOsFs()
	fileID = inode
)

// Watcher reports changes to all files and directories under a root.
type Watcher struct {
	root  string
	clock clockwork.Clock
	log   logrus.FieldLogger

	fsEvents <-chan fsnotify.Event
	fsErrors <-chan error
	add      func(string) error
	remove   func(string) error
	close    func() error

	events chan Event

	// The following fields are only accessed by the event loop.
	dirs           map[string]struct{}
	ids            map[string]uint64
	pendingRename  *fsnotify.Event
	renameDeadline <-chan time.Time

	closeOnce sync.Once
	done      chan struct{}
	stopped   chan struct{}
}

// Watch starts watching `root` and every directory below it.
func Watch(root string, log logrus.FieldLogger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.WithContext(err, "create watcher")
	}

	w := newWatcher(root, clockwork.NewRealClock(), log,
		fsw.Events, fsw.Errors, fsw.Add, fsw.Remove, fsw.Close)
	if err := w.addRecursive(root, false); err != nil {
		// Close the watcher so that we release the file handlers for the
		// previously added paths.
		if err := fsw.Close(); err != nil {
			log.WithError(err).Warn("Failed to close file watcher")
		}
		return nil, errors.WithContext(err, fmt.Sprintf("watch %q", root))
	}

	go w.run()
	return w, nil
}

func newWatcher(root string, clock clockwork.Clock, log logrus.FieldLogger,
	fsEvents <-chan fsnotify.Event, fsErrors <-chan error,
	add, remove func(string) error, closeFn func() error) *Watcher {
	return &Watcher{
		root:     root,
		clock:    clock,
		log:      log,
		fsEvents: fsEvents,
		fsErrors: fsErrors,
		add:      add,
		remove:   remove,
		close:    closeFn,
		events:   make(chan Event, eventBufferSize),
		dirs:     map[string]struct{}{},
		ids:      map[string]uint64{},
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// Events returns the channel that changes are reported on. It's closed after
// the watcher is closed.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Close stops the watcher and releases the underlying OS resources.
func (w *Watcher) Close() (err error) {
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.close()
		<-w.stopped
		close(w.events)
	})
	return err
}

func (w *Watcher) run() {
	defer close(w.stopped)
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsEvents:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsErrors:
			if !ok {
				return
			}
			w.log.WithError(err).Warn("File watcher error")
		case <-w.renameDeadline:
			w.flushRename()
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	switch {
	case ev.Has(fsnotify.Create):
		w.handleCreate(ev.Name)
	case ev.Has(fsnotify.Rename):
		w.flushRename()
		w.pendingRename = &ev
		w.renameDeadline = w.clock.After(renameWindow)
	case ev.Has(fsnotify.Remove):
		isDir := w.forget(ev.Name)
		w.emit(Event{Op: Deleted, IsDir: isDir, Path: ev.Name})
	case ev.Has(fsnotify.Write), ev.Has(fsnotify.Chmod):
		fi, ok := w.stat(ev.Name)
		if !ok {
			return
		}
		w.record(ev.Name, fi)
		w.emit(Event{Op: Modified, IsDir: fi.IsDir(), Path: ev.Name})
	}
}

func (w *Watcher) handleCreate(name string) {
	fi, ok := w.stat(name)
	if !ok {
		return
	}
	isDir := fi.IsDir()

	if src, ok := w.matchRename(name, fi); ok {
		w.forget(src)
		w.record(name, fi)
		w.emit(Event{Op: Moved, IsDir: isDir, Path: src, DestPath: name})
		if isDir {
			// The remote rename carries the directory's contents along, so
			// they don't need their own events.
			w.watchNewDirectory(name, false)
		}
		return
	}

	w.record(name, fi)
	w.emit(Event{Op: Created, IsDir: isDir, Path: name})
	if isDir {
		w.watchNewDirectory(name, true)
	}
}

// matchRename consumes the pending rename if `name`, described by `fi`, is
// its new location. A rename keeps the inode, so when both inodes are known
// they must match. Otherwise, the rename must either keep the directory or
// keep the base name.
func (w *Watcher) matchRename(name string, fi os.FileInfo) (string, bool) {
	if w.pendingRename == nil {
		return "", false
	}

	src := w.pendingRename.Name
	srcID, srcKnown := w.ids[src]
	destID, destKnown := fileID(fi)
	switch {
	case srcKnown && destKnown:
		if srcID != destID {
			return "", false
		}
	case filepath.Dir(src) != filepath.Dir(name) && filepath.Base(src) != filepath.Base(name):
		return "", false
	}

	w.pendingRename = nil
	w.renameDeadline = nil
	return src, true
}

// flushRename reports a pending rename whose new location never showed up as
// a deletion.
func (w *Watcher) flushRename() {
	if w.pendingRename == nil {
		return
	}

	name := w.pendingRename.Name
	w.pendingRename = nil
	w.renameDeadline = nil

	isDir := w.forget(name)
	w.emit(Event{Op: Deleted, IsDir: isDir, Path: name})
}

func (w *Watcher) watchNewDirectory(dir string, emitChildren bool) {
	if err := w.addRecursive(dir, emitChildren); err != nil {
		w.log.WithError(err).WithField("path", dir).Warn("Failed to watch new directory")
	}
}

// addRecursive watches `dir` and all directories below it. If `emitChildren`
// is set, a Created event is sent for everything below `dir`, since those
// paths may have been created before the watch was registered.
func (w *Watcher) addRecursive(dir string, emitChildren bool) error {
	return afero.Walk(fs, dir, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			// Paths can be removed while we're walking.
			if os.IsNotExist(err) {
				return nil
			}
			return errors.WithContext(err, "walk error")
		}

		if fi.IsDir() {
			if err := w.add(path); err != nil {
				if strings.Contains(err.Error(), "too many open files") {
					return errors.NewFriendlyError(tooManyFilesTemplate, dir)
				}
				return errors.WithContext(err, fmt.Sprintf("watch %q", path))
			}
			w.dirs[path] = struct{}{}
		}
		w.record(path, fi)

		if emitChildren && path != dir {
			w.emit(Event{Op: Created, IsDir: fi.IsDir(), Path: path})
		}
		return nil
	})
}

// forget stops tracking `path` and everything below it. It returns whether
// `path` was a watched directory.
func (w *Watcher) forget(path string) bool {
	delete(w.ids, path)
	if _, ok := w.dirs[path]; !ok {
		return false
	}

	prefix := path + string(filepath.Separator)
	for dir := range w.dirs {
		if dir == path || strings.HasPrefix(dir, prefix) {
			delete(w.dirs, dir)

			// The OS usually drops the watch on its own, in which case this
			// fails harmlessly.
			_ = w.remove(dir)
		}
	}
	for p := range w.ids {
		if strings.HasPrefix(p, prefix) {
			delete(w.ids, p)
		}
	}
	return true
}

// record remembers the inode of `path` so that a later rename of it can be
// recognized.
func (w *Watcher) record(path string, fi os.FileInfo) {
	if id, ok := fileID(fi); ok {
		w.ids[path] = id
	}
}

func (w *Watcher) stat(path string) (os.FileInfo, bool) {
	fi, err := fs.Stat(path)
	if err != nil {
		// Temporary files are often gone by the time we get to them.
		if !os.IsNotExist(err) {
			w.log.WithError(err).WithField("path", path).Debug("Failed to stat changed path")
		}
		return nil, false
	}
	return fi, true
}

func (w *Watcher) emit(ev Event) {
	select {
	case w.events <- ev:
	case <-w.done:
	}
}

const tooManyFilesTemplate = "Failed to watch %q because the operating system's " +
	"limit on watched files was reached.\n" +
	"Exclude large directories with `ignore_patterns`, or raise the limit " +
	"(e.g. `sysctl fs.inotify.max_user_watches` on Linux)."
