package sync

import (
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/sidkik/labsync/pkg/fswatch"
)

// Sink receives the tasks produced by a Translator.
type Sink interface {
	Dispatch(Task)
}

// Translator converts filesystem events into tasks.
type Translator struct {
	sink       Sink
	normalizer Normalizer
	filter     *Filter
	log        logrus.FieldLogger

	paused atomic.Bool
}

// NewTranslator returns a Translator that sends accepted tasks to `sink`.
func NewTranslator(sink Sink, normalizer Normalizer, filter *Filter,
	log logrus.FieldLogger) *Translator {
	return &Translator{
		sink:       sink,
		normalizer: normalizer,
		filter:     filter,
		log:        log,
	}
}

// Pause stops events from being translated until Resume is called. Events
// that occur while paused are dropped, not deferred.
func (t *Translator) Pause() {
	t.paused.Store(true)
}

// Resume undoes Pause.
func (t *Translator) Resume() {
	t.paused.Store(false)
}

// Paused returns whether the translator is paused.
func (t *Translator) Paused() bool {
	return t.paused.Load()
}

// Handle translates `ev` and dispatches the resulting task, if any. It panics
// if the event has an unknown Op.
func (t *Translator) Handle(ev fswatch.Event) {
	if t.Paused() {
		return
	}

	if task, ok := t.translate(ev); ok {
		t.sink.Dispatch(task)
	}
}

func (t *Translator) translate(ev fswatch.Event) (Task, bool) {
	switch ev.Op {
	case fswatch.Created:
		return t.create(ev.Path, ev.IsDir)
	case fswatch.Modified:
		if ev.IsDir {
			return Task{}, false
		}
		return t.create(ev.Path, false)
	case fswatch.Deleted:
		return Task{}, false
	case fswatch.Moved:
		src, srcOK := t.accept(ev.Path, ev.IsDir)
		dest, destOK := t.accept(ev.DestPath, ev.IsDir)
		switch {
		case srcOK && destOK:
			return NewMove(src, dest), true
		case destOK:
			// The remote never had the source, so there's nothing to rename.
			return t.create(ev.DestPath, ev.IsDir)
		default:
			return Task{}, false
		}
	default:
		panic(fmt.Sprintf("unexpected filesystem event %s for %q", ev.Op, ev.Path))
	}
}

func (t *Translator) create(fullPath string, isDir bool) (Task, bool) {
	rel, ok := t.accept(fullPath, isDir)
	if !ok {
		return Task{}, false
	}
	if isDir {
		return NewMakeDirectory(rel), true
	}
	return NewUpload(rel), true
}

func (t *Translator) accept(fullPath string, isDir bool) (string, bool) {
	rel := t.normalizer.Normalize(fullPath)
	if !t.filter.Accepts(fullPath, rel, isDir) {
		t.log.WithField("path", rel).Debug("Ignoring filtered path")
		return "", false
	}
	return rel, true
}
