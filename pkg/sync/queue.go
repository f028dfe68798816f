package sync

import (
	"context"
	"fmt"
	"path"
	"strings"
	goSync "sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/sidkik/labsync/pkg/config"
	"github.com/sidkik/labsync/pkg/errors"
	"github.com/sidkik/labsync/pkg/remote"
)

// idleInterval is how often an idle worker checks for work in case it missed
// a wake up.
const idleInterval = 50 * time.Millisecond

// Queue holds the pending tasks of a single destination, and executes them
// one at a time in a dedicated worker.
type Queue struct {
	dst      config.Destination
	executor remote.Executor
	clock    clockwork.Clock
	log      logrus.FieldLogger

	lock         goSync.Mutex
	pending      []Task
	busy         bool
	lastActivity time.Time

	wake  chan struct{}
	start goSync.Once
}

// NewQueue returns an idle queue for `dst`. The worker isn't started until
// Start is called.
func NewQueue(dst config.Destination, executor remote.Executor, log logrus.FieldLogger) *Queue {
	return newQueue(dst, executor, clockwork.NewRealClock(), log)
}

func newQueue(dst config.Destination, executor remote.Executor, clock clockwork.Clock,
	log logrus.FieldLogger) *Queue {
	return &Queue{
		dst:      dst,
		executor: executor,
		clock:    clock,
		log:      log.WithField("destination", dst.Name),
		wake:     make(chan struct{}, 1),
	}
}

// Destination returns the destination that the queue syncs to.
func (q *Queue) Destination() config.Destination {
	return q.dst
}

// Enqueue adds `task` to the end of the queue, unless an equal task is
// already pending. It never blocks on the worker.
func (q *Queue) Enqueue(task Task) {
	q.lock.Lock()
	for _, pending := range q.pending {
		if pending == task {
			q.lock.Unlock()
			return
		}
	}
	q.pending = append(q.pending, task)
	q.lastActivity = q.clock.Now()
	q.lock.Unlock()

	q.log.WithField("task", task.String()).Info("Queued")
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Pending returns a copy of the tasks that haven't been started yet.
func (q *Queue) Pending() []Task {
	q.lock.Lock()
	defer q.lock.Unlock()
	return append([]Task(nil), q.pending...)
}

// Len returns the number of pending tasks.
func (q *Queue) Len() int {
	q.lock.Lock()
	defer q.lock.Unlock()
	return len(q.pending)
}

// Idle returns whether the queue is empty and no task is executing.
func (q *Queue) Idle() bool {
	q.lock.Lock()
	defer q.lock.Unlock()
	return len(q.pending) == 0 && !q.busy
}

// LastActivity returns when a task was last queued or started.
func (q *Queue) LastActivity() time.Time {
	q.lock.Lock()
	defer q.lock.Unlock()
	return q.lastActivity
}

// Start starts the worker. Only the first call has an effect. The worker
// exits after its current task once `ctx` is cancelled.
func (q *Queue) Start(ctx context.Context) {
	q.start.Do(func() {
		go q.run(ctx)
	})
}

func (q *Queue) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		if q.processNext() {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-q.wake:
		case <-q.clock.After(idleInterval):
		}
	}
}

// processNext executes the task at the head of the queue. It returns false if
// the queue was empty.
func (q *Queue) processNext() bool {
	task, batch, ok := q.pop()
	if !ok {
		return false
	}

	q.execute(task, batch)

	q.lock.Lock()
	q.busy = false
	left := len(q.pending)
	q.lock.Unlock()

	q.log.Infof("%d task(s) left", left)
	return true
}

// pop removes the head of the queue. If the head is an upload, every other
// pending upload into the same directory is removed as well, and returned
// in `batch` in queue order.
func (q *Queue) pop() (head Task, batch []string, ok bool) {
	q.lock.Lock()
	defer q.lock.Unlock()

	if len(q.pending) == 0 {
		return Task{}, nil, false
	}

	head = q.pending[0]
	var remaining []Task
	if head.Kind == Upload {
		batch = []string{head.Path}
		for _, task := range q.pending[1:] {
			if task.Kind == Upload && task.parent() == head.parent() {
				batch = append(batch, task.Path)
			} else {
				remaining = append(remaining, task)
			}
		}
	} else {
		remaining = append(remaining, q.pending[1:]...)
	}

	q.pending = remaining
	q.busy = true
	q.lastActivity = q.clock.Now()
	return head, batch, true
}

func (q *Queue) execute(task Task, batch []string) {
	log := q.log.WithField("task", task.String())
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("Recovered from panic while executing task: %v", r)
		}
	}()

	switch task.Kind {
	case Upload:
		q.upload(batch, log)
	case MakeDirectory:
		if err := q.executor.MakeDirectory(q.dst, task.Path); err != nil {
			log.WithError(err).Error("Failed to create remote directory")
		}
	case Move:
		err := q.executor.Move(q.dst, task.SourcePath, task.DestPath)
		var missingSrc remote.MissingSourceError
		switch {
		case err == nil:
		case errors.As(err, &missingSrc):
			// Atomic saves rename a temporary file that was never uploaded
			// over the real one.
			log.Info("Nothing to rename remotely. Uploading the new path instead.")
			q.upload([]string{task.DestPath}, log)
		case errors.Is(err, remote.ErrUnsupported):
			log.Warn("Remote renames aren't supported. Skipping.")
		default:
			log.WithError(err).Error("Failed to move remote path")
		}
	default:
		panic(fmt.Sprintf("unknown task kind %s", task.Kind))
	}
}

func (q *Queue) upload(paths []string, log logrus.FieldLogger) {
	dir := path.Dir(paths[0])
	log.Infof("Uploading %s", strings.Join(paths, ", "))

	err := q.executor.Upload(q.dst, dir, paths)
	if err == nil {
		return
	}

	var missingDir remote.MissingDirectoryError
	if !errors.As(err, &missingDir) {
		log.WithError(err).Error("Upload failed")
		return
	}

	log.WithField("dir", dir).Info("Remote directory is missing. Creating it and retrying.")
	if err := q.executor.MakeDirectory(q.dst, dir); err != nil {
		log.WithError(err).Warn("Failed to create remote directory")
	}

	if err := q.executor.Upload(q.dst, dir, paths); err != nil {
		log.WithError(err).Error("Upload failed after creating the remote directory. Dropping it.")
	}
}
