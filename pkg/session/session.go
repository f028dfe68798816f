// Package session ties together the file watcher, the event translator and
// the per-destination queues for the lifetime of a `labsync listen` run.
package session

import (
	"context"
	goSync "sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/sidkik/labsync/pkg/config"
	"github.com/sidkik/labsync/pkg/errors"
	"github.com/sidkik/labsync/pkg/fswatch"
	"github.com/sidkik/labsync/pkg/remote"
	"github.com/sidkik/labsync/pkg/sync"
)

// statusInterval is how often the session reports that all destinations are
// up to date.
const statusInterval = 10 * time.Second

// Options customizes a Session.
type Options struct {
	// Root overrides the configured local path.
	Root string

	// RemoteSubPath is appended to every destination's remote root.
	RemoteSubPath string

	// Executor defaults to scp.
	Executor remote.Executor

	// ClearScreen clears the terminal before each status report.
	ClearScreen bool

	Logger *logrus.Logger
}

// eventSource is implemented by fswatch.Watcher.
type eventSource interface {
	Events() <-chan fswatch.Event
	Close() error
}

// Session mirrors changes under a local root to every enabled destination.
type Session struct {
	id         string
	root       string
	queues     []*sync.Queue
	dispatcher *sync.Dispatcher
	translator *sync.Translator
	log        logrus.FieldLogger

	clock       clockwork.Clock
	clearScreen func()
	watch       func(root string, log logrus.FieldLogger) (eventSource, error)

	lock    goSync.Mutex
	running bool
}

// New creates a session for the enabled servers in `cfg`. It fails if the
// configured patterns are invalid, or if no server is enabled.
func New(cfg config.Config, opts Options) (*Session, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	id := uuid.New().String()
	log := logger.WithField("session", id[:8])

	root := opts.Root
	if root == "" {
		root = cfg.LocalPath
	}
	if root == "" {
		root = "."
	}

	normalizer, err := sync.NewNormalizer(root)
	if err != nil {
		return nil, err
	}

	filter, err := sync.NewFilter(cfg.Patterns, cfg.IgnorePatterns, cfg.IgnorePatternsRe)
	if err != nil {
		return nil, errors.WithContext(err, "compile patterns")
	}

	executor := opts.Executor
	if executor == nil {
		executor = remote.NewSCP(normalizer.Root(), log)
	}

	var queues []*sync.Queue
	for _, dst := range cfg.Destinations(opts.RemoteSubPath) {
		log.WithField("destination", dst.Name).Infof("Syncing to %s:%s", dst.Address(), dst.RemoteRoot)
		queues = append(queues, sync.NewQueue(dst, executor, log))
	}
	if len(queues) == 0 {
		return nil, errors.NewFriendlyError("All servers in %q are disabled. "+
			"Set `enable` to true for at least one of them.", cfg.GetPath())
	}

	dispatcher := sync.NewDispatcher(queues)
	s := &Session{
		id:          id,
		root:        normalizer.Root(),
		queues:      queues,
		dispatcher:  dispatcher,
		translator:  sync.NewTranslator(dispatcher, normalizer, filter, log),
		log:         log,
		clock:       clockwork.NewRealClock(),
		clearScreen: func() {},
		watch: func(root string, log logrus.FieldLogger) (eventSource, error) {
			return fswatch.Watch(root, log)
		},
	}
	if opts.ClearScreen {
		s.clearScreen = clearTerminal
	}
	return s, nil
}

// ID returns the unique identifier of the session.
func (s *Session) ID() string {
	return s.id
}

// Root returns the absolute path of the watched directory.
func (s *Session) Root() string {
	return s.root
}

// Destinations returns the names of the destinations being synced to.
func (s *Session) Destinations() (names []string) {
	for _, q := range s.queues {
		names = append(names, q.Destination().Name)
	}
	return names
}

// Pause stops local changes from being queued. Changes made while paused are
// never synced.
func (s *Session) Pause() {
	s.translator.Pause()
	s.log.Info("Paused syncing")
}

// Resume undoes Pause.
func (s *Session) Resume() {
	s.translator.Resume()
	s.log.Info("Resumed syncing")
}

// Paused returns whether syncing is paused.
func (s *Session) Paused() bool {
	return s.translator.Paused()
}

// Run syncs changes until `ctx` is cancelled. A session can only be run once.
// Tasks that are still queued when Run returns are abandoned.
func (s *Session) Run(ctx context.Context) error {
	s.lock.Lock()
	if s.running {
		s.lock.Unlock()
		return errors.New("session already started")
	}
	s.running = true
	s.lock.Unlock()

	s.dispatcher.Start(ctx)

	watcher, err := s.watch(s.root, s.log)
	if err != nil {
		return errors.WithContext(err, "watch files")
	}
	s.log.Infof("Listening for changes in %s", s.root)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for ev := range watcher.Events() {
			s.translator.Handle(ev)
		}
		if ctx.Err() == nil {
			return errors.New("file watcher stopped unexpectedly")
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		return watcher.Close()
	})
	g.Go(func() error {
		s.reportStatus(ctx)
		return nil
	})
	return g.Wait()
}

// reportStatus logs when every queue has drained. It only reports again once
// there's been new activity.
func (s *Session) reportStatus(ctx context.Context) {
	var reported bool
	var reportedActivity time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(statusInterval):
		}

		if !s.dispatcher.Idle() {
			continue
		}

		activity := s.lastActivity()
		if reported && activity.Equal(reportedActivity) {
			continue
		}

		reported = true
		reportedActivity = activity
		s.clearScreen()
		s.log.Info("Up-to-date")
	}
}

func (s *Session) lastActivity() (last time.Time) {
	for _, q := range s.queues {
		if activity := q.LastActivity(); activity.After(last) {
			last = activity
		}
	}
	return last
}
