package sync

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	logrusTest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/sidkik/labsync/pkg/config"
	"github.com/sidkik/labsync/pkg/remote"
	"github.com/sidkik/labsync/pkg/remote/mocks"
)

var testDestination = config.Destination{Name: "gpu1", RemoteRoot: "/srv", Host: "gpu1"}

func newTestQueue(executor remote.Executor) (*Queue, *logrusTest.Hook) {
	log, hook := logrusTest.NewNullLogger()
	return newQueue(testDestination, executor, clockwork.NewFakeClock(), log), hook
}

func TestEnqueueDeduplicates(t *testing.T) {
	q, _ := newTestQueue(&mocks.Executor{})

	q.Enqueue(NewUpload("a.txt"))
	q.Enqueue(NewUpload("a.txt"))
	q.Enqueue(NewMakeDirectory("a.txt"))
	q.Enqueue(NewMove("a.txt", "b.txt"))
	q.Enqueue(NewMove("a.txt", "b.txt"))

	assert.Equal(t, []Task{
		NewUpload("a.txt"),
		NewMakeDirectory("a.txt"),
		NewMove("a.txt", "b.txt"),
	}, q.Pending())
	assert.Equal(t, 3, q.Len())
	assert.False(t, q.Idle())
}

func TestEnqueueAfterStartIsNotDuplicate(t *testing.T) {
	executor := &mocks.Executor{}
	executor.On("Upload", testDestination, ".", []string{"a.txt"}).Return(nil)
	q, _ := newTestQueue(executor)

	q.Enqueue(NewUpload("a.txt"))
	assert.True(t, q.processNext())

	// The first upload already ran, so the same path is queued again.
	q.Enqueue(NewUpload("a.txt"))
	assert.Equal(t, []Task{NewUpload("a.txt")}, q.Pending())
}

func TestUploadCoalescing(t *testing.T) {
	executor := &mocks.Executor{}
	executor.On("Upload", testDestination, "data",
		[]string{"data/1.txt", "data/2.txt", "data/3.txt"}).Return(nil).Once()
	executor.On("MakeDirectory", testDestination, "other").Return(nil).Once()
	executor.On("Upload", testDestination, "logs", []string{"logs/a.log"}).Return(nil).Once()
	q, hook := newTestQueue(executor)

	q.Enqueue(NewUpload("data/1.txt"))
	q.Enqueue(NewMakeDirectory("other"))
	q.Enqueue(NewUpload("data/2.txt"))
	q.Enqueue(NewUpload("logs/a.log"))
	q.Enqueue(NewUpload("data/3.txt"))

	assert.True(t, q.processNext())
	assert.Equal(t, []Task{NewMakeDirectory("other"), NewUpload("logs/a.log")}, q.Pending())

	assert.True(t, q.processNext())
	assert.True(t, q.processNext())
	assert.False(t, q.processNext())
	assert.True(t, q.Idle())

	executor.AssertExpectations(t)
	executor.AssertNumberOfCalls(t, "Upload", 2)
	assert.Equal(t, "0 task(s) left", hook.LastEntry().Message)
}

func TestNonUploadsAreNotBatched(t *testing.T) {
	executor := &mocks.Executor{}
	executor.On("MakeDirectory", testDestination, "data/a").Return(nil).Once()
	executor.On("MakeDirectory", testDestination, "data/b").Return(nil).Once()
	executor.On("Move", testDestination, "data/x", "data/y").Return(nil).Once()
	q, _ := newTestQueue(executor)

	q.Enqueue(NewMakeDirectory("data/a"))
	q.Enqueue(NewMakeDirectory("data/b"))
	q.Enqueue(NewMove("data/x", "data/y"))

	assert.True(t, q.processNext())
	assert.Equal(t, 2, q.Len())
	assert.True(t, q.processNext())
	assert.Equal(t, 1, q.Len())
	assert.True(t, q.processNext())
	executor.AssertExpectations(t)
}

func TestUploadMissingDirectory(t *testing.T) {
	missing := remote.MissingDirectoryError{Destination: "gpu1", Dir: "data/new"}
	paths := []string{"data/new/x.txt"}

	tests := []struct {
		name        string
		retryErr    error
		expLogLevel logrus.Level
		expLogMsg   string
	}{
		{
			name:        "RetrySucceeds",
			expLogLevel: logrus.InfoLevel,
			expLogMsg:   "0 task(s) left",
		},
		{
			name:        "RetryFails",
			retryErr:    missing,
			expLogLevel: logrus.ErrorLevel,
			expLogMsg:   "Upload failed after creating the remote directory. Dropping it.",
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			executor := &mocks.Executor{}
			executor.On("Upload", testDestination, "data/new", paths).Return(missing).Once()
			executor.On("MakeDirectory", testDestination, "data/new").Return(nil).Once()
			executor.On("Upload", testDestination, "data/new", paths).Return(test.retryErr).Once()
			q, hook := newTestQueue(executor)

			q.Enqueue(NewUpload("data/new/x.txt"))
			assert.True(t, q.processNext())

			executor.AssertExpectations(t)
			executor.AssertNumberOfCalls(t, "MakeDirectory", 1)
			executor.AssertNumberOfCalls(t, "Upload", 2)
			assert.Empty(t, q.Pending())

			var found bool
			for _, entry := range hook.AllEntries() {
				if entry.Level == test.expLogLevel && entry.Message == test.expLogMsg {
					found = true
				}
			}
			assert.True(t, found, "expected log %q", test.expLogMsg)
		})
	}
}

func TestUploadOtherFailureIsNotRetried(t *testing.T) {
	executor := &mocks.Executor{}
	executor.On("Upload", testDestination, ".", []string{"x.txt"}).Return(assert.AnError).Once()
	q, hook := newTestQueue(executor)

	q.Enqueue(NewUpload("x.txt"))
	assert.True(t, q.processNext())

	executor.AssertExpectations(t)
	executor.AssertNotCalled(t, "MakeDirectory", mock.Anything, mock.Anything)

	entry := hook.AllEntries()[len(hook.AllEntries())-2]
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.Equal(t, "Upload failed", entry.Message)
	assert.Equal(t, "gpu1", entry.Data["destination"])
	assert.Equal(t, "upload x.txt", entry.Data["task"])
}

func TestMoveFailuresAreLogged(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expLevel logrus.Level
	}{
		{"Unsupported", remote.ErrUnsupported, logrus.WarnLevel},
		{"Failed", assert.AnError, logrus.ErrorLevel},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			executor := &mocks.Executor{}
			executor.On("Move", testDestination, "a", "b").Return(test.err).Once()
			executor.On("Upload", testDestination, ".", []string{"c"}).Return(nil).Once()
			q, hook := newTestQueue(executor)

			q.Enqueue(NewMove("a", "b"))
			q.Enqueue(NewUpload("c"))
			assert.True(t, q.processNext())
			assert.Equal(t, test.expLevel, hook.AllEntries()[2].Level)

			// The queue keeps going after the failure.
			assert.True(t, q.processNext())
			executor.AssertExpectations(t)
		})
	}
}

func TestMoveOfUnsyncedSourceUploadsDestination(t *testing.T) {
	tests := []struct {
		name string
		dest string
		dir  string
	}{
		{name: "AtomicSave", dest: "train.py", dir: "."},
		{name: "IntoSubdirectory", dest: "src/train.py", dir: "src"},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			missing := remote.MissingSourceError{Destination: "gpu1", Path: ".train.py.tmp"}
			executor := &mocks.Executor{}
			executor.On("Move", testDestination, ".train.py.tmp", test.dest).Return(missing).Once()
			executor.On("Upload", testDestination, test.dir, []string{test.dest}).Return(nil).Once()
			q, hook := newTestQueue(executor)

			q.Enqueue(NewMove(".train.py.tmp", test.dest))
			assert.True(t, q.processNext())

			executor.AssertExpectations(t)
			for _, entry := range hook.AllEntries() {
				assert.NotEqual(t, logrus.ErrorLevel, entry.Level, entry.Message)
			}
		})
	}
}

func TestExecutorPanicIsRecovered(t *testing.T) {
	executor := &mocks.Executor{}
	executor.On("MakeDirectory", testDestination, "a").Panic("boom")
	q, hook := newTestQueue(executor)

	q.Enqueue(NewMakeDirectory("a"))
	assert.NotPanics(t, func() { q.processNext() })
	assert.True(t, q.Idle())

	var found bool
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.ErrorLevel {
			found = true
		}
	}
	assert.True(t, found)
}

func TestWorker(t *testing.T) {
	uploaded := make(chan string, 2)
	executor := &mocks.Executor{}
	executor.On("Upload", testDestination, ".", mock.Anything).Run(func(args mock.Arguments) {
		uploaded <- args.Get(2).([]string)[0]
	}).Return(nil)

	log, _ := logrusTest.NewNullLogger()
	q := newQueue(testDestination, executor, clockwork.NewRealClock(), log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	q.Start(ctx)

	q.Enqueue(NewUpload("a.txt"))
	assert.Equal(t, "a.txt", waitForUpload(t, uploaded))

	q.Enqueue(NewUpload("b.txt"))
	assert.Equal(t, "b.txt", waitForUpload(t, uploaded))
	executor.AssertNumberOfCalls(t, "Upload", 2)
}

func TestWorkerIdleTick(t *testing.T) {
	uploaded := make(chan string, 1)
	executor := &mocks.Executor{}
	executor.On("Upload", testDestination, ".", []string{"a.txt"}).Run(func(mock.Arguments) {
		uploaded <- "a.txt"
	}).Return(nil)

	log, _ := logrusTest.NewNullLogger()
	clock := clockwork.NewFakeClock()
	q := newQueue(testDestination, executor, clock, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	clock.BlockUntil(1)

	// Add the task without waking the worker, so that only the idle tick can
	// pick it up.
	q.lock.Lock()
	q.pending = append(q.pending, NewUpload("a.txt"))
	q.lock.Unlock()

	clock.Advance(idleInterval)
	assert.Equal(t, "a.txt", waitForUpload(t, uploaded))
}

func waitForUpload(t *testing.T, uploaded chan string) string {
	select {
	case path := <-uploaded:
		return path
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for upload")
		return ""
	}
}
