package sync

import (
	"fmt"
	"testing"

	"github.com/jonboulle/clockwork"
	logrusTest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/labsync/pkg/config"
	"github.com/sidkik/labsync/pkg/fswatch"
	"github.com/sidkik/labsync/pkg/remote/mocks"
)

type recordingSink struct {
	tasks []Task
}

func (s *recordingSink) Dispatch(task Task) {
	s.tasks = append(s.tasks, task)
}

func newTestTranslator(t *testing.T, exclude ...string) (*Translator, *recordingSink) {
	normalizer, err := NewNormalizer("/root")
	require.NoError(t, err)

	filter, err := NewFilter(nil, exclude, []string{`\.swp$`})
	require.NoError(t, err)

	log, _ := logrusTest.NewNullLogger()
	sink := &recordingSink{}
	return NewTranslator(sink, normalizer, filter, log), sink
}

func TestTranslate(t *testing.T) {
	tests := []struct {
		name     string
		event    fswatch.Event
		expTasks []Task
	}{
		{
			name:     "CreateFile",
			event:    fswatch.Event{Op: fswatch.Created, Path: "/root/data/x.txt"},
			expTasks: []Task{NewUpload("data/x.txt")},
		},
		{
			name:     "CreateDirectory",
			event:    fswatch.Event{Op: fswatch.Created, IsDir: true, Path: "/root/data/new"},
			expTasks: []Task{NewMakeDirectory("data/new")},
		},
		{
			name:     "ModifyFile",
			event:    fswatch.Event{Op: fswatch.Modified, Path: "/root/train.py"},
			expTasks: []Task{NewUpload("train.py")},
		},
		{
			name:  "ModifyDirectory",
			event: fswatch.Event{Op: fswatch.Modified, IsDir: true, Path: "/root/data"},
		},
		{
			name:  "DeleteFile",
			event: fswatch.Event{Op: fswatch.Deleted, Path: "/root/data/x.txt"},
		},
		{
			name:  "DeleteDirectory",
			event: fswatch.Event{Op: fswatch.Deleted, IsDir: true, Path: "/root/data"},
		},
		{
			name: "MoveFile",
			event: fswatch.Event{Op: fswatch.Moved, Path: "/root/old.txt",
				DestPath: "/root/new.txt"},
			expTasks: []Task{NewMove("old.txt", "new.txt")},
		},
		{
			name: "MoveDirectory",
			event: fswatch.Event{Op: fswatch.Moved, IsDir: true, Path: "/root/a",
				DestPath: "/root/b/a"},
			expTasks: []Task{NewMove("a", "b/a")},
		},
		{
			name: "MoveFromIgnoredPath",
			event: fswatch.Event{Op: fswatch.Moved, Path: "/root/.x.swp",
				DestPath: "/root/x.txt"},
			expTasks: []Task{NewUpload("x.txt")},
		},
		{
			name: "MoveDirectoryFromIgnoredPath",
			event: fswatch.Event{Op: fswatch.Moved, IsDir: true, Path: "/root/tmp/out",
				DestPath: "/root/out"},
			expTasks: []Task{NewMakeDirectory("out")},
		},
		{
			name: "MoveToIgnoredPath",
			event: fswatch.Event{Op: fswatch.Moved, Path: "/root/x.txt",
				DestPath: "/root/x.txt.swp"},
		},
		{
			name:  "CreateIgnoredByGlob",
			event: fswatch.Event{Op: fswatch.Created, Path: "/root/src/__pycache__/a.pyc"},
		},
		{
			name:  "CreateIgnoredByRegex",
			event: fswatch.Event{Op: fswatch.Created, Path: "/root/.train.py.swp"},
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			translator, sink := newTestTranslator(t, "__pycache__", "tmp")
			translator.Handle(test.event)
			assert.Equal(t, test.expTasks, sink.tasks)
		})
	}
}

func TestTranslateIncludePatterns(t *testing.T) {
	normalizer, err := NewNormalizer("/root")
	require.NoError(t, err)
	filter, err := NewFilter([]string{"*.py"}, []string{"__pycache__"}, nil)
	require.NoError(t, err)

	log, _ := logrusTest.NewNullLogger()
	sink := &recordingSink{}
	translator := NewTranslator(sink, normalizer, filter, log)

	events := []fswatch.Event{
		{Op: fswatch.Moved, IsDir: true, Path: "/root/src", DestPath: "/root/lib"},
		{Op: fswatch.Created, IsDir: true, Path: "/root/pkg"},
		{Op: fswatch.Created, Path: "/root/pkg/model.py"},
		{Op: fswatch.Created, Path: "/root/pkg/notes.md"},
		{Op: fswatch.Created, IsDir: true, Path: "/root/pkg/__pycache__"},
	}
	for _, ev := range events {
		translator.Handle(ev)
	}

	assert.Equal(t, []Task{
		NewMove("src", "lib"),
		NewMakeDirectory("pkg"),
		NewUpload("pkg/model.py"),
	}, sink.tasks)
}

func TestTranslateIntoDispatcher(t *testing.T) {
	normalizer, err := NewNormalizer("/root")
	require.NoError(t, err)
	filter, err := NewFilter(nil, nil, nil)
	require.NoError(t, err)

	log, _ := logrusTest.NewNullLogger()
	a := newQueue(config.Destination{Name: "a"}, &mocks.Executor{}, clockwork.NewFakeClock(), log)
	b := newQueue(config.Destination{Name: "b"}, &mocks.Executor{}, clockwork.NewFakeClock(), log)
	translator := NewTranslator(NewDispatcher([]*Queue{a, b}), normalizer, filter, log)

	for i := 0; i < 100; i++ {
		translator.Handle(fswatch.Event{
			Op:    fswatch.Deleted,
			IsDir: i%2 == 0,
			Path:  fmt.Sprintf("/root/data/%d", i),
		})
	}
	assert.Empty(t, a.Pending())
	assert.Empty(t, b.Pending())

	translator.Handle(fswatch.Event{Op: fswatch.Created, Path: "/root/before.txt"})
	translator.Pause()
	translator.Handle(fswatch.Event{Op: fswatch.Created, Path: "/root/during.txt"})

	for _, q := range []*Queue{a, b} {
		assert.Equal(t, []Task{NewUpload("before.txt")}, q.Pending())
	}
}

func TestTranslatePause(t *testing.T) {
	translator, sink := newTestTranslator(t)
	created := fswatch.Event{Op: fswatch.Created, Path: "/root/x.txt"}

	translator.Pause()
	assert.True(t, translator.Paused())
	translator.Handle(created)
	assert.Empty(t, sink.tasks)

	translator.Resume()
	assert.False(t, translator.Paused())
	translator.Handle(created)
	assert.Equal(t, []Task{NewUpload("x.txt")}, sink.tasks)
}

func TestTranslateUnknownOp(t *testing.T) {
	translator, _ := newTestTranslator(t)
	assert.Panics(t, func() {
		translator.Handle(fswatch.Event{Op: fswatch.Op(42), Path: "/root/x"})
	})
}
