package listen

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/labsync/pkg/config"
	"github.com/sidkik/labsync/pkg/errors"
	"github.com/sidkik/labsync/pkg/session"
)

func TestRunConfigErrors(t *testing.T) {
	dir := t.TempDir()
	noServers := filepath.Join(dir, "no-servers.json")
	require.NoError(t, os.WriteFile(noServers, []byte(`{"remote_path": "/srv"}`), 0644))

	tests := []struct {
		name       string
		configPath string
		expMsg     string
	}{
		{
			name:       "Missing",
			configPath: filepath.Join(dir, "missing.json"),
			expMsg: "Configuration not found at \"" + filepath.Join(dir, "missing.json") +
				"\". Run `labsync init` to create one.",
		},
		{
			name:       "NoServers",
			configPath: noServers,
			expMsg: "The configuration at \"" + noServers + "\" has no servers. " +
				"Run `labsync init` to add some.",
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			err := run(options{configPath: test.configPath})
			msg, ok := errors.GetFriendlyMessage(err)
			assert.True(t, ok)
			assert.Equal(t, test.expMsg, msg)
		})
	}
}

func TestRunSessionOptions(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), config.DefaultPath)
	require.NoError(t, os.WriteFile(configPath, []byte(`{"servers": {"gpu1": {}}}`), 0644))

	var gotConfig config.Config
	var gotOpts session.Options
	newSession = func(cfg config.Config, opts session.Options) (*session.Session, error) {
		gotConfig = cfg
		gotOpts = opts
		return nil, assert.AnError
	}
	isTerminal = func() bool { return true }

	err := run(options{
		configPath:    configPath,
		root:          "/data",
		remoteSubPath: "exp/run1",
		noClear:       true,
	})
	assert.Equal(t, assert.AnError, errors.RootCause(err))

	assert.Contains(t, gotConfig.Servers, "gpu1")
	assert.Equal(t, "/data", gotOpts.Root)
	assert.Equal(t, "exp/run1", gotOpts.RemoteSubPath)
	assert.False(t, gotOpts.ClearScreen)
	assert.NotNil(t, gotOpts.Logger)
}

func TestFlags(t *testing.T) {
	cmd := New()
	assert.NoError(t, cmd.ParseFlags([]string{"--config", "other.yaml", "-p", "sub", "--no-clear"}))

	path, err := cmd.Flags().GetString("config")
	assert.NoError(t, err)
	assert.Equal(t, "other.yaml", path)

	sub, err := cmd.Flags().GetString("path")
	assert.NoError(t, err)
	assert.Equal(t, "sub", sub)
}
