package config

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/ghodss/yaml"
	goVersion "github.com/hashicorp/go-version"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"

	"github.com/sidkik/labsync/pkg/errors"
	"github.com/sidkik/labsync/pkg/version"
)

// DefaultPath is the config file that's read when no path is given on the
// command line. It's the file written by `labsync init`.
const DefaultPath = ".labsync.config.json"

// parseConfigErrTemplate is a template for when the CLI fails to parse the
// configuration file. This can happen for a multitude of reasons, including
// extraneous fields and incorrect field types. However, the yaml library
// constructs errors in a way that loses context, and so we can only pass the
// error message on.
const parseConfigErrTemplate = "Configuration file could not be parsed. " +
	"Please review %q.\n" +
	"Common pitfalls include:\n" +
	" - Using the wrong types for fields\n" +
	" - Having extra fields inside the config file\n\n" +
	"For reference, here is the error from the parser:\n" +
	"%s"

// Mocked out for unit testing.
var (
	homedirExpand  = homedir.Expand
	currentVersion = func() string { return version.Version }
)

// Config is the labsync configuration. It's parsed once when a session starts
// and isn't modified afterwards.
type Config struct {
	// RequiredVersion is an optional version constraint (e.g. ">= 0.2") that
	// the running binary must satisfy.
	RequiredVersion string `json:"required_version,omitempty"`

	// LocalPath is the directory to watch. Defaults to the current directory.
	LocalPath string `json:"local_path,omitempty"`

	// RemotePath is the remote root used by servers that don't override it.
	RemotePath string `json:"remote_path,omitempty"`

	Servers map[string]Server `json:"servers"`

	// Patterns are globs that paths must match to be synced. An empty list
	// matches everything.
	Patterns []string `json:"patterns,omitempty"`

	// IgnorePatterns are globs for paths that are never synced.
	IgnorePatterns []string `json:"ignore_patterns,omitempty"`

	// IgnorePatternsRe are regular expressions for paths that are never
	// synced.
	IgnorePatternsRe []string `json:"ignore_patterns_re,omitempty"`

	// Latex holds the settings of the LaTeX helpers that share this file.
	// They're accepted so that existing config files parse, but unused here.
	Latex map[string]interface{} `json:"latex,omitempty"`

	// Overleaf holds the settings of the Overleaf helper. Like Latex, it's
	// only accepted so that existing config files parse.
	Overleaf map[string]interface{} `json:"overleaf,omitempty"`

	// Only populated and consumed by labsync. Never set by user.
	path string
}

// Server is the configuration for one remote host.
type Server struct {
	// Enable defaults to true when unset.
	Enable     *bool  `json:"enable,omitempty"`
	RemotePath string `json:"remote_path,omitempty"`

	// Host is the address to connect to. When empty, the server's name is
	// used, which lets it refer to an entry in ~/.ssh/config.
	Host     string `json:"host,omitempty"`
	Username string `json:"username,omitempty"`
	Port     int    `json:"port,omitempty"`
	Jump     string `json:"jump,omitempty"`
}

// Enabled returns whether the server should be synced to.
func (s Server) Enabled() bool {
	return s.Enable == nil || *s.Enable
}

// Destination is a fully resolved remote mirror target.
type Destination struct {
	Name       string
	RemoteRoot string
	Host       string
	Username   string
	Port       int
	Jump       string
}

// Address returns the ssh address of the destination, e.g. `user@host`.
func (d Destination) Address() string {
	if d.Username == "" {
		return d.Host
	}
	return fmt.Sprintf("%s@%s", d.Username, d.Host)
}

// RemotePath returns the remote location of the root-relative path `rel`.
func (d Destination) RemotePath(rel string) string {
	return path.Join(d.RemoteRoot, rel)
}

// GetPath returns the filepath that the config was parsed from. A getter
// method is used rather than making the field public so that it can't get set
// by the yaml Unmarshalling.
func (c Config) GetPath() string {
	return c.path
}

// Destinations returns the enabled servers, sorted by name. `subPath` is
// appended to every remote root when it's non-empty.
func (c Config) Destinations(subPath string) []Destination {
	var names []string
	for name := range c.Servers {
		names = append(names, name)
	}
	sort.Strings(names)

	var dsts []Destination
	for _, name := range names {
		server := c.Servers[name]
		if !server.Enabled() {
			continue
		}

		root := server.RemotePath
		if root == "" {
			root = c.RemotePath
		}
		if root == "" {
			root = "."
		}
		if subPath != "" {
			root = path.Join(root, filepath.ToSlash(subPath))
		}

		host := server.Host
		if host == "" {
			host = name
		}

		dsts = append(dsts, Destination{
			Name:       name,
			RemoteRoot: root,
			Host:       host,
			Username:   server.Username,
			Port:       server.Port,
			Jump:       server.Jump,
		})
	}
	return dsts
}

// Parse reads and validates the config file at `configPath`.
func Parse(configPath string) (Config, error) {
	configBytes, err := afero.ReadFile(fs, configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, errors.FileNotFound{Path: configPath}
		}
		return Config{}, errors.WithContext(err, "read file")
	}

	var cfg Config
	if err := yaml.Unmarshal(configBytes, &cfg); err != nil {
		return Config{}, errors.NewFriendlyError(parseConfigErrTemplate, configPath, err)
	}

	if err := checkVersion(configPath, cfg.RequiredVersion); err != nil {
		return Config{}, err
	}

	// Do a strict unmarshal to check for any extra fields. We do a non-strict
	// unmarshal first so that we can catch version errors before erroring on
	// extra fields.
	cfg = Config{}
	if err := yaml.UnmarshalStrict(configBytes, &cfg, yaml.DisallowUnknownFields); err != nil {
		return Config{}, errors.NewFriendlyError(parseConfigErrTemplate, configPath, err)
	}
	cfg.path = configPath

	if len(cfg.Servers) == 0 {
		return Config{}, errors.MissingFieldError{Field: "servers"}
	}

	if cfg.LocalPath != "" {
		cfg.LocalPath, err = homedirExpand(cfg.LocalPath)
		if err != nil {
			return Config{}, errors.WithContext(err, "expand local path")
		}
		cfg.LocalPath = filepath.Clean(cfg.LocalPath)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that all patterns in the config compile.
func (c Config) Validate() error {
	for _, pattern := range append(append([]string{}, c.Patterns...), c.IgnorePatterns...) {
		if !doublestar.ValidatePattern(pattern) {
			return errors.InvalidPatternError{Pattern: pattern, Reason: "malformed glob"}
		}
	}

	for _, pattern := range c.IgnorePatternsRe {
		if _, err := regexp.Compile(pattern); err != nil {
			return errors.InvalidPatternError{Pattern: pattern, Reason: err.Error()}
		}
	}
	return nil
}

type incompatibleVersionError struct {
	path, constraint, actual string
}

func (err incompatibleVersionError) Error() string {
	return err.FriendlyMessage()
}

func (err incompatibleVersionError) FriendlyMessage() string {
	return fmt.Sprintf("The configuration file %q is incompatible "+
		"with this version of labsync.\n"+
		"It requires version %q, but this is %q.", err.path, err.constraint, err.actual)
}

// checkVersion enforces `required_version`. Development builds don't have a
// parseable version, so they're always allowed.
func checkVersion(configPath, constraint string) error {
	if constraint == "" {
		return nil
	}

	constraints, err := goVersion.NewConstraint(constraint)
	if err != nil {
		return errors.InvalidPatternError{Pattern: constraint, Reason: err.Error()}
	}

	actual := currentVersion()
	current, err := goVersion.NewVersion(strings.TrimPrefix(actual, "v"))
	if err != nil {
		return nil
	}

	if !constraints.Check(current) {
		return incompatibleVersionError{configPath, constraint, actual}
	}
	return nil
}
