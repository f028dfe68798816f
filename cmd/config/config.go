package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	homedir "github.com/mitchellh/go-homedir"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sidkik/labsync/cmd/util"
	"github.com/sidkik/labsync/pkg/config"
	"github.com/sidkik/labsync/pkg/errors"
)

// Mocked for unit testing.
var (
	stdout              io.Writer = os.Stdout
	stdin               io.Reader = os.Stdin
	stat                          = os.Stat
	getWorkingDirectory           = os.Getwd
	getHomeDirectory              = homedir.Dir
	parseConfig                   = config.Parse
	writeConfig                   = config.Write
	promptYesOrNo                 = util.PromptYesOrNo
)

var defaultIgnorePatterns = []string{"__pycache__", ".DS_Store", ".pytest_cache", "*.pyc"}

var defaultLatexPatterns = []interface{}{"*.tex", "*.bib", "*.bst", "*.sty", "*.pdf",
	"images", "figures", "image", "figure", "img"}

type options struct {
	output     string
	remotePath string
	servers    []string
	force      bool
}

// New creates a new `init` command.
func New() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a labsync configuration in the current directory",
		Long: "Interactively create a labsync configuration file.\n" +
			"Run `labsync listen` afterwards to start syncing.",
		Run: func(_ *cobra.Command, _ []string) {
			if err := setupConfig(opts); err != nil {
				err = errors.NewFriendlyError("Failed to create configuration:\n%s", err)
				util.HandleFatalError(err)
			}
		},
	}
	cmd.Flags().StringVarP(&opts.output, "output", "o", config.DefaultPath,
		"The path to write the configuration to.")
	cmd.Flags().StringVar(&opts.remotePath, "remote-path", "",
		"Set the remote directory in the config. "+
			"Optional: If not set, `labsync init` will interactively prompt.")
	cmd.Flags().StringSliceVar(&opts.servers, "server", nil,
		"Set the ssh hosts to sync to. Can be repeated. "+
			"Optional: If not set, `labsync init` will interactively prompt.")
	cmd.Flags().BoolVarP(&opts.force, "force", "f", false,
		"Overwrite an existing configuration without asking.")
	return cmd
}

func setupConfig(opts options) error {
	if _, err := stat(opts.output); err == nil && !opts.force {
		overwrite, err := promptYesOrNo(fmt.Sprintf("%s already exists. Overwrite it?", opts.output))
		if err != nil {
			return errors.WithContext(err, "prompt")
		}
		if !overwrite {
			fmt.Fprintln(stdout, "Leaving the existing configuration in place.")
			return nil
		}
	}

	cfg, err := generateConfig(opts)
	if err != nil {
		return errors.WithContext(err, "generate config")
	}

	if err := writeConfig(opts.output, cfg); err != nil {
		return errors.WithContext(err, "write config")
	}

	fmt.Fprintf(stdout, "Wrote config to %s\n", opts.output)
	fmt.Fprintln(stdout, "Run `labsync listen` to start syncing.")
	return nil
}

func remotePathValidationFn(path string) (string, bool) {
	if strings.HasPrefix(path, "~") {
		return "The remote shell won't expand `~`. Use a path relative " +
			"to the remote home directory instead.", false
	}
	return "", true
}

func serversValidationFn(servers string) (string, bool) {
	if len(strings.Fields(servers)) == 0 {
		return "At least one server is required.", false
	}
	return "", true
}

type prompt struct {
	helpString, prompt, defaultAnswer, currAnswer string
	field                                         *string
	validationFn                                  func(string) (string, bool)
}

// generateConfig interacts with the user to decide what the desired
// configuration is. Settings that aren't prompted for are carried over from
// the existing configuration, if there is one.
func generateConfig(opts options) (config.Config, error) {
	cfg, err := parseConfig(opts.output)
	if err != nil {
		log.WithError(err).Debug("Failed to read current config")
		cfg = config.Config{
			IgnorePatterns: defaultIgnorePatterns,
			Latex:          map[string]interface{}{"patterns": defaultLatexPatterns},
		}
	}

	remotePath := opts.remotePath
	servers := strings.Join(opts.servers, " ")

	var prompts []prompt
	if servers == "" {
		prompts = append(prompts, prompt{
			helpString: "Enter the hosts to sync to, separated by spaces.\n" +
				"Hosts can be aliases from your SSH configuration (typically ~/.ssh/config).",
			prompt:       "Hosts",
			currAnswer:   strings.Join(serverNames(cfg), " "),
			field:        &servers,
			validationFn: serversValidationFn,
		})
	}

	if remotePath == "" {
		prompts = append(prompts, prompt{
			helpString: "Enter the working directory on the servers.\n" +
				"Relative paths are resolved from the remote home directory.",
			prompt:        "Remote path",
			defaultAnswer: guessRemotePath(),
			currAnswer:    cfg.RemotePath,
			field:         &remotePath,
			validationFn:  remotePathValidationFn,
		})
	}

	for _, prompt := range prompts {
		var resp string
		for {
			resp, err = promptUser(prompt.helpString, prompt.prompt,
				prompt.defaultAnswer, prompt.currAnswer)
			if err != nil {
				return config.Config{}, errors.WithContext(err, "read response")
			}

			if prompt.validationFn == nil {
				break
			}

			validationErr, ok := prompt.validationFn(resp)
			if ok {
				break
			}

			fmt.Fprintln(stdout, validationErr)
		}

		*prompt.field = resp
	}

	if msg, ok := remotePathValidationFn(remotePath); !ok {
		return config.Config{}, errors.New(msg)
	}

	// Hosts that are kept retain their connection overrides.
	existing := cfg.Servers
	cfg.RemotePath = remotePath
	cfg.Servers = map[string]config.Server{}
	for _, name := range strings.Fields(servers) {
		enable := true
		server := existing[name]
		server.Enable = &enable
		cfg.Servers[name] = server
	}
	return cfg, nil
}

func serverNames(cfg config.Config) (names []string) {
	for name := range cfg.Servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// guessRemotePath guesses that the remote directory mirrors the local one,
// relative to the home directory.
func guessRemotePath() string {
	currDir, err := getWorkingDirectory()
	if err != nil {
		log.WithError(err).Debug("Failed to get current directory")
		return ""
	}

	home, err := getHomeDirectory()
	if err != nil {
		log.WithError(err).Debug("Failed to get home directory")
		return ""
	}

	rel, err := filepath.Rel(home, currDir)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return ""
	}
	return filepath.ToSlash(rel)
}

func promptUser(helpString, prompt, defaultAnswer, currAnswer string) (string, error) {
	// Separate the fields with a blank line.
	defer fmt.Fprintln(stdout)

	options := []string{}
	if defaultAnswer != "" {
		options = append(options, defaultAnswer)
	}
	if currAnswer != "" && currAnswer != defaultAnswer {
		options = append(options, currAnswer)
	}
	options = append(options, "(Enter manually)")

	fmt.Fprintln(stdout, helpString+"\n"+prompt+":")

	stdinReader := bufio.NewReader(stdin)

	if nOptions := len(options); nOptions > 1 {
		fmt.Fprintln(stdout)
		for i, option := range options {
			if i == 0 {
				option = fmt.Sprintf("%s (recommended)", option)
			}
			fmt.Fprintf(stdout, "\t%d. %s\n", i+1, option)
		}
		fmt.Fprintln(stdout)

		for {
			fmt.Fprintf(stdout, "Please choose one [1-%d]: ", nOptions)
			choiceStr, err := readLine(stdinReader)
			if err != nil {
				return "", err
			}

			// Default to the first choice if nothing is entered.
			choice := 1
			if choiceStr != "" {
				choice, err = strconv.Atoi(choiceStr)
				if err != nil || choice < 1 || choice > nOptions {
					continue
				}
			}

			if choice == nOptions {
				break
			}
			return options[choice-1], nil
		}
	}

	fmt.Fprint(stdout, "Please enter manually: ")
	return readLine(stdinReader)
}

// readLine reads a line from `r`. A final line without a newline is still
// returned.
func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
