// Package cli implements the genload command line.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wesleyorama2/genload/internal/storage"
)

var version = "0.1.0"

// ErrRunFailed is returned when a run finishes with failed thresholds or an
// error. The summary has already been printed.
var ErrRunFailed = errors.New("run failed")

// app is the state shared by every subcommand.
type app struct {
	v      *viper.Viper
	log    *logrus.Logger
	out    io.Writer
	errOut io.Writer
}

// NewRootCmd builds the genload command tree.
func NewRootCmd() *cobra.Command {
	a := &app{
		v:      viper.New(),
		log:    logrus.New(),
		out:    os.Stdout,
		errOut: os.Stderr,
	}

	var cfgFile string

	root := &cobra.Command{
		Use:     "genload",
		Short:   "Load test a text-generation endpoint",
		Version: version,
		Long: `genload drives a text-generation HTTP endpoint with a staged virtual-user
load profile, checks every response and reports latency, throughput and check
results.

With no scenario file it runs the built-in scenario: POST /generate with
{"prompt":"Hello World","options":{"num_tokens":10}}, ramping to 10 VUs over
30s, holding for 1m and ramping down over 30s, with a 1s pause per iteration.

Settings are read from flags, GENLOAD_* environment variables and
$HOME/.genload.yaml, in that order of precedence.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.out = cmd.OutOrStdout()
			a.errOut = cmd.ErrOrStderr()
			if err := a.initConfig(cfgFile); err != nil {
				return err
			}
			return a.initLogging()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "settings file (default is $HOME/.genload.yaml)")
	pf.String("log-level", "warn", "log level: debug, info, warn, error")
	pf.String("log-format", "text", "log format: text or json")
	pf.String("history", "", "history database (default is $HOME/.genload/history.db)")
	for _, name := range []string{"log-level", "log-format", "history"} {
		_ = a.v.BindPFlag(name, pf.Lookup(name))
	}

	root.AddCommand(
		newRunCmd(a),
		newInspectCmd(a),
		newProbeCmd(a),
		newHistoryCmd(a),
		newStubCmd(a),
	)
	return root
}

// Execute runs the command line and prints any error other than
// ErrRunFailed.
func Execute() error {
	root := NewRootCmd()
	err := root.Execute()
	if err != nil && !errors.Is(err, ErrRunFailed) {
		fmt.Fprintln(root.ErrOrStderr(), "Error:", err)
	}
	return err
}

func (a *app) initConfig(cfgFile string) error {
	a.v.SetEnvPrefix("GENLOAD")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	if cfgFile != "" {
		a.v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil
		}
		a.v.AddConfigPath(home)
		a.v.SetConfigType("yaml")
		a.v.SetConfigName(".genload")
	}

	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) && cfgFile == "" {
			return nil
		}
		return fmt.Errorf("failed to read settings: %w", err)
	}
	return nil
}

func (a *app) initLogging() error {
	level, err := logrus.ParseLevel(a.v.GetString("log-level"))
	if err != nil {
		return fmt.Errorf("invalid --log-level: %w", err)
	}
	a.log.SetLevel(level)
	a.log.SetOutput(a.errOut)

	switch a.v.GetString("log-format") {
	case "json":
		a.log.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		a.log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("invalid --log-format %q (use text or json)", a.v.GetString("log-format"))
	}

	if a.v.ConfigFileUsed() != "" {
		a.log.WithField("file", a.v.ConfigFileUsed()).Debug("settings loaded")
	}
	return nil
}

// historyPath resolves the history database location.
func (a *app) historyPath() (string, error) {
	if p := a.v.GetString("history"); p != "" {
		return filepath.Clean(p), nil
	}
	return storage.DefaultPath()
}

func (a *app) openHistory() (*storage.Store, error) {
	path, err := a.historyPath()
	if err != nil {
		return nil, err
	}
	return storage.Open(path)
}
