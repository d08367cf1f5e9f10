// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jeranaias/rigrun-answer/internal/config"
	"github.com/jeranaias/rigrun-answer/internal/logging"
)

// Version information, set at build time.
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// app carries the global flags and what PersistentPreRunE loaded.
type app struct {
	configPath string
	jsonOutput bool
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
}

// NewRootCommand builds the full command tree.
func NewRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "rigrun-answer",
		Short: "Route questions to the right knowledge sources and answer them",
		Long: `rigrun-answer decides which knowledge sources can answer a question
(structured records, documents, or a casual reply), queries them in
parallel, and writes one answer from the combined results.

Run "rigrun-answer serve" to expose the HTTP API, or "rigrun-answer chat"
for an interactive session.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", Version, GitCommit, BuildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "config file (default ~/.rigrun-answer/config.toml)")
	flags.BoolVar(&a.jsonOutput, "json", false, "print machine-readable JSON")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		newServeCommand(a),
		newAskCommand(a),
		newChatCommand(a),
		newSupportCommand(a),
		newTitleCommand(a),
		newTemplatesCommand(a),
		newCostsCommand(a),
		newConfigCommand(a),
	)
	return root
}

// load reads the configuration and builds the logger.
func (a *app) load() error {
	var (
		cfg *config.Config
		err error
	)
	switch _, statErr := os.Stat(a.configPath); {
	case a.configPath != "" && statErr == nil:
		cfg, err = config.LoadFromPath(a.configPath)
	case a.configPath != "" && errors.Is(statErr, fs.ErrNotExist):
		// config init and config set create the file later.
		if err = config.LoadDotEnv(filepath.Dir(a.configPath)); err != nil {
			break
		}
		cfg = config.Default()
		cfg.ApplyEnvOverrides()
		cfg.SetDefaults()
		err = cfg.Validate()
	case a.configPath != "":
		err = statErr
	default:
		cfg, err = config.Load()
	}
	if err != nil {
		return NewConfigError("config", err)
	}

	level := cfg.Log.Level
	if a.verbose {
		level = "debug"
	}
	logger, err := logging.New(level, cfg.Log.Format)
	if err != nil {
		return NewConfigError("log", err)
	}

	a.cfg = cfg
	a.logger = logger
	return nil
}

// printJSON writes data in the --json envelope.
func (a *app) printJSON(w io.Writer, command string, data any) error {
	return NewJSONResponse(command, data).Print(w)
}

// Execute runs the command tree against os.Args and returns the exit code.
func Execute() int {
	root := NewRootCommand()
	if err := root.Execute(); err != nil {
		if wantsJSON(os.Args[1:]) {
			_ = NewJSONErrorResponse(root.Name(), err).Print(os.Stdout)
		} else {
			fmt.Fprintln(os.Stderr, ErrorStyle.Render("Error:"), err)
		}
		return ExitCodeFor(err)
	}
	return ExitSuccess
}

func wantsJSON(args []string) bool {
	for _, arg := range args {
		if arg == "--json" || strings.HasPrefix(arg, "--json=true") {
			return true
		}
	}
	return false
}
