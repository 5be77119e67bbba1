package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/schaermu/resha/internal/config"
	"github.com/schaermu/resha/internal/discovery"
	"github.com/schaermu/resha/internal/executor"
	"github.com/schaermu/resha/internal/reconcile"
	"github.com/schaermu/resha/internal/report"
)

var (
	// Set by goreleaser
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Exit codes
const (
	exitFailure = 1 // an entry failed or is stale, or a manifest could not be read or written
	exitUsage   = 2 // bad configuration or discovery roots
)

var errNotInSync = errors.New("not all entries are in sync")

// exitError carries the process exit code for an error returned by a command
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func exitCode(err error) int {
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	// errors not produced by our commands come from flag or argument parsing
	return exitUsage
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func newRootCmd() *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "resha [manifest...]",
		Short: "Regenerate derived files when their inputs change",
		Long: `resha keeps generated files in sync with the commands that produce them.

Each manifest (.resha.yml) lists generation tasks: a shell command, the files it
reads and the files it writes. resha records a fingerprint of every task and
re-runs the command only when the fingerprint no longer matches the files on
disk.

Without a subcommand, resha behaves like "resha update". Manifest paths given
as arguments are used as-is; otherwise manifests are discovered in the
directories given with --dir (default: the working directory).`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(cmd, cfgFile, args, false)
		},
	}

	updateCmd := &cobra.Command{
		Use:   "update [manifest...]",
		Short: "Regenerate stale entries and record their new fingerprints",
		Long: `Update checks every entry of the selected manifests, runs the command of each
stale entry and writes the new fingerprints back to the manifest.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(cmd, cfgFile, args, false)
		},
	}

	checkCmd := &cobra.Command{
		Use:   "check [manifest...]",
		Short: "Verify that every entry is in sync without running anything",
		Long: `Check is a dry-run update meant for CI. It exits non-zero when any entry is
stale, has never been fingerprinted, or its manifest cannot be read.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(cmd, cfgFile, args, true)
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "resha %s\n", version)
			fmt.Fprintf(out, "  commit: %s\n", commit)
			fmt.Fprintf(out, "  built:  %s\n", date)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is ./"+config.DefaultConfigName+".yaml if present)")
	flags.StringSliceP("dir", "d", nil, "directory to search for manifests (repeatable, default is the working directory)")
	flags.StringP("pattern", "p", discovery.DefaultPattern, `manifest file name pattern (regexp, or "glob:" followed by a glob)`)
	flags.BoolP("recursive", "r", false, "search subdirectories for manifests")
	flags.BoolP("fail-fast", "x", false, "stop at the first failed entry")
	flags.BoolP("dry-run", "n", false, "report stale entries without running commands")
	flags.BoolP("quiet", "q", false, "do not stream command output")
	flags.Bool("trace", false, "echo each command line before running it")
	flags.String("root", "", "resolve entry paths and run commands relative to this directory instead of the manifest directory")
	flags.Bool("require-inputs", false, "fail entries whose required files are missing instead of running them")
	flags.String("shell", "", "shell used to run commands (default bash, falling back to sh)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "text", "log format (text, json)")
	flags.Bool("list-manifests", false, "print the selected manifest paths and exit")
	flags.Bool("list-inputs", false, "print every file named by the selected manifests and exit")
	flags.Bool("list-changed", false, "print the output files of regenerated entries instead of a summary")

	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(versionCmd)

	return rootCmd
}

func runReconcile(cmd *cobra.Command, cfgFile string, args []string, check bool) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	cfg, err := config.Load(cmd.Flags(), cfgFile, args)
	if err != nil {
		return &exitError{code: exitUsage, err: fmt.Errorf("failed to load config: %w", err)}
	}
	if check {
		cfg.DryRun = true
	}

	logger := setupLogger(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())

	paths, err := findManifests(cfg, logger)
	if err != nil {
		logger.Error("manifest discovery failed", "error", err)
		return &exitError{code: exitUsage, err: err}
	}

	printer := report.NewPrinter(cmd.OutOrStdout())
	printer.ShowOutput = cfg.Quiet

	switch {
	case cfg.ListManifests:
		return printer.PrintManifests(paths)
	case cfg.ListInputs:
		if err := printer.PrintInputs(paths, cfg.Root); err != nil {
			return &exitError{code: exitFailure, err: err}
		}
		return nil
	}

	if len(paths) == 0 {
		logger.Warn("no manifests found", "pattern", cfg.Pattern, "recursive", cfg.Recursive)
		return nil
	}

	// keep stdout clean for the path listing
	var stream io.Writer
	if !cfg.Quiet {
		if cfg.ListChanged {
			stream = cmd.ErrOrStderr()
		} else {
			stream = cmd.OutOrStdout()
		}
	}
	shell := executor.NewShell(stream, cfg.Trace)
	if cfg.Shell != "" {
		shell.Path = cfg.Shell
	}

	engine := reconcile.NewEngine(shell, logger, reconcile.Options{
		DryRun:        cfg.DryRun,
		FailFast:      cfg.FailFast,
		RequireInputs: cfg.RequireInputs,
		Root:          cfg.Root,
	})
	result := engine.Run(ctx, paths)

	if cfg.ListChanged {
		err = printer.PrintChanged(result)
	} else {
		err = printer.Summary(result)
	}
	if err != nil {
		return &exitError{code: exitFailure, err: fmt.Errorf("failed to print report: %w", err)}
	}

	if !result.OK() {
		return &exitError{code: exitFailure, err: errNotInSync}
	}
	return nil
}

// findManifests returns the explicit manifest list, or discovers manifests
// under the configured directories.
func findManifests(cfg *config.Config, logger *slog.Logger) ([]string, error) {
	if cfg.Explicit() {
		if len(cfg.Dirs) > 0 {
			logger.Debug("explicit manifests given, ignoring discovery directories", "dirs", cfg.Dirs)
		}
		return discovery.Collect(discovery.Explicit(cfg.Manifests))
	}

	pattern, err := discovery.ParsePattern(cfg.Pattern)
	if err != nil {
		return nil, err
	}

	finder := discovery.NewFinder(cfg.Dirs, pattern, cfg.Recursive, logger)
	paths, err := discovery.Collect(finder.Manifests())
	if err != nil {
		return nil, err
	}
	logger.Debug("discovered manifests", "count", len(paths), "pattern", pattern.String())
	return paths, nil
}

func setupLogger(logLevel, logFormat string, w io.Writer) *slog.Logger {
	// Parse log level
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	// Create handler based on format
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if logFormat == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigCh)
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
