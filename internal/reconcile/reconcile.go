// Package reconcile brings manifest entries in sync with their recorded
// fingerprints, regenerating stale entries.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/schaermu/resha/internal/executor"
	"github.com/schaermu/resha/internal/fingerprint"
	"github.com/schaermu/resha/internal/manifest"
)

// ErrMissingRequiredFiles is recorded for a stale entry whose inputs are
// missing when Options.RequireInputs is set
var ErrMissingRequiredFiles = errors.New("missing required files")

// Options control how the engine treats stale entries
type Options struct {
	DryRun   bool
	FailFast bool
	// RequireInputs fails entries with unreadable required_files, in sync
	// or not, instead of running them. Ignored in dry-run mode.
	RequireInputs bool
	// Root overrides the manifest directory as the base for entry paths
	// and the command working directory
	Root string
}

// Engine drives manifests through check, regenerate and persist
type Engine struct {
	exec   executor.Executor
	logger *slog.Logger
	opts   Options
}

// NewEngine creates a new reconcile engine
func NewEngine(exec executor.Executor, logger *slog.Logger, opts Options) *Engine {
	return &Engine{
		exec:   exec,
		logger: logger,
		opts:   opts,
	}
}

// Run reconciles each manifest in order. Once fail-fast trips or ctx is
// cancelled, the remaining manifests are still parsed so their entries can
// be reported as skipped.
func (e *Engine) Run(ctx context.Context, paths []string) *Report {
	e.logger.Info("starting reconcile",
		"manifests", len(paths),
		"dry_run", e.opts.DryRun,
		"fail_fast", e.opts.FailFast)

	report := &Report{Manifests: make([]ManifestResult, 0, len(paths))}
	halted := false

	for _, path := range paths {
		if halted {
			report.Manifests = append(report.Manifests, e.skipManifest(path))
			continue
		}

		result := e.ReconcileManifest(ctx, path)
		report.Manifests = append(report.Manifests, result)

		if ctx.Err() != nil {
			e.logger.Warn("reconcile cancelled", "error", ctx.Err())
			report.Cancelled = true
			halted = true
		}
		if e.opts.FailFast && result.Halts() {
			e.logger.Warn("stopping after failure (fail-fast)", "manifest", path)
			halted = true
		}
	}

	counts := report.Counts()
	e.logger.Info("reconcile finished",
		"in_sync", counts[InSync],
		"recovered", counts[Recovered],
		"failed", counts[Failed],
		"skipped", counts[Skipped],
		"would_regenerate", counts[WouldRegenerate])

	return report
}

// ReconcileManifest processes one manifest's entries in declared order and
// writes it back once if any fingerprint changed.
func (e *Engine) ReconcileManifest(ctx context.Context, path string) ManifestResult {
	logger := e.logger.With("manifest", path)
	result := ManifestResult{Path: path}

	m, err := manifest.Load(path)
	if err != nil {
		logger.Error("failed to load manifest", "error", err)
		result.LoadErr = err
		return result
	}

	root := e.rootFor(m)
	result.Root = root
	result.Entries = make([]EntryResult, 0, len(m.Entries))
	logger.Debug("loaded manifest", "entries", len(m.Entries), "root", root)

	dirty := false
	halted := false

	for i, entry := range m.Entries {
		if !halted && ctx.Err() != nil {
			halted = true
		}
		if halted {
			result.Entries = append(result.Entries, skippedResult(i, entry))
			continue
		}

		res, changed := e.reconcileEntry(ctx, logger, root, i, entry)
		result.Entries = append(result.Entries, res)
		dirty = dirty || changed

		if res.State == Failed && e.opts.FailFast {
			halted = true
		}
	}

	if !dirty {
		return result
	}

	if err := m.Save(); err != nil {
		logger.Error("regenerated files no longer match the manifest: failed to save fingerprints", "error", err)
		result.WriteErr = err
		return result
	}
	result.Written = true
	logger.Info("manifest updated")

	return result
}

// reconcileEntry runs the per-entry state machine. It reports whether the
// recorded fingerprint changed.
func (e *Engine) reconcileEntry(ctx context.Context, logger *slog.Logger, root string, index int, entry *manifest.Entry) (EntryResult, bool) {
	logger = logger.With("entry", entry.Label())

	res := EntryResult{
		Index:         index,
		Label:         entry.Label(),
		Files:         entry.Files,
		RequiredFiles: entry.RequiredFiles,
	}

	recorded, hasRecorded := entry.RecordedSHA()
	res.Previous = recorded

	// inputs are checked ahead of staleness; dry-run only reports staleness
	if e.opts.RequireInputs && !e.opts.DryRun {
		if missing := fingerprint.Missing(root, entry.RequiredFiles); len(missing) > 0 {
			res.State = Failed
			res.Err = fmt.Errorf("%w: %s", ErrMissingRequiredFiles, strings.Join(missing, ", "))
			logger.Error("entry failed", "error", res.Err)
			return res, false
		}
	}

	current := fingerprint.Compute(entry, root)
	res.Digest = current

	if hasRecorded && string(current) == recorded {
		res.State = InSync
		logger.Debug("entry in sync", "sha", recorded)
		return res, false
	}

	if hasRecorded {
		logger.Info("entry is stale", "recorded", recorded, "current", current)
	} else {
		logger.Info("entry has no recorded fingerprint")
	}

	if e.opts.DryRun {
		res.State = WouldRegenerate
		logger.Info("[dry-run] would regenerate")
		return res, false
	}

	logger.Info("regenerating")
	out, err := e.exec.Execute(ctx, executor.Command{
		Script: entry.Cmd,
		Dir:    root,
		Env: []string{
			executor.ListEnv("files", entry.Files),
			executor.ListEnv("required_files", entry.RequiredFiles),
		},
	})
	if err != nil {
		res.State = Failed
		res.Err = err
		var execErr *executor.ExecutionError
		if errors.As(err, &execErr) {
			res.Output = execErr.Output
		}
		logger.Error("entry failed", "error", err)
		return res, false
	}
	res.Output = out.Output

	updated := fingerprint.Compute(entry, root)
	res.Digest = updated
	res.State = Recovered

	changed := !hasRecorded || string(updated) != recorded
	if changed {
		entry.SetSHA(string(updated))
	}
	logger.Info("entry regenerated", "sha", updated, "duration", out.Duration)

	return res, changed
}

// skipManifest lists a manifest's entries as skipped without running them
func (e *Engine) skipManifest(path string) ManifestResult {
	result := ManifestResult{Path: path}

	m, err := manifest.Load(path)
	if err != nil {
		e.logger.Warn("skipped manifest could not be loaded", "manifest", path, "error", err)
		result.LoadErr = err
		return result
	}

	result.Root = e.rootFor(m)
	for i, entry := range m.Entries {
		result.Entries = append(result.Entries, skippedResult(i, entry))
	}
	return result
}

func (e *Engine) rootFor(m *manifest.Manifest) string {
	if e.opts.Root != "" {
		return e.opts.Root
	}
	return m.Dir()
}

func skippedResult(index int, entry *manifest.Entry) EntryResult {
	previous, _ := entry.RecordedSHA()
	return EntryResult{
		Index:         index,
		Label:         entry.Label(),
		State:         Skipped,
		Files:         entry.Files,
		RequiredFiles: entry.RequiredFiles,
		Previous:      previous,
	}
}
