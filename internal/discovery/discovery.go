// Package discovery locates manifest files below a set of root directories.
package discovery

import (
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
)

// DefaultSkipDirs are directory names never descended into
var DefaultSkipDirs = []string{".git", ".hg", ".svn"}

// Finder walks roots looking for manifest files
type Finder struct {
	Roots     []string
	Pattern   Matcher
	Recursive bool
	SkipDirs  []string
	logger    *slog.Logger
}

// NewFinder creates a finder. An empty roots list searches the current
// directory.
func NewFinder(roots []string, pattern Matcher, recursive bool, logger *slog.Logger) *Finder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if pattern == nil {
		pattern = defaultMatcher()
	}
	return &Finder{
		Roots:     roots,
		Pattern:   pattern,
		Recursive: recursive,
		SkipDirs:  DefaultSkipDirs,
		logger:    logger,
	}
}

// Manifests returns a lazy sequence of manifest paths. Each iteration walks
// the filesystem anew. Errors are only yielded for unusable roots;
// unreadable subdirectories and broken symlinks are logged and skipped.
// Within a directory, entries are visited in name order.
func (f *Finder) Manifests() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		roots := f.Roots
		if len(roots) == 0 {
			roots = []string{"."}
		}

		visited := make(map[string]bool)
		for _, root := range roots {
			info, err := os.Stat(root)
			if err != nil {
				if !yield("", fmt.Errorf("discovery root %s: %w", root, err)) {
					return
				}
				continue
			}
			if !info.IsDir() {
				if !yield("", fmt.Errorf("discovery root %s is not a directory", root)) {
					return
				}
				continue
			}

			w := &walker{finder: f, root: root, visited: visited, yield: yield}
			if !w.walk(root) {
				return
			}
		}
	}
}

func (f *Finder) skipDir(name string) bool {
	return slices.Contains(f.SkipDirs, name)
}

type walker struct {
	finder  *Finder
	root    string
	visited map[string]bool
	yield   func(string, error) bool
}

// walk scans dir and reports whether iteration should continue
func (w *walker) walk(dir string) bool {
	logger := w.finder.logger

	// Key the visited set on the resolved directory so symlink cycles end
	canonical, err := filepath.EvalSymlinks(dir)
	if err != nil {
		logger.Warn("skipping unresolvable directory", "path", dir, "error", err)
		return true
	}
	if abs, err := filepath.Abs(canonical); err == nil {
		canonical = abs
	}
	if w.visited[canonical] {
		logger.Debug("directory already visited", "path", dir, "resolved", canonical)
		return true
	}
	w.visited[canonical] = true

	entries, err := os.ReadDir(dir)
	if err != nil {
		logger.Warn("skipping unreadable directory", "path", dir, "error", err)
		if len(entries) == 0 {
			return true
		}
	}

	for _, de := range entries {
		path := filepath.Join(dir, de.Name())

		isDir := de.IsDir()
		if de.Type()&fs.ModeSymlink != 0 {
			info, err := os.Stat(path)
			if err != nil {
				logger.Warn("skipping broken symlink", "path", path, "error", err)
				continue
			}
			isDir = info.IsDir()
			if !isDir && !info.Mode().IsRegular() {
				continue
			}
		} else if !isDir && !de.Type().IsRegular() {
			continue
		}

		if isDir {
			if !w.finder.Recursive || w.finder.skipDir(de.Name()) {
				continue
			}
			if !w.walk(path) {
				return false
			}
			continue
		}

		rel, err := filepath.Rel(w.root, path)
		if err != nil {
			rel = path
		}
		if w.finder.Pattern.Match(de.Name(), rel) {
			if !w.yield(path, nil) {
				return false
			}
		}
	}

	return true
}

// Explicit returns a sequence over paths given directly by the user. They
// are used verbatim without checking the pattern or existence.
func Explicit(paths []string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, p := range paths {
			if !yield(p, nil) {
				return
			}
		}
	}
}

// Collect drains seq, returning every path and the joined errors.
func Collect(seq iter.Seq2[string, error]) ([]string, error) {
	var (
		paths []string
		errs  []error
	)
	for p, err := range seq {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		paths = append(paths, p)
	}
	return paths, errors.Join(errs...)
}

func defaultMatcher() Matcher {
	return regexpMatcher{re: regexp.MustCompile(DefaultPattern)}
}
