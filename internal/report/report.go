// Package report renders run results and manifest listings for humans and
// scripts.
package report

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/schaermu/resha/internal/manifest"
	"github.com/schaermu/resha/internal/reconcile"
)

// Printer writes reports to an output stream. Listing output is one path per
// line so it can be piped into other tools.
type Printer struct {
	w io.Writer
	// ShowOutput includes captured command output for failed entries. The
	// CLI enables it when output was not already streamed.
	ShowOutput bool
	// Base is the directory listed paths are made relative to. Empty means
	// the working directory.
	Base string
}

// NewPrinter creates a printer writing to w
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// Summary prints each manifest followed by the final state of its entries,
// then a one-line tally.
func (p *Printer) Summary(r *reconcile.Report) error {
	var buf bytes.Buffer

	for _, m := range r.Manifests {
		fmt.Fprintf(&buf, "%s\n", p.rel(m.Path))

		if m.LoadErr != nil {
			fmt.Fprintf(&buf, "  %-16s %v\n", "error", m.LoadErr)
			continue
		}
		if len(m.Entries) == 0 {
			fmt.Fprintf(&buf, "  (no entries)\n")
		}
		for _, e := range m.Entries {
			fmt.Fprintf(&buf, "  %-16s %s\n", e.State, e.Label)
			if e.Err != nil {
				fmt.Fprintf(&buf, "  %-16s %v\n", "", e.Err)
			}
			if p.ShowOutput && e.State == reconcile.Failed && len(e.Output) > 0 {
				writeIndented(&buf, e.Output, "    | ")
			}
		}
		if m.WriteErr != nil {
			fmt.Fprintf(&buf, "  %-16s %v\n", "write error", m.WriteErr)
		}
	}

	counts := r.Counts()
	fmt.Fprintf(&buf, "%d in-sync, %d recovered, %d failed, %d skipped, %d would regenerate",
		counts[reconcile.InSync],
		counts[reconcile.Recovered],
		counts[reconcile.Failed],
		counts[reconcile.Skipped],
		counts[reconcile.WouldRegenerate])
	if r.Cancelled {
		buf.WriteString(" (cancelled)")
	}
	buf.WriteString("\n")

	_, err := p.w.Write(buf.Bytes())
	return err
}

// PrintManifests lists manifest paths
func (p *Printer) PrintManifests(paths []string) error {
	for _, path := range paths {
		if _, err := fmt.Fprintln(p.w, p.rel(path)); err != nil {
			return err
		}
	}
	return nil
}

// PrintInputs lists every required and output file named by the manifests,
// resolved against root (or each manifest's directory when root is empty).
// Each path is printed once. Manifests that cannot be loaded are reported in
// the returned error after the rest are listed.
func (p *Printer) PrintInputs(paths []string, root string) error {
	seen := make(map[string]bool)
	var errs []error

	for _, path := range paths {
		m, err := manifest.Load(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		base := root
		if base == "" {
			base = m.Dir()
		}
		for _, entry := range m.Entries {
			for _, list := range [][]string{entry.RequiredFiles, entry.Files} {
				for _, f := range list {
					resolved := manifest.Resolve(base, f)
					if seen[resolved] {
						continue
					}
					seen[resolved] = true
					if _, err := fmt.Fprintln(p.w, p.rel(resolved)); err != nil {
						return err
					}
				}
			}
		}
	}

	return errors.Join(errs...)
}

// PrintChanged lists the output files of entries that were regenerated, or
// would have been in dry-run mode.
func (p *Printer) PrintChanged(r *reconcile.Report) error {
	seen := make(map[string]bool)
	for _, m := range r.Manifests {
		for _, e := range m.Entries {
			if e.State != reconcile.Recovered && e.State != reconcile.WouldRegenerate {
				continue
			}
			for _, f := range e.Files {
				resolved := manifest.Resolve(m.Root, f)
				if seen[resolved] {
					continue
				}
				seen[resolved] = true
				if _, err := fmt.Fprintln(p.w, p.rel(resolved)); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// rel shortens path relative to the base directory when that does not
// climb out of it.
func (p *Printer) rel(path string) string {
	base := p.Base
	if base == "" {
		wd, err := os.Getwd()
		if err != nil {
			return path
		}
		base = wd
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	rel, err := filepath.Rel(base, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return path
	}
	return rel
}

func writeIndented(buf *bytes.Buffer, out []byte, prefix string) {
	for _, line := range strings.Split(strings.TrimRight(string(out), "\n"), "\n") {
		buf.WriteString(prefix)
		buf.WriteString(line)
		buf.WriteString("\n")
	}
}
