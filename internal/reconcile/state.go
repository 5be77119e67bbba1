package reconcile

import (
	"github.com/schaermu/resha/internal/fingerprint"
)

// State is the final state of an entry after a run
type State int

const (
	// InSync means the recorded fingerprint matched
	InSync State = iota
	// Recovered means the entry was stale and regenerated successfully
	Recovered
	// Failed means the command failed or could not be run
	Failed
	// Skipped means the entry was not examined (fail-fast or cancellation)
	Skipped
	// WouldRegenerate means the entry is stale but dry-run prevented a run
	WouldRegenerate
)

// String returns the state name used in logs and reports
func (s State) String() string {
	switch s {
	case InSync:
		return "in-sync"
	case Recovered:
		return "recovered"
	case Failed:
		return "failed"
	case Skipped:
		return "skipped"
	case WouldRegenerate:
		return "would-regenerate"
	default:
		return "unknown"
	}
}

// OK reports whether the state counts as success for the exit status
func (s State) OK() bool {
	return s == InSync || s == Recovered
}

// EntryResult records what happened to one entry
type EntryResult struct {
	Index         int
	Label         string
	State         State
	Files         []string
	RequiredFiles []string
	// Previous is the fingerprint recorded before the run, empty if none
	Previous string
	// Digest is the fingerprint after the run; empty for skipped entries
	Digest fingerprint.Digest
	Output []byte
	Err    error
}

// ManifestResult records the outcome for one manifest file
type ManifestResult struct {
	Path string
	// Root is the directory entry paths were resolved against
	Root    string
	Entries []EntryResult
	// LoadErr is set when the manifest could not be parsed
	LoadErr error
	// WriteErr is set when updated fingerprints could not be saved
	WriteErr error
	Written  bool
}

// Failed reports whether anything in the manifest prevents a clean exit
func (m *ManifestResult) Failed() bool {
	if m.LoadErr != nil || m.WriteErr != nil {
		return true
	}
	for _, e := range m.Entries {
		if !e.State.OK() {
			return true
		}
	}
	return false
}

// Halts reports whether fail-fast should stop after this manifest. Stale
// entries found in dry-run mode do not count.
func (m *ManifestResult) Halts() bool {
	if m.LoadErr != nil || m.WriteErr != nil {
		return true
	}
	for _, e := range m.Entries {
		if e.State == Failed {
			return true
		}
	}
	return false
}

// Report aggregates a whole run
type Report struct {
	Manifests []ManifestResult
	Cancelled bool
}

// OK reports whether every entry ended in-sync or recovered and no manifest
// failed to load or save.
func (r *Report) OK() bool {
	if r.Cancelled {
		return false
	}
	for i := range r.Manifests {
		if r.Manifests[i].Failed() {
			return false
		}
	}
	return true
}

// Counts tallies entries by final state
func (r *Report) Counts() map[State]int {
	counts := make(map[State]int)
	for _, m := range r.Manifests {
		for _, e := range m.Entries {
			counts[e.State]++
		}
	}
	return counts
}
