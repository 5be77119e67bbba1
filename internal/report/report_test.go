package report

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schaermu/resha/internal/reconcile"
	"github.com/schaermu/resha/internal/testutil"
)

func newPrinter(base string) (*Printer, *bytes.Buffer) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)
	p.Base = base
	return p, &buf
}

func TestSummary(t *testing.T) {
	base := t.TempDir()
	p, buf := newPrinter(base)

	r := &reconcile.Report{
		Manifests: []reconcile.ManifestResult{
			{
				Path: filepath.Join(base, "a", ".resha.yml"),
				Entries: []reconcile.EntryResult{
					{Label: "proto", State: reconcile.InSync},
					{Label: "docs", State: reconcile.Recovered},
					{Label: "broken", State: reconcile.Failed, Err: errors.New("exit status 3"), Output: []byte("boom\n")},
				},
			},
			{
				Path:    filepath.Join(base, "b", ".resha.yml"),
				LoadErr: errors.New("invalid YAML"),
			},
			{
				Path:     filepath.Join(base, "c", ".resha.yml"),
				Entries:  []reconcile.EntryResult{{Label: "gen", State: reconcile.Skipped}},
				WriteErr: errors.New("read-only file system"),
			},
		},
	}

	require.NoError(t, p.Summary(r))
	out := buf.String()

	assert.Contains(t, out, filepath.Join("a", ".resha.yml")+"\n")
	assert.Contains(t, out, "in-sync")
	assert.Contains(t, out, "proto")
	assert.Contains(t, out, "recovered")
	assert.Contains(t, out, "exit status 3")
	assert.NotContains(t, out, "boom", "output is hidden unless requested")
	assert.Contains(t, out, "invalid YAML")
	assert.Contains(t, out, "read-only file system")
	assert.Contains(t, out, "1 in-sync, 1 recovered, 1 failed, 1 skipped, 0 would regenerate\n")

	buf.Reset()
	p.ShowOutput = true
	require.NoError(t, p.Summary(r))
	assert.Contains(t, buf.String(), "    | boom\n")
}

func TestSummary_EmptyAndCancelled(t *testing.T) {
	p, buf := newPrinter(t.TempDir())

	r := &reconcile.Report{
		Manifests: []reconcile.ManifestResult{{Path: "/elsewhere/.resha.yml"}},
		Cancelled: true,
	}
	require.NoError(t, p.Summary(r))

	out := buf.String()
	assert.Contains(t, out, "/elsewhere/.resha.yml\n", "paths outside the base stay as given")
	assert.Contains(t, out, "(no entries)")
	assert.Contains(t, out, "(cancelled)")
}

func TestPrintManifests(t *testing.T) {
	base := t.TempDir()
	p, buf := newPrinter(base)

	require.NoError(t, p.PrintManifests([]string{
		filepath.Join(base, ".resha.yml"),
		filepath.Join(base, "api", ".resha.yml"),
	}))
	assert.Equal(t, ".resha.yml\n"+filepath.Join("api", ".resha.yml")+"\n", buf.String())
}

func TestPrintInputs(t *testing.T) {
	base := t.TempDir()
	testutil.WriteFiles(t, base, map[string]string{
		"api/.resha.yml": `
- cmd: protoc
  required_files: [api.proto]
  files: [api.pb.go, api.pb.gw.go]
- cmd: cat api.proto
  required_files: api.proto
  files: /abs/out.txt
`,
		"bad/.resha.yml": "{not: a list}\n",
	})
	p, buf := newPrinter(base)

	err := p.PrintInputs([]string{
		filepath.Join(base, "api", ".resha.yml"),
		filepath.Join(base, "bad", ".resha.yml"),
	}, "")
	assert.Error(t, err, "unloadable manifests are reported")

	want := filepath.Join("api", "api.proto") + "\n" +
		filepath.Join("api", "api.pb.go") + "\n" +
		filepath.Join("api", "api.pb.gw.go") + "\n" +
		"/abs/out.txt\n"
	assert.Equal(t, want, buf.String())
}

func TestPrintInputs_RootOverride(t *testing.T) {
	base := t.TempDir()
	testutil.WriteFiles(t, base, map[string]string{
		"api/.resha.yml": "- cmd: gen\n  files: out.txt\n",
	})
	p, buf := newPrinter(base)

	require.NoError(t, p.PrintInputs([]string{filepath.Join(base, "api", ".resha.yml")}, base))
	assert.Equal(t, "out.txt\n", buf.String())
}

func TestPrintChanged(t *testing.T) {
	base := t.TempDir()
	p, buf := newPrinter(base)

	r := &reconcile.Report{
		Manifests: []reconcile.ManifestResult{
			{
				Path: filepath.Join(base, ".resha.yml"),
				Root: base,
				Entries: []reconcile.EntryResult{
					{State: reconcile.InSync, Files: []string{"same.txt"}},
					{State: reconcile.Recovered, Files: []string{"new.txt", "shared.txt"}},
					{State: reconcile.WouldRegenerate, Files: []string{"stale.txt", "shared.txt"}},
					{State: reconcile.Failed, Files: []string{"failed.txt"}},
				},
			},
		},
	}

	require.NoError(t, p.PrintChanged(r))
	assert.Equal(t, "new.txt\nshared.txt\nstale.txt\n", buf.String())
}
