package fingerprint

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schaermu/resha/internal/manifest"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestCompute_Deterministic(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "in.txt", "x")
	writeFile(t, dir, "out.txt", "hi\n")

	entry := &manifest.Entry{
		Cmd:           "echo hi > out.txt",
		RequiredFiles: []string{"in.txt"},
		Files:         []string{"out.txt"},
	}

	d1 := Compute(entry, dir)
	d2 := Compute(entry, dir)
	assert.Equal(t, d1, d2)
	assert.Len(t, d1.String(), 64)
	assert.Regexp(t, "^[0-9a-f]{64}$", d1.String())
}

func TestCompute_IndependentOfRootLocation(t *testing.T) {
	a, b := t.TempDir(), t.TempDir()
	for _, dir := range []string{a, b} {
		writeFile(t, dir, "src/in.txt", "same")
	}
	entry := &manifest.Entry{Cmd: "gen", RequiredFiles: []string{"src/in.txt"}}

	assert.Equal(t, Compute(entry, a), Compute(entry, b))
}

func TestCompute_IgnoresMetadata(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "in.txt", "data")
	entry := &manifest.Entry{Cmd: "gen", RequiredFiles: []string{"in.txt"}}

	before := Compute(entry, dir)

	path := filepath.Join(dir, "in.txt")
	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(path, past, past))
	require.NoError(t, os.Chmod(path, 0600))

	assert.Equal(t, before, Compute(entry, dir))
}

func TestCompute_Changes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "A")
	writeFile(t, dir, "b.txt", "B")

	base := &manifest.Entry{
		Cmd:           "gen",
		RequiredFiles: []string{"a.txt", "b.txt"},
		Files:         []string{"out.txt"},
	}
	baseDigest := Compute(base, dir)

	tests := []struct {
		name  string
		entry *manifest.Entry
		setup func(t *testing.T)
	}{
		{
			name:  "command text",
			entry: &manifest.Entry{Cmd: "gen2", RequiredFiles: base.RequiredFiles, Files: base.Files},
		},
		{
			name:  "required file order",
			entry: &manifest.Entry{Cmd: "gen", RequiredFiles: []string{"b.txt", "a.txt"}, Files: base.Files},
		},
		{
			name:  "path moved between roles",
			entry: &manifest.Entry{Cmd: "gen", RequiredFiles: []string{"a.txt"}, Files: []string{"b.txt", "out.txt"}},
		},
		{
			name:  "output created",
			entry: base,
			setup: func(t *testing.T) { writeFile(t, dir, "out.txt", "") },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.setup != nil {
				tt.setup(t)
			}
			assert.NotEqual(t, baseDigest, Compute(tt.entry, dir))
		})
	}
}

func TestCompute_OutputOrder(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "x.txt", "1")
	writeFile(t, dir, "y.txt", "2")

	e1 := &manifest.Entry{Cmd: "gen", Files: []string{"x.txt", "y.txt"}}
	e2 := &manifest.Entry{Cmd: "gen", Files: []string{"y.txt", "x.txt"}}
	assert.NotEqual(t, Compute(e1, dir), Compute(e2, dir))
}

func TestCompute_EmptyFileDiffersFromMissing(t *testing.T) {
	dir := t.TempDir()
	entry := &manifest.Entry{Cmd: "gen", Files: []string{"out.txt"}}

	missing := Compute(entry, dir)
	writeFile(t, dir, "out.txt", "")
	empty := Compute(entry, dir)

	assert.NotEqual(t, missing, empty)
}

func TestCompute_UnreadablePathIsAbsent(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0755))

	asDir := &manifest.Entry{Cmd: "gen", Files: []string{"sub"}}
	absent := &manifest.Entry{Cmd: "gen", Files: []string{"sub"}}

	// a directory cannot be read as a file and hashes the same as a
	// missing path of the same name
	d1 := Compute(asDir, dir)
	require.NoError(t, os.Remove(filepath.Join(dir, "sub")))
	assert.Equal(t, d1, Compute(absent, dir))
}

func TestCompute_FramingIsUnambiguous(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "f1", "c")
	writeFile(t, dir, "f2", "bc")

	// "ab"+"c" must not collide with "a"+"bc"
	e1 := &manifest.Entry{Cmd: "ab", RequiredFiles: []string{"f1"}}
	e2 := &manifest.Entry{Cmd: "a", RequiredFiles: []string{"f2"}}
	assert.NotEqual(t, Compute(e1, dir), Compute(e2, dir))

	// the same content split across two files differs from one file
	writeFile(t, dir, "p1", "ab")
	writeFile(t, dir, "p2", "c")
	writeFile(t, dir, "q1", "a")
	writeFile(t, dir, "q2", "bc")
	e3 := &manifest.Entry{Cmd: "gen", RequiredFiles: []string{"p1", "p2"}}
	e4 := &manifest.Entry{Cmd: "gen", RequiredFiles: []string{"q1", "q2"}}
	assert.NotEqual(t, Compute(e3, dir), Compute(e4, dir))
}

func TestCompute_DuplicatePathsAreNotMerged(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "shared.txt", "s")

	both := &manifest.Entry{Cmd: "gen", RequiredFiles: []string{"shared.txt"}, Files: []string{"shared.txt"}}
	inputOnly := &manifest.Entry{Cmd: "gen", RequiredFiles: []string{"shared.txt"}}
	twice := &manifest.Entry{Cmd: "gen", RequiredFiles: []string{"shared.txt", "shared.txt"}}

	assert.NotEqual(t, Compute(both, dir), Compute(inputOnly, dir))
	assert.NotEqual(t, Compute(both, dir), Compute(twice, dir))
}

func TestCompute_NameAndSHAExcluded(t *testing.T) {
	dir := t.TempDir()
	plain := &manifest.Entry{Cmd: "gen"}
	decorated := &manifest.Entry{Cmd: "gen", Name: manifest.Some("label"), SHA: manifest.Some("abc")}

	assert.Equal(t, Compute(plain, dir), Compute(decorated, dir))
}

func TestMissing(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "present.txt", "ok")

	missing := Missing(dir, []string{"present.txt", "gone.txt", filepath.Join(dir, "also-gone.txt")})
	assert.Equal(t, []string{"gone.txt", filepath.Join(dir, "also-gone.txt")}, missing)
	assert.Empty(t, Missing(dir, nil))
}
