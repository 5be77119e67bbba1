package manifest

import (
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Field names recognized in a manifest record
const (
	keyName          = "name"
	keyCmd           = "cmd"
	keyFiles         = "files"
	keyRequiredFiles = "required_files"
	keySHA           = "sha"
)

// Entry is one generation task read from a manifest
type Entry struct {
	Name          Optional[string]
	Cmd           string
	Files         []string // outputs produced by Cmd
	RequiredFiles []string // inputs Cmd depends on
	SHA           Optional[string]

	// node is the mapping node the entry was decoded from. Updates to SHA
	// are written into it so that unknown keys and formatting survive a
	// rewrite.
	node *yaml.Node
}

// Label returns the entry name, or the command when the entry is unnamed.
func (e *Entry) Label() string {
	if name, ok := e.Name.Get(); ok && name != "" {
		return name
	}
	return firstLine(e.Cmd)
}

// RecordedSHA returns the recorded fingerprint. An empty string counts as
// absent.
func (e *Entry) RecordedSHA() (string, bool) {
	sha, ok := e.SHA.Get()
	if !ok || sha == "" {
		return "", false
	}
	return sha, true
}

// SetSHA records a new fingerprint on the entry and its backing node.
func (e *Entry) SetSHA(sha string) {
	e.SHA = Some(sha)
	if e.node == nil {
		return
	}

	for i := 0; i+1 < len(e.node.Content); i += 2 {
		if e.node.Content[i].Value == keySHA {
			val := e.node.Content[i+1]
			val.Kind = yaml.ScalarNode
			val.Tag = "!!str"
			val.Value = sha
			val.Content = nil
			return
		}
	}

	e.node.Content = append(e.node.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: keySHA},
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: sha},
	)
}

// Resolve returns path resolved against root unless it is already absolute.
func Resolve(root, path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(root, path)
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
