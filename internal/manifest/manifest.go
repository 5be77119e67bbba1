package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultNames are the manifest file names looked up when no pattern is given
var DefaultNames = []string{".resha.yml", ".resha.yaml"}

// Manifest is an ordered list of entries backed by one file
type Manifest struct {
	Path    string
	Entries []*Entry

	doc *yaml.Node
}

// Dir returns the directory containing the manifest file.
func (m *Manifest) Dir() string {
	return filepath.Dir(m.Path)
}

// Load reads and parses the manifest at path
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}

	m, err := Parse(path, data)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return m, nil
}

// Parse decodes manifest text. path is recorded on the result but not read.
func Parse(path string, data []byte) (*Manifest, error) {
	m := &Manifest{Path: path}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	var doc yaml.Node
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return m, nil
		}
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}

	// Save writes back a single document, so later ones would be lost
	var extra yaml.Node
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		if err != nil {
			return nil, fmt.Errorf("invalid YAML: %w", err)
		}
		return nil, fmt.Errorf("%w: more than one YAML document (line %d)", ErrMalformed, extra.Line)
	}

	// Empty file
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return m, nil
	}
	m.doc = &doc

	root := doc.Content[0]
	if root.Kind == yaml.ScalarNode && root.Tag == "!!null" {
		return m, nil
	}
	if root.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("%w: expected a list of entries (line %d)", ErrMalformed, root.Line)
	}

	m.Entries = make([]*Entry, 0, len(root.Content))
	for i, item := range root.Content {
		entry, err := decodeEntry(item)
		if err != nil {
			return nil, fmt.Errorf("entry %d (line %d): %w", i, item.Line, err)
		}
		m.Entries = append(m.Entries, entry)
	}

	return m, nil
}

func decodeEntry(node *yaml.Node) (*Entry, error) {
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: entry is not a mapping", ErrMalformed)
	}

	entry := &Entry{node: node}
	hasCmd := false
	seen := make(map[string]bool)

	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]

		switch key.Value {
		case keyName, keyCmd, keyFiles, keyRequiredFiles, keySHA:
			if seen[key.Value] {
				return nil, fmt.Errorf("%w: duplicate key '%s' (line %d)", ErrMalformed, key.Value, key.Line)
			}
			seen[key.Value] = true
		}

		switch key.Value {
		case keyName:
			if s, ok := scalarString(val); ok {
				entry.Name = Some(s)
			}
		case keyCmd:
			s, ok := scalarString(val)
			if !ok {
				return nil, fmt.Errorf("%w: 'cmd' must be a string", ErrMalformed)
			}
			entry.Cmd = s
			hasCmd = true
		case keyFiles:
			files, err := stringList(val)
			if err != nil {
				return nil, fmt.Errorf("'files': %w", err)
			}
			entry.Files = files
		case keyRequiredFiles:
			files, err := stringList(val)
			if err != nil {
				return nil, fmt.Errorf("'required_files': %w", err)
			}
			entry.RequiredFiles = files
		case keySHA:
			if s, ok := scalarString(val); ok {
				entry.SHA = Some(s)
			}
		}
		// unknown keys stay in the node untouched
	}

	if !hasCmd {
		return nil, ErrMissingCmd
	}
	return entry, nil
}

// scalarString returns the value of a non-null scalar node
func scalarString(n *yaml.Node) (string, bool) {
	if n.Kind != yaml.ScalarNode || n.Tag == "!!null" {
		return "", false
	}
	return n.Value, true
}

// stringList accepts a sequence of scalars or a single scalar
func stringList(n *yaml.Node) ([]string, error) {
	switch n.Kind {
	case yaml.ScalarNode:
		if n.Tag == "!!null" {
			return nil, nil
		}
		return []string{n.Value}, nil
	case yaml.SequenceNode:
		out := make([]string, 0, len(n.Content))
		for _, item := range n.Content {
			s, ok := scalarString(item)
			if !ok {
				return nil, fmt.Errorf("%w: list item on line %d is not a path", ErrMalformed, item.Line)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: expected a path or a list of paths", ErrMalformed)
	}
}

// Encode writes the manifest as YAML to w
func (m *Manifest) Encode(w io.Writer) error {
	if m.doc == nil {
		return nil
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(m.doc); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

// Save writes the manifest back to its file with an atomic rename
func (m *Manifest) Save() error {
	var buf bytes.Buffer
	if err := m.Encode(&buf); err != nil {
		return &WriteError{Path: m.Path, Err: err}
	}
	if err := writeFileAtomic(m.Path, buf.Bytes()); err != nil {
		return &WriteError{Path: m.Path, Err: err}
	}
	return nil
}

// writeFileAtomic replaces path with data, keeping the existing file mode
func writeFileAtomic(path string, data []byte) error {
	mode := os.FileMode(0644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(path), ".resha-tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}() // cleanup on error

	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Chmod(mode); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}

	return os.Rename(tmpPath, path)
}
