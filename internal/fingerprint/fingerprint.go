// Package fingerprint computes the content digest recorded for each manifest
// entry.
package fingerprint

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"os"

	"github.com/schaermu/resha/internal/manifest"
)

// Digest is a lowercase hex SHA-256 fingerprint
type Digest string

// String returns the hex form of the digest.
func (d Digest) String() string {
	return string(d)
}

// version prefixes every digest so a framing change invalidates old ones
const version = "resha/v1"

// Role bytes distinguish the list a path was declared in
const (
	roleRequired byte = 'r'
	roleOutput   byte = 'f'
)

// Compute fingerprints an entry against the file contents under root.
//
// The digest covers, in order: the command text, then every required file,
// then every output file, each list in declared order. Every field is length
// prefixed, and each file contributes its role, its path as written, whether
// it could be read, and its content. A file that cannot be read for any
// reason hashes as absent.
func Compute(entry *manifest.Entry, root string) Digest {
	h := sha256.New()

	writeField(h, []byte(version))
	writeField(h, []byte(entry.Cmd))

	writeFiles(h, root, roleRequired, entry.RequiredFiles)
	writeFiles(h, root, roleOutput, entry.Files)

	return Digest(hex.EncodeToString(h.Sum(nil)))
}

// Missing returns the paths that cannot be read under root.
func Missing(root string, paths []string) []string {
	var missing []string
	for _, p := range paths {
		if _, ok := readFile(manifest.Resolve(root, p)); !ok {
			missing = append(missing, p)
		}
	}
	return missing
}

func writeFiles(h hash.Hash, root string, role byte, paths []string) {
	writeUint(h, uint64(len(paths)))
	for _, p := range paths {
		content, ok := readFile(manifest.Resolve(root, p))

		present := byte(0)
		if ok {
			present = 1
		}

		h.Write([]byte{role})
		writeField(h, []byte(p))
		h.Write([]byte{present})
		writeField(h, content)
	}
}

// writeField writes an 8-byte big-endian length followed by data
func writeField(h hash.Hash, data []byte) {
	writeUint(h, uint64(len(data)))
	h.Write(data)
}

func writeUint(h hash.Hash, n uint64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], n)
	h.Write(buf[:])
}

func readFile(path string) ([]byte, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	return data, true
}
