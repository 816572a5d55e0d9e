// Package manifest parses metadata.json-style source manifests and
// reconciles them against locally supplied files by content hash.
package manifest

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"
)

// ErrManifestParse indicates a manifest that is not a well-formed source
// manifest. It is returned before any candidate hashing happens.
var ErrManifestParse = errors.New("invalid manifest")

// Entry is a single source declared by a manifest. A source either embeds
// its content inline or is expected to be supplied as an external file.
type Entry struct {
	Keccak256 string `json:"keccak256"`
	Content   string `json:"content,omitempty"`
	License   string `json:"license,omitempty"`
}

// Manifest is a parsed source manifest. Raw preserves the original document
// verbatim for submission methods that forward the manifest unchanged.
type Manifest struct {
	Sources         map[string]Entry
	CompilerVersion string
	Language        string
	Raw             json.RawMessage
}

// Parse parses and validates a manifest document. Every declared source must
// carry a content hash; a manifest failing that check is rejected here so
// callers never hash candidates against a malformed manifest.
func Parse(raw []byte) (*Manifest, error) {
	var doc struct {
		Language string           `json:"language"`
		Sources  map[string]Entry `json:"sources"`
		Compiler struct {
			Version string `json:"version"`
		} `json:"compiler"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrManifestParse, err)
	}
	if len(doc.Sources) == 0 {
		return nil, fmt.Errorf("%w: no sources declared", ErrManifestParse)
	}
	for path, entry := range doc.Sources {
		if entry.Keccak256 == "" {
			return nil, fmt.Errorf("%w: source %q has no keccak256 hash", ErrManifestParse, path)
		}
	}

	return &Manifest{
		Sources:         doc.Sources,
		CompilerVersion: doc.Compiler.Version,
		Language:        doc.Language,
		Raw:             json.RawMessage(raw),
	}, nil
}

// File is a candidate source file supplied by the user.
type File struct {
	Name    string
	Content []byte
}

// Keccak256 computes the 0x-prefixed keccak256 digest of content. Manifests
// declare source hashes with this digest, so it is the sole matching key.
func Keccak256(content []byte) string {
	h := sha3.NewLegacyKeccak256()
	h.Write(content)
	return "0x" + hex.EncodeToString(h.Sum(nil))
}

// normalizeHash lowercases a hash and strips the 0x prefix so declared and
// computed hashes compare regardless of formatting.
func normalizeHash(h string) string {
	return strings.TrimPrefix(strings.ToLower(h), "0x")
}
