package compiler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Errors returned when a build-info artifact cannot be converted into a
// compilation input.
var (
	ErrInvalidJSON       = errors.New("build-info is not valid JSON")
	ErrInvalidStructure  = errors.New("build-info has an unexpected structure")
	ErrUnresolvedVersion = errors.New("build-info compiler version not found in release list")
)

// BuildInfo is the subset of a framework build-info artifact relevant for
// verification: the embedded compilation input and the resolved compiler.
// Every other build-info field (artifact listings, build ids) is discarded
// so it never leaks into the submission payload.
type BuildInfo struct {
	Input           Input
	CompilerVersion Version
}

// ExtractBuildInfo validates a build-info artifact and converts it into a
// compilation input plus a resolved compiler version.
func ExtractBuildInfo(raw []byte, known []Version) (*BuildInfo, error) {
	var doc struct {
		SolcVersion     string `json:"solcVersion"`
		SolcLongVersion string `json:"solcLongVersion"`
		Input           *struct {
			Language json.RawMessage `json:"language"`
			Sources  json.RawMessage `json:"sources"`
			Settings json.RawMessage `json:"settings"`
		} `json:"input"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}

	if doc.Input == nil {
		return nil, fmt.Errorf("%w: missing input", ErrInvalidStructure)
	}

	var language string
	if err := json.Unmarshal(doc.Input.Language, &language); err != nil || language == "" {
		return nil, fmt.Errorf("%w: input.language must be a string", ErrInvalidStructure)
	}

	var sources map[string]SourceContent
	if err := json.Unmarshal(doc.Input.Sources, &sources); err != nil || len(sources) == 0 {
		return nil, fmt.Errorf("%w: input.sources must be a non-empty mapping", ErrInvalidStructure)
	}

	if !isJSONObject(doc.Input.Settings) {
		return nil, fmt.Errorf("%w: input.settings must be an object", ErrInvalidStructure)
	}

	version, ok := ResolveVersion(doc.SolcLongVersion, known)
	if !ok {
		version, ok = ResolveVersion(doc.SolcVersion, known)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnresolvedVersion, doc.SolcLongVersion)
	}

	return &BuildInfo{
		Input: Input{
			Language: language,
			Sources:  sources,
			Settings: doc.Input.Settings,
		},
		CompilerVersion: version,
	}, nil
}

func isJSONObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}
