package compiler

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/verimatch/verimatch/internal/manifest"
)

// EVMVersionDefault is the sentinel meaning "let the compiler pick". The
// remote compiler only understands omission or a real fork name, so this
// value is never emitted on the wire.
const EVMVersionDefault = "default"

// SourceContent is one source file inside a standard-JSON input.
type SourceContent struct {
	Content string `json:"content"`
}

// Optimizer mirrors the solc optimizer settings block.
type Optimizer struct {
	Enabled bool `json:"enabled"`
	Runs    int  `json:"runs"`
}

// Settings is the settings block of an assembled standard-JSON input.
// EVMVersion is dropped from the payload when left at the compiler default.
type Settings struct {
	Optimizer  Optimizer `json:"optimizer"`
	EVMVersion string    `json:"evmVersion,omitempty"`
}

// Input is the normalized standard-JSON compilation input accepted by the
// verification service. Settings stays raw so inputs parsed from std-json
// or build-info artifacts pass through byte-equivalent.
type Input struct {
	Language string                   `json:"language"`
	Sources  map[string]SourceContent `json:"sources"`
	Settings json.RawMessage          `json:"settings"`
}

// FileError reports a source file that could not be used.
type FileError struct {
	Name string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("file %s: %v", e.Name, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

// AssembleOptions are the user-selected compiler settings for assembled
// submissions (single-file and multiple-files methods).
type AssembleOptions struct {
	EVMVersion       string
	OptimizerEnabled bool
	OptimizerRuns    int
}

// AssembleInput builds a standard-JSON input from raw source files. File
// names become source paths verbatim; contents must be valid UTF-8 text.
func AssembleInput(files []manifest.File, language string, opts AssembleOptions) (*Input, error) {
	sources := make(map[string]SourceContent, len(files))
	for _, f := range files {
		if !utf8.Valid(f.Content) {
			return nil, &FileError{Name: f.Name, Err: fmt.Errorf("content is not valid UTF-8 text")}
		}
		sources[f.Name] = SourceContent{Content: string(f.Content)}
	}

	settings := Settings{
		Optimizer: Optimizer{Enabled: opts.OptimizerEnabled, Runs: opts.OptimizerRuns},
	}
	if opts.EVMVersion != "" && opts.EVMVersion != EVMVersionDefault {
		settings.EVMVersion = opts.EVMVersion
	}

	// Settings assembled locally always marshal cleanly.
	rawSettings, err := json.Marshal(settings)
	if err != nil {
		return nil, fmt.Errorf("encoding settings: %w", err)
	}

	return &Input{
		Language: NormalizeLanguage(language),
		Sources:  sources,
		Settings: rawSettings,
	}, nil
}

// NormalizeLanguage maps the lowercase language tag used internally to the
// capitalized form the remote compiler expects.
func NormalizeLanguage(language string) string {
	switch strings.ToLower(language) {
	case "solidity", "":
		return "Solidity"
	case "vyper":
		return "Vyper"
	case "yul":
		return "Yul"
	}
	return strings.ToUpper(language[:1]) + strings.ToLower(language[1:])
}
