package compiler

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verimatch/verimatch/internal/manifest"
)

func TestAssembleInput_DefaultEVMVersionOmitted(t *testing.T) {
	input, err := AssembleInput(
		[]manifest.File{{Name: "Token.sol", Content: []byte("contract Token {}")}},
		"solidity",
		AssembleOptions{EVMVersion: EVMVersionDefault, OptimizerEnabled: true, OptimizerRuns: 200},
	)
	require.NoError(t, err)

	var settings map[string]any
	require.NoError(t, json.Unmarshal(input.Settings, &settings))
	// The remote compiler treats any evmVersion string as a fork name, so
	// "default" must translate to omission.
	assert.NotContains(t, settings, "evmVersion")

	optimizer, ok := settings["optimizer"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, optimizer["enabled"])
	assert.Equal(t, float64(200), optimizer["runs"])
}

func TestAssembleInput_ExplicitEVMVersionKept(t *testing.T) {
	input, err := AssembleInput(
		[]manifest.File{{Name: "Token.sol", Content: []byte("contract Token {}")}},
		"solidity",
		AssembleOptions{EVMVersion: "london", OptimizerEnabled: false, OptimizerRuns: 0},
	)
	require.NoError(t, err)

	var settings map[string]any
	require.NoError(t, json.Unmarshal(input.Settings, &settings))
	assert.Equal(t, "london", settings["evmVersion"])
}

func TestAssembleInput_LanguageNormalized(t *testing.T) {
	input, err := AssembleInput(
		[]manifest.File{{Name: "a.vy", Content: []byte("# vyper")}},
		"vyper",
		AssembleOptions{},
	)
	require.NoError(t, err)
	assert.Equal(t, "Vyper", input.Language)
}

func TestAssembleInput_SourcesKeyedByFileName(t *testing.T) {
	input, err := AssembleInput(
		[]manifest.File{
			{Name: "contracts/A.sol", Content: []byte("contract A {}")},
			{Name: "contracts/B.sol", Content: []byte("contract B {}")},
		},
		"solidity",
		AssembleOptions{},
	)
	require.NoError(t, err)
	assert.Len(t, input.Sources, 2)
	assert.Equal(t, "contract A {}", input.Sources["contracts/A.sol"].Content)
}

func TestAssembleInput_BinaryContentRejected(t *testing.T) {
	_, err := AssembleInput(
		[]manifest.File{{Name: "bad.sol", Content: []byte{0xff, 0xfe, 0x00}}},
		"solidity",
		AssembleOptions{},
	)
	require.Error(t, err)

	var fileErr *FileError
	require.ErrorAs(t, err, &fileErr)
	assert.Equal(t, "bad.sol", fileErr.Name)
}

func TestNormalizeLanguage(t *testing.T) {
	assert.Equal(t, "Solidity", NormalizeLanguage("solidity"))
	assert.Equal(t, "Solidity", NormalizeLanguage("Solidity"))
	assert.Equal(t, "Solidity", NormalizeLanguage(""))
	assert.Equal(t, "Yul", NormalizeLanguage("YUL"))
}
