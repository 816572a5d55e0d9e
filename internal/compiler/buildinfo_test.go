package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validBuildInfo = `{
	"id": "f51a0f1b",
	"solcVersion": "0.8.19",
	"solcLongVersion": "0.8.19+commit.7dd6d404",
	"input": {
		"language": "Solidity",
		"sources": {"contracts/Token.sol": {"content": "contract Token {}"}},
		"settings": {"optimizer": {"enabled": true, "runs": 200}, "evmVersion": "paris"}
	},
	"output": {"contracts": {}}
}`

func TestExtractBuildInfo_Valid(t *testing.T) {
	info, err := ExtractBuildInfo([]byte(validBuildInfo), releaseList)
	require.NoError(t, err)

	assert.Equal(t, "Solidity", info.Input.Language)
	assert.Equal(t, "contract Token {}", info.Input.Sources["contracts/Token.sol"].Content)
	assert.JSONEq(t,
		`{"optimizer": {"enabled": true, "runs": 200}, "evmVersion": "paris"}`,
		string(info.Input.Settings))
	assert.Equal(t, "0.8.19+commit.7dd6d404", info.CompilerVersion.LongVersion)
}

func TestExtractBuildInfo_DiscardsBuildMetadata(t *testing.T) {
	info, err := ExtractBuildInfo([]byte(validBuildInfo), releaseList)
	require.NoError(t, err)

	// Only language, sources and settings survive; ids and outputs are
	// dropped before anything reaches the wire.
	assert.Len(t, info.Input.Sources, 1)
	assert.NotContains(t, string(info.Input.Settings), "output")
}

func TestExtractBuildInfo_InvalidJSON(t *testing.T) {
	_, err := ExtractBuildInfo([]byte("{oops"), releaseList)
	assert.ErrorIs(t, err, ErrInvalidJSON)
}

func TestExtractBuildInfo_MissingInput(t *testing.T) {
	_, err := ExtractBuildInfo([]byte(`{"solcVersion": "0.8.19"}`), releaseList)
	assert.ErrorIs(t, err, ErrInvalidStructure)
}

func TestExtractBuildInfo_MistypedLanguage(t *testing.T) {
	_, err := ExtractBuildInfo([]byte(`{
		"solcLongVersion": "0.8.19+commit.7dd6d404",
		"input": {"language": 42, "sources": {"a.sol": {"content": "x"}}, "settings": {}}
	}`), releaseList)
	assert.ErrorIs(t, err, ErrInvalidStructure)
}

func TestExtractBuildInfo_MistypedSources(t *testing.T) {
	_, err := ExtractBuildInfo([]byte(`{
		"solcLongVersion": "0.8.19+commit.7dd6d404",
		"input": {"language": "Solidity", "sources": ["a.sol"], "settings": {}}
	}`), releaseList)
	assert.ErrorIs(t, err, ErrInvalidStructure)
}

func TestExtractBuildInfo_MistypedSettings(t *testing.T) {
	_, err := ExtractBuildInfo([]byte(`{
		"solcLongVersion": "0.8.19+commit.7dd6d404",
		"input": {"language": "Solidity", "sources": {"a.sol": {"content": "x"}}, "settings": "O2"}
	}`), releaseList)
	assert.ErrorIs(t, err, ErrInvalidStructure)
}

func TestExtractBuildInfo_FallsBackToShortVersion(t *testing.T) {
	info, err := ExtractBuildInfo([]byte(`{
		"solcVersion": "0.8.20",
		"solcLongVersion": "0.8.20-nightly.custom",
		"input": {"language": "Solidity", "sources": {"a.sol": {"content": "x"}}, "settings": {}}
	}`), releaseList)
	require.NoError(t, err)
	assert.Equal(t, "0.8.20+commit.a1b79de6", info.CompilerVersion.LongVersion)
}

func TestExtractBuildInfo_UnresolvedVersion(t *testing.T) {
	_, err := ExtractBuildInfo([]byte(`{
		"solcVersion": "9.9.9",
		"solcLongVersion": "9.9.9+commit.00000000",
		"input": {"language": "Solidity", "sources": {"a.sol": {"content": "x"}}, "settings": {}}
	}`), releaseList)
	assert.ErrorIs(t, err, ErrUnresolvedVersion)
}
