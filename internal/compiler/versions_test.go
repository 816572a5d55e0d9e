package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var releaseList = []Version{
	{Version: "0.8.20", LongVersion: "0.8.20+commit.a1b79de6"},
	{Version: "0.8.19", LongVersion: "0.8.19+commit.7dd6d404"},
	{Version: "0.8.19", LongVersion: "0.8.19+commit.deadbeef"},
	{Version: "0.4.11", LongVersion: "0.4.11+commit.68ef5810"},
}

func TestResolveVersion_ExactLongMatch(t *testing.T) {
	v, ok := ResolveVersion("0.8.19+commit.7dd6d404", releaseList)
	assert.True(t, ok)
	assert.Equal(t, "0.8.19+commit.7dd6d404", v.LongVersion)
}

func TestResolveVersion_BareVersionPrefixMatch(t *testing.T) {
	v, ok := ResolveVersion("0.8.19", releaseList)
	assert.True(t, ok)
	// First match in list order wins when several builds share the prefix.
	assert.Equal(t, "0.8.19+commit.7dd6d404", v.LongVersion)
}

func TestResolveVersion_NotFound(t *testing.T) {
	_, ok := ResolveVersion("9.9.9", releaseList)
	assert.False(t, ok)
}

func TestResolveVersion_NoPrefixFallbackForLongCandidates(t *testing.T) {
	// A candidate carrying build metadata must match exactly or not at all.
	_, ok := ResolveVersion("0.8.19+commit.ffffffff", releaseList)
	assert.False(t, ok)
}

func TestResolveVersion_EmptyCandidate(t *testing.T) {
	_, ok := ResolveVersion("", releaseList)
	assert.False(t, ok)
}

func TestResolveVersion_PrefixRequiresCommitBoundary(t *testing.T) {
	// "0.4.1" must not resolve to 0.4.11.
	_, ok := ResolveVersion("0.4.1", releaseList)
	assert.False(t, ok)
}
