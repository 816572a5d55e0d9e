package manifest

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func manifestFor(t *testing.T, sources map[string]Entry) *Manifest {
	t.Helper()
	m := &Manifest{Sources: sources}
	return m
}

func TestKeccak256_EmptyInput(t *testing.T) {
	// Pinned value: keccak256 of the empty string. Guards against the hash
	// silently becoming SHA3-256, which has a different empty digest.
	assert.Equal(t,
		"0xc5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470",
		Keccak256(nil))
}

func TestParse_InvalidJSON(t *testing.T) {
	_, err := Parse([]byte("{not json"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrManifestParse)
}

func TestParse_NoSources(t *testing.T) {
	_, err := Parse([]byte(`{"language":"Solidity"}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrManifestParse)
}

func TestParse_EntryWithoutHash(t *testing.T) {
	_, err := Parse([]byte(`{"sources":{"A.sol":{"content":"contract A {}"}}}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrManifestParse)
}

func TestParse_PreservesRawAndCompiler(t *testing.T) {
	raw := []byte(`{"language":"Solidity","compiler":{"version":"0.8.19+commit.7dd6d404"},"sources":{"A.sol":{"keccak256":"0xabc"}}}`)
	m, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "0.8.19+commit.7dd6d404", m.CompilerVersion)
	assert.Equal(t, "Solidity", m.Language)
	assert.JSONEq(t, string(raw), string(m.Raw))
}

func TestReconcile_MatchByContentNotName(t *testing.T) {
	content := []byte("contract Token {}")
	m := manifestFor(t, map[string]Entry{
		"contracts/Token.sol": {Keccak256: Keccak256(content)},
	})

	// File name bears no relation to the manifest path.
	r := Reconcile(m, []File{{Name: "renamed.sol", Content: content}})

	require.Len(t, r.Sources, 1)
	assert.Equal(t, StatusFound, r.Sources[0].Status)
	assert.True(t, r.Sources[0].Valid)
	assert.Equal(t, "renamed.sol", r.Sources[0].MatchedFile)
	assert.True(t, r.AllSatisfied())
	assert.Equal(t, string(content), r.Resolved["contracts/Token.sol"])
}

func TestReconcile_MissingSource(t *testing.T) {
	m := manifestFor(t, map[string]Entry{
		"A.sol": {Keccak256: Keccak256([]byte("contract A {}"))},
	})

	r := Reconcile(m, []File{{Name: "B.sol", Content: []byte("contract B {}")}})

	require.Len(t, r.Sources, 1)
	assert.Equal(t, StatusMissing, r.Sources[0].Status)
	assert.False(t, r.Sources[0].Valid)
	assert.False(t, r.AllSatisfied())
	assert.Equal(t, []string{"B.sol"}, r.Unnecessary)
}

func TestReconcile_EmbeddedContent(t *testing.T) {
	content := "library Math {}"
	m := manifestFor(t, map[string]Entry{
		"Math.sol": {Keccak256: Keccak256([]byte(content)), Content: content},
	})

	r := Reconcile(m, nil)

	require.Len(t, r.Sources, 1)
	assert.Equal(t, StatusEmbedded, r.Sources[0].Status)
	assert.True(t, r.Sources[0].Valid)
	assert.True(t, r.AllSatisfied())
	assert.Equal(t, content, r.Resolved["Math.sol"])
}

func TestReconcile_EmbeddedHashMismatch(t *testing.T) {
	m := manifestFor(t, map[string]Entry{
		"Math.sol": {Keccak256: Keccak256([]byte("original")), Content: "tampered"},
	})

	r := Reconcile(m, nil)

	require.Len(t, r.Sources, 1)
	assert.Equal(t, StatusEmbedded, r.Sources[0].Status)
	assert.False(t, r.Sources[0].Valid)
	assert.False(t, r.AllSatisfied())
	assert.NotContains(t, r.Resolved, "Math.sol")
}

func TestReconcile_HashPrefixAndCaseInsensitive(t *testing.T) {
	content := []byte("contract C {}")
	declared := "0X" + Keccak256(content)[2:]
	m := manifestFor(t, map[string]Entry{"C.sol": {Keccak256: declared}})

	r := Reconcile(m, []File{{Name: "C.sol", Content: content}})
	assert.True(t, r.AllSatisfied())
}

func TestReconcile_DeterministicUnderReordering(t *testing.T) {
	a := []byte("contract A {}")
	b := []byte("contract B {}")
	m := manifestFor(t, map[string]Entry{
		"A.sol": {Keccak256: Keccak256(a)},
		"B.sol": {Keccak256: Keccak256(b)},
	})

	forward := Reconcile(m, []File{{Name: "a.sol", Content: a}, {Name: "b.sol", Content: b}})
	backward := Reconcile(m, []File{{Name: "b.sol", Content: b}, {Name: "a.sol", Content: a}})

	assert.Equal(t, forward, backward)
}

func TestReconcile_DuplicateContentPicksStableName(t *testing.T) {
	content := []byte("contract Dup {}")
	m := manifestFor(t, map[string]Entry{
		"Dup.sol": {Keccak256: Keccak256(content)},
	})

	r1 := Reconcile(m, []File{{Name: "z.sol", Content: content}, {Name: "a.sol", Content: content}})
	r2 := Reconcile(m, []File{{Name: "a.sol", Content: content}, {Name: "z.sol", Content: content}})

	assert.Equal(t, "a.sol", r1.Sources[0].MatchedFile)
	assert.Equal(t, r1.Sources[0].MatchedFile, r2.Sources[0].MatchedFile)
	assert.Equal(t, []string{"z.sol"}, r1.Unnecessary)
}

func TestReconcile_AllSatisfiedProperty(t *testing.T) {
	// allRequiredSatisfied holds iff every non-embedded hash appears among
	// the candidates and every embedded hash matches its embedded content.
	for i, tc := range []struct {
		sources map[string]Entry
		files   []File
		want    bool
	}{
		{
			sources: map[string]Entry{
				"A.sol": {Keccak256: Keccak256([]byte("a"))},
				"B.sol": {Keccak256: Keccak256([]byte("b")), Content: "b"},
			},
			files: []File{{Name: "x", Content: []byte("a")}},
			want:  true,
		},
		{
			sources: map[string]Entry{
				"A.sol": {Keccak256: Keccak256([]byte("a"))},
			},
			files: nil,
			want:  false,
		},
		{
			sources: map[string]Entry{
				"B.sol": {Keccak256: Keccak256([]byte("b")), Content: "not b"},
			},
			files: nil,
			want:  false,
		},
	} {
		t.Run(fmt.Sprintf("case_%d", i), func(t *testing.T) {
			r := Reconcile(manifestFor(t, tc.sources), tc.files)
			assert.Equal(t, tc.want, r.AllSatisfied())
		})
	}
}
