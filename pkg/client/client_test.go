package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verimatch/verimatch/internal/compiler"
)

func TestVerify_ReturnsVerificationID(t *testing.T) {
	var gotBody VerifyRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v2/verify/1/0xabc", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(VerifyResponse{VerificationID: "job-123"})
	}))
	defer srv.Close()

	c := New(srv.URL)
	id, err := c.Verify(context.Background(), 1, "0xabc", VerifyRequest{
		StdJSONInput: &compiler.Input{
			Language: "Solidity",
			Sources:  map[string]compiler.SourceContent{"A.sol": {Content: "contract A {}"}},
			Settings: json.RawMessage(`{}`),
		},
		CompilerVersion:    "0.8.19+commit.7dd6d404",
		ContractIdentifier: "A.sol:A",
	})

	require.NoError(t, err)
	assert.Equal(t, "job-123", id)
	assert.Equal(t, "0.8.19+commit.7dd6d404", gotBody.CompilerVersion)
	assert.Equal(t, "A.sol:A", gotBody.ContractIdentifier)
}

func TestVerify_RemoteRejectionSurfacedVerbatim(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"customCode":"invalid_standard_json","message":"settings missing","errorId":"e-1"}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.Verify(context.Background(), 1, "0xabc", VerifyRequest{})

	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "invalid_standard_json", remote.CustomCode)
	assert.Equal(t, "settings missing", remote.Message)
	assert.Equal(t, "e-1", remote.ErrorID)
	assert.Equal(t, http.StatusBadRequest, remote.StatusCode)
}

func TestVerify_UnparseableErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream exploded"))
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.Verify(context.Background(), 1, "0xabc", VerifyRequest{})

	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "http_502", remote.CustomCode)
}

func TestVerifyMetadata_PostsSourcesAndRawManifest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/verify/metadata/10/0xdef", r.URL.Path)
		var body map[string]json.RawMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Contains(t, body, "sources")
		assert.JSONEq(t, `{"sources":{"A.sol":{"keccak256":"0x1"}}}`, string(body["metadata"]))
		_ = json.NewEncoder(w).Encode(VerifyResponse{VerificationID: "job-meta"})
	}))
	defer srv.Close()

	c := New(srv.URL)
	id, err := c.VerifyMetadata(context.Background(), 10, "0xdef", VerifyMetadataRequest{
		Sources:  map[string]string{"A.sol": "contract A {}"},
		Metadata: json.RawMessage(`{"sources":{"A.sol":{"keccak256":"0x1"}}}`),
	})

	require.NoError(t, err)
	assert.Equal(t, "job-meta", id)
}

func TestContract_NotFoundIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"customCode":"not_verified","message":"no match"}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	match, err := c.Contract(context.Background(), 1, "0xabc")

	require.NoError(t, err)
	assert.Nil(t, match)
}

func TestContractAllChains_NotFoundIsEmptyList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL)
	matches, err := c.ContractAllChains(context.Background(), "0xabc")

	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestContractAllChains_Results(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/contract/all-chains/0xabc", r.URL.Path)
		_, _ = w.Write([]byte(`{"results":[{"chainId":"1","address":"0xabc","runtimeMatch":"perfect"}]}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	matches, err := c.ContractAllChains(context.Background(), "0xabc")

	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "perfect", matches[0].RuntimeMatch)
}

func TestVerificationJob_CompletedWithError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/verify/job-9", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"isJobCompleted": true,
			"verificationId": "job-9",
			"error": {"customCode": "no_match", "message": "bytecode mismatch", "recompiledRuntimeCode": "0x00ff"}
		}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	status, err := c.VerificationJob(context.Background(), "job-9")

	require.NoError(t, err)
	assert.True(t, status.IsJobCompleted)
	require.NotNil(t, status.Error)
	assert.Equal(t, "no_match", status.Error.CustomCode)
	assert.Equal(t, "0x00ff", status.Error.RecompiledRuntime)
}

func TestCompilerVersions_NewestFirst(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"builds":[
			{"version":"0.8.18","longVersion":"0.8.18+commit.87f61d96"},
			{"version":"0.8.19","longVersion":"0.8.19+commit.7dd6d404"}
		]}`))
	}))
	defer srv.Close()

	c := New("http://unused", WithVersionsURL(srv.URL))
	versions, err := c.CompilerVersions(context.Background())

	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, "0.8.19+commit.7dd6d404", versions[0].LongVersion)
}
