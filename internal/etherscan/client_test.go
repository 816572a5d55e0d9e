package etherscan

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_RequiresAPIKey(t *testing.T) {
	_, err := NewClient("")
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestFetchSource_FlatSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "contract", q.Get("module"))
		assert.Equal(t, "getsourcecode", q.Get("action"))
		assert.Equal(t, "0xabc", q.Get("address"))
		assert.Equal(t, "1", q.Get("chainid"))
		assert.Equal(t, "test-key", q.Get("apikey"))

		_, _ = w.Write([]byte(`{"status":"1","message":"OK","result":[{
			"SourceCode":"contract Token {}",
			"ContractName":"Token",
			"CompilerVersion":"v0.8.19+commit.7dd6d404",
			"OptimizationUsed":"1",
			"Runs":"200",
			"EVMVersion":"Default"
		}]}`))
	}))
	defer srv.Close()

	c, err := NewClient("test-key", WithAPIURL(srv.URL))
	require.NoError(t, err)

	source, err := c.FetchSource(context.Background(), 1, "0xabc")
	require.NoError(t, err)

	assert.Nil(t, source.StdJSON)
	assert.Equal(t, "contract Token {}", source.Flat)
	assert.Equal(t, "Token", source.ContractName)
	// The explorer's leading "v" is stripped for the resolver.
	assert.Equal(t, "0.8.19+commit.7dd6d404", source.CompilerVersion)
	assert.True(t, source.OptimizationUsed)
	assert.Equal(t, 200, source.Runs)
	assert.Equal(t, "default", source.EVMVersion)
}

func TestFetchSource_WrappedStandardJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"1","message":"OK","result":[{
			"SourceCode":"{{\"language\":\"Solidity\",\"sources\":{\"Token.sol\":{\"content\":\"contract Token {}\"}},\"settings\":{\"optimizer\":{\"enabled\":true,\"runs\":200}}}}",
			"ContractName":"Token",
			"CompilerVersion":"v0.8.19+commit.7dd6d404",
			"OptimizationUsed":"1",
			"Runs":"200",
			"EVMVersion":"london"
		}]}`))
	}))
	defer srv.Close()

	c, err := NewClient("test-key", WithAPIURL(srv.URL))
	require.NoError(t, err)

	source, err := c.FetchSource(context.Background(), 1, "0xabc")
	require.NoError(t, err)

	require.NotNil(t, source.StdJSON)
	assert.Equal(t, "Solidity", source.StdJSON.Language)
	assert.Equal(t, "contract Token {}", source.StdJSON.Sources["Token.sol"].Content)
	assert.Empty(t, source.Flat)
	assert.Equal(t, "london", source.EVMVersion)
}

func TestFetchSource_NotVerified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"0","message":"NOTOK","result":[]}`))
	}))
	defer srv.Close()

	c, err := NewClient("test-key", WithAPIURL(srv.URL))
	require.NoError(t, err)

	_, err = c.FetchSource(context.Background(), 1, "0xabc")
	assert.ErrorIs(t, err, ErrNotVerified)
}

func TestFetchSource_EmptySourceCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"1","message":"OK","result":[{"SourceCode":""}]}`))
	}))
	defer srv.Close()

	c, err := NewClient("test-key", WithAPIURL(srv.URL))
	require.NoError(t, err)

	_, err = c.FetchSource(context.Background(), 1, "0xabc")
	assert.ErrorIs(t, err, ErrNotVerified)
}
