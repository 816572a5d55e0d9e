// Package etherscan fetches contract sources from Etherscan-style explorer
// APIs and tracks the status of third-party verifier imports.
package etherscan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/verimatch/verimatch/internal/compiler"
)

// DefaultAPIURL is the unified Etherscan v2 endpoint.
const DefaultAPIURL = "https://api.etherscan.io/v2/api"

// Errors returned by the explorer client.
var (
	ErrMissingAPIKey = errors.New("etherscan API key required")
	ErrNotVerified   = errors.New("contract source not available on the explorer")
)

// Client talks to an Etherscan-compatible API. Requests are rate limited;
// the free tier allows 5 calls per second.
type Client struct {
	apiURL     string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithAPIURL overrides the explorer API endpoint
func WithAPIURL(u string) Option {
	return func(client *Client) {
		client.apiURL = u
	}
}

// NewClient creates an explorer client. The API key is mandatory; the
// explorer rejects keyless source lookups.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	c := &Client{
		apiURL: DefaultAPIURL,
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(5), 5),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Source is what the explorer returned for a verified contract. Exactly one
// of StdJSON and Flat is populated: explorers wrap standard-JSON submissions
// in the SourceCode field and return flat text for single-file ones.
type Source struct {
	ContractName     string
	CompilerVersion  string
	StdJSON          *compiler.Input
	Flat             string
	OptimizationUsed bool
	Runs             int
	EVMVersion       string
}

// FetchSource retrieves the source of a verified contract from the explorer.
func (c *Client) FetchSource(ctx context.Context, chainID int64, address string) (*Source, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{
		"chainid": {strconv.FormatInt(chainID, 10)},
		"module":  {"contract"},
		"action":  {"getsourcecode"},
		"address": {address},
		"apikey":  {c.apiKey},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("explorer request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("explorer returned HTTP %d", resp.StatusCode)
	}

	var envelope struct {
		Status  string `json:"status"`
		Message string `json:"message"`
		Result  []struct {
			SourceCode       string `json:"SourceCode"`
			ContractName     string `json:"ContractName"`
			CompilerVersion  string `json:"CompilerVersion"`
			OptimizationUsed string `json:"OptimizationUsed"`
			Runs             string `json:"Runs"`
			EVMVersion       string `json:"EVMVersion"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("parsing explorer response: %w", err)
	}

	if envelope.Status != "1" || len(envelope.Result) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotVerified, envelope.Message)
	}

	raw := envelope.Result[0]
	if raw.SourceCode == "" {
		return nil, ErrNotVerified
	}

	source := &Source{
		ContractName:     raw.ContractName,
		CompilerVersion:  strings.TrimPrefix(raw.CompilerVersion, "v"),
		OptimizationUsed: raw.OptimizationUsed == "1",
		EVMVersion:       normalizeEVMVersion(raw.EVMVersion),
	}
	if runs, err := strconv.Atoi(raw.Runs); err == nil {
		source.Runs = runs
	}

	if input, ok := parseWrappedStdJSON(raw.SourceCode); ok {
		source.StdJSON = input
	} else {
		source.Flat = raw.SourceCode
	}

	return source, nil
}

// parseWrappedStdJSON unwraps the explorer's standard-JSON encoding: the
// whole input serialized into SourceCode with an extra brace on each end.
func parseWrappedStdJSON(sourceCode string) (*compiler.Input, bool) {
	trimmed := strings.TrimSpace(sourceCode)
	if strings.HasPrefix(trimmed, "{{") && strings.HasSuffix(trimmed, "}}") {
		trimmed = trimmed[1 : len(trimmed)-1]
	} else if !strings.HasPrefix(trimmed, "{") {
		return nil, false
	}

	var input compiler.Input
	if err := json.Unmarshal([]byte(trimmed), &input); err != nil {
		return nil, false
	}
	if input.Language == "" || len(input.Sources) == 0 {
		return nil, false
	}
	return &input, true
}

// normalizeEVMVersion maps the explorer's "Default" to the local sentinel.
func normalizeEVMVersion(v string) string {
	if v == "" || strings.EqualFold(v, "default") {
		return compiler.EVMVersionDefault
	}
	return strings.ToLower(v)
}
