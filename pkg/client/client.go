// Package client provides a Go client for the remote contract-verification API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/verimatch/verimatch/internal/compiler"
)

// DefaultVersionsURL is the published solc release list consumed by the
// version resolver.
const DefaultVersionsURL = "https://binaries.soliditylang.org/bin/list.json"

// Client is a verification service API client
type Client struct {
	baseURL     string
	versionsURL string
	httpClient  *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithVersionsURL overrides the compiler release list URL
func WithVersionsURL(u string) Option {
	return func(client *Client) {
		client.versionsURL = u
	}
}

// New creates a new verification service client
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:     baseURL,
		versionsURL: DefaultVersionsURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Chain is one chain supported by the verification service
type Chain struct {
	Name      string `json:"name"`
	Title     string `json:"title,omitempty"`
	ChainID   int64  `json:"chainId"`
	Supported bool   `json:"supported"`
}

// VerifyRequest is the body for standard-JSON verification submissions
type VerifyRequest struct {
	StdJSONInput            *compiler.Input `json:"stdJsonInput"`
	CompilerVersion         string          `json:"compilerVersion"`
	ContractIdentifier      string          `json:"contractIdentifier"`
	CreationTransactionHash string          `json:"creationTransactionHash,omitempty"`
}

// VerifyMetadataRequest is the body for metadata verification submissions
type VerifyMetadataRequest struct {
	Sources                 map[string]string `json:"sources"`
	Metadata                json.RawMessage   `json:"metadata"`
	CreationTransactionHash string            `json:"creationTransactionHash,omitempty"`
}

// VerifyResponse carries the opaque job identifier. Nothing else in the
// submission response is trusted.
type VerifyResponse struct {
	VerificationID string `json:"verificationId"`
}

// ContractMatch is the service's record of a verified contract
type ContractMatch struct {
	ChainID       string `json:"chainId,omitempty"`
	Address       string `json:"address,omitempty"`
	RuntimeMatch  string `json:"runtimeMatch,omitempty"`
	CreationMatch string `json:"creationMatch,omitempty"`
	VerifiedAt    string `json:"verifiedAt,omitempty"`
	MatchID       string `json:"matchId,omitempty"`
}

// JobError is the structured failure reported for a completed job. The
// bytecode fields, when present, feed the diff tool for diagnosis.
type JobError struct {
	CustomCode         string   `json:"customCode"`
	Message            string   `json:"message"`
	ErrorID            string   `json:"errorId,omitempty"`
	RecompiledCreation string   `json:"recompiledCreationCode,omitempty"`
	RecompiledRuntime  string   `json:"recompiledRuntimeCode,omitempty"`
	OnchainCreation    string   `json:"onchainCreationCode,omitempty"`
	OnchainRuntime     string   `json:"onchainRuntimeCode,omitempty"`
	CompilationErrors  []string `json:"errors,omitempty"`
}

// JobStatus is the polled state of a verification job
type JobStatus struct {
	IsJobCompleted bool           `json:"isJobCompleted"`
	VerificationID string         `json:"verificationId"`
	Contract       *ContractMatch `json:"contract,omitempty"`
	Error          *JobError      `json:"error,omitempty"`
}

// RemoteError is a non-2xx response body from the service
type RemoteError struct {
	StatusCode int    `json:"-"`
	CustomCode string `json:"customCode"`
	Message    string `json:"message"`
	ErrorID    string `json:"errorId,omitempty"`
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", e.CustomCode, e.Message)
}

// Chains lists chains supported by the verification service
func (c *Client) Chains(ctx context.Context) ([]Chain, error) {
	var resp []Chain
	if err := c.get(ctx, "/chains", &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Verify submits a standard-JSON input for verification and returns the
// opaque job identifier
func (c *Client) Verify(ctx context.Context, chainID int64, address string, req VerifyRequest) (string, error) {
	var resp VerifyResponse
	path := fmt.Sprintf("/v2/verify/%d/%s", chainID, url.PathEscape(address))
	if err := c.post(ctx, path, req, &resp); err != nil {
		return "", err
	}
	return resp.VerificationID, nil
}

// VerifyMetadata submits resolved sources plus the raw manifest for
// metadata-based verification
func (c *Client) VerifyMetadata(ctx context.Context, chainID int64, address string, req VerifyMetadataRequest) (string, error) {
	var resp VerifyResponse
	path := fmt.Sprintf("/v2/verify/metadata/%d/%s", chainID, url.PathEscape(address))
	if err := c.post(ctx, path, req, &resp); err != nil {
		return "", err
	}
	return resp.VerificationID, nil
}

// VerificationJob polls the status of a submitted job
func (c *Client) VerificationJob(ctx context.Context, verificationID string) (*JobStatus, error) {
	var resp JobStatus
	if err := c.get(ctx, "/v2/verify/"+url.PathEscape(verificationID), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Contract looks up the verified contract at an address. A 404 means "not
// yet verified" and returns nil without an error.
func (c *Client) Contract(ctx context.Context, chainID int64, address string) (*ContractMatch, error) {
	var resp ContractMatch
	path := fmt.Sprintf("/v2/contract/%d/%s", chainID, url.PathEscape(address))
	if err := c.get(ctx, path, &resp); err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &resp, nil
}

// ContractAllChains looks up verified contracts at an address across every
// supported chain. A 404 means no matches and returns an empty list.
func (c *Client) ContractAllChains(ctx context.Context, address string) ([]ContractMatch, error) {
	var resp struct {
		Results []ContractMatch `json:"results"`
	}
	if err := c.get(ctx, "/v2/contract/all-chains/"+url.PathEscape(address), &resp); err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return resp.Results, nil
}

// CompilerVersions fetches the published compiler release list, newest
// release first.
func (c *Client) CompilerVersions(ctx context.Context) ([]compiler.Version, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.versionsURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, c.parseError(resp)
	}

	var list struct {
		Builds []compiler.Version `json:"builds"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("parsing release list: %w", err)
	}

	// The published list is oldest-first; the resolver's first-match-wins
	// prefix rule wants the newest build first.
	builds := make([]compiler.Version, len(list.Builds))
	for i, b := range list.Builds {
		builds[len(list.Builds)-1-i] = b
	}
	return builds, nil
}

func (c *Client) get(ctx context.Context, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	return c.do(req, result)
}

func (c *Client) post(ctx context.Context, path string, body, result any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, result)
}

func (c *Client) do(req *http.Request, result any) error {
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.parseError(resp)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}

	return nil
}

func (c *Client) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	remote := &RemoteError{StatusCode: resp.StatusCode}
	if err := json.Unmarshal(body, remote); err != nil || remote.Message == "" {
		remote.CustomCode = fmt.Sprintf("http_%d", resp.StatusCode)
		remote.Message = resp.Status
	}
	return remote
}

func isNotFound(err error) bool {
	var remote *RemoteError
	return errors.As(err, &remote) && remote.StatusCode == http.StatusNotFound
}
