// Package submit routes verification submissions: it assembles the wire
// payload for the chosen method, calls the remote service, and records the
// resulting job.
package submit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/verimatch/verimatch/internal/compiler"
	"github.com/verimatch/verimatch/internal/etherscan"
	"github.com/verimatch/verimatch/internal/jobs"
	"github.com/verimatch/verimatch/internal/manifest"
	"github.com/verimatch/verimatch/internal/metrics"
	"github.com/verimatch/verimatch/pkg/client"
)

// Method selects the submission payload shape.
type Method string

const (
	MethodSingleFile    Method = "single-file"
	MethodMultipleFiles Method = "multiple-files"
	MethodStdJSON       Method = "std-json"
	MethodBuildInfo     Method = "build-info"
	MethodMetadataJSON  Method = "metadata-json"
	MethodEtherscan     Method = "etherscan"
)

// Errors returned before any network submission happens.
var (
	ErrUnknownMethod     = errors.New("unknown submission method")
	ErrMissingMaterials  = errors.New("missing required submission materials")
	ErrInvalidStdJSON    = errors.New("standard-JSON input failed validation")
	ErrVersionUnresolved = errors.New("compiler version not found in release list; pick one explicitly")
	ErrNoExplorer        = errors.New("no explorer client configured")
)

// Materials carries the per-method inputs. Callers gate reconciliation and
// file presence before calling Submit; the router only fail-fasts on empty
// required input.
type Materials struct {
	// Files are raw sources (single-file, multiple-files), or the one JSON
	// artifact (std-json, build-info).
	Files []manifest.File

	// Manifest and Resolved feed the metadata-json method. Resolved is the
	// reconciliation's path-to-content mapping.
	Manifest *manifest.Manifest
	Resolved map[string]string

	// Settings for assembled submissions.
	Language           string
	CompilerVersion    string
	Options            compiler.AssembleOptions
	ContractIdentifier string
	CreationTxHash     string
}

// API is the slice of the service client the router needs.
type API interface {
	Verify(ctx context.Context, chainID int64, address string, req client.VerifyRequest) (string, error)
	VerifyMetadata(ctx context.Context, chainID int64, address string, req client.VerifyMetadataRequest) (string, error)
	CompilerVersions(ctx context.Context) ([]compiler.Version, error)
}

// SourceFetcher is the slice of the explorer client the router needs for
// external imports.
type SourceFetcher interface {
	FetchSource(ctx context.Context, chainID int64, address string) (*etherscan.Source, error)
}

// Router submits verification requests and records the resulting jobs.
type Router struct {
	api      API
	explorer SourceFetcher
	store    jobs.Store
	logger   *slog.Logger
	now      func() time.Time
}

// NewRouter creates a submission router. explorer may be nil when the
// etherscan method is not needed.
func NewRouter(api API, explorer SourceFetcher, store jobs.Store, logger *slog.Logger) *Router {
	return &Router{
		api:      api,
		explorer: explorer,
		store:    store,
		logger:   logger,
		now:      time.Now,
	}
}

// Submit builds the payload for method and calls the service. It returns
// only the opaque verification id; a job record is stored as pending.
// Remote rejections surface verbatim as *client.RemoteError and are never
// retried here.
func (r *Router) Submit(ctx context.Context, method Method, chainID int64, address string, mat Materials) (string, error) {
	id, err := r.submit(ctx, method, chainID, address, mat)
	if err != nil {
		metrics.RecordSubmission(string(method), "error")
		return "", err
	}
	metrics.RecordSubmission(string(method), "ok")

	now := r.now()
	job := &jobs.Job{
		ID:          id,
		Method:      string(method),
		SubmittedAt: now,
		StartedAt:   now,
		Contract: &client.ContractMatch{
			ChainID: strconv.FormatInt(chainID, 10),
			Address: address,
		},
	}
	if err := r.store.Put(ctx, job); err != nil {
		// The submission went through; losing the local record only means
		// the job cannot be tracked.
		r.logger.Warn("storing submitted job failed", "id", id, "error", err)
	}

	r.logger.Info("submitted", "method", method, "chainId", chainID, "address", address, "id", id)
	return id, nil
}

func (r *Router) submit(ctx context.Context, method Method, chainID int64, address string, mat Materials) (string, error) {
	switch method {
	case MethodSingleFile, MethodMultipleFiles:
		return r.submitAssembled(ctx, chainID, address, mat)
	case MethodStdJSON:
		return r.submitStdJSON(ctx, chainID, address, mat)
	case MethodBuildInfo:
		return r.submitBuildInfo(ctx, chainID, address, mat)
	case MethodMetadataJSON:
		return r.submitMetadata(ctx, chainID, address, mat)
	case MethodEtherscan:
		return r.submitImport(ctx, chainID, address, mat)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}
}

func (r *Router) submitAssembled(ctx context.Context, chainID int64, address string, mat Materials) (string, error) {
	if len(mat.Files) == 0 {
		return "", fmt.Errorf("%w: no source files", ErrMissingMaterials)
	}

	input, err := compiler.AssembleInput(mat.Files, mat.Language, mat.Options)
	if err != nil {
		return "", err
	}

	version, err := r.resolveVersion(ctx, mat.CompilerVersion)
	if err != nil {
		return "", err
	}

	return r.api.Verify(ctx, chainID, address, client.VerifyRequest{
		StdJSONInput:            input,
		CompilerVersion:         version,
		ContractIdentifier:      mat.ContractIdentifier,
		CreationTransactionHash: mat.CreationTxHash,
	})
}

func (r *Router) submitStdJSON(ctx context.Context, chainID int64, address string, mat Materials) (string, error) {
	if len(mat.Files) == 0 {
		return "", fmt.Errorf("%w: no standard-JSON file", ErrMissingMaterials)
	}

	input, err := ParseStdJSON(mat.Files[0].Content)
	if err != nil {
		return "", err
	}

	version, err := r.resolveVersion(ctx, mat.CompilerVersion)
	if err != nil {
		return "", err
	}

	return r.api.Verify(ctx, chainID, address, client.VerifyRequest{
		StdJSONInput:            input,
		CompilerVersion:         version,
		ContractIdentifier:      mat.ContractIdentifier,
		CreationTransactionHash: mat.CreationTxHash,
	})
}

func (r *Router) submitBuildInfo(ctx context.Context, chainID int64, address string, mat Materials) (string, error) {
	if len(mat.Files) == 0 {
		return "", fmt.Errorf("%w: no build-info file", ErrMissingMaterials)
	}

	known, err := r.api.CompilerVersions(ctx)
	if err != nil {
		return "", fmt.Errorf("fetching release list: %w", err)
	}

	info, err := compiler.ExtractBuildInfo(mat.Files[0].Content, known)
	if err != nil {
		return "", err
	}

	return r.api.Verify(ctx, chainID, address, client.VerifyRequest{
		StdJSONInput:            &info.Input,
		CompilerVersion:         info.CompilerVersion.LongVersion,
		ContractIdentifier:      mat.ContractIdentifier,
		CreationTransactionHash: mat.CreationTxHash,
	})
}

func (r *Router) submitMetadata(ctx context.Context, chainID int64, address string, mat Materials) (string, error) {
	if mat.Manifest == nil || len(mat.Resolved) == 0 {
		return "", fmt.Errorf("%w: manifest and resolved sources", ErrMissingMaterials)
	}

	return r.api.VerifyMetadata(ctx, chainID, address, client.VerifyMetadataRequest{
		Sources:                 mat.Resolved,
		Metadata:                mat.Manifest.Raw,
		CreationTransactionHash: mat.CreationTxHash,
	})
}

// submitImport pulls the source from the explorer and routes it into a
// std-json or assembled submission depending on what came back.
func (r *Router) submitImport(ctx context.Context, chainID int64, address string, mat Materials) (string, error) {
	if r.explorer == nil {
		return "", ErrNoExplorer
	}

	source, err := r.explorer.FetchSource(ctx, chainID, address)
	if err != nil {
		return "", err
	}

	version, err := r.resolveVersion(ctx, source.CompilerVersion)
	if err != nil {
		return "", err
	}

	if source.StdJSON != nil {
		return r.api.Verify(ctx, chainID, address, client.VerifyRequest{
			StdJSONInput:            source.StdJSON,
			CompilerVersion:         version,
			ContractIdentifier:      importIdentifier(source),
			CreationTransactionHash: mat.CreationTxHash,
		})
	}

	name := source.ContractName
	if name == "" {
		name = "Contract"
	}
	input, err := compiler.AssembleInput(
		[]manifest.File{{Name: name + ".sol", Content: []byte(source.Flat)}},
		"solidity",
		compiler.AssembleOptions{
			EVMVersion:       source.EVMVersion,
			OptimizerEnabled: source.OptimizationUsed,
			OptimizerRuns:    source.Runs,
		},
	)
	if err != nil {
		return "", err
	}

	return r.api.Verify(ctx, chainID, address, client.VerifyRequest{
		StdJSONInput:            input,
		CompilerVersion:         version,
		ContractIdentifier:      name + ".sol:" + name,
		CreationTransactionHash: mat.CreationTxHash,
	})
}

func importIdentifier(source *etherscan.Source) string {
	paths := make([]string, 0, len(source.StdJSON.Sources))
	for path := range source.StdJSON.Sources {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	for _, path := range paths {
		if strings.Contains(source.StdJSON.Sources[path].Content, "contract "+source.ContractName) {
			return path + ":" + source.ContractName
		}
	}
	if len(paths) > 0 {
		return paths[0] + ":" + source.ContractName
	}
	return source.ContractName
}

func (r *Router) resolveVersion(ctx context.Context, candidate string) (string, error) {
	if candidate == "" {
		return "", fmt.Errorf("%w: no compiler version given", ErrMissingMaterials)
	}

	known, err := r.api.CompilerVersions(ctx)
	if err != nil {
		return "", fmt.Errorf("fetching release list: %w", err)
	}

	version, ok := compiler.ResolveVersion(candidate, known)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrVersionUnresolved, candidate)
	}
	return version.LongVersion, nil
}

// ParseStdJSON validates a user-supplied standard-JSON document into the
// typed input. The document passes through otherwise untouched.
func ParseStdJSON(raw []byte) (*compiler.Input, error) {
	var input compiler.Input
	if err := json.Unmarshal(raw, &input); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidStdJSON, err)
	}
	if input.Language == "" {
		return nil, fmt.Errorf("%w: missing language", ErrInvalidStdJSON)
	}
	if len(input.Sources) == 0 {
		return nil, fmt.Errorf("%w: missing sources", ErrInvalidStdJSON)
	}
	if len(input.Settings) == 0 {
		input.Settings = json.RawMessage(`{}`)
	}
	return &input, nil
}
