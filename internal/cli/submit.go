package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/verimatch/verimatch/internal/compiler"
	"github.com/verimatch/verimatch/internal/config"
	"github.com/verimatch/verimatch/internal/etherscan"
	"github.com/verimatch/verimatch/internal/jobs"
	"github.com/verimatch/verimatch/internal/manifest"
	"github.com/verimatch/verimatch/internal/scheduler"
	"github.com/verimatch/verimatch/internal/submit"
	"github.com/verimatch/verimatch/internal/validation"
	"github.com/verimatch/verimatch/pkg/client"
)

func createSubmitCmd() *cobra.Command {
	var method string
	var chainID int64
	var address string
	var compilerVersion string
	var language string
	var evmVersion string
	var optimizer bool
	var optimizerRuns int
	var contract string
	var creationTx string
	var etherscanKey string
	var watch bool
	var noStore bool

	cmd := &cobra.Command{
		Use:   "submit [files...]",
		Short: "Submit sources for verification",
		Long: `Submit contract sources to the verification service.

The method selects the payload shape:
  single-file     one source file, compiler settings from flags
  multiple-files  several source files, compiler settings from flags
  std-json        one standard-JSON input file, passed through verbatim
  build-info      one build-info file (forge/hardhat), input extracted
  metadata-json   a metadata.json manifest plus source files; sources are
                  reconciled against the manifest hashes before submission
  etherscan       no files; sources are imported from Etherscan

EXAMPLES:
  # Verify a single contract
  verimatch submit Token.sol \
    --method single-file --chain-id 1 --address 0x1234... \
    --compiler-version 0.8.20 --contract Token.sol:Token

  # Verify from a standard-JSON input
  verimatch submit input.json \
    --method std-json --chain-id 1 --address 0x1234... \
    --compiler-version 0.8.20 --contract src/Token.sol:Token

  # Verify from metadata plus sources
  verimatch submit metadata.json src/*.sol \
    --method metadata-json --chain-id 1 --address 0x1234...

  # Import a contract already verified on Etherscan
  verimatch submit --method etherscan --chain-id 1 --address 0x1234...

  # Submit and wait for the result
  verimatch submit Token.sol --method single-file ... --watch
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			project := loadProjectConfigSilent()
			if project != nil {
				if chainID == 0 {
					chainID = project.ChainID
				}
				if compilerVersion == "" {
					compilerVersion = project.CompilerVersion
				}
				if !cmd.Flags().Changed("language") && project.Language != "" {
					language = project.Language
				}
				if !cmd.Flags().Changed("evm-version") && project.EVMVersion != "" {
					evmVersion = project.EVMVersion
				}
				if !cmd.Flags().Changed("optimizer") {
					optimizer = project.Optimizer
				}
				if !cmd.Flags().Changed("optimizer-runs") && project.OptimizerRuns != 0 {
					optimizerRuns = project.OptimizerRuns
				}
			}

			return runSubmit(submitParams{
				method:          submit.Method(method),
				chainID:         chainID,
				address:         address,
				files:           args,
				compilerVersion: compilerVersion,
				language:        language,
				evmVersion:      evmVersion,
				optimizer:       optimizer,
				optimizerRuns:   optimizerRuns,
				contract:        contract,
				creationTx:      creationTx,
				etherscanKey:    etherscanKey,
				watch:           watch,
				noStore:         noStore,
			})
		},
	}

	cmd.Flags().StringVarP(&method, "method", "m", "", "submission method (required)")
	cmd.Flags().Int64Var(&chainID, "chain-id", 0, "chain ID (required)")
	cmd.Flags().StringVar(&address, "address", "", "contract address (required)")
	cmd.Flags().StringVar(&compilerVersion, "compiler-version", "", "compiler version, short or long form")
	cmd.Flags().StringVar(&language, "language", "solidity", "source language (solidity, vyper, yul)")
	cmd.Flags().StringVar(&evmVersion, "evm-version", compiler.EVMVersionDefault, "EVM version for assembled submissions")
	cmd.Flags().BoolVar(&optimizer, "optimizer", false, "enable the optimizer for assembled submissions")
	cmd.Flags().IntVar(&optimizerRuns, "optimizer-runs", 200, "optimizer runs for assembled submissions")
	cmd.Flags().StringVar(&contract, "contract", "", "contract identifier (path:Name)")
	cmd.Flags().StringVar(&creationTx, "creation-tx", "", "creation transaction hash (optional)")
	cmd.Flags().StringVar(&etherscanKey, "etherscan-key", "", "Etherscan API key (default from credentials)")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "wait for the verification result")
	cmd.Flags().BoolVar(&noStore, "no-store", false, "do not record the job locally")
	_ = cmd.MarkFlagRequired("method")
	_ = cmd.MarkFlagRequired("address")

	return cmd
}

type submitParams struct {
	method          submit.Method
	chainID         int64
	address         string
	files           []string
	compilerVersion string
	language        string
	evmVersion      string
	optimizer       bool
	optimizerRuns   int
	contract        string
	creationTx      string
	etherscanKey    string
	watch           bool
	noStore         bool
}

func runSubmit(p submitParams) error {
	if err := validation.ValidateChainID(p.chainID); err != nil {
		return err
	}
	if err := validation.ValidateAddress(p.address); err != nil {
		return err
	}
	if p.creationTx != "" {
		if err := validation.ValidateTxHash(p.creationTx); err != nil {
			return err
		}
	}
	if p.compilerVersion != "" {
		if err := validation.ValidateCompilerVersion(p.compilerVersion); err != nil {
			return err
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	files, err := readFiles(p.files)
	if err != nil {
		return err
	}

	materials := submit.Materials{
		Files:              files,
		Language:           p.language,
		CompilerVersion:    validation.NormalizeCompilerVersion(p.compilerVersion),
		ContractIdentifier: p.contract,
		CreationTxHash:     p.creationTx,
		Options: compiler.AssembleOptions{
			EVMVersion:       p.evmVersion,
			OptimizerEnabled: p.optimizer,
			OptimizerRuns:    p.optimizerRuns,
		},
	}

	if p.method == submit.MethodMetadataJSON {
		m, resolved, err := reconcileMetadata(files)
		if err != nil {
			return err
		}
		materials.Manifest = m
		materials.Resolved = resolved
		materials.Files = nil
	}

	svc := newServiceClient(cfg)

	var explorer submit.SourceFetcher
	if p.method == submit.MethodEtherscan {
		key := getEtherscanKey(p.etherscanKey)
		esc, err := etherscan.NewClient(key)
		if err != nil {
			return fmt.Errorf("%w (run 'verimatch auth login')", err)
		}
		explorer = esc
	}

	store, err := openStore(cfg, p.noStore, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	router := submit.NewRouter(svc, explorer, store, logger)

	fmt.Printf("🔍 Submitting %s verification\n", p.method)
	fmt.Printf("   Chain:   %d\n", p.chainID)
	fmt.Printf("   Address: %s\n", p.address)

	id, err := router.Submit(context.Background(), p.method, p.chainID, p.address, materials)
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Printf("✅ Submitted (verification ID: %s)\n", id)

	if !p.watch {
		fmt.Printf("\nRun 'verimatch jobs watch' to track the result\n")
		return nil
	}

	return watchJob(cfg, store, svc, id, logger)
}

// readFiles loads the named files, keeping the given paths as source names
func readFiles(paths []string) ([]manifest.File, error) {
	files := make([]manifest.File, 0, len(paths))
	for _, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		files = append(files, manifest.File{
			Name:    filepath.ToSlash(filepath.Clean(path)),
			Content: content,
		})
	}
	return files, nil
}

// reconcileMetadata parses the manifest (first file), reconciles the
// remaining files against it, and refuses unless every source is resolved.
func reconcileMetadata(files []manifest.File) (*manifest.Manifest, map[string]string, error) {
	if len(files) == 0 {
		return nil, nil, fmt.Errorf("metadata-json needs a metadata file")
	}

	m, err := manifest.Parse(files[0].Content)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing %s: %w", files[0].Name, err)
	}

	rec := manifest.Reconcile(m, files[1:])

	fmt.Println("Source reconciliation:")
	for _, src := range rec.Sources {
		switch {
		case src.Status == manifest.StatusMissing:
			fmt.Printf("  ❌ %s (missing)\n", src.Path)
		case !src.Valid:
			fmt.Printf("  ❌ %s (hash mismatch)\n", src.Path)
		case src.Status == manifest.StatusEmbedded:
			fmt.Printf("  ✅ %s (embedded)\n", src.Path)
		default:
			fmt.Printf("  ✅ %s (%s)\n", src.Path, src.MatchedFile)
		}
	}
	for _, name := range rec.Unnecessary {
		fmt.Printf("  ⚠️  %s (not referenced by the metadata)\n", name)
	}

	if !rec.AllSatisfied() {
		return nil, nil, fmt.Errorf("sources missing or invalid; cannot submit")
	}

	return m, rec.Resolved, nil
}

// newServiceClient builds the verification service client from config
func newServiceClient(cfg *config.Config) *client.Client {
	var opts []client.Option
	if cfg.Service.VersionsURL != "" {
		opts = append(opts, client.WithVersionsURL(cfg.Service.VersionsURL))
	}
	if cfg.Service.Timeout > 0 {
		opts = append(opts, client.WithHTTPClient(&http.Client{Timeout: cfg.Service.Timeout}))
	}
	return client.New(getServer(), opts...)
}

// openStore opens the configured job store, or an in-memory one for
// --no-store submissions
func openStore(cfg *config.Config, noStore bool, logger *slog.Logger) (jobs.Store, error) {
	if noStore {
		return jobs.NewMemoryStore(), nil
	}
	return jobs.New(cfg.Storage, logger)
}

// watchJob polls until the given job completes and prints the outcome
func watchJob(cfg *config.Config, store jobs.Store, svc *client.Client, id string, logger *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	updates, unsubscribe := store.Subscribe()
	defer unsubscribe()

	tracker := jobs.NewTracker(store, svc, scheduler.Ticker{}, cfg.Tracking.JobPollInterval, logger)
	tracker.Start(ctx)
	defer tracker.Stop()

	fmt.Printf("\nWaiting for verification (polling every %s)...\n", cfg.Tracking.JobPollInterval)

	for {
		job, err := store.Get(ctx, id)
		if err != nil {
			return err
		}
		if !job.Pending() {
			printJobOutcome(job)
			return nil
		}

		select {
		case <-ctx.Done():
			fmt.Println("\nInterrupted; the job keeps running on the server")
			fmt.Println("Run 'verimatch jobs watch' to resume tracking")
			return nil
		case <-updates:
		}
	}
}

func printJobOutcome(job *jobs.Job) {
	fmt.Println()
	if job.Error != nil {
		fmt.Printf("❌ NOT VERIFIED - %s\n", job.Error.CustomCode)
		if job.Error.Message != "" {
			fmt.Printf("   %s\n", job.Error.Message)
		}
		for _, e := range job.Error.CompilationErrors {
			fmt.Printf("   compiler: %s\n", e)
		}
		if job.Error.RecompiledRuntime != "" || job.Error.RecompiledCreation != "" {
			fmt.Printf("\nRun 'verimatch diff --job %s' to compare bytecodes\n", job.ID)
		}
		return
	}

	fmt.Println("✅ VERIFIED")
	if job.Contract != nil {
		if job.Contract.RuntimeMatch != "" {
			fmt.Printf("   Runtime match:  %s\n", job.Contract.RuntimeMatch)
		}
		if job.Contract.CreationMatch != "" {
			fmt.Printf("   Creation match: %s\n", job.Contract.CreationMatch)
		}
		if job.Contract.VerifiedAt != "" {
			fmt.Printf("   Verified at:    %s\n", job.Contract.VerifiedAt)
		}
	}
}

// jobStatusLabel summarizes a job for table output
func jobStatusLabel(job jobs.Job) string {
	if job.Pending() {
		return "pending"
	}
	if job.Error != nil {
		return "failed: " + job.Error.CustomCode
	}
	if job.Contract != nil && job.Contract.RuntimeMatch != "" {
		return "verified (" + job.Contract.RuntimeMatch + ")"
	}
	return "verified"
}

// printJSON writes v to stdout as indented JSON
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
