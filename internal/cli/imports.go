package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/verimatch/verimatch/internal/config"
	"github.com/verimatch/verimatch/internal/etherscan"
	"github.com/verimatch/verimatch/internal/scheduler"
)

func createImportsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "imports",
		Short: "Track third-party verifier imports",
	}

	cmd.AddCommand(createImportsWatchCmd())

	return cmd
}

// importRecord is the on-disk shape of one tracked import
type importRecord struct {
	Key            string `json:"key"`
	StatusURL      string `json:"statusUrl,omitempty"`
	VerificationID string `json:"verificationId,omitempty"`
	ExplorerURL    string `json:"explorerUrl,omitempty"`
	Error          string `json:"error,omitempty"`
	RequiresAuth   bool   `json:"requiresAuth,omitempty"`
}

func createImportsWatchCmd() *cobra.Command {
	var key string
	var statusURL string
	var requiresAuth bool

	cmd := &cobra.Command{
		Use:   "watch [records.json]",
		Short: "Poll verifier imports until they resolve",
		Long: `Poll third-party verifier status endpoints until every import is
verified or failed.

Records come from a JSON file (an array of {key, statusUrl, requiresAuth}
objects), or a single record can be given with flags. Imports marked
requiresAuth append the stored API key for their verifier to each poll.

EXAMPLES:
  # Watch imports recorded by an earlier submission
  verimatch imports watch imports.json

  # Watch a single Etherscan import
  verimatch imports watch \
    --key etherscan \
    --status-url "https://api.etherscan.io/v2/api?chainid=1&module=contract&action=checkverifystatus&guid=abc" \
    --requires-auth
`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := collectImportRecords(args, key, statusURL, requiresAuth)
			if err != nil {
				return err
			}
			return runImportsWatch(records)
		},
	}

	cmd.Flags().StringVar(&key, "key", "", "verifier key for a single record")
	cmd.Flags().StringVar(&statusURL, "status-url", "", "status endpoint for a single record")
	cmd.Flags().BoolVar(&requiresAuth, "requires-auth", false, "append the stored API key when polling")

	return cmd
}

func collectImportRecords(args []string, key, statusURL string, requiresAuth bool) ([]etherscan.Record, error) {
	if statusURL != "" || key != "" {
		if len(args) != 0 {
			return nil, fmt.Errorf("flags and a records file cannot be combined")
		}
		if key == "" {
			key = "etherscan"
		}
		return []etherscan.Record{{
			Key:          key,
			StatusURL:    statusURL,
			RequiresAuth: requiresAuth,
		}}, nil
	}

	if len(args) != 1 {
		return nil, fmt.Errorf("need a records file or --status-url")
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", args[0], err)
	}

	var raw []importRecord
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", args[0], err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%s contains no records", args[0])
	}

	records := make([]etherscan.Record, 0, len(raw))
	for _, r := range raw {
		records = append(records, etherscan.Record{
			Key:            r.Key,
			StatusURL:      r.StatusURL,
			VerificationID: r.VerificationID,
			ExplorerURL:    r.ExplorerURL,
			Error:          r.Error,
			RequiresAuth:   r.RequiresAuth,
		})
	}
	return records, nil
}

func runImportsWatch(records []etherscan.Record) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	httpClient := &http.Client{Timeout: cfg.Service.Timeout}
	tracker := etherscan.NewTracker(httpClient, scheduler.Ticker{}, cfg.Tracking.ImportPollInterval, getCredential)
	defer tracker.Stop()

	fmt.Printf("Watching %d import(s), polling every %s (Ctrl-C to stop)\n\n", len(records), cfg.Tracking.ImportPollInterval)

	updates := tracker.Track(ctx, records)
	last := make(map[string]etherscan.Derived)

	for {
		select {
		case <-ctx.Done():
			fmt.Println("\nStopped")
			return nil
		case snapshot, ok := <-updates:
			if !ok {
				fmt.Println("\nAll imports resolved")
				return importsExitError(last)
			}
			printImportChanges(last, snapshot)
			last = snapshot
		}
	}
}

// printImportChanges prints one line per import whose state changed
func printImportChanges(last, snapshot map[string]etherscan.Derived) {
	keys := make([]string, 0, len(snapshot))
	for key := range snapshot {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		derived := snapshot[key]
		if prev, seen := last[key]; seen && prev == derived {
			continue
		}

		switch derived.State {
		case etherscan.StateSuccess:
			fmt.Printf("✅ %s: verified\n", key)
		case etherscan.StateError:
			fmt.Printf("❌ %s: %s\n", key, derived.Message)
		case etherscan.StatePending:
			fmt.Printf("⏳ %s: pending\n", key)
		default:
			if derived.Message != "" {
				fmt.Printf("⚠️  %s: %s\n", key, derived.Message)
			} else {
				fmt.Printf("⚠️  %s: status unknown\n", key)
			}
		}
	}
}

// importsExitError returns a non-nil error when any import failed
func importsExitError(states map[string]etherscan.Derived) error {
	failed := 0
	for _, derived := range states {
		if derived.State == etherscan.StateError {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d import(s) failed", failed)
	}
	return nil
}
