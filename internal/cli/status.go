package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/verimatch/verimatch/internal/config"
	"github.com/verimatch/verimatch/internal/validation"
	"github.com/verimatch/verimatch/pkg/client"
)

func createStatusCmd() *cobra.Command {
	var chainID int64
	var address string
	var allChains bool
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check whether a contract is verified",
		Long: `Look up the verification status of a deployed contract.

EXAMPLES:
  # Check one chain
  verimatch status --chain-id 1 --address 0x1234...

  # Check every supported chain
  verimatch status --address 0x1234... --all-chains

  # Output as JSON
  verimatch status --chain-id 1 --address 0x1234... --json
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(chainID, address, allChains, jsonOutput)
		},
	}

	cmd.Flags().Int64Var(&chainID, "chain-id", 0, "chain ID")
	cmd.Flags().StringVar(&address, "address", "", "contract address (required)")
	cmd.Flags().BoolVar(&allChains, "all-chains", false, "check every supported chain")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	_ = cmd.MarkFlagRequired("address")

	return cmd
}

func runStatus(chainID int64, address string, allChains, jsonOutput bool) error {
	if err := validation.ValidateAddress(address); err != nil {
		return err
	}
	if !allChains {
		if err := validation.ValidateChainID(chainID); err != nil {
			return fmt.Errorf("%w (or pass --all-chains)", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	svc := newServiceClient(cfg)
	ctx := context.Background()

	if allChains {
		matches, err := svc.ContractAllChains(ctx, address)
		if err != nil {
			return fmt.Errorf("lookup failed: %w", err)
		}
		return printAllChains(address, matches, jsonOutput)
	}

	match, err := svc.Contract(ctx, chainID, address)
	if err != nil {
		return fmt.Errorf("lookup failed: %w", err)
	}

	if jsonOutput {
		return printJSON(map[string]any{
			"chainId":  chainID,
			"address":  address,
			"verified": match != nil,
			"match":    match,
		})
	}

	if match == nil {
		fmt.Printf("❌ Not verified on chain %d\n", chainID)
		return nil
	}

	fmt.Printf("✅ Verified on chain %d\n", chainID)
	printMatch(match)
	return nil
}

func printAllChains(address string, matches []client.ContractMatch, jsonOutput bool) error {
	if jsonOutput {
		return printJSON(map[string]any{
			"address": address,
			"matches": matches,
			"count":   len(matches),
		})
	}

	if len(matches) == 0 {
		fmt.Println("❌ Not verified on any supported chain")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CHAIN\tRUNTIME\tCREATION\tVERIFIED AT")
	for _, m := range matches {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", m.ChainID, m.RuntimeMatch, m.CreationMatch, m.VerifiedAt)
	}
	w.Flush()
	fmt.Printf("\nVerified on %d chain(s)\n", len(matches))

	return nil
}

func printMatch(match *client.ContractMatch) {
	if match.RuntimeMatch != "" {
		fmt.Printf("   Runtime match:  %s\n", match.RuntimeMatch)
	}
	if match.CreationMatch != "" {
		fmt.Printf("   Creation match: %s\n", match.CreationMatch)
	}
	if match.VerifiedAt != "" {
		fmt.Printf("   Verified at:    %s\n", match.VerifiedAt)
	}
	if match.MatchID != "" {
		fmt.Printf("   Match ID:       %s\n", match.MatchID)
	}
}
