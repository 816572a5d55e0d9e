package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/verimatch/verimatch/internal/config"
)

func createChainsCmd() *cobra.Command {
	var jsonOutput bool
	var supportedOnly bool

	cmd := &cobra.Command{
		Use:   "chains",
		Short: "List chains known to the verification service",
		Long: `List the chains the verification service knows about.

EXAMPLES:
  # List all chains
  verimatch chains

  # List only chains accepting submissions
  verimatch chains --supported

  # Output as JSON
  verimatch chains --json
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChains(supportedOnly, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	cmd.Flags().BoolVar(&supportedOnly, "supported", false, "show only supported chains")

	return cmd
}

func runChains(supportedOnly, jsonOutput bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	svc := newServiceClient(cfg)

	chains, err := svc.Chains(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list chains: %w", err)
	}

	if supportedOnly {
		filtered := chains[:0]
		for _, c := range chains {
			if c.Supported {
				filtered = append(filtered, c)
			}
		}
		chains = filtered
	}

	if jsonOutput {
		return printJSON(map[string]any{
			"chains": chains,
			"count":  len(chains),
		})
	}

	if len(chains) == 0 {
		fmt.Println("No chains found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CHAIN ID\tNAME\tSUPPORTED")
	for _, c := range chains {
		name := c.Title
		if name == "" {
			name = c.Name
		}
		fmt.Fprintf(w, "%d\t%s\t%v\n", c.ChainID, name, c.Supported)
	}
	w.Flush()

	return nil
}
