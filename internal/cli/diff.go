package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/verimatch/verimatch/internal/bytediff"
	"github.com/verimatch/verimatch/internal/config"
)

func createDiffCmd() *cobra.Command {
	var granularity string
	var jobID string
	var creation bool
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "diff [a] [b]",
		Short: "Compare two bytecode strings",
		Long: `Compare two bytecode hex strings and show added and removed runs.

Inputs are file paths or literal hex strings. With --job, the recompiled
and on-chain bytecodes recorded for a failed verification job are compared
instead.

Char granularity aligns on single hex characters; byte granularity aligns
on 2-character pairs so changes never split a byte.

EXAMPLES:
  # Compare two bytecode files byte by byte
  verimatch diff recompiled.hex onchain.hex

  # Compare literal hex strings character by character
  verimatch diff 0x00ff 0x01ff --granularity char

  # Diagnose a failed job
  verimatch diff --job 4ae6a23f-...

  # Compare the creation bytecodes of a failed job
  verimatch diff --job 4ae6a23f-... --creation
`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiff(args, jobID, creation, bytediff.Granularity(granularity), jsonOutput)
		},
	}

	cmd.Flags().StringVarP(&granularity, "granularity", "g", string(bytediff.GranularityByte), "diff granularity (char, byte)")
	cmd.Flags().StringVar(&jobID, "job", "", "compare the bytecodes of a tracked failed job")
	cmd.Flags().BoolVar(&creation, "creation", false, "with --job, compare creation instead of runtime bytecode")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}

func runDiff(args []string, jobID string, creation bool, granularity bytediff.Granularity, jsonOutput bool) error {
	var a, b string
	var err error

	switch {
	case jobID != "":
		if len(args) != 0 {
			return fmt.Errorf("--job cannot be combined with positional inputs")
		}
		a, b, err = jobBytecodes(jobID, creation)
	case len(args) == 2:
		a, err = readHexInput(args[0])
		if err == nil {
			b, err = readHexInput(args[1])
		}
	default:
		return fmt.Errorf("need two inputs or --job")
	}
	if err != nil {
		return err
	}

	// Bytecode diffs can take a while on large inputs, so they run on the
	// executor worker rather than inline.
	exec := bytediff.NewLocalExecutor()
	defer exec.Close()
	session := bytediff.NewSession(exec)
	defer session.Close()

	session.Request(a, b, granularity)
	resp := <-session.Results()
	if resp.Err != nil {
		return resp.Err
	}
	result := resp.Result

	if jsonOutput {
		return printJSON(result)
	}

	if !result.HasChanges {
		fmt.Println("✅ Bytecodes are identical")
		return nil
	}

	for _, seg := range result.Segments {
		switch {
		case seg.Added:
			fmt.Printf("+%s\n", seg.Text)
		case seg.Removed:
			fmt.Printf("-%s\n", seg.Text)
		default:
			fmt.Printf(" %s\n", abbreviate(seg.Text, 64))
		}
	}

	fmt.Println()
	fmt.Printf("❌ %d character(s) removed, %d added\n", result.RemovedChars, result.AddedChars)

	return nil
}

// jobBytecodes pulls the comparison inputs from a tracked job's error
func jobBytecodes(jobID string, creation bool) (string, string, error) {
	cfg, err := config.Load()
	if err != nil {
		return "", "", err
	}
	logger := newLogger(cfg)

	store, err := openStore(cfg, false, logger)
	if err != nil {
		return "", "", err
	}
	defer store.Close()

	job, err := store.Get(context.Background(), jobID)
	if err != nil {
		return "", "", fmt.Errorf("job %s: %w", jobID, err)
	}
	if job.Error == nil {
		return "", "", fmt.Errorf("job %s did not fail; nothing to compare", jobID)
	}

	recompiled, onchain := job.Error.RecompiledRuntime, job.Error.OnchainRuntime
	if creation {
		recompiled, onchain = job.Error.RecompiledCreation, job.Error.OnchainCreation
	}
	if recompiled == "" || onchain == "" {
		return "", "", fmt.Errorf("job %s carries no bytecodes to compare", jobID)
	}

	return normalizeHexInput(recompiled), normalizeHexInput(onchain), nil
}

// readHexInput treats the argument as a file path when one exists, and as a
// literal hex string otherwise
func readHexInput(arg string) (string, error) {
	if info, err := os.Stat(arg); err == nil && !info.IsDir() {
		content, err := os.ReadFile(arg)
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", arg, err)
		}
		return normalizeHexInput(string(content)), nil
	}
	return normalizeHexInput(arg), nil
}

func normalizeHexInput(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "0x")
	return s
}

func abbreviate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	half := (max - 3) / 2
	return s[:half] + "..." + s[len(s)-half:]
}
