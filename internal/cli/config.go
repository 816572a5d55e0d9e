package cli

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
)

// projectConfigFiles is the search order for project config files
var projectConfigFiles = []string{"verimatch.toml", "vm.toml"}

// ProjectConfig is the project-level TOML configuration
type ProjectConfig struct {
	Server          string `toml:"server"`
	ChainID         int64  `toml:"chain_id,omitempty"`
	Language        string `toml:"language,omitempty"`
	CompilerVersion string `toml:"compiler_version,omitempty"`
	EVMVersion      string `toml:"evm_version,omitempty"`
	Optimizer       bool   `toml:"optimizer,omitempty"`
	OptimizerRuns   int    `toml:"optimizer_runs,omitempty"`
}

func createConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration commands",
	}

	cmd.AddCommand(createConfigInitCmd())
	cmd.AddCommand(createConfigShowCmd())

	return cmd
}

func createConfigInitCmd() *cobra.Command {
	var serverURL string
	var chainID int64
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create config file",
		Long: `Create a verimatch.toml configuration file in the current directory.

This file stores project-specific settings like the server URL, default
chain, and compiler settings used by assembled submissions.

EXAMPLES:
  # Create config with the default server
  verimatch config init

  # Create config for a specific server and chain
  verimatch config init --server https://sourcify.dev/server --chain-id 1

  # Overwrite existing config
  verimatch config init --force
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(serverURL, chainID, force)
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "https://sourcify.dev/server", "verification server URL")
	cmd.Flags().Int64Var(&chainID, "chain-id", 1, "default chain ID")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing config")

	return cmd
}

func createConfigShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Display current config",
		Long: `Display the current configuration and where each value comes from.

EXAMPLES:
  verimatch config show
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow()
		},
	}

	return cmd
}

func runConfigInit(serverURL string, chainID int64, force bool) error {
	configPath := "verimatch.toml"

	// Check if any config file already exists
	for _, name := range projectConfigFiles {
		if _, err := os.Stat(name); err == nil && !force {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", name)
		}
	}

	content := fmt.Sprintf(`# Verimatch project configuration

server = "%s"
chain_id = %d
language = "solidity"

# Compiler settings for assembled submissions (single-file, multiple-files).
# Not used for std-json or build-info submissions, which carry their own.
# compiler_version = "0.8.20"
# evm_version = "default"
# optimizer = true
# optimizer_runs = 200
`, serverURL, chainID)

	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Printf("Created %s\n", configPath)
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Printf("  Server:   %s\n", serverURL)
	fmt.Printf("  Chain ID: %d\n", chainID)
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Printf("  1. Edit %s to set compiler defaults\n", configPath)
	fmt.Println("  2. Run 'verimatch auth login' if you plan to import from Etherscan")
	fmt.Println("  3. Run 'verimatch submit' to verify a contract")

	return nil
}

func runConfigShow() error {
	fmt.Println("Configuration sources (in order of precedence):")
	fmt.Println()

	// 1. Command line flags
	fmt.Println("1. Command line flags")
	fmt.Println("   --server, --config")
	fmt.Println()

	// 2. Environment variables
	fmt.Println("2. Environment variables")
	if env := os.Getenv("VERIMATCH_SERVER"); env != "" {
		fmt.Printf("   VERIMATCH_SERVER=%s\n", env)
	} else {
		fmt.Println("   VERIMATCH_SERVER=(not set)")
	}
	if env := os.Getenv("VERIMATCH_ETHERSCAN_API_KEY"); env != "" {
		fmt.Printf("   VERIMATCH_ETHERSCAN_API_KEY=%s\n", maskAPIKey(env))
	} else {
		fmt.Println("   VERIMATCH_ETHERSCAN_API_KEY=(not set)")
	}
	fmt.Println()

	// 3. Local project config
	fmt.Println("3. Local project config (verimatch.toml or vm.toml)")
	project, configPath, err := loadProjectConfig()
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Println("   (not found)")
		} else {
			fmt.Printf("   Error: %v\n", err)
		}
	} else {
		fmt.Printf("   Loaded from: %s\n", configPath)
		if project.Server != "" {
			fmt.Printf("   server: %s\n", project.Server)
		}
		if project.ChainID != 0 {
			fmt.Printf("   chain_id: %d\n", project.ChainID)
		}
		if project.Language != "" {
			fmt.Printf("   language: %s\n", project.Language)
		}
		if project.CompilerVersion != "" {
			fmt.Printf("   compiler_version: %s\n", project.CompilerVersion)
		}
		if project.EVMVersion != "" {
			fmt.Printf("   evm_version: %s\n", project.EVMVersion)
		}
		if project.Optimizer {
			fmt.Printf("   optimizer: true (runs: %d)\n", project.OptimizerRuns)
		}
	}
	fmt.Println()

	// 4. Credentials
	fmt.Println("4. Credentials (~/.verimatch/credentials)")
	creds, err := loadCredentials()
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Println("   (not found)")
		} else {
			fmt.Printf("   Error: %v\n", err)
		}
	} else {
		if len(creds.Services) == 0 {
			fmt.Println("   (no credentials stored)")
		} else {
			for service, cred := range creds.Services {
				fmt.Printf("   %s: %s\n", service, maskAPIKey(cred.APIKey))
			}
		}
	}
	fmt.Println()

	// Effective config
	fmt.Println("Effective configuration:")
	fmt.Printf("   Server: %s\n", getServer())
	if key := getEtherscanKey(""); key != "" {
		fmt.Printf("   Etherscan key: %s\n", maskAPIKey(key))
	} else {
		fmt.Println("   Etherscan key: (not set)")
	}

	return nil
}

// loadProjectConfig loads the project config from the first matching config file.
// Returns the config, the path it was loaded from, and an error.
func loadProjectConfig() (*ProjectConfig, string, error) {
	// If --config flag was provided, use that directly
	if cfgFile != "" {
		project, err := loadProjectConfigFromPath(cfgFile)
		if err != nil {
			return nil, cfgFile, err
		}
		return project, cfgFile, nil
	}

	// Search for config files in order
	for _, name := range projectConfigFiles {
		if _, err := os.Stat(name); err == nil {
			project, err := loadProjectConfigFromPath(name)
			if err != nil {
				return nil, name, err
			}
			return project, name, nil
		}
	}
	return nil, "", os.ErrNotExist
}

// loadProjectConfigFromPath loads a project config from a specific path
func loadProjectConfigFromPath(path string) (*ProjectConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var project ProjectConfig
	if _, err := toml.Decode(string(data), &project); err != nil {
		return nil, fmt.Errorf("parsing TOML: %w", err)
	}

	return &project, nil
}

// loadProjectConfigSilent loads the project config without returning errors for missing files.
// Returns nil if the file doesn't exist, but returns errors for parse failures.
func loadProjectConfigSilent() *ProjectConfig {
	project, _, err := loadProjectConfig()
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		// Show actionable errors (parse failures)
		fmt.Fprintf(os.Stderr, "Warning: failed to load project config: %v\n", err)
		return nil
	}
	return project
}
