package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/verimatch/verimatch/internal/config"
)

var (
	cfgFile string
	server  string
)

// Execute runs the CLI
func Execute(version string) error {
	rootCmd := &cobra.Command{
		Use:     "verimatch",
		Short:   "Smart contract verification CLI",
		Long:    `Verimatch submits contract sources to a verification service, reconciles them against their metadata, and tracks verification jobs to completion.`,
		Version: version,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: verimatch.toml)")
	rootCmd.PersistentFlags().StringVar(&server, "server", "", "verification server URL (default from config)")

	// Add subcommands
	rootCmd.AddCommand(createSubmitCmd())
	rootCmd.AddCommand(createJobsCmd())
	rootCmd.AddCommand(createStatusCmd())
	rootCmd.AddCommand(createChainsCmd())
	rootCmd.AddCommand(createDiffCmd())
	rootCmd.AddCommand(createImportsCmd())
	rootCmd.AddCommand(createAuthCmd())
	rootCmd.AddCommand(createConfigCmd())

	return rootCmd.Execute()
}

// getServer returns the server URL from flag, env, project config, or default
func getServer() string {
	// 1. Command line flag
	if server != "" {
		return server
	}

	// 2. Environment variable
	if env := os.Getenv("VERIMATCH_SERVER"); env != "" {
		return env
	}

	// 3. Project config file (TOML)
	if project := loadProjectConfigSilent(); project != nil && project.Server != "" {
		return project.Server
	}

	// 4. Default
	cfg, _ := config.Load()
	return cfg.Service.URL
}

// newLogger builds the logger used by long-running watch loops
func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// truncateAddress shortens an address for table output
func truncateAddress(addr string) string {
	if len(addr) <= 13 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}
