package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

// Credentials stores API keys per service. The service name is either a
// verifier identifier ("etherscan") or a server URL.
type Credentials struct {
	Services map[string]ServiceCredential `yaml:"services"`
}

// ServiceCredential stores credentials for a single service
type ServiceCredential struct {
	APIKey string `yaml:"api_key"`
	Name   string `yaml:"name,omitempty"` // Optional name/description
}

func createAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authentication commands",
	}

	cmd.AddCommand(createAuthLoginCmd())
	cmd.AddCommand(createAuthLogoutCmd())
	cmd.AddCommand(createAuthStatusCmd())

	return cmd
}

func createAuthLoginCmd() *cobra.Command {
	var service string
	var apiKeyFlag string
	var skipValidation bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Save an API key for a verifier",
		Long: `Save an API key for an external verifier or server.

The key is stored in ~/.verimatch/credentials with secure file permissions.
Etherscan keys are needed for the etherscan import method and for polling
import status endpoints that require authentication.

EXAMPLES:
  # Interactive login for Etherscan (prompts for API key)
  verimatch auth login

  # Non-interactive login (for CI)
  verimatch auth login --api-key $ETHERSCAN_API_KEY

  # Store a key for a different service
  verimatch auth login --service blockscout --api-key abc123
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthLogin(service, apiKeyFlag, skipValidation)
		},
	}

	cmd.Flags().StringVar(&service, "service", "etherscan", "service the key belongs to")
	cmd.Flags().StringVar(&apiKeyFlag, "api-key", "", "API key (prompts if not provided)")
	cmd.Flags().BoolVar(&skipValidation, "no-validate", false, "skip validating the key against the service")

	return cmd
}

func createAuthLogoutCmd() *cobra.Command {
	var service string
	var allFlag bool

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Clear credentials",
		Long: `Remove saved credentials for a service.

EXAMPLES:
  # Remove the Etherscan key
  verimatch auth logout

  # Remove a specific service's key
  verimatch auth logout --service blockscout

  # Clear all credentials
  verimatch auth logout --all
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthLogout(service, allFlag)
		},
	}

	cmd.Flags().StringVar(&service, "service", "etherscan", "service to log out from")
	cmd.Flags().BoolVar(&allFlag, "all", false, "clear all credentials")

	return cmd
}

func createAuthStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show authentication status",
		Long: `Show stored credentials for all configured services.

EXAMPLES:
  verimatch auth status
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthStatus()
		},
	}

	return cmd
}

func runAuthLogin(service, apiKeyInput string, skipValidation bool) error {
	apiKey := apiKeyInput
	if apiKey == "" {
		// Prompt for API key
		fmt.Printf("Enter API key for %s: ", service)

		// Try to read password without echo
		stdinFd := int(os.Stdin.Fd())
		if term.IsTerminal(stdinFd) {
			byteKey, err := term.ReadPassword(stdinFd)
			fmt.Println() // New line after password input
			if err != nil {
				return fmt.Errorf("failed to read API key: %w", err)
			}
			apiKey = string(byteKey)
		} else {
			// Non-terminal, read from stdin
			reader := bufio.NewReader(os.Stdin)
			key, err := reader.ReadString('\n')
			if err != nil && err != io.EOF {
				return fmt.Errorf("failed to read API key: %w", err)
			}
			apiKey = strings.TrimSpace(key)
		}
	}

	if apiKey == "" {
		return fmt.Errorf("API key cannot be empty")
	}

	if service == "etherscan" && !skipValidation {
		fmt.Println("Validating key with Etherscan...")
		valid, err := validateEtherscanKey(apiKey)
		if err != nil {
			return fmt.Errorf("failed to validate key: %w", err)
		}
		if !valid {
			return fmt.Errorf("invalid API key")
		}
	}

	if err := saveCredential(service, apiKey); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}

	masked := maskAPIKey(apiKey)
	fmt.Printf("✅ Saved key for %s (key: %s)\n", service, masked)
	fmt.Printf("   Credentials saved to %s\n", credentialsFilePath())

	return nil
}

func runAuthLogout(service string, all bool) error {
	if all {
		// Remove all credentials
		path := credentialsFilePath()
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove credentials: %w", err)
		}
		fmt.Println("✅ All credentials cleared")
		return nil
	}

	creds, err := loadCredentials()
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Printf("No credentials found for %s\n", service)
			return nil
		}
		return fmt.Errorf("failed to load credentials: %w", err)
	}

	if _, exists := creds.Services[service]; !exists {
		fmt.Printf("No credentials found for %s\n", service)
		return nil
	}

	delete(creds.Services, service)

	if err := writeCredentials(creds); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}

	fmt.Printf("✅ Logged out from %s\n", service)
	return nil
}

func runAuthStatus() error {
	creds, err := loadCredentials()
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Println("No credentials stored")
			fmt.Println("\nRun 'verimatch auth login' to store an API key")
			return nil
		}
		return fmt.Errorf("failed to load credentials: %w", err)
	}

	if len(creds.Services) == 0 {
		fmt.Println("No credentials stored")
		fmt.Println("\nRun 'verimatch auth login' to store an API key")
		return nil
	}

	fmt.Println("Stored credentials:")
	for service, cred := range creds.Services {
		masked := maskAPIKey(cred.APIKey)
		if cred.Name != "" {
			fmt.Printf("  • %s (%s, key: %s)\n", service, cred.Name, masked)
		} else {
			fmt.Printf("  • %s (key: %s)\n", service, masked)
		}
	}

	return nil
}

// Credential file helpers

func credentialsDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".verimatch"
	}
	return filepath.Join(home, ".verimatch")
}

func credentialsFilePath() string {
	return filepath.Join(credentialsDir(), "credentials")
}

func loadCredentials() (*Credentials, error) {
	path := credentialsFilePath()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var creds Credentials
	if err := yaml.Unmarshal(data, &creds); err != nil {
		return nil, err
	}

	if creds.Services == nil {
		creds.Services = make(map[string]ServiceCredential)
	}

	return &creds, nil
}

func writeCredentials(creds *Credentials) error {
	dir := credentialsDir()
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	data, err := yaml.Marshal(creds)
	if err != nil {
		return err
	}

	path := credentialsFilePath()
	return os.WriteFile(path, data, 0600) // Secure permissions
}

func saveCredential(service, apiKey string) error {
	creds, err := loadCredentials()
	if err != nil {
		if os.IsNotExist(err) {
			creds = &Credentials{Services: make(map[string]ServiceCredential)}
		} else {
			return err
		}
	}

	creds.Services[service] = ServiceCredential{APIKey: apiKey}
	return writeCredentials(creds)
}

func getCredential(service string) string {
	creds, err := loadCredentials()
	if err != nil {
		return ""
	}
	if cred, ok := creds.Services[service]; ok {
		return cred.APIKey
	}
	return ""
}

// getEtherscanKey returns the Etherscan API key from flag, env, or the
// credentials file
func getEtherscanKey(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv("VERIMATCH_ETHERSCAN_API_KEY"); env != "" {
		return env
	}
	return getCredential("etherscan")
}

func validateEtherscanKey(apiKey string) (bool, error) {
	// A stats query is the cheapest call that distinguishes a bad key
	params := url.Values{}
	params.Set("chainid", "1")
	params.Set("module", "stats")
	params.Set("action", "ethprice")
	params.Set("apikey", apiKey)

	req, err := http.NewRequestWithContext(context.Background(), "GET", "https://api.etherscan.io/v2/api?"+params.Encode(), nil)
	if err != nil {
		return false, err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	var envelope struct {
		Status string `json:"status"`
		Result any    `json:"result"`
	}
	if json.Unmarshal(body, &envelope) == nil && envelope.Status != "1" {
		if msg, ok := envelope.Result.(string); ok && strings.Contains(msg, "Invalid API Key") {
			return false, nil
		}
	}

	return true, nil
}

func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:8] + "..." + key[len(key)-4:]
}
