package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/threatfuse/internal/model"
)

// secretEnv maps viper keys to the environment variables that may carry them.
// The prefixed name wins over the vendor's conventional one.
var secretEnv = map[string][]string{
	"virustotal_api_key": {"THREATFUSE_VIRUSTOTAL_API_KEY", "VIRUSTOTAL_API_KEY"},
	"gsb_api_key":        {"THREATFUSE_GSB_API_KEY", "GSB_API_KEY"},
	"abusech_auth_key":   {"THREATFUSE_ABUSECH_AUTH_KEY", "ABUSECH_AUTH_KEY"},
	"openai_api_key":     {"THREATFUSE_OPENAI_API_KEY", "OPENAI_API_KEY"},
	"ollama_base_url":    {"THREATFUSE_OLLAMA_BASE_URL", "OLLAMA_BASE_URL"},
}

func bindSecretEnv() {
	for key, envs := range secretEnv {
		_ = viper.BindEnv(append([]string{key}, envs...)...)
	}
}

// loadConfig builds the effective configuration: defaults, then the config
// file, then environment variables. Command flags are applied by the caller.
func loadConfig() (*model.Config, error) {
	cfg := model.DefaultConfig()

	if path := viper.ConfigFileUsed(); path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv fills secrets the config file left empty
func applyEnv(cfg *model.Config) {
	setKey := func(p model.Provider, key string) {
		v := viper.GetString(key)
		if v == "" {
			return
		}
		pc := cfg.Providers[p]
		if pc.APIKey == "" {
			pc.APIKey = v
			cfg.Providers[p] = pc
		}
	}
	if cfg.Providers == nil {
		cfg.Providers = make(map[model.Provider]model.ProviderConfig)
	}
	setKey(model.ProviderVirusTotal, "virustotal_api_key")
	setKey(model.ProviderGoogleSafeBrowsing, "gsb_api_key")
	setKey(model.ProviderURLHaus, "abusech_auth_key")
	setKey(model.ProviderThreatFox, "abusech_auth_key")

	if cfg.ML.APIKey == "" {
		cfg.ML.APIKey = viper.GetString("openai_api_key")
	}
	if cfg.ML.BaseURL == "" && cfg.ML.Provider == "ollama" {
		cfg.ML.BaseURL = viper.GetString("ollama_base_url")
	}
}

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage threatfuse configuration",
	Long: `Manage threatfuse configuration files and settings.

Configuration hierarchy (highest to lowest priority):
1. CLI flags
2. Environment variables (THREATFUSE_*, VIRUSTOTAL_API_KEY, GSB_API_KEY, OPENAI_API_KEY)
3. Config file (~/.threatfuse/config.yaml)
4. Defaults`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the effective configuration after merging defaults, config file and environment. API keys are masked.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		if configFile := viper.ConfigFileUsed(); configFile != "" {
			fmt.Fprintf(os.Stderr, "Configuration file: %s\n\n", configFile)
		} else {
			fmt.Fprintf(os.Stderr, "No configuration file found (using defaults)\n\n")
		}

		yamlData, err := yaml.Marshal(maskSecrets(cfg))
		if err != nil {
			return fmt.Errorf("error marshaling config: %w", err)
		}

		fmt.Println("═══════════════════════════════════════════════════════════")
		fmt.Println("  Current Configuration")
		fmt.Println("═══════════════════════════════════════════════════════════")
		fmt.Println()
		fmt.Println(string(yamlData))
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize default configuration file",
	Long:  `Create a default configuration file at ~/.threatfuse/config.yaml with every option and the default fallback slots.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfgFile
		if path == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("error finding home directory: %w", err)
			}
			path = filepath.Join(home, ".threatfuse", "config.yaml")
		}

		if err := writeDefaultConfig(path); err != nil {
			return err
		}

		fmt.Printf("✓ Created default configuration: %s\n", path)
		fmt.Printf("\nTo view the configuration:\n")
		fmt.Printf("  threatfuse config show\n")
		return nil
	},
}

// writeDefaultConfig writes the commented default config; it refuses to overwrite
func writeDefaultConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s\nUse 'threatfuse config show' to view it, or delete it first to recreate", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	yamlData, err := yaml.Marshal(model.DefaultConfig())
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	header := `# threatfuse configuration file
#
# Configuration hierarchy (highest to lowest priority):
#   1. CLI flags
#   2. Environment variables (THREATFUSE_*)
#   3. This config file
#   4. Built-in defaults
#
# API keys are best kept in the environment:
#   export VIRUSTOTAL_API_KEY=...
#   export GSB_API_KEY=...
#   export ABUSECH_AUTH_KEY=...
#   export OPENAI_API_KEY=sk-...

`
	data := append([]byte(header), yamlData...)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("error writing config: %w", err)
	}
	return nil
}

// maskSecrets returns a copy of cfg safe to print
func maskSecrets(cfg *model.Config) *model.Config {
	out := *cfg
	out.Providers = make(map[model.Provider]model.ProviderConfig, len(cfg.Providers))
	for p, pc := range cfg.Providers {
		pc.APIKey = mask(pc.APIKey)
		out.Providers[p] = pc
	}
	out.ML.APIKey = mask(cfg.ML.APIKey)
	return &out
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "****"
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}
