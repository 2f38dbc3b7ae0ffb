package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/threatfuse/internal/model"
	"github.com/ppiankov/threatfuse/internal/pipeline"
)

var (
	targetType string
	outJSON    string
	timeout    time.Duration
	noCache    bool
	noNetwork  bool
	mlProvider string
	mlModel    string
	httpProxy  string
	httpsProxy string
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan <target>",
	Short: "Scan a single target and print its fused risk",
	Long: `Scan queries every configured evidence slot and analyzer concurrently:
- Vendor slots walk their fallback chain until one provider answers
- The network analyzer inspects TLS, certificate, headers and DNSSEC
- The optional ML classifier adds a maliciousness probability
- Everything is fused into a 0-5 risk score with a category breakdown

Example:
  threatfuse scan https://login-paypal.example.top/verify
  threatfuse scan https://example.com --json report.json
  threatfuse scan invoice.pdf.exe --type file
  threatfuse scan https://example.com --ml openai --ml-model gpt-4o-mini`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringVar(&targetType, "type", "url", "target type (url, file, vpn_config, instagram)")
	scanCmd.Flags().StringVar(&outJSON, "json", "", "write the JSON report to this path (- for stdout)")
	addScanFlags(scanCmd, time.Minute)
}

// addScanFlags registers the flags shared by scan and batch
func addScanFlags(cmd *cobra.Command, defaultTimeout time.Duration) {
	cmd.Flags().DurationVar(&timeout, "timeout", defaultTimeout, "per-target scan timeout")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable the verdict cache")
	cmd.Flags().BoolVar(&noNetwork, "no-network", false, "skip the network posture analyzer")
	cmd.Flags().StringVar(&mlProvider, "ml", "", "ML classifier backend (openai, ollama)")
	cmd.Flags().StringVar(&mlModel, "ml-model", "", "ML model name")
	cmd.Flags().StringVar(&httpProxy, "http-proxy", "", "HTTP proxy URL (overrides HTTP_PROXY env var)")
	cmd.Flags().StringVar(&httpsProxy, "https-proxy", "", "HTTPS proxy URL (overrides HTTPS_PROXY env var)")
}

// buildConfig loads the configuration and applies command flags on top
func buildConfig(cmd *cobra.Command) (*model.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	if noCache {
		cfg.Cache.Enabled = false
	}
	if noNetwork {
		cfg.Network.Enabled = false
	}
	if cmd.Flags().Changed("ml") {
		cfg.ML.Provider = mlProvider
		applyEnv(cfg)
	}
	if mlModel != "" {
		cfg.ML.Model = mlModel
	}
	if httpProxy != "" {
		cfg.HTTP.HTTPProxy = httpProxy
	}
	if httpsProxy != "" {
		cfg.HTTP.HTTPSProxy = httpsProxy
	}
	cfg.Output.Verbose = verbose
	return cfg, nil
}

func runScan(cmd *cobra.Command, args []string) error {
	tt, err := model.ParseTargetType(targetType)
	if err != nil {
		return err
	}
	target := model.Target{Type: tt, Value: args[0]}

	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if verbose {
		fmt.Fprintf(os.Stderr, "Scanning: %s (%s)\n", target.Value, target.Type)
		fmt.Fprintf(os.Stderr, "Timeout: %v\n", timeout)
		fmt.Fprintf(os.Stderr, "Cache: %v\n", cfg.Cache.Enabled)
		fmt.Fprintln(os.Stderr)
	}

	p, err := pipeline.NewPipeline(cfg)
	if err != nil {
		return err
	}

	report, err := p.Scan(ctx, target)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	renderer := pipeline.NewRenderer(os.Stdout, verbose)
	if outJSON != "" {
		if err := renderer.RenderJSON(report, outJSON); err != nil {
			return fmt.Errorf("render failed: %w", err)
		}
		if outJSON == "-" {
			return nil
		}
		if verbose {
			fmt.Fprintf(os.Stderr, "✓ Wrote JSON: %s\n", outJSON)
		}
	}

	renderer.RenderSummary(report)

	if stats, ok := p.CacheStats(); ok && verbose {
		fmt.Fprintf(os.Stderr, "Cache: %d memory hits, %d disk hits, %d misses\n", stats.MemoryHits, stats.DiskHits, stats.Misses)
	}
	return nil
}
