package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/threatfuse/internal/model"
	"github.com/ppiankov/threatfuse/internal/pipeline"
	"github.com/ppiankov/threatfuse/internal/worker"
)

var (
	concurrency  int
	outputDir    string
	batchTimeout time.Duration
	defaultType  string
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Scan many targets from a file in parallel",
	Long: `Batch scans every target listed in a file, one per line:
- Blank lines and # comments are ignored, duplicates are scanned once
- A type prefix selects the target type (file:, vpn:, instagram:, url:)
- Targets are scanned in parallel; each report is written as JSON

Example:
  threatfuse batch targets.txt
  threatfuse batch targets.txt --concurrency 8 --output-dir ./reports`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().IntVar(&concurrency, "concurrency", runtime.NumCPU(), "number of concurrent scans")
	batchCmd.Flags().StringVar(&outputDir, "output-dir", "./threatfuse-reports", "output directory for reports")
	batchCmd.Flags().DurationVar(&batchTimeout, "batch-timeout", 30*time.Minute, "total timeout for the batch")
	batchCmd.Flags().StringVar(&defaultType, "type", "url", "type of targets without a prefix")
	addScanFlags(batchCmd, time.Minute)
}

// timeoutScanner bounds every scan by the per-target timeout
type timeoutScanner struct {
	inner   worker.Scanner
	timeout time.Duration
}

func (s timeoutScanner) Scan(ctx context.Context, target model.Target) (*model.ScanReport, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.inner.Scan(ctx, target)
}

func runBatch(cmd *cobra.Command, args []string) error {
	file := args[0]

	tt, err := model.ParseTargetType(defaultType)
	if err != nil {
		return err
	}

	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}
	if concurrency > 0 {
		cfg.Concurrency.Workers = concurrency
	}

	ctx, cancel := context.WithTimeout(context.Background(), batchTimeout)
	defer cancel()

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  threatfuse batch scan\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Input file:   %s\n", file)
	fmt.Fprintf(os.Stderr, "  Workers:      %d\n", cfg.Concurrency.Workers)
	fmt.Fprintf(os.Stderr, "  Output dir:   %s\n", outputDir)
	fmt.Fprintf(os.Stderr, "  Timeout:      %v\n", batchTimeout)
	fmt.Fprintf(os.Stderr, "\n")

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	p, err := pipeline.NewPipeline(cfg)
	if err != nil {
		return err
	}

	renderer := pipeline.NewRenderer(os.Stderr, false)
	processor := worker.NewBatchProcessor(timeoutScanner{inner: p, timeout: timeout}, cfg.Concurrency.Workers)
	processor.OnResult(func(r *worker.ScanResult) {
		if r.Error != nil {
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", r.Target.Value, r.Error)
			return
		}
		path := filepath.Join(outputDir, fmt.Sprintf("%03d-%s.json", r.Index+1, sanitizeFilename(r.Target.Value)))
		if err := renderer.RenderJSON(r.Report, path); err != nil {
			fmt.Fprintf(os.Stderr, "✗ %s: failed to write JSON: %v\n", r.Target.Value, err)
			return
		}
		a := r.Report.Assessment
		fmt.Fprintf(os.Stderr, "✓ %s  risk %.2f (%s)\n", r.Target.Value, a.Risk, a.TopCategory)
	})

	results, err := processor.ProcessFile(ctx, file, tt)
	if err != nil {
		return fmt.Errorf("process file: %w", err)
	}

	successCount, failureCount := 0, 0
	counts := make(map[model.RiskCategory]int)
	for _, r := range results {
		if r.Error != nil {
			failureCount++
			continue
		}
		successCount++
		counts[r.Report.Assessment.TopCategory]++
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Batch Complete\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Total:     %d targets\n", len(results))
	fmt.Fprintf(os.Stderr, "  Success:   %d\n", successCount)
	fmt.Fprintf(os.Stderr, "  Failures:  %d\n", failureCount)
	for i := len(model.RiskCategories) - 1; i >= 0; i-- {
		c := model.RiskCategories[i]
		if counts[c] > 0 {
			fmt.Fprintf(os.Stderr, "  %-9s  %d\n", c.String()+":", counts[c])
		}
	}
	fmt.Fprintf(os.Stderr, "  Output:    %s\n", outputDir)
	fmt.Fprintf(os.Stderr, "\n")

	return nil
}

// sanitizeFilename turns a target into a short, filesystem-safe name
func sanitizeFilename(s string) string {
	for _, prefix := range []string{"https://", "http://"} {
		s = strings.TrimPrefix(s, prefix)
	}

	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	out := strings.Trim(b.String(), "._")
	if len(out) > 80 {
		out = out[:80]
	}
	if out == "" {
		out = "target"
	}
	return out
}
