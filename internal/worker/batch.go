package worker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ppiankov/threatfuse/internal/model"
)

// Scanner scans a single target
type Scanner interface {
	Scan(ctx context.Context, target model.Target) (*model.ScanReport, error)
}

// ScanJob is one target queued for scanning
type ScanJob struct {
	Index   int
	Target  model.Target
	Scanner Scanner
}

// Execute runs the scan
func (j *ScanJob) Execute(ctx context.Context) Result {
	report, err := j.Scanner.Scan(ctx, j.Target)
	if err != nil {
		return &ScanResult{Index: j.Index, Target: j.Target, Error: err}
	}
	return &ScanResult{Index: j.Index, Target: j.Target, Report: report}
}

// ScanResult is the outcome of one batch entry
type ScanResult struct {
	Index  int
	Target model.Target
	Report *model.ScanReport
	Error  error
}

// GetError returns the scan error
func (r *ScanResult) GetError() error {
	return r.Error
}

// BatchProcessor scans many targets concurrently
type BatchProcessor struct {
	scanner     Scanner
	concurrency int
	onResult    func(*ScanResult)
}

// NewBatchProcessor creates a batch processor with the given concurrency
func NewBatchProcessor(scanner Scanner, concurrency int) *BatchProcessor {
	return &BatchProcessor{
		scanner:     scanner,
		concurrency: concurrency,
	}
}

// OnResult registers a callback invoked (from the collecting goroutine) as each scan finishes
func (b *BatchProcessor) OnResult(fn func(*ScanResult)) {
	b.onResult = fn
}

// Process scans every target and returns results in input order
func (b *BatchProcessor) Process(ctx context.Context, targets []model.Target) []*ScanResult {
	results := make([]*ScanResult, len(targets))
	if len(targets) == 0 {
		return results
	}

	pool := NewPool(ctx, b.concurrency)
	pool.Start()

	jobs := make([]*ScanJob, len(targets))
	for i, t := range targets {
		jobs[i] = &ScanJob{Index: i, Target: t, Scanner: b.scanner}
	}

	go func() {
		for _, job := range jobs {
			if !pool.Submit(job) {
				break
			}
		}
		pool.CloseAndDrain()
	}()

	for res := range pool.Results() {
		var sr *ScanResult
		switch r := res.(type) {
		case *ScanResult:
			sr = r
		case *panicResult:
			job := r.job.(*ScanJob)
			sr = &ScanResult{Index: job.Index, Target: job.Target, Error: r.err}
		default:
			continue
		}
		results[sr.Index] = sr
		if b.onResult != nil {
			b.onResult(sr)
		}
	}

	// Targets never reached because the batch was cancelled
	for i, r := range results {
		if r == nil {
			err := ctx.Err()
			if err == nil {
				err = fmt.Errorf("scan not started")
			}
			results[i] = &ScanResult{Index: i, Target: targets[i], Error: err}
		}
	}

	return results
}

// ProcessFile reads targets from a file and scans them
func (b *BatchProcessor) ProcessFile(ctx context.Context, filePath string, defaultType model.TargetType) ([]*ScanResult, error) {
	targets, err := ReadTargetsFromFile(filePath, defaultType)
	if err != nil {
		return nil, fmt.Errorf("read targets: %w", err)
	}
	return b.Process(ctx, targets), nil
}

// ReadTargetsFromFile reads one target per line. Blank lines and '#' comments
// are skipped, duplicates dropped. A line may carry an explicit type prefix,
// e.g. "file:/tmp/app.apk" or "instagram:some.handle"; otherwise defaultType applies.
func ReadTargetsFromFile(filePath string, defaultType model.TargetType) ([]model.Target, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	if defaultType == "" {
		defaultType = model.TargetURL
	}

	var targets []model.Target
	seen := make(map[model.Target]bool)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		target := parseTargetLine(line, defaultType)
		if !seen[target] {
			seen[target] = true
			targets = append(targets, target)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return targets, nil
}

func parseTargetLine(line string, defaultType model.TargetType) model.Target {
	prefix, rest, ok := strings.Cut(line, ":")
	if ok && !strings.HasPrefix(rest, "//") {
		if tt, err := model.ParseTargetType(prefix); err == nil && prefix != "" {
			return model.Target{Type: tt, Value: strings.TrimSpace(rest)}
		}
	}
	return model.Target{Type: defaultType, Value: line}
}
