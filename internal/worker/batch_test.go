package worker

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ppiankov/threatfuse/internal/model"
)

// MockScanner implements Scanner
type MockScanner struct {
	ShouldError bool
	PanicOn     string
	calls       int32
}

func (m *MockScanner) Scan(ctx context.Context, target model.Target) (*model.ScanReport, error) {
	atomic.AddInt32(&m.calls, 1)
	if target.Value == m.PanicOn {
		panic("scanner bug")
	}
	// Later targets finish first
	time.Sleep(time.Duration(len(target.Value)%3) * 5 * time.Millisecond)
	if m.ShouldError {
		return nil, errors.New("scan error")
	}
	return &model.ScanReport{ID: "scan-" + target.Value, Target: target}, nil
}

func urls(values ...string) []model.Target {
	targets := make([]model.Target, len(values))
	for i, v := range values {
		targets[i] = model.Target{Type: model.TargetURL, Value: v}
	}
	return targets
}

func TestBatchProcessor_Process(t *testing.T) {
	scanner := &MockScanner{}
	processor := NewBatchProcessor(scanner, 2)

	targets := urls("http://a.example", "http://bb.example", "http://ccc.example", "http://dddd.example")
	var seen int32
	processor.OnResult(func(*ScanResult) { atomic.AddInt32(&seen, 1) })

	results := processor.Process(context.Background(), targets)

	if len(results) != len(targets) {
		t.Fatalf("expected %d results, got %d", len(targets), len(results))
	}
	for i, res := range results {
		if res.Error != nil {
			t.Errorf("unexpected error for %s: %v", res.Target.Value, res.Error)
			continue
		}
		if res.Target != targets[i] || res.Index != i {
			t.Errorf("result %d out of order: %+v", i, res.Target)
		}
		if res.Report == nil || res.Report.ID != "scan-"+targets[i].Value {
			t.Errorf("result %d has wrong report", i)
		}
	}
	if atomic.LoadInt32(&seen) != int32(len(targets)) {
		t.Errorf("expected %d callbacks, got %d", len(targets), seen)
	}
}

func TestBatchProcessor_Process_ManyTargets(t *testing.T) {
	values := make([]string, 60)
	for i := range values {
		values[i] = "https://host" + string(rune('a'+i%26)) + ".example/" + string(rune('a'+i/26))
	}
	scanner := &MockScanner{}

	results := NewBatchProcessor(scanner, 3).Process(context.Background(), urls(values...))

	if len(results) != 60 {
		t.Fatalf("expected 60 results, got %d", len(results))
	}
	if atomic.LoadInt32(&scanner.calls) != 60 {
		t.Errorf("expected 60 scans, got %d", scanner.calls)
	}
}

func TestBatchProcessor_Process_Error(t *testing.T) {
	processor := NewBatchProcessor(&MockScanner{ShouldError: true}, 2)

	results := processor.Process(context.Background(), urls("http://example.com"))

	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Error == nil {
		t.Error("expected error, got nil")
	}
	if results[0].Report != nil {
		t.Error("expected nil report on error")
	}
}

func TestBatchProcessor_Process_Panic(t *testing.T) {
	processor := NewBatchProcessor(&MockScanner{PanicOn: "http://bad.example"}, 2)

	results := processor.Process(context.Background(), urls("http://ok.example", "http://bad.example"))

	if results[0].Error != nil {
		t.Errorf("healthy target failed: %v", results[0].Error)
	}
	if results[1].Error == nil {
		t.Error("panicking scan should surface as an error")
	}
	if results[1].Target.Value != "http://bad.example" {
		t.Errorf("panic result lost its target: %+v", results[1].Target)
	}
}

func TestBatchProcessor_Process_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := NewBatchProcessor(&MockScanner{}, 2).Process(ctx, urls("http://a.example", "http://b.example"))

	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for _, r := range results {
		if r == nil {
			t.Fatal("every target must have a result")
		}
	}
}

func TestBatchProcessor_Process_Empty(t *testing.T) {
	results := NewBatchProcessor(&MockScanner{}, 2).Process(context.Background(), nil)
	if len(results) != 0 {
		t.Errorf("expected 0 results, got %d", len(results))
	}
}

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "targets")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return f.Name()
}

func TestReadTargetsFromFile(t *testing.T) {
	path := writeTemp(t, `http://example.com
# comment
https://login-paypal.example.top/verify

url:http://bing.com
file:/tmp/invoice.pdf.exe
instagram: crypto.giveaway.official
http://example.com   `)

	targets, err := ReadTargetsFromFile(path, model.TargetURL)
	if err != nil {
		t.Fatalf("ReadTargetsFromFile failed: %v", err)
	}

	expected := []model.Target{
		{Type: model.TargetURL, Value: "http://example.com"},
		{Type: model.TargetURL, Value: "https://login-paypal.example.top/verify"},
		{Type: model.TargetURL, Value: "http://bing.com"},
		{Type: model.TargetFile, Value: "/tmp/invoice.pdf.exe"},
		{Type: model.TargetInstagram, Value: "crypto.giveaway.official"},
	}
	if len(targets) != len(expected) {
		t.Fatalf("expected %d targets, got %d: %+v", len(expected), len(targets), targets)
	}
	for i, tgt := range targets {
		if tgt != expected[i] {
			t.Errorf("target %d: expected %+v, got %+v", i, expected[i], tgt)
		}
	}
}

func TestReadTargetsFromFile_NonExistent(t *testing.T) {
	if _, err := ReadTargetsFromFile("non_existent_file.txt", model.TargetURL); err == nil {
		t.Error("expected error for non-existent file, got nil")
	}
}

func TestBatchProcessor_ProcessFile(t *testing.T) {
	path := writeTemp(t, "http://example.com\nhttps://google.com\n# comment\n\nhttp://bing.com\n")

	results, err := NewBatchProcessor(&MockScanner{}, 2).ProcessFile(context.Background(), path, model.TargetURL)
	if err != nil {
		t.Fatalf("ProcessFile failed: %v", err)
	}
	if len(results) != 3 {
		t.Errorf("expected 3 results, got %d", len(results))
	}
}

func TestBatchProcessor_ProcessFile_NonExistent(t *testing.T) {
	_, err := NewBatchProcessor(&MockScanner{}, 2).ProcessFile(context.Background(), "no_such_file.txt", model.TargetURL)
	if err == nil {
		t.Error("expected error for non-existent file, got nil")
	}
}

func TestScanResult_GetError(t *testing.T) {
	r1 := &ScanResult{Target: model.Target{Value: "http://example.com"}}
	if r1.GetError() != nil {
		t.Errorf("expected nil error, got %v", r1.GetError())
	}

	expected := errors.New("scan failed")
	r2 := &ScanResult{Target: model.Target{Value: "http://example.com"}, Error: expected}
	if r2.GetError() != expected {
		t.Errorf("expected %v, got %v", expected, r2.GetError())
	}
}
