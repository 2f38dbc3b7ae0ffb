package collect

import (
	"context"
	"fmt"
	"sync"

	"github.com/ppiankov/threatfuse/internal/logging"
	"github.com/ppiankov/threatfuse/internal/model"
)

// Analyzer produces one optional sub-report for a target
type Analyzer[R any] interface {
	Analyze(ctx context.Context, target model.Target) (R, error)
}

// AnalyzerFunc adapts a function to the Analyzer interface
type AnalyzerFunc[R any] func(ctx context.Context, target model.Target) (R, error)

// Analyze calls f
func (f AnalyzerFunc[R]) Analyze(ctx context.Context, target model.Target) (R, error) {
	return f(ctx, target)
}

// SlotResolver produces exactly one verdict per slot (see fallback.Resolver)
type SlotResolver interface {
	Resolve(ctx context.Context, slot model.SlotDefinition, target string) model.VendorVerdict
}

// Collector builds evidence bundles by running every slot and analyzer concurrently
type Collector struct {
	resolver SlotResolver
	slots    []model.SlotDefinition

	ml        Analyzer[*model.MlReport]
	network   Analyzer[*model.NetworkReport]
	file      Analyzer[*model.FileReport]
	vpn       Analyzer[*model.VpnConfigReport]
	instagram Analyzer[*model.InstagramReport]
}

// Option configures a Collector
type Option func(*Collector)

// WithMLAnalyzer sets the ML classifier
func WithMLAnalyzer(a Analyzer[*model.MlReport]) Option {
	return func(c *Collector) { c.ml = a }
}

// WithNetworkAnalyzer sets the network posture analyzer
func WithNetworkAnalyzer(a Analyzer[*model.NetworkReport]) Option {
	return func(c *Collector) { c.network = a }
}

// WithFileAnalyzer sets the static file analyzer
func WithFileAnalyzer(a Analyzer[*model.FileReport]) Option {
	return func(c *Collector) { c.file = a }
}

// WithVpnAnalyzer sets the VPN configuration analyzer
func WithVpnAnalyzer(a Analyzer[*model.VpnConfigReport]) Option {
	return func(c *Collector) { c.vpn = a }
}

// WithInstagramAnalyzer sets the social profile analyzer
func WithInstagramAnalyzer(a Analyzer[*model.InstagramReport]) Option {
	return func(c *Collector) { c.instagram = a }
}

// New creates a collector over the given slots
func New(resolver SlotResolver, slots []model.SlotDefinition, opts ...Option) *Collector {
	c := &Collector{
		resolver: resolver,
		slots:    append([]model.SlotDefinition(nil), slots...),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Collect gathers the complete evidence bundle for target. It returns only
// after every branch has settled; failed or cancelled branches degrade their
// own field and never affect siblings.
func (c *Collector) Collect(ctx context.Context, target model.Target) model.EvidenceBundle {
	bundle := model.EvidenceBundle{TargetType: target.Type}

	var slots []model.SlotDefinition
	for _, s := range c.slots {
		if s.AppliesTo(target.Type) {
			slots = append(slots, s)
		}
	}

	// Each goroutine owns one index of verdicts or one field of bundle
	verdicts := make([]model.VendorVerdict, len(slots))
	var wg sync.WaitGroup

	for i, slot := range slots {
		wg.Add(1)
		go func(i int, slot model.SlotDefinition) {
			defer wg.Done()
			verdicts[i] = c.resolveSlot(ctx, slot, target.Value)
		}(i, slot)
	}

	if c.ml != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bundle.MlReport = runAnalyzer(ctx, "ml", c.ml, target)
		}()
	}
	if c.network != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bundle.NetworkReport = runAnalyzer(ctx, "network", c.network, target)
		}()
	}
	if c.file != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bundle.FileReport = runAnalyzer(ctx, "file", c.file, target)
		}()
	}
	if c.vpn != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bundle.VpnReport = runAnalyzer(ctx, "vpn_config", c.vpn, target)
		}()
	}
	if c.instagram != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bundle.InstagramReport = runAnalyzer(ctx, "instagram", c.instagram, target)
		}()
	}

	wg.Wait()

	bundle.VendorVerdicts = verdicts
	return bundle
}

// resolveSlot runs one slot and converts a panic into an exhausted ERROR verdict
func (c *Collector) resolveSlot(ctx context.Context, slot model.SlotDefinition, target string) (v model.VendorVerdict) {
	defer func() {
		if rec := recover(); rec != nil {
			logging.Logger.Errorw("slot resolution panicked", "slot", slot.Name, "panic", fmt.Sprint(rec))
			v = model.ErrorVerdict(slot.Primary, map[string]string{
				model.DetailAllProvidersExhausted: "true",
			})
		}
	}()

	if c.resolver == nil {
		return model.ErrorVerdict(slot.Primary, map[string]string{
			model.DetailAllProvidersExhausted: "true",
		})
	}
	return c.resolver.Resolve(ctx, slot, target)
}

// runAnalyzer calls a, returning nil when it fails, panics, or the scan was cancelled
func runAnalyzer[R any](ctx context.Context, name string, a Analyzer[*R], target model.Target) (report *R) {
	defer func() {
		if rec := recover(); rec != nil {
			logging.Logger.Errorw("analyzer panicked", "analyzer", name, "panic", fmt.Sprint(rec))
			report = nil
		}
	}()

	if ctx.Err() != nil {
		return nil
	}

	r, err := a.Analyze(ctx, target)
	if err != nil {
		logging.Logger.Debugw("analyzer unavailable", "analyzer", name, "target", target.Value, "error", err)
		return nil
	}
	if ctx.Err() != nil {
		// Result raced with cancellation; a cancelled branch contributes nothing
		return nil
	}
	return r
}
