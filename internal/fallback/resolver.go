package fallback

import (
	"context"
	"fmt"
	"strings"

	"github.com/ppiankov/threatfuse/internal/logging"
	"github.com/ppiankov/threatfuse/internal/model"
)

// Client queries one threat-intelligence provider
type Client interface {
	// Provider returns the identity this client answers for
	Provider() model.Provider

	// Query looks the target up. Implementations return ErrNoResults when the
	// provider has no data and any other error for transport/parse failures.
	Query(ctx context.Context, target string) (model.VendorVerdict, error)
}

// Resolver walks slot waterfalls over a set of registered clients
type Resolver struct {
	clients map[model.Provider]Client
}

// NewResolver creates a resolver over the given clients
func NewResolver(clients ...Client) *Resolver {
	r := &Resolver{clients: make(map[model.Provider]Client)}
	for _, c := range clients {
		r.Register(c)
	}
	return r
}

// Register adds or replaces the client for its provider
func (r *Resolver) Register(c Client) {
	if c == nil {
		return
	}
	r.clients[c.Provider()] = c
}

// Has reports whether a client is registered for p
func (r *Resolver) Has(p model.Provider) bool {
	_, ok := r.clients[p]
	return ok
}

// attempt is the outcome of querying one link of a chain
type attempt struct {
	provider model.Provider
	verdict  model.VendorVerdict
	err      error
}

// Resolve produces exactly one verdict for the slot. It never fails: provider
// errors move the waterfall to the next link, and an exhausted chain yields an
// ERROR verdict attributed to the primary.
func (r *Resolver) Resolve(ctx context.Context, slot model.SlotDefinition, target string) model.VendorVerdict {
	chain := slot.Chain()
	attempts := make([]attempt, 0, len(chain))

	for _, p := range chain {
		if err := ctx.Err(); err != nil {
			attempts = append(attempts, attempt{
				provider: p,
				err:      fmt.Errorf("%w: %w", ErrProviderUnavailable, err),
			})
			break
		}

		a := r.query(ctx, p, target)
		attempts = append(attempts, a)
		if a.err == nil {
			break
		}

		logging.Logger.Debugw("provider attempt failed",
			"slot", slot.Name,
			"provider", p,
			"reason", Classify(a.err),
			"error", a.err,
		)
	}

	verdict := firstSuccess(slot, attempts)
	if verdict.Status == model.StatusError {
		logging.Logger.Warnw("all providers exhausted",
			"slot", slot.Name,
			"chain", chain,
			"attempts", verdict.Detail(model.DetailFallbackAttempts),
		)
	}
	return verdict
}

// query calls one provider and absorbs panics and malformed answers
func (r *Resolver) query(ctx context.Context, p model.Provider, target string) (a attempt) {
	a.provider = p

	client, ok := r.clients[p]
	if !ok {
		a.err = fmt.Errorf("%w: no client configured for %s", ErrProviderUnavailable, p)
		return a
	}

	defer func() {
		if rec := recover(); rec != nil {
			a.err = fmt.Errorf("%w: %s panicked: %v", ErrProviderUnavailable, p, rec)
		}
	}()

	verdict, err := client.Query(ctx, target)
	if err != nil {
		a.err = err
		return a
	}
	if verdict.Status == model.StatusError {
		a.err = fmt.Errorf("%w: %s returned an error verdict", ErrProviderUnavailable, p)
		return a
	}
	if _, perr := model.ParseStatus(string(verdict.Status)); perr != nil {
		a.err = fmt.Errorf("%w: %v", ErrProviderUnavailable, perr)
		return a
	}

	a.verdict = normalize(p, verdict)
	return a
}

// normalize copies the verdict so provider-owned maps are never mutated downstream
func normalize(p model.Provider, v model.VendorVerdict) model.VendorVerdict {
	out := model.NewVerdict(p, v.Status, v.Score)
	for k, val := range v.Details {
		out.Details[k] = val
	}
	return out
}

// firstSuccess folds the recorded attempts into the slot verdict:
// the first successful attempt wins, otherwise the slot is exhausted.
func firstSuccess(slot model.SlotDefinition, attempts []attempt) model.VendorVerdict {
	for i, a := range attempts {
		if a.err != nil {
			continue
		}
		if i == 0 {
			return a.verdict
		}
		return a.verdict.
			WithDetail(model.DetailFallbackProvider, a.provider.String()).
			WithDetail(model.DetailFallbackReason, string(Classify(attempts[0].err))).
			WithDetail(model.DetailFallbackAttempts, describeFailures(attempts[:i]))
	}

	details := map[string]string{model.DetailAllProvidersExhausted: "true"}
	if len(attempts) > 0 {
		details[model.DetailFallbackAttempts] = describeFailures(attempts)
	}
	return model.ErrorVerdict(slot.Primary, details)
}

// describeFailures renders failed attempts as "provider:reason,provider:reason"
func describeFailures(attempts []attempt) string {
	parts := make([]string, 0, len(attempts))
	for _, a := range attempts {
		if a.err == nil {
			continue
		}
		parts = append(parts, a.provider.String()+":"+string(Classify(a.err)))
	}
	return strings.Join(parts, ",")
}
