package cli

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/threatfuse/internal/model"
	"github.com/ppiankov/threatfuse/internal/provider"
	"github.com/ppiankov/threatfuse/internal/score"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List known providers, their trust weights and configured slots",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		writeProviders(cmd.OutOrStdout(), cfg)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(providersCmd)
}

// writeProviders prints the provider table and the slot chains. A provider is
// active when it is enabled and its adapter could be built (API key present).
func writeProviders(w io.Writer, cfg *model.Config) {
	weights := score.DefaultWeights().WithTrust(cfg.Scoring.Trust)
	supported := provider.Supported()
	resolver := provider.Build(cfg, nil, nil)

	fmt.Fprintf(w, "%-22s %-22s %6s  %-8s %-8s %s\n", "PROVIDER", "NAME", "TRUST", "ADAPTER", "ENABLED", "ACTIVE")
	for _, p := range model.AllProviders() {
		adapter := "-"
		if slices.Contains(supported, p) {
			adapter = "yes"
		}
		enabled := "-"
		if pc, ok := cfg.Providers[p]; ok {
			enabled = fmt.Sprintf("%v", pc.Enabled)
		}
		active := "-"
		if resolver.Has(p) {
			active = "yes"
		}
		fmt.Fprintf(w, "%-22s %-22s %6.2f  %-8s %-8s %s\n", p, p.DisplayName(), weights.TrustOf(p), adapter, enabled, active)
	}

	slots := cfg.Slots
	if len(slots) == 0 {
		slots = model.DefaultSlots()
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Slots:")
	for _, s := range slots {
		chain := make([]string, 0, len(s.Fallbacks)+1)
		for _, p := range s.Chain() {
			chain = append(chain, string(p))
		}
		fmt.Fprintf(w, "  %-14s %s\n", s.Name, strings.Join(chain, " → "))
	}
}
