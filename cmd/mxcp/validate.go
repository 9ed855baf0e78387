package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mxcp-labs/mxcp-go/internal/endpoints"
)

// runValidate loads every endpoint definition and reports per-file
// results. The exit code is non-zero when any file fails, which makes
// the command usable as a CI gate.
func runValidate(_ *cobra.Command, _ []string) error {
	cfg, err := loadSiteConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	loader := endpoints.NewLoader(cfg.EndpointsDir, zap.NewNop())
	result, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to scan %s: %w", cfg.EndpointsDir, err)
	}

	for _, ep := range result.Loaded {
		status := "ok"
		if !ep.Enabled {
			status = "ok (disabled)"
		}
		fmt.Printf("%-10s %-30s %s\n", status, ep.ID, ep.SourceFile)
	}
	for _, loadErr := range result.Errors {
		fmt.Fprintf(os.Stderr, "%-10s %-30s %v\n", "error", loadErr.File, loadErr.Err)
	}

	fmt.Printf("\n%d valid, %d invalid\n", len(result.Loaded), len(result.Errors))
	if len(result.Errors) > 0 {
		return fmt.Errorf("%d endpoint file(s) failed validation", len(result.Errors))
	}
	return nil
}

func runList(_ *cobra.Command, _ []string) error {
	cfg, err := loadSiteConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	loader := endpoints.NewLoader(cfg.EndpointsDir, zap.NewNop())
	result, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to scan %s: %w", cfg.EndpointsDir, err)
	}

	sorted := make([]*endpoints.Endpoint, len(result.Loaded))
	copy(sorted, result.Loaded)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KIND\tNAME\tLANGUAGE\tENABLED\tDESCRIPTION")
	for _, ep := range sorted {
		lang := ep.Source.Language
		if ep.Kind == endpoints.KindPrompt {
			lang = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n", ep.Kind, ep.Name, lang, ep.Enabled, ep.Description)
	}
	return w.Flush()
}
