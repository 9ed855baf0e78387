package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mxcp-labs/mxcp-go/internal/drift"
	"github.com/mxcp-labs/mxcp-go/internal/endpoints"
	"github.com/mxcp-labs/mxcp-go/internal/secret"
	"github.com/mxcp-labs/mxcp-go/internal/sqlsession"
)

// runDriftSnapshot captures the current database schema and endpoint
// definitions as the drift baseline for external comparison tools.
func runDriftSnapshot(_ *cobra.Command, _ []string) error {
	cfg, err := loadSiteConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	prof := cfg.ActiveProfile()

	ctx := context.Background()
	secrets, err := secret.NewResolver().ResolveMap(ctx, cfg.Secrets)
	if err != nil {
		return fmt.Errorf("failed to resolve secrets: %w", err)
	}

	session, err := sqlsession.Open(ctx, sqlsession.Config{
		Path:       resolvePath(cfg.BaseDir, prof.Database),
		ReadOnly:   true,
		Extensions: cfg.Extensions,
	}, secrets, zap.NewNop())
	if err != nil {
		return fmt.Errorf("failed to open database session: %w", err)
	}
	defer func() { _ = session.Close() }()

	result, err := endpoints.NewLoader(cfg.EndpointsDir, zap.NewNop()).Load()
	if err != nil {
		return fmt.Errorf("failed to load endpoints: %w", err)
	}

	snapshot, err := drift.Generate(ctx, session, result)
	if err != nil {
		return err
	}

	path := prof.Drift.Path
	if path == "" {
		path = filepath.Join(cfg.DataDir, "drift.json")
	} else {
		path = resolvePath(cfg.BaseDir, path)
	}
	if err := drift.Write(path, snapshot); err != nil {
		return err
	}

	fmt.Printf("wrote drift snapshot: %s (%d tables, %d resources)\n",
		path, len(snapshot.Tables), len(snapshot.Resources))
	return nil
}
