package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mxcp-labs/mxcp-go/internal/adminapi"
)

// adminClient dials the admin surface of the server described by the
// site config in the current project.
func adminClient() (*adminapi.Client, error) {
	cfg, err := loadSiteConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return adminapi.NewClient(adminapi.DefaultEndpoint(cfg.DataDir)), nil
}

func runStatus(_ *cobra.Command, _ []string) error {
	client, err := adminClient()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	status, err := client.Status(ctx)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(status)
}

func runReload(_ *cobra.Command, _ []string) error {
	client, err := adminClient()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	id, err := client.Reload(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("reload initiated (request id %s)\n", id)
	return nil
}
