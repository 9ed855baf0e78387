package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configFile string
	profile    string
	transport  string
	listenAddr string
	logLevel   string
	readOnly   bool
	logToFile  bool
	logDir     string

	version = "v0.1.0" // injected by -ldflags during build
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "mxcp",
		Short:   "MXCP - declarative MCP endpoints over SQL and host-language sources",
		Version: version,
		RunE:    runServe,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Site configuration file path (default: discover mxcp-site.yml upward from cwd)")
	rootCmd.PersistentFlags().StringVarP(&profile, "profile", "p", "", "Profile to activate (overrides site config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logToFile, "log-to-file", false, "Enable logging to a rotated file")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "", "Custom log directory path (overrides standard OS location)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the declared endpoints over MCP",
		RunE:  runServe,
	}
	serveCmd.Flags().StringVarP(&transport, "transport", "t", "", "Transport mode: stdio or http (overrides site config)")
	serveCmd.Flags().StringVarP(&listenAddr, "listen", "l", "", "Listen address for HTTP transport")
	serveCmd.Flags().BoolVar(&readOnly, "readonly", false, "Open the database read-only regardless of profile settings")
	rootCmd.AddCommand(serveCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Load and validate every endpoint definition without serving",
		RunE:  runValidate,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the declared endpoints",
		RunE:  runList,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the status of a running server via its admin socket",
		RunE:  runStatus,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "reload",
		Short: "Ask a running server to hot-reload endpoints and secrets",
		RunE:  runReload,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "drift-snapshot",
		Short: "Write the drift baseline: database schema plus endpoint definitions",
		RunE:  runDriftSnapshot,
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
