package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mxcp-labs/mxcp-go/internal/adminapi"
	"github.com/mxcp-labs/mxcp-go/internal/audit"
	"github.com/mxcp-labs/mxcp-go/internal/config"
	"github.com/mxcp-labs/mxcp-go/internal/endpoints"
	"github.com/mxcp-labs/mxcp-go/internal/executor"
	"github.com/mxcp-labs/mxcp-go/internal/logs"
	"github.com/mxcp-labs/mxcp-go/internal/observability"
	"github.com/mxcp-labs/mxcp-go/internal/policy"
	"github.com/mxcp-labs/mxcp-go/internal/reload"
	"github.com/mxcp-labs/mxcp-go/internal/runner"
	"github.com/mxcp-labs/mxcp-go/internal/secret"
	"github.com/mxcp-labs/mxcp-go/internal/server"
	"github.com/mxcp-labs/mxcp-go/internal/sqlsession"
	"github.com/mxcp-labs/mxcp-go/internal/storage"
)

// loadSiteConfig loads the site configuration and applies command-line
// overrides on top of file and environment settings.
func loadSiteConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if configFile != "" {
		cfg, err = config.LoadFromFile(configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if profile != "" {
		cfg.Profile = profile
	}
	if transport != "" {
		cfg.Transport.Mode = transport
	}
	if listenAddr != "" {
		cfg.Transport.Addr = listenAddr
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logToFile {
		cfg.Logging.EnableFile = true
	}
	if logDir != "" {
		cfg.Logging.LogDir = logDir
	}
	if readOnly {
		prof := cfg.ActiveProfile()
		prof.ReadOnly = true
		if cfg.Profiles == nil {
			cfg.Profiles = make(map[string]config.Profile)
		}
		cfg.Profiles[cfg.Profile] = prof
	}
	return cfg, cfg.Validate()
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := loadSiteConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := logs.Setup(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to setup logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	prof := cfg.ActiveProfile()
	resolver := secret.NewResolver()

	secrets, err := resolver.ResolveMap(ctx, cfg.Secrets)
	if err != nil {
		return fmt.Errorf("failed to resolve secrets: %w", err)
	}

	sessionConfig := sqlsession.Config{
		Path:       resolvePath(cfg.BaseDir, prof.Database),
		ReadOnly:   prof.ReadOnly,
		Extensions: cfg.Extensions,
	}
	session, err := sqlsession.Open(ctx, sessionConfig, secrets, logger)
	if err != nil {
		return fmt.Errorf("failed to open database session: %w", err)
	}

	loader := endpoints.NewLoader(cfg.EndpointsDir, logger)
	loadSnapshot := func() (*endpoints.Snapshot, error) {
		result, err := loader.Load()
		if err != nil {
			return nil, err
		}
		for _, loadErr := range result.Errors {
			logger.Warn("skipping invalid endpoint file",
				zap.String("file", loadErr.File), zap.Error(loadErr.Err))
		}
		return endpoints.NewSnapshot(result.Loaded), nil
	}

	snapshot, err := loadSnapshot()
	if err != nil {
		return fmt.Errorf("failed to load endpoints: %w", err)
	}
	registry := endpoints.NewRegistry()
	registry.Swap(snapshot)

	store, err := storage.Open(cfg.DataDir, logger)
	if err != nil {
		return fmt.Errorf("failed to open state store: %w", err)
	}
	defer func() { _ = store.Close() }()

	instance, err := store.Identity()
	if err != nil {
		return fmt.Errorf("failed to load instance identity: %w", err)
	}
	logger.Info("starting mxcp",
		zap.String("version", version),
		zap.String("project", cfg.Project),
		zap.String("profile", cfg.Profile),
		zap.String("instance", instance.ShortID()))

	tracing, err := observability.NewTracingManager(logger, observability.DefaultTracingConfig("mxcp", version))
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() { _ = tracing.Close(context.Background()) }()

	metrics := observability.NewMetricsManager(logger)
	defer metrics.Close()

	var auditLog *audit.Logger
	if prof.Audit.Enabled {
		auditLog, err = audit.NewLogger(audit.Config{
			Dir:           auditDir(cfg, prof),
			RetentionDays: prof.Audit.RetentionDays,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to open audit log: %w", err)
		}
		defer func() { _ = auditLog.Close() }()
	}

	jsRunner, err := runner.NewJSRunner(runner.DefaultJSPoolSize, jsConfig(cfg), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize host language runtime: %w", err)
	}
	defer jsRunner.Close()

	policyEngine, err := policy.NewEngine(logger)
	if err != nil {
		return fmt.Errorf("failed to initialize policy engine: %w", err)
	}

	var mcpSrv *server.Server
	hooks := reload.Hooks{
		ResolveSecrets: func(ctx context.Context) (map[string]string, error) {
			return resolver.ResolveMap(ctx, cfg.Secrets)
		},
		OpenSession: func(ctx context.Context, secrets map[string]string) (*sqlsession.Session, error) {
			return sqlsession.Open(ctx, sessionConfig, secrets, logger)
		},
		LoadEndpoints: loadSnapshot,
		RebuildRuntimes: func(context.Context) error {
			if mcpSrv != nil {
				mcpSrv.RefreshEndpoints()
			}
			return nil
		},
		OnComplete: func(reloadErr error) {
			event := storage.ReloadEvent{At: time.Now().UTC(), Status: "success", Trigger: "reload"}
			if reloadErr != nil {
				event.Status = "error"
				event.Error = reloadErr.Error()
			}
			if err := store.RecordReload(event); err != nil {
				logger.Warn("failed to record reload event", zap.Error(err))
			}
		},
	}
	reloader := reload.NewController(hooks, registry, session, reload.DefaultDrainTimeout, logger)
	defer func() { _ = reloader.Close() }()

	dispatcher := runner.NewDispatcher(runner.NewSQLRunner(logger), jsRunner)
	exec := executor.New(dispatcher, policyEngine, auditLog, reloader, cfg.Transport.Timeout, logger)

	mcpSrv = server.New(server.Options{
		Name:      "mxcp",
		Version:   version,
		Transport: cfg.Transport.Mode,
		Addr:      cfg.Transport.Addr,
		SQLTools:  cfg.SQLTools.Enabled,
	}, registry, reloader, exec, logger)

	adminLn, err := adminapi.Listen(adminapi.DefaultEndpoint(cfg.DataDir), logger)
	if err != nil {
		return fmt.Errorf("failed to open admin listener: %w", err)
	}
	info := adminapi.Info{
		Version:         version,
		Project:         cfg.Project,
		Profile:         cfg.Profile,
		ReadOnly:        prof.ReadOnly,
		SQLToolsEnabled: cfg.SQLTools.Enabled,
		StartedAt:       time.Now(),
		InstanceID:      instance.InstanceID,
	}
	if history, err := store.ReloadHistory(); err == nil && len(history) > 0 {
		info.LastReload = &history[len(history)-1]
	}
	adminSrv := adminapi.NewServer(info, registry, reloader, logger)
	go func() {
		if err := adminSrv.Serve(adminLn); err != nil {
			logger.Error("admin server stopped", zap.Error(err))
		}
	}()

	go watchReloadSignal(ctx, reloader, logger)

	serveErr := make(chan error, 1)
	go func() { serveErr <- mcpSrv.Start(ctx) }()

	select {
	case err = <-serveErr:
	case <-ctx.Done():
		logger.Info("shutting down")
		err = nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = mcpSrv.Shutdown(shutdownCtx)
	_ = adminSrv.Shutdown(shutdownCtx)
	return err
}

// watchReloadSignal triggers a hot reload on SIGHUP. Outcomes are
// persisted by the controller's OnComplete hook.
func watchReloadSignal(ctx context.Context, reloader *reload.Controller, logger *zap.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			logger.Info("reload requested via SIGHUP")
			if err := reloader.Reload(ctx); err != nil {
				logger.Error("reload failed", zap.Error(err))
			}
		}
	}
}

// jsConfig is the read-only configuration object exposed to host
// language endpoints.
func jsConfig(cfg *config.Config) map[string]interface{} {
	return map[string]interface{}{
		"project": cfg.Project,
		"profile": cfg.Profile,
	}
}

func auditDir(cfg *config.Config, prof config.Profile) string {
	if prof.Audit.Path != "" {
		return resolvePath(cfg.BaseDir, prof.Audit.Path)
	}
	return filepath.Join(cfg.DataDir, "audit")
}

func resolvePath(baseDir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}
