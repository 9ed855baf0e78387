package adminapi

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mxcp-labs/mxcp-go/internal/endpoints"
	"github.com/mxcp-labs/mxcp-go/internal/reload"
	"github.com/mxcp-labs/mxcp-go/internal/storage"
)

// Info is the static server identity reported by the admin surface.
type Info struct {
	Version         string
	Project         string
	Profile         string
	ReadOnly        bool
	SQLToolsEnabled bool
	StartedAt       time.Time

	// InstanceID is the stable identity persisted in the state store; it
	// survives restarts.
	InstanceID string

	// LastReload is the most recent persisted reload event, if any.
	LastReload *storage.ReloadEvent
}

// Server is the local-only REST surface: health, status, reload, and
// configuration metadata. It is reachable only over the owner-gated
// listener, so no authentication layer sits in front of it.
type Server struct {
	info     Info
	registry *endpoints.Registry
	reloader *reload.Controller
	logger   *zap.Logger
	httpSrv  *http.Server
}

// NewServer wires the admin routes.
func NewServer(info Info, registry *endpoints.Registry, reloader *reload.Controller, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		info:     info,
		registry: registry,
		reloader: reloader,
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Post("/reload", s.handleReload)
	r.Get("/config", s.handleConfig)
	r.Get("/endpoints", s.handleEndpoints)
	r.Handle("/metrics", promhttp.Handler())

	s.httpSrv = &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Serve runs the HTTP server on the given listener until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	err := s.httpSrv.Serve(ln)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the admin server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

type errorEnvelope struct {
	ErrorCode string      `json:"error_code"`
	Message   string      `json:"message"`
	Detail    interface{} `json:"detail,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("admin response encoding failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, message string) {
	s.writeJSON(w, status, errorEnvelope{ErrorCode: code, Message: message})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	mode := "readwrite"
	if s.info.ReadOnly {
		mode = "readonly"
	}
	tools, resources, prompts := s.registry.Current().Counts()

	payload := map[string]interface{}{
		"version":     s.info.Version,
		"instance_id": s.info.InstanceID,
		"project":     s.info.Project,
		"uptime":      time.Since(s.info.StartedAt).Round(time.Second).String(),
		"pid":         os.Getpid(),
		"profile":     s.info.Profile,
		"mode":        mode,
		"endpoints": map[string]int{
			"tools":     tools,
			"resources": resources,
			"prompts":   prompts,
		},
		"reload": s.reloader.State(),
	}
	if s.info.LastReload != nil {
		payload["last_persisted_reload"] = s.info.LastReload
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if s.reloader.State().InProgress {
		s.writeError(w, http.StatusInternalServerError, "reload_in_progress",
			"a reload is already in progress")
		return
	}

	requestID := uuid.NewString()
	s.logger.Info("reload requested via admin surface",
		zap.String("reload_request_id", requestID))

	go func() {
		if err := s.reloader.Reload(context.WithoutCancel(r.Context())); err != nil {
			s.logger.Error("reload failed",
				zap.String("reload_request_id", requestID), zap.Error(err))
		}
	}()

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":            "reload_initiated",
		"reload_request_id": requestID,
	})
}

// handleConfig reports configuration metadata. Secret material never
// appears here.
func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	tools, resources, prompts := s.registry.Current().Counts()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"project": s.info.Project,
		"profile": s.info.Profile,
		"endpoints": map[string]int{
			"tools":     tools,
			"resources": resources,
			"prompts":   prompts,
		},
		"features": map[string]bool{
			"readonly":  s.info.ReadOnly,
			"sql_tools": s.info.SQLToolsEnabled,
		},
	})
}

type endpointSummary struct {
	ID          string   `json:"id"`
	Kind        string   `json:"kind"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Enabled     bool     `json:"enabled"`
	Tags        []string `json:"tags,omitempty"`
	URI         string   `json:"uri,omitempty"`
}

func (s *Server) handleEndpoints(w http.ResponseWriter, _ *http.Request) {
	snapshot := s.registry.Current()
	summaries := make([]endpointSummary, 0, len(snapshot.Endpoints))
	for _, ep := range snapshot.Endpoints {
		summaries = append(summaries, endpointSummary{
			ID:          ep.ID,
			Kind:        string(ep.Kind),
			Name:        ep.Name,
			Description: ep.Description,
			Enabled:     ep.Enabled,
			Tags:        ep.Tags,
			URI:         ep.URITemplate,
		})
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].ID < summaries[j].ID })

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"endpoints":   summaries,
		"schema_hash": snapshot.SchemaHash,
		"load_time":   snapshot.LoadTime,
	})
}
