// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package relay provides the core chat relay service.
//
// This package contains the main Service type that coordinates all
// components of the service: HTTP routing, the LLM provider session,
// the file retrieval side-channel, and observability infrastructure.
//
// # Usage
//
//	cfg := relay.Config{Port: 8000}
//	svc, err := relay.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	svc.Run()
package relay

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/jinterlante1206/ChatRelay/services/llm"
	"github.com/jinterlante1206/ChatRelay/services/relay/files"
	"github.com/jinterlante1206/ChatRelay/services/relay/middleware"
	"github.com/jinterlante1206/ChatRelay/services/relay/observability"
	"github.com/jinterlante1206/ChatRelay/services/relay/routes"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service defines the contract for the relay service.
//
// # Description
//
// Service abstracts the relay lifecycle, enabling testing and alternative
// implementations. Only essential lifecycle methods are exposed.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Run() blocks and should
// only be called once per instance.
//
// # Limitations
//
//   - No graceful shutdown method yet
//   - Run() blocks until server error
//
// # Assumptions
//
//   - Service is fully initialized before Run() is called
type Service interface {
	// Run starts the HTTP server and blocks until shutdown or error.
	//
	// # Outputs
	//
	//   - error: Non-nil if the server fails to start or encounters a
	//     fatal error.
	Run() error

	// Router returns the underlying Gin engine for testing.
	//
	// # Outputs
	//
	//   - *gin.Engine: The configured router with all routes registered.
	//
	// # Assumptions
	//
	//   - Caller will not modify the router.
	Router() *gin.Engine
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds relay configuration options.
//
// # Description
//
// Config centralizes all configuration for the relay service. Values can
// be populated from environment variables, config files, or
// programmatically for testing.
//
// # Examples
//
//	// Minimal config (uses all defaults)
//	cfg := Config{}
//
//	// Custom port and backend
//	cfg := Config{Port: 9000, LLMBackend: "ollama"}
type Config struct {
	// Host is the bind address. Default: 127.0.0.1
	Host string

	// Port is the HTTP server port. Default: 8000
	Port int

	// LLMBackend specifies the LLM provider.
	// Valid values: "openai", "ollama". Default: "openai"
	LLMBackend string

	// FilesRoot is the directory served by the file retrieval
	// side-channel. If empty, file retrieval is disabled.
	FilesRoot string

	// GinMode sets the Gin framework mode.
	// Valid values: "debug", "release", "test"
	// Default: uses GIN_MODE env var or "debug"
	GinMode string

	// DisableMetrics skips Prometheus metric registration. The zero
	// value keeps metrics on. Registration is process-global, so a
	// second service in the same process must disable it.
	DisableMetrics bool
}

// =============================================================================
// Implementation
// =============================================================================

// service implements Service for production use.
//
// # Description
//
// service coordinates:
//   - HTTP routing via Gin
//   - Lazy LLM provider session management
//   - File intent detection and root-confined reads
//   - Prometheus metrics
//
// # Fields
//
//   - config: Service configuration
//   - router: Gin HTTP engine
//   - sessions: Lazy provider session source
//   - guard: Root-confined file reader (may be nil)
//
// # Thread Safety
//
// Thread-safe after construction. All fields are read-only after New()
// returns.
type service struct {
	config   Config
	router   *gin.Engine
	sessions llm.SessionSource
	guard    *files.Guard
}

// =============================================================================
// Constructor
// =============================================================================

// New creates a new relay Service with the given configuration.
//
// # Description
//
// New initializes all relay components:
//  1. Applies default configuration for missing values
//  2. Initializes Prometheus metrics
//  3. Creates the file guard if a files root is configured
//  4. Creates the lazy provider session source
//  5. Sets up HTTP routes
//
// Provider client construction is deferred: the first chat request pays
// the initialization cost, and a failed initialization is retried on a
// later request. A missing OPENAI_API_KEY therefore does not prevent
// startup; it is warned about here and surfaces as an in-stream error.
//
// # Inputs
//
//   - cfg: Service configuration. Zero values use defaults.
//
// # Outputs
//
//   - Service: Ready-to-run relay service
//   - error: Non-nil if initialization fails
//
// # Examples
//
//	cfg := Config{Port: 8000, LLMBackend: "openai"}
//	svc, err := New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(svc.Run())
//
// # Limitations
//
//   - A configured FilesRoot that does not exist is a fatal error
//
// # Assumptions
//
//   - Environment variables are set for the chosen provider
func New(cfg Config) (Service, error) {
	s := &service{
		config: applyConfigDefaults(cfg),
	}

	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}

	// Initialize Prometheus metrics
	if !s.config.DisableMetrics {
		observability.InitMetrics()
		slog.Info("Initialized Prometheus metrics for streaming")
	}

	// Initialize file guard (optional)
	if s.config.FilesRoot != "" {
		guard, err := files.NewGuard(s.config.FilesRoot)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize files root: %w", err)
		}
		s.guard = guard
		slog.Info("File retrieval enabled", "root", s.config.FilesRoot)
	} else {
		slog.Info("Files root not configured, file retrieval disabled")
	}

	// Warn early about a missing key; the provider client is built lazily
	// so this is not fatal.
	if s.config.LLMBackend == "openai" && os.Getenv("OPENAI_API_KEY") == "" {
		slog.Warn("OPENAI_API_KEY is not set; chat requests will fail until it is provided")
	}

	// Lazy provider session: constructed on first use, shared afterwards
	s.sessions = llm.NewLazySessionSource(llm.NewClientFromEnv)

	// Setup HTTP router
	s.initRouter()

	return s, nil
}

// =============================================================================
// Service Interface Methods
// =============================================================================

// Run starts the HTTP server and blocks until shutdown or error.
func (s *service) Run() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	slog.Info("Starting relay server", "addr", addr, "llm_backend", s.config.LLMBackend)

	return s.router.Run(addr)
}

// Router returns the underlying Gin engine for testing.
func (s *service) Router() *gin.Engine {
	return s.router
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// applyConfigDefaults fills in missing configuration values.
func applyConfigDefaults(cfg Config) Config {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8000
	}
	if cfg.LLMBackend == "" {
		cfg.LLMBackend = "openai"
	}

	return cfg
}

// initRouter sets up the Gin HTTP router with all routes.
func (s *service) initRouter() {
	s.router = gin.Default()
	s.router.Use(middleware.CORS())

	routes.SetupRoutes(s.router, s.sessions, files.NewIntentDetector(), s.guard, s.config.LLMBackend)
}

// =============================================================================
// Compile-time Interface Compliance
// =============================================================================

var _ Service = (*service)(nil)
