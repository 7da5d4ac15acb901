// Package mcp provides an MCP (Model Context Protocol) server for crowdsim.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/crowdsim/internal/backup"
	"github.com/nvandessel/crowdsim/internal/config"
	"github.com/nvandessel/crowdsim/internal/constants"
	"github.com/nvandessel/crowdsim/internal/ratelimit"
	"github.com/nvandessel/crowdsim/internal/store"
)

// Server wraps the MCP SDK server with the crowdsim store and tools.
type Server struct {
	server          *sdk.Server
	store           store.Store
	root            string
	cfg             *config.CrowdsimConfig
	logger          *slog.Logger
	toolLimiters    ratelimit.ToolLimiters
	auditLogger     *AuditLogger
	retentionPolicy backup.RetentionPolicy
}

// Config holds server configuration.
type Config struct {
	Name    string // Server name (e.g., "crowdsim")
	Version string // Server version
	Root    string // Project root directory

	// Settings are the simulation defaults tools start from. Nil loads
	// them with config.Load.
	Settings *config.CrowdsimConfig

	// Logger receives operational logs. Nil logs to stderr at the
	// configured level.
	Logger *slog.Logger
}

// NewServer creates a new MCP server with crowdsim tools. Runs are stored
// in the database the settings resolve to under cfg.Root.
func NewServer(cfg *Config) (*Server, error) {
	settings := cfg.Settings
	if settings == nil {
		loaded, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		settings = loaded
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	runStore, err := store.NewSQLiteStore(settings.DatabasePath(cfg.Root))
	if err != nil {
		return nil, fmt.Errorf("failed to open run store: %w", err)
	}

	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)

	s := &Server{
		server:          mcpServer,
		store:           runStore,
		root:            cfg.Root,
		cfg:             settings,
		logger:          logger,
		toolLimiters:    ratelimit.NewToolLimiters(),
		auditLogger:     NewAuditLogger(cfg.Root),
		retentionPolicy: &backup.CountPolicy{MaxCount: constants.DefaultBackupRetention},
	}

	if err := s.registerTools(); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}
	if err := s.registerResources(); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to register resources: %w", err)
	}

	return s, nil
}

// Run serves over stdio until the client disconnects, ctx is cancelled or
// the process is signalled. It closes the server on return.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	notifySignals(sigChan)
	go func() {
		select {
		case <-sigChan:
			s.logger.Info("received signal, shutting down")
			cancel()
		case <-ctx.Done():
		}
	}()

	err := s.server.Run(ctx, &sdk.StdioTransport{})

	if cerr := s.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// Close releases the store and the audit log.
func (s *Server) Close() error {
	err := s.store.Close()
	if aerr := s.auditLogger.Close(); aerr != nil && err == nil {
		err = aerr
	}
	return err
}
