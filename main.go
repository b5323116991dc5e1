// Materials Database MCP Server - A Model Context Protocol server for materials databases
// Fetches crystal structures from Bohrium, MOFdb, OpenLAM and the OPTIMADE federation
// and saves them as CIF or JSON files.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/olgasafonova/materials-db-mcp-server/internal/base"
	"github.com/olgasafonova/materials-db-mcp-server/internal/bohrium"
	"github.com/olgasafonova/materials-db-mcp-server/internal/config"
	"github.com/olgasafonova/materials-db-mcp-server/internal/mofdb"
	"github.com/olgasafonova/materials-db-mcp-server/internal/openlam"
	"github.com/olgasafonova/materials-db-mcp-server/internal/optimade"
	"github.com/olgasafonova/materials-db-mcp-server/tools"
	"github.com/olgasafonova/materials-db-mcp-server/tracing"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

const (
	ServerName    = "materials-db-mcp-server"
	ServerVersion = "1.0.0"
)

const serverInstructions = `Materials Database MCP Server fetches crystal structures and saves them to disk.

Available tools:
- fetch_bohrium_crystals: Bohrium public crystal database (formula, elements, space group, ranges)
- fetch_mofs: MOFdb metal-organic frameworks (identity, pore geometry, surface area)
- fetch_openlam_structures: OpenLAM computed structures (formula, energy, submission time)
- fetch_structures_with_filter: Raw OPTIMADE filter across all providers
- fetch_structures_with_spg: OPTIMADE space group search with provider-specific fields
- fetch_structures_with_bandgap: OPTIMADE band gap range with provider-specific fields

Every call writes a request folder with the structure files and a summary.json manifest,
and returns the folder path with cleaned metadata.`

// options holds the command line flags.
type options struct {
	configPath string
	envFile    string
	host       string
	port       int
	transport  string
	logLevel   string
	databases  string
	outputRoot string
}

// recoverPanic logs a panic instead of crashing the process
func recoverPanic(logger *slog.Logger, operation string) {
	if r := recover(); r != nil {
		logger.Error("Panic recovered",
			"operation", operation,
			"panic", r,
			"stack", string(debug.Stack()))
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:          ServerName,
		Short:        "MCP server for materials structure databases",
		Version:      ServerVersion,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.configPath, "config", "", "Path to a YAML config file")
	flags.StringVar(&opts.envFile, "env-file", ".env", "Path to a .env file")
	flags.StringVar(&opts.host, "host", "0.0.0.0", "Host for the HTTP transport")
	flags.IntVar(&opts.port, "port", 50001, "Port for the HTTP transport")
	flags.StringVar(&opts.transport, "transport", "stdio", "Transport: stdio or http")
	flags.StringVar(&opts.logLevel, "log-level", "INFO", "Log level: DEBUG, INFO, WARNING, ERROR")
	flags.StringVar(&opts.databases, "databases", strings.Join(config.AllDatabases, ","), "Comma separated databases to enable")
	flags.StringVar(&opts.outputRoot, "output-root", "", "Directory that database output folders are created under")

	return cmd
}

// loadConfig merges file, environment and flag settings. Flags win when set.
func loadConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath, opts.envFile)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Server.Host = opts.host
	}
	if flags.Changed("port") {
		cfg.Server.Port = opts.port
	}
	if flags.Changed("transport") {
		cfg.Server.Transport = opts.transport
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = opts.logLevel
	}
	if flags.Changed("databases") {
		cfg.SetDatabases(opts.databases)
	}
	if flags.Changed("output-root") {
		cfg.OutputRoot = opts.outputRoot
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func run(ctx context.Context, cfg *config.Config) error {
	level, _ := config.ParseLevel(cfg.Logging.Level)
	// Logs go to stderr; stdout carries the MCP stdio protocol
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	defer recoverPanic(logger, "run")

	shutdownTracing, err := tracing.Setup(ctx, tracing.DefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("Tracing shutdown failed", "error", err)
		}
	}()

	clients := buildClients(cfg, logger)
	defer closeClients(clients)

	server := mcp.NewServer(&mcp.Implementation{
		Name:    ServerName,
		Version: ServerVersion,
	}, &mcp.ServerOptions{
		Logger:       logger,
		Instructions: serverInstructions,
	})

	count := tools.NewHandlerRegistry(clients, logger).RegisterAll(server)
	logger.Info("Starting Materials Database MCP Server",
		"name", ServerName,
		"version", ServerVersion,
		"transport", cfg.Server.Transport,
		"databases", cfg.Databases,
		"tools", count,
	)

	if cfg.Server.Transport == "http" {
		return serveHTTP(ctx, cfg, server, logger)
	}
	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// buildClients creates a client for every enabled database.
func buildClients(cfg *config.Config, logger *slog.Logger) tools.Clients {
	var clients tools.Clients

	if cfg.Enabled(config.Bohrium) {
		clients.Bohrium = bohrium.NewClient(bohrium.Config{
			BaseURL:   cfg.Bohrium.BaseURL,
			UserID:    cfg.Bohrium.UserID,
			OutputDir: cfg.OutputDir(cfg.Bohrium.OutputDir),
		},
			base.WithLogger(logger),
			base.WithTimeout(config.Duration(cfg.Bohrium.Timeout, base.DefaultTimeout)),
		)
	}
	if cfg.Enabled(config.MOFdb) {
		clients.MOFdb = mofdb.NewClient(mofdb.Config{
			BaseURL:   cfg.MOFdb.BaseURL,
			OutputDir: cfg.OutputDir(cfg.MOFdb.OutputDir),
		},
			base.WithLogger(logger),
			base.WithTimeout(config.Duration(cfg.MOFdb.Timeout, base.DefaultTimeout)),
		)
	}
	if cfg.Enabled(config.OpenLAM) {
		if cfg.OpenLAM.AccessKey == "" {
			logger.Warn("No OpenLAM access key configured; set OPENLAM_ACCESS_KEY or BOHRIUM_ACCESS_KEY")
		}
		clients.OpenLAM = openlam.NewClient(openlam.Config{
			QueryURL:  cfg.OpenLAM.QueryURL,
			AccessKey: cfg.OpenLAM.AccessKey,
			OutputDir: cfg.OutputDir(cfg.OpenLAM.OutputDir),
		},
			base.WithLogger(logger),
			base.WithTimeout(config.Duration(cfg.OpenLAM.Timeout, base.DefaultTimeout)),
		)
	}
	if cfg.Enabled(config.Optimade) {
		clients.Optimade = optimade.NewClient(optimade.Config{
			OutputDir:      cfg.OutputDir(cfg.Optimade.OutputDir),
			MaxConcurrency: cfg.Optimade.MaxConcurrency,
			Providers:      cfg.Optimade.Providers,
		},
			base.WithLogger(logger),
			base.WithTimeout(config.Duration(cfg.Optimade.Timeout, optimade.DefaultTimeout)),
		)
	}
	return clients
}

func closeClients(c tools.Clients) {
	if c.Bohrium != nil {
		c.Bohrium.Close()
	}
	if c.MOFdb != nil {
		c.MOFdb.Close()
	}
	if c.OpenLAM != nil {
		c.OpenLAM.Close()
	}
	if c.Optimade != nil {
		c.Optimade.Close()
	}
}

// newHTTPHandler serves MCP at /mcp next to /health and /metrics.
func newHTTPHandler(server *mcp.Server) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/mcp", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return server
	}, nil))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"status":"ok","name":%q,"version":%q}`, ServerName, ServerVersion)
	})
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func serveHTTP(ctx context.Context, cfg *config.Config, server *mcp.Server, logger *slog.Logger) error {
	handler := NewSecurityMiddleware(newHTTPHandler(server), logger, SecurityConfig{
		RateLimit:   cfg.Server.RateLimit,
		MaxBodySize: cfg.Server.MaxBodySize,
	})
	defer handler.Close()

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Listening", "addr", addr, "endpoint", "/mcp")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server error: %w", err)
	case <-ctx.Done():
		logger.Info("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
