package tools

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/olgasafonova/materials-db-mcp-server/internal/bohrium"
	"github.com/olgasafonova/materials-db-mcp-server/internal/mofdb"
	"github.com/olgasafonova/materials-db-mcp-server/internal/openlam"
	"github.com/olgasafonova/materials-db-mcp-server/internal/optimade"
	"github.com/olgasafonova/materials-db-mcp-server/internal/output"
	"github.com/olgasafonova/materials-db-mcp-server/internal/pricing"
	"github.com/olgasafonova/materials-db-mcp-server/metrics"
	"github.com/olgasafonova/materials-db-mcp-server/tracing"
	"go.opentelemetry.io/otel/attribute"
)

// Clients holds one client per database adapter. A nil client disables
// the tools of that database.
type Clients struct {
	Bohrium  *bohrium.Client
	MOFdb    *mofdb.Client
	OpenLAM  *openlam.Client
	Optimade *optimade.Client
}

// HandlerRegistry provides type-safe tool registration by mapping
// tool names to their concrete handler implementations.
type HandlerRegistry struct {
	bohriumClient  *bohrium.Client
	mofdbClient    *mofdb.Client
	openlamClient  *openlam.Client
	optimadeClient *optimade.Client
	logger         *slog.Logger
}

// NewHandlerRegistry creates a new handler registry.
func NewHandlerRegistry(clients Clients, logger *slog.Logger) *HandlerRegistry {
	return &HandlerRegistry{
		bohriumClient:  clients.Bohrium,
		mofdbClient:    clients.MOFdb,
		openlamClient:  clients.OpenLAM,
		optimadeClient: clients.Optimade,
		logger:         logger,
	}
}

// RegisterAll registers the tools of every enabled database with the MCP server.
func (h *HandlerRegistry) RegisterAll(server *mcp.Server) int {
	count := 0
	for _, spec := range AllTools {
		if !h.enabled(spec.Database) {
			h.logger.Debug("Database disabled, tool skipped", "tool", spec.Name, "database", spec.Database)
			continue
		}
		if h.registerByName(server, spec) {
			count++
		}
	}
	h.logger.Info("Registered tools", "count", count, "available", len(AllTools))
	return count
}

// enabled reports whether the client for db was configured.
func (h *HandlerRegistry) enabled(db string) bool {
	switch db {
	case "bohrium":
		return h.bohriumClient != nil
	case "mofdb":
		return h.mofdbClient != nil
	case "openlam":
		return h.openlamClient != nil
	case "optimade":
		return h.optimadeClient != nil
	}
	return false
}

// registerByName dispatches to the correct typed registration function.
func (h *HandlerRegistry) registerByName(server *mcp.Server, spec ToolSpec) bool {
	tool := h.buildTool(spec)

	switch spec.Method {
	case "FetchCrystals":
		return h.register(server, tool, spec, h.bohriumClient.FetchCrystalsMCP)
	case "FetchMOFs":
		return h.register(server, tool, spec, h.mofdbClient.FetchMOFsMCP)
	case "FetchStructures":
		return h.register(server, tool, spec, h.openlamClient.FetchStructuresMCP)

	// OPTIMADE federation
	case "FetchWithFilter":
		return h.register(server, tool, spec, h.optimadeClient.FetchWithFilterMCP)
	case "FetchWithSPG":
		return h.register(server, tool, spec, h.optimadeClient.FetchWithSPGMCP)
	case "FetchWithBandGap":
		return h.register(server, tool, spec, h.optimadeClient.FetchWithBandGapMCP)

	default:
		h.logger.Error("Unknown method, tool not registered", "method", spec.Method, "tool", spec.Name)
		return false
	}
}

// buildTool creates an mcp.Tool from a ToolSpec.
func (h *HandlerRegistry) buildTool(spec ToolSpec) *mcp.Tool {
	annotations := &mcp.ToolAnnotations{
		Title:          spec.Title,
		ReadOnlyHint:   spec.ReadOnly,
		IdempotentHint: spec.Idempotent,
	}
	if spec.Destructive {
		annotations.DestructiveHint = ptr(true)
	}
	if spec.OpenWorld {
		annotations.OpenWorldHint = ptr(true)
	}

	return &mcp.Tool{
		Name:        spec.Name,
		Description: spec.Description,
		Annotations: annotations,
	}
}

// register is a generic helper that registers a tool with the MCP server.
// It wraps the client method with panic recovery, pricing, metrics, tracing, and logging.
func register[Args, Result any](
	h *HandlerRegistry,
	server *mcp.Server,
	tool *mcp.Tool,
	spec ToolSpec,
	method func(context.Context, Args) (Result, error),
) {
	mcp.AddTool(server, tool, func(ctx context.Context, req *mcp.CallToolRequest, args Args) (*mcp.CallToolResult, Result, error) {
		defer h.recoverPanic(spec.Name)

		ctx, span := tracing.StartSpan(ctx, "mcp.tool."+spec.Name)
		defer span.End()

		span.SetAttributes(tracing.ToolAttributes(spec.Name, spec.Category, spec.Database)...)
		tracing.AddQueryAttributes(span, requestedResults(args), requestedFormats(args))

		metrics.RequestInFlight.WithLabelValues(spec.Name).Inc()
		defer metrics.RequestInFlight.WithLabelValues(spec.Name).Dec()

		h.quote(spec, args)

		start := time.Now()
		result, err := method(ctx, args)
		duration := time.Since(start).Seconds()

		span.SetAttributes(attribute.Float64("mcp.tool.duration_seconds", duration))

		if err != nil {
			tracing.RecordError(span, err)
			metrics.RecordRequest(spec.Name, duration, false)
			var zero Result
			return nil, zero, fmt.Errorf("%s failed: %w", spec.Name, err)
		}

		if r, ok := any(result).(output.FetchResult); ok {
			tracing.AddResultAttributes(span, r.NFound, r.Code, r.OutputDir)
		}
		metrics.RecordRequest(spec.Name, duration, true)
		h.logExecution(spec, args, result)
		return nil, result, nil
	})
}

// quote logs the estimated cost of a call and adds it to the photon counter.
func (h *HandlerRegistry) quote(spec ToolSpec, args any) {
	q, err := pricing.Estimate(spec.Name, requestedResults(args))
	if err != nil {
		h.logger.Debug("No price for tool", "tool", spec.Name, "error", err)
		return
	}
	metrics.PhotonsEstimated.WithLabelValues(spec.Name).Add(float64(q.Photons))
	h.logger.Debug("Estimated cost",
		"tool", spec.Name,
		"n_results", q.NResults,
		"rmb", q.RMB,
		"photons", q.Photons)
}

// requestedResults returns n_results with the tool's default applied.
func requestedResults(args any) int {
	n, def := 0, 0
	switch a := args.(type) {
	case bohrium.FetchCrystalsArgs:
		n, def = a.NResults, bohrium.DefaultNResults
	case mofdb.FetchMOFsArgs:
		n, def = a.NResults, mofdb.DefaultNResults
	case openlam.FetchStructuresArgs:
		n, def = a.NResults, openlam.DefaultNResults
	case optimade.FetchFilterArgs:
		n, def = a.NResults, optimade.DefaultFilterResults
	case optimade.FetchSPGArgs:
		n, def = a.NResults, optimade.DefaultSPGResults
	case optimade.FetchBandGapArgs:
		n, def = a.NResults, optimade.DefaultBandGapResults
	}
	if n <= 0 {
		return def
	}
	return n
}

// requestedFormats returns the file formats a call asked for, defaulting to CIF.
func requestedFormats(args any) []string {
	var formats []string
	switch a := args.(type) {
	case bohrium.FetchCrystalsArgs:
		formats = a.OutputFormats
	case mofdb.FetchMOFsArgs:
		formats = a.OutputFormats
	case openlam.FetchStructuresArgs:
		formats = a.OutputFormats
	case optimade.FetchFilterArgs:
		formats = single(a.AsFormat)
	case optimade.FetchSPGArgs:
		formats = single(a.AsFormat)
	case optimade.FetchBandGapArgs:
		formats = single(a.AsFormat)
	default:
		return nil
	}
	if len(formats) == 0 {
		return []string{string(output.FormatCIF)}
	}
	return formats
}

func single(format string) []string {
	if format == "" {
		return nil
	}
	return []string{format}
}

// recoverPanic recovers from panics in tool handlers.
func (h *HandlerRegistry) recoverPanic(toolName string) {
	if rec := recover(); rec != nil {
		metrics.PanicsRecovered.WithLabelValues(toolName).Inc()
		h.logger.Error("Panic recovered",
			"tool", toolName,
			"panic", rec,
			"stack", string(debug.Stack()))
	}
}

// logExecution logs tool execution details.
func (h *HandlerRegistry) logExecution(spec ToolSpec, args, result any) {
	attrs := []any{"tool", spec.Name, "database", spec.Database}

	switch a := args.(type) {
	case bohrium.FetchCrystalsArgs:
		attrs = append(attrs, "formula", a.Formula, "elements", a.Elements)
		if a.SpacegroupNumber != 0 {
			attrs = append(attrs, "spacegroup_number", a.SpacegroupNumber)
		}
	case mofdb.FetchMOFsArgs:
		attrs = append(attrs, "name", a.Name, "source_db", a.SourceDB)
	case openlam.FetchStructuresArgs:
		attrs = append(attrs, "formula", a.Formula)
	case optimade.FetchFilterArgs:
		attrs = append(attrs, "filter", a.Filter, "quota_mode", a.QuotaMode)
	case optimade.FetchSPGArgs:
		attrs = append(attrs, "spg_number", a.SPGNumber, "base_filter", a.BaseFilter)
	case optimade.FetchBandGapArgs:
		attrs = append(attrs, "base_filter", a.BaseFilter)
		if a.MinBG != nil {
			attrs = append(attrs, "min_bg", *a.MinBG)
		}
		if a.MaxBG != nil {
			attrs = append(attrs, "max_bg", *a.MaxBG)
		}
	}

	if r, ok := result.(output.FetchResult); ok {
		attrs = append(attrs, "n_found", r.NFound, "code", r.Code, "output_dir", r.OutputDir)
	}

	h.logger.Info("Tool executed", attrs...)
}

// Convenience function to call the generic register with method receiver
func (h *HandlerRegistry) register(server *mcp.Server, tool *mcp.Tool, spec ToolSpec, method any) bool {
	switch m := method.(type) {
	case func(context.Context, bohrium.FetchCrystalsArgs) (bohrium.FetchCrystalsResult, error):
		register(h, server, tool, spec, m)
	case func(context.Context, mofdb.FetchMOFsArgs) (mofdb.FetchMOFsResult, error):
		register(h, server, tool, spec, m)
	case func(context.Context, openlam.FetchStructuresArgs) (openlam.FetchStructuresResult, error):
		register(h, server, tool, spec, m)

	// OPTIMADE federation
	case func(context.Context, optimade.FetchFilterArgs) (optimade.FetchResult, error):
		register(h, server, tool, spec, m)
	case func(context.Context, optimade.FetchSPGArgs) (optimade.FetchResult, error):
		register(h, server, tool, spec, m)
	case func(context.Context, optimade.FetchBandGapArgs) (optimade.FetchResult, error):
		register(h, server, tool, spec, m)

	default:
		h.logger.Error("Unknown method type, tool not registered", "tool", spec.Name)
		return false
	}
	return true
}
