// Package tracing provides OpenTelemetry tracing for the materials database MCP server.
//
// A tool call is one span carrying the requested result count and file
// formats, and closing with n_found, the result code and the request folder.
// Upstream HTTP requests and OPTIMADE provider queries are child spans.
package tracing

import (
	"context"
	"os"
	"strings"

	"github.com/spf13/cast"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
	"go.opentelemetry.io/otel/trace"
)

const TracerName = "materials-db-mcp-server"

// Span attribute keys
const (
	KeyTool        = attribute.Key("mcp.tool.name")
	KeyCategory    = attribute.Key("mcp.tool.category")
	KeyDatabase    = attribute.Key("materials.database")
	KeyAction      = attribute.Key("materials.api.action")
	KeyHTTPStatus  = attribute.Key("http.response.status_code")
	KeyNResults    = attribute.Key("materials.n_results")
	KeyFormats     = attribute.Key("materials.formats")
	KeyNFound      = attribute.Key("materials.n_found")
	KeyResultCode  = attribute.Key("materials.result_code")
	KeyOutputDir   = attribute.Key("materials.output_dir")
	KeyProvider    = attribute.Key("optimade.provider")
	KeyProviderURL = attribute.Key("optimade.provider_url")
	KeyReturned    = attribute.Key("optimade.returned")
	KeyFilter      = attribute.Key("optimade.filter")
)

// maxFilterLen keeps long OPTIMADE filters from bloating spans
const maxFilterLen = 256

// Config holds tracing configuration
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	Enabled        bool
	OTLPEndpoint   string // OTLP over HTTP when set, otherwise pretty JSON on stderr
	SampleRate     float64
}

// DefaultConfig reads the OTEL_* environment. OTEL_TRACES_SAMPLER_ARG sets
// the sample ratio; anything unparsable samples everything.
func DefaultConfig() Config {
	rate := 1.0
	if v := os.Getenv("OTEL_TRACES_SAMPLER_ARG"); v != "" {
		if f, err := cast.ToFloat64E(v); err == nil {
			rate = f
		}
	}
	return Config{
		ServiceName:    TracerName,
		ServiceVersion: "1.0.0",
		Environment:    getEnvOrDefault("OTEL_ENVIRONMENT", "development"),
		Enabled:        cast.ToBool(os.Getenv("OTEL_ENABLED")) || os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "",
		OTLPEndpoint:   os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		SampleRate:     rate,
	}
}

// Setup installs the global tracer provider and returns its shutdown
// function. When tracing is disabled the shutdown is a no-op.
func Setup(ctx context.Context, config Config) (func(context.Context) error, error) {
	if !config.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
			attribute.String("environment", config.Environment),
		),
	)
	if err != nil {
		return nil, err
	}

	exporter, err := newExporter(ctx, config.OTLPEndpoint)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(newSampler(config.SampleRate)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp.Shutdown, nil
}

// newExporter writes to stderr because stdout carries the stdio transport.
func newExporter(ctx context.Context, endpoint string) (sdktrace.SpanExporter, error) {
	if endpoint != "" {
		return otlptracehttp.New(ctx,
			otlptracehttp.WithEndpoint(endpoint),
			otlptracehttp.WithInsecure(),
		)
	}
	return stdouttrace.New(stdouttrace.WithWriter(os.Stderr), stdouttrace.WithPrettyPrint())
}

func newSampler(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1:
		return sdktrace.AlwaysSample()
	case rate <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
	}
}

// Tracer returns the named tracer for the server
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// StartSpan starts a new span with the given name and returns the context and span
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// ToolAttributes identifies a tool and the database behind it.
func ToolAttributes(tool, category, database string) []attribute.KeyValue {
	return []attribute.KeyValue{
		KeyTool.String(tool),
		KeyCategory.String(category),
		KeyDatabase.String(database),
	}
}

// AddQueryAttributes records what a tool call asked for.
func AddQueryAttributes(span trace.Span, nResults int, formats []string) {
	span.SetAttributes(KeyNResults.Int(nResults))
	if len(formats) > 0 {
		span.SetAttributes(KeyFormats.StringSlice(formats))
	}
}

// AddResultAttributes records what a tool call returned. A non-zero code is
// a zero-result stub from a failed upstream and marks the span as an error.
func AddResultAttributes(span trace.Span, nFound, code int, outputDir string) {
	span.SetAttributes(KeyNFound.Int(nFound), KeyResultCode.Int(code))
	if outputDir != "" {
		span.SetAttributes(KeyOutputDir.String(outputDir))
	}
	if code != 0 {
		span.SetStatus(codes.Error, "upstream returned no results")
	}
}

// AddUpstreamAttributes tags an upstream HTTP span. status is 0 when no
// response arrived.
func AddUpstreamAttributes(span trace.Span, database, action string, status int) {
	span.SetAttributes(KeyDatabase.String(database))
	if action != "" {
		span.SetAttributes(KeyAction.String(action))
	}
	if status > 0 {
		span.SetAttributes(KeyHTTPStatus.Int(status))
	}
}

// AddProviderAttributes tags one OPTIMADE base URL query.
func AddProviderAttributes(span trace.Span, provider, providerURL, filter string, returned int) {
	if len(filter) > maxFilterLen {
		filter = filter[:maxFilterLen] + "..."
	}
	span.SetAttributes(
		KeyProvider.String(provider),
		KeyProviderURL.String(strings.TrimRight(providerURL, "/")),
		KeyFilter.String(filter),
		KeyReturned.Int(returned),
	)
}

// RecordError records err on the span and marks it failed.
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
