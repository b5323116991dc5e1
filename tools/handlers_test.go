package tools

import (
	"encoding/json"
	"io"
	"log/slog"
	"slices"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/olgasafonova/materials-db-mcp-server/internal/base"
	"github.com/olgasafonova/materials-db-mcp-server/internal/bohrium"
	"github.com/olgasafonova/materials-db-mcp-server/internal/mofdb"
	"github.com/olgasafonova/materials-db-mcp-server/internal/openlam"
	"github.com/olgasafonova/materials-db-mcp-server/internal/optimade"
	"github.com/olgasafonova/materials-db-mcp-server/internal/output"
	"github.com/olgasafonova/materials-db-mcp-server/metrics"
	dto "github.com/prometheus/client_model/go"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testClients(t *testing.T, logger *slog.Logger) Clients {
	t.Helper()
	dir := t.TempDir()
	clients := Clients{
		Bohrium:  bohrium.NewClient(bohrium.Config{OutputDir: dir}, base.WithLogger(logger)),
		MOFdb:    mofdb.NewClient(mofdb.Config{OutputDir: dir}, base.WithLogger(logger)),
		OpenLAM:  openlam.NewClient(openlam.Config{OutputDir: dir}, base.WithLogger(logger)),
		Optimade: optimade.NewClient(optimade.Config{OutputDir: dir}, base.WithLogger(logger)),
	}
	t.Cleanup(func() {
		clients.Bohrium.Close()
		clients.MOFdb.Close()
		clients.OpenLAM.Close()
		clients.Optimade.Close()
	})
	return clients
}

// connect serves the registry over in-memory transports and returns a client session.
func connect(t *testing.T, registry *HandlerRegistry) (*mcp.ClientSession, int) {
	t.Helper()
	ctx := t.Context()

	server := mcp.NewServer(&mcp.Implementation{Name: "test-server", Version: "v0.0.1"}, nil)
	count := registry.RegisterAll(server)

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	ss, err := server.Connect(ctx, serverTransport, nil)
	if err != nil {
		t.Fatalf("server connect: %v", err)
	}
	t.Cleanup(func() { _ = ss.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { _ = cs.Close() })
	return cs, count
}

func TestNewHandlerRegistry(t *testing.T) {
	logger := testLogger()
	clients := testClients(t, logger)

	registry := NewHandlerRegistry(clients, logger)

	if registry == nil {
		t.Fatal("Expected non-nil registry")
	}
	if registry.bohriumClient != clients.Bohrium {
		t.Error("Registry should hold the Bohrium client reference")
	}
	if registry.mofdbClient != clients.MOFdb {
		t.Error("Registry should hold the MOFdb client reference")
	}
	if registry.openlamClient != clients.OpenLAM {
		t.Error("Registry should hold the OpenLAM client reference")
	}
	if registry.optimadeClient != clients.Optimade {
		t.Error("Registry should hold the OPTIMADE client reference")
	}
	if registry.logger != logger {
		t.Error("Registry should hold the logger reference")
	}
}

func TestBuildTool(t *testing.T) {
	registry := NewHandlerRegistry(Clients{}, testLogger())

	tests := []struct {
		name      string
		spec      ToolSpec
		wantName  string
		wantDesc  string
		wantRO    bool
		wantIdem  bool
		wantDestr bool
		wantOpen  bool
	}{
		{
			name: "read-only tool",
			spec: ToolSpec{
				Name:        "list_providers",
				Title:       "List Providers",
				Description: "List OPTIMADE providers",
				Method:      "ListProviders",
				Database:    "optimade",
				ReadOnly:    true,
				Idempotent:  true,
			},
			wantName: "list_providers",
			wantDesc: "List OPTIMADE providers",
			wantRO:   true,
			wantIdem: true,
		},
		{
			name: "open world tool",
			spec: ToolSpec{
				Name:        "fetch_mofs",
				Title:       "Fetch MOFs",
				Description: "Fetch MOFs from MOFdb",
				Method:      "FetchMOFs",
				Database:    "mofdb",
				OpenWorld:   true,
			},
			wantName: "fetch_mofs",
			wantDesc: "Fetch MOFs from MOFdb",
			wantOpen: true,
		},
		{
			name: "destructive tool",
			spec: ToolSpec{
				Name:        "purge_outputs",
				Description: "Remove saved structures",
				Destructive: true,
			},
			wantName:  "purge_outputs",
			wantDesc:  "Remove saved structures",
			wantDestr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tool := registry.buildTool(tt.spec)

			if tool.Name != tt.wantName {
				t.Errorf("Name = %q, want %q", tool.Name, tt.wantName)
			}
			if tool.Description != tt.wantDesc {
				t.Errorf("Description = %q, want %q", tool.Description, tt.wantDesc)
			}
			if tool.Annotations == nil {
				t.Fatal("Expected annotations")
			}
			if tool.Annotations.ReadOnlyHint != tt.wantRO {
				t.Errorf("ReadOnlyHint = %v, want %v", tool.Annotations.ReadOnlyHint, tt.wantRO)
			}
			if tool.Annotations.IdempotentHint != tt.wantIdem {
				t.Errorf("IdempotentHint = %v, want %v", tool.Annotations.IdempotentHint, tt.wantIdem)
			}
			if tt.wantDestr != (tool.Annotations.DestructiveHint != nil && *tool.Annotations.DestructiveHint) {
				t.Errorf("DestructiveHint = %v, want %v", tool.Annotations.DestructiveHint, tt.wantDestr)
			}
			if tt.wantOpen != (tool.Annotations.OpenWorldHint != nil && *tool.Annotations.OpenWorldHint) {
				t.Errorf("OpenWorldHint = %v, want %v", tool.Annotations.OpenWorldHint, tt.wantOpen)
			}
		})
	}
}

func TestRecoverPanic(t *testing.T) {
	registry := NewHandlerRegistry(Clients{}, testLogger())
	counter := metrics.PanicsRecovered.WithLabelValues("test_tool")
	before := counterValue(t, counter)

	func() {
		defer registry.recoverPanic("test_tool")
		panic("test panic")
	}()

	if got := counterValue(t, counter) - before; got != 1 {
		t.Errorf("panics_recovered_total delta = %v, want 1", got)
	}
}

func TestLogExecution(t *testing.T) {
	registry := NewHandlerRegistry(Clients{}, testLogger())
	result := output.FetchResult{OutputDir: "/tmp/x", NFound: 2}
	lo, hi := 1.0, 3.0

	// Every argument type must be accepted without panicking.
	registry.logExecution(ToolSpec{Name: "fetch_bohrium_crystals", Database: "bohrium"},
		bohrium.FetchCrystalsArgs{Formula: "Fe2O3", SpacegroupNumber: 167}, result)
	registry.logExecution(ToolSpec{Name: "fetch_mofs", Database: "mofdb"},
		mofdb.FetchMOFsArgs{Name: "HKUST-1"}, result)
	registry.logExecution(ToolSpec{Name: "fetch_openlam_structures", Database: "openlam"},
		openlam.FetchStructuresArgs{Formula: "LiFePO4"}, result)
	registry.logExecution(ToolSpec{Name: "fetch_structures_with_filter", Database: "optimade"},
		optimade.FetchFilterArgs{Filter: `elements HAS "Si"`}, result)
	registry.logExecution(ToolSpec{Name: "fetch_structures_with_spg", Database: "optimade"},
		optimade.FetchSPGArgs{SPGNumber: 225}, result)
	registry.logExecution(ToolSpec{Name: "fetch_structures_with_bandgap", Database: "optimade"},
		optimade.FetchBandGapArgs{MinBG: &lo, MaxBG: &hi}, result)
	registry.logExecution(ToolSpec{Name: "unknown"}, struct{}{}, nil)
}

func TestRequestedResults(t *testing.T) {
	tests := []struct {
		name string
		args any
		want int
	}{
		{"bohrium default", bohrium.FetchCrystalsArgs{}, bohrium.DefaultNResults},
		{"bohrium explicit", bohrium.FetchCrystalsArgs{NResults: 25}, 25},
		{"mofdb default", mofdb.FetchMOFsArgs{}, mofdb.DefaultNResults},
		{"openlam explicit", openlam.FetchStructuresArgs{NResults: 4}, 4},
		{"filter default", optimade.FetchFilterArgs{}, optimade.DefaultFilterResults},
		{"spg default", optimade.FetchSPGArgs{}, optimade.DefaultSPGResults},
		{"bandgap negative", optimade.FetchBandGapArgs{NResults: -3}, optimade.DefaultBandGapResults},
		{"unknown", struct{}{}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := requestedResults(tt.args); got != tt.want {
				t.Errorf("requestedResults() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRequestedFormats(t *testing.T) {
	tests := []struct {
		name string
		args any
		want []string
	}{
		{"bohrium default", bohrium.FetchCrystalsArgs{}, []string{"cif"}},
		{"mofdb both", mofdb.FetchMOFsArgs{OutputFormats: []string{"cif", "json"}}, []string{"cif", "json"}},
		{"openlam json", openlam.FetchStructuresArgs{OutputFormats: []string{"json"}}, []string{"json"}},
		{"filter default", optimade.FetchFilterArgs{}, []string{"cif"}},
		{"spg json", optimade.FetchSPGArgs{AsFormat: "json"}, []string{"json"}},
		{"bandgap default", optimade.FetchBandGapArgs{}, []string{"cif"}},
		{"unknown", struct{}{}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := requestedFormats(tt.args); !slices.Equal(got, tt.want) {
				t.Errorf("requestedFormats() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAllToolsNotEmpty(t *testing.T) {
	if len(AllTools) == 0 {
		t.Error("AllTools should not be empty")
	}

	seen := map[string]bool{}
	for i, spec := range AllTools {
		if spec.Name == "" {
			t.Errorf("Tool %d has empty Name", i)
		}
		if seen[spec.Name] {
			t.Errorf("Tool %s is defined twice", spec.Name)
		}
		seen[spec.Name] = true
		if spec.Method == "" {
			t.Errorf("Tool %s has empty Method", spec.Name)
		}
		if spec.Description == "" {
			t.Errorf("Tool %s has empty Description", spec.Name)
		}
		if spec.Database == "" {
			t.Errorf("Tool %s has empty Database", spec.Name)
		}
		if spec.ReadOnly {
			t.Errorf("Tool %s writes files and must not be read-only", spec.Name)
		}
	}
}

func TestToolSpecMethods(t *testing.T) {
	knownMethods := map[string]bool{
		"FetchCrystals":    true,
		"FetchMOFs":        true,
		"FetchStructures":  true,
		"FetchWithFilter":  true,
		"FetchWithSPG":     true,
		"FetchWithBandGap": true,
	}

	for _, spec := range AllTools {
		if !knownMethods[spec.Method] {
			t.Errorf("Tool %s has unknown method: %s", spec.Name, spec.Method)
		}
	}
}

func TestToolsByDatabase(t *testing.T) {
	tests := map[string]int{
		"bohrium":  1,
		"mofdb":    1,
		"openlam":  1,
		"optimade": 3,
		"unknown":  0,
	}
	for db, want := range tests {
		got := ToolsByDatabase(db)
		if len(got) != want {
			t.Errorf("ToolsByDatabase(%q) returned %d tools, want %d", db, len(got), want)
		}
		for _, tool := range got {
			if tool.Database != db {
				t.Errorf("Tool %s has database %s, expected %s", tool.Name, tool.Database, db)
			}
		}
	}
}

func TestToolsByCategory(t *testing.T) {
	federation := ToolsByCategory("federation")
	if len(federation) != 3 {
		t.Errorf("Expected 3 federation tools, got %d", len(federation))
	}
	for _, tool := range federation {
		if tool.Category != "federation" {
			t.Errorf("Tool %s has category %s, expected federation", tool.Name, tool.Category)
		}
	}
}

func TestRegisterAll(t *testing.T) {
	logger := testLogger()
	registry := NewHandlerRegistry(testClients(t, logger), logger)

	cs, count := connect(t, registry)
	if count != len(AllTools) {
		t.Errorf("RegisterAll() = %d, want %d", count, len(AllTools))
	}

	res, err := cs.ListTools(t.Context(), &mcp.ListToolsParams{})
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	if len(res.Tools) != len(AllTools) {
		t.Errorf("Listed %d tools, want %d", len(res.Tools), len(AllTools))
	}
}

func TestRegisterAll_SkipsDisabledDatabases(t *testing.T) {
	logger := testLogger()
	clients := testClients(t, logger)
	registry := NewHandlerRegistry(Clients{Optimade: clients.Optimade}, logger)

	cs, count := connect(t, registry)
	if count != 3 {
		t.Errorf("RegisterAll() = %d, want 3", count)
	}

	res, err := cs.ListTools(t.Context(), &mcp.ListToolsParams{})
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	slices.Sort(names)
	want := []string{"fetch_structures_with_bandgap", "fetch_structures_with_filter", "fetch_structures_with_spg"}
	if !slices.Equal(names, want) {
		t.Errorf("Listed tools = %v, want %v", names, want)
	}
}

func TestCallTool_EmptyFilter(t *testing.T) {
	logger := testLogger()
	clients := testClients(t, logger)
	cs, _ := connect(t, NewHandlerRegistry(Clients{Optimade: clients.Optimade}, logger))

	photons := metrics.PhotonsEstimated.WithLabelValues("fetch_structures_with_filter")
	before := counterValue(t, photons)

	res, err := cs.CallTool(t.Context(), &mcp.CallToolParams{
		Name:      "fetch_structures_with_filter",
		Arguments: map[string]any{"filter": "   "},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if res.IsError {
		t.Fatalf("Unexpected tool error: %+v", res.Content)
	}

	var got output.FetchResult
	raw, err := json.Marshal(res.StructuredContent)
	if err != nil {
		t.Fatalf("marshal structured content: %v", err)
	}
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal structured content: %v", err)
	}
	if got.Code != output.CodeNoQuery {
		t.Errorf("Code = %d, want %d", got.Code, output.CodeNoQuery)
	}
	if got.Message != "Empty filter" {
		t.Errorf("Message = %q, want %q", got.Message, "Empty filter")
	}

	// Two default results at the OPTIMADE rate is 0.1056 RMB.
	if delta := counterValue(t, photons) - before; delta != 11 {
		t.Errorf("photons_estimated_total delta = %v, want 11", delta)
	}
}

func TestCallTool_ValidationError(t *testing.T) {
	logger := testLogger()
	clients := testClients(t, logger)
	cs, _ := connect(t, NewHandlerRegistry(Clients{Optimade: clients.Optimade}, logger))

	res, err := cs.CallTool(t.Context(), &mcp.CallToolParams{
		Name:      "fetch_structures_with_spg",
		Arguments: map[string]any{"spg_number": 999},
	})
	if err == nil && !res.IsError {
		t.Fatal("Expected an error for spg_number 999")
	}
}

func counterValue(t *testing.T, c interface{ Write(*dto.Metric) error }) float64 {
	t.Helper()
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		t.Fatalf("read counter: %v", err)
	}
	return m.GetCounter().GetValue()
}
