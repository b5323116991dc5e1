// Package tools provides a metadata-driven registry for MCP tool definitions.
// Tools are defined declaratively and registered through type-safe handlers,
// which keeps main.go free of per-tool boilerplate.
package tools

// ToolSpec defines a tool's metadata for declarative registration.
// Each spec maps to a database client method with matching Args/Result types.
type ToolSpec struct {
	// Name is the MCP tool name (e.g., "fetch_mofs")
	Name string

	// Method is the client method name (e.g., "FetchMOFs")
	Method string

	// Description is the tool description shown to LLMs
	Description string

	// Title is the human-readable tool title for annotations
	Title string

	// Category groups tools logically (crystals, mofs, federation)
	Category string

	// Database is the adapter that serves the tool (bohrium, mofdb, openlam, optimade)
	Database string

	// ReadOnly indicates the tool has no side effects
	ReadOnly bool

	// Destructive indicates the tool can delete or overwrite data
	Destructive bool

	// Idempotent indicates repeated calls have the same effect
	Idempotent bool

	// OpenWorld indicates the tool accesses external resources
	OpenWorld bool
}

// ToolsByDatabase returns the specs served by one database adapter.
func ToolsByDatabase(db string) []ToolSpec {
	var out []ToolSpec
	for _, spec := range AllTools {
		if spec.Database == db {
			out = append(out, spec)
		}
	}
	return out
}

// ToolsByCategory returns the specs in one category.
func ToolsByCategory(category string) []ToolSpec {
	var out []ToolSpec
	for _, spec := range AllTools {
		if spec.Category == category {
			out = append(out, spec)
		}
	}
	return out
}

// ptr is a helper to create a pointer to a value.
func ptr[T any](v T) *T {
	return &v
}
