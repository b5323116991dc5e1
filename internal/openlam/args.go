package openlam

import "github.com/olgasafonova/materials-db-mcp-server/internal/output"

// FetchStructuresArgs contains parameters for an OpenLAM structure query
type FetchStructuresArgs struct {
	Formula           string   `json:"formula,omitempty" jsonschema:"Chemical formula to filter structures (e.g. Fe2O3)"`
	MinEnergy         *float64 `json:"min_energy,omitempty" jsonschema:"Minimum energy in eV"`
	MaxEnergy         *float64 `json:"max_energy,omitempty" jsonschema:"Maximum energy in eV"`
	MinSubmissionTime string   `json:"min_submission_time,omitempty" jsonschema:"Earliest submission time in ISO 8601 UTC (e.g. 2024-01-01T00:00:00Z)"`
	MaxSubmissionTime string   `json:"max_submission_time,omitempty" jsonschema:"Latest submission time in ISO 8601 UTC (e.g. 2025-01-01T00:00:00Z)"`
	NResults          int      `json:"n_results,omitempty" jsonschema:"Maximum number of structures to fetch (default 10)"`
	OutputFormats     []string `json:"output_formats,omitempty" jsonschema:"File formats to save: cif and/or json (default [cif])"`
}

// FetchStructuresResult is the result of an OpenLAM query
type FetchStructuresResult = output.FetchResult
