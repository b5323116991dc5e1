package optimade

import "github.com/olgasafonova/materials-db-mcp-server/internal/output"

// Quota modes.
const (
	// QuotaPerProvider lets every provider URL save up to n_results structures
	QuotaPerProvider = "per_provider"

	// QuotaFair treats n_results as the total and spreads it over providers
	QuotaFair = "fair"
)

// FetchFilterArgs contains parameters for a raw OPTIMADE filter query
type FetchFilterArgs struct {
	Filter    string   `json:"filter" jsonschema:"OPTIMADE filter string, e.g. elements HAS ALL 'Si','O' AND nelements=2"`
	AsFormat  string   `json:"as_format,omitempty" jsonschema:"File format to save: cif or json (default cif)"`
	NResults  int      `json:"n_results,omitempty" jsonschema:"Structures per provider URL, or total in fair mode (default 2)"`
	Providers []string `json:"providers,omitempty" jsonschema:"Provider names to query, e.g. mp, oqmd, alexandria (default: all supported)"`
	QuotaMode string   `json:"quota_mode,omitempty" jsonschema:"per_provider (default) or fair"`
}

// FetchSPGArgs contains parameters for a space-group query
type FetchSPGArgs struct {
	BaseFilter string   `json:"base_filter,omitempty" jsonschema:"Optional OPTIMADE filter applied to every provider"`
	SPGNumber  int      `json:"spg_number" jsonschema:"International space-group number (1-230)"`
	AsFormat   string   `json:"as_format,omitempty" jsonschema:"File format to save: cif or json (default cif)"`
	NResults   int      `json:"n_results,omitempty" jsonschema:"Structures per provider URL, or total in fair mode (default 3)"`
	Providers  []string `json:"providers,omitempty" jsonschema:"Provider names to query (default: providers with a space-group field)"`
	QuotaMode  string   `json:"quota_mode,omitempty" jsonschema:"per_provider (default) or fair"`
}

// FetchBandGapArgs contains parameters for a band-gap range query
type FetchBandGapArgs struct {
	BaseFilter string   `json:"base_filter,omitempty" jsonschema:"Optional OPTIMADE filter applied to every provider"`
	MinBG      *float64 `json:"min_bg,omitempty" jsonschema:"Minimum band gap in eV"`
	MaxBG      *float64 `json:"max_bg,omitempty" jsonschema:"Maximum band gap in eV"`
	AsFormat   string   `json:"as_format,omitempty" jsonschema:"File format to save: cif or json (default cif)"`
	NResults   int      `json:"n_results,omitempty" jsonschema:"Structures per provider URL, or total in fair mode (default 2)"`
	Providers  []string `json:"providers,omitempty" jsonschema:"Provider names to query (default: providers with a band-gap field)"`
	QuotaMode  string   `json:"quota_mode,omitempty" jsonschema:"per_provider (default) or fair"`
}

// FetchResult is the result of every OPTIMADE tool
type FetchResult = output.FetchResult
