package optimade

import "github.com/olgasafonova/materials-db-mcp-server/internal/output"

// Query modes recorded in the manifest.
const (
	modeRawFilter  = "raw_filter"
	modeSpaceGroup = "space_group"
	modeBandGap    = "band_gap"
)

// request is a validated tool call ready to run.
type request struct {
	tool      string
	filters   []ProviderFilter
	providers []string
	format    output.Format
	nResults  int
	quotaMode string
	tag       string
	key       string
	manifest  manifest
}

// manifest is written to summary.json. Mode specific fields are omitted when
// they do not apply.
type manifest struct {
	output.ManifestHeader
	Mode               string            `json:"mode"`
	Filter             *string           `json:"filter,omitempty"`
	BaseFilter         *string           `json:"base_filter,omitempty"`
	SPGNumber          *int              `json:"spg_number,omitempty"`
	BandGapMin         *float64          `json:"band_gap_min,omitempty"`
	BandGapMax         *float64          `json:"band_gap_max,omitempty"`
	ProvidersRequested []string          `json:"providers_requested"`
	ProvidersSeen      []string          `json:"providers_seen"`
	Files              []string          `json:"files"`
	Warnings           []string          `json:"warnings"`
	Format             string            `json:"format"`
	NResults           int               `json:"n_results"`
	QuotaMode          string            `json:"quota_mode"`
	PerProviderFilters map[string]string `json:"per_provider_filters,omitempty"`
	Stats              []ProviderCounts  `json:"stats,omitempty"`
	Plan               []ProviderCounts  `json:"plan,omitempty"`
	NFound             int               `json:"n_found"`
	OutputDir          string            `json:"output_dir"`
}
