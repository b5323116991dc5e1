package bohrium

import "github.com/olgasafonova/materials-db-mcp-server/internal/output"

// FetchCrystalsArgs contains parameters for a crystal search
type FetchCrystalsArgs struct {
	Formula                       string   `json:"formula,omitempty" jsonschema:"Formula keyword, fuzzy or exact depending on match_mode (e.g. Fe2O3)"`
	Elements                      []string `json:"elements,omitempty" jsonschema:"Elements that must be present (e.g. [Li, O])"`
	MatchMode                     *int     `json:"match_mode,omitempty" jsonschema:"0 for fuzzy match, 1 for exact match (default 1). Only effective with formula or elements"`
	SpacegroupNumber              int      `json:"spacegroup_number,omitempty" jsonschema:"International space group number 1-230"`
	AtomCountRange                []string `json:"atom_count_range,omitempty" jsonschema:"Number of atoms per cell as [min, max] strings"`
	PredictedFormationEnergyRange []string `json:"predicted_formation_energy_range,omitempty" jsonschema:"Predicted formation energy in eV as [min, max] strings"`
	BandGapRange                  []string `json:"band_gap_range,omitempty" jsonschema:"Band gap in eV as [min, max] strings"`
	NResults                      int      `json:"n_results,omitempty" jsonschema:"Maximum number of structures to fetch (default 10)"`
	OutputFormats                 []string `json:"output_formats,omitempty" jsonschema:"File formats to save: cif and/or json (default [cif])"`
}

// FetchCrystalsResult is the result of a crystal search
type FetchCrystalsResult = output.FetchResult
