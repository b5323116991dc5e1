package mofdb

import "github.com/olgasafonova/materials-db-mcp-server/internal/output"

// mofsPage is one page of GET /mofs.json
type mofsPage struct {
	Results []output.Record `json:"results"`
	Page    int             `json:"page"`
	Pages   int             `json:"pages"`
}

// filterSet is the full set of applied filters. Nil entries are kept so the
// manifest and the directory hash always carry every key.
type filterSet struct {
	MOFid      *string  `json:"mofid"`
	MOFkey     *string  `json:"mofkey"`
	Name       *string  `json:"name"`
	Database   *string  `json:"database"`
	VFMin      *float64 `json:"vf_min"`
	VFMax      *float64 `json:"vf_max"`
	LCDMin     *float64 `json:"lcd_min"`
	LCDMax     *float64 `json:"lcd_max"`
	PLDMin     *float64 `json:"pld_min"`
	PLDMax     *float64 `json:"pld_max"`
	SAM2gMin   *float64 `json:"sa_m2g_min"`
	SAM2gMax   *float64 `json:"sa_m2g_max"`
	SAM2cm3Min *float64 `json:"sa_m2cm3_min"`
	SAM2cm3Max *float64 `json:"sa_m2cm3_max"`
	NResults   int      `json:"n_results"`
}

// manifest is written to summary.json
type manifest struct {
	output.ManifestHeader
	Filters   filterSet `json:"filters"`
	NFound    int       `json:"n_found"`
	Formats   []string  `json:"formats"`
	OutputDir string    `json:"output_dir"`
}
