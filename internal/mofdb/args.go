package mofdb

import "github.com/olgasafonova/materials-db-mcp-server/internal/output"

// FetchMOFsArgs contains parameters for a MOF search. Every filter is optional.
type FetchMOFsArgs struct {
	MOFid         string   `json:"mofid,omitempty" jsonschema:"MOFid identifier string"`
	MOFkey        string   `json:"mofkey,omitempty" jsonschema:"MOFkey identifier string"`
	VFMin         *float64 `json:"vf_min,omitempty" jsonschema:"Minimum void fraction"`
	VFMax         *float64 `json:"vf_max,omitempty" jsonschema:"Maximum void fraction"`
	LCDMin        *float64 `json:"lcd_min,omitempty" jsonschema:"Minimum largest cavity diameter in Angstrom"`
	LCDMax        *float64 `json:"lcd_max,omitempty" jsonschema:"Maximum largest cavity diameter in Angstrom"`
	PLDMin        *float64 `json:"pld_min,omitempty" jsonschema:"Minimum pore limiting diameter in Angstrom"`
	PLDMax        *float64 `json:"pld_max,omitempty" jsonschema:"Maximum pore limiting diameter in Angstrom"`
	SAM2gMin      *float64 `json:"sa_m2g_min,omitempty" jsonschema:"Minimum gravimetric surface area in m2/g"`
	SAM2gMax      *float64 `json:"sa_m2g_max,omitempty" jsonschema:"Maximum gravimetric surface area in m2/g"`
	SAM2cm3Min    *float64 `json:"sa_m2cm3_min,omitempty" jsonschema:"Minimum volumetric surface area in m2/cm3"`
	SAM2cm3Max    *float64 `json:"sa_m2cm3_max,omitempty" jsonschema:"Maximum volumetric surface area in m2/cm3"`
	Name          string   `json:"name,omitempty" jsonschema:"MOF name (e.g. HKUST-1)"`
	SourceDB      string   `json:"database,omitempty" jsonschema:"Source database (e.g. CoREMOF 2019, hMOF, Tobacco)"`
	NResults      int      `json:"n_results,omitempty" jsonschema:"Maximum number of MOFs to fetch (default 10)"`
	OutputFormats []string `json:"output_formats,omitempty" jsonschema:"File formats to save: cif and/or json (default [cif])"`
}

// FetchMOFsResult is the result of a MOF search
type FetchMOFsResult = output.FetchResult
