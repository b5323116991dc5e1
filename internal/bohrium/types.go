package bohrium

import "github.com/olgasafonova/materials-db-mcp-server/internal/output"

// crystalListRequest is the body of POST /api/v1/crystal/list
type crystalListRequest struct {
	MaterialType    string         `json:"material_type"`
	Keyword         string         `json:"keyword"`
	PositivePoleKey map[string]any `json:"positive_pole_key"`
	MatchMode       int            `json:"match_mode"`
	SortFiledInfo   sortFiledInfo  `json:"sort_filed_info"`
	Size            int            `json:"size"`
	Page            int            `json:"page"`
}

// sortFiledInfo keeps the upstream field spelling.
type sortFiledInfo struct {
	SortFiled string `json:"sort_filed"`
	SortType  int    `json:"sort_type"`
}

// crystalListResponse wraps the records at data.data
type crystalListResponse struct {
	Code int `json:"code"`
	Data struct {
		Data  []output.Record `json:"data"`
		Total int             `json:"total"`
	} `json:"data"`
}

// manifest is written to summary.json
type manifest struct {
	output.ManifestHeader
	Formula   *string        `json:"formula"`
	Filters   map[string]any `json:"filters"`
	MatchMode int            `json:"match_mode"`
	NResults  int            `json:"n_results"`
	NFound    int            `json:"n_found"`
	Formats   []string       `json:"formats"`
	OutputDir string         `json:"output_dir"`
}
