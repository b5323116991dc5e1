package openlam

import (
	"encoding/json"
	"fmt"

	"github.com/olgasafonova/materials-db-mcp-server/internal/cif"
	"github.com/olgasafonova/materials-db-mcp-server/internal/output"
)

// iterateResponse is the envelope of GET /structures/iterate
type iterateResponse struct {
	Code  int `json:"code"`
	Data  struct {
		Items       []item `json:"items"`
		NextStartID int64  `json:"nextStartId"`
	} `json:"data"`
	Error struct {
		Msg string `json:"msg"`
	} `json:"error"`
}

// item is one structure as returned upstream. Structure usually arrives as a
// JSON-encoded string.
type item struct {
	ID             int64           `json:"id"`
	Formula        string          `json:"formula"`
	Energy         float64         `json:"energy"`
	SubmissionTime string          `json:"submissionTime"`
	Structure      json.RawMessage `json:"structure"`
}

// CrystalStructure is a decoded OpenLAM entry.
type CrystalStructure struct {
	ID             int64
	Formula        string
	Energy         float64
	SubmissionTime string
	Provider       string
	Structure      map[string]any // lattice, sites, charge, ...
}

// structureDoc is the subset of the structure dict needed for a CIF.
type structureDoc struct {
	Lattice struct {
		Matrix [3][3]float64 `json:"matrix"`
	} `json:"lattice"`
	Sites []struct {
		Label   string    `json:"label"`
		ABC     []float64 `json:"abc"`
		Species []struct {
			Element string  `json:"element"`
			Occu    float64 `json:"occu"`
		} `json:"species"`
	} `json:"sites"`
}

// decodeStructure accepts either a JSON object or a JSON string holding one.
func decodeStructure(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, fmt.Errorf("structure is missing")
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		raw = json.RawMessage(s)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("failed to decode structure: %w", err)
	}
	return m, nil
}

// ToCIF converts the structure dict into a CIF structure. Disordered sites
// become one CIF site per species.
func (cs *CrystalStructure) ToCIF() (*cif.Structure, error) {
	b, err := json.Marshal(cs.Structure)
	if err != nil {
		return nil, err
	}
	var doc structureDoc
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("failed to read structure: %w", err)
	}

	s := &cif.Structure{Lattice: doc.Lattice.Matrix}
	for i, site := range doc.Sites {
		if len(site.ABC) != 3 {
			return nil, fmt.Errorf("site %d: expected 3 fractional coordinates, got %d", i, len(site.ABC))
		}
		frac := [3]float64{site.ABC[0], site.ABC[1], site.ABC[2]}
		for _, sp := range site.Species {
			label := ""
			if len(site.Species) == 1 {
				label = site.Label
			}
			s.Sites = append(s.Sites, cif.Site{
				Symbol:    sp.Element,
				Label:     label,
				Frac:      frac,
				Occupancy: sp.Occu,
			})
		}
	}
	return s, nil
}

// Dict renders the entry for JSON output. Without sites the structure keeps
// only its lattice and metadata.
func (cs *CrystalStructure) Dict(dropSites bool) map[string]any {
	structure := make(map[string]any, len(cs.Structure))
	for k, v := range cs.Structure {
		if dropSites && k == "sites" {
			continue
		}
		structure[k] = v
	}
	return map[string]any{
		"id":              cs.ID,
		"provider":        cs.Provider,
		"formula":         cs.Formula,
		"energy":          cs.Energy,
		"submission_time": cs.SubmissionTime,
		"structure":       structure,
	}
}

// manifest is written to summary.json
type manifest struct {
	output.ManifestHeader
	Formula   *string         `json:"formula"`
	Filters   manifestFilters `json:"filters"`
	NFound    int             `json:"n_found"`
	Formats   []string        `json:"formats"`
	OutputDir string          `json:"output_dir"`
}

type manifestFilters struct {
	MinEnergy         *float64 `json:"min_energy"`
	MaxEnergy         *float64 `json:"max_energy"`
	MinSubmissionTime *string  `json:"min_submission_time"`
	MaxSubmissionTime *string  `json:"max_submission_time"`
}
