// Package bohrium fetches crystal structures from the Bohrium public
// crystal database and saves them as CIF and JSON files.
package bohrium

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cast"

	"github.com/olgasafonova/materials-db-mcp-server/internal/base"
	"github.com/olgasafonova/materials-db-mcp-server/internal/chem"
	"github.com/olgasafonova/materials-db-mcp-server/internal/output"
	"github.com/olgasafonova/materials-db-mcp-server/metrics"
)

const (
	// Database is the metric and log label for this adapter
	Database = "bohrium"

	// DefaultBaseURL is the db-core host
	DefaultBaseURL = "https://db-core.dp.tech"

	// DefaultUserID is sent as X-User-Id
	DefaultUserID = "117756"

	// DefaultOutputDir is the base directory for request folders
	DefaultOutputDir = "materials_data_bohriumpublic"

	// MaxReturned caps cleaned_structures
	MaxReturned = 30

	crystalListPath = "/api/v1/crystal/list"
	tagMaxLen       = 60
	idMaxLen        = 80
	defaultTag      = "bohriumcrystal"
)

// dropAttributes are removed from cleaned records
var dropAttributes = output.DropSet("cif_file", "come_from", "material_id")

// Config holds the endpoint settings.
type Config struct {
	BaseURL   string
	UserID    string
	OutputDir string
}

// Client provides access to the Bohrium crystal API
type Client struct {
	*base.Client
	baseURL   string
	userID    string
	outputDir string
}

// ClientOption configures the Client
type ClientOption = base.ClientOption

// NewClient creates a new Bohrium client. Empty settings fall back to defaults.
func NewClient(cfg Config, opts ...ClientOption) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.UserID == "" {
		cfg.UserID = DefaultUserID
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = DefaultOutputDir
	}
	opts = append([]ClientOption{base.WithDatabase(Database)}, opts...)
	return &Client{
		Client:    base.NewClient(opts...),
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		userID:    cfg.UserID,
		outputDir: cfg.OutputDir,
	}
}

// OutputDir returns the base directory for request folders
func (c *Client) OutputDir() string {
	return c.outputDir
}

// ListCrystals posts a crystal list query and returns the records at data.data.
func (c *Client) ListCrystals(ctx context.Context, req crystalListRequest) ([]output.Record, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	var resp crystalListResponse
	err = c.DoJSON(ctx, base.RequestConfig{
		Method: "POST",
		URL:    c.baseURL + crystalListPath,
		Body:   body,
		Headers: map[string]string{
			"X-User-Id":    c.userID,
			"Content-Type": "application/json",
		},
		Action: "crystal_list",
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Data.Data, nil
}

// BuildFilters maps tool arguments to the positive_pole_key object.
// Unknown space group numbers are logged and skipped.
func (c *Client) BuildFilters(args FetchCrystalsArgs) map[string]any {
	filters := map[string]any{}
	if len(args.Elements) > 0 {
		filters["elements"] = args.Elements
	}
	if args.SpacegroupNumber != 0 {
		if hm, ok := chem.SpaceGroupSymbol(args.SpacegroupNumber); ok {
			filters["space_symbol"] = chem.UnicodeSymbol(hm)
		} else {
			c.Logger.Warn("Unknown space group number", "database", Database, "spacegroup_number", args.SpacegroupNumber)
		}
	}
	if len(args.AtomCountRange) > 0 {
		filters["atomCountRange"] = args.AtomCountRange
	}
	if len(args.PredictedFormationEnergyRange) > 0 {
		filters["predicted_formation_energy_range"] = args.PredictedFormationEnergyRange
	}
	if len(args.BandGapRange) > 0 {
		filters["band_gap_range"] = args.BandGapRange
	}
	return filters
}

// buildRequest assembles the crystal list payload, sorted by lowest
// predicted formation energy first.
func buildRequest(args FetchCrystalsArgs, filters map[string]any) crystalListRequest {
	return crystalListRequest{
		MaterialType:    "5",
		Keyword:         args.Formula,
		PositivePoleKey: filters,
		MatchMode:       matchMode(args),
		SortFiledInfo: sortFiledInfo{
			SortFiled: "crystal_ext.predicted_formation_energy",
			SortType:  1,
		},
		Size: args.NResults,
		Page: 1,
	}
}

// Tag builds the directory tag from the query filters.
func Tag(args FetchCrystalsArgs) string {
	var parts []string
	if args.Formula != "" {
		parts = append(parts, strings.ReplaceAll(args.Formula, " ", ""))
	}
	if len(args.Elements) > 0 {
		els := append([]string(nil), args.Elements...)
		sort.Strings(els)
		parts = append(parts, "el"+strings.Join(els, ""))
	}
	if args.SpacegroupNumber != 0 {
		parts = append(parts, fmt.Sprintf("sg%d", args.SpacegroupNumber))
	}
	if len(args.AtomCountRange) > 0 {
		parts = append(parts, "nat"+strings.Join(args.AtomCountRange, "-"))
	}
	if len(args.PredictedFormationEnergyRange) > 0 {
		parts = append(parts, "E"+strings.Join(args.PredictedFormationEnergyRange, "-"))
	}
	if len(args.BandGapRange) > 0 {
		parts = append(parts, "Eg"+strings.Join(args.BandGapRange, "-"))
	}
	return output.SafeBasename(strings.Join(parts, "_"), tagMaxLen, defaultTag)
}

// FilterKey is the canonical string hashed into the directory name.
func FilterKey(formula string, nResults int, filters map[string]any) string {
	return fmt.Sprintf("%s|n_results=%d|filters=%s", formula, nResults, output.FilterKey(filters))
}

// SaveCrystals writes each record and returns the cleaned copies. The CIF is
// downloaded from the record's cif_file URL; missing URLs and failed
// downloads are logged and skipped.
func (c *Client) SaveCrystals(ctx context.Context, items []output.Record, dir string, formats []output.Format) []output.Record {
	cleaned := make([]output.Record, 0, len(items))
	for i, item := range items {
		id := fmt.Sprintf("idx%d", i)
		if v, ok := item["id"]; ok && v != nil {
			id = output.SafeBasename(cast.ToString(v), idMaxLen, id)
		}
		name := fmt.Sprintf("%s_%s_%d", defaultTag, id, i)

		if output.Has(formats, output.FormatJSON) {
			if err := output.WriteJSON(filepath.Join(dir, name+".json"), item); err != nil {
				c.Logger.Error("Failed to write JSON", "database", Database, "id", id, "error", err)
			} else {
				metrics.RecordSaved(Database, string(output.FormatJSON))
			}
		}

		if output.Has(formats, output.FormatCIF) {
			c.saveCIF(ctx, item, id, filepath.Join(dir, name+".cif"))
		}

		cleaned = append(cleaned, output.Clean(item, dropAttributes))
	}
	return cleaned
}

func (c *Client) saveCIF(ctx context.Context, item output.Record, id, path string) {
	cifURL := cast.ToString(item["cif_file"])
	if cifURL == "" {
		c.Logger.Warn("No CIF URL", "database", Database, "id", id)
		return
	}
	data, err := c.Download(ctx, cifURL)
	if err != nil {
		c.Logger.Error("Failed to download CIF", "database", Database, "id", id, "error", err)
		return
	}
	if err := output.WriteText(path, string(data)); err != nil {
		c.Logger.Error("Failed to write CIF", "database", Database, "id", id, "error", err)
		return
	}
	metrics.RecordSaved(Database, string(output.FormatCIF))
	c.Logger.Debug("Saved CIF", "database", Database, "id", id, "file", filepath.Base(path))
}
