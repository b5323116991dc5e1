// Package mofdb fetches metal-organic frameworks from MOFdb and saves them
// as CIF and JSON files.
package mofdb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cast"

	"github.com/olgasafonova/materials-db-mcp-server/internal/base"
	"github.com/olgasafonova/materials-db-mcp-server/internal/output"
	"github.com/olgasafonova/materials-db-mcp-server/metrics"
)

const (
	// Database is the metric and log label for this adapter
	Database = "mofdb"

	// DefaultBaseURL is the MOFdb host
	DefaultBaseURL = "https://mof.tech.northwestern.edu"

	// DefaultOutputDir is the base directory for request folders
	DefaultOutputDir = "materials_data_mofdb"

	// MaxReturned caps cleaned_structures
	MaxReturned = 30

	// maxPages stops a runaway pagination loop
	maxPages = 100

	tagMaxLen   = 40
	identMaxLen = 20
	stemMaxLen  = 80
	defaultTag  = "mofdb"
)

// dropAttributes are removed from cleaned records
var dropAttributes = output.DropSet("cif", "json_repr", "isotherms", "heats", "isotherms_filtered", "heats_filtered")

// Config holds the endpoint settings.
type Config struct {
	BaseURL   string
	OutputDir string
}

// Client provides access to the MOFdb REST API
type Client struct {
	*base.Client
	baseURL   string
	outputDir string
}

// ClientOption configures the Client
type ClientOption = base.ClientOption

// NewClient creates a new MOFdb client. Empty settings fall back to defaults.
func NewClient(cfg Config, opts ...ClientOption) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = DefaultOutputDir
	}
	opts = append([]ClientOption{base.WithDatabase(Database)}, opts...)
	return &Client{
		Client:    base.NewClient(opts...),
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		outputDir: cfg.OutputDir,
	}
}

// OutputDir returns the base directory for request folders
func (c *Client) OutputDir() string {
	return c.outputDir
}

// queryParams encodes the non-empty filters.
func queryParams(args FetchMOFsArgs) url.Values {
	params := url.Values{}
	setString := func(key, v string) {
		if v != "" {
			params.Set(key, v)
		}
	}
	setFloat := func(key string, v *float64) {
		if v != nil {
			params.Set(key, strconv.FormatFloat(*v, 'f', -1, 64))
		}
	}
	setString("mofid", args.MOFid)
	setString("mofkey", args.MOFkey)
	setString("name", args.Name)
	setString("database", args.SourceDB)
	setFloat("vf_min", args.VFMin)
	setFloat("vf_max", args.VFMax)
	setFloat("lcd_min", args.LCDMin)
	setFloat("lcd_max", args.LCDMax)
	setFloat("pld_min", args.PLDMin)
	setFloat("pld_max", args.PLDMax)
	setFloat("sa_m2g_min", args.SAM2gMin)
	setFloat("sa_m2g_max", args.SAM2gMax)
	setFloat("sa_m2cm3_min", args.SAM2cm3Min)
	setFloat("sa_m2cm3_max", args.SAM2cm3Max)
	return params
}

// FetchMOFs pages through GET /mofs.json until limit records are collected
// or the last page is reached.
func (c *Client) FetchMOFs(ctx context.Context, args FetchMOFsArgs, limit int) ([]output.Record, error) {
	params := queryParams(args)
	var mofs []output.Record

	for page := 1; page <= maxPages && len(mofs) < limit; page++ {
		params.Set("page", strconv.Itoa(page))

		var resp mofsPage
		err := c.DoJSON(ctx, base.RequestConfig{
			URL:    c.baseURL + "/mofs.json?" + params.Encode(),
			Action: "mofs",
		}, &resp)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", page, err)
		}

		mofs = append(mofs, resp.Results...)
		if len(resp.Results) == 0 || resp.Pages <= page {
			break
		}
	}

	if len(mofs) > limit {
		mofs = mofs[:limit]
	}
	return mofs, nil
}

// Tag builds the directory tag from the query filters.
func Tag(args FetchMOFsArgs) string {
	var parts []string
	add := func(p string) {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if args.MOFid != "" {
		add("id" + prefix(args.MOFid, 8))
	}
	if args.MOFkey != "" {
		add("key" + prefix(args.MOFkey, 8))
	}
	add(strings.ReplaceAll(args.Name, " ", "_"))
	add(strings.ReplaceAll(args.SourceDB, " ", ""))

	ranges := []struct {
		label    string
		min, max *float64
	}{
		{"vf", args.VFMin, args.VFMax},
		{"lcd", args.LCDMin, args.LCDMax},
		{"pld", args.PLDMin, args.PLDMax},
		{"sa_g", args.SAM2gMin, args.SAM2gMax},
		{"sa_cm3", args.SAM2cm3Min, args.SAM2cm3Max},
	}
	for _, r := range ranges {
		if r.min != nil || r.max != nil {
			add(r.label + output.Range(r.min, r.max))
		}
	}
	return output.SafeBasename(strings.Join(parts, "_"), tagMaxLen, defaultTag)
}

func prefix(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// filters collects every filter, nil included, for the manifest and hash.
func filters(args FetchMOFsArgs) filterSet {
	str := func(s string) *string {
		if s == "" {
			return nil
		}
		return &s
	}
	return filterSet{
		MOFid:      str(args.MOFid),
		MOFkey:     str(args.MOFkey),
		Name:       str(args.Name),
		Database:   str(args.SourceDB),
		VFMin:      args.VFMin,
		VFMax:      args.VFMax,
		LCDMin:     args.LCDMin,
		LCDMax:     args.LCDMax,
		PLDMin:     args.PLDMin,
		PLDMax:     args.PLDMax,
		SAM2gMin:   args.SAM2gMin,
		SAM2gMax:   args.SAM2gMax,
		SAM2cm3Min: args.SAM2cm3Min,
		SAM2cm3Max: args.SAM2cm3Max,
		NResults:   args.NResults,
	}
}

// FilterKey renders the filter set with sorted keys.
func FilterKey(args FetchMOFsArgs) string {
	b, err := json.Marshal(filters(args))
	if err != nil {
		return fmt.Sprint(args)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return string(b)
	}
	return output.FilterKey(m)
}

// fileStem names the files of the i-th MOF: <provider>_<ident>_<i>.
func fileStem(mof output.Record, i int) string {
	provider := output.SafeBasename(firstString(mof, "database"), stemMaxLen, defaultTag)
	ident := firstString(mof, "name", "mofkey", "mofid", "id")
	if ident == "" {
		ident = fmt.Sprintf("idx%d", i)
	}
	ident = output.SafeBasename(ident, identMaxLen, "mof")
	return output.SafeBasename(fmt.Sprintf("%s_%s_%d", provider, ident, i), stemMaxLen, "mof")
}

// firstString returns the first non-empty value among keys.
func firstString(mof output.Record, keys ...string) string {
	for _, k := range keys {
		if v, ok := mof[k]; ok && v != nil {
			if s := cast.ToString(v); s != "" {
				return s
			}
		}
	}
	return ""
}

// jsonDocument is what goes into the .json file: json_repr when present
// (decoded when it is a JSON string), otherwise the record itself.
func jsonDocument(mof output.Record) any {
	repr, ok := mof["json_repr"]
	if !ok || repr == nil {
		return mof
	}
	if s, isString := repr.(string); isString {
		var decoded any
		if err := json.Unmarshal([]byte(s), &decoded); err != nil {
			return map[string]any{"raw": s}
		}
		return decoded
	}
	return repr
}

// SaveMOFs writes each MOF and returns the cleaned copies.
func (c *Client) SaveMOFs(mofs []output.Record, dir string, formats []output.Format) []output.Record {
	cleaned := make([]output.Record, 0, len(mofs))
	for i, mof := range mofs {
		stem := fileStem(mof, i)

		if output.Has(formats, output.FormatJSON) {
			if err := output.WriteJSON(filepath.Join(dir, stem+".json"), jsonDocument(mof)); err != nil {
				c.Logger.Error("Failed to save JSON", "database", Database, "file", stem, "error", err)
			} else {
				metrics.RecordSaved(Database, string(output.FormatJSON))
			}
		}

		if output.Has(formats, output.FormatCIF) {
			text := cast.ToString(mof["cif"])
			switch {
			case text == "":
				c.Logger.Warn("No CIF content", "database", Database, "file", stem)
			default:
				if err := output.WriteText(filepath.Join(dir, stem+".cif"), text); err != nil {
					c.Logger.Error("Failed to save CIF", "database", Database, "file", stem, "error", err)
				} else {
					metrics.RecordSaved(Database, string(output.FormatCIF))
				}
			}
		}

		cleaned = append(cleaned, output.Clean(mof, dropAttributes))
	}
	return cleaned
}
