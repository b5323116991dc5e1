// Package openlam queries the OpenLAM structure database and saves the
// structures as CIF and JSON files.
package openlam

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/olgasafonova/materials-db-mcp-server/internal/base"
	apierrors "github.com/olgasafonova/materials-db-mcp-server/internal/errors"
	"github.com/olgasafonova/materials-db-mcp-server/internal/output"
	"github.com/olgasafonova/materials-db-mcp-server/metrics"
)

const (
	// Database is the metric and log label for this adapter
	Database = "openlam"

	// Provider is written into every record
	Provider = "openlam"

	// DefaultQueryURL is the structure iterate endpoint
	DefaultQueryURL = "http://openapi.dp.tech/openapi/v1/structures/iterate"

	// DefaultOutputDir is the base directory for request folders
	DefaultOutputDir = "materials_data_openlam"

	tagMaxLen  = 40
	defaultTag = "openlam"
)

// timeLayouts are the ISO 8601 forms accepted for submission times.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// Config holds the endpoint settings.
type Config struct {
	QueryURL  string
	AccessKey string
	OutputDir string
}

// Client provides access to the OpenLAM structure API
type Client struct {
	*base.Client
	queryURL  string
	accessKey string
	outputDir string
}

// ClientOption configures the Client
type ClientOption = base.ClientOption

// NewClient creates a new OpenLAM client. Empty settings fall back to defaults.
func NewClient(cfg Config, opts ...ClientOption) *Client {
	if cfg.QueryURL == "" {
		cfg.QueryURL = DefaultQueryURL
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = DefaultOutputDir
	}
	opts = append([]ClientOption{base.WithDatabase(Database)}, opts...)
	return &Client{
		Client:    base.NewClient(opts...),
		queryURL:  cfg.QueryURL,
		accessKey: cfg.AccessKey,
		outputDir: cfg.OutputDir,
	}
}

// OutputDir returns the base directory for request folders
func (c *Client) OutputDir() string {
	return c.outputDir
}

// Query holds the parsed filters of one request.
type Query struct {
	Formula           string
	MinEnergy         *float64
	MaxEnergy         *float64
	MinSubmissionTime *time.Time
	MaxSubmissionTime *time.Time
	Offset            int64
	Limit             int
}

// ParseTime reads an ISO 8601 timestamp. A trailing Z and missing zones are UTC.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("not an ISO 8601 time: %q", s)
}

// isoTime renders t in UTC with an explicit offset: 2024-01-01T00:00:00+00:00.
func isoTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.999999-07:00")
}

func (q Query) params(accessKey string) url.Values {
	params := url.Values{}
	params.Set("accessKey", accessKey)
	params.Set("startId", strconv.FormatInt(q.Offset, 10))
	params.Set("limit", strconv.Itoa(q.Limit))
	if q.Formula != "" {
		params.Set("formula", q.Formula)
	}
	if q.MinEnergy != nil {
		params.Set("minEnergy", strconv.FormatFloat(*q.MinEnergy, 'f', -1, 64))
	}
	if q.MaxEnergy != nil {
		params.Set("maxEnergy", strconv.FormatFloat(*q.MaxEnergy, 'f', -1, 64))
	}
	if q.MinSubmissionTime != nil {
		params.Set("minSubmissionTime", isoTime(*q.MinSubmissionTime))
	}
	if q.MaxSubmissionTime != nil {
		params.Set("maxSubmissionTime", isoTime(*q.MaxSubmissionTime))
	}
	return params
}

// QueryByOffset fetches one page of structures starting at q.Offset.
// A non-200 status or a non-zero body code is an error.
func (c *Client) QueryByOffset(ctx context.Context, q Query) ([]CrystalStructure, int64, error) {
	sep := "?"
	if strings.Contains(c.queryURL, "?") {
		sep = "&"
	}
	body, status, err := c.DoRequest(ctx, base.RequestConfig{
		URL:     c.queryURL + sep + q.params(c.accessKey).Encode(),
		Headers: map[string]string{"Content-Type": "application/json"},
		Action:  "structures_iterate",
	})
	if err != nil {
		return nil, 0, err
	}
	if status != 200 {
		if status >= 500 {
			c.RecordFailure()
		} else {
			c.RecordSuccess()
		}
		return nil, 0, apierrors.NewAPIError(Database, status, "Response code "+strconv.Itoa(status)+": "+string(body))
	}

	var resp iterateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		c.RecordFailure()
		return nil, 0, fmt.Errorf("failed to parse %s response: %w", Database, err)
	}
	c.RecordSuccess()
	if resp.Code != 0 {
		return nil, 0, &apierrors.APIError{Database: Database, Code: resp.Code, Message: resp.Error.Msg}
	}

	structures := make([]CrystalStructure, 0, len(resp.Data.Items))
	for _, it := range resp.Data.Items {
		doc, err := decodeStructure(it.Structure)
		if err != nil {
			return nil, 0, fmt.Errorf("structure %d: %w", it.ID, err)
		}
		structures = append(structures, CrystalStructure{
			ID:             it.ID,
			Formula:        it.Formula,
			Energy:         it.Energy,
			SubmissionTime: it.SubmissionTime,
			Provider:       Provider,
			Structure:      doc,
		})
	}
	return structures, resp.Data.NextStartID, nil
}

// Tag builds the directory tag from the query filters.
func Tag(q Query) string {
	var parts []string
	if q.Formula != "" {
		parts = append(parts, strings.ReplaceAll(q.Formula, " ", ""))
	}
	if q.MinEnergy != nil {
		parts = append(parts, fmt.Sprintf("emin%.2f", *q.MinEnergy))
	}
	if q.MaxEnergy != nil {
		parts = append(parts, fmt.Sprintf("emax%.2f", *q.MaxEnergy))
	}
	if q.MinSubmissionTime != nil {
		parts = append(parts, "tmin"+q.MinSubmissionTime.Format("20060102"))
	}
	if q.MaxSubmissionTime != nil {
		parts = append(parts, "tmax"+q.MaxSubmissionTime.Format("20060102"))
	}
	return output.SafeBasename(strings.Join(parts, "_"), tagMaxLen, defaultTag)
}

// FilterKey is the canonical string hashed into the directory name.
func FilterKey(args FetchStructuresArgs) string {
	num := func(v *float64) string {
		if v == nil {
			return ""
		}
		return output.FormatFloat(*v)
	}
	return fmt.Sprintf("%s|emin=%s|emax=%s|tmin=%s|tmax=%s",
		args.Formula, num(args.MinEnergy), num(args.MaxEnergy), args.MinSubmissionTime, args.MaxSubmissionTime)
}

// SaveStructures writes each structure and returns the cleaned dicts,
// which omit structure.sites.
func (c *Client) SaveStructures(items []CrystalStructure, dir string, formats []output.Format) []output.Record {
	cleaned := make([]output.Record, 0, len(items))
	for i := range items {
		cs := &items[i]
		provider := cs.Provider
		if provider == "" {
			provider = Provider
		}
		name := fmt.Sprintf("%s_%d_%d", provider, cs.ID, i)

		if output.Has(formats, output.FormatJSON) {
			if err := output.WriteJSON(filepath.Join(dir, name+".json"), cs.Dict(false)); err != nil {
				c.Logger.Error("Failed to save JSON", "database", Database, "id", cs.ID, "error", err)
			} else {
				metrics.RecordSaved(Database, string(output.FormatJSON))
			}
		}

		if output.Has(formats, output.FormatCIF) {
			if err := writeCIF(cs, filepath.Join(dir, name+".cif")); err != nil {
				c.Logger.Error("Failed to save CIF", "database", Database, "id", cs.ID, "error", err)
			} else {
				metrics.RecordSaved(Database, string(output.FormatCIF))
			}
		}

		cleaned = append(cleaned, cs.Dict(true))
	}
	return cleaned
}

func writeCIF(cs *CrystalStructure, path string) error {
	s, err := cs.ToCIF()
	if err != nil {
		return err
	}
	text, err := s.Text()
	if err != nil {
		return err
	}
	return output.WriteText(path, text)
}
