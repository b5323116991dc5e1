package optimade

import (
	"context"
	"strconv"
	"strings"

	"github.com/olgasafonova/materials-db-mcp-server/internal/chem"
	"github.com/olgasafonova/materials-db-mcp-server/internal/output"
)

// Tool names
const (
	ToolFilter  = "fetch_structures_with_filter"
	ToolSPG     = "fetch_structures_with_spg"
	ToolBandGap = "fetch_structures_with_bandgap"
)

// FetchWithFilterMCP is the MCP wrapper for a raw filter query. Reduced
// formula clauses are rewritten to Hill order before the query is sent.
func (c *Client) FetchWithFilterMCP(ctx context.Context, args FetchFilterArgs) (FetchResult, error) {
	format, mode, err := validateFilterArgs(&args)
	if err != nil {
		return FetchResult{}, err
	}

	filter := strings.TrimSpace(args.Filter)
	if filter == "" {
		c.Logger.Warn("Empty OPTIMADE filter", "tool", ToolFilter)
		return output.EmptyResult(output.CodeNoQuery, "Empty filter"), nil
	}
	filter = chem.NormalizeReducedFormulaClauses(filter)

	providers := resolveProviders(args.Providers, DefaultProviders)
	filters := make([]ProviderFilter, len(providers))
	for i, p := range providers {
		filters[i] = ProviderFilter{Provider: p, Filter: filter}
	}

	return c.run(ctx, request{
		tool:      ToolFilter,
		filters:   filters,
		providers: providers,
		format:    format,
		nResults:  args.NResults,
		quotaMode: mode,
		tag:       FilterToTag(filter),
		key:       filter,
		manifest: manifest{
			Mode:   modeRawFilter,
			Filter: &filter,
		},
	})
}

// FetchWithSPGMCP is the MCP wrapper for a space-group query. Each provider
// gets its own space-group clause, combined with the optional base filter.
func (c *Client) FetchWithSPGMCP(ctx context.Context, args FetchSPGArgs) (FetchResult, error) {
	format, mode, err := validateSPGArgs(&args)
	if err != nil {
		return FetchResult{}, err
	}

	base := chem.NormalizeReducedFormulaClauses(strings.TrimSpace(args.BaseFilter))
	providers := resolveProviders(args.Providers, DefaultSPGProviders)
	filters := BuildProviderFilters(base, SpaceGroupClauses(args.SPGNumber, providers))
	if len(filters) == 0 {
		c.Logger.Warn("No provider has a space-group clause", "providers", providers)
		return output.EmptyResult(output.CodeNoQuery, "No provider-specific space-group clause available"), nil
	}

	spg := strconv.Itoa(args.SPGNumber)
	return c.run(ctx, request{
		tool:      ToolSPG,
		filters:   filters,
		providers: providers,
		format:    format,
		nResults:  args.NResults,
		quotaMode: mode,
		tag:       FilterToTag(base + " AND spg=" + spg),
		key:       base + "|spg=" + spg,
		manifest: manifest{
			Mode:               modeSpaceGroup,
			BaseFilter:         &base,
			SPGNumber:          &args.SPGNumber,
			PerProviderFilters: asMap(filters),
		},
	})
}

// FetchWithBandGapMCP is the MCP wrapper for a band-gap range query.
func (c *Client) FetchWithBandGapMCP(ctx context.Context, args FetchBandGapArgs) (FetchResult, error) {
	format, mode, err := validateBandGapArgs(&args)
	if err != nil {
		return FetchResult{}, err
	}

	base := chem.NormalizeReducedFormulaClauses(strings.TrimSpace(args.BaseFilter))
	providers := resolveProviders(args.Providers, DefaultBandGapProviders)
	filters := BuildProviderFilters(base, BandGapClauses(args.MinBG, args.MaxBG, providers))
	if len(filters) == 0 {
		c.Logger.Warn("No provider has a band-gap clause", "providers", providers)
		return output.EmptyResult(output.CodeNoQuery, "No provider-specific band-gap clause available"), nil
	}

	lo, hi := bound(args.MinBG), bound(args.MaxBG)
	return c.run(ctx, request{
		tool:      ToolBandGap,
		filters:   filters,
		providers: providers,
		format:    format,
		nResults:  args.NResults,
		quotaMode: mode,
		tag:       FilterToTag(base + " AND bandgap[" + lo + "," + hi + "]"),
		key:       base + "|bg=" + lo + ":" + hi,
		manifest: manifest{
			Mode:               modeBandGap,
			BaseFilter:         &base,
			BandGapMin:         args.MinBG,
			BandGapMax:         args.MaxBG,
			PerProviderFilters: asMap(filters),
		},
	})
}

func bound(v *float64) string {
	if v == nil {
		return ""
	}
	return output.FormatFloat(*v)
}

// run queries the providers, plans the per-URL quotas, saves the structures
// and writes the manifest.
func (c *Client) run(ctx context.Context, req request) (FetchResult, error) {
	results := c.Fetch(ctx, req.filters, req.nResults)

	stats := make([]ProviderCounts, len(results))
	for i, r := range results {
		stats[i] = r.Counts()
	}

	var plan []ProviderCounts
	fair := req.quotaMode == QuotaFair
	if fair {
		plan = DistributeQuotaFair(stats, req.nResults)
	} else {
		plan = PerURLPlan(stats, req.nResults)
	}

	dir, err := output.NewRequestDir(c.outputDir, req.tag, req.key)
	if err != nil {
		return FetchResult{}, err
	}

	report := c.SaveStructures(results, dir, req.format, plan, fair)

	m := req.manifest
	m.ManifestHeader = output.NewManifestHeader(Database, req.tool)
	m.ProvidersRequested = req.providers
	m.ProvidersSeen = nonNil(report.ProvidersSeen)
	m.Files = nonNil(report.Files)
	m.Warnings = nonNil(report.Warnings)
	m.Format = string(req.format)
	m.NResults = req.nResults
	m.QuotaMode = req.quotaMode
	m.NFound = len(report.Cleaned)
	m.OutputDir = dir
	if fair {
		m.Stats = stats
		m.Plan = plan
	}
	if err := output.WriteManifest(dir, m); err != nil {
		c.Logger.Warn("Failed to write manifest", "database", Database, "error", err)
	}

	cleaned := output.Cap(report.Cleaned, MaxReturned)
	if cleaned == nil {
		cleaned = []output.Record{}
	}
	return FetchResult{
		OutputDir:         dir,
		CleanedStructures: cleaned,
		NFound:            len(cleaned),
		Code:              output.CodeSuccess,
		Message:           "Success",
	}, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
