package bohrium

import (
	"context"

	"github.com/olgasafonova/materials-db-mcp-server/internal/output"
)

// FetchCrystalsMCP is the MCP wrapper for a crystal search. Upstream
// failures are logged and returned as a zero-result stub.
func (c *Client) FetchCrystalsMCP(ctx context.Context, args FetchCrystalsArgs) (FetchCrystalsResult, error) {
	formats, err := validateArgs(&args)
	if err != nil {
		return FetchCrystalsResult{}, err
	}

	filters := c.BuildFilters(args)
	items, err := c.ListCrystals(ctx, buildRequest(args, filters))
	if err != nil {
		c.Logger.Error("Crystal list request failed", "database", Database, "error", err)
		return output.EmptyResult(output.CodeUpstreamError, "Request failed: "+err.Error()), nil
	}

	dir, err := output.NewRequestDir(c.outputDir, Tag(args), FilterKey(args.Formula, args.NResults, filters))
	if err != nil {
		return FetchCrystalsResult{}, err
	}

	cleaned := output.Cap(c.SaveCrystals(ctx, items, dir, formats), MaxReturned)

	var formula *string
	if args.Formula != "" {
		formula = &args.Formula
	}
	requested := 1
	if args.MatchMode != nil {
		requested = *args.MatchMode
	}
	m := manifest{
		ManifestHeader: output.NewManifestHeader(Database, "fetch_bohrium_crystals"),
		Formula:        formula,
		Filters:        filters,
		MatchMode:      requested,
		NResults:       args.NResults,
		NFound:         len(cleaned),
		Formats:        output.Strings(formats),
		OutputDir:      dir,
	}
	if err := output.WriteManifest(dir, m); err != nil {
		c.Logger.Warn("Failed to write manifest", "database", Database, "error", err)
	}

	return FetchCrystalsResult{
		OutputDir:         dir,
		CleanedStructures: cleaned,
		NFound:            len(cleaned),
		Code:              output.CodeSuccess,
		Message:           "Success",
	}, nil
}
