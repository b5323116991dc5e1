package openlam

import (
	"context"

	"github.com/olgasafonova/materials-db-mcp-server/internal/output"
)

// FetchStructuresMCP is the MCP wrapper for an OpenLAM query. Upstream
// failures are logged and returned as a zero-result stub.
func (c *Client) FetchStructuresMCP(ctx context.Context, args FetchStructuresArgs) (FetchStructuresResult, error) {
	q, formats, err := buildQuery(&args)
	if err != nil {
		return FetchStructuresResult{}, err
	}

	items, _, err := c.QueryByOffset(ctx, q)
	if err != nil {
		c.Logger.Error("OpenLAM query failed", "database", Database, "error", err)
		return output.EmptyResult(output.CodeUpstreamError, "OpenLAM query failed: "+err.Error()), nil
	}

	dir, err := output.NewRequestDir(c.outputDir, Tag(q), FilterKey(args))
	if err != nil {
		return FetchStructuresResult{}, err
	}

	cleaned := c.SaveStructures(items, dir, formats)

	optional := func(s string) *string {
		if s == "" {
			return nil
		}
		return &s
	}
	m := manifest{
		ManifestHeader: output.NewManifestHeader(Database, "fetch_openlam_structures"),
		Formula:        optional(args.Formula),
		Filters: manifestFilters{
			MinEnergy:         args.MinEnergy,
			MaxEnergy:         args.MaxEnergy,
			MinSubmissionTime: optional(args.MinSubmissionTime),
			MaxSubmissionTime: optional(args.MaxSubmissionTime),
		},
		NFound:    len(items),
		Formats:   output.Strings(formats),
		OutputDir: dir,
	}
	if err := output.WriteManifest(dir, m); err != nil {
		c.Logger.Warn("Failed to write manifest", "database", Database, "error", err)
	}

	return FetchStructuresResult{
		OutputDir:         dir,
		CleanedStructures: cleaned,
		NFound:            len(items),
		Code:              output.CodeSuccess,
		Message:           "Success",
	}, nil
}
