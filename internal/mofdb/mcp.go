package mofdb

import (
	"context"

	"github.com/olgasafonova/materials-db-mcp-server/internal/output"
)

// FetchMOFsMCP is the MCP wrapper for a MOF search. Upstream failures are
// logged and returned as a zero-result stub.
func (c *Client) FetchMOFsMCP(ctx context.Context, args FetchMOFsArgs) (FetchMOFsResult, error) {
	formats, err := validateArgs(&args)
	if err != nil {
		return FetchMOFsResult{}, err
	}

	mofs, err := c.FetchMOFs(ctx, args, args.NResults)
	if err != nil {
		c.Logger.Error("MOFdb query failed", "database", Database, "error", err)
		return output.EmptyResult(output.CodeUpstreamError, "MOFdb query failed: "+err.Error()), nil
	}

	dir, err := output.NewRequestDir(c.outputDir, Tag(args), FilterKey(args))
	if err != nil {
		return FetchMOFsResult{}, err
	}

	cleaned := output.Cap(c.SaveMOFs(mofs, dir, formats), MaxReturned)

	m := manifest{
		ManifestHeader: output.NewManifestHeader(Database, "fetch_mofs"),
		Filters:        filters(args),
		NFound:         len(cleaned),
		Formats:        output.Strings(formats),
		OutputDir:      dir,
	}
	if err := output.WriteManifest(dir, m); err != nil {
		c.Logger.Warn("Failed to write manifest", "database", Database, "error", err)
	}

	return FetchMOFsResult{
		OutputDir:         dir,
		CleanedStructures: cleaned,
		NFound:            len(cleaned),
		Code:              output.CodeSuccess,
		Message:           "Success",
	}, nil
}
