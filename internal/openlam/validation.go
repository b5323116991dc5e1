package openlam

import (
	apierrors "github.com/olgasafonova/materials-db-mcp-server/internal/errors"
	"github.com/olgasafonova/materials-db-mcp-server/internal/output"
)

// DefaultNResults is used when n_results is omitted
const DefaultNResults = 10

// buildQuery validates the arguments and turns them into a Query.
func buildQuery(args *FetchStructuresArgs) (Query, []output.Format, error) {
	if args.NResults == 0 {
		args.NResults = DefaultNResults
	}
	if err := output.ValidateCount("n_results", args.NResults); err != nil {
		return Query{}, nil, err
	}
	if args.MinEnergy != nil && args.MaxEnergy != nil && *args.MinEnergy > *args.MaxEnergy {
		return Query{}, nil, apierrors.NewValidationError("min_energy", output.FormatFloat(*args.MinEnergy), "must not exceed max_energy")
	}

	q := Query{
		Formula:   args.Formula,
		MinEnergy: args.MinEnergy,
		MaxEnergy: args.MaxEnergy,
		Limit:     args.NResults,
	}
	if args.MinSubmissionTime != "" {
		t, err := ParseTime(args.MinSubmissionTime)
		if err != nil {
			return Query{}, nil, apierrors.NewValidationError("min_submission_time", args.MinSubmissionTime, "must be ISO 8601, e.g. 2024-01-01T00:00:00Z")
		}
		q.MinSubmissionTime = &t
	}
	if args.MaxSubmissionTime != "" {
		t, err := ParseTime(args.MaxSubmissionTime)
		if err != nil {
			return Query{}, nil, apierrors.NewValidationError("max_submission_time", args.MaxSubmissionTime, "must be ISO 8601, e.g. 2025-01-01T00:00:00Z")
		}
		q.MaxSubmissionTime = &t
	}

	formats, err := output.ParseFormats(args.OutputFormats, output.FormatCIF)
	if err != nil {
		return Query{}, nil, err
	}
	return q, formats, nil
}
