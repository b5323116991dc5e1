package bohrium

import (
	"fmt"

	apierrors "github.com/olgasafonova/materials-db-mcp-server/internal/errors"
	"github.com/olgasafonova/materials-db-mcp-server/internal/output"
)

// DefaultNResults is used when n_results is omitted
const DefaultNResults = 10

// validateArgs applies defaults and checks enum and range arguments.
func validateArgs(args *FetchCrystalsArgs) ([]output.Format, error) {
	if args.NResults == 0 {
		args.NResults = DefaultNResults
	}
	if err := output.ValidateCount("n_results", args.NResults); err != nil {
		return nil, err
	}
	if args.MatchMode != nil && *args.MatchMode != 0 && *args.MatchMode != 1 {
		return nil, apierrors.NewValidationError("match_mode", fmt.Sprint(*args.MatchMode), "must be 0 (fuzzy) or 1 (exact)")
	}
	if args.SpacegroupNumber < 0 {
		return nil, apierrors.NewValidationError("spacegroup_number", fmt.Sprint(args.SpacegroupNumber), "must be between 1 and 230")
	}
	for field, r := range map[string][]string{
		"atom_count_range":                 args.AtomCountRange,
		"predicted_formation_energy_range": args.PredictedFormationEnergyRange,
		"band_gap_range":                   args.BandGapRange,
	} {
		if len(r) != 0 && len(r) != 2 {
			return nil, apierrors.NewValidationError(field, fmt.Sprint(r), "must be [min, max]")
		}
	}
	return output.ParseFormats(args.OutputFormats, output.FormatCIF)
}

// matchMode resolves the effective match mode. Upstream only honours it for
// formula or element searches.
func matchMode(args FetchCrystalsArgs) int {
	if args.Formula == "" && len(args.Elements) == 0 {
		return 0
	}
	if args.MatchMode == nil {
		return 1
	}
	return *args.MatchMode
}
