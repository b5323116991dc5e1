package mofdb

import (
	"fmt"

	apierrors "github.com/olgasafonova/materials-db-mcp-server/internal/errors"
	"github.com/olgasafonova/materials-db-mcp-server/internal/output"
)

// DefaultNResults is used when n_results is omitted
const DefaultNResults = 10

// validateArgs applies defaults and checks counts, formats and range order.
func validateArgs(args *FetchMOFsArgs) ([]output.Format, error) {
	if args.NResults == 0 {
		args.NResults = DefaultNResults
	}
	if err := output.ValidateCount("n_results", args.NResults); err != nil {
		return nil, err
	}
	ranges := []struct {
		field    string
		min, max *float64
	}{
		{"vf", args.VFMin, args.VFMax},
		{"lcd", args.LCDMin, args.LCDMax},
		{"pld", args.PLDMin, args.PLDMax},
		{"sa_m2g", args.SAM2gMin, args.SAM2gMax},
		{"sa_m2cm3", args.SAM2cm3Min, args.SAM2cm3Max},
	}
	for _, r := range ranges {
		if r.min != nil && r.max != nil && *r.min > *r.max {
			return nil, apierrors.NewValidationError(r.field+"_min", fmt.Sprint(*r.min),
				fmt.Sprintf("must not exceed %s_max (%v)", r.field, *r.max))
		}
	}
	return output.ParseFormats(args.OutputFormats, output.FormatCIF)
}
