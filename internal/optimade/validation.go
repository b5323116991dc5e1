package optimade

import (
	"strconv"
	"strings"

	"github.com/olgasafonova/materials-db-mcp-server/internal/chem"
	apierrors "github.com/olgasafonova/materials-db-mcp-server/internal/errors"
	"github.com/olgasafonova/materials-db-mcp-server/internal/output"
)

// Default n_results per tool
const (
	DefaultFilterResults  = 2
	DefaultSPGResults     = 3
	DefaultBandGapResults = 2
)

// validateCommon checks the arguments every tool shares.
func validateCommon(nResults *int, def int, asFormat, quotaMode string) (output.Format, string, error) {
	if *nResults == 0 {
		*nResults = def
	}
	if err := output.ValidateCount("n_results", *nResults); err != nil {
		return "", "", err
	}

	format, err := output.ParseFormat(asFormat)
	if err != nil {
		return "", "", err
	}

	switch mode := strings.ToLower(strings.TrimSpace(quotaMode)); mode {
	case "", QuotaPerProvider:
		return format, QuotaPerProvider, nil
	case QuotaFair:
		return format, QuotaFair, nil
	default:
		return "", "", apierrors.NewValidationError("quota_mode", quotaMode, "must be per_provider or fair")
	}
}

func validateFilterArgs(args *FetchFilterArgs) (output.Format, string, error) {
	return validateCommon(&args.NResults, DefaultFilterResults, args.AsFormat, args.QuotaMode)
}

func validateSPGArgs(args *FetchSPGArgs) (output.Format, string, error) {
	if _, ok := chem.SpaceGroupSymbol(args.SPGNumber); !ok {
		return "", "", apierrors.NewValidationError("spg_number", strconv.Itoa(args.SPGNumber), "must be between 1 and 230")
	}
	return validateCommon(&args.NResults, DefaultSPGResults, args.AsFormat, args.QuotaMode)
}

func validateBandGapArgs(args *FetchBandGapArgs) (output.Format, string, error) {
	if args.MinBG != nil && args.MaxBG != nil && *args.MinBG > *args.MaxBG {
		return "", "", apierrors.NewValidationError("min_bg", output.FormatFloat(*args.MinBG), "must not exceed max_bg")
	}
	return validateCommon(&args.NResults, DefaultBandGapResults, args.AsFormat, args.QuotaMode)
}
