// Package output holds the per-request file handling shared by every database
// adapter: result types, output directory naming, cleaning and manifest writing.
package output

import (
	"fmt"
	"slices"
	"strings"

	apierrors "github.com/olgasafonova/materials-db-mcp-server/internal/errors"
)

// Format is an output file format.
type Format string

const (
	FormatCIF  Format = "cif"
	FormatJSON Format = "json"
)

// ManifestName is the file written into every request directory.
const ManifestName = "summary.json"

// Valid reports whether f is a supported format.
func (f Format) Valid() bool {
	return f == FormatCIF || f == FormatJSON
}

// Record is a provider-defined mapping, kept as decoded from upstream JSON.
type Record = map[string]any

// FetchResult is returned by every fetch tool.
type FetchResult struct {
	OutputDir         string   `json:"output_dir"`
	CleanedStructures []Record `json:"cleaned_structures"`
	NFound            int      `json:"n_found"`
	Code              int      `json:"code"`
	Message           string   `json:"message"`
}

// Result codes.
const (
	CodeSuccess       = 0
	CodeUpstreamError = -1
	CodeNoQuery       = -2
)

// EmptyResult is the zero-result stub returned when there is nothing to save.
func EmptyResult(code int, message string) FetchResult {
	return FetchResult{
		CleanedStructures: []Record{},
		Code:              code,
		Message:           message,
	}
}

// ParseFormats validates a list of format names. An empty list yields def.
// Duplicates are dropped and order is kept.
func ParseFormats(list []string, def ...Format) ([]Format, error) {
	if len(list) == 0 {
		return slices.Clone(def), nil
	}
	out := make([]Format, 0, len(list))
	for _, s := range list {
		f := Format(strings.ToLower(strings.TrimSpace(s)))
		if !f.Valid() {
			return nil, apierrors.NewValidationError("output_formats", s, "must be cif or json")
		}
		if !slices.Contains(out, f) {
			out = append(out, f)
		}
	}
	return out, nil
}

// ParseFormat validates a single format name, defaulting to cif.
func ParseFormat(s string) (Format, error) {
	if s == "" {
		return FormatCIF, nil
	}
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	if !f.Valid() {
		return "", apierrors.NewValidationError("as_format", s, "must be cif or json")
	}
	return f, nil
}

// Has reports whether f is in formats.
func Has(formats []Format, f Format) bool {
	return slices.Contains(formats, f)
}

// Strings converts formats back to plain names for manifests.
func Strings(formats []Format) []string {
	out := make([]string, len(formats))
	for i, f := range formats {
		out[i] = string(f)
	}
	return out
}

// Clean returns a shallow copy of record without the dropped keys.
func Clean(record Record, drop map[string]struct{}) Record {
	out := make(Record, len(record))
	for k, v := range record {
		if _, skip := drop[k]; skip {
			continue
		}
		out[k] = v
	}
	return out
}

// DropSet builds a lookup set for Clean.
func DropSet(keys ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set
}

// Cap keeps at most max records. A non-positive max keeps everything.
func Cap(records []Record, max int) []Record {
	if max > 0 && len(records) > max {
		return records[:max]
	}
	return records
}

// ValidateCount rejects non-positive result counts.
func ValidateCount(field string, n int) error {
	if n < 1 {
		return apierrors.NewValidationError(field, fmt.Sprint(n), "must be at least 1")
	}
	return nil
}
