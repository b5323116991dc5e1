package optimade

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"unicode"

	"github.com/olgasafonova/materials-db-mcp-server/internal/chem"
	"github.com/olgasafonova/materials-db-mcp-server/internal/output"
)

const (
	tagMaxLen  = 30
	defaultTag = "filter"
)

// ProviderFilter is the filter sent to one provider.
type ProviderFilter struct {
	Provider string `json:"provider"`
	Filter   string `json:"filter"`
}

// bandGapProperties maps a provider to its band-gap field.
var bandGapProperties = map[string]string{
	"alexandria":    "_alexandria_band_gap",
	"odbx":          "_gnome_bandgap",
	"oqmd":          "_oqmd_band_gap",
	"mcloudarchive": "_mcloudarchive_band_gap",
	"twodmatpedia":  "_twodmatpedia_band_gap",
}

// spaceGroupClause renders the space-group clause for one provider. The
// second result is false when the provider has no space-group field or the
// symbol it needs is unknown.
func spaceGroupClause(provider string, n int) (string, bool) {
	num := strconv.Itoa(n)
	hm, known := chem.SpaceGroupSymbol(n)
	switch provider {
	case "alexandria":
		return "_alexandria_space_group=" + num, true
	case "nmd":
		return "_nmd_dft_spacegroup=" + num, true
	case "mpdd":
		return "_mpdd_spacegroupn=" + num, true
	case "odbx":
		return "_gnome_space_group_it_number=" + num, true
	case "oqmd":
		return fmt.Sprintf("_oqmd_spacegroup=%q", hm), known
	case "tcod":
		return fmt.Sprintf("_tcod_sg=%q", chem.TCODSymbol(hm)), known
	case "cod":
		return fmt.Sprintf("_cod_sg=%q", chem.TCODSymbol(hm)), known
	}
	return "", false
}

// SpaceGroupClauses returns the space-group clause of every provider that
// has one, in provider order.
func SpaceGroupClauses(n int, providers []string) []ProviderFilter {
	var out []ProviderFilter
	for _, p := range providers {
		if clause, ok := spaceGroupClause(p, n); ok {
			out = append(out, ProviderFilter{Provider: p, Filter: clause})
		}
	}
	return out
}

// rangeClause renders prop>=min AND prop<=max. Either end may be open; with
// neither the clause is empty.
func rangeClause(prop string, min, max *float64) string {
	var parts []string
	if min != nil {
		parts = append(parts, prop+">="+output.FormatFloat(*min))
	}
	if max != nil {
		parts = append(parts, prop+"<="+output.FormatFloat(*max))
	}
	return strings.Join(parts, " AND ")
}

// BandGapClauses returns the band-gap range clause of every provider with a
// known band-gap field.
func BandGapClauses(min, max *float64, providers []string) []ProviderFilter {
	var out []ProviderFilter
	for _, p := range providers {
		prop, ok := bandGapProperties[p]
		if !ok {
			continue
		}
		if clause := rangeClause(prop, min, max); clause != "" {
			out = append(out, ProviderFilter{Provider: p, Filter: clause})
		}
	}
	return out
}

// BuildProviderFilters combines a shared base filter with each provider
// clause as "(base) AND (clause)". Empty clauses are dropped.
func BuildProviderFilters(base string, clauses []ProviderFilter) []ProviderFilter {
	b := strings.TrimSpace(base)
	var out []ProviderFilter
	for _, pc := range clauses {
		c := strings.TrimSpace(pc.Filter)
		if c == "" {
			continue
		}
		f := c
		if b != "" {
			f = "(" + b + ") AND (" + c + ")"
		}
		out = append(out, ProviderFilter{Provider: pc.Provider, Filter: f})
	}
	return out
}

// FilterToTag turns a filter into a short filesystem-safe directory tag.
func FilterToTag(filter string) string {
	tag := strings.TrimSpace(filter)
	tag = strings.NewReplacer(`"`, "", "'", "", " ", "_", ",", "-", "=", "").Replace(tag)

	runes := make([]rune, 0, len(tag))
	for _, r := range tag {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' {
			runes = append(runes, r)
		}
	}
	if len(runes) > tagMaxLen {
		runes = runes[:tagMaxLen]
	}
	if len(runes) == 0 {
		return defaultTag
	}
	return string(runes)
}

// ProviderName derives a filesystem-safe name from a provider base URL:
// https://oqmd.org/optimade/ becomes oqmd_org_optimade.
func ProviderName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "provider"
	}
	name := strings.ReplaceAll(u.Host, ".", "_")
	if path := strings.ReplaceAll(strings.Trim(u.Path, "/"), "/", "_"); path != "" {
		name += "_" + path
	}
	if name = strings.Trim(name, "_"); name == "" {
		return "provider"
	}
	return name
}

// asMap renders provider filters for the manifest.
func asMap(filters []ProviderFilter) map[string]string {
	m := make(map[string]string, len(filters))
	for _, pf := range filters {
		m[pf.Provider] = pf.Filter
	}
	return m
}
