package optimade

import (
	"errors"
	"fmt"
	"maps"
	"path/filepath"

	"github.com/spf13/cast"

	"github.com/olgasafonova/materials-db-mcp-server/internal/cif"
	"github.com/olgasafonova/materials-db-mcp-server/internal/output"
	"github.com/olgasafonova/materials-db-mcp-server/metrics"
)

const idMaxLen = 80

// SaveReport describes what SaveStructures wrote.
type SaveReport struct {
	Files         []string
	Warnings      []string
	ProvidersSeen []string
	Cleaned       []output.Record
}

// SaveStructures writes the structures of every provider result into dir,
// taking at most the planned quota from each URL. Duplicate ids within one
// provider result are saved once. When warnUnderfill is set, URLs that could
// not fill their quota are reported in the warnings.
func (c *Client) SaveStructures(results []ProviderResult, dir string, format output.Format, plan []ProviderCounts, warnUnderfill bool) SaveReport {
	var report SaveReport
	seenProvider := map[string]bool{}

	for _, res := range results {
		seenIDs := map[string]bool{}
		for _, ur := range res.URLs {
			quota := Quota(plan, res.Provider, ur.URL)
			if quota <= 0 {
				continue
			}

			name := ProviderName(ur.URL)
			if !seenProvider[name] {
				seenProvider[name] = true
				report.ProvidersSeen = append(report.ProvidersSeen, name)
			}
			c.Logger.Debug("Saving provider structures",
				"provider", name,
				"candidates", len(ur.Data),
				"quota", quota)

			saved := 0
			for _, rec := range ur.Data {
				if saved >= quota {
					break
				}
				id := cast.ToString(rec["id"])
				if id == "" {
					c.Logger.Warn("Structure without id skipped", "provider", name)
					continue
				}
				if seenIDs[id] {
					continue
				}

				fileName := fmt.Sprintf("%s_%s_%d.%s", name, output.SafeBasename(id, idMaxLen, "id"), saved, format)
				path := filepath.Join(dir, fileName)
				if err := writeStructure(path, rec, format); err != nil {
					msg := fmt.Sprintf("Failed to save structure from %s #%s: %v", name, id, err)
					c.Logger.Warn(msg)
					report.Warnings = append(report.Warnings, msg)
					continue
				}
				metrics.RecordSaved(Database, string(format))

				report.Files = append(report.Files, path)
				report.Cleaned = append(report.Cleaned, cleanStructure(rec, ur.URL))
				seenIDs[id] = true
				saved++
			}

			if warnUnderfill && saved < quota {
				report.Warnings = append(report.Warnings, fmt.Sprintf(
					"[save] underfilled quota for %s @ %s: wanted %d, saved %d", name, ur.URL, quota, saved))
			}
		}
	}
	return report
}

func writeStructure(path string, rec output.Record, format output.Format) error {
	if format == output.FormatJSON {
		return output.WriteJSON(path, rec)
	}
	s, err := toStructure(rec)
	if err != nil {
		return err
	}
	text, err := s.Text()
	if err != nil {
		return err
	}
	return output.WriteText(path, text)
}

// cleanStructure copies a record without the heavy attributes and tags it
// with the base URL it came from.
func cleanStructure(rec output.Record, providerURL string) output.Record {
	out := maps.Clone(rec)
	attrs, _ := rec["attributes"].(map[string]any)
	out["attributes"] = output.Clean(attrs, DropAttributes)
	out["provider_url"] = providerURL
	return out
}

// toStructure builds a CIF structure from the OPTIMADE lattice_vectors,
// species_at_sites and cartesian_site_positions attributes. Site names are
// resolved through the species list, so disordered sites become one site
// per chemical symbol with its concentration as occupancy.
func toStructure(rec output.Record) (*cif.Structure, error) {
	attrs, ok := rec["attributes"].(map[string]any)
	if !ok {
		return nil, errors.New("structure has no attributes")
	}

	rows := cast.ToSlice(attrs["lattice_vectors"])
	if len(rows) != 3 {
		return nil, errors.New("lattice_vectors must have 3 rows")
	}
	var lattice [3][3]float64
	for i, row := range rows {
		v, err := vec3(row)
		if err != nil {
			return nil, fmt.Errorf("lattice_vectors[%d]: %w", i, err)
		}
		lattice[i] = v
	}

	names := cast.ToStringSlice(attrs["species_at_sites"])
	positions := cast.ToSlice(attrs["cartesian_site_positions"])
	cart := make([][3]float64, len(positions))
	for i, p := range positions {
		v, err := vec3(p)
		if err != nil {
			return nil, fmt.Errorf("cartesian_site_positions[%d]: %w", i, err)
		}
		cart[i] = v
	}

	placed, err := cif.FromCartesian(lattice, names, cart)
	if err != nil {
		return nil, err
	}

	species := speciesTable(attrs["species"])
	s := &cif.Structure{Lattice: lattice}
	for i, site := range placed.Sites {
		parts, ok := species[names[i]]
		if !ok {
			parts = []cif.Site{{Symbol: names[i], Occupancy: 1}}
		}
		for _, part := range parts {
			part.Frac = site.Frac
			s.Sites = append(s.Sites, part)
		}
	}
	return s, nil
}

// speciesTable maps a species name to its chemical symbols and concentrations.
// Vacancies are dropped.
func speciesTable(v any) map[string][]cif.Site {
	table := map[string][]cif.Site{}
	for _, item := range cast.ToSlice(v) {
		sp := cast.ToStringMap(item)
		name := cast.ToString(sp["name"])
		symbols := cast.ToStringSlice(sp["chemical_symbols"])
		if name == "" || len(symbols) == 0 {
			continue
		}
		conc := cast.ToSlice(sp["concentration"])
		var parts []cif.Site
		for j, sym := range symbols {
			if sym == "vacancy" || sym == "X" {
				continue
			}
			occ := 1.0
			if j < len(conc) {
				occ = cast.ToFloat64(conc[j])
			}
			parts = append(parts, cif.Site{Symbol: sym, Occupancy: occ})
		}
		table[name] = parts
	}
	return table
}

func vec3(v any) ([3]float64, error) {
	var out [3]float64
	items := cast.ToSlice(v)
	if len(items) != 3 {
		return out, fmt.Errorf("expected 3 components, got %d", len(items))
	}
	for i, item := range items {
		if item == nil {
			return out, errors.New("null component")
		}
		f, err := cast.ToFloat64E(item)
		if err != nil {
			return out, err
		}
		out[i] = f
	}
	return out, nil
}
