package optimade

import (
	"maps"
	"slices"
	"strings"

	"github.com/olgasafonova/materials-db-mcp-server/internal/output"
)

// DefaultProviders are queried by fetch_structures_with_filter when the
// caller names none.
var DefaultProviders = []string{
	"alexandria", "cmr", "cod", "mcloud", "mcloudarchive", "mp", "mpdd",
	"mpds", "nmd", "odbx", "omdb", "oqmd", "tcod", "twodmatpedia",
}

// DefaultSPGProviders expose a queryable space-group field.
var DefaultSPGProviders = []string{"alexandria", "cod", "mpdd", "nmd", "odbx", "oqmd", "tcod"}

// DefaultBandGapProviders expose a queryable band-gap field.
var DefaultBandGapProviders = []string{"alexandria", "mcloudarchive", "odbx", "oqmd", "twodmatpedia"}

// ProviderURLs maps a provider name to its OPTIMADE base URLs.
var ProviderURLs = map[string][]string{
	"aflow": {"https://aflow.org/API/optimade/"},
	"alexandria": {
		"https://alexandria.icams.rub.de/pbe",
		"https://alexandria.icams.rub.de/pbesol",
	},
	"cod": {"https://www.crystallography.net/cod/optimade"},
	"cmr": {"https://cmr-optimade.fysik.dtu.dk/"},
	"mcloud": {
		"https://optimade.materialscloud.io/main/mc3d-pbe-v1",
		"https://optimade.materialscloud.io/main/mc2d",
		"https://optimade.materialscloud.io/main/2dtopo",
		"https://optimade.materialscloud.io/main/tc-applicability",
		"https://optimade.materialscloud.io/main/pyrene-mofs",
		"https://optimade.materialscloud.io/main/curated-cofs",
		"https://optimade.materialscloud.io/main/stoceriaitf",
		"https://optimade.materialscloud.io/main/autowannier",
		"https://optimade.materialscloud.io/main/tin-antimony-sulfoiodide",
	},
	"mcloudarchive": {
		"https://optimade.materialscloud.org/archive/zk-gc",
		"https://optimade.materialscloud.org/archive/c8-gy",
		"https://optimade.materialscloud.org/archive/5p-vq",
		"https://optimade.materialscloud.org/archive/vg-ya",
	},
	"mp":   {"https://optimade.materialsproject.org/"},
	"mpdd": {"http://mpddoptimade.phaseslab.org/"},
	"mpds": {"https://api.mpds.io/"},
	"mpod": {"http://mpod_optimade.cimav.edu.mx/"},
	"nmd":  {"https://nomad-lab.eu/prod/rae/optimade/"},
	"odbx": {
		"https://optimade.odbx.science/",
		"https://optimade-misc.odbx.science/",
		"https://optimade-gnome.odbx.science/",
	},
	"omdb":         {"http://optimade.openmaterialsdb.se/"},
	"oqmd":         {"https://oqmd.org/optimade/"},
	"jarvis":       {"https://jarvis.nist.gov/optimade/jarvisdft"},
	"tcod":         {"https://www.crystallography.net/tcod/optimade"},
	"twodmatpedia": {"http://optimade.2dmatpedia.org/"},
}

// DropAttributes are removed from a structure's attributes in the cleaned copy.
var DropAttributes = output.DropSet(
	"cartesian_site_positions",
	"species_at_sites",
	"species",
	"immutable_id",
	"_alexandria_charges",
	"_alexandria_magnetic_moments",
	"_alexandria_forces",
	"_alexandria_scan_forces",
	"_alexandria_scan_charges",
	"_alexandria_scan_magnetic_moments",
	"_nmd_dft_quantities",
	"_nmd_files",
	"_nmd_dft_geometries",
	"_mpdd_descriptors",
	"_mpdd_poscar",
)

// mergeURLs overlays configured provider URLs on the built-in table.
func mergeURLs(overrides map[string][]string) map[string][]string {
	urls := maps.Clone(ProviderURLs)
	for p, list := range overrides {
		urls[p] = slices.Clone(list)
	}
	return urls
}

// resolveProviders returns the requested providers sorted and deduplicated,
// or def when none are given.
func resolveProviders(requested, def []string) []string {
	var out []string
	for _, p := range requested {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		out = slices.Clone(def)
	}
	slices.Sort(out)
	return slices.Compact(out)
}
