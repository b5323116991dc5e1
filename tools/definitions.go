package tools

// AllTools contains all tool specifications for the materials database MCP server.
// Descriptions follow a structured format for LLM tool selection:
// - USE WHEN: Natural language triggers
// - NOT FOR: Disambiguation from similar tools
// - PARAMETERS: Key arguments with defaults
// - RETURNS: What the tool returns
//
// Every tool writes a request folder under its database output directory,
// so none of them is read-only or idempotent.
var AllTools = []ToolSpec{
	// ==========================================================================
	// BOHRIUM
	// ==========================================================================
	{
		Name:     "fetch_bohrium_crystals",
		Method:   "FetchCrystals",
		Title:    "Fetch Bohrium Crystals",
		Category: "crystals",
		Database: "bohrium",
		Description: `Fetch crystal structures from the Bohrium public crystal database and save them as CIF or JSON files.

USE WHEN: User asks "find crystals of Fe2O3", "get structures containing Li and O", "crystals in space group 225 with a band gap between 1 and 3 eV".

NOT FOR: Metal-organic frameworks (use fetch_mofs) or cross-database OPTIMADE queries (use fetch_structures_with_filter).

PARAMETERS:
- formula: Formula keyword (optional)
- elements: Elements that must be present (optional)
- match_mode: 0 fuzzy, 1 exact (default 1, only with formula or elements)
- spacegroup_number: Space group 1-230 (optional)
- atom_count_range, predicted_formation_energy_range, band_gap_range: [min, max] strings (optional)
- n_results: Max structures (default 10)
- output_formats: cif and/or json (default [cif])

RETURNS: Output directory, cleaned metadata for up to 30 structures, n_found, code and message.`,
		OpenWorld: true,
	},

	// ==========================================================================
	// MOFDB
	// ==========================================================================
	{
		Name:     "fetch_mofs",
		Method:   "FetchMOFs",
		Title:    "Fetch MOFs",
		Category: "mofs",
		Database: "mofdb",
		Description: `Fetch metal-organic frameworks from MOFdb and save them as CIF or JSON files.

USE WHEN: User asks "get HKUST-1", "MOFs with void fraction above 0.5", "frameworks from CoREMOF 2019 with pore diameter 5-8 Angstrom".

NOT FOR: Inorganic crystals (use fetch_bohrium_crystals or the OPTIMADE tools).

PARAMETERS:
- mofid, mofkey, name, database: Identity filters (optional)
- vf_min/vf_max, lcd_min/lcd_max, pld_min/pld_max: Pore geometry ranges (optional)
- sa_m2g_min/sa_m2g_max, sa_m2cm3_min/sa_m2cm3_max: Surface area ranges (optional)
- n_results: Max MOFs (default 10)
- output_formats: cif and/or json (default [cif])

RETURNS: Output directory, cleaned metadata for up to 30 MOFs, n_found, code and message.`,
		OpenWorld: true,
	},

	// ==========================================================================
	// OPENLAM
	// ==========================================================================
	{
		Name:     "fetch_openlam_structures",
		Method:   "FetchStructures",
		Title:    "Fetch OpenLAM Structures",
		Category: "crystals",
		Database: "openlam",
		Description: `Fetch computed structures from the OpenLAM structure database and save them as CIF or JSON files.

USE WHEN: User asks "OpenLAM structures of LiFePO4", "structures with energy below -50 eV", "structures submitted since January 2024".

NOT FOR: Experimental crystals (use the OPTIMADE tools with cod or tcod).

PARAMETERS:
- formula: Chemical formula (optional)
- min_energy/max_energy: Energy range in eV (optional)
- min_submission_time/max_submission_time: ISO 8601 UTC bounds (optional)
- n_results: Max structures (default 10)
- output_formats: cif and/or json (default [cif])

RETURNS: Output directory, cleaned metadata without site lists, n_found, code and message.`,
		OpenWorld: true,
	},

	// ==========================================================================
	// OPTIMADE FEDERATION
	// ==========================================================================
	{
		Name:     "fetch_structures_with_filter",
		Method:   "FetchWithFilter",
		Title:    "Fetch OPTIMADE Structures by Filter",
		Category: "federation",
		Database: "optimade",
		Description: `Run one raw OPTIMADE filter across the OPTIMADE provider federation and save matching structures.

USE WHEN: User gives an OPTIMADE filter or asks "structures with elements HAS ALL Si, O from all providers", "chemical_formula_reduced=O2Si everywhere".

NOT FOR: Space group searches (use fetch_structures_with_spg) or band gap ranges (use fetch_structures_with_bandgap), since those fields are provider specific.

PARAMETERS:
- filter: OPTIMADE filter string (required)
- as_format: cif or json (default cif)
- n_results: Per-URL limit, or global target with quota_mode=fair (default 2)
- providers: Provider names (default all)
- quota_mode: per_provider or fair (default per_provider)

RETURNS: Output directory, cleaned metadata for up to 100 structures, n_found, code and message. A summary.json manifest records files and warnings.`,
		OpenWorld: true,
	},
	{
		Name:     "fetch_structures_with_spg",
		Method:   "FetchWithSPG",
		Title:    "Fetch OPTIMADE Structures by Space Group",
		Category: "federation",
		Database: "optimade",
		Description: `Fetch structures with a given space group from the OPTIMADE providers that expose one, using each provider's own field.

USE WHEN: User asks "rock-salt structures (space group 225)", "Na compounds in P2_1/c from OQMD and COD".

NOT FOR: Generic filters without a space group (use fetch_structures_with_filter).

PARAMETERS:
- spg_number: Space group 1-230 (required)
- base_filter: Extra OPTIMADE filter ANDed with the space group clause (optional)
- as_format: cif or json (default cif)
- n_results: Per-URL limit, or global target with quota_mode=fair (default 3)
- providers: alexandria, cod, mpdd, nmd, odbx, oqmd, tcod (default all)
- quota_mode: per_provider or fair (default per_provider)

RETURNS: Output directory, cleaned metadata for up to 100 structures, n_found, code and message.`,
		OpenWorld: true,
	},
	{
		Name:     "fetch_structures_with_bandgap",
		Method:   "FetchWithBandGap",
		Title:    "Fetch OPTIMADE Structures by Band Gap",
		Category: "federation",
		Database: "optimade",
		Description: `Fetch structures within a band gap range from the OPTIMADE providers that expose one, using each provider's own field.

USE WHEN: User asks "semiconductors with a band gap between 1 and 3 eV", "oxides with band gap above 4 eV".

NOT FOR: Bohrium crystals with band gap ranges (use fetch_bohrium_crystals).

PARAMETERS:
- min_bg/max_bg: Band gap bounds in eV, either may be open (optional)
- base_filter: Extra OPTIMADE filter (optional)
- as_format: cif or json (default cif)
- n_results: Per-URL limit, or global target with quota_mode=fair (default 2)
- providers: alexandria, mcloudarchive, odbx, oqmd, twodmatpedia (default all)
- quota_mode: per_provider or fair (default per_provider)

RETURNS: Output directory, cleaned metadata for up to 100 structures, n_found, code and message.`,
		OpenWorld: true,
	},
}
