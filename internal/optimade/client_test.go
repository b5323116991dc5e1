package optimade

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/olgasafonova/materials-db-mcp-server/internal/base"
	apierrors "github.com/olgasafonova/materials-db-mcp-server/internal/errors"
	"github.com/olgasafonova/materials-db-mcp-server/internal/output"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
	)
}

// structureJSON is a rock salt entry in the OPTIMADE structures format.
func structureJSON(id string) string {
	return fmt.Sprintf(`{"id":%q,"type":"structures","attributes":{`+
		`"chemical_formula_reduced":"ClNa",`+
		`"immutable_id":"imm-%s",`+
		`"lattice_vectors":[[4.0,0,0],[0,4.0,0],[0,0,4.0]],`+
		`"species_at_sites":["Na","Cl"],`+
		`"cartesian_site_positions":[[0,0,0],[2.0,2.0,2.0]],`+
		`"species":[{"name":"Na","chemical_symbols":["Na"],"concentration":[1.0]},`+
		`{"name":"Cl","chemical_symbols":["Cl"],"concentration":[1.0]}]}}`, id, id)
}

func record(t *testing.T, doc string) output.Record {
	t.Helper()
	var rec output.Record
	require.NoError(t, json.Unmarshal([]byte(doc), &rec))
	return rec
}

// fakeFederation serves /<set>/v1/structures from fixed record sets, two
// records per page, and remembers the filter each set received.
type fakeFederation struct {
	*httptest.Server
	mu      sync.Mutex
	filters map[string]string
	limits  map[string]string
	hits    map[string]int
}

func newFakeFederation(t *testing.T, sets map[string][]string) *fakeFederation {
	t.Helper()
	f := &fakeFederation{filters: map[string]string{}, limits: map[string]string{}, hits: map[string]int{}}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		set, ok := strings.CutSuffix(r.URL.Path, "/v1/structures")
		if !ok {
			http.NotFound(w, r)
			return
		}
		set = strings.TrimPrefix(set, "/")
		ids, ok := sets[set]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"errors":[{"detail":"unknown database"}]}`))
			return
		}

		q := r.URL.Query()
		f.mu.Lock()
		f.hits[set]++
		if q.Has("filter") {
			f.filters[set] = q.Get("filter")
			f.limits[set] = q.Get("page_limit")
		}
		f.mu.Unlock()

		offset, _ := strconv.Atoi(q.Get("page_offset"))
		end := min(offset+2, len(ids))
		docs := make([]string, 0, 2)
		for _, id := range ids[offset:end] {
			docs = append(docs, structureJSON(id))
		}
		next := "null"
		if end < len(ids) {
			next = fmt.Sprintf(`"http://%s/%s/v1/structures?page_offset=%d"`, r.Host, set, end)
		}
		w.Header().Set("Content-Type", "application/vnd.api+json")
		_, _ = fmt.Fprintf(w, `{"data":[%s],"links":{"next":%s},"meta":{"data_returned":%d}}`,
			strings.Join(docs, ","), next, len(ids))
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeFederation) filter(set string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.filters[set]
}

func (f *fakeFederation) requests(set string) (hits int, pageLimit string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[set], f.limits[set]
}

func newTestClient(t *testing.T, providers map[string][]string) *Client {
	t.Helper()
	c := NewClient(Config{
		OutputDir: filepath.Join(t.TempDir(), DefaultOutputDir),
		Providers: providers,
	}, base.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	t.Cleanup(c.Close)
	return c
}

func readManifest(t *testing.T, dir string) map[string]any {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, output.ManifestName))
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

func structureFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		if e.Name() != output.ManifestName {
			names = append(names, e.Name())
		}
	}
	return names
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient(Config{})
	defer c.Close()

	assert.Equal(t, DefaultOutputDir, c.OutputDir())
	assert.Equal(t, DefaultMaxConcurrency, c.maxConcurrency)
	assert.Equal(t, ProviderURLs["oqmd"], c.URLs("oqmd"))
	assert.Equal(t, "optimade.oqmd", c.upstreams["oqmd"].CircuitBreaker.Name())
	assert.Same(t, c.HTTPClient, c.upstreams["oqmd"].HTTPClient, "providers share one transport")
}

func TestStructuresURL(t *testing.T) {
	got := structuresURL("https://oqmd.org/optimade/", `elements HAS "Si"`, 3)

	assert.Equal(t, "https://oqmd.org/optimade/v1/structures?filter=elements+HAS+%22Si%22&page_limit=3&response_format=json", got)
}

func TestNextLink(t *testing.T) {
	tests := []struct {
		doc, want string
	}{
		{`{"links":{"next":"http://x/next"}}`, "http://x/next"},
		{`{"links":{"next":{"href":"http://x/obj"}}}`, "http://x/obj"},
		{`{"links":{"next":null}}`, ""},
		{`{"data":[]}`, ""},
	}
	for _, tt := range tests {
		var p structuresPage
		require.NoError(t, json.Unmarshal([]byte(tt.doc), &p))
		assert.Equal(t, tt.want, p.nextLink(), tt.doc)
	}
}

func TestGet_FollowsNextLinks(t *testing.T) {
	fed := newFakeFederation(t, map[string][]string{"a": {"a1", "a2", "a3", "a4", "a5"}})
	c := newTestClient(t, map[string][]string{"alpha": {fed.URL + "/a/"}})

	res := c.Get(t.Context(), "alpha", "nelements=2", 3)

	require.Len(t, res.URLs, 1)
	assert.NoError(t, res.URLs[0].Err)
	require.Len(t, res.URLs[0].Data, 3, "trimmed to the per-URL limit")
	assert.Equal(t, "a3", res.URLs[0].Data[2]["id"])
	hits, pageLimit := fed.requests("a")
	assert.Equal(t, 2, hits)
	assert.Equal(t, "3", pageLimit)
	assert.Equal(t, "nelements=2", fed.filter("a"))
}

func TestGet_RecordsPerURLFailures(t *testing.T) {
	fed := newFakeFederation(t, map[string][]string{"a": {"a1"}})
	c := newTestClient(t, map[string][]string{"alpha": {fed.URL + "/a", fed.URL + "/missing"}})

	res := c.Get(t.Context(), "alpha", "nelements=2", 2)

	require.Len(t, res.URLs, 2)
	assert.NoError(t, res.URLs[0].Err)
	assert.Len(t, res.URLs[0].Data, 1)

	assert.Empty(t, res.URLs[1].Data)
	var apiErr *apierrors.APIError
	require.ErrorAs(t, res.URLs[1].Err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)

	assert.Equal(t, ProviderCounts{Provider: "alpha", URLs: []URLCount{
		{URL: fed.URL + "/a", N: 1},
		{URL: fed.URL + "/missing", N: 0},
	}}, res.Counts())
}

func TestFetch_ProviderWithoutURLs(t *testing.T) {
	fed := newFakeFederation(t, map[string][]string{"a": {"a1"}})
	c := newTestClient(t, map[string][]string{"alpha": {fed.URL + "/a"}})

	results := c.Fetch(t.Context(), []ProviderFilter{
		{Provider: "nowhere", Filter: "x=1"},
		{Provider: "alpha", Filter: "y=2"},
	}, 2)

	require.Len(t, results, 2)
	assert.Equal(t, "nowhere", results[0].Provider)
	assert.Empty(t, results[0].URLs)
	assert.Len(t, results[1].URLs, 1)
	assert.Equal(t, "y=2", fed.filter("a"))
}

func TestToStructure(t *testing.T) {
	s, err := toStructure(record(t, structureJSON("x")))
	require.NoError(t, err)

	require.Len(t, s.Sites, 2)
	assert.Equal(t, "Cl", s.Sites[1].Symbol)
	for i := 0; i < 3; i++ {
		assert.InDelta(t, 0.5, s.Sites[1].Frac[i], 1e-12)
	}

	text, err := s.Text()
	require.NoError(t, err)
	assert.Contains(t, text, "data_ClNa\n")
}

func TestToStructure_DisorderedSpecies(t *testing.T) {
	rec := record(t, `{"id":"d","attributes":{
		"lattice_vectors":[[3,0,0],[0,3,0],[0,0,3]],
		"species_at_sites":["FeCo","O"],
		"cartesian_site_positions":[[0,0,0],[1.5,1.5,1.5]],
		"species":[
			{"name":"FeCo","chemical_symbols":["Fe","Co"],"concentration":[0.5,0.5]},
			{"name":"O","chemical_symbols":["O","vacancy"],"concentration":[0.9,0.1]}]}}`)

	s, err := toStructure(rec)
	require.NoError(t, err)

	require.Len(t, s.Sites, 3)
	assert.Equal(t, "Fe", s.Sites[0].Symbol)
	assert.Equal(t, 0.5, s.Sites[0].Occupancy)
	assert.Equal(t, "Co", s.Sites[1].Symbol)
	assert.Equal(t, "O", s.Sites[2].Symbol)
	assert.Equal(t, 0.9, s.Sites[2].Occupancy)
}

func TestToStructure_Errors(t *testing.T) {
	tests := []struct {
		name, doc, want string
	}{
		{"no attributes", `{"id":"x"}`, "no attributes"},
		{"non-periodic lattice", `{"attributes":{"lattice_vectors":[[1,0,0],[0,1,0],[null,null,null]]}}`, "lattice_vectors[2]"},
		{"short lattice", `{"attributes":{"lattice_vectors":[[1,0,0]]}}`, "3 rows"},
		{"count mismatch", `{"attributes":{"lattice_vectors":[[1,0,0],[0,1,0],[0,0,1]],"species_at_sites":["Na"],"cartesian_site_positions":[]}}`, "does not match"},
		{"no sites", `{"attributes":{"lattice_vectors":[[1,0,0],[0,1,0],[0,0,1]],"species_at_sites":[],"cartesian_site_positions":[]}}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := toStructure(record(t, tt.doc))
			if tt.want == "" {
				require.NoError(t, err)
				_, err = s.Text()
				assert.EqualError(t, err, "CIF content is empty")
				return
			}
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestFetchWithFilterMCP_PerProvider(t *testing.T) {
	fed := newFakeFederation(t, map[string][]string{
		"a": {"a1", "a2", "a3"},
		"b": {"b1"},
		"c": {"c1", "c2"},
	})
	c := newTestClient(t, map[string][]string{
		"alpha": {fed.URL + "/a", fed.URL + "/b"},
		"beta":  {fed.URL + "/c"},
	})

	res, err := c.FetchWithFilterMCP(t.Context(), FetchFilterArgs{
		Filter:    `chemical_formula_reduced="NaCl"`,
		Providers: []string{"beta", "alpha"},
	})
	require.NoError(t, err)

	assert.Equal(t, output.CodeSuccess, res.Code)
	assert.Equal(t, 5, res.NFound, "two per URL, b has only one")
	assert.Len(t, res.CleanedStructures, 5)
	assert.Equal(t, `chemical_formula_reduced="ClNa"`, fed.filter("c"), "formula normalized to Hill order")
	assert.True(t, strings.HasPrefix(filepath.Base(res.OutputDir), "chemical_formula_reducedClNa_"))

	files := structureFiles(t, res.OutputDir)
	assert.Len(t, files, 5)
	prefix := ProviderName(fed.URL + "/a")
	assert.Contains(t, files, prefix+"_a1_0.cif")
	assert.Contains(t, files, prefix+"_a2_1.cif")

	first := res.CleanedStructures[0]
	assert.Equal(t, fed.URL+"/a", first["provider_url"])
	attrs := first["attributes"].(map[string]any)
	assert.Equal(t, "ClNa", attrs["chemical_formula_reduced"])
	assert.NotContains(t, attrs, "cartesian_site_positions")
	assert.NotContains(t, attrs, "immutable_id")

	m := readManifest(t, res.OutputDir)
	assert.Equal(t, "raw_filter", m["mode"])
	assert.Equal(t, `chemical_formula_reduced="ClNa"`, m["filter"])
	assert.Equal(t, []any{"alpha", "beta"}, m["providers_requested"])
	assert.Len(t, m["providers_seen"], 3)
	assert.Equal(t, "per_provider", m["quota_mode"])
	assert.EqualValues(t, 5, m["n_found"])
	assert.EqualValues(t, 2, m["n_results"])
	assert.Empty(t, m["warnings"])
	assert.NotContains(t, m, "plan")
	assert.NotContains(t, m, "spg_number")
}

func TestFetchWithFilterMCP_Fair(t *testing.T) {
	fed := newFakeFederation(t, map[string][]string{
		"a": {"a1", "a2", "a3"},
		"b": {"b1"},
		"c": {"c1", "c2"},
	})
	c := newTestClient(t, map[string][]string{
		"alpha": {fed.URL + "/a", fed.URL + "/b"},
		"beta":  {fed.URL + "/c"},
	})

	res, err := c.FetchWithFilterMCP(t.Context(), FetchFilterArgs{
		Filter:    "nelements=2",
		NResults:  3,
		AsFormat:  "json",
		Providers: []string{"alpha", "beta"},
		QuotaMode: "fair",
	})
	require.NoError(t, err)

	assert.Equal(t, 3, res.NFound)
	files := structureFiles(t, res.OutputDir)
	slices.Sort(files)
	assert.Equal(t, []string{
		ProviderName(fed.URL+"/a") + "_a1_0.json",
		ProviderName(fed.URL+"/b") + "_b1_0.json",
		ProviderName(fed.URL+"/c") + "_c1_0.json",
	}, files)

	data, err := os.ReadFile(filepath.Join(res.OutputDir, files[0]))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"cartesian_site_positions"`, "JSON files keep the full record")

	m := readManifest(t, res.OutputDir)
	assert.Equal(t, "fair", m["quota_mode"])
	assert.Contains(t, m, "plan")
	assert.Contains(t, m, "stats")
	assert.Empty(t, m["warnings"])
}

func TestFetchWithFilterMCP_FairUnderfilled(t *testing.T) {
	fed := newFakeFederation(t, map[string][]string{"a": {"a1", "a1", "a2"}})
	c := newTestClient(t, map[string][]string{"alpha": {fed.URL + "/a"}})

	res, err := c.FetchWithFilterMCP(t.Context(), FetchFilterArgs{
		Filter:    "nelements=2",
		NResults:  3,
		Providers: []string{"alpha"},
		QuotaMode: "fair",
	})
	require.NoError(t, err)

	assert.Equal(t, 2, res.NFound, "duplicate id saved once")
	m := readManifest(t, res.OutputDir)
	warnings := m["warnings"].([]any)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "underfilled quota")
	assert.Contains(t, warnings[0], "wanted 3, saved 2")
}

func TestFetchWithFilterMCP_EmptyFilter(t *testing.T) {
	c := newTestClient(t, nil)

	res, err := c.FetchWithFilterMCP(t.Context(), FetchFilterArgs{Filter: "   "})
	require.NoError(t, err)

	assert.Equal(t, output.CodeNoQuery, res.Code)
	assert.Equal(t, 0, res.NFound)
	assert.Empty(t, res.OutputDir)
	_, statErr := os.Stat(c.OutputDir())
	assert.True(t, os.IsNotExist(statErr), "no request directory is created")
}

func TestFetchWithFilterMCP_UnreachableProviders(t *testing.T) {
	fed := newFakeFederation(t, map[string][]string{})
	c := newTestClient(t, map[string][]string{"alpha": {fed.URL + "/gone"}})

	res, err := c.FetchWithFilterMCP(t.Context(), FetchFilterArgs{Filter: "nelements=1", Providers: []string{"alpha", "nowhere"}})
	require.NoError(t, err)

	assert.Equal(t, output.CodeSuccess, res.Code)
	assert.Equal(t, 0, res.NFound)
	assert.NotNil(t, res.CleanedStructures)
	m := readManifest(t, res.OutputDir)
	assert.Empty(t, m["files"])
}

func TestFetchWithSPGMCP(t *testing.T) {
	fed := newFakeFederation(t, map[string][]string{"o": {"o1", "o2", "o3", "o4"}, "m": {"m1"}})
	c := newTestClient(t, map[string][]string{
		"oqmd": {fed.URL + "/o"},
		"mp":   {fed.URL + "/m"},
	})

	res, err := c.FetchWithSPGMCP(t.Context(), FetchSPGArgs{
		BaseFilter: `elements HAS "Na"`,
		SPGNumber:  225,
		Providers:  []string{"oqmd", "mp"},
	})
	require.NoError(t, err)

	assert.Equal(t, 3, res.NFound, "default n_results is 3")
	assert.Equal(t, `(elements HAS "Na") AND (_oqmd_spacegroup="Fm-3m")`, fed.filter("o"))
	assert.Empty(t, fed.filter("m"), "mp has no space-group field")
	assert.True(t, strings.HasPrefix(filepath.Base(res.OutputDir), "elements_HAS_Na_AND_spg225_"))

	m := readManifest(t, res.OutputDir)
	assert.Equal(t, "space_group", m["mode"])
	assert.Equal(t, `elements HAS "Na"`, m["base_filter"])
	assert.EqualValues(t, 225, m["spg_number"])
	assert.Equal(t, map[string]any{"oqmd": `(elements HAS "Na") AND (_oqmd_spacegroup="Fm-3m")`}, m["per_provider_filters"])
}

func TestFetchWithSPGMCP_NoClause(t *testing.T) {
	c := newTestClient(t, nil)

	res, err := c.FetchWithSPGMCP(t.Context(), FetchSPGArgs{SPGNumber: 14, Providers: []string{"mp"}})
	require.NoError(t, err)

	assert.Equal(t, output.CodeNoQuery, res.Code)
	assert.Empty(t, res.OutputDir)
}

func TestFetchWithBandGapMCP(t *testing.T) {
	fed := newFakeFederation(t, map[string][]string{"o": {"o1"}, "x": {"x1", "x2"}})
	c := newTestClient(t, map[string][]string{
		"oqmd": {fed.URL + "/o"},
		"odbx": {fed.URL + "/x"},
	})
	lo, hi := 1.0, 3.5

	res, err := c.FetchWithBandGapMCP(t.Context(), FetchBandGapArgs{
		MinBG:     &lo,
		MaxBG:     &hi,
		Providers: []string{"oqmd", "odbx"},
	})
	require.NoError(t, err)

	assert.Equal(t, 3, res.NFound)
	assert.Equal(t, "_oqmd_band_gap>=1.0 AND _oqmd_band_gap<=3.5", fed.filter("o"))
	assert.Equal(t, "_gnome_bandgap>=1.0 AND _gnome_bandgap<=3.5", fed.filter("x"))
	assert.True(t, strings.HasPrefix(filepath.Base(res.OutputDir), "AND_bandgap10-35_"), filepath.Base(res.OutputDir))

	m := readManifest(t, res.OutputDir)
	assert.Equal(t, "band_gap", m["mode"])
	assert.EqualValues(t, 1.0, m["band_gap_min"])
	assert.EqualValues(t, 3.5, m["band_gap_max"])
}

func TestFetchWithBandGapMCP_NoBounds(t *testing.T) {
	c := newTestClient(t, nil)

	res, err := c.FetchWithBandGapMCP(t.Context(), FetchBandGapArgs{})
	require.NoError(t, err)

	assert.Equal(t, output.CodeNoQuery, res.Code)
}

func TestSaveStructures_CIFFailureIsAWarning(t *testing.T) {
	c := newTestClient(t, nil)
	dir := t.TempDir()
	broken := record(t, `{"id":"bad","attributes":{"lattice_vectors":[[1,0,0]]}}`)
	good := record(t, structureJSON("good"))

	results := []ProviderResult{{
		Provider: "p",
		URLs: []URLResult{
			{URL: "https://one.example/optimade", Data: []output.Record{broken, good}},
			{URL: "https://two.example/", Data: []output.Record{record(t, structureJSON("good"))}},
		},
	}}
	plan := PerURLPlan([]ProviderCounts{results[0].Counts()}, 2)

	report := c.SaveStructures(results, dir, output.FormatCIF, plan, false)

	assert.Equal(t, []string{filepath.Join(dir, "one_example_optimade_good_0.cif")}, report.Files)
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "Failed to save structure from one_example_optimade #bad")
	assert.Equal(t, []string{"one_example_optimade", "two_example"}, report.ProvidersSeen)
	assert.Len(t, report.Cleaned, 1, "same id from the second URL is skipped")
}

func TestValidation(t *testing.T) {
	c := newTestClient(t, nil)
	ctx := t.Context()
	lo, hi := 3.0, 1.0

	tests := []struct {
		name string
		call func() error
	}{
		{"bad quota mode", func() error {
			_, err := c.FetchWithFilterMCP(ctx, FetchFilterArgs{Filter: "x=1", QuotaMode: "greedy"})
			return err
		}},
		{"bad format", func() error {
			_, err := c.FetchWithFilterMCP(ctx, FetchFilterArgs{Filter: "x=1", AsFormat: "poscar"})
			return err
		}},
		{"negative n_results", func() error {
			_, err := c.FetchWithFilterMCP(ctx, FetchFilterArgs{Filter: "x=1", NResults: -1})
			return err
		}},
		{"spg out of range", func() error {
			_, err := c.FetchWithSPGMCP(ctx, FetchSPGArgs{SPGNumber: 231})
			return err
		}},
		{"missing spg", func() error {
			_, err := c.FetchWithSPGMCP(ctx, FetchSPGArgs{})
			return err
		}},
		{"inverted band gap", func() error {
			_, err := c.FetchWithBandGapMCP(ctx, FetchBandGapArgs{MinBG: &lo, MaxBG: &hi})
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			assert.True(t, apierrors.IsValidation(err), "got %v", err)
		})
	}
}
