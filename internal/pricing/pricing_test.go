package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimate(t *testing.T) {
	tests := []struct {
		tool    string
		n       int
		rmb     float64
		photons int
	}{
		{"fetch_structures_with_filter", 1, 0.0968, 10},
		{"fetch_structures_with_spg", 10, 0.176, 18},
		{"fetch_structures_with_bandgap", 50, 0.528, 53},
		{"fetch_structures_with_filter", 15, 0.22, 22},
		{"fetch_bohrium_crystals", 1, 0.0748, 8},
		{"fetch_bohrium_crystals", 10, 0.136, 14},
		{"fetch_bohrium_crystals", 50, 0.408, 41},
		{"fetch_mofs", 10, 0.136, 14},
		{"fetch_openlam_structures", 1, 0.0638, 7},
		{"fetch_openlam_structures", 10, 0.116, 12},
		{"fetch_openlam_structures", 50, 0.348, 35},
	}

	for _, tt := range tests {
		q, err := Estimate(tt.tool, tt.n)
		require.NoError(t, err, tt.tool)
		assert.InDelta(t, tt.rmb, q.RMB, 1e-9, "%s n=%d", tt.tool, tt.n)
		assert.Equal(t, tt.photons, q.Photons, "%s n=%d", tt.tool, tt.n)
	}
}

func TestEstimate_MinimumOneItem(t *testing.T) {
	zero, err := Estimate("fetch_mofs", 0)
	require.NoError(t, err)
	one, err := Estimate("fetch_mofs", 1)
	require.NoError(t, err)

	assert.Equal(t, one.Photons, zero.Photons)
	assert.Equal(t, 1, zero.NResults)
}

func TestEstimate_UnknownTool(t *testing.T) {
	_, err := Estimate("fetch_everything", 3)
	assert.EqualError(t, err, "unsupported tool for pricing: fetch_everything")
}
