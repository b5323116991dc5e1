// Package pricing estimates the cost of a fetch call in RMB and photons.
package pricing

import (
	"fmt"
	"math"
)

// PhotonRMB is the price of one photon.
const PhotonRMB = 0.01

// Rule is a base price plus a price per requested item.
type Rule struct {
	Base    float64
	PerItem float64
}

var (
	optimadeRule = Rule{Base: 0.088, PerItem: 0.0088}
	bohriumRule  = Rule{Base: 0.068, PerItem: 0.0068}
	openlamRule  = Rule{Base: 0.058, PerItem: 0.0058}
)

// rules maps tool names to their price rule. MOFdb is billed like Bohrium.
var rules = map[string]Rule{
	"fetch_structures_with_filter":  optimadeRule,
	"fetch_structures_with_spg":     optimadeRule,
	"fetch_structures_with_bandgap": optimadeRule,
	"fetch_bohrium_crystals":        bohriumRule,
	"fetch_mofs":                    bohriumRule,
	"fetch_openlam_structures":      openlamRule,
}

// Quote is the estimated cost of one call.
type Quote struct {
	Tool     string
	NResults int
	RMB      float64
	Photons  int
}

// Estimate prices a call to tool asking for nResults items. Fewer than one
// item is billed as one. Photons round up.
func Estimate(tool string, nResults int) (Quote, error) {
	rule, ok := rules[tool]
	if !ok {
		return Quote{}, fmt.Errorf("unsupported tool for pricing: %s", tool)
	}
	if nResults < 1 {
		nResults = 1
	}

	rmb := rule.Base + float64(nResults)*rule.PerItem
	// Round away float noise before taking the ceiling, so 0.22 RMB is 22 photons.
	photons := math.Ceil(math.Round(rmb/PhotonRMB*1e6) / 1e6)

	return Quote{
		Tool:     tool,
		NResults: nResults,
		RMB:      rmb,
		Photons:  int(photons),
	}, nil
}
