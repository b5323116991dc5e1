// Package chem provides the small amount of chemistry the adapters need:
// formula parsing, Hill ordering and space-group symbol tables.
package chem

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var elementSet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(elements))
	for _, e := range elements {
		set[e] = struct{}{}
	}
	return set
}()

var elements = strings.Fields(`
H He Li Be B C N O F Ne Na Mg Al Si P S Cl Ar K Ca Sc Ti V Cr Mn Fe Co Ni Cu Zn
Ga Ge As Se Br Kr Rb Sr Y Zr Nb Mo Tc Ru Rh Pd Ag Cd In Sn Sb Te I Xe Cs Ba La Ce
Pr Nd Pm Sm Eu Gd Tb Dy Ho Er Tm Yb Lu Hf Ta W Re Os Ir Pt Au Hg Tl Pb Bi Po At Rn
Fr Ra Ac Th Pa U Np Pu Am Cm Bk Cf Es Fm Md No Lr Rf Db Sg Bh Hs Mt Ds Rg Cn Nh Fl
Mc Lv Ts Og D T`)

// IsElement reports whether sym is a known element symbol.
func IsElement(sym string) bool {
	_, ok := elementSet[sym]
	return ok
}

// Composition maps element symbols to amounts.
type Composition map[string]float64

type formulaParser struct {
	s   string
	pos int
}

// ParseFormula parses formulas such as "Fe2O3", "Ca(OH)2", "K4[Fe(CN)6]" or
// "Li0.5CoO2". Whitespace is ignored.
func ParseFormula(s string) (Composition, error) {
	compact := strings.Join(strings.Fields(s), "")
	if compact == "" {
		return nil, fmt.Errorf("empty formula")
	}
	p := &formulaParser{s: compact}
	comp, err := p.parseGroup(0)
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.s) {
		return nil, fmt.Errorf("unexpected %q at position %d in formula %q", p.s[p.pos], p.pos, s)
	}
	if len(comp) == 0 {
		return nil, fmt.Errorf("no elements in formula %q", s)
	}
	return comp, nil
}

func (p *formulaParser) parseGroup(depth int) (Composition, error) {
	comp := Composition{}
	for p.pos < len(p.s) {
		c := p.s[p.pos]
		switch {
		case c == '(' || c == '[':
			closer := byte(')')
			if c == '[' {
				closer = ']'
			}
			p.pos++
			inner, err := p.parseGroup(depth + 1)
			if err != nil {
				return nil, err
			}
			if p.pos >= len(p.s) || p.s[p.pos] != closer {
				return nil, fmt.Errorf("unbalanced %q in formula %q", string(c), p.s)
			}
			p.pos++
			n, err := p.parseAmount()
			if err != nil {
				return nil, err
			}
			for el, amt := range inner {
				comp[el] += amt * n
			}
		case c == ')' || c == ']':
			if depth == 0 {
				return nil, fmt.Errorf("unbalanced %q in formula %q", string(c), p.s)
			}
			return comp, nil
		case c >= 'A' && c <= 'Z':
			start := p.pos
			p.pos++
			for p.pos < len(p.s) && p.s[p.pos] >= 'a' && p.s[p.pos] <= 'z' {
				p.pos++
			}
			sym := p.s[start:p.pos]
			if !IsElement(sym) {
				return nil, fmt.Errorf("unknown element %q in formula %q", sym, p.s)
			}
			n, err := p.parseAmount()
			if err != nil {
				return nil, err
			}
			comp[sym] += n
		default:
			return nil, fmt.Errorf("unexpected %q at position %d in formula %q", string(c), p.pos, p.s)
		}
	}
	return comp, nil
}

func (p *formulaParser) parseAmount() (float64, error) {
	start := p.pos
	for p.pos < len(p.s) && (p.s[p.pos] >= '0' && p.s[p.pos] <= '9' || p.s[p.pos] == '.') {
		p.pos++
	}
	if start == p.pos {
		return 1, nil
	}
	n, err := strconv.ParseFloat(p.s[start:p.pos], 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid amount %q in formula %q", p.s[start:p.pos], p.s)
	}
	return n, nil
}

// Reduced divides integral amounts by their greatest common divisor.
// Compositions with fractional amounts are returned unchanged.
func (c Composition) Reduced() Composition {
	g := 0
	for _, amt := range c {
		if amt != math.Trunc(amt) {
			return c
		}
		g = gcd(g, int(amt))
	}
	if g <= 1 {
		return c
	}
	out := make(Composition, len(c))
	for el, amt := range c {
		out[el] = amt / float64(g)
	}
	return out
}

// Hill renders the composition in Hill order: C then H when carbon is
// present, everything else alphabetically. Amounts of 1 are omitted.
func (c Composition) Hill() string {
	syms := make([]string, 0, len(c))
	for el := range c {
		syms = append(syms, el)
	}
	_, hasC := c["C"]
	sort.Slice(syms, func(i, j int) bool {
		ri, rj := hillRank(syms[i], hasC), hillRank(syms[j], hasC)
		if ri != rj {
			return ri < rj
		}
		return syms[i] < syms[j]
	})

	var b strings.Builder
	for _, el := range syms {
		b.WriteString(el)
		b.WriteString(FormatAmount(c[el]))
	}
	return b.String()
}

func hillRank(el string, hasC bool) int {
	if !hasC {
		return 2
	}
	switch el {
	case "C":
		return 0
	case "H":
		return 1
	}
	return 2
}

// FormatAmount renders an element amount, empty for 1.
func FormatAmount(n float64) string {
	if n == 1 {
		return ""
	}
	if n == math.Trunc(n) {
		return strconv.FormatInt(int64(n), 10)
	}
	return strconv.FormatFloat(n, 'f', -1, 64)
}

// HillFormula parses s and returns its reduced Hill formula.
func HillFormula(s string) (string, error) {
	comp, err := ParseFormula(s)
	if err != nil {
		return "", err
	}
	return comp.Reduced().Hill(), nil
}

var reducedFormulaClause = regexp.MustCompile(`(?i)\bchemical_formula_reduced\s*=\s*(?:"([^"]+)"|'([^']+)')`)

// NormalizeReducedFormulaClauses rewrites every chemical_formula_reduced
// equality in an OPTIMADE filter to the double-quoted Hill form. Clauses whose
// formula does not parse are left untouched.
func NormalizeReducedFormulaClauses(filter string) string {
	if filter == "" {
		return filter
	}
	return reducedFormulaClause.ReplaceAllStringFunc(filter, func(match string) string {
		m := reducedFormulaClause.FindStringSubmatch(match)
		raw := m[1]
		if raw == "" {
			raw = m[2]
		}
		hill, err := HillFormula(raw)
		if err != nil {
			return match
		}
		return `chemical_formula_reduced="` + hill + `"`
	})
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	if a < 0 {
		return -a
	}
	return a
}
