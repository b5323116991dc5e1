// Package cif builds P1 CIF text from a lattice and atomic sites.
package cif

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"github.com/olgasafonova/materials-db-mcp-server/internal/chem"
)

// ErrEmpty is returned when a structure has no sites.
var ErrEmpty = errors.New("CIF content is empty")

// Site is one atom (or one species of a disordered site) in fractional coordinates.
type Site struct {
	Symbol    string
	Label     string // optional, generated when empty
	Frac      [3]float64
	Occupancy float64 // 0 is read as 1
}

// Structure is a periodic cell. Lattice rows are the a, b and c vectors in Angstrom.
type Structure struct {
	Lattice [3][3]float64
	Sites   []Site
}

// Parameters are the conventional cell parameters.
type Parameters struct {
	A, B, C            float64
	Alpha, Beta, Gamma float64 // degrees
	Volume             float64
}

// FromCartesian converts Cartesian positions to fractional coordinates.
func FromCartesian(lattice [3][3]float64, species []string, cartesian [][3]float64) (*Structure, error) {
	if len(species) != len(cartesian) {
		return nil, fmt.Errorf("species count %d does not match position count %d", len(species), len(cartesian))
	}
	inv, err := invert(lattice)
	if err != nil {
		return nil, err
	}
	s := &Structure{Lattice: lattice, Sites: make([]Site, len(species))}
	for i, pos := range cartesian {
		var frac [3]float64
		for j := 0; j < 3; j++ {
			frac[j] = pos[0]*inv[0][j] + pos[1]*inv[1][j] + pos[2]*inv[2][j]
			if frac[j] == 0 {
				frac[j] = 0 // no "-0.00000000" in the output
			}
		}
		s.Sites[i] = Site{Symbol: species[i], Frac: frac, Occupancy: 1}
	}
	return s, nil
}

// LatticeParameters derives a, b, c, the angles and the cell volume.
func (s *Structure) LatticeParameters() Parameters {
	a, b, c := s.Lattice[0], s.Lattice[1], s.Lattice[2]
	la, lb, lc := norm(a), norm(b), norm(c)
	return Parameters{
		A:      la,
		B:      lb,
		C:      lc,
		Alpha:  angle(b, c, lb, lc),
		Beta:   angle(a, c, la, lc),
		Gamma:  angle(a, b, la, lb),
		Volume: math.Abs(det(s.Lattice)),
	}
}

// Composition sums site occupancies per element.
func (s *Structure) Composition() chem.Composition {
	comp := chem.Composition{}
	for _, site := range s.Sites {
		comp[site.Symbol] += occupancy(site)
	}
	return comp
}

// Write renders the structure as a P1 CIF.
func (s *Structure) Write(w io.Writer) error {
	if s == nil || len(s.Sites) == 0 {
		return ErrEmpty
	}

	comp := s.Composition()
	reduced := comp.Reduced().Hill()
	z := formulaUnits(comp)
	p := s.LatticeParameters()

	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "# generated by materials-db-mcp-server")
	fmt.Fprintf(bw, "data_%s\n", reduced)
	fmt.Fprintln(bw, "_symmetry_space_group_name_H-M   'P 1'")
	fmt.Fprintf(bw, "_cell_length_a   %.8f\n", p.A)
	fmt.Fprintf(bw, "_cell_length_b   %.8f\n", p.B)
	fmt.Fprintf(bw, "_cell_length_c   %.8f\n", p.C)
	fmt.Fprintf(bw, "_cell_angle_alpha   %.8f\n", p.Alpha)
	fmt.Fprintf(bw, "_cell_angle_beta   %.8f\n", p.Beta)
	fmt.Fprintf(bw, "_cell_angle_gamma   %.8f\n", p.Gamma)
	fmt.Fprintln(bw, "_symmetry_Int_Tables_number   1")
	fmt.Fprintf(bw, "_chemical_formula_structural   %s\n", reduced)
	fmt.Fprintf(bw, "_chemical_formula_sum   '%s'\n", formulaSum(comp))
	fmt.Fprintf(bw, "_cell_volume   %.8f\n", p.Volume)
	fmt.Fprintf(bw, "_cell_formula_units_Z   %d\n", z)
	fmt.Fprintln(bw, "loop_")
	fmt.Fprintln(bw, " _symmetry_equiv_pos_site_id")
	fmt.Fprintln(bw, " _symmetry_equiv_pos_as_xyz")
	fmt.Fprintln(bw, "  1  'x, y, z'")
	fmt.Fprintln(bw, "loop_")
	fmt.Fprintln(bw, " _atom_site_type_symbol")
	fmt.Fprintln(bw, " _atom_site_label")
	fmt.Fprintln(bw, " _atom_site_symmetry_multiplicity")
	fmt.Fprintln(bw, " _atom_site_fract_x")
	fmt.Fprintln(bw, " _atom_site_fract_y")
	fmt.Fprintln(bw, " _atom_site_fract_z")
	fmt.Fprintln(bw, " _atom_site_occupancy")

	counters := map[string]int{}
	for _, site := range s.Sites {
		label := site.Label
		if label == "" {
			label = fmt.Sprintf("%s%d", site.Symbol, counters[site.Symbol])
			counters[site.Symbol]++
		}
		fmt.Fprintf(bw, "  %s  %s  1  %.8f  %.8f  %.8f  %s\n",
			site.Symbol, label, site.Frac[0], site.Frac[1], site.Frac[2],
			formatOccupancy(occupancy(site)))
	}
	return bw.Flush()
}

// Text returns the CIF as a string.
func (s *Structure) Text() (string, error) {
	var buf bytes.Buffer
	if err := s.Write(&buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func occupancy(site Site) float64 {
	if site.Occupancy == 0 {
		return 1
	}
	return site.Occupancy
}

func formatOccupancy(o float64) string {
	if o == 1 {
		return "1"
	}
	return fmt.Sprintf("%g", o)
}

// formulaSum lists every element with its count, separated by spaces.
func formulaSum(comp chem.Composition) string {
	syms := make([]string, 0, len(comp))
	for el := range comp {
		syms = append(syms, el)
	}
	sort.Strings(syms)
	parts := make([]string, len(syms))
	for i, el := range syms {
		parts[i] = el + chem.FormatAmount(comp[el])
	}
	return strings.Join(parts, " ")
}

// formulaUnits is the number of reduced formula units in the cell.
func formulaUnits(comp chem.Composition) int {
	reduced := comp.Reduced()
	for el, n := range comp {
		if r := reduced[el]; r > 0 {
			return int(math.Round(n / r))
		}
	}
	return 1
}

func norm(v [3]float64) float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}

func angle(u, v [3]float64, lu, lv float64) float64 {
	if lu == 0 || lv == 0 {
		return 0
	}
	cos := (u[0]*v[0] + u[1]*v[1] + u[2]*v[2]) / (lu * lv)
	cos = math.Max(-1, math.Min(1, cos))
	return math.Acos(cos) * 180 / math.Pi
}

func det(m [3][3]float64) float64 {
	return m[0][0]*(m[1][1]*m[2][2]-m[1][2]*m[2][1]) -
		m[0][1]*(m[1][0]*m[2][2]-m[1][2]*m[2][0]) +
		m[0][2]*(m[1][0]*m[2][1]-m[1][1]*m[2][0])
}

func invert(m [3][3]float64) ([3][3]float64, error) {
	d := det(m)
	if math.Abs(d) < 1e-10 {
		return [3][3]float64{}, errors.New("lattice matrix is singular")
	}
	var inv [3][3]float64
	inv[0][0] = (m[1][1]*m[2][2] - m[1][2]*m[2][1]) / d
	inv[0][1] = (m[0][2]*m[2][1] - m[0][1]*m[2][2]) / d
	inv[0][2] = (m[0][1]*m[1][2] - m[0][2]*m[1][1]) / d
	inv[1][0] = (m[1][2]*m[2][0] - m[1][0]*m[2][2]) / d
	inv[1][1] = (m[0][0]*m[2][2] - m[0][2]*m[2][0]) / d
	inv[1][2] = (m[0][2]*m[1][0] - m[0][0]*m[1][2]) / d
	inv[2][0] = (m[1][0]*m[2][1] - m[1][1]*m[2][0]) / d
	inv[2][1] = (m[0][1]*m[2][0] - m[0][0]*m[2][1]) / d
	inv[2][2] = (m[0][0]*m[1][1] - m[0][1]*m[1][0]) / d
	return inv, nil
}
