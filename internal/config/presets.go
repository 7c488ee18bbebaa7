package config

import "sort"

// Preset is a canned input script.
type Preset struct {
	Description string
	Script      string
	// Steps is the length of the run the preset is meant for.
	Steps int
}

const ljSetup4 = `units lj
atom_style atomic
lattice fcc 0.8442
region box block 0 4 0 4 0 4
create_box 1 box
create_atoms 1 box
mass 1 1.0
pair_style lj/cut 2.5
pair_coeff 1 1 1.0 1.0 2.5
neighbor 0.3 bin
neigh_modify every 20 delay 0 check no
`

var Presets = map[string]*Preset{
	"melt": {
		Description: "fcc Lennard-Jones solid heated past its melting point",
		Script: ljSetup4 + `velocity all create 3.0 87287 dist gaussian
fix 1 all nve
compute thermo_temp all temp
compute thermo_pe all pe
thermo 50
`,
		Steps: 250,
	},
	"crystal": {
		Description: "cold fcc crystal vibrating around its lattice sites",
		Script: ljSetup4 + `velocity all create 0.1 4928459 dist gaussian
fix 1 all nve
fix 2 all momentum 100 linear 1 1 1
compute thermo_temp all temp
compute msd_com all com
thermo 100
`,
		Steps: 1000,
	},
	"dilute": {
		Description: "low density gas with a radial distribution function",
		Script: `units lj
atom_style atomic
lattice sc 0.05
region box block 0 6 0 6 0 6
create_box 1 box
create_atoms 1 box
mass 1 1.0
velocity all create 1.0 12345
pair_style lj/cut 3.0
pair_coeff 1 1 1.0 1.0
fix 1 all nve
compute thermo_temp all temp
compute gr all rdf 50
thermo 100
`,
		Steps: 500,
	},
}

func GetPreset(name string) *Preset {
	p, ok := Presets[name]
	if !ok {
		return nil
	}
	return p
}

// ListPresets returns the preset names in sorted order.
func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
