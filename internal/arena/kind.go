package arena

import "fmt"

// Kind identifies one of the arrays the engine exports.
type Kind int

const (
	Positions Kind = iota
	AtomIDs
	AtomTypes
	CellMatrix
	Origin
	BondPosition1
	BondPosition2
	BondDistanceMap
)

// Kinds lists every exported array in declaration order.
var Kinds = []Kind{
	Positions, AtomIDs, AtomTypes, CellMatrix, Origin,
	BondPosition1, BondPosition2, BondDistanceMap,
}

var kindNames = map[Kind]string{
	Positions:       "positions",
	AtomIDs:         "ids",
	AtomTypes:       "types",
	CellMatrix:      "cell",
	Origin:          "origin",
	BondPosition1:   "bonds1",
	BondPosition2:   "bonds2",
	BondDistanceMap: "bondmap",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind is the inverse of String.
func ParseKind(s string) (Kind, error) {
	for k, n := range kindNames {
		if n == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("arena: unknown kind %q", s)
}

// Elem is the element type stored in an array.
type Elem int

const (
	Float64 Elem = iota
	Int32
)

func (e Elem) String() string {
	if e == Int32 {
		return "int32"
	}
	return "float64"
}

// Elem reports the element type: float64 for geometry, the engine's native
// int32 for ids and types.
func (k Kind) Elem() Elem {
	switch k {
	case AtomIDs, AtomTypes:
		return Int32
	default:
		return Float64
	}
}

// Stride is the element size in bytes.
func (k Kind) Stride() int {
	if k.Elem() == Int32 {
		return 4
	}
	return 8
}
