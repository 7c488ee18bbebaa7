package native

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpressions(t *testing.T) {
	tests := []struct {
		expr string
		want float64
	}{
		{"2+3*4", 14},
		{"(1+2)*3", 9},
		{"10 % 4", 2},
		{"-2^2", -4},
		{"2^3^2", 512},
		{"1e-2*100", 1},
		{"sqrt(16)+abs(-1)", 5},
		{"min(3, 2) + max(3, 2)", 5},
		{"PI", math.Pi},
		{"8/2/2", 2},
		{"3 - -1", 4},
	}

	e := New(Config{})
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			n, err := parseExpr(tt.expr)
			require.NoError(t, err)
			r, err := n.eval(e)
			require.NoError(t, err)
			require.False(t, r.vec)
			assert.InDelta(t, tt.want, r.data[0], 1e-12)
		})
	}
}

func TestExpressionSyntaxErrors(t *testing.T) {
	for _, expr := range []string{"", "1+", "(2", "3)", "c_x[", "f_y[0]", "max(1,", "2 $"} {
		_, err := parseExpr(expr)
		assert.Error(t, err, expr)
	}
}

func TestExpressionRuntimeErrors(t *testing.T) {
	e := New(Config{})
	for _, expr := range []string{"1/0", "c_missing", "v_missing", "bogus", "lx", "nosuch(1)"} {
		n, err := parseExpr(expr)
		require.NoError(t, err, expr)
		_, err = n.eval(e)
		assert.Error(t, err, expr)
	}
}

func TestVectorVariables(t *testing.T) {
	e, _ := newMelt(t)
	require.NoError(t, e.RunCommand(context.Background(), `
compute c all com
variable l equal lx
variable c2 equal c_c[2]
variable v vector c_c*2
variable s equal sum(v_v)
`))
	require.Empty(t, e.ErrorMessage())

	v, _ := e.findVariable("l")
	val, err := e.evalVariable(v)
	require.NoError(t, err)
	assert.InDelta(t, 4*e.lattice.a, val.Scalar, 1e-12)

	v, _ = e.findVariable("v")
	vec, err := e.evalVariable(v)
	require.NoError(t, err)
	require.Len(t, vec.Vector, 3)

	v, _ = e.findVariable("c2")
	c2, err := e.evalVariable(v)
	require.NoError(t, err)
	assert.InDelta(t, vec.Vector[1]/2, c2.Scalar, 1e-12)

	v, _ = e.findVariable("s")
	s, err := e.evalVariable(v)
	require.NoError(t, err)
	assert.InDelta(t, vec.Vector[0]+vec.Vector[1]+vec.Vector[2], s.Scalar, 1e-12)
}

func TestEqualVariableRejectsVector(t *testing.T) {
	e, _ := newMelt(t)
	require.NoError(t, e.RunCommand(context.Background(), "compute c all com\nvariable bad equal c_c\nprint ${bad}"))
	assert.Contains(t, e.ErrorMessage(), "evaluates to a vector")
}

func TestCircularVariable(t *testing.T) {
	e := New(Config{})
	require.NoError(t, e.RunCommand(context.Background(), "variable a equal v_b\nvariable b equal v_a+1\nprint $a"))
	assert.Contains(t, e.ErrorMessage(), "circular")
}

func TestVariableDelete(t *testing.T) {
	e := New(Config{})
	require.NoError(t, e.RunCommand(context.Background(), "variable a equal 1\nvariable a delete"))
	require.Empty(t, e.ErrorMessage())
	_, ok := e.findVariable("a")
	assert.False(t, ok)
}
