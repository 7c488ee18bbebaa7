package history

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/mdctl/internal/modifier"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "db", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndSeries(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	id, err := s.BeginRun(ctx, "melt")
	require.NoError(t, err)

	for step := int64(0); step <= 20; step += 10 {
		require.NoError(t, s.Record(ctx, id, step, map[string]float64{
			"compute/t":  float64(step) / 10,
			"compute/pe": -float64(step),
		}))
	}

	steps, values, err := s.Series(ctx, id, "compute/t")
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 10, 20}, steps)
	assert.Equal(t, []float64{0, 1, 2}, values)

	names, err := s.Names(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"compute/pe", "compute/t"}, names)
}

func TestRecordOverwritesTimestep(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	id, err := s.BeginRun(ctx, "x")
	require.NoError(t, err)

	require.NoError(t, s.Record(ctx, id, 5, map[string]float64{"v": 1}))
	require.NoError(t, s.Record(ctx, id, 5, map[string]float64{"v": 2}))

	_, values, err := s.Series(ctx, id, "v")
	require.NoError(t, err)
	assert.Equal(t, []float64{2}, values)
}

func TestRecordNonFinite(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	id, err := s.BeginRun(ctx, "blowup")
	require.NoError(t, err)

	require.NoError(t, s.Record(ctx, id, 0, map[string]float64{"compute/pe": -3.5}))
	require.NoError(t, s.Record(ctx, id, 10, map[string]float64{"compute/pe": math.NaN()}))
	require.NoError(t, s.Record(ctx, id, 20, map[string]float64{"compute/pe": math.Inf(1)}))

	steps, values, err := s.Series(ctx, id, "compute/pe")
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 10, 20}, steps)
	require.Len(t, values, 3)
	assert.Equal(t, -3.5, values[0])
	assert.True(t, math.IsNaN(values[1]))
	assert.True(t, math.IsInf(values[2], 1))
}

func TestRunsAndDelete(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	a, err := s.BeginRun(ctx, "a")
	require.NoError(t, err)
	_, err = s.BeginRun(ctx, "b")
	require.NoError(t, err)
	require.NoError(t, s.Record(ctx, a, 0, map[string]float64{"v": 1, "w": 2}))

	runs, err := s.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "b", runs[0].Label)
	assert.Equal(t, 2, runs[1].Samples)

	require.NoError(t, s.DeleteRun(ctx, a))
	runs, err = s.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	steps, _, err := s.Series(ctx, a, "v")
	require.NoError(t, err)
	assert.Empty(t, steps)
}

func TestRecordUnknownRun(t *testing.T) {
	s := openTemp(t)
	err := s.Record(context.Background(), "missing", 0, map[string]float64{"v": 1})
	assert.Error(t, err)
}

func TestParseTrack(t *testing.T) {
	kind, name, err := ParseTrack("compute/t")
	require.NoError(t, err)
	assert.Equal(t, modifier.Compute, kind)
	assert.Equal(t, "t", name)

	for _, bad := range []string{"t", "compute/", "thing/t"} {
		_, _, err := ParseTrack(bad)
		assert.Error(t, err, bad)
	}
}

type stubSource struct {
	live   map[string]modifier.Value
	snap   map[string]modifier.Value
	shapes map[string]modifier.Shape
	synced []modifier.Kind
}

func (s *stubSource) ModifierNames(modifier.Kind) []string { return nil }

func (s *stubSource) ModifierShape(k modifier.Kind, name string) (modifier.Shape, bool) {
	shape, ok := s.shapes[k.String()+"/"+name]
	return shape, ok
}

func (s *stubSource) Sync(k modifier.Kind) {
	s.synced = append(s.synced, k)
	for key, v := range s.live {
		s.snap[key] = v
	}
}

func (s *stubSource) Snapshot(k modifier.Kind, name string) (modifier.Value, bool) {
	key := k.String() + "/" + name
	if _, ok := s.shapes[key]; !ok {
		return modifier.Value{}, false
	}
	return s.snap[key], true
}

func TestSampler(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	id, err := s.BeginRun(ctx, "sampled")
	require.NoError(t, err)

	src := &stubSource{
		live: map[string]modifier.Value{
			"compute/t":   {Scalar: 1.5},
			"compute/com": {Vector: []float64{1, 2, 3}},
			"variable/v":  {Scalar: 7},
		},
		snap: map[string]modifier.Value{},
		shapes: map[string]modifier.Shape{
			"compute/t":   modifier.Scalar,
			"compute/com": modifier.Vector,
			"variable/v":  modifier.Scalar,
		},
	}
	reg := modifier.NewRegistry(src, nil)

	sampler, err := NewSampler(s, id, reg, []string{"variable/v", "compute/t", "compute/com"})
	require.NoError(t, err)
	assert.Equal(t, id, sampler.RunID())

	values, err := sampler.Sample(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []modifier.Kind{modifier.Compute, modifier.Variable}, src.synced)
	assert.Equal(t, map[string]float64{
		"variable/v":     7,
		"compute/t":      1.5,
		"compute/com[1]": 1,
		"compute/com[2]": 2,
		"compute/com[3]": 3,
	}, values)

	_, got, err := s.Series(ctx, id, "compute/com[2]")
	require.NoError(t, err)
	assert.Equal(t, []float64{2}, got)

	_, err = NewSampler(s, id, reg, []string{"compute/missing"})
	assert.ErrorIs(t, err, modifier.ErrNotFound)
}
