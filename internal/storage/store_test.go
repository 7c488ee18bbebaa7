package storage

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"

	"github.com/san-kum/mdctl/internal/engine"
)

func testFrame() *engine.Frame {
	return &engine.Frame{
		Timestep:  10,
		Positions: []float64{0, 0, 0, 0.5, 1.25, 2},
		IDs:       []int32{1, 2},
		Types:     []int32{1, 2},
		Cell:      [9]float64{2, 0, 0, 0, 3, 0, 0, 0, 4},
	}
}

func testStore(t *testing.T) *Store {
	t.Helper()
	st := New(t.TempDir())
	st.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	st.newID = func() string { return "0123456789abcdef" }
	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	return st
}

func TestStoreSaveGolden(t *testing.T) {
	st := testStore(t)

	id, err := st.Save("snap", testFrame(), map[string]float64{"compute/t": 1.5})
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if id != "snap_01234567" {
		t.Errorf("unexpected id %q", id)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	for _, name := range []string{"metadata", "atoms"} {
		ext := map[string]string{"metadata": ".json", "atoms": ".csv"}[name]
		data, err := os.ReadFile(filepath.Join(st.baseDir, id, name+ext))
		if err != nil {
			t.Fatal(err)
		}
		g.Assert(t, name, data)
	}
}

func TestStoreLoadFrame(t *testing.T) {
	st := testStore(t)
	id, err := st.Save("snap", testFrame(), nil)
	if err != nil {
		t.Fatal(err)
	}

	meta, err := st.Load(id)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if meta.NumAtoms != 2 || meta.Timestep != 10 {
		t.Errorf("unexpected metadata %+v", meta)
	}
	if meta.Modifiers != nil {
		t.Errorf("expected no modifiers, got %v", meta.Modifiers)
	}

	f, err := st.LoadFrame(id)
	if err != nil {
		t.Fatalf("load frame failed: %v", err)
	}
	want := testFrame()
	if f.NumAtoms() != want.NumAtoms() {
		t.Fatalf("expected %d atoms, got %d", want.NumAtoms(), f.NumAtoms())
	}
	for i, x := range want.Positions {
		if f.Positions[i] != x {
			t.Errorf("position %d: expected %f, got %f", i, x, f.Positions[i])
		}
	}
	if f.Cell != want.Cell {
		t.Errorf("cell mismatch: %v", f.Cell)
	}
}

func TestStoreList(t *testing.T) {
	st := New(t.TempDir())
	if err := st.Init(); err != nil {
		t.Fatal(err)
	}
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, label := range []string{"b", "a", "c"} {
		at := base.Add(time.Duration(i) * time.Hour)
		st.now = func() time.Time { return at }
		if _, err := st.Save(label, testFrame(), nil); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(st.baseDir, "stray.txt"), nil, 0644); err != nil {
		t.Fatal(err)
	}

	snaps, err := st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(snaps) != 3 {
		t.Fatalf("expected 3 snapshots, got %d", len(snaps))
	}
	for i, want := range []string{"b", "a", "c"} {
		if snaps[i].Label != want {
			t.Errorf("snapshot %d: expected %s, got %s", i, want, snaps[i].Label)
		}
	}
}

func TestStoreListMissingDir(t *testing.T) {
	st := New(filepath.Join(t.TempDir(), "absent"))
	snaps, err := st.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(snaps) != 0 {
		t.Errorf("expected no snapshots, got %d", len(snaps))
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, testFrame(), nil); err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(buf.Bytes(), []byte(`"num_atoms": 2`)) {
		t.Errorf("unexpected export:\n%s", buf.String())
	}
}
