package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/san-kum/mdctl/internal/engine"
)

type Store struct {
	baseDir string
	now     func() time.Time
	newID   func() string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir, now: time.Now, newID: uuid.NewString}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type SnapshotMetadata struct {
	ID        string             `json:"id"`
	Label     string             `json:"label"`
	Timestamp time.Time          `json:"timestamp"`
	Timestep  int64              `json:"timestep"`
	NumAtoms  int                `json:"num_atoms"`
	Cell      [9]float64         `json:"cell"`
	Origin    [3]float64         `json:"origin"`
	Modifiers map[string]float64 `json:"modifiers,omitempty"`
}

// Save writes frame as <id>/metadata.json and <id>/atoms.csv. Modifiers
// holds scalar modifier values sampled with the frame.
func (s *Store) Save(label string, frame *engine.Frame, modifiers map[string]float64) (string, error) {
	id := fmt.Sprintf("%s_%s", label, s.newID()[:8])
	dir := filepath.Join(s.baseDir, id)

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	meta := SnapshotMetadata{
		ID:        id,
		Label:     label,
		Timestamp: s.now().UTC(),
		Timestep:  frame.Timestep,
		NumAtoms:  frame.NumAtoms(),
		Cell:      frame.Cell,
		Origin:    frame.Origin,
		Modifiers: modifiers,
	}

	metaFile, err := os.Create(filepath.Join(dir, "metadata.json"))
	if err != nil {
		return "", err
	}
	defer metaFile.Close()

	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return "", err
	}

	csvFile, err := os.Create(filepath.Join(dir, "atoms.csv"))
	if err != nil {
		return "", err
	}
	defer csvFile.Close()

	w := csv.NewWriter(csvFile)
	if err := writeAtoms(w, frame); err != nil {
		return "", err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}

	return id, nil
}

func writeAtoms(w *csv.Writer, frame *engine.Frame) error {
	if err := w.Write([]string{"id", "type", "x", "y", "z"}); err != nil {
		return err
	}
	for i := 0; i < frame.NumAtoms(); i++ {
		row := []string{
			strconv.Itoa(int(frame.IDs[i])),
			strconv.Itoa(int(frame.Types[i])),
		}
		for d := 0; d < 3; d++ {
			row = append(row, strconv.FormatFloat(frame.Positions[3*i+d], 'f', 6, 64))
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}

// List returns every snapshot, oldest first.
func (s *Store) List() ([]SnapshotMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []SnapshotMetadata{}, nil
		}
		return nil, err
	}

	snaps := make([]SnapshotMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		snaps = append(snaps, *meta)
	}

	sort.SliceStable(snaps, func(i, j int) bool {
		return snaps[i].Timestamp.Before(snaps[j].Timestamp)
	})
	return snaps, nil
}

func (s *Store) Load(id string) (*SnapshotMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, id, "metadata.json"))
	if err != nil {
		return nil, err
	}

	var meta SnapshotMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("storage: %s: %w", id, err)
	}
	return &meta, nil
}

// LoadFrame reads a snapshot back into a frame.
func (s *Store) LoadFrame(id string) (*engine.Frame, error) {
	meta, err := s.Load(id)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(filepath.Join(s.baseDir, id, "atoms.csv"))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = 5
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("storage: %s: %w", id, err)
	}

	f := &engine.Frame{Timestep: meta.Timestep, Cell: meta.Cell, Origin: meta.Origin}
	for i, record := range records {
		if i == 0 {
			continue
		}
		atomID, err := strconv.ParseInt(record[0], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("storage: %s line %d: %w", id, i+1, err)
		}
		typ, err := strconv.ParseInt(record[1], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("storage: %s line %d: %w", id, i+1, err)
		}
		f.IDs = append(f.IDs, int32(atomID))
		f.Types = append(f.Types, int32(typ))
		for d := 0; d < 3; d++ {
			x, err := strconv.ParseFloat(record[2+d], 64)
			if err != nil {
				return nil, fmt.Errorf("storage: %s line %d: %w", id, i+1, err)
			}
			f.Positions = append(f.Positions, x)
		}
	}
	return f, nil
}
