package storage

import (
	"encoding/json"
	"io"
	"os"

	"github.com/san-kum/mdctl/internal/engine"
)

type ExportData struct {
	Timestep  int64              `json:"timestep"`
	NumAtoms  int                `json:"num_atoms"`
	Cell      [9]float64         `json:"cell"`
	Origin    [3]float64         `json:"origin"`
	IDs       []int32            `json:"ids"`
	Types     []int32            `json:"types"`
	Positions []float64          `json:"positions"`
	Modifiers map[string]float64 `json:"modifiers,omitempty"`
}

func exportData(frame *engine.Frame, modifiers map[string]float64) ExportData {
	return ExportData{
		Timestep:  frame.Timestep,
		NumAtoms:  frame.NumAtoms(),
		Cell:      frame.Cell,
		Origin:    frame.Origin,
		IDs:       frame.IDs,
		Types:     frame.Types,
		Positions: frame.Positions,
		Modifiers: modifiers,
	}
}

// WriteJSON encodes frame as indented JSON.
func WriteJSON(w io.Writer, frame *engine.Frame, modifiers map[string]float64) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(exportData(frame, modifiers))
}

func ExportJSON(path string, frame *engine.Frame, modifiers map[string]float64) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return WriteJSON(file, frame, modifiers)
}
