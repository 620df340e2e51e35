package parser

import (
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadPatternTable reads a YAML pattern table so new CAD layer-naming
// conventions can be added without code changes. Empty lists fall back to
// the built-in defaults.
func LoadPatternTable(filePath string) (PatternTable, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return PatternTable{}, err
	}
	defer file.Close()

	return LoadPatternTableFromReader(file)
}

// LoadPatternTableFromReader parses a pattern table from an io.Reader.
func LoadPatternTableFromReader(r io.Reader) (PatternTable, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return PatternTable{}, err
	}

	table := DefaultPatternTable()
	var loaded PatternTable
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return PatternTable{}, err
	}

	if len(loaded.WallLayers) > 0 {
		table.WallLayers = loaded.WallLayers
	}
	if len(loaded.DoorLayers) > 0 {
		table.DoorLayers = loaded.DoorLayers
	}
	if len(loaded.WindowLayers) > 0 {
		table.WindowLayers = loaded.WindowLayers
	}
	if len(loaded.RoomLayers) > 0 {
		table.RoomLayers = loaded.RoomLayers
	}
	if len(loaded.FurnitureBlocks) > 0 {
		table.FurnitureBlocks = loaded.FurnitureBlocks
	}
	if len(loaded.IgnoreLayers) > 0 {
		table.IgnoreLayers = loaded.IgnoreLayers
	}

	return table, nil
}
