package obmm

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultDescDir is where descriptor files are exchanged when no
// directory is given.
const DefaultDescDir = "/tmp/memlink"

// DescFilePath names the descriptor file for an export transaction.
// An empty dir selects DefaultDescDir.
func DescFilePath(dir string, id MemID) string {
	if dir == "" {
		dir = DefaultDescDir
	}
	return filepath.Join(dir, fmt.Sprintf("memdesc_%d.json", uint64(id)))
}

// WriteDescFile publishes a descriptor for the importing side, creating
// the directory as needed.
func WriteDescFile(dir string, id MemID, desc *MemDesc) (string, error) {
	if desc == nil {
		return "", ErrNilDescriptor
	}
	if dir == "" {
		dir = DefaultDescDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("obmm: create descriptor dir: %w", err)
	}
	data, err := json.MarshalIndent(desc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("obmm: encode descriptor: %w", err)
	}
	path := DescFilePath(dir, id)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("obmm: write descriptor: %w", err)
	}
	return path, nil
}

// ReadDescFile loads a descriptor published by the exporting side.
func ReadDescFile(path string) (*MemDesc, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("obmm: read descriptor: %w", err)
	}
	var desc MemDesc
	if err := json.Unmarshal(data, &desc); err != nil {
		return nil, fmt.Errorf("obmm: decode descriptor %s: %w", path, err)
	}
	return &desc, nil
}
