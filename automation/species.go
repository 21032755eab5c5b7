package automation

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadSpecies reads a JSON array of species names from path.
func LoadSpecies(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read species file: %w", err)
	}
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return nil, fmt.Errorf("parse species file %s: %w", path, err)
	}
	return names, nil
}
