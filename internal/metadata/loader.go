package metadata

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
)

// LoadDir reads every *.json model definition under dir and registers
// the models. Files are loaded in name order so boot output is stable.
func LoadDir(dir string, reg *Registry) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read model dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	loaded := 0
	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read model file %s: %w", name, err)
		}

		var m Model
		if err := json.Unmarshal(data, &m); err != nil {
			log.Printf("WARN: skipping model file %s (invalid JSON): %v", name, err)
			continue
		}
		if err := reg.Register(&m); err != nil {
			return fmt.Errorf("register model from %s: %w", name, err)
		}
		loaded++
	}

	log.Printf("Loaded %d models into registry", loaded)
	return nil
}
