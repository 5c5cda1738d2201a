// Package workerseed loads Worker definitions from a hand-editable TOML
// file, letting a user define default workers outside the HTTP surface.
package workerseed

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/daymon-dev/daymon/internal/store"
)

// Definition is one [[worker]] table in a seed file.
type Definition struct {
	Name         string `toml:"name"`
	SystemPrompt string `toml:"system_prompt"`
	Description  string `toml:"description"`
	Model        string `toml:"model"`
	Default      bool   `toml:"default"`
}

// File is the top-level shape of a worker seed file: a flat list of
// [[worker]] tables.
type File struct {
	Worker []Definition `toml:"worker"`
}

// Load parses a worker seed file from disk.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("workerseed: read %s: %w", path, err)
	}
	var f File
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("workerseed: parse %s: %w", path, err)
	}
	return &f, nil
}

// Apply upserts every Definition in f into st: a worker whose name already
// exists is updated in place, otherwise it is created. Returns the number
// of workers created and updated.
func Apply(st *store.Store, f *File) (created int, updated int, err error) {
	existing, err := st.ListWorkers()
	if err != nil {
		return 0, 0, fmt.Errorf("workerseed: list existing workers: %w", err)
	}
	byName := make(map[string]store.Worker, len(existing))
	for _, w := range existing {
		byName[w.Name] = w
	}

	for _, d := range f.Worker {
		if d.Name == "" {
			return created, updated, fmt.Errorf("workerseed: worker entry missing name")
		}
		if w, ok := byName[d.Name]; ok {
			isDefault := d.Default
			model := d.Model
			systemPrompt := d.SystemPrompt
			description := d.Description
			if _, err := st.UpdateWorker(w.ID, store.WorkerUpdate{
				SystemPrompt: &systemPrompt,
				Description:  &description,
				Model:        &model,
				IsDefault:    &isDefault,
			}); err != nil {
				return created, updated, fmt.Errorf("workerseed: update worker %q: %w", d.Name, err)
			}
			updated++
			continue
		}
		if _, err := st.CreateWorker(store.Worker{
			Name:         d.Name,
			SystemPrompt: d.SystemPrompt,
			Description:  d.Description,
			Model:        d.Model,
			IsDefault:    d.Default,
		}); err != nil {
			return created, updated, fmt.Errorf("workerseed: create worker %q: %w", d.Name, err)
		}
		created++
	}
	return created, updated, nil
}
