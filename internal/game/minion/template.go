// Package minion provides the lesser creatures that guard shared targets:
// summoner adds and breach spawn.
package minion

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Template defines a reusable minion archetype loaded from YAML.
type Template struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	MaxHP       int    `yaml:"max_hp"`
	Pow         int    `yaml:"pow"`
	Def         int    `yaml:"def"`
	Spd         int    `yaml:"spd"`
	XPReward    int    `yaml:"xp_reward"`
}

// Validate checks that the template satisfies basic invariants.
//
// Precondition: t must not be nil.
// Postcondition: Returns nil iff ID and Name are non-empty, MaxHP >= 1, and stats are non-negative.
func (t *Template) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("minion template: id must not be empty")
	}
	if t.Name == "" {
		return fmt.Errorf("minion template %q: name must not be empty", t.ID)
	}
	if t.MaxHP < 1 {
		return fmt.Errorf("minion template %q: max_hp must be >= 1", t.ID)
	}
	if t.Pow < 0 || t.Def < 0 || t.Spd < 0 {
		return fmt.Errorf("minion template %q: stats must be >= 0", t.ID)
	}
	return nil
}

// BossAdd returns the add a summoner calls in on floor.
//
// Postcondition: MaxHP == 10 + 5*floor.
func BossAdd(floor int) *Template {
	if floor < 1 {
		floor = 1
	}
	return &Template{
		ID:       fmt.Sprintf("boss_add_f%d", floor),
		Name:     "Boss Minion",
		MaxHP:    10 + floor*5,
		Pow:      2 + floor,
		Def:      1 + floor,
		Spd:      2,
		XPReward: 3 + floor,
	}
}

// BreachSpawn is the minion that guards the rooms around the emergence creature.
func BreachSpawn() *Template {
	return &Template{
		ID:       "breach_spawn",
		Name:     "Breach Spawn",
		MaxHP:    30,
		Pow:      8,
		Def:      6,
		Spd:      5,
		XPReward: 15,
	}
}

// LoadTemplateFromBytes parses a single minion template from raw YAML bytes.
//
// Postcondition: Returns a validated *Template, or an error.
func LoadTemplateFromBytes(data []byte) (*Template, error) {
	var tmpl Template
	if err := yaml.Unmarshal(data, &tmpl); err != nil {
		return nil, fmt.Errorf("parsing template YAML: %w", err)
	}
	if err := tmpl.Validate(); err != nil {
		return nil, err
	}
	return &tmpl, nil
}

// LoadTemplates reads all *.yaml files in dir and returns the parsed templates.
//
// Precondition: dir must be a readable directory.
// Postcondition: Returns all templates or an error on the first parse or validate
// failure; on error, the partial result is discarded.
func LoadTemplates(dir string) ([]*Template, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading minion dir %q: %w", dir, err)
	}

	var templates []*Template
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %q: %w", path, err)
		}
		tmpl, err := LoadTemplateFromBytes(data)
		if err != nil {
			return nil, fmt.Errorf("loading %q: %w", path, err)
		}
		templates = append(templates, tmpl)
	}
	return templates, nil
}
