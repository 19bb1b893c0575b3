package target

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Template describes a shared target to activate or queue, loaded from YAML.
type Template struct {
	ID               string   `yaml:"id"`
	Name             string   `yaml:"name"`
	Kind             string   `yaml:"kind"`
	HPMax            int      `yaml:"hp_max"`
	Pow              int      `yaml:"pow"`
	Def              int      `yaml:"def"`
	Spd              int      `yaml:"spd"`
	XPReward         int      `yaml:"xp_reward"`
	GoldReward       int      `yaml:"gold_reward"`
	Mechanics        []string `yaml:"mechanics"`
	Floor            int      `yaml:"floor"`
	Room             string   `yaml:"room"`
	AvailableFromDay int      `yaml:"available_from_day"`
}

// Validate checks that the template satisfies basic invariants.
//
// Precondition: t must not be nil.
// Postcondition: Returns nil iff Name is non-empty, Kind is valid, HPMax >= 1,
// and rewards and stats are non-negative.
func (t *Template) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("target template %q: name must not be empty", t.ID)
	}
	if _, err := ParseKind(t.Kind); err != nil {
		return fmt.Errorf("target template %q: %w", t.ID, err)
	}
	if t.HPMax < 1 {
		return fmt.Errorf("target template %q: hp_max must be >= 1", t.ID)
	}
	if t.Pow < 0 || t.Def < 0 || t.Spd < 0 {
		return fmt.Errorf("target template %q: stats must be >= 0", t.ID)
	}
	if t.XPReward < 0 || t.GoldReward < 0 {
		return fmt.Errorf("target template %q: rewards must be >= 0", t.ID)
	}
	if t.Floor < 0 {
		return fmt.Errorf("target template %q: floor must be >= 0", t.ID)
	}
	return nil
}

// LoadTemplateFromBytes parses templates from raw YAML bytes. A document may hold
// a single template or a list of templates.
//
// Postcondition: Returns validated templates or an error.
func LoadTemplateFromBytes(data []byte) ([]*Template, error) {
	var list []*Template
	if err := yaml.Unmarshal(data, &list); err != nil {
		var single Template
		if err2 := yaml.Unmarshal(data, &single); err2 != nil {
			return nil, fmt.Errorf("parsing template YAML: %w", err2)
		}
		list = []*Template{&single}
	}
	for _, t := range list {
		if err := t.Validate(); err != nil {
			return nil, err
		}
	}
	return list, nil
}

// LoadTemplates reads all *.yaml files in dir and returns the parsed templates.
//
// Precondition: dir must be a readable directory.
// Postcondition: Returns all templates or an error on the first parse or validate
// failure; on error, the partial result is discarded.
func LoadTemplates(dir string) ([]*Template, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading target dir %q: %w", dir, err)
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
		tmpls, err := LoadTemplateFromBytes(data)
		if err != nil {
			return nil, fmt.Errorf("loading %q: %w", path, err)
		}
		templates = append(templates, tmpls...)
	}
	return templates, nil
}
