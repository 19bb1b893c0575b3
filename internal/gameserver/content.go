package gameserver

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/zvx-echo6/mmud-sub000/internal/game/target"
	"github.com/zvx-echo6/mmud-sub000/internal/game/world"
)

// Content is the static game data a server is started from.
type Content struct {
	Templates []*target.Template
	Floors    []*world.Floor
}

// LoadContent reads dir/targets/*.yaml and dir/dungeon.yaml.
//
// Precondition: dir must be a readable directory.
// Postcondition: Returns Content with at least one floor, or an error. Template
// IDs must be unique when set.
func LoadContent(dir string) (*Content, error) {
	tmpls, err := target.LoadTemplates(filepath.Join(dir, "targets"))
	if err != nil {
		return nil, fmt.Errorf("loading target templates: %w", err)
	}
	seen := make(map[string]bool, len(tmpls))
	for _, t := range tmpls {
		if t.ID == "" {
			continue
		}
		if seen[t.ID] {
			return nil, fmt.Errorf("duplicate target template id %q", t.ID)
		}
		seen[t.ID] = true
	}

	floors, err := world.LoadDungeonFromFile(filepath.Join(dir, "dungeon.yaml"))
	if err != nil {
		return nil, fmt.Errorf("loading dungeon: %w", err)
	}
	return &Content{Templates: tmpls, Floors: floors}, nil
}

// ByKind returns the templates of kind in file order.
func (c *Content) ByKind(kind target.Kind) []*target.Template {
	var out []*target.Template
	for _, t := range c.Templates {
		if t.Kind == string(kind) {
			out = append(out, t)
		}
	}
	return out
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
