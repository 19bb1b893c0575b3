package world

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// yamlDungeonFile is the top-level YAML structure for the dungeon layout.
type yamlDungeonFile struct {
	Floors []yamlFloor `yaml:"floors"`
}

type yamlFloor struct {
	Number  int          `yaml:"number"`
	Name    string       `yaml:"name"`
	Rooms   []yamlRoom   `yaml:"rooms"`
	Secrets []yamlSecret `yaml:"secrets"`
}

type yamlRoom struct {
	ID          string     `yaml:"id"`
	Title       string     `yaml:"title"`
	Description string     `yaml:"description"`
	Hub         bool       `yaml:"hub"`
	Breach      bool       `yaml:"breach"`
	Central     bool       `yaml:"central"`
	Exits       []yamlExit `yaml:"exits"`
}

type yamlExit struct {
	Direction string `yaml:"direction"`
	Target    string `yaml:"target"`
}

type yamlSecret struct {
	ID   string `yaml:"id"`
	Room string `yaml:"room"`
	Name string `yaml:"name"`
}

// LoadDungeonFromFile reads and validates a dungeon YAML file.
//
// Precondition: path must point to a valid YAML dungeon file.
// Postcondition: Returns validated floors or a non-nil error.
func LoadDungeonFromFile(path string) ([]*Floor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading dungeon file %s: %w", path, err)
	}
	return LoadDungeonFromBytes(data)
}

// LoadDungeonFromBytes parses and validates floors from YAML bytes.
//
// Postcondition: Returns validated floors or a non-nil error.
func LoadDungeonFromBytes(data []byte) ([]*Floor, error) {
	var file yamlDungeonFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing dungeon YAML: %w", err)
	}
	if len(file.Floors) == 0 {
		return nil, fmt.Errorf("dungeon must contain at least one floor")
	}

	floors := make([]*Floor, 0, len(file.Floors))
	for _, yf := range file.Floors {
		f := convertYAMLFloor(yf)
		if err := f.Validate(); err != nil {
			return nil, fmt.Errorf("validating floor: %w", err)
		}
		floors = append(floors, f)
	}
	return floors, nil
}

func convertYAMLFloor(yf yamlFloor) *Floor {
	f := &Floor{
		Number: yf.Number,
		Name:   yf.Name,
		Rooms:  make(map[string]*Room, len(yf.Rooms)),
	}
	for _, yr := range yf.Rooms {
		room := &Room{
			ID:          yr.ID,
			Floor:       yf.Number,
			Title:       yr.Title,
			Description: strings.TrimSpace(yr.Description),
			Hub:         yr.Hub,
			Breach:      yr.Breach,
			Central:     yr.Central,
		}
		for _, ye := range yr.Exits {
			room.Exits = append(room.Exits, Exit{
				Direction:  Direction(ye.Direction),
				TargetRoom: ye.Target,
			})
		}
		f.Rooms[room.ID] = room
	}
	for _, ys := range yf.Secrets {
		f.Secrets = append(f.Secrets, Secret{ID: ys.ID, Floor: yf.Number, Room: ys.Room, Name: ys.Name})
	}
	return f
}
