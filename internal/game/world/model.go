// Package world provides the dungeon model used by shared targets: floors, rooms,
// exits, hub and breach flags, and floor secrets.
package world

import "fmt"

// Direction represents a compass direction or named exit.
type Direction string

// Standard compass directions and vertical movements.
const (
	North Direction = "north"
	South Direction = "south"
	East  Direction = "east"
	West  Direction = "west"
	Up    Direction = "up"
	Down  Direction = "down"
)

// Opposite returns the opposite of a standard direction.
// For custom directions, it returns an empty string.
func (d Direction) Opposite() Direction {
	switch d {
	case North:
		return South
	case South:
		return North
	case East:
		return West
	case West:
		return East
	case Up:
		return Down
	case Down:
		return Up
	default:
		return ""
	}
}

// Exit represents a passage from one room to another.
type Exit struct {
	Direction  Direction
	TargetRoom string
}

// Room is one location on a floor.
type Room struct {
	ID          string
	Floor       int
	Title       string
	Description string
	Exits       []Exit
	// Hub rooms are safe spaces; shared targets never relocate into them.
	Hub bool
	// Breach rooms belong to the breach zone on their floor.
	Breach bool
	// Central marks the breach room the emergence creature occupies.
	Central bool
}

// Secret is a discoverable feature on a floor.
type Secret struct {
	ID    string
	Floor int
	Room  string
	Name  string
}

// Floor groups the rooms and secrets on one dungeon level.
type Floor struct {
	Number  int
	Name    string
	Rooms   map[string]*Room
	Secrets []Secret
}

// Validate checks floor invariants.
//
// Postcondition: Returns nil if valid, or an error describing the first violation.
func (f *Floor) Validate() error {
	if f.Number < 1 {
		return fmt.Errorf("floor number must be >= 1, got %d", f.Number)
	}
	if len(f.Rooms) == 0 {
		return fmt.Errorf("floor %d: must contain at least one room", f.Number)
	}
	for id, room := range f.Rooms {
		if room.ID != id {
			return fmt.Errorf("floor %d: room key %q does not match room ID %q", f.Number, id, room.ID)
		}
		if room.Title == "" {
			return fmt.Errorf("floor %d: room %q: title must not be empty", f.Number, id)
		}
		if room.Central && !room.Breach {
			return fmt.Errorf("floor %d: room %q: central room must be a breach room", f.Number, id)
		}
		for _, exit := range room.Exits {
			if exit.TargetRoom == "" {
				return fmt.Errorf("floor %d: room %q: exit %q has empty target", f.Number, id, exit.Direction)
			}
		}
	}
	for _, s := range f.Secrets {
		if s.ID == "" {
			return fmt.Errorf("floor %d: secret id must not be empty", f.Number)
		}
		if _, ok := f.Rooms[s.Room]; !ok {
			return fmt.Errorf("floor %d: secret %q: unknown room %q", f.Number, s.ID, s.Room)
		}
	}
	return nil
}
