package world

import (
	"fmt"
	"sort"
	"sync"

	"github.com/zvx-echo6/mmud-sub000/internal/game/dice"
)

// Manager provides thread-safe access to the dungeon layout and secret discovery.
type Manager struct {
	mu         sync.RWMutex
	floors     map[int]*Floor
	rooms      map[string]*Room
	secrets    map[string]Secret
	discovered map[string]string // secretID → discovering player
	src        dice.Source
}

// NewManager indexes floors and checks cross-floor exits.
//
// Precondition: src must be non-nil.
// Postcondition: Returns a Manager or an error on duplicate floor, room, or
// secret IDs, or dangling exits.
func NewManager(floors []*Floor, src dice.Source) (*Manager, error) {
	m := &Manager{
		floors:     make(map[int]*Floor, len(floors)),
		rooms:      make(map[string]*Room),
		secrets:    make(map[string]Secret),
		discovered: make(map[string]string),
		src:        src,
	}
	for _, f := range floors {
		if _, exists := m.floors[f.Number]; exists {
			return nil, fmt.Errorf("duplicate floor number: %d", f.Number)
		}
		m.floors[f.Number] = f
		for id, room := range f.Rooms {
			if existing, exists := m.rooms[id]; exists {
				return nil, fmt.Errorf("duplicate room ID %q: on floor %d and %d", id, existing.Floor, f.Number)
			}
			m.rooms[id] = room
		}
		for _, s := range f.Secrets {
			if _, exists := m.secrets[s.ID]; exists {
				return nil, fmt.Errorf("duplicate secret ID %q", s.ID)
			}
			m.secrets[s.ID] = s
		}
	}
	for _, room := range m.rooms {
		for _, exit := range room.Exits {
			if _, ok := m.rooms[exit.TargetRoom]; !ok {
				return nil, fmt.Errorf("room %q: exit %q targets unknown room %q", room.ID, exit.Direction, exit.TargetRoom)
			}
		}
	}
	return m, nil
}

// GetRoom returns the room with the given ID.
//
// Postcondition: Returns (room, true) if found, or (nil, false) otherwise.
func (m *Manager) GetRoom(id string) (*Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[id]
	return r, ok
}

// Discover records that playerID found secretID.
//
// Postcondition: Returns true when this call made the first discovery; an
// unknown secret yields an error.
func (m *Manager) Discover(secretID, playerID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.secrets[secretID]; !ok {
		return false, fmt.Errorf("secret %q not found", secretID)
	}
	if _, done := m.discovered[secretID]; done {
		return false, nil
	}
	m.discovered[secretID] = playerID
	return true, nil
}

// SecretsFound counts discovered secrets on floor.
func (m *Manager) SecretsFound(floor int) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for id := range m.discovered {
		if m.secrets[id].Floor == floor {
			n++
		}
	}
	return n
}

// RandomRoom picks a uniformly random non-hub, non-breach room on floor other than exclude.
//
// Postcondition: Returns ("", false) when no candidate exists.
func (m *Manager) RandomRoom(floor int, exclude string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.floors[floor]
	if !ok {
		return "", false
	}
	var candidates []string
	for id, r := range f.Rooms {
		if id == exclude || r.Hub || r.Breach {
			continue
		}
		candidates = append(candidates, id)
	}
	if len(candidates) == 0 {
		return "", false
	}
	sort.Strings(candidates)
	return candidates[m.src.Intn(len(candidates))], true
}

// AdjacentRoom picks a random non-hub room reachable through one exit from roomID.
//
// Postcondition: Returns ("", false) when roomID is unknown or has no eligible neighbour.
func (m *Manager) AdjacentRoom(roomID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[roomID]
	if !ok {
		return "", false
	}
	var candidates []string
	for _, e := range r.Exits {
		if next, ok := m.rooms[e.TargetRoom]; ok && !next.Hub {
			candidates = append(candidates, next.ID)
		}
	}
	if len(candidates) == 0 {
		return "", false
	}
	return candidates[m.src.Intn(len(candidates))], true
}

// BreachRooms returns the non-central breach rooms, sorted by ID.
func (m *Manager) BreachRooms() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for id, r := range m.rooms {
		if r.Breach && !r.Central {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// CentralBreachRoom returns the central breach room.
//
// Postcondition: Returns ("", false) when no central room is defined.
func (m *Manager) CentralBreachRoom() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, 1)
	for id, r := range m.rooms {
		if r.Central {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return "", false
	}
	sort.Strings(ids)
	return ids[0], true
}

// FloorCount returns the number of loaded floors.
func (m *Manager) FloorCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.floors)
}

// RoomCount returns the total number of rooms across all floors.
func (m *Manager) RoomCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}
