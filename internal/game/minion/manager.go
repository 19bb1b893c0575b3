package minion

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// Manager tracks all live minion instances by ID and by room.
// All methods are safe for concurrent use.
type Manager struct {
	mu        sync.RWMutex
	instances map[string]*Instance       // instanceID → Instance
	roomSets  map[string]map[string]bool // roomID → set of instanceIDs
	counter   atomic.Uint64
}

// NewManager creates an empty minion Manager.
func NewManager() *Manager {
	return &Manager{
		instances: make(map[string]*Instance),
		roomSets:  make(map[string]map[string]bool),
	}
}

// Spawn creates a new Instance from tmpl and places it in roomID.
//
// Precondition: tmpl must be non-nil; roomID must be non-empty.
// Postcondition: Returns a new Instance with a unique ID registered in roomID.
func (m *Manager) Spawn(tmpl *Template, roomID, ownerID string) (*Instance, error) {
	if tmpl == nil {
		return nil, fmt.Errorf("minion.Manager.Spawn: tmpl must not be nil")
	}
	if roomID == "" {
		return nil, fmt.Errorf("minion.Manager.Spawn: roomID must not be empty")
	}

	n := m.counter.Add(1)
	id := fmt.Sprintf("%s-%s-%d", tmpl.ID, roomID, n)
	inst := NewInstance(id, tmpl, roomID, ownerID)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.instances[id] = inst
	if m.roomSets[roomID] == nil {
		m.roomSets[roomID] = make(map[string]bool)
	}
	m.roomSets[roomID][id] = true

	return inst, nil
}

// Remove deletes an instance by ID.
//
// Postcondition: Returns an error if the instance is not found.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removeLocked(id)
}

func (m *Manager) removeLocked(id string) error {
	inst, ok := m.instances[id]
	if !ok {
		return fmt.Errorf("minion instance %q not found", id)
	}
	if rs, ok := m.roomSets[inst.RoomID]; ok {
		delete(rs, id)
		if len(rs) == 0 {
			delete(m.roomSets, inst.RoomID)
		}
	}
	delete(m.instances, id)
	return nil
}

// Get returns a copy of the instance with the given ID.
//
// Postcondition: Returns (inst, true) if found, or (nil, false) otherwise.
func (m *Manager) Get(id string) (*Instance, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.instances[id]
	if !ok {
		return nil, false
	}
	cp := *inst
	return &cp, true
}

// Damage subtracts amount from the instance's HP and removes it on death.
//
// Precondition: amount >= 0.
// Postcondition: Returns (remainingHP, killed); an unknown id is an error.
func (m *Manager) Damage(id string, amount int) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.instances[id]
	if !ok {
		return 0, false, fmt.Errorf("minion instance %q not found", id)
	}
	inst.CurrentHP -= amount
	if inst.CurrentHP > 0 {
		return inst.CurrentHP, false, nil
	}
	inst.CurrentHP = 0
	if err := m.removeLocked(id); err != nil {
		return 0, true, err
	}
	return 0, true, nil
}

// InstancesInRoom returns copies of all live instances in roomID, sorted by ID.
//
// Postcondition: Returns a non-nil slice (may be empty).
func (m *Manager) InstancesInRoom(roomID string) []*Instance {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids, ok := m.roomSets[roomID]
	if !ok {
		return []*Instance{}
	}
	out := make([]*Instance, 0, len(ids))
	for id := range ids {
		if inst, ok := m.instances[id]; ok {
			cp := *inst
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AliveInRoom reports whether any living minion occupies roomID.
func (m *Manager) AliveInRoom(roomID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for id := range m.roomSets[roomID] {
		if inst, ok := m.instances[id]; ok && !inst.IsDead() {
			return true
		}
	}
	return false
}

// CountAlive counts living instances of templateID in roomID.
func (m *Manager) CountAlive(roomID, templateID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for id := range m.roomSets[roomID] {
		if inst, ok := m.instances[id]; ok && inst.TemplateID == templateID && !inst.IsDead() {
			n++
		}
	}
	return n
}

// RemoveOwned deletes every instance guarding ownerID.
//
// Postcondition: Returns the number of instances removed.
func (m *Manager) RemoveOwned(ownerID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id, inst := range m.instances {
		if inst.OwnerID == ownerID {
			ids = append(ids, id)
		}
	}
	for _, id := range ids {
		_ = m.removeLocked(id)
	}
	return len(ids)
}

// FindInRoom returns the first instance in roomID whose Name has name as a
// case-insensitive prefix. Returns nil if no match is found.
func (m *Manager) FindInRoom(roomID, name string) *Instance {
	lower := strings.ToLower(name)
	for _, inst := range m.InstancesInRoom(roomID) {
		if strings.HasPrefix(strings.ToLower(inst.Name), lower) {
			return inst
		}
	}
	return nil
}
