package minion

// Fill tops roomID up to want living instances of tmpl guarding ownerID.
//
// Precondition: tmpl must be non-nil; roomID must be non-empty.
// Postcondition: Returns the number of instances spawned; never spawns when the
// room already holds want or more.
func (m *Manager) Fill(tmpl *Template, roomID, ownerID string, want int) (int, error) {
	spawned := 0
	for current := m.CountAlive(roomID, tmpl.ID); current < want; current++ {
		if _, err := m.Spawn(tmpl, roomID, ownerID); err != nil {
			return spawned, err
		}
		spawned++
	}
	return spawned, nil
}

// Populate places one tmpl instance in each of rooms that holds none.
//
// Precondition: tmpl must be non-nil.
// Postcondition: Returns the total spawned; rooms already guarded are skipped.
func (m *Manager) Populate(tmpl *Template, rooms []string, ownerID string) (int, error) {
	total := 0
	for _, roomID := range rooms {
		n, err := m.Fill(tmpl, roomID, ownerID, 1)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
