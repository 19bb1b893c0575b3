package scripting

import (
	"context"

	lua "github.com/yuin/gopher-lua"

	"github.com/zvx-echo6/mmud-sub000/internal/game/target"
)

// Narrator bridges milestone events to Lua hooks named on_<event>. Hooks are
// looked up in the scope named after the target's kind, falling back to the
// global scope.
//
// A hook receives one table argument carrying the target's id, name, kind,
// hp, hp_max, phase, floor and room plus any event fields, and may return a
// string to broadcast.
type Narrator struct {
	mgr *Manager
}

// NewNarrator wraps mgr.
//
// Precondition: mgr must be non-nil.
func NewNarrator(mgr *Manager) *Narrator {
	return &Narrator{mgr: mgr}
}

// Narrate calls on_<event> for t.
//
// Postcondition: Returns (text, true) only when the hook returns a non-empty string.
func (n *Narrator) Narrate(ctx context.Context, event string, t *target.SharedTarget, fields map[string]string) (string, bool) {
	if t == nil {
		return "", false
	}
	ret, err := n.mgr.CallHookTable(ctx, string(t.Kind), "on_"+event, eventFields(t, fields))
	if err != nil {
		return "", false
	}
	s, ok := ret.(lua.LString)
	if !ok || s == "" {
		return "", false
	}
	return string(s), true
}

func eventFields(t *target.SharedTarget, fields map[string]string) map[string]lua.LValue {
	out := map[string]lua.LValue{
		"id":     lua.LString(t.ID),
		"name":   lua.LString(t.Name),
		"kind":   lua.LString(string(t.Kind)),
		"hp":     lua.LNumber(t.HP),
		"hp_max": lua.LNumber(t.HPMax),
		"phase":  lua.LNumber(t.Phase),
		"floor":  lua.LNumber(t.Floor),
		"room":   lua.LString(t.RoomID),
	}
	for k, v := range fields {
		out[k] = lua.LString(v)
	}
	return out
}
