package scripting

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/zvx-echo6/mmud-sub000/internal/game/dice"
)

// GlobalScope is the reserved key for shared scripts loaded via LoadGlobal.
// CallHook falls back to this VM when no scope VM is found.
const GlobalScope = "__global__"

// vm is one sandboxed LState plus the lock that serializes calls into it.
type vm struct {
	mu    sync.Mutex
	L     *lua.LState
	limit int
}

// Manager owns one sandboxed LState per scope and exposes hook dispatch.
// Scopes are free-form keys; the narration bridge uses target kinds.
//
// Manager is safe for concurrent use. Calls into one scope are serialized;
// different scopes run concurrently.
type Manager struct {
	mu     sync.RWMutex
	states map[string]*vm
	src    dice.Source
	logger *zap.Logger
}

// NewManager creates a Manager.
//
// Precondition: src and logger must be non-nil.
// Postcondition: Returns a non-nil Manager with no scopes loaded.
func NewManager(src dice.Source, logger *zap.Logger) *Manager {
	if src == nil {
		panic("scripting.NewManager: src must not be nil")
	}
	if logger == nil {
		panic("scripting.NewManager: logger must not be nil")
	}
	return &Manager{
		states: make(map[string]*vm),
		src:    src,
		logger: logger,
	}
}

// LoadScope creates a sandboxed VM for scope, registers the engine.* modules,
// then executes every *.lua file in scriptDir in lexicographic order.
//
// Precondition: scope must be non-empty; scriptDir must be a readable directory.
// Postcondition: The scope VM replaces any previous one; returns error on load failure.
func (m *Manager) LoadScope(scope, scriptDir string, instLimit int) error {
	if scope == "" {
		return fmt.Errorf("scripting: scope must not be empty")
	}
	return m.loadInto(scope, scriptDir, instLimit)
}

// LoadGlobal creates the fallback VM consulted when a scope has no VM of its own.
//
// Precondition: scriptDir must be a readable directory.
// Postcondition: Global VM is registered; returns error on load failure.
func (m *Manager) LoadGlobal(scriptDir string, instLimit int) error {
	return m.loadInto(GlobalScope, scriptDir, instLimit)
}

// LoadString compiles src into scope's VM, creating the VM if needed.
//
// Precondition: scope must be non-empty.
// Postcondition: Globals defined by src are visible to later CallHook calls.
func (m *Manager) LoadString(scope, src string, instLimit int) error {
	if scope == "" {
		return fmt.Errorf("scripting: scope must not be empty")
	}
	m.mu.Lock()
	v, ok := m.states[scope]
	if !ok {
		v = m.newVM(instLimit)
		m.states[scope] = v
	}
	m.mu.Unlock()

	v.mu.Lock()
	defer v.mu.Unlock()
	cancel := Rearm(context.Background(), v.L, v.limit)
	defer cancel()
	if err := v.L.DoString(src); err != nil {
		return fmt.Errorf("scripting: loading inline script for %q: %w", scope, err)
	}
	return nil
}

func (m *Manager) newVM(instLimit int) *vm {
	L := NewSandboxedState(instLimit)
	m.RegisterModules(L)
	return &vm{L: L, limit: instLimit}
}

func (m *Manager) loadInto(key, scriptDir string, instLimit int) error {
	entries, err := os.ReadDir(scriptDir)
	if err != nil {
		return fmt.Errorf("scripting: reading script dir %q for %q: %w", scriptDir, key, err)
	}

	var luaFiles []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".lua" {
			luaFiles = append(luaFiles, filepath.Join(scriptDir, e.Name()))
		}
	}
	sort.Strings(luaFiles)

	v := m.newVM(instLimit)
	for _, path := range luaFiles {
		cancel := Rearm(context.Background(), v.L, instLimit)
		err := v.L.DoFile(path)
		cancel()
		if err != nil {
			v.L.Close()
			return fmt.Errorf("scripting: loading %q for %q: %w", path, key, err)
		}
	}

	m.mu.Lock()
	old := m.states[key]
	m.states[key] = v
	m.mu.Unlock()

	if old != nil {
		old.mu.Lock()
		old.L.Close()
		old.mu.Unlock()
	}
	m.logger.Debug("scripting: scope loaded",
		zap.String("scope", key),
		zap.Int("files", len(luaFiles)),
	)
	return nil
}

// HasScope reports whether a VM is loaded for scope.
func (m *Manager) HasScope(scope string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.states[scope]
	return ok
}

// CallHookTable calls hook with a single table argument built from fields in
// the target VM.
//
// Postcondition: Same fallback and error semantics as CallHook.
func (m *Manager) CallHookTable(ctx context.Context, scope, hook string, fields map[string]lua.LValue) (lua.LValue, error) {
	return m.call(ctx, scope, hook, func(L *lua.LState) []lua.LValue {
		tbl := L.NewTable()
		for k, v := range fields {
			L.SetField(tbl, k, v)
		}
		return []lua.LValue{tbl}
	})
}

// CallHook calls the named Lua global function in scope's VM. If the scope has
// no VM, the global VM is tried as a fallback. Returns (LNil, nil) if the hook
// is not defined or no VM exists. Lua runtime errors, including an exhausted
// instruction budget, are logged at Warn level and never propagated.
//
// Precondition: args must be valid lua.LValue instances.
// Postcondition: Returns the first return value of the hook, or LNil.
func (m *Manager) CallHook(ctx context.Context, scope, hook string, args ...lua.LValue) (lua.LValue, error) {
	return m.call(ctx, scope, hook, func(*lua.LState) []lua.LValue { return args })
}

func (m *Manager) call(ctx context.Context, scope, hook string, argsFor func(*lua.LState) []lua.LValue) (lua.LValue, error) {
	m.mu.RLock()
	v, ok := m.states[scope]
	if !ok {
		v = m.states[GlobalScope]
	}
	m.mu.RUnlock()

	if v == nil {
		return lua.LNil, nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	fn := v.L.GetGlobal(hook)
	if fn.Type() != lua.LTFunction {
		return lua.LNil, nil
	}

	cancel := Rearm(ctx, v.L, v.limit)
	defer cancel()

	if err := v.L.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, argsFor(v.L)...); err != nil {
		m.logger.Warn("scripting: Lua runtime error",
			zap.String("scope", scope),
			zap.String("hook", hook),
			zap.Error(err),
		)
		return lua.LNil, nil
	}

	ret := v.L.Get(-1)
	v.L.Pop(1)
	return ret, nil
}

// Close releases every VM.
//
// Postcondition: Subsequent CallHook calls return LNil.
func (m *Manager) Close() {
	m.mu.Lock()
	states := m.states
	m.states = make(map[string]*vm)
	m.mu.Unlock()

	for _, v := range states {
		v.mu.Lock()
		v.L.Close()
		v.mu.Unlock()
	}
}
