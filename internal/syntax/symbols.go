package syntax

import "sync"

// SymbolID is an interned string handle. Zero is the empty string.
type SymbolID uint32

// SymbolTable interns names shared across every file of a design. It is safe
// for concurrent use so per-file loading can run in parallel.
type SymbolTable struct {
	mu    sync.RWMutex
	ids   map[string]SymbolID
	names []string
}

// NewSymbolTable returns a table holding only the empty symbol.
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{
		ids:   map[string]SymbolID{"": 0},
		names: []string{""},
	}
}

// Register interns name and returns its id.
func (t *SymbolTable) Register(name string) SymbolID {
	t.mu.RLock()
	id, ok := t.ids[name]
	t.mu.RUnlock()
	if ok {
		return id
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if id, ok := t.ids[name]; ok {
		return id
	}
	id = SymbolID(len(t.names))
	t.names = append(t.names, name)
	t.ids[name] = id
	return id
}

// Lookup returns the id of name without interning it.
func (t *SymbolTable) Lookup(name string) (SymbolID, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	id, ok := t.ids[name]
	return id, ok
}

// Name returns the string for id, or "" if id is unknown.
func (t *SymbolTable) Name(id SymbolID) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if int(id) >= len(t.names) {
		return ""
	}
	return t.names[id]
}

// Len returns the number of interned symbols, including the empty one.
func (t *SymbolTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.names)
}
