package abi

import "strings"

// StubTable is one DLL's published import surface: a set of named
// functions the PE loader's import resolver can bind a guest IAT slot
// to. win32, registry, and gfx each build one of these and hand it to
// the loader; DLL name matching is case-insensitive, function-name
// matching is case-sensitive, per spec.md §4.5.
type StubTable struct {
	DLLName string
	Funcs   map[string]Handler
}

// NewStubTable builds an empty table for the named DLL.
func NewStubTable(dllName string) *StubTable {
	return &StubTable{DLLName: dllName, Funcs: make(map[string]Handler)}
}

// Add registers a handler under name.
func (t *StubTable) Add(name string, h Handler) *StubTable {
	t.Funcs[name] = h
	return t
}

// Registry concatenates every DLL's StubTable the loader can draw
// imports from.
type Registry struct {
	tables map[string]*StubTable // lower-cased DLL name -> table
}

// NewRegistry builds an empty import registry.
func NewRegistry() *Registry {
	return &Registry{tables: make(map[string]*StubTable)}
}

// Register adds t, keyed by its DLL name folded to lower case.
func (r *Registry) Register(t *StubTable) {
	r.tables[strings.ToLower(t.DLLName)] = t
}

// Resolve looks up dllName (case-insensitive) and funcName (case-sensitive)
// and returns the bound Handler, or ok=false if either is unresolved.
func (r *Registry) Resolve(dllName, funcName string) (Handler, bool) {
	t, ok := r.tables[strings.ToLower(dllName)]
	if !ok {
		return nil, false
	}
	h, ok := t.Funcs[funcName]
	return h, ok
}
