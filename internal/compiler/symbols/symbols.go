package symbols

import (
	"tinygo.org/x/go-llvm"

	"github.com/kallang/kal/internal/compiler/types"
)

// Variable is the record the codegen keeps per local: the declared Kal
// type, its IR rendering, and the stack slot allocated in the function's
// entry block. Reads load from the slot, writes store into it.
type Variable struct {
	DeclaredType types.Type
	IRType       llvm.Type
	Slot         llvm.Value
}

// Table is a single flat mapping from local variable name to its Variable
// record. Name resolution is last-writer-wins; there is no block scope
// beyond what loops explicitly push and pop via Shadow/Restore.
type Table struct {
	vars map[string]Variable
}

func NewTable() *Table {
	return &Table{vars: make(map[string]Variable)}
}

// Define binds or rebinds a name.
func (t *Table) Define(name string, v Variable) {
	t.vars[name] = v
}

// Lookup resolves a name. The second result is false for undeclared names.
func (t *Table) Lookup(name string) (Variable, bool) {
	v, ok := t.vars[name]
	return v, ok
}

// Clear drops every binding. Called at the start of each function's
// codegen.
func (t *Table) Clear() {
	clear(t.vars)
}

// Len reports the number of live bindings.
func (t *Table) Len() int {
	return len(t.vars)
}

// Shadow rebinds name to v and returns the previous binding so the caller
// can Restore it. Loops use this to scope their induction variable to the
// body.
func (t *Table) Shadow(name string, v Variable) (old Variable, existed bool) {
	old, existed = t.vars[name]
	t.vars[name] = v
	return old, existed
}

// Restore undoes a Shadow: it reinstates the old binding, or deletes the
// name if there was none.
func (t *Table) Restore(name string, old Variable, existed bool) {
	if existed {
		t.vars[name] = old
	} else {
		delete(t.vars, name)
	}
}
