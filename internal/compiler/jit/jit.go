package jit

import (
	"fmt"
	"sync"

	"tinygo.org/x/go-llvm"
)

// Handle identifies a module owned by the engine.
type Handle int

// Engine wraps an MCJIT execution engine as the registry of compiled
// modules: modules are added by handle, removed by handle, and symbols
// resolve across all live modules. The engine takes ownership of every
// module passed to AddModule.
type Engine struct {
	ee      llvm.ExecutionEngine
	modules map[Handle]llvm.Module
	next    Handle
}

var jitInit sync.Once

// New creates an Engine seeded with an (empty) module from the compiler's
// context. All later modules must come from the same context.
func New(seed llvm.Module) (*Engine, error) {
	jitInit.Do(func() {
		llvm.LinkInMCJIT()
		llvm.InitializeNativeTarget()
		llvm.InitializeNativeAsmPrinter()
	})

	opts := llvm.NewMCJITCompilerOptions()
	opts.SetMCJITOptimizationLevel(2)
	ee, err := llvm.NewMCJITCompiler(seed, opts)
	if err != nil {
		return nil, fmt.Errorf("creating MCJIT engine: %w", err)
	}
	return &Engine{ee: ee, modules: make(map[Handle]llvm.Module)}, nil
}

// AddModule transfers the module to the engine and returns its handle.
// Declarations matching a runtime builtin are bound to the builtin's
// address.
func (e *Engine) AddModule(m llvm.Module) Handle {
	e.ee.AddModule(m)
	e.installBuiltins(m)
	h := e.next
	e.next++
	e.modules[h] = m
	return h
}

// RemoveModule frees the module and its compiled code.
func (e *Engine) RemoveModule(h Handle) {
	m, ok := e.modules[h]
	if !ok {
		return
	}
	e.ee.RemoveModule(m)
	delete(e.modules, h)
	m.Dispose()
}

// FindSymbol resolves a function by name across all live modules.
func (e *Engine) FindSymbol(name string) (llvm.Value, bool) {
	fn := e.ee.FindFunction(name)
	return fn, !fn.IsNil()
}

// RunByteFunction invokes a zero-argument function returning byte.
func (e *Engine) RunByteFunction(fn llvm.Value) byte {
	res := e.ee.RunFunction(fn, []llvm.GenericValue{})
	defer res.Dispose()
	return byte(res.Int(false))
}

// installBuiltins binds any declared-but-undefined runtime helper in m to
// its native implementation.
func (e *Engine) installBuiltins(m llvm.Module) {
	for i, name := range builtinNames {
		fn := m.NamedFunction(name)
		if fn.IsNil() || !fn.IsDeclaration() {
			continue
		}
		e.ee.AddGlobalMapping(fn, builtinAddr(i))
	}
}

// Close disposes the engine and every module it still owns.
func (e *Engine) Close() {
	e.ee.Dispose()
	e.modules = nil
}
