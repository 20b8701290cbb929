package codegen

import (
	"fmt"

	"tinygo.org/x/go-llvm"

	"github.com/kallang/kal/internal/compiler/ast"
	"github.com/kallang/kal/internal/compiler/symbols"
	"github.com/kallang/kal/internal/compiler/types"
)

// Compiler holds the state the IR generator threads through every
// emission: the LLVM context and builder, the current module, the
// per-function symbol table, and the cross-module prototype registry.
// Exactly one module is current at any time; after a successful JIT
// submission the driver calls ResetModule for a fresh one.
type Compiler struct {
	ctx     llvm.Context
	builder llvm.Builder
	module  llvm.Module

	named  *symbols.Table
	protos map[string]*ast.Prototype

	// return type of the function currently being generated
	curRetType types.Type

	strCount int
}

// New creates a Compiler with a fresh context and an empty current module.
func New() *Compiler {
	ctx := llvm.NewContext()
	return &Compiler{
		ctx:     ctx,
		builder: ctx.NewBuilder(),
		module:  ctx.NewModule("kal"),
		named:   symbols.NewTable(),
		protos:  make(map[string]*ast.Prototype),
	}
}

// Context returns the LLVM context modules are created in.
func (c *Compiler) Context() llvm.Context {
	return c.ctx
}

// Module returns the current module.
func (c *Compiler) Module() llvm.Module {
	return c.module
}

// Locals returns the per-function symbol table.
func (c *Compiler) Locals() *symbols.Table {
	return c.named
}

// ResetModule opens a fresh current module. The previous module's ownership
// must already have been transferred to the JIT host.
func (c *Compiler) ResetModule() {
	c.module = c.ctx.NewModule("kal")
}

// Close releases the builder and context. The current module is disposed
// too; modules handed to the JIT are freed by it.
func (c *Compiler) Close() {
	c.builder.Dispose()
	c.module.Dispose()
	c.ctx.Dispose()
}

// --- Type plumbing ---

// isFloat decides arithmetic dispatch: double operands use the
// floating-point instruction set, everything else the integer one.
func isFloat(v llvm.Value) bool {
	return v.Type().TypeKind() == llvm.DoubleTypeKind
}

// coerce converts v to the IR type want. Numeric conversions are unsigned;
// anything involving a pointer must already match.
func (c *Compiler) coerce(v llvm.Value, want llvm.Type) (llvm.Value, error) {
	have := v.Type()
	if have == want {
		return v, nil
	}
	hk, wk := have.TypeKind(), want.TypeKind()
	switch {
	case hk == llvm.DoubleTypeKind && wk == llvm.IntegerTypeKind:
		return c.builder.CreateFPToUI(v, want, "conv"), nil
	case hk == llvm.IntegerTypeKind && wk == llvm.DoubleTypeKind:
		return c.builder.CreateUIToFP(v, want, "conv"), nil
	case hk == llvm.IntegerTypeKind && wk == llvm.IntegerTypeKind:
		if have.IntTypeWidth() < want.IntTypeWidth() {
			return c.builder.CreateZExt(v, want, "conv"), nil
		}
		return c.builder.CreateTrunc(v, want, "conv"), nil
	}
	return llvm.Value{}, fmt.Errorf("cannot convert value of type %s", have.String())
}

// entryAlloca emits an alloca in the entry block of the function that owns
// the current insertion point, so mem2reg can promote the slot later.
func (c *Compiler) entryAlloca(ty llvm.Type, name string) llvm.Value {
	fn := c.builder.GetInsertBlock().Parent()
	entry := fn.EntryBasicBlock()

	tmp := c.ctx.NewBuilder()
	defer tmp.Dispose()
	if first := entry.FirstInstruction(); first.IsNil() {
		tmp.SetInsertPointAtEnd(entry)
	} else {
		tmp.SetInsertPointBefore(first)
	}
	return tmp.CreateAlloca(ty, name)
}

// --- Expression lowering ---

// CodegenExpr lowers an expression to an IR value.
func (c *Compiler) CodegenExpr(e ast.Expression) (llvm.Value, error) {
	switch n := e.(type) {
	case *ast.IntLiteral:
		return llvm.ConstInt(c.ctx.Int8Type(), uint64(n.Value), false), nil

	case *ast.FloatLiteral:
		return llvm.ConstFloat(c.ctx.DoubleType(), n.Value), nil

	case *ast.StrLiteral:
		return c.codegenStr(n), nil

	case *ast.VariableExpr:
		v, ok := c.named.Lookup(n.Name)
		if !ok {
			return llvm.Value{}, fmt.Errorf("unknown variable %s", n.Name)
		}
		return c.builder.CreateLoad(v.IRType, v.Slot, n.Name), nil

	case *ast.UnaryExpr:
		return c.codegenUnary(n)

	case *ast.BinaryExpr:
		return c.codegenBinary(n)

	case *ast.CallExpr:
		return c.codegenCall(n)
	}
	return llvm.Value{}, fmt.Errorf("cannot lower expression %T", e)
}

// codegenStr emits the literal as a private constant null-terminated byte
// array and yields the address of its first byte.
func (c *Compiler) codegenStr(n *ast.StrLiteral) llvm.Value {
	name := fmt.Sprintf("str.%d", c.strCount)
	c.strCount++

	init := c.ctx.ConstString(string(n.Value), true)
	arrType := llvm.ArrayType(c.ctx.Int8Type(), len(n.Value)+1)
	global := llvm.AddGlobal(c.module, arrType, name)
	global.SetInitializer(init)
	global.SetLinkage(llvm.PrivateLinkage)
	global.SetGlobalConstant(true)
	global.SetUnnamedAddr(true)

	zero := llvm.ConstInt(c.ctx.Int64Type(), 0, false)
	return c.builder.CreateInBoundsGEP(arrType, global, []llvm.Value{zero, zero}, "strtmp")
}

func (c *Compiler) codegenUnary(n *ast.UnaryExpr) (llvm.Value, error) {
	ref, ok := n.Operand.(*ast.VariableExpr)
	if !ok {
		return llvm.Value{}, fmt.Errorf("operand of unary '%c' must be a variable", n.Op)
	}
	v, found := c.named.Lookup(ref.Name)
	if !found {
		return llvm.Value{}, fmt.Errorf("unknown variable %s", ref.Name)
	}

	switch n.Op {
	case '&':
		// The slot's address itself; no load.
		return v.Slot, nil
	case '*':
		if v.DeclaredType != types.BytePtr {
			return llvm.Value{}, fmt.Errorf("cannot dereference %s of type %s", ref.Name, v.DeclaredType)
		}
		ptr := c.builder.CreateLoad(v.IRType, v.Slot, ref.Name)
		return c.builder.CreateLoad(c.ctx.Int8Type(), ptr, "deref"), nil
	}
	return llvm.Value{}, fmt.Errorf("invalid unary op: %c", n.Op)
}

func (c *Compiler) codegenBinary(n *ast.BinaryExpr) (llvm.Value, error) {
	// Assignment is special cased: the left side is a slot to store into,
	// not a value. Check the shape before touching the right side.
	if n.Op == '=' {
		return c.codegenAssign(n)
	}

	l, err := c.CodegenExpr(n.LHS)
	if err != nil {
		return llvm.Value{}, err
	}
	r, err := c.CodegenExpr(n.RHS)
	if err != nil {
		return llvm.Value{}, err
	}
	if r, err = c.coerce(r, l.Type()); err != nil {
		return llvm.Value{}, err
	}

	if isFloat(l) {
		switch n.Op {
		case '+':
			return c.builder.CreateFAdd(l, r, "addtmp"), nil
		case '-':
			return c.builder.CreateFSub(l, r, "subtmp"), nil
		case '*':
			return c.builder.CreateFMul(l, r, "multmp"), nil
		case '<':
			return c.builder.CreateFCmp(llvm.FloatULT, l, r, "cmptmp"), nil
		case '!':
			return c.builder.CreateFCmp(llvm.FloatUNE, l, r, "cmptmp"), nil
		}
	} else {
		switch n.Op {
		case '+':
			return c.builder.CreateAdd(l, r, "addtmp"), nil
		case '-':
			return c.builder.CreateSub(l, r, "subtmp"), nil
		case '*':
			return c.builder.CreateMul(l, r, "multmp"), nil
		case '<':
			return c.builder.CreateICmp(llvm.IntULT, l, r, "cmptmp"), nil
		case '!':
			return c.builder.CreateICmp(llvm.IntNE, l, r, "cmptmp"), nil
		}
	}
	return llvm.Value{}, fmt.Errorf("invalid bin op: %c", n.Op)
}

// codegenAssign stores the right side into the left side's slot and yields
// the stored value.
func (c *Compiler) codegenAssign(n *ast.BinaryExpr) (llvm.Value, error) {
	ref, ok := n.LHS.(*ast.VariableExpr)
	if !ok {
		return llvm.Value{}, fmt.Errorf("left side of '=' must be a variable")
	}
	v, found := c.named.Lookup(ref.Name)
	if !found {
		return llvm.Value{}, fmt.Errorf("unknown variable %s", ref.Name)
	}

	val, err := c.CodegenExpr(n.RHS)
	if err != nil {
		return llvm.Value{}, err
	}
	if val, err = c.coerce(val, v.IRType); err != nil {
		return llvm.Value{}, err
	}
	c.builder.CreateStore(val, v.Slot)
	return val, nil
}

func (c *Compiler) codegenCall(n *ast.CallExpr) (llvm.Value, error) {
	callee, err := c.resolveFunction(n.Callee)
	if err != nil {
		return llvm.Value{}, err
	}

	if callee.ParamsCount() != len(n.Args) {
		return llvm.Value{}, fmt.Errorf("incorrect # arguments passed to %s: expected %d, got %d",
			n.Callee, callee.ParamsCount(), len(n.Args))
	}

	fnType := callee.GlobalValueType()
	paramTypes := fnType.ParamTypes()

	args := make([]llvm.Value, len(n.Args))
	for i, a := range n.Args {
		v, err := c.CodegenExpr(a)
		if err != nil {
			return llvm.Value{}, err
		}
		if v, err = c.coerce(v, paramTypes[i]); err != nil {
			return llvm.Value{}, err
		}
		args[i] = v
	}
	return c.builder.CreateCall(fnType, callee, args, "calltmp"), nil
}

// --- Statement lowering ---

// CodegenStmt lowers a statement. returned reports that the statement
// unconditionally ended control flow with a return, so the caller must not
// append a fall-through terminator.
func (c *Compiler) CodegenStmt(s ast.Statement) (returned bool, err error) {
	switch n := s.(type) {
	case *ast.ExprStmt:
		_, err := c.CodegenExpr(n.Expr)
		return false, err

	case *ast.VarDeclStmt:
		return false, c.codegenVarDecl(n)

	case *ast.IfStmt:
		return c.codegenIf(n)

	case *ast.ForStmt:
		return c.codegenFor(n)

	case *ast.BlockStmt:
		for _, stmt := range n.Stmts {
			returned, err := c.CodegenStmt(stmt)
			if err != nil {
				return false, err
			}
			if returned {
				return true, nil
			}
		}
		return false, nil

	case *ast.ReturnStmt:
		val, err := c.CodegenExpr(n.Value)
		if err != nil {
			return false, err
		}
		if val, err = c.coerce(val, c.curRetType.IR(c.ctx)); err != nil {
			return false, err
		}
		c.builder.CreateRet(val)
		return true, nil
	}
	return false, fmt.Errorf("cannot lower statement %T", s)
}

func (c *Compiler) codegenVarDecl(n *ast.VarDeclStmt) error {
	irType := n.Type.IR(c.ctx)
	slot := c.entryAlloca(irType, n.Name)

	init := n.Type.Zero(c.ctx)
	if n.Init != nil {
		v, err := c.CodegenExpr(n.Init)
		if err != nil {
			return err
		}
		if v, err = c.coerce(v, irType); err != nil {
			return err
		}
		init = v
	}
	c.builder.CreateStore(init, slot)

	c.named.Define(n.Name, symbols.Variable{DeclaredType: n.Type, IRType: irType, Slot: slot})
	return nil
}

// truthy compares a value against its own type's zero, yielding i1.
func (c *Compiler) truthy(v llvm.Value, name string) (llvm.Value, error) {
	switch v.Type().TypeKind() {
	case llvm.DoubleTypeKind:
		return c.builder.CreateFCmp(llvm.FloatONE, v, llvm.ConstFloat(c.ctx.DoubleType(), 0), name), nil
	case llvm.IntegerTypeKind:
		return c.builder.CreateICmp(llvm.IntNE, v, llvm.ConstInt(v.Type(), 0, false), name), nil
	}
	return llvm.Value{}, fmt.Errorf("condition has non-numeric type %s", v.Type().String())
}

func (c *Compiler) codegenIf(n *ast.IfStmt) (bool, error) {
	cond, err := c.CodegenExpr(n.Cond)
	if err != nil {
		return false, err
	}
	cond, err = c.truthy(cond, "ifcond")
	if err != nil {
		return false, err
	}

	fn := c.builder.GetInsertBlock().Parent()
	thenBB := c.ctx.AddBasicBlock(fn, "then")
	elseBB := c.ctx.AddBasicBlock(fn, "else")
	mergeBB := c.ctx.AddBasicBlock(fn, "ifcont")
	c.builder.CreateCondBr(cond, thenBB, elseBB)

	c.builder.SetInsertPointAtEnd(thenBB)
	thenReturned, err := c.CodegenStmt(n.Then)
	if err != nil {
		return false, err
	}
	if !thenReturned {
		c.builder.CreateBr(mergeBB)
	}

	c.builder.SetInsertPointAtEnd(elseBB)
	elseReturned, err := c.CodegenStmt(n.Else)
	if err != nil {
		return false, err
	}
	if !elseReturned {
		c.builder.CreateBr(mergeBB)
	}

	// Merge fallthrough may continue even when both arms return; the
	// enclosing function then synthesises a default return there.
	c.builder.SetInsertPointAtEnd(mergeBB)
	return false, nil
}

func (c *Compiler) codegenFor(n *ast.ForStmt) (bool, error) {
	doubleType := c.ctx.DoubleType()

	// The loop variable is double typed and lives in its own slot.
	slot := c.entryAlloca(doubleType, n.VarName)

	start, err := c.CodegenExpr(n.Start)
	if err != nil {
		return false, err
	}
	if start, err = c.coerce(start, doubleType); err != nil {
		return false, err
	}
	c.builder.CreateStore(start, slot)

	fn := c.builder.GetInsertBlock().Parent()
	loopBB := c.ctx.AddBasicBlock(fn, "loop")
	c.builder.CreateBr(loopBB)
	c.builder.SetInsertPointAtEnd(loopBB)

	// The loop variable shadows any outer binding for the body's duration.
	loopVar := symbols.Variable{DeclaredType: types.Double, IRType: doubleType, Slot: slot}
	old, existed := c.named.Shadow(n.VarName, loopVar)
	defer c.named.Restore(n.VarName, old, existed)

	bodyReturned, err := c.CodegenStmt(n.Body)
	if err != nil {
		return false, err
	}
	if bodyReturned {
		// The body's terminator is already in place; no back-edge.
		return true, nil
	}

	step, err := c.CodegenExpr(n.Step)
	if err != nil {
		return false, err
	}
	if step, err = c.coerce(step, doubleType); err != nil {
		return false, err
	}
	cur := c.builder.CreateLoad(doubleType, slot, n.VarName)
	next := c.builder.CreateFAdd(cur, step, "nextvar")
	c.builder.CreateStore(next, slot)

	end, err := c.CodegenExpr(n.End)
	if err != nil {
		return false, err
	}
	cond, err := c.truthy(end, "loopcond")
	if err != nil {
		return false, err
	}

	afterBB := c.ctx.AddBasicBlock(fn, "afterloop")
	c.builder.CreateCondBr(cond, loopBB, afterBB)
	c.builder.SetInsertPointAtEnd(afterBB)
	return false, nil
}

// --- Functions ---

// CodegenProto emits the prototype into the current module as a declaration
// and names its parameters.
func (c *Compiler) CodegenProto(proto *ast.Prototype) llvm.Value {
	paramTypes := make([]llvm.Type, len(proto.Params))
	for i, p := range proto.Params {
		paramTypes[i] = p.Type.IR(c.ctx)
	}
	fnType := llvm.FunctionType(proto.RetType.IR(c.ctx), paramTypes, false)
	fn := llvm.AddFunction(c.module, proto.Name, fnType)
	for i, p := range proto.Params {
		fn.Param(i).SetName(p.Name)
	}
	return fn
}

// RegisterProto records the prototype in the cross-module registry. Entries
// survive module resets and are never removed.
func (c *Compiler) RegisterProto(proto *ast.Prototype) {
	c.protos[proto.Name] = proto
}

// DeclareExtern registers the prototype and emits it into the current
// module unless it is already present there.
func (c *Compiler) DeclareExtern(proto *ast.Prototype) llvm.Value {
	c.RegisterProto(proto)
	if fn := c.module.NamedFunction(proto.Name); !fn.IsNil() {
		return fn
	}
	return c.CodegenProto(proto)
}

// resolveFunction finds the named function in the current module, or
// re-emits its registered prototype as an external declaration so code
// compiled into an earlier module stays callable.
func (c *Compiler) resolveFunction(name string) (llvm.Value, error) {
	if fn := c.module.NamedFunction(name); !fn.IsNil() {
		return fn, nil
	}
	if proto, ok := c.protos[name]; ok {
		return c.CodegenProto(proto), nil
	}
	return llvm.Value{}, fmt.Errorf("unknown function referenced: %s", name)
}

// CodegenFunction lowers a definition into the current module, verifies it
// and runs the optimisation pipeline. The prototype's ownership transfers
// into the registry, so this may be called at most once per definition.
func (c *Compiler) CodegenFunction(f *ast.Function) (llvm.Value, error) {
	proto := f.Proto
	c.RegisterProto(proto)

	fn, err := c.resolveFunction(proto.Name)
	if err != nil {
		return llvm.Value{}, err
	}
	if fn.BasicBlocksCount() != 0 {
		return llvm.Value{}, fmt.Errorf("function %s cannot be redefined", proto.Name)
	}

	entry := c.ctx.AddBasicBlock(fn, "entry")
	c.builder.SetInsertPointAtEnd(entry)

	// Each parameter is copied into a stack slot so its name is writeable
	// like any other local.
	c.named.Clear()
	c.curRetType = proto.RetType
	for i, p := range proto.Params {
		irType := p.Type.IR(c.ctx)
		slot := c.entryAlloca(irType, p.Name)
		c.builder.CreateStore(fn.Param(i), slot)
		c.named.Define(p.Name, symbols.Variable{DeclaredType: p.Type, IRType: irType, Slot: slot})
	}

	returned, err := c.CodegenStmt(f.Body)
	c.named.Clear()
	if err != nil {
		// Erase the half-built function so it can be defined again. The
		// registry entry stays.
		fn.EraseFromParentAsFunction()
		return llvm.Value{}, err
	}
	if !returned {
		c.builder.CreateRet(proto.RetType.Zero(c.ctx))
	}

	if err := llvm.VerifyFunction(fn, llvm.ReturnStatusAction); err != nil {
		return llvm.Value{}, &FatalError{Err: fmt.Errorf("verification of %s failed: %w", proto.Name, err)}
	}

	if err := c.optimize(); err != nil {
		return llvm.Value{}, err
	}
	return fn, nil
}

// optimize runs the fixed pipeline over the current module: promotion of
// stack slots to registers, instruction combining, reassociation, global
// value numbering, CFG simplification, and a final module verify.
func (c *Compiler) optimize() error {
	opts := llvm.NewPassBuilderOptions()
	defer opts.Dispose()
	passes := "function(mem2reg,instcombine,reassociate,gvn,simplifycfg)"
	if err := c.module.RunPasses(passes, llvm.TargetMachine{}, opts); err != nil {
		return &FatalError{Err: fmt.Errorf("optimisation pipeline failed: %w", err)}
	}
	if err := llvm.VerifyModule(c.module, llvm.ReturnStatusAction); err != nil {
		return &FatalError{Err: fmt.Errorf("module verification failed: %w", err)}
	}
	return nil
}

// A FatalError reports malformed IR escaping the front end. The driver
// aborts on it instead of recovering; a well-formed front end must not
// produce ill-formed IR.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return e.Err.Error() }
func (e *FatalError) Unwrap() error { return e.Err }
