package types

import "tinygo.org/x/go-llvm"

// Type is one of the four primitive Kal types. The type universe is closed:
// every parameter, return value and local names one of these.
type Type int

const (
	Double Type = iota // 64-bit IEEE float
	Byte               // 8-bit integer
	Bool               // 1-bit integer
	BytePtr            // pointer to byte
)

var names = map[string]Type{
	"double":   Double,
	"byte":     Byte,
	"bool":     Bool,
	"byte_ptr": BytePtr,
}

// Lookup resolves a type name from source. The second result is false for
// unknown names.
func Lookup(name string) (Type, bool) {
	t, ok := names[name]
	return t, ok
}

func (t Type) String() string {
	switch t {
	case Double:
		return "double"
	case Byte:
		return "byte"
	case Bool:
		return "bool"
	case BytePtr:
		return "byte_ptr"
	}
	return "unknown"
}

// IR returns the LLVM rendering of the type in ctx.
func (t Type) IR(ctx llvm.Context) llvm.Type {
	switch t {
	case Double:
		return ctx.DoubleType()
	case Byte:
		return ctx.Int8Type()
	case Bool:
		return ctx.Int1Type()
	case BytePtr:
		return llvm.PointerType(ctx.Int8Type(), 0)
	}
	panic("unknown type " + t.String())
}

// Zero returns the zero-initialisation value of the type: 0.0 for double,
// 0 for the integer types, null for byte_ptr.
func (t Type) Zero(ctx llvm.Context) llvm.Value {
	switch t {
	case Double:
		return llvm.ConstFloat(ctx.DoubleType(), 0)
	case Byte:
		return llvm.ConstInt(ctx.Int8Type(), 0, false)
	case Bool:
		return llvm.ConstInt(ctx.Int1Type(), 0, false)
	case BytePtr:
		return llvm.ConstPointerNull(llvm.PointerType(ctx.Int8Type(), 0))
	}
	panic("unknown type " + t.String())
}

// IsFloat reports whether arithmetic on the type uses the floating-point
// instruction set.
func (t Type) IsFloat() bool {
	return t == Double
}
