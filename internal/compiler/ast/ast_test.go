package ast

import (
	"testing"

	"github.com/kallang/kal/internal/compiler/types"
)

func TestBinaryExprString(t *testing.T) {
	e := &BinaryExpr{
		Op:  '<',
		LHS: &BinaryExpr{Op: '+', LHS: &VariableExpr{Name: "a"}, RHS: &VariableExpr{Name: "b"}},
		RHS: &IntLiteral{Value: 10},
	}
	if got := e.String(); got != "((a+b)<10)" {
		t.Errorf("String() expected=%q, got=%q", "((a+b)<10)", got)
	}
}

func TestFloatLiteralString(t *testing.T) {
	cases := []struct {
		val  float64
		want string
	}{
		{1.0, "1.0"},
		{2.5, "2.5"},
		{0.0, "0.0"},
	}
	for _, c := range cases {
		e := &FloatLiteral{Value: c.val}
		if got := e.String(); got != c.want {
			t.Errorf("FloatLiteral(%g).String() expected=%q, got=%q", c.val, c.want, got)
		}
	}
}

func TestVarDeclString(t *testing.T) {
	withInit := &VarDeclStmt{Name: "a", Type: types.Byte, Init: &IntLiteral{Value: 3}}
	if got := withInit.String(); got != "var a byte = 3" {
		t.Errorf("String() expected=%q, got=%q", "var a byte = 3", got)
	}

	zeroInit := &VarDeclStmt{Name: "p", Type: types.BytePtr}
	if got := zeroInit.String(); got != "var p byte_ptr" {
		t.Errorf("String() expected=%q, got=%q", "var p byte_ptr", got)
	}
}

func TestUnaryExprString(t *testing.T) {
	deref := &UnaryExpr{Op: '*', Operand: &VariableExpr{Name: "p"}}
	if got := deref.String(); got != "*p" {
		t.Errorf("String() expected=%q, got=%q", "*p", got)
	}
	addr := &UnaryExpr{Op: '&', Operand: &VariableExpr{Name: "x"}}
	if got := addr.String(); got != "&x" {
		t.Errorf("String() expected=%q, got=%q", "&x", got)
	}
}

func TestPrototypeString(t *testing.T) {
	proto := &Prototype{
		Name:    "streq",
		RetType: types.Byte,
		Params: []Param{
			{Name: "a", Type: types.BytePtr},
			{Name: "la", Type: types.Byte},
		},
	}
	want := "byte streq(byte_ptr a, byte la)"
	if got := proto.String(); got != want {
		t.Errorf("String() expected=%q, got=%q", want, got)
	}
}

func TestFunctionString(t *testing.T) {
	fn := &Function{
		Proto: &Prototype{Name: "f", RetType: types.Double, Params: []Param{{Name: "x", Type: types.Double}}},
		Body:  &ReturnStmt{Value: &VariableExpr{Name: "x"}},
	}
	want := "def double f(double x) return x"
	if got := fn.String(); got != want {
		t.Errorf("String() expected=%q, got=%q", want, got)
	}
}

func TestStrLiteralString(t *testing.T) {
	e := &StrLiteral{Value: []byte("hi")}
	if got := e.String(); got != `"hi"` {
		t.Errorf("String() expected=%q, got=%q", `"hi"`, got)
	}
}
