package compiler

import (
	"bytes"
	"strings"
	"testing"
)

// runSource feeds src through a full session (lex, parse, codegen, JIT,
// execute) and returns everything written to the error stream.
func runSource(t *testing.T, src string) string {
	t.Helper()
	var out bytes.Buffer
	sess, err := NewSession(strings.NewReader(src), &out, Options{})
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	defer sess.Close()
	if err := sess.Run(); err != nil {
		t.Fatalf("Run failed: %v\noutput:\n%s", err, out.String())
	}
	return out.String()
}

func expectEvaluated(t *testing.T, src, want string) {
	t.Helper()
	out := runSource(t, src)
	if !strings.Contains(out, "Evaluated to: "+want) {
		t.Errorf("expected %q in output:\n%s", "Evaluated to: "+want, out)
	}
}

func TestEvalDoubleArithmetic(t *testing.T) {
	expectEvaluated(t, `
def double foo(double x) return x + 1.0;
foo(2.0);
`, "3")
}

func TestEvalByteArithmetic(t *testing.T) {
	expectEvaluated(t, `
def byte sq(byte x) return x * x;
sq(7);
`, "49")
}

func TestEvalRecursion(t *testing.T) {
	expectEvaluated(t, `
def byte f(byte n) if n < 1 then return 0 else return f(n - 1) + 2;
f(5);
`, "10")
}

func TestEvalLocalVariables(t *testing.T) {
	expectEvaluated(t, `
def byte g() { var a byte = 3; var b byte = 4; return a + b; }
g();
`, "7")
}

func TestEvalStreqBuiltin(t *testing.T) {
	expectEvaluated(t, `
extern byte streq(byte_ptr a, byte la, byte_ptr b, byte lb);
streq("\x4142", 2, "\x4142", 2);
`, "1")
}

func TestEvalStreqDiffers(t *testing.T) {
	expectEvaluated(t, `
extern byte streq(byte_ptr a, byte la, byte_ptr b, byte lb);
streq("\x4142", 2, "\x4143", 2);
`, "0")
}

func TestEvalAssignment(t *testing.T) {
	expectEvaluated(t, `
def byte h() { var a byte = 1; a = a + 9; return a; }
h();
`, "10")
}

func TestEvalForLoop(t *testing.T) {
	// The body runs for i = 1, 2, 3; the end condition is tested after the
	// step, so the loop is do-while shaped.
	expectEvaluated(t, `
def byte sum() {
  var acc byte;
  for i = 1.0, i < 4.0 acc = acc + 1;
  return acc;
}
sum();
`, "3")
}

func TestCrossModuleCallAcrossItems(t *testing.T) {
	// f lives in an earlier JIT-compiled module; the later top-level call
	// resolves it through the prototype registry.
	out := runSource(t, `
def byte f(byte n) return n + 1;
f(1);
f(41);
`)
	if !strings.Contains(out, "Evaluated to: 2") {
		t.Errorf("first call missing in output:\n%s", out)
	}
	if !strings.Contains(out, "Evaluated to: 42") {
		t.Errorf("second call missing in output:\n%s", out)
	}
}

func TestParseErrorRecovery(t *testing.T) {
	// The bad definition is reported and skipped; the next item still
	// compiles and runs.
	out := runSource(t, `
def quux f() return 0;
def byte g() return 5;
g();
`)
	if !strings.Contains(out, "unknown type name") {
		t.Errorf("expected diagnostic for unknown type in:\n%s", out)
	}
	if !strings.Contains(out, "Evaluated to: 5") {
		t.Errorf("expected recovery and evaluation in:\n%s", out)
	}
}

func TestSemanticErrorIsNotFatal(t *testing.T) {
	out := runSource(t, `
nosuch();
7;
`)
	if !strings.Contains(out, "unknown function referenced: nosuch") {
		t.Errorf("expected unknown-function diagnostic in:\n%s", out)
	}
	if !strings.Contains(out, "Evaluated to: 7") {
		t.Errorf("expected later expression to evaluate in:\n%s", out)
	}
}

func TestDumpIR(t *testing.T) {
	var out bytes.Buffer
	sess, err := NewSession(strings.NewReader("def byte g() return 5;"), &out, Options{DumpIR: true})
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	defer sess.Close()
	if err := sess.Run(); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !strings.Contains(out.String(), "Read function definition:") {
		t.Errorf("expected IR dump header in:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "define i8 @g()") {
		t.Errorf("expected function IR in:\n%s", out.String())
	}
}
