package compiler

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/kallang/kal/internal/compiler/codegen"
	"github.com/kallang/kal/internal/compiler/jit"
	"github.com/kallang/kal/internal/compiler/lexer"
	"github.com/kallang/kal/internal/compiler/parser"
	"github.com/kallang/kal/internal/compiler/token"
)

// Options configure a Session.
type Options struct {
	// DumpIR echoes the IR of each finished top-level item to the error
	// stream.
	DumpIR bool
	// Interactive prints a ready> prompt before each top-level item.
	Interactive bool
}

// Session drives the pipeline: it pulls tokens from the lexer, dispatches
// to the parser by leading keyword, lowers each finished item, submits the
// module to the JIT, and resets the module for the next item.
type Session struct {
	lex    *lexer.Lexer
	parser *parser.Parser
	comp   *codegen.Compiler
	engine *jit.Engine
	errw   io.Writer
	opts   Options
}

// NewSession builds a session reading source from src and writing
// diagnostics, IR dumps and evaluation results to errw.
func NewSession(src io.Reader, errw io.Writer, opts Options) (*Session, error) {
	s := &Session{errw: errw, opts: opts}
	s.prompt()

	s.lex = lexer.New(bufio.NewReader(src))
	s.parser = parser.New(s.lex)
	s.comp = codegen.New()

	engine, err := jit.New(s.comp.Context().NewModule("kal_jit"))
	if err != nil {
		s.comp.Close()
		return nil, err
	}
	s.engine = engine
	return s, nil
}

// Close releases the JIT engine and the compiler context.
func (s *Session) Close() {
	s.engine.Close()
	s.comp.Close()
}

func (s *Session) prompt() {
	if s.opts.Interactive {
		fmt.Fprint(s.errw, "ready> ")
	}
}

// drainDiagnostics flushes collected lexer and parser errors to the error
// stream.
func (s *Session) drainDiagnostics() {
	for _, msg := range s.lex.Errors() {
		fmt.Fprintln(s.errw, msg)
	}
	for _, msg := range s.parser.Errors() {
		fmt.Fprintln(s.errw, msg)
	}
}

// Run executes the top-level loop until end of input. It returns an error
// only for fatal conditions (malformed IR out of the front end); source
// errors are reported to the error stream and recovered from by skipping
// one token.
func (s *Session) Run() error {
	for {
		switch s.parser.Cur() {
		case token.EOF:
			s.drainDiagnostics()
			return nil
		case token.Semi:
			// Ignore top-level semicolons.
			s.parser.Advance()
			continue
		case token.Def:
			if err := s.handleDefinition(); err != nil {
				return err
			}
		case token.Extern:
			s.handleExtern()
		default:
			if err := s.handleTopLevelExpr(); err != nil {
				return err
			}
		}
		s.drainDiagnostics()
		s.prompt()
	}
}

// fail logs a codegen error, or propagates it when it is fatal.
func (s *Session) fail(err error) error {
	var fatal *codegen.FatalError
	if errors.As(err, &fatal) {
		return err
	}
	fmt.Fprintln(s.errw, err)
	return nil
}

func (s *Session) handleDefinition() error {
	fn := s.parser.ParseDefinition()
	if fn == nil {
		// Skip one token for error recovery.
		s.parser.Advance()
		return nil
	}
	if _, err := s.comp.CodegenFunction(fn); err != nil {
		return s.fail(err)
	}
	if s.opts.DumpIR {
		fmt.Fprintf(s.errw, "Read function definition:\n%s", s.comp.Module().String())
	}
	s.engine.AddModule(s.comp.Module())
	s.comp.ResetModule()
	return nil
}

func (s *Session) handleExtern() {
	proto := s.parser.ParseExtern()
	if proto == nil {
		s.parser.Advance()
		return
	}
	fn := s.comp.DeclareExtern(proto)
	if s.opts.DumpIR {
		fmt.Fprintf(s.errw, "Read extern:\n%s\n", strings.TrimSpace(fn.String()))
	}
}

func (s *Session) handleTopLevelExpr() error {
	// Evaluate a top-level expression by wrapping it in an anonymous
	// function.
	fn := s.parser.ParseTopLevelExpr()
	if fn == nil {
		s.parser.Advance()
		return nil
	}
	if _, err := s.comp.CodegenFunction(fn); err != nil {
		return s.fail(err)
	}
	if s.opts.DumpIR {
		fmt.Fprintf(s.errw, "Read a top-level expr:\n%s", s.comp.Module().String())
	}

	handle := s.engine.AddModule(s.comp.Module())
	s.comp.ResetModule()

	sym, ok := s.engine.FindSymbol(parser.AnonExprName)
	if !ok {
		fmt.Fprintf(s.errw, "%s not found\n", parser.AnonExprName)
		return nil
	}
	res := s.engine.RunByteFunction(sym)
	fmt.Fprintf(s.errw, "Evaluated to: %d\n", res)

	// The anonymous function is single use.
	s.engine.RemoveModule(handle)
	return nil
}
