package parser

import (
	"fmt"

	"github.com/kallang/kal/internal/compiler/ast"
	"github.com/kallang/kal/internal/compiler/lexer"
	"github.com/kallang/kal/internal/compiler/token"
	"github.com/kallang/kal/internal/compiler/types"
)

// AnonExprName is the synthetic function a top-level expression is wrapped
// in. The driver resolves and invokes it after JIT submission.
const AnonExprName = "__anon_expr"

// binopPrecedence ranks the binary operators. 1 is the lowest precedence
// that still parses as a binop.
var binopPrecedence = map[token.Token]int{
	'=': 2,
	'<': 10,
	'!': 10,
	'+': 20,
	'-': 20,
	'*': 40,
}

// Parser consumes tokens through a single current-token cursor. Each
// production reads the cursor, parses sub-productions, and leaves the
// cursor at the first token it did not consume. A nil return signals an
// error, reported once via Errors.
type Parser struct {
	l      *lexer.Lexer
	curTok token.Token
	errors []string
}

// New returns a Parser over l and primes the cursor with the first token.
func New(l *lexer.Lexer) *Parser {
	p := &Parser{l: l}
	p.nextToken()
	return p
}

func (p *Parser) nextToken() token.Token {
	p.curTok = p.l.Next()
	return p.curTok
}

// Cur returns the current token without consuming it.
func (p *Parser) Cur() token.Token {
	return p.curTok
}

// Advance consumes one token. The driver uses it to skip top-level
// semicolons and to recover after a parse error.
func (p *Parser) Advance() {
	p.nextToken()
}

// Errors returns the diagnostics collected so far and resets the list.
func (p *Parser) Errors() []string {
	errs := p.errors
	p.errors = nil
	return errs
}

func (p *Parser) addError(format string, args ...any) {
	line, col := p.l.Pos()
	msg := fmt.Sprintf(format, args...)
	p.errors = append(p.errors, fmt.Sprintf("%d:%d: %s", line, col, msg))
}

// errExpr reports an error and returns a nil expression.
func (p *Parser) errExpr(format string, args ...any) ast.Expression {
	p.addError(format, args...)
	return nil
}

// --- Expressions ---

// tokPrecedence ranks the current token as a binary operator, or -1 so the
// precedence-climbing loop terminates.
func (p *Parser) tokPrecedence() int {
	if !p.curTok.IsChar() {
		return -1
	}
	prec, ok := binopPrecedence[p.curTok]
	if !ok {
		return -1
	}
	return prec
}

// parseExpression ::= primary binoprhs
func (p *Parser) parseExpression() ast.Expression {
	lhs := p.parsePrimary()
	if lhs == nil {
		return nil
	}
	return p.parseBinOpRHS(0, lhs)
}

// parseBinOpRHS keeps consuming binops whose precedence is at least
// exprPrec, left-associating as it goes. When the operator after the
// right-hand primary binds more tightly, it recurses so that operator takes
// the primary as its LHS first.
func (p *Parser) parseBinOpRHS(exprPrec int, lhs ast.Expression) ast.Expression {
	for {
		tokPrec := p.tokPrecedence()
		if tokPrec < exprPrec {
			return lhs
		}

		binOp := byte(p.curTok)
		p.nextToken() // eat binop

		rhs := p.parsePrimary()
		if rhs == nil {
			return nil
		}

		nextPrec := p.tokPrecedence()
		if tokPrec < nextPrec {
			rhs = p.parseBinOpRHS(tokPrec+1, rhs)
			if rhs == nil {
				return nil
			}
		}

		lhs = &ast.BinaryExpr{Op: binOp, LHS: lhs, RHS: rhs}
	}
}

// parsePrimary
//
//	::= identifierexpr | numberexpr | stringexpr | parenexpr | unaryexpr
func (p *Parser) parsePrimary() ast.Expression {
	switch p.curTok {
	case token.Identifier:
		return p.parseIdentifierExpr()
	case token.IntLit:
		e := &ast.IntLiteral{Value: p.l.IntVal}
		p.nextToken()
		return e
	case token.FPLit:
		e := &ast.FloatLiteral{Value: p.l.FPVal}
		p.nextToken()
		return e
	case token.StrLit:
		e := &ast.StrLiteral{Value: p.l.StrVal}
		p.nextToken()
		return e
	case '(':
		return p.parseParenExpr()
	case '&', '*':
		op := byte(p.curTok)
		p.nextToken() // eat the operator
		operand := p.parsePrimary()
		if operand == nil {
			return nil
		}
		return &ast.UnaryExpr{Op: op, Operand: operand}
	default:
		return p.errExpr("unknown token %s when expecting an expression", p.curTok)
	}
}

// parseParenExpr ::= '(' expression ')'
func (p *Parser) parseParenExpr() ast.Expression {
	p.nextToken() // eat '('
	e := p.parseExpression()
	if e == nil {
		return nil
	}
	if p.curTok != ')' {
		return p.errExpr("missing )")
	}
	p.nextToken() // eat ')'
	return e
}

// parseIdentifierExpr ::= identifier | identifier '(' (expression ',')* ')'
func (p *Parser) parseIdentifierExpr() ast.Expression {
	id := p.l.Identifier
	p.nextToken() // eat the identifier

	if p.curTok != '(' {
		return &ast.VariableExpr{Name: id}
	}

	p.nextToken() // eat '('
	var args []ast.Expression
	first := true
	for {
		if p.curTok == ')' {
			p.nextToken() // eat ')'
			break
		}
		if !first {
			if p.curTok != ',' {
				return p.errExpr("expected ')' or ',' in argument list")
			}
			p.nextToken() // eat ','
		}
		first = false
		arg := p.parseExpression()
		if arg == nil {
			return nil
		}
		args = append(args, arg)
	}
	return &ast.CallExpr{Callee: id, Args: args}
}

// --- Statements ---

// parseStatement
//
//	::= ifstmt | forstmt | block | vardecl | returnstmt | expression
func (p *Parser) parseStatement() ast.Statement {
	switch p.curTok {
	case token.If:
		return p.parseIfStmt()
	case token.For:
		return p.parseForStmt()
	case token.BlockOpen:
		return p.parseBlockStmt()
	case token.Var:
		return p.parseVarDeclStmt()
	case token.Return:
		return p.parseReturnStmt()
	default:
		e := p.parseExpression()
		if e == nil {
			return nil
		}
		return &ast.ExprStmt{Expr: e}
	}
}

// parseIfStmt ::= 'if' expression 'then' statement 'else' statement
//
// There is no one-armed if; both branches are required.
func (p *Parser) parseIfStmt() ast.Statement {
	p.nextToken() // eat the if

	cond := p.parseExpression()
	if cond == nil {
		return nil
	}

	if p.curTok != token.Then {
		p.addError("expected then")
		return nil
	}
	p.nextToken() // eat the then
	thenStmt := p.parseStatement()
	if thenStmt == nil {
		return nil
	}

	if p.curTok != token.Else {
		p.addError("expected else")
		return nil
	}
	p.nextToken() // eat the else
	elseStmt := p.parseStatement()
	if elseStmt == nil {
		return nil
	}

	return &ast.IfStmt{Cond: cond, Then: thenStmt, Else: elseStmt}
}

// parseForStmt ::= 'for' identifier '=' expr ',' expr (',' expr)? statement
func (p *Parser) parseForStmt() ast.Statement {
	p.nextToken() // eat the for

	if p.curTok != token.Identifier {
		p.addError("expected identifier after for")
		return nil
	}
	varName := p.l.Identifier
	p.nextToken() // eat the identifier

	if p.curTok != '=' {
		p.addError("expected '=' after for")
		return nil
	}
	p.nextToken() // eat '='

	start := p.parseExpression()
	if start == nil {
		return nil
	}
	if p.curTok != ',' {
		p.addError("expected ',' after for start value")
		return nil
	}
	p.nextToken()

	end := p.parseExpression()
	if end == nil {
		return nil
	}

	// The step value is optional; missing means 1.0.
	var step ast.Expression
	if p.curTok == ',' {
		p.nextToken()
		step = p.parseExpression()
		if step == nil {
			return nil
		}
	} else {
		step = &ast.FloatLiteral{Value: 1.0}
	}

	body := p.parseStatement()
	if body == nil {
		return nil
	}

	return &ast.ForStmt{VarName: varName, Start: start, End: end, Step: step, Body: body}
}

// parseBlockStmt ::= '{' (statement ';'?)* '}'
func (p *Parser) parseBlockStmt() ast.Statement {
	p.nextToken() // eat '{'
	var stmts []ast.Statement
	for {
		if p.curTok == token.Semi {
			p.nextToken() // eat ';'
			continue
		}
		if p.curTok == token.BlockClose {
			p.nextToken() // eat '}'
			break
		}
		if p.curTok == token.EOF {
			p.addError("expected '}' before end of input")
			return nil
		}
		s := p.parseStatement()
		if s == nil {
			return nil
		}
		stmts = append(stmts, s)
	}
	return &ast.BlockStmt{Stmts: stmts}
}

// parseVarDeclStmt ::= 'var' identifier type ('=' expression)?
func (p *Parser) parseVarDeclStmt() ast.Statement {
	p.nextToken() // eat the var

	if p.curTok != token.Identifier {
		p.addError("expected identifier after var")
		return nil
	}
	name := p.l.Identifier
	p.nextToken() // eat the identifier

	ty, ok := p.parseType()
	if !ok {
		return nil
	}

	// Initial value. Stays nil for zero-initialisation.
	var init ast.Expression
	if p.curTok == '=' {
		p.nextToken() // eat '='
		init = p.parseExpression()
		if init == nil {
			return nil
		}
	}
	return &ast.VarDeclStmt{Name: name, Type: ty, Init: init}
}

// parseReturnStmt ::= 'return' expression
func (p *Parser) parseReturnStmt() ast.Statement {
	p.nextToken() // eat the return
	e := p.parseExpression()
	if e == nil {
		return nil
	}
	return &ast.ReturnStmt{Value: e}
}

// --- Prototypes and definitions ---

// parseType reads one of the four type names.
func (p *Parser) parseType() (types.Type, bool) {
	if p.curTok != token.Identifier {
		p.addError("expected type name, got %s", p.curTok)
		return 0, false
	}
	ty, ok := types.Lookup(p.l.Identifier)
	if !ok {
		p.addError("unknown type name %q", p.l.Identifier)
		return 0, false
	}
	p.nextToken() // eat the type name
	return ty, true
}

// parsePrototype ::= type identifier '(' (type identifier ',')* ')'
func (p *Parser) parsePrototype() *ast.Prototype {
	retType, ok := p.parseType()
	if !ok {
		return nil
	}

	if p.curTok != token.Identifier {
		p.addError("expected function name in prototype")
		return nil
	}
	fnName := p.l.Identifier
	p.nextToken() // eat the function name

	if p.curTok != '(' {
		p.addError("expected '(' in prototype")
		return nil
	}
	p.nextToken() // eat '('

	var params []ast.Param
	first := true
	for {
		if p.curTok == ')' {
			p.nextToken() // eat ')'
			break
		}
		if !first {
			if p.curTok != ',' {
				p.addError("expected ')' or ',' in parameter list")
				return nil
			}
			p.nextToken() // eat ','
		}
		first = false

		ty, ok := p.parseType()
		if !ok {
			return nil
		}
		if p.curTok != token.Identifier {
			p.addError("expected parameter name in prototype")
			return nil
		}
		params = append(params, ast.Param{Name: p.l.Identifier, Type: ty})
		p.nextToken() // eat the parameter name
	}

	return &ast.Prototype{Name: fnName, RetType: retType, Params: params}
}

// ParseDefinition ::= 'def' prototype statement
func (p *Parser) ParseDefinition() *ast.Function {
	p.nextToken() // eat def
	proto := p.parsePrototype()
	if proto == nil {
		return nil
	}
	body := p.parseStatement()
	if body == nil {
		return nil
	}
	return &ast.Function{Proto: proto, Body: body}
}

// ParseExtern ::= 'extern' prototype
func (p *Parser) ParseExtern() *ast.Prototype {
	p.nextToken() // eat extern
	return p.parsePrototype()
}

// ParseTopLevelExpr wraps a top-level expression in a synthetic function
// named __anon_expr, returning byte, taking no parameters, whose body is
// `return <expression>`.
func (p *Parser) ParseTopLevelExpr() *ast.Function {
	e := p.parseExpression()
	if e == nil {
		return nil
	}
	proto := &ast.Prototype{Name: AnonExprName, RetType: types.Byte}
	return &ast.Function{Proto: proto, Body: &ast.ReturnStmt{Value: e}}
}
