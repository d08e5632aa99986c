package parser

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/datasetq/datasetq/ast"
	"github.com/datasetq/datasetq/lexer"
	"github.com/datasetq/datasetq/value"
)

// Options configures a parse.
type Options struct {
	// Known reports whether a function with the given name and argument
	// count exists. Nil accepts every call.
	Known func(name string, arity int) bool
}

// Parser converts a token stream into an AST.
type Parser struct {
	tokens []lexer.Token
	pos    int
	opts   Options
	params []string // lambda parameters in scope
}

// Parse parses a query without checking function names.
func Parse(input string) (ast.Expr, error) {
	return ParseWith(input, Options{})
}

// ParseWith parses a query. Every failure is a *ParseError.
func ParseWith(input string, opts Options) (ast.Expr, error) {
	tokens, err := lexer.Lex(input)
	if err != nil {
		return nil, fromLexError(err)
	}
	if len(tokens) == 1 {
		return nil, &ParseError{Kind: EmptyInput, Msg: "query is empty", Offset: 0}
	}
	p := &Parser{tokens: tokens, opts: opts}
	expr, err := p.parsePipe()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.Type != lexer.TokenEOF {
		if isClosing(tok.Type) {
			return nil, p.errAt(MismatchedBracket, tok, "unexpected closing bracket")
		}
		return nil, p.errAt(Syntax, tok, "unexpected token after end of expression")
	}
	return expr, nil
}

func fromLexError(err error) error {
	var lerr *lexer.Error
	if !errors.As(err, &lerr) {
		return &ParseError{Kind: Syntax, Msg: err.Error()}
	}
	kind := Syntax
	switch lerr.Kind {
	case lexer.ErrUnterminatedString:
		kind = UnterminatedString
	case lexer.ErrInvalidNumber:
		kind = InvalidNumber
	}
	return &ParseError{Kind: kind, Msg: lerr.Msg, Token: lerr.Text, Offset: lerr.Pos}
}

func (p *Parser) peek() lexer.Token {
	return p.peekAt(0)
}

func (p *Parser) peekAt(n int) lexer.Token {
	if p.pos+n >= len(p.tokens) {
		return lexer.Token{Type: lexer.TokenEOF, Pos: p.tokens[len(p.tokens)-1].Pos}
	}
	return p.tokens[p.pos+n]
}

func (p *Parser) advance() lexer.Token {
	tok := p.peek()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return tok
}

func (p *Parser) expect(tt lexer.TokenType) (lexer.Token, error) {
	tok := p.advance()
	if tok.Type != tt {
		return tok, p.errAt(Syntax, tok, "", tt.String())
	}
	return tok, nil
}

// expectClose consumes the closing bracket matching open.
func (p *Parser) expectClose(tt lexer.TokenType, open lexer.Token) error {
	tok := p.advance()
	if tok.Type == tt {
		return nil
	}
	if isClosing(tok.Type) || tok.Type == lexer.TokenEOF {
		return p.errAt(MismatchedBracket, tok, fmt.Sprintf("%s opened at position %d is not closed", open.Val, open.Pos), tt.String())
	}
	return p.errAt(Syntax, tok, "", tt.String(), ",")
}

func (p *Parser) errAt(kind ErrorKind, tok lexer.Token, msg string, expected ...string) *ParseError {
	text := tok.Val
	if tok.Type == lexer.TokenEOF {
		text = "end of input"
	} else if tok.Type == lexer.TokenString {
		text = strconv.Quote(tok.Val)
	} else if tok.Type == lexer.TokenField {
		text = "." + tok.Val
	} else if tok.Type == lexer.TokenVar {
		text = "$" + tok.Val
	}
	return &ParseError{Kind: kind, Msg: msg, Token: text, Expected: expected, Offset: tok.Pos}
}

func isClosing(tt lexer.TokenType) bool {
	return tt == lexer.TokenRParen || tt == lexer.TokenRBracket || tt == lexer.TokenRBrace
}

// --- Pipes, bindings and assignment ---

func (p *Parser) parsePipe() (ast.Expr, error) {
	left, err := p.parseBinding()
	if err != nil {
		return nil, err
	}
	for p.peek().Type == lexer.TokenPipe {
		p.advance() // consume |
		right, err := p.parseBinding()
		if err != nil {
			return nil, err
		}
		left = &ast.PipeExpr{Left: left, Right: right}
	}
	return left, nil
}

// parseBinding handles `src as $name | body`; the body extends to the end
// of the enclosing pipe.
func (p *Parser) parseBinding() (ast.Expr, error) {
	src, err := p.parseAssign()
	if err != nil {
		return nil, err
	}
	if p.peek().Type != lexer.TokenAs {
		return src, nil
	}
	p.advance() // consume "as"
	v, err := p.expect(lexer.TokenVar)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.TokenPipe); err != nil {
		return nil, err
	}
	body, err := p.parsePipe()
	if err != nil {
		return nil, err
	}
	return &ast.BindExpr{Source: src, Name: v.Val, Body: body}, nil
}

var assignOps = map[lexer.TokenType]string{
	lexer.TokenAssign:       "=",
	lexer.TokenUpdateAssign: "|=",
	lexer.TokenPlusAssign:   "+=",
	lexer.TokenMinusAssign:  "-=",
	lexer.TokenStarAssign:   "*=",
	lexer.TokenSlashAssign:  "/=",
}

func (p *Parser) parseAssign() (ast.Expr, error) {
	left, err := p.parseAlt()
	if err != nil {
		return nil, err
	}
	op, ok := assignOps[p.peek().Type]
	if !ok {
		return left, nil
	}
	tok := p.advance()
	if _, isPath := ast.Path(left); !isPath {
		return nil, p.errAt(Syntax, tok, fmt.Sprintf("left side of %s must be a path like .a.b or .[0]", op))
	}
	right, err := p.parseAlt()
	if err != nil {
		return nil, err
	}
	return &ast.AssignExpr{Op: op, Target: left, Value: right}, nil
}

func (p *Parser) parseAlt() (ast.Expr, error) {
	left, err := p.parseExprPrec(precOr)
	if err != nil {
		return nil, err
	}
	for p.peek().Type == lexer.TokenAlt {
		p.advance()
		right, err := p.parseExprPrec(precOr)
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryExpr{Op: "//", Left: left, Right: right}
	}
	return left, nil
}

// --- Binary operators (precedence climbing) ---

// Precedence levels
const (
	precOr   = 1
	precAnd  = 2
	precComp = 3
	precAdd  = 4
	precMul  = 5
)

func (p *Parser) parseExprPrec(minPrec int) (ast.Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	for {
		op, prec, ok := p.peekBinaryOp()
		if !ok || prec < minPrec {
			break
		}
		p.advance() // consume the operator

		right, err := p.parseExprPrec(prec + 1) // left-associative
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryExpr{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) peekBinaryOp() (string, int, bool) {
	tok := p.peek()
	switch tok.Type {
	case lexer.TokenOr:
		return "or", precOr, true
	case lexer.TokenAnd:
		return "and", precAnd, true
	case lexer.TokenEq:
		return "==", precComp, true
	case lexer.TokenNeq:
		return "!=", precComp, true
	case lexer.TokenLt:
		return "<", precComp, true
	case lexer.TokenGt:
		return ">", precComp, true
	case lexer.TokenLte:
		return "<=", precComp, true
	case lexer.TokenGte:
		return ">=", precComp, true
	case lexer.TokenPlus:
		return "+", precAdd, true
	case lexer.TokenMinus:
		return "-", precAdd, true
	case lexer.TokenStar:
		return "*", precMul, true
	case lexer.TokenSlash:
		return "/", precMul, true
	case lexer.TokenPercent:
		return "%", precMul, true
	}
	return "", 0, false
}

// --- Unary and postfix ---

func (p *Parser) parseUnary() (ast.Expr, error) {
	switch p.peek().Type {
	case lexer.TokenNot:
		p.advance()
		// `... | not` negates the input
		if !startsTerm(p.peek().Type) {
			return &ast.UnaryExpr{Op: "not", Operand: &ast.IdentityExpr{}}, nil
		}
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &ast.UnaryExpr{Op: "not", Operand: operand}, nil
	case lexer.TokenDel:
		tok := p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		if _, ok := ast.Path(operand); !ok {
			return nil, p.errAt(Syntax, tok, "del expects a path like .a or .[0]")
		}
		return &ast.UnaryExpr{Op: "del", Operand: operand}, nil
	case lexer.TokenMinus:
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		if lit, ok := operand.(*ast.LiteralExpr); ok && lit.Value.IsNumber() {
			return &ast.LiteralExpr{Value: negate(lit.Value)}, nil
		}
		return &ast.UnaryExpr{Op: "-", Operand: operand}, nil
	}
	return p.parsePostfix()
}

func negate(v value.Value) value.Value {
	switch v.Kind {
	case value.KindFloat:
		return value.FloatVal(-v.Float)
	case value.KindBigInt:
		return value.BigVal(new(big.Int).Neg(v.Big))
	}
	return value.IntVal(-v.Int)
}

func startsTerm(tt lexer.TokenType) bool {
	switch tt {
	case lexer.TokenDot, lexer.TokenField, lexer.TokenNumber, lexer.TokenString,
		lexer.TokenTrue, lexer.TokenFalse, lexer.TokenNull, lexer.TokenVar, lexer.TokenIdent,
		lexer.TokenLParen, lexer.TokenLBracket, lexer.TokenLBrace, lexer.TokenIf,
		lexer.TokenNot, lexer.TokenDel, lexer.TokenMinus:
		return true
	}
	return false
}

func (p *Parser) parsePostfix() (ast.Expr, error) {
	expr, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		switch {
		case tok.Type == lexer.TokenField:
			p.advance()
			if p.peek().Type == lexer.TokenLParen {
				// method-call sugar: x.f(args) is x | f(args)
				call, err := p.parseCall(tok, strings.ToLower(tok.Val))
				if err != nil {
					return nil, err
				}
				expr = &ast.PipeExpr{Left: expr, Right: call}
				continue
			}
			expr = &ast.FieldExpr{Target: expr, Name: tok.Val}
		case tok.Type == lexer.TokenDot && p.peekAt(1).Type == lexer.TokenString:
			p.advance()
			name := p.advance()
			expr = &ast.FieldExpr{Target: expr, Name: name.Val}
		case tok.Type == lexer.TokenDot && p.peekAt(1).Type == lexer.TokenLBracket:
			p.advance()
		case tok.Type == lexer.TokenLBracket:
			expr, err = p.parseBracketSuffix(expr)
			if err != nil {
				return nil, err
			}
		default:
			return expr, nil
		}
	}
}

// parseBracketSuffix handles [], [i], [a:b], [:b] and [a:].
func (p *Parser) parseBracketSuffix(target ast.Expr) (ast.Expr, error) {
	open := p.advance() // consume [
	if p.peek().Type == lexer.TokenRBracket {
		p.advance()
		return &ast.IterateExpr{Target: target}, nil
	}
	var from ast.Expr
	if p.peek().Type != lexer.TokenColon {
		var err error
		from, err = p.parsePipe()
		if err != nil {
			return nil, err
		}
	}
	if p.peek().Type != lexer.TokenColon {
		if err := p.expectClose(lexer.TokenRBracket, open); err != nil {
			return nil, err
		}
		return &ast.IndexExpr{Target: target, Index: from}, nil
	}
	p.advance() // consume :
	var to ast.Expr
	if p.peek().Type != lexer.TokenRBracket {
		var err error
		to, err = p.parsePipe()
		if err != nil {
			return nil, err
		}
	}
	if err := p.expectClose(lexer.TokenRBracket, open); err != nil {
		return nil, err
	}
	return &ast.SliceExpr{Target: target, From: from, To: to}, nil
}

// --- Primaries ---

func (p *Parser) parsePrimary() (ast.Expr, error) {
	tok := p.peek()

	switch tok.Type {
	case lexer.TokenDot:
		p.advance()
		if p.peek().Type == lexer.TokenString {
			name := p.advance()
			return &ast.FieldExpr{Target: &ast.IdentityExpr{}, Name: name.Val}, nil
		}
		return &ast.IdentityExpr{}, nil

	case lexer.TokenField:
		p.advance()
		if p.peek().Type == lexer.TokenLParen {
			return p.parseCall(tok, strings.ToLower(tok.Val))
		}
		return &ast.FieldExpr{Target: &ast.IdentityExpr{}, Name: tok.Val}, nil

	case lexer.TokenNumber:
		p.advance()
		v, err := parseNumber(tok.Val)
		if err != nil {
			return nil, p.errAt(InvalidNumber, tok, err.Error())
		}
		return &ast.LiteralExpr{Value: v}, nil

	case lexer.TokenString:
		p.advance()
		return &ast.LiteralExpr{Value: value.StrVal(tok.Val)}, nil

	case lexer.TokenTrue:
		p.advance()
		return &ast.LiteralExpr{Value: value.BoolVal(true)}, nil

	case lexer.TokenFalse:
		p.advance()
		return &ast.LiteralExpr{Value: value.BoolVal(false)}, nil

	case lexer.TokenNull:
		p.advance()
		return &ast.LiteralExpr{Value: value.Null()}, nil

	case lexer.TokenVar:
		p.advance()
		return &ast.VarExpr{Name: tok.Val}, nil

	case lexer.TokenLParen:
		p.advance() // consume (
		expr, err := p.parsePipe()
		if err != nil {
			return nil, err
		}
		if err := p.expectClose(lexer.TokenRParen, tok); err != nil {
			return nil, err
		}
		return expr, nil

	case lexer.TokenLBracket:
		return p.parseArray()

	case lexer.TokenLBrace:
		return p.parseObject()

	case lexer.TokenIf:
		return p.parseIf()

	case lexer.TokenIdent:
		p.advance()
		if p.peek().Type == lexer.TokenArrow {
			return p.parseLambda(tok)
		}
		if p.isParam(tok.Val) && p.peek().Type != lexer.TokenLParen {
			return &ast.VarExpr{Name: tok.Val}, nil
		}
		return p.parseCall(tok, strings.ToLower(tok.Val))

	case lexer.TokenRParen, lexer.TokenRBracket, lexer.TokenRBrace:
		return nil, p.errAt(MismatchedBracket, tok, "unexpected closing bracket")

	case lexer.TokenEOF:
		return nil, p.errAt(Syntax, tok, "unexpected end of input")

	default:
		return nil, p.errAt(Syntax, tok, "unexpected token in expression")
	}
}

func (p *Parser) isParam(name string) bool {
	for i := len(p.params) - 1; i >= 0; i-- {
		if p.params[i] == name {
			return true
		}
	}
	return false
}

func (p *Parser) parseLambda(param lexer.Token) (ast.Expr, error) {
	p.advance() // consume =>
	p.params = append(p.params, param.Val)
	defer func() { p.params = p.params[:len(p.params)-1] }()
	body, err := p.parsePipe()
	if err != nil {
		return nil, err
	}
	return &ast.LambdaExpr{Param: param.Val, Body: body}, nil
}

// parseCall parses an optional argument list after a function name.
// Arguments are separated by commas or semicolons; `name=expr` is a named
// argument.
func (p *Parser) parseCall(nameTok lexer.Token, name string) (ast.Expr, error) {
	call := &ast.CallExpr{Name: name}
	if p.peek().Type == lexer.TokenLParen {
		open := p.advance() // consume (
		if p.peek().Type != lexer.TokenRParen {
			for {
				if p.peek().Type == lexer.TokenIdent && p.peekAt(1).Type == lexer.TokenAssign {
					argName := p.advance()
					p.advance() // consume =
					v, err := p.parsePipe()
					if err != nil {
						return nil, err
					}
					call.Named = append(call.Named, ast.NamedArg{Name: argName.Val, Value: v})
				} else {
					arg, err := p.parsePipe()
					if err != nil {
						return nil, err
					}
					call.Args = append(call.Args, arg)
				}
				if t := p.peek().Type; t != lexer.TokenComma && t != lexer.TokenSemicolon {
					break
				}
				p.advance() // consume separator
			}
		}
		if err := p.expectClose(lexer.TokenRParen, open); err != nil {
			return nil, err
		}
	}
	if p.opts.Known != nil && !p.opts.Known(name, call.Arity()) {
		return nil, &ParseError{
			Kind:   UnknownFunction,
			Msg:    fmt.Sprintf("%s/%d is not defined", name, call.Arity()),
			Token:  nameTok.Val,
			Offset: nameTok.Pos,
		}
	}
	return call, nil
}

func (p *Parser) parseArray() (ast.Expr, error) {
	open := p.advance() // consume [
	arr := &ast.ArrayExpr{}
	if p.peek().Type == lexer.TokenRBracket {
		p.advance()
		return arr, nil
	}
	for {
		elem, err := p.parsePipe()
		if err != nil {
			return nil, err
		}
		arr.Elems = append(arr.Elems, elem)
		if p.peek().Type != lexer.TokenComma {
			break
		}
		p.advance() // consume comma
	}
	if err := p.expectClose(lexer.TokenRBracket, open); err != nil {
		return nil, err
	}
	return arr, nil
}

func (p *Parser) parseObject() (ast.Expr, error) {
	open := p.advance() // consume {
	obj := &ast.ObjectExpr{}
	for p.peek().Type != lexer.TokenRBrace {
		entry, err := p.parseObjectEntry()
		if err != nil {
			return nil, err
		}
		obj.Entries = append(obj.Entries, entry)
		if p.peek().Type != lexer.TokenComma {
			break
		}
		p.advance() // consume comma
	}
	if err := p.expectClose(lexer.TokenRBrace, open); err != nil {
		return nil, err
	}
	return obj, nil
}

func (p *Parser) parseObjectEntry() (ast.ObjectEntry, error) {
	tok := p.advance()
	var key ast.Expr
	var shorthand ast.Expr
	switch {
	case tok.Type == lexer.TokenIdent || lexer.IsKeyword(tok.Val) && tok.Type != lexer.TokenString:
		key = &ast.LiteralExpr{Value: value.StrVal(tok.Val)}
		shorthand = &ast.FieldExpr{Target: &ast.IdentityExpr{}, Name: tok.Val}
	case tok.Type == lexer.TokenString:
		key = &ast.LiteralExpr{Value: value.StrVal(tok.Val)}
		shorthand = &ast.FieldExpr{Target: &ast.IdentityExpr{}, Name: tok.Val}
	case tok.Type == lexer.TokenVar:
		key = &ast.LiteralExpr{Value: value.StrVal(tok.Val)}
		shorthand = &ast.VarExpr{Name: tok.Val}
	case tok.Type == lexer.TokenLParen:
		k, err := p.parsePipe()
		if err != nil {
			return ast.ObjectEntry{}, err
		}
		if err := p.expectClose(lexer.TokenRParen, tok); err != nil {
			return ast.ObjectEntry{}, err
		}
		key = k
	default:
		if isClosing(tok.Type) || tok.Type == lexer.TokenEOF {
			return ast.ObjectEntry{}, p.errAt(MismatchedBracket, tok, "object is not closed", "}")
		}
		return ast.ObjectEntry{}, p.errAt(Syntax, tok, "invalid object key")
	}

	if p.peek().Type != lexer.TokenColon {
		if shorthand == nil {
			_, err := p.expect(lexer.TokenColon)
			return ast.ObjectEntry{}, err
		}
		return ast.ObjectEntry{Key: key, Value: shorthand}, nil
	}
	p.advance() // consume :
	val, err := p.parseAlt()
	if err != nil {
		return ast.ObjectEntry{}, err
	}
	return ast.ObjectEntry{Key: key, Value: val}, nil
}

func (p *Parser) parseIf() (ast.Expr, error) {
	p.advance() // consume if / elif
	cond, err := p.parsePipe()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.TokenThen); err != nil {
		return nil, err
	}
	then, err := p.parsePipe()
	if err != nil {
		return nil, err
	}
	out := &ast.IfExpr{Cond: cond, Then: then}
	switch tok := p.peek(); tok.Type {
	case lexer.TokenElif:
		elif, err := p.parseIf()
		if err != nil {
			return nil, err
		}
		out.Else = elif
		return out, nil
	case lexer.TokenElse:
		p.advance()
		out.Else, err = p.parsePipe()
		if err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(lexer.TokenEnd); err != nil {
		return nil, err
	}
	return out, nil
}

// parseNumber converts literal text. Integers too large for 64 bits become
// BigInt, and fall back to float if that fails too.
func parseNumber(s string) (value.Value, error) {
	if strings.ContainsAny(s, ".eE") {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return value.Null(), fmt.Errorf("invalid float %q", s)
		}
		return value.FloatVal(f), nil
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return value.IntVal(i), nil
	}
	if b, ok := new(big.Int).SetString(s, 10); ok {
		return value.BigVal(b), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return value.Null(), fmt.Errorf("invalid integer %q", s)
	}
	return value.FloatVal(f), nil
}
