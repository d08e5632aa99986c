package lexer

import (
	"errors"
	"testing"
)

func expectTypes(t *testing.T, input string, expected ...TokenType) []Token {
	t.Helper()
	tokens, err := Lex(input)
	if err != nil {
		t.Fatal(err)
	}
	if len(tokens) != len(expected) {
		t.Fatalf("expected %d tokens, got %d: %v", len(expected), len(tokens), tokens)
	}
	for i, tt := range expected {
		if tokens[i].Type != tt {
			t.Errorf("token %d: expected %s, got %s (%q)", i, tt, tokens[i].Type, tokens[i].Val)
		}
	}
	return tokens
}

func TestLexBasic(t *testing.T) {
	tokens := expectTypes(t, `.users | head(10)`,
		TokenField, TokenPipe, TokenIdent, TokenLParen, TokenNumber, TokenRParen, TokenEOF)
	if tokens[0].Val != "users" {
		t.Errorf("expected field 'users', got %q", tokens[0].Val)
	}
}

func TestLexFilter(t *testing.T) {
	tokens := expectTypes(t, `select(.age > 20 and .city == "NY")`,
		TokenIdent, TokenLParen, TokenField, TokenGt, TokenNumber,
		TokenAnd, TokenField, TokenEq, TokenString, TokenRParen, TokenEOF)
	if tokens[8].Val != "NY" {
		t.Errorf("string token value: expected 'NY', got %q", tokens[8].Val)
	}
}

func TestLexPaths(t *testing.T) {
	expectTypes(t, `.[0].a[1:2][] . as $x`,
		TokenDot, TokenLBracket, TokenNumber, TokenRBracket, TokenField,
		TokenLBracket, TokenNumber, TokenColon, TokenNumber, TokenRBracket,
		TokenLBracket, TokenRBracket, TokenDot, TokenAs, TokenVar, TokenEOF)
}

func TestLexKeywordFields(t *testing.T) {
	tokens := expectTypes(t, `.not.end`, TokenField, TokenField, TokenEOF)
	if tokens[1].Val != "end" {
		t.Errorf("expected 'end', got %q", tokens[1].Val)
	}
}

func TestLexNumbers(t *testing.T) {
	for _, in := range []string{"0", "3.14", "0.5", "1e10", "0e1", "2.5E-3", "123456789012345678901234567890"} {
		tokens, err := Lex(in)
		if err != nil {
			t.Fatalf("%s: %v", in, err)
		}
		if tokens[0].Type != TokenNumber || tokens[0].Val != in {
			t.Errorf("%s: got %s", in, tokens[0])
		}
	}
}

func TestLexRejectsLeadingZero(t *testing.T) {
	for _, in := range []string{"007", "01.5", "12abc"} {
		_, err := Lex(in)
		var lerr *Error
		if !errors.As(err, &lerr) {
			t.Fatalf("%s: expected lexer error, got %v", in, err)
		}
		if lerr.Kind != ErrInvalidNumber {
			t.Errorf("%s: expected invalid number, got kind %d", in, lerr.Kind)
		}
	}
}

func TestLexOperators(t *testing.T) {
	expectTypes(t, "== != <= >= < > + - * / % // = |= += -= *= /= =>",
		TokenEq, TokenNeq, TokenLte, TokenGte, TokenLt, TokenGt,
		TokenPlus, TokenMinus, TokenStar, TokenSlash, TokenPercent, TokenAlt,
		TokenAssign, TokenUpdateAssign, TokenPlusAssign, TokenMinusAssign,
		TokenStarAssign, TokenSlashAssign, TokenArrow, TokenEOF)
}

func TestLexStringEscape(t *testing.T) {
	tokens, err := Lex(`"hello \"world\"\n\t\/\q"`)
	if err != nil {
		t.Fatal(err)
	}
	if tokens[0].Val != "hello \"world\"\n\t/\\q" {
		t.Errorf("unexpected value %q", tokens[0].Val)
	}
}

func TestLexRawString(t *testing.T) {
	tokens, err := Lex(`'a\nb'`)
	if err != nil {
		t.Fatal(err)
	}
	if tokens[0].Val != `a\nb` {
		t.Errorf("expected raw value, got %q", tokens[0].Val)
	}
}

func TestLexUnterminatedString(t *testing.T) {
	_, err := Lex(`.a == "oops`)
	var lerr *Error
	if !errors.As(err, &lerr) || lerr.Kind != ErrUnterminatedString {
		t.Fatalf("expected unterminated string error, got %v", err)
	}
	if lerr.Pos != 6 {
		t.Errorf("expected position 6, got %d", lerr.Pos)
	}
}

func TestLexComment(t *testing.T) {
	expectTypes(t, ".age # this is a comment\n+ 5", TokenField, TokenPlus, TokenNumber, TokenEOF)
}
