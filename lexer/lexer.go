package lexer

import (
	"fmt"
	"strings"
	"unicode"
)

// TokenType represents the type of a lexical token.
type TokenType int

const (
	// Structural
	TokenPipe     TokenType = iota // |
	TokenLBrace                    // {
	TokenRBrace                    // }
	TokenLParen                    // (
	TokenRParen                    // )
	TokenLBracket                  // [
	TokenRBracket                  // ]
	TokenComma                     // ,
	TokenSemicolon                 // ;
	TokenColon                     // :
	TokenDot                       // .
	TokenField                     // .name
	TokenArrow                     // =>

	// Operators
	TokenPlus    // +
	TokenMinus   // -
	TokenStar    // *
	TokenSlash   // /
	TokenPercent // %
	TokenEq      // ==
	TokenNeq     // !=
	TokenLt      // <
	TokenGt      // >
	TokenLte     // <=
	TokenGte     // >=
	TokenAlt     // //

	// Assignment
	TokenAssign       // =
	TokenUpdateAssign // |=
	TokenPlusAssign   // +=
	TokenMinusAssign  // -=
	TokenStarAssign   // *=
	TokenSlashAssign  // /=

	// Keywords
	TokenAnd   // and
	TokenOr    // or
	TokenNot   // not
	TokenDel   // del
	TokenAs    // as
	TokenTrue  // true
	TokenFalse // false
	TokenNull  // null
	TokenIf    // if
	TokenThen  // then
	TokenElif  // elif
	TokenElse  // else
	TokenEnd   // end

	// Literals
	TokenNumber // numeric literal, kept as text
	TokenString // "string" or 'raw string'

	// Identifiers
	TokenIdent // function or lambda parameter name
	TokenVar   // $name

	// End
	TokenEOF
)

var tokenNames = map[TokenType]string{
	TokenPipe: "|", TokenLBrace: "{", TokenRBrace: "}", TokenLParen: "(", TokenRParen: ")",
	TokenLBracket: "[", TokenRBracket: "]", TokenComma: ",", TokenSemicolon: ";", TokenColon: ":",
	TokenDot: ".", TokenField: "FIELD", TokenArrow: "=>",
	TokenPlus: "+", TokenMinus: "-", TokenStar: "*", TokenSlash: "/", TokenPercent: "%",
	TokenEq: "==", TokenNeq: "!=", TokenLt: "<", TokenGt: ">", TokenLte: "<=", TokenGte: ">=",
	TokenAlt: "//", TokenAssign: "=", TokenUpdateAssign: "|=", TokenPlusAssign: "+=",
	TokenMinusAssign: "-=", TokenStarAssign: "*=", TokenSlashAssign: "/=",
	TokenAnd: "and", TokenOr: "or", TokenNot: "not", TokenDel: "del", TokenAs: "as",
	TokenTrue: "true", TokenFalse: "false", TokenNull: "null",
	TokenIf: "if", TokenThen: "then", TokenElif: "elif", TokenElse: "else", TokenEnd: "end",
	TokenNumber: "NUMBER", TokenString: "STRING", TokenIdent: "IDENT", TokenVar: "VAR",
	TokenEOF: "EOF",
}

func (t TokenType) String() string {
	if s, ok := tokenNames[t]; ok {
		return s
	}
	return fmt.Sprintf("Token(%d)", int(t))
}

// Token represents a single lexical token.
type Token struct {
	Type TokenType
	Val  string
	Pos  int // rune offset in original input
}

func (t Token) String() string {
	return fmt.Sprintf("%s(%q)@%d", t.Type, t.Val, t.Pos)
}

var keywords = map[string]TokenType{
	"and":   TokenAnd,
	"or":    TokenOr,
	"not":   TokenNot,
	"del":   TokenDel,
	"as":    TokenAs,
	"true":  TokenTrue,
	"false": TokenFalse,
	"null":  TokenNull,
	"if":    TokenIf,
	"then":  TokenThen,
	"elif":  TokenElif,
	"else":  TokenElse,
	"end":   TokenEnd,
}

// IsKeyword reports whether s is a reserved word.
func IsKeyword(s string) bool {
	_, ok := keywords[s]
	return ok
}

// ErrorKind classifies lexical failures.
type ErrorKind int

const (
	ErrUnexpectedChar ErrorKind = iota
	ErrUnterminatedString
	ErrInvalidNumber
)

// Error is a lexical error with the offset where it was detected.
type Error struct {
	Kind ErrorKind
	Msg  string
	Text string
	Pos  int
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s at position %d", e.Msg, e.Pos)
}

var twoCharOps = map[string]TokenType{
	"|=": TokenUpdateAssign, "+=": TokenPlusAssign, "-=": TokenMinusAssign,
	"*=": TokenStarAssign, "/=": TokenSlashAssign, "==": TokenEq, "!=": TokenNeq,
	"<=": TokenLte, ">=": TokenGte, "=>": TokenArrow, "//": TokenAlt,
}

var oneCharOps = map[rune]TokenType{
	'|': TokenPipe, '{': TokenLBrace, '}': TokenRBrace, '(': TokenLParen, ')': TokenRParen,
	'[': TokenLBracket, ']': TokenRBracket, ',': TokenComma, ';': TokenSemicolon, ':': TokenColon,
	'+': TokenPlus, '-': TokenMinus, '*': TokenStar, '/': TokenSlash, '%': TokenPercent,
	'<': TokenLt, '>': TokenGt, '=': TokenAssign,
}

// Lex tokenizes the input string into a slice of Tokens.
func Lex(input string) ([]Token, error) {
	var tokens []Token
	runes := []rune(input)
	i := 0

	for i < len(runes) {
		ch := runes[i]

		if unicode.IsSpace(ch) {
			i++
			continue
		}

		// Comment to end of line
		if ch == '#' {
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
			continue
		}

		pos := i
		if i+1 < len(runes) {
			// "//=" is not an operator, so "//" always wins over "/="
			if tt, ok := twoCharOps[string(runes[i:i+2])]; ok {
				tokens = append(tokens, Token{tt, string(runes[i : i+2]), pos})
				i += 2
				continue
			}
		}

		switch {
		case ch == '.':
			if i+1 < len(runes) && isIdentStart(runes[i+1]) {
				j := i + 1
				for j < len(runes) && isIdentPart(runes[j]) {
					j++
				}
				tokens = append(tokens, Token{TokenField, string(runes[i+1 : j]), pos})
				i = j
				continue
			}
			tokens = append(tokens, Token{TokenDot, ".", pos})
			i++
			continue
		case ch == '"':
			tok, next, err := lexString(runes, i)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, tok)
			i = next
			continue
		case ch == '\'':
			tok, next, err := lexRawString(runes, i)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, tok)
			i = next
			continue
		case ch == '$':
			j := i + 1
			if j >= len(runes) || !isIdentStart(runes[j]) {
				return nil, &Error{Kind: ErrUnexpectedChar, Msg: "expected variable name after '$'", Text: "$", Pos: pos}
			}
			for j < len(runes) && isIdentPart(runes[j]) {
				j++
			}
			tokens = append(tokens, Token{TokenVar, string(runes[i+1 : j]), pos})
			i = j
			continue
		case unicode.IsDigit(ch):
			tok, next, err := lexNumber(runes, i)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, tok)
			i = next
			continue
		case isIdentStart(ch):
			tok, next := lexIdent(runes, i)
			tokens = append(tokens, tok)
			i = next
			continue
		}

		if tt, ok := oneCharOps[ch]; ok {
			tokens = append(tokens, Token{tt, string(ch), pos})
			i++
			continue
		}
		if ch == '!' {
			return nil, &Error{Kind: ErrUnexpectedChar, Msg: "unexpected character '!' (did you mean '!='?)", Text: "!", Pos: pos}
		}
		return nil, &Error{Kind: ErrUnexpectedChar, Msg: fmt.Sprintf("unexpected character %q", ch), Text: string(ch), Pos: pos}
	}

	tokens = append(tokens, Token{TokenEOF, "", len(runes)})
	return tokens, nil
}

func lexString(runes []rune, start int) (Token, int, error) {
	i := start + 1 // skip opening quote
	var sb strings.Builder
	for i < len(runes) {
		if runes[i] == '\\' && i+1 < len(runes) {
			switch runes[i+1] {
			case '"':
				sb.WriteRune('"')
			case '\\':
				sb.WriteRune('\\')
			case '/':
				sb.WriteRune('/')
			case 'n':
				sb.WriteRune('\n')
			case 't':
				sb.WriteRune('\t')
			case 'r':
				sb.WriteRune('\r')
			default:
				sb.WriteRune('\\')
				sb.WriteRune(runes[i+1])
			}
			i += 2
			continue
		}
		if runes[i] == '"' {
			return Token{TokenString, sb.String(), start}, i + 1, nil
		}
		sb.WriteRune(runes[i])
		i++
	}
	return Token{}, 0, &Error{Kind: ErrUnterminatedString, Msg: "unterminated string", Text: string(runes[start:]), Pos: start}
}

func lexRawString(runes []rune, start int) (Token, int, error) {
	i := start + 1
	for i < len(runes) {
		if runes[i] == '\'' {
			return Token{TokenString, string(runes[start+1 : i]), start}, i + 1, nil
		}
		i++
	}
	return Token{}, 0, &Error{Kind: ErrUnterminatedString, Msg: "unterminated string", Text: string(runes[start:]), Pos: start}
}

// lexNumber reads digits with an optional fraction and exponent. A leading
// zero may only be followed by a fraction or an exponent.
func lexNumber(runes []rune, start int) (Token, int, error) {
	i := start
	for i < len(runes) && unicode.IsDigit(runes[i]) {
		i++
	}
	if runes[start] == '0' && i-start > 1 {
		for i < len(runes) && isIdentPart(runes[i]) {
			i++
		}
		return Token{}, 0, &Error{Kind: ErrInvalidNumber, Msg: fmt.Sprintf("invalid number %q: leading zero", string(runes[start:i])), Text: string(runes[start:i]), Pos: start}
	}

	if i+1 < len(runes) && runes[i] == '.' && unicode.IsDigit(runes[i+1]) {
		i++
		for i < len(runes) && unicode.IsDigit(runes[i]) {
			i++
		}
	}

	if i < len(runes) && (runes[i] == 'e' || runes[i] == 'E') {
		j := i + 1
		if j < len(runes) && (runes[j] == '+' || runes[j] == '-') {
			j++
		}
		if j < len(runes) && unicode.IsDigit(runes[j]) {
			for j < len(runes) && unicode.IsDigit(runes[j]) {
				j++
			}
			i = j
		}
	}

	if i < len(runes) && isIdentPart(runes[i]) {
		j := i
		for j < len(runes) && isIdentPart(runes[j]) {
			j++
		}
		return Token{}, 0, &Error{Kind: ErrInvalidNumber, Msg: fmt.Sprintf("invalid number %q", string(runes[start:j])), Text: string(runes[start:j]), Pos: start}
	}
	return Token{TokenNumber, string(runes[start:i]), start}, i, nil
}

func lexIdent(runes []rune, start int) (Token, int) {
	i := start
	for i < len(runes) && isIdentPart(runes[i]) {
		i++
	}
	val := string(runes[start:i])

	if tt, ok := keywords[val]; ok {
		return Token{tt, val, start}, i
	}
	return Token{TokenIdent, val, start}, i
}

func isIdentStart(ch rune) bool {
	return unicode.IsLetter(ch) || ch == '_'
}

func isIdentPart(ch rune) bool {
	return unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_'
}
