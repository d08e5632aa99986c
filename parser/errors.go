package parser

import (
	"fmt"
	"strings"
)

// ErrorKind classifies parse failures.
type ErrorKind int

const (
	Syntax ErrorKind = iota
	UnterminatedString
	InvalidNumber
	UnknownFunction
	MismatchedBracket
	EmptyInput
)

func (k ErrorKind) String() string {
	switch k {
	case Syntax:
		return "syntax error"
	case UnterminatedString:
		return "unterminated string"
	case InvalidNumber:
		return "invalid number"
	case UnknownFunction:
		return "unknown function"
	case MismatchedBracket:
		return "mismatched bracket"
	case EmptyInput:
		return "empty input"
	default:
		return "parse error"
	}
}

// ParseError is returned for every failure to parse a query. Offset is
// the rune offset of the offending token.
type ParseError struct {
	Kind     ErrorKind
	Msg      string
	Token    string
	Expected []string
	Offset   int
}

func (e *ParseError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s at position %d", e.Kind, e.Offset)
	if e.Msg != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Msg)
	}
	if e.Token != "" {
		fmt.Fprintf(&sb, " (got %q", e.Token)
		if len(e.Expected) > 0 {
			fmt.Fprintf(&sb, ", expected %s", strings.Join(e.Expected, " or "))
		}
		sb.WriteString(")")
	} else if len(e.Expected) > 0 {
		fmt.Fprintf(&sb, " (expected %s)", strings.Join(e.Expected, " or "))
	}
	return sb.String()
}
