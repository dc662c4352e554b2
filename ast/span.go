// Package ast defines the tagged-variant syntax tree produced by the parser
// and consumed by the preprocessor and assembler.
package ast

import "fmt"

// Span locates a range of source text for diagnostics.
type Span struct {
	File      string
	Line, Col int
	EndLine   int
	EndCol    int
}

func (s Span) String() string {
	return fmt.Sprintf("%s:%d:%d", s.File, s.Line, s.Col)
}

// Merge returns a span covering both s and other, keeping s's start.
func (s Span) Merge(other Span) Span {
	return Span{File: s.File, Line: s.Line, Col: s.Col, EndLine: other.EndLine, EndCol: other.EndCol}
}
