// Package diag renders source-ranged diagnostics, the out-of-scope
// collaborator spec.md section 1 names as "the diagnostic reporter used
// for source-ranged error messages". It generalizes the teacher's own
// inline error formatting (KTStephano-GVM/vm/run.go's formatInstructionStr,
// which stitches an error message to an instruction's source line) to
// operate on parser/preprocessor/assembler spans instead of instruction
// offsets.
package diag

import (
	"fmt"
	"nyx/ast"
)

// Severity distinguishes fatal diagnostics from the only other kind Nyx
// currently emits; non-goals (spec.md section 1) rule out warnings.
type Severity string

const (
	Error Severity = "error"
)

// Diagnostic is one reported problem, carrying the span that pinpoints it.
type Diagnostic struct {
	Span     ast.Span
	Severity Severity
	Message  string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %s: %s", d.Span, d.Severity, d.Message)
}

// Error satisfies the error interface so a Diagnostic can be returned and
// propagated the way any other Go error would be.
func (d Diagnostic) Error() string { return d.String() }

// New builds a fatal diagnostic at span.
func New(span ast.Span, format string, args ...any) Diagnostic {
	return Diagnostic{Span: span, Severity: Error, Message: fmt.Sprintf(format, args...)}
}

// Reporter accumulates diagnostics during a single compile pipeline run.
// Compile-time errors in Nyx are always fatal (spec.md section 7), so in
// practice only the first reported diagnostic matters, but the reporter
// keeps the full list for tooling that wants to print more than one.
type Reporter struct {
	diags []Diagnostic
}

// NewReporter returns an empty reporter.
func NewReporter() *Reporter {
	return &Reporter{}
}

// Report records d.
func (r *Reporter) Report(d Diagnostic) {
	r.diags = append(r.diags, d)
}

// HasErrors reports whether any diagnostic has been recorded.
func (r *Reporter) HasErrors() bool {
	return len(r.diags) > 0
}

// All returns every diagnostic recorded so far, in report order.
func (r *Reporter) All() []Diagnostic {
	return r.diags
}

// First returns the first recorded diagnostic, or nil if none were
// reported.
func (r *Reporter) First() error {
	if len(r.diags) == 0 {
		return nil
	}
	return r.diags[0]
}
