package preprocess

import (
	"fmt"
	"nyx/ast"
)

// substitute walks operand expr, expanding identifiers bound in the
// definition table to a fixed point (spec.md section 4.1: "identifiers
// expand to their bound expression, repeated to a fixed point"). seen
// guards against a macro that expands into itself.
func (pp *Preprocessor) substitute(e ast.Expr, seen map[int]bool) (ast.Expr, error) {
	switch x := e.(type) {
	case *ast.Identifier:
		val, ok := pp.defs[x.ID]
		if !ok {
			return e, nil
		}
		if seen == nil {
			seen = make(map[int]bool)
		}
		if seen[x.ID] {
			return nil, fmt.Errorf("%s: recursive macro definition %q", x.Span(), pp.interner.Lookup(x.ID))
		}
		seen[x.ID] = true
		return pp.substitute(val, seen)
	case *ast.AddressExpr:
		base, err := pp.substitute(x.Base, seen)
		if err != nil {
			return nil, err
		}
		var offset ast.Expr
		if x.Offset != nil {
			offset, err = pp.substitute(x.Offset, seen)
			if err != nil {
				return nil, err
			}
		}
		return ast.NewAddressExpr(x.Span(), base, offset), nil
	case *ast.UnaryExpr:
		inner, err := pp.substitute(x.X, seen)
		if err != nil {
			return nil, err
		}
		return ast.NewUnaryExpr(x.Span(), x.Op, inner), nil
	case *ast.BinaryExpr:
		l, err := pp.substitute(x.L, seen)
		if err != nil {
			return nil, err
		}
		r, err := pp.substitute(x.R, seen)
		if err != nil {
			return nil, err
		}
		return ast.NewBinaryExpr(x.Span(), x.Op, l, r), nil
	default:
		return e, nil
	}
}

// isBitwiseOp reports whether op is one of the integer-only bitwise
// folding operators, which spec.md section 4.1 makes "a fatal error" when
// both operands are float literals.
func isBitwiseOp(op string) bool {
	switch op {
	case "|", "&", "^":
		return true
	}
	return false
}

// fold performs compile-time constant folding (spec.md section 4.1): when
// both operands of a binary op are integer literals, fold via
// {+ - * / | & ^}; when both are float literals, fold via {+ - * /} (the
// bitwise ops are a fatal error on floats). Otherwise the binary-op node is
// rebuilt with its (already substituted) children. fold recurses into
// children first so a fully-literal subtree always collapses.
func (pp *Preprocessor) fold(e ast.Expr) (ast.Expr, error) {
	switch x := e.(type) {
	case *ast.AddressExpr:
		base, err := pp.fold(x.Base)
		if err != nil {
			return nil, err
		}
		var offset ast.Expr
		if x.Offset != nil {
			offset, err = pp.fold(x.Offset)
			if err != nil {
				return nil, err
			}
		}
		return ast.NewAddressExpr(x.Span(), base, offset), nil
	case *ast.UnaryExpr:
		inner, err := pp.fold(x.X)
		if err != nil {
			return nil, err
		}
		switch v := inner.(type) {
		case *ast.IntLiteral:
			if x.Op == "-" {
				return ast.NewIntLiteral(x.Span(), -v.Value), nil
			}
			return ast.NewIntLiteral(x.Span(), ^v.Value), nil
		case *ast.FloatLiteral:
			if x.Op == "-" {
				return ast.NewFloatLiteral(x.Span(), -v.Value), nil
			}
			return nil, fmt.Errorf("%s: bitwise complement is not defined on a float literal", x.Span())
		}
		return ast.NewUnaryExpr(x.Span(), x.Op, inner), nil
	case *ast.BinaryExpr:
		l, err := pp.fold(x.L)
		if err != nil {
			return nil, err
		}
		r, err := pp.fold(x.R)
		if err != nil {
			return nil, err
		}
		if li, ok := l.(*ast.IntLiteral); ok {
			if ri, ok := r.(*ast.IntLiteral); ok {
				return ast.NewIntLiteral(x.Span(), foldIntOp(x.Op, li.Value, ri.Value)), nil
			}
		}
		if lf, ok := l.(*ast.FloatLiteral); ok {
			if rf, ok := r.(*ast.FloatLiteral); ok {
				if isBitwiseOp(x.Op) {
					return nil, fmt.Errorf("%s: bitwise operator %q is not defined on float literals", x.Span(), x.Op)
				}
				return ast.NewFloatLiteral(x.Span(), foldFloatOp(x.Op, lf.Value, rf.Value)), nil
			}
		}
		return ast.NewBinaryExpr(x.Span(), x.Op, l, r), nil
	default:
		return e, nil
	}
}

func foldIntOp(op string, l, r int64) int64 {
	switch op {
	case "+":
		return l + r
	case "-":
		return l - r
	case "*":
		return l * r
	case "/":
		if r == 0 {
			return 0
		}
		return l / r
	case "|":
		return l | r
	case "&":
		return l & r
	case "^":
		return l ^ r
	default:
		return 0
	}
}

func foldFloatOp(op string, l, r float64) float64 {
	switch op {
	case "+":
		return l + r
	case "-":
		return l - r
	case "*":
		return l * r
	case "/":
		return l / r
	default:
		return 0
	}
}

// substituteStmt rebuilds st with every operand expr substituted and
// folded.
func (pp *Preprocessor) substituteStmt(st ast.Stmt) (ast.Stmt, error) {
	expand := func(e ast.Expr) (ast.Expr, error) {
		s, err := pp.substitute(e, nil)
		if err != nil {
			return nil, err
		}
		return pp.fold(s)
	}

	switch s := st.(type) {
	case *ast.EntryStmt:
		target, err := expand(s.Target)
		if err != nil {
			return nil, err
		}
		return ast.NewEntryStmt(s.Span(), target), nil
	case *ast.DataDeclStmt:
		values := make([]ast.Expr, len(s.Values))
		for i, v := range s.Values {
			nv, err := expand(v)
			if err != nil {
				return nil, err
			}
			values[i] = nv
		}
		return ast.NewDataDeclStmt(s.Span(), s.Size, values), nil
	case *ast.ResbStmt:
		count, err := expand(s.Count)
		if err != nil {
			return nil, err
		}
		return ast.NewResbStmt(s.Span(), count), nil
	case *ast.InstrStmt:
		operands := make([]ast.Expr, len(s.Operands))
		for i, v := range s.Operands {
			nv, err := expand(v)
			if err != nil {
				return nil, err
			}
			operands[i] = nv
		}
		return ast.NewInstrStmt(s.Span(), s.Mnemonic, operands), nil
	default:
		return st, nil
	}
}
