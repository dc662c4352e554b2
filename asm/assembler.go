package asm

import (
	"github.com/samber/lo"

	"nyx/ast"
	"nyx/diag"
	"nyx/isa"
)

// Assembler is the two-pass assembler of spec.md section 4.2: a single
// forward pass over preprocessed statements that builds bytecode and
// records every forward reference, followed by Finalize's fixup
// resolution. Grounded on the teacher's own single-pass compiler
// (KTStephano-GVM/vm/compile.go's CompileSourceFromBuffer), generalized
// to two sections and a deferred fixup table since Nyx's labels may be
// referenced before they are defined.
type Assembler struct {
	builder  *Builder
	interner *ast.Interner
	reporter *diag.Reporter

	labels  map[int]Label
	fixups  []Fixup
	externs map[int]bool

	entrySet      bool
	entryExplicit bool
	entryIsLabel  bool
	entryLiteral  uint64
	entryLabelID  int
	entrySpan     ast.Span
}

// New returns an assembler starting in the text section with empty label,
// fixup, and extern tables.
func New(interner *ast.Interner, reporter *diag.Reporter) *Assembler {
	return &Assembler{
		builder:  NewBuilder(),
		interner: interner,
		reporter: reporter,
		labels:   make(map[int]Label),
		externs:  make(map[int]bool),
	}
}

// Assemble runs the forward pass over stmts, then Finalize, returning the
// complete image (header || text || data) per spec.md section 4.3.
func Assemble(stmts []ast.Stmt, interner *ast.Interner, reporter *diag.Reporter) ([]byte, error) {
	a := New(interner, reporter)
	if err := a.Process(stmts); err != nil {
		return nil, err
	}
	return a.Finalize()
}

// Process is the assembler's forward pass: bind labels, emit data and
// instructions, and record every fixup (spec.md section 4.2).
func (a *Assembler) Process(stmts []ast.Stmt) error {
	for _, st := range stmts {
		if err := a.processOne(st); err != nil {
			return err
		}
	}
	return nil
}

func (a *Assembler) processOne(st ast.Stmt) error {
	switch s := st.(type) {
	case *ast.LabelStmt:
		a.labels[s.Name] = Label{Section: a.builder.CurrentSection(), Offset: a.builder.Len(a.builder.CurrentSection())}
		if !a.entryExplicit && !a.entrySet && a.interner.Lookup(s.Name) == "_start" {
			a.entrySet = true
			a.entryIsLabel = true
			a.entryLabelID = s.Name
			a.entrySpan = s.Span()
		}
		return nil
	case *ast.SectionStmt:
		switch s.Name {
		case "text":
			a.builder.SetSection(Text)
		case "data":
			a.builder.SetSection(Data)
		default:
			return diag.New(s.Span(), "unknown section %q", s.Name)
		}
		return nil
	case *ast.EntryStmt:
		return a.processEntry(s)
	case *ast.AsciiStmt:
		a.builder.Extend([]byte(a.interner.Lookup(s.StringID)))
		if s.ZeroTerm {
			a.builder.PushByte(0)
		}
		return nil
	case *ast.DataDeclStmt:
		return a.processDataDecl(s)
	case *ast.ResbStmt:
		return a.processResb(s)
	case *ast.ExternStmt:
		a.externs[s.Name] = true
		return nil
	case *ast.InstrStmt:
		return a.assembleInstr(s)
	default:
		return diag.New(st.Span(), "unexpected statement in assembler pass")
	}
}

func (a *Assembler) processEntry(s *ast.EntryStmt) error {
	a.entryExplicit = true
	a.entrySet = true
	a.entrySpan = s.Span()
	switch v := s.Target.(type) {
	case *ast.IntLiteral:
		a.entryIsLabel = false
		a.entryLiteral = uint64(v.Value)
		return nil
	case *ast.Identifier:
		a.entryIsLabel = true
		a.entryLabelID = v.ID
		return nil
	default:
		return diag.New(s.Span(), ".entry target must be an integer literal or a label")
	}
}

func (a *Assembler) processDataDecl(s *ast.DataDeclStmt) error {
	for _, v := range s.Values {
		if str, ok := v.(*ast.StringLiteral); ok {
			if s.Size != ast.Byte {
				return diag.New(v.Span(), "string data is only legal in db")
			}
			a.builder.Extend([]byte(a.interner.Lookup(str.ID)))
			continue
		}
		if err := a.emitImmediateOperand(s.Size, v); err != nil {
			return err
		}
	}
	return nil
}

func (a *Assembler) processResb(s *ast.ResbStmt) error {
	lit, ok := s.Count.(*ast.IntLiteral)
	if !ok {
		return diag.New(s.Span(), "resb count must be a constant integer")
	}
	if lit.Value < 0 {
		return diag.New(s.Span(), "resb count must not be negative")
	}
	a.builder.Grow(int(lit.Value))
	return nil
}

// emitImmediateOperand appends a size-wide operand: an encoded literal, or
// a zero-filled fixup site when e is a forward-referenced label.
func (a *Assembler) emitImmediateOperand(size ast.DataSize, e ast.Expr) error {
	switch v := e.(type) {
	case *ast.IntLiteral:
		a.builder.Extend(ast.NewImmediateInt(size, v.Value).Bytes())
	case *ast.FloatLiteral:
		a.builder.Extend(ast.NewImmediateFloat(size, v.Value).Bytes())
	case *ast.Identifier:
		a.addFixup(size.Bytes(), v.ID, v.Span())
		a.builder.Grow(size.Bytes())
	default:
		return diag.New(e.Span(), "expected a literal or label here")
	}
	return nil
}

// resolveInt64 evaluates an address offset, which spec.md section 4.2
// requires to already be a constant integer by assembly time (the
// preprocessor's folding pass resolves any macro arithmetic).
func (a *Assembler) resolveInt64(e ast.Expr) (int64, error) {
	if e == nil {
		return 0, nil
	}
	lit, ok := e.(*ast.IntLiteral)
	if !ok {
		return 0, diag.New(e.Span(), "address offset must be a constant integer")
	}
	return lit.Value, nil
}

// emitAddress encodes an address operand per spec.md section 4.2's two
// addressing variants.
func (a *Assembler) emitAddress(addr *ast.AddressExpr) error {
	if reg, ok := addr.Base.(*ast.RegisterExpr); ok {
		a.builder.PushByte(byte(isa.AddrRegisterBase))
		a.builder.PushByte(byte(reg.Reg))
		offset, err := a.resolveInt64(addr.Offset)
		if err != nil {
			return err
		}
		a.builder.Extend(ast.NewImmediateInt(ast.Qword, offset).Bytes())
		return nil
	}

	a.builder.PushByte(byte(isa.AddrImmediateBase))
	switch base := addr.Base.(type) {
	case *ast.IntLiteral:
		a.builder.Extend(ast.NewImmediateInt(ast.Qword, base.Value).Bytes())
	case *ast.Identifier:
		a.addFixup(8, base.ID, base.Span())
		a.builder.Grow(8)
	default:
		return diag.New(addr.Span(), "address base must be a register, a label, or an integer literal")
	}
	offset, err := a.resolveInt64(addr.Offset)
	if err != nil {
		return err
	}
	a.builder.Extend(ast.NewImmediateInt(ast.Qword, offset).Bytes())
	return nil
}

func expectRegister(e ast.Expr) (*ast.RegisterExpr, bool) {
	r, ok := e.(*ast.RegisterExpr)
	return r, ok
}

func expectAddress(e ast.Expr) (*ast.AddressExpr, bool) {
	addr, ok := e.(*ast.AddressExpr)
	return addr, ok
}

func expectDataSize(e ast.Expr) (ast.DataSize, bool) {
	ds, ok := e.(*ast.DataSizeExpr)
	if !ok {
		return 0, false
	}
	return ds.Size, true
}

// bitwiseMnemonics rejects float/double operands (spec.md section 4.2's
// operand-type policy: "bitwise ops reject float/double registers and
// float operands with a dedicated diagnostic").
var bitwiseMnemonics = []string{"and", "or", "xor", "shl", "shr"}

func isBitwise(mnemonic string) bool {
	return lo.Contains(bitwiseMnemonics, mnemonic)
}

var arithRegOpcode = map[string]isa.Opcode{
	"add": isa.OpAddRegRegReg, "sub": isa.OpSubRegRegReg,
	"mul": isa.OpMulRegRegReg, "div": isa.OpDivRegRegReg,
	"and": isa.OpAndRegRegReg, "or": isa.OpOrRegRegReg, "xor": isa.OpXorRegRegReg,
	"shl": isa.OpShlRegRegReg, "shr": isa.OpShrRegRegReg,
}

var arithImmOpcode = map[string]isa.Opcode{
	"add": isa.OpAddRegRegImm, "sub": isa.OpSubRegRegImm,
	"mul": isa.OpMulRegRegImm, "div": isa.OpDivRegRegImm,
	"and": isa.OpAndRegRegImm, "or": isa.OpOrRegRegImm, "xor": isa.OpXorRegRegImm,
	"shl": isa.OpShlRegRegImm, "shr": isa.OpShrRegRegImm,
}

var jumpImmOpcode = map[string]isa.Opcode{
	"jmp": isa.OpJmpImm, "jeq": isa.OpJeqImm, "jne": isa.OpJneImm,
	"jlt": isa.OpJltImm, "jgt": isa.OpJgtImm, "jle": isa.OpJleImm, "jge": isa.OpJgeImm,
}

var jumpRegOpcode = map[string]isa.Opcode{
	"jmp": isa.OpJmpReg, "jeq": isa.OpJeqReg, "jne": isa.OpJneReg,
	"jlt": isa.OpJltReg, "jgt": isa.OpJgtReg, "jle": isa.OpJleReg, "jge": isa.OpJgeReg,
}

func (a *Assembler) assembleInstr(s *ast.InstrStmt) error {
	m := s.Mnemonic
	ops := s.Operands
	span := s.Span()

	switch m {
	case "nop":
		a.builder.PushByte(byte(isa.OpNop))
		return nil
	case "ret":
		a.builder.PushByte(byte(isa.OpRet))
		return nil
	case "syscall":
		a.builder.PushByte(byte(isa.OpSyscall))
		return nil
	case "hlt":
		a.builder.PushByte(byte(isa.OpHlt))
		return nil
	case "load_external":
		if len(ops) != 1 {
			return diag.New(span, "load_external takes exactly one string operand")
		}
		str, ok := ops[0].(*ast.StringLiteral)
		if !ok {
			return diag.New(span, "load_external operand must be a string literal")
		}
		a.builder.PushByte(byte(isa.OpLoadExternal))
		a.builder.Extend([]byte(a.interner.Lookup(str.ID)))
		a.builder.PushByte(0)
		return nil
	case "mov":
		return a.assembleMov(ops, span)
	case "ldr":
		return a.assembleLdrStr(isa.OpLdr, ops, span)
	case "str":
		return a.assembleLdrStr(isa.OpStr, ops, span)
	case "sti":
		return a.assembleSti(ops, span)
	case "push":
		return a.assemblePush(ops, span)
	case "pop":
		return a.assemblePop(ops, span)
	case "add", "sub", "mul", "div", "and", "or", "xor", "shl", "shr":
		return a.assembleArith(m, ops, span)
	case "cmp":
		return a.assembleCmp(ops, span)
	case "jmp", "jeq", "jne", "jlt", "jgt", "jle", "jge":
		return a.assembleJump(m, ops, span)
	case "call":
		return a.assembleCall(ops, span)
	case "inc":
		return a.assembleUnaryReg(isa.OpInc, ops, span)
	case "dec":
		return a.assembleUnaryReg(isa.OpDec, ops, span)
	case "neg":
		return a.assembleUnaryReg(isa.OpNeg, ops, span)
	default:
		return diag.New(span, "unknown mnemonic %q", m)
	}
}

func (a *Assembler) assembleMov(ops []ast.Expr, span ast.Span) error {
	if len(ops) != 2 {
		return diag.New(span, "mov takes two operands")
	}
	dst, ok := expectRegister(ops[0])
	if !ok {
		return diag.New(ops[0].Span(), "the first operand of mov must be a register")
	}
	if src, ok := expectRegister(ops[1]); ok {
		a.builder.PushByte(byte(isa.OpMovRegReg))
		a.builder.PushByte(byte(dst.Reg))
		a.builder.PushByte(byte(src.Reg))
		return nil
	}
	a.builder.PushByte(byte(isa.OpMovRegImm))
	a.builder.PushByte(byte(dst.Reg))
	return a.emitImmediateOperand(dst.Reg.NaturalSize(), ops[1])
}

func (a *Assembler) assembleLdrStr(op isa.Opcode, ops []ast.Expr, span ast.Span) error {
	if len(ops) != 2 {
		return diag.New(span, "%s takes two operands", op)
	}
	reg, ok := expectRegister(ops[0])
	if !ok {
		return diag.New(ops[0].Span(), "the first operand of %s must be a register", op)
	}
	addr, ok := expectAddress(ops[1])
	if !ok {
		return diag.New(ops[1].Span(), "the second operand of %s must be an address", op)
	}
	a.builder.PushByte(byte(op))
	a.builder.PushByte(byte(reg.Reg))
	return a.emitAddress(addr)
}

func (a *Assembler) assembleSti(ops []ast.Expr, span ast.Span) error {
	if len(ops) != 3 {
		return diag.New(span, "sti takes a data size, an immediate, and an address")
	}
	size, ok := expectDataSize(ops[0])
	if !ok {
		return diag.New(ops[0].Span(), "the first operand of sti must be a data size")
	}
	addr, ok := expectAddress(ops[2])
	if !ok {
		return diag.New(ops[2].Span(), "the third operand of sti must be an address")
	}
	a.builder.PushByte(byte(isa.OpSti))
	a.builder.PushByte(byte(size))
	if err := a.emitImmediateOperand(size, ops[1]); err != nil {
		return err
	}
	return a.emitAddress(addr)
}

func (a *Assembler) assemblePush(ops []ast.Expr, span ast.Span) error {
	if len(ops) != 2 {
		return diag.New(span, "push takes a data size and a value")
	}
	size, ok := expectDataSize(ops[0])
	if !ok {
		return diag.New(ops[0].Span(), "the first operand of push must be a data size")
	}
	switch v := ops[1].(type) {
	case *ast.RegisterExpr:
		a.builder.PushByte(byte(isa.OpPushReg))
		a.builder.PushByte(byte(size))
		a.builder.PushByte(byte(v.Reg))
		return nil
	case *ast.AddressExpr:
		a.builder.PushByte(byte(isa.OpPushAddr))
		a.builder.PushByte(byte(size))
		return a.emitAddress(v)
	default:
		a.builder.PushByte(byte(isa.OpPushImm))
		a.builder.PushByte(byte(size))
		return a.emitImmediateOperand(size, ops[1])
	}
}

func (a *Assembler) assemblePop(ops []ast.Expr, span ast.Span) error {
	if len(ops) != 2 {
		return diag.New(span, "pop takes a data size and a destination")
	}
	size, ok := expectDataSize(ops[0])
	if !ok {
		return diag.New(ops[0].Span(), "the first operand of pop must be a data size")
	}
	switch v := ops[1].(type) {
	case *ast.RegisterExpr:
		a.builder.PushByte(byte(isa.OpPopReg))
		a.builder.PushByte(byte(size))
		a.builder.PushByte(byte(v.Reg))
		return nil
	case *ast.AddressExpr:
		a.builder.PushByte(byte(isa.OpPopAddr))
		a.builder.PushByte(byte(size))
		return a.emitAddress(v)
	default:
		return diag.New(ops[1].Span(), "pop's destination must be a register or an address")
	}
}

func (a *Assembler) assembleArith(m string, ops []ast.Expr, span ast.Span) error {
	if len(ops) != 3 {
		return diag.New(span, "%s takes three operands", m)
	}
	dst, ok := expectRegister(ops[0])
	if !ok {
		return diag.New(ops[0].Span(), "the first operand of %s must be a register", m)
	}
	src1, ok := expectRegister(ops[1])
	if !ok {
		return diag.New(ops[1].Span(), "the second operand of %s must be a register", m)
	}
	if isBitwise(m) {
		if dst.Reg.NaturalSize().IsFloat() || src1.Reg.NaturalSize().IsFloat() {
			return diag.New(span, "%s does not accept float or double registers", m)
		}
	}
	if src2, ok := expectRegister(ops[2]); ok {
		if isBitwise(m) && src2.Reg.NaturalSize().IsFloat() {
			return diag.New(ops[2].Span(), "%s does not accept float or double registers", m)
		}
		a.builder.PushByte(byte(arithRegOpcode[m]))
		a.builder.PushByte(byte(dst.Reg))
		a.builder.PushByte(byte(src1.Reg))
		a.builder.PushByte(byte(src2.Reg))
		return nil
	}
	if isBitwise(m) {
		if _, ok := ops[2].(*ast.FloatLiteral); ok {
			return diag.New(ops[2].Span(), "%s does not accept a float operand", m)
		}
	}
	a.builder.PushByte(byte(arithImmOpcode[m]))
	a.builder.PushByte(byte(dst.Reg))
	a.builder.PushByte(byte(src1.Reg))
	return a.emitImmediateOperand(dst.Reg.NaturalSize(), ops[2])
}

func (a *Assembler) assembleCmp(ops []ast.Expr, span ast.Span) error {
	if len(ops) != 2 {
		return diag.New(span, "cmp takes two operands")
	}
	lhs, ok := expectRegister(ops[0])
	if !ok {
		return diag.New(ops[0].Span(), "the first operand of cmp must be a register")
	}
	if rhs, ok := expectRegister(ops[1]); ok {
		a.builder.PushByte(byte(isa.OpCmpRegReg))
		a.builder.PushByte(byte(lhs.Reg))
		a.builder.PushByte(byte(rhs.Reg))
		return nil
	}
	a.builder.PushByte(byte(isa.OpCmpRegImm))
	a.builder.PushByte(byte(lhs.Reg))
	return a.emitImmediateOperand(lhs.Reg.NaturalSize(), ops[1])
}

func (a *Assembler) assembleJump(m string, ops []ast.Expr, span ast.Span) error {
	if len(ops) != 1 {
		return diag.New(span, "%s takes one operand", m)
	}
	if reg, ok := expectRegister(ops[0]); ok {
		a.builder.PushByte(byte(jumpRegOpcode[m]))
		a.builder.PushByte(byte(reg.Reg))
		return nil
	}
	a.builder.PushByte(byte(jumpImmOpcode[m]))
	return a.emitImmediateOperand(ast.Qword, ops[0])
}

func (a *Assembler) assembleCall(ops []ast.Expr, span ast.Span) error {
	if len(ops) != 1 {
		return diag.New(span, "call takes one operand")
	}
	switch v := ops[0].(type) {
	case *ast.RegisterExpr:
		a.builder.PushByte(byte(isa.OpCallReg))
		a.builder.PushByte(byte(v.Reg))
		return nil
	case *ast.Identifier:
		if a.externs[v.ID] {
			a.builder.PushByte(byte(isa.OpCallEx))
			a.builder.Extend([]byte(a.interner.Lookup(v.ID)))
			a.builder.PushByte(0)
			return nil
		}
		a.builder.PushByte(byte(isa.OpCallImm))
		return a.emitImmediateOperand(ast.Qword, v)
	case *ast.IntLiteral:
		a.builder.PushByte(byte(isa.OpCallImm))
		return a.emitImmediateOperand(ast.Qword, v)
	default:
		return diag.New(ops[0].Span(), "call's target must be a register, a label, or an integer literal")
	}
}

func (a *Assembler) assembleUnaryReg(op isa.Opcode, ops []ast.Expr, span ast.Span) error {
	if len(ops) != 1 {
		return diag.New(span, "%s takes one register operand", op)
	}
	reg, ok := expectRegister(ops[0])
	if !ok {
		return diag.New(ops[0].Span(), "%s's operand must be a register", op)
	}
	a.builder.PushByte(byte(op))
	a.builder.PushByte(byte(reg.Reg))
	return nil
}

// Finalize performs the documented three-step final pass (spec.md section
// 4.2): resolve every recorded fixup, resolve the entry point, and emit
// header(entry) || text || data.
func (a *Assembler) Finalize() ([]byte, error) {
	if missing := a.undefinedFixups(); len(missing) > 0 {
		names := lo.Map(missing, func(fx Fixup, _ int) string { return a.interner.Lookup(fx.LabelID) })
		return nil, diag.New(missing[0].Span, "undefined label(s): %v", names)
	}

	for _, fx := range a.fixups {
		label := a.labels[fx.LabelID]
		a.builder.WriteAt(fx.PatchSection, fx.PatchOffset, fx.Size, a.absoluteAddress(label))
	}

	entry := a.entryLiteral
	if a.entrySet && a.entryIsLabel {
		label, ok := a.labels[a.entryLabelID]
		if !ok {
			return nil, diag.New(a.entrySpan, "undefined entry label %q", a.interner.Lookup(a.entryLabelID))
		}
		entry = a.absoluteAddress(label)
	}

	body := a.builder.Finalize()
	out := make([]byte, 8, 8+len(body))
	for i := 0; i < 8; i++ {
		out[i] = byte(entry >> (8 * i))
	}
	out = append(out, body...)
	return out, nil
}

// undefinedFixups reports every recorded fixup whose label was never bound,
// so Finalize can report every undefined label in one diagnostic instead of
// failing fast on the first.
func (a *Assembler) undefinedFixups() []Fixup {
	return lo.Filter(a.fixups, func(fx Fixup, _ int) bool {
		_, ok := a.labels[fx.LabelID]
		return !ok
	})
}
