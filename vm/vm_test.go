package vm

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"nyx/asm"
	"nyx/ast"
	"nyx/diag"
	"nyx/isa"
	"nyx/parser"
	"nyx/preprocess"
)

func assert(t *testing.T, cond bool, format string, args ...any) {
	t.Helper()
	if !cond {
		t.Fatalf(fmt.Sprintf("%v %s", cond, format), args...)
	}
}

const testMemSize = 4096

func buildImage(t *testing.T, src string) []byte {
	t.Helper()
	interner := ast.NewInterner()
	stmts, err := parser.ParseSource("t.nyx", src, interner)
	assert(t, err == nil, "unexpected parse error: %v", err)
	pp := preprocess.New(interner, nil)
	stmts, err = pp.Process(stmts)
	assert(t, err == nil, "unexpected preprocess error: %v", err)
	image, err := asm.Assemble(stmts, interner, diag.NewReporter())
	assert(t, err == nil, "unexpected assemble error: %v", err)
	return image
}

func runSource(t *testing.T, src string) *VM {
	t.Helper()
	image := buildImage(t, src)
	m, err := New(image, testMemSize)
	assert(t, err == nil, "unexpected load error: %v", err)
	assert(t, m.Run() == nil, "unexpected run error")
	return m
}

func regValue(m *VM, bank int, view ast.View) uint64 {
	return m.regs.Get(ast.MakeRegister(bank, view)).AsUint64()
}

// Scenario 2 of spec.md section 8.
func TestArithmeticScenario(t *testing.T) {
	m := runSource(t, `
		mov q0,20
		mov q1,5
		add q2,q0,q1
		sub q3,q0,q1
		mul q4,q0,q1
		div q5,q0,q1
		hlt
	`)
	assert(t, regValue(m, 2, ast.ViewQ) == 25, "q2 should be 25, got %d", regValue(m, 2, ast.ViewQ))
	assert(t, regValue(m, 3, ast.ViewQ) == 15, "q3 should be 15, got %d", regValue(m, 3, ast.ViewQ))
	assert(t, regValue(m, 4, ast.ViewQ) == 100, "q4 should be 100, got %d", regValue(m, 4, ast.ViewQ))
	assert(t, regValue(m, 5, ast.ViewQ) == 4, "q5 should be 4, got %d", regValue(m, 5, ast.ViewQ))
}

// Scenario 3 of spec.md section 8.
func TestForwardJumpScenario(t *testing.T) {
	m := runSource(t, `
		jmp skip
		mov q0,1
		skip: mov q0,2
		hlt
	`)
	assert(t, regValue(m, 0, ast.ViewQ) == 2, "q0 should be 2, got %d", regValue(m, 0, ast.ViewQ))
}

// Scenario 5 of spec.md section 8.
func TestStackRoundTripScenario(t *testing.T) {
	m := runSource(t, `
		mov q0,42
		push qword q0
		mov q0,0
		pop qword q0
		hlt
	`)
	assert(t, regValue(m, 0, ast.ViewQ) == 42, "q0 should be 42 after the round trip, got %d", regValue(m, 0, ast.ViewQ))
	assert(t, m.regs.SP() == uint64(testMemSize), "sp should return to its initial value, got %d", m.regs.SP())
}

func TestMultiPushPopReversesOrder(t *testing.T) {
	m := runSource(t, `
		mov q0,1
		mov q1,2
		mov q2,3
		push qword q0
		push qword q1
		push qword q2
		pop qword q3
		pop qword q4
		pop qword q5
		hlt
	`)
	assert(t, regValue(m, 3, ast.ViewQ) == 3, "first pop should be the last push, got %d", regValue(m, 3, ast.ViewQ))
	assert(t, regValue(m, 4, ast.ViewQ) == 2, "second pop should be 2, got %d", regValue(m, 4, ast.ViewQ))
	assert(t, regValue(m, 5, ast.ViewQ) == 1, "third pop should be the first push, got %d", regValue(m, 5, ast.ViewQ))
	assert(t, m.regs.SP() == uint64(testMemSize), "sp should return to its initial value, got %d", m.regs.SP())
}

func TestCmpAndAllBranches(t *testing.T) {
	cases := []struct {
		mnemonic string
		a, b     int64
		taken    bool
	}{
		{"jeq", 5, 5, true}, {"jeq", 5, 6, false},
		{"jne", 5, 6, true}, {"jne", 5, 5, false},
		{"jlt", 5, 6, true}, {"jlt", 6, 5, false},
		{"jgt", 6, 5, true}, {"jgt", 5, 5, true}, {"jgt", 5, 6, false},
		{"jle", 5, 6, true}, {"jle", 5, 5, true}, {"jle", 6, 5, false},
		{"jge", 6, 5, true}, {"jge", 5, 5, true}, {"jge", 5, 6, false},
	}
	for _, c := range cases {
		src := fmt.Sprintf(`
			mov q0,%d
			mov q1,%d
			cmp q0,q1
			%s taken
			mov q2,0
			hlt
			taken: mov q2,1
			hlt
		`, c.a, c.b, c.mnemonic)
		m := runSource(t, src)
		got := regValue(m, 2, ast.ViewQ) == 1
		assert(t, got == c.taken, "%s(%d,%d): expected taken=%v, got %v", c.mnemonic, c.a, c.b, c.taken, got)
	}
}

func TestIncDecNeg(t *testing.T) {
	m := runSource(t, `
		mov q0,5
		inc q0
		mov q1,5
		dec q1
		mov q2,5
		neg q2
		hlt
	`)
	assert(t, regValue(m, 0, ast.ViewQ) == 6, "inc should yield 6, got %d", regValue(m, 0, ast.ViewQ))
	assert(t, regValue(m, 1, ast.ViewQ) == 4, "dec should yield 4, got %d", regValue(m, 1, ast.ViewQ))
	assert(t, int64(regValue(m, 2, ast.ViewQ)) == -5, "neg should yield -5, got %d", int64(regValue(m, 2, ast.ViewQ)))
}

func TestCallAndRet(t *testing.T) {
	m := runSource(t, `
		call fn
		mov q1,2
		hlt
		fn: mov q0,1
		ret
	`)
	assert(t, regValue(m, 0, ast.ViewQ) == 1, "callee should have run, q0=%d", regValue(m, 0, ast.ViewQ))
	assert(t, regValue(m, 1, ast.ViewQ) == 2, "caller should resume after call, q1=%d", regValue(m, 1, ast.ViewQ))
}

func TestLdrStrRoundTrip(t *testing.T) {
	m := runSource(t, `
		mov q0,99
		mov q1,buf
		str q0,[q1]
		mov q2,0
		ldr q2,[q1]
		hlt
		.section data
		buf: resb 8
	`)
	assert(t, regValue(m, 2, ast.ViewQ) == 99, "ldr should read back what str wrote, got %d", regValue(m, 2, ast.ViewQ))
}

func TestFloatArithmeticAndRegisterBitcast(t *testing.T) {
	m := runSource(t, `
		mov dd0,10.0
		mov dd1,4.0
		add dd2,dd0,dd1
		sub dd3,dd0,dd1
		hlt
	`)
	sum := m.regs.Get(ast.MakeRegister(2, ast.ViewDD)).AsFloat64()
	diff := m.regs.Get(ast.MakeRegister(3, ast.ViewDD)).AsFloat64()
	assert(t, sum == 14.0, "dd2 should be 14.0, got %v", sum)
	assert(t, diff == 6.0, "dd3 should be 6.0, got %v", diff)
}

func TestSingleFloatRegisterRoundTrips(t *testing.T) {
	m := runSource(t, `
		mov ff0,1.5
		hlt
	`)
	got := m.regs.Get(ast.MakeRegister(0, ast.ViewFF)).AsFloat64()
	assert(t, got == 1.5, "ff0 should read back the written value, got %v", got)
}

func TestInvalidOpcodeIsAnError(t *testing.T) {
	// One byte strictly past the last defined opcode, per spec.md section
	// 4.6 ("An opcode byte strictly greater than the last defined opcode
	// is an invalid opcode").
	image := append([]byte{0, 0, 0, 0, 0, 0, 0, 0}, byte(isa.MaxOpcode)+1)
	m, err := New(image, testMemSize)
	assert(t, err == nil, "unexpected load error: %v", err)
	err = m.Run()
	assert(t, err == errInvalidOpcode, "expected an invalid-opcode error, got %v", err)
}

func TestImageShorterThanHeaderIsRejected(t *testing.T) {
	_, err := New([]byte{1, 2, 3}, testMemSize)
	assert(t, err != nil, "expected images shorter than 8 bytes to be rejected")
}

func TestStackOverflowOnDeepPush(t *testing.T) {
	image := buildImage(t, "push qword q0\nhlt\n")
	m, err := New(image, len(image)-8)
	assert(t, err == nil, "unexpected load error: %v", err)
	err = m.Run()
	assert(t, err == errStackOverflow, "expected a stack overflow pushing with no room left, got %v", err)
}

func TestSyscallWriteRoundTripsThroughAFile(t *testing.T) {
	dir := t.TempDir()
	outPath := filepath.Join(dir, "out.txt")

	src := fmt.Sprintf(`
		mov q0,path
		mov d1,577
		mov w2,420
		mov q15,0
		syscall
		mov d0,q0
		mov d3,q0
		mov q1,message
		mov q2,14
		mov q15,3
		syscall
		mov d0,d3
		mov q15,1
		syscall
		hlt
		.section data
		path: db "%s", 0x00
		message: db "Hello, world!\n", 0x00
	`, outPath)
	// 577 = O_WRONLY|O_CREATE|O_TRUNC on linux amd64; 420 = 0644.
	runSource(t, src)

	got, err := os.ReadFile(outPath)
	assert(t, err == nil, "unexpected error reading back the written file: %v", err)
	assert(t, string(got) == "Hello, world!\n", "expected the 14-byte hello message, got %q", string(got))
}

func TestMallocThenFreeRemovesTheBlock(t *testing.T) {
	m := runSource(t, `
		mov q0,16
		mov q15,4
		syscall
		mov q1,q0
		mov q15,5
		syscall
		hlt
	`)
	// After free, the MMU should be back to just Program+Memory.
	assert(t, m.mmu.Size() == testMemSize, "mmu size should shrink back to the original memSize, got %d", m.mmu.Size())
}

func TestIntegerDivideByZeroIsAVMErrorNotAPanic(t *testing.T) {
	image := buildImage(t, `
		mov q0,20
		mov q1,0
		div q2,q0,q1
		hlt
	`)
	m, err := New(image, testMemSize)
	assert(t, err == nil, "unexpected load error: %v", err)
	err = m.Run()
	assert(t, err != nil, "expected integer division by zero to surface as a VM error")
}

func TestFreeOfNonBlockBaseIsAnError(t *testing.T) {
	image := buildImage(t, "mov q0,1\nmov q15,5\nsyscall\nhlt\n")
	m, err := New(image, testMemSize)
	assert(t, err == nil, "unexpected load error: %v", err)
	err = m.Run()
	assert(t, err == errInvalidFreeAddress, "expected an invalid free address error, got %v", err)
}
