//go:build linux && amd64

package retarget

import (
	"os"
	"os/exec"
	"testing"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/xyproto/retarget/internal/ir"
)

const execHelperEnv = "RETARGET_EXEC_HELPER"

// TestAMD64ExecLinux is the golden-path integration check for scenarios
// S1/S2 (Linux, non-Win32): it drives actual generated x86-64 machine
// code rather than just comparing bytes. The test re-execs itself as a
// child process with execHelperEnv set; the child maps the generated
// code PROT_EXEC and jumps into it, and the parent asserts on the exit
// code the mapped code itself produced via the raw exit syscall. The
// mmap/exec-then-jump technique is the same one the teacher's
// hotreload_unix.go (xyproto-vibe67) uses to run freshly compiled
// machine code from Go, narrowed here to golang.org/x/sys/unix instead
// of raw syscall.Syscall6.
func TestAMD64ExecLinux(t *testing.T) {
	if os.Getenv(execHelperEnv) == "1" {
		runExecHelper()
		return // unreachable: runExecHelper exits the process itself
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestAMD64ExecLinux")
	cmd.Env = append(os.Environ(), execHelperEnv+"=1")
	err := cmd.Run()

	exitErr, ok := err.(*exec.ExitError)
	if !ok {
		t.Fatalf("expected the child to terminate via its own exit syscall, got %v", err)
	}
	if code := exitErr.ExitCode(); code != 42 {
		t.Fatalf("exit code = %d, want 42", code)
	}
}

// runExecHelper builds a program that loads the Linux exit syscall
// number into rax (R0) and a status of 42 into rdi (R7), maps the
// generated bytes executable, and calls straight into them. It never
// returns to its caller.
func runExecHelper() {
	program := []ir.Instruction{
		ir.Insn(ir.OpLDI, 1, 1, ir.Reg(0), ir.Imm(60)), // rax = sys_exit
		ir.Insn(ir.OpLDI, 2, 1, ir.Reg(7), ir.Imm(42)), // rdi = status
		ir.Insn(ir.OpSYS, 3, 1),
	}
	cb, err := Generate(TargetAMD64, false, program)
	if err != nil {
		panic(err)
	}
	code := cb.Bytes()

	mem, err := unix.Mmap(-1, 0, len(code), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		panic(err)
	}
	copy(mem, code)
	if err := unix.Mprotect(mem, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		panic(err)
	}

	codeAddr := uintptr(unsafe.Pointer(&mem[0]))
	fn := *(*func())(unsafe.Pointer(&codeAddr))
	fn()
}
