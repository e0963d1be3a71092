package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/xyproto/retarget"
	"github.com/xyproto/retarget/internal/asmtext"
)

var command = &cobra.Command{
	Use:  "retarget source [-o output]",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target, _ := cmd.Flags().GetString("target")
		targetOS, _ := cmd.Flags().GetString("target-os")
		output, _ := cmd.Flags().GetString("output")
		dumpHex, _ := cmd.Flags().GetBool("dump-hex")
		verbose, _ := cmd.Flags().GetBool("verbose")
		retarget.SetVerbose(verbose)

		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		program, err := asmtext.Parse(f)
		if err != nil {
			return err
		}

		win32 := targetOS == retarget.OSWin32
		cb, err := retarget.Generate(target, win32, program)
		if err != nil {
			return err
		}

		if dumpHex {
			dumpHexListing(os.Stderr, cb.Bytes())
		}

		var out []byte
		if win32 {
			out = retarget.EmitPEExe(cb)
		} else {
			out = cb.Bytes()
		}

		if output == "" {
			output = "a.out"
		}
		return os.WriteFile(output, out, 0o755)
	},
}

// dumpHexListing writes an offset-annotated hex listing of buf, in the
// spirit of the teacher's VerboseMode hex tracing (emit.go).
func dumpHexListing(w *os.File, buf []byte) {
	const width = 16
	for off := 0; off < len(buf); off += width {
		end := off + width
		if end > len(buf) {
			end = len(buf)
		}
		fmt.Fprintf(w, "%08x  ", off)
		for _, b := range buf[off:end] {
			fmt.Fprintf(w, "%02x ", b)
		}
		fmt.Fprintln(w)
	}
}

func init() {
	command.Flags().StringP("target", "t", retarget.TargetAMD64, "target architecture (x86-64, x86-32, arm64, 8051)")
	command.Flags().String("target-os", retarget.OSLinux, "target operating system (linux, win32, none)")
	command.Flags().StringP("output", "o", "", "output file path (default a.out)")
	command.Flags().Bool("dump-hex", false, "write an offset-annotated hex listing of the code buffer to stderr")
	command.Flags().BoolP("verbose", "v", false, "trace every emitted byte to stderr")
}

func main() {
	if err := command.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
