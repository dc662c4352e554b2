// Command nyx is the toolchain entry point: build assembles a source file
// to a bytecode image, run assembles then executes it in one step, and
// execute runs an already-built image directly.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/xyproto/env/v2"

	"nyx/asm"
	"nyx/ast"
	"nyx/diag"
	"nyx/preprocess"
	"nyx/vm"
)

const defaultMemSize = 64 * 1024

func main() {
	root := &cobra.Command{
		Use:   "nyx",
		Short: "Assembler and virtual machine for the Nyx bytecode format",
	}
	root.AddCommand(buildCmd(), runCmd(), executeCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "build FILE",
		Short: "Assemble a source file to a bytecode image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			image, err := assembleFile(args[0])
			if err != nil {
				return err
			}
			if output == "" {
				output = defaultImageName
			}
			return os.WriteFile(output, image, 0o644)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output image path (default: out.nyb)")
	return cmd
}

func runCmd() *cobra.Command {
	var output string
	var libs []string
	var memSize int
	cmd := &cobra.Command{
		Use:   "run FILE",
		Short: "Assemble and immediately execute a source file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			image, err := assembleFile(args[0])
			if err != nil {
				return err
			}
			if output != "" {
				if err := os.WriteFile(output, image, 0o644); err != nil {
					return err
				}
			}
			return executeImage(image, libs, memSize)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "also write the assembled image to this path")
	cmd.Flags().StringSliceVarP(&libs, "lib", "l", nil, "native extension library to preload")
	cmd.Flags().IntVar(&memSize, "mem", env.Int("NYX_MEM_SIZE", defaultMemSize), "total VM address space in bytes")
	return cmd
}

func executeCmd() *cobra.Command {
	var libs []string
	var memSize int
	cmd := &cobra.Command{
		Use:   "execute FILE",
		Short: "Execute an already-assembled bytecode image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			image, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			return executeImage(image, libs, memSize)
		},
	}
	cmd.Flags().StringSliceVarP(&libs, "lib", "l", nil, "native extension library to preload")
	cmd.Flags().IntVar(&memSize, "mem", env.Int("NYX_MEM_SIZE", defaultMemSize), "total VM address space in bytes")
	return cmd
}

// assembleFile runs the full source pipeline: preprocess (which lexes and
// parses each file it reads), then assemble. NYX_STDLIB_PATH is appended to
// the include search path so `#include` can reach a shared library
// directory without a relative path.
func assembleFile(path string) ([]byte, error) {
	interner := ast.NewInterner()
	includePaths := includeSearchPath(path)

	pp := preprocess.New(interner, includePaths)
	stmts, err := pp.ProcessPath(path)
	if err != nil {
		return nil, err
	}

	reporter := diag.NewReporter()
	image, err := asm.Assemble(stmts, interner, reporter)
	if err != nil {
		for _, d := range reporter.All() {
			fmt.Fprintln(os.Stderr, d.String())
		}
		return nil, err
	}
	return image, nil
}

func includeSearchPath(sourcePath string) []string {
	paths := []string{filepath.Dir(sourcePath)}
	if stdlib := env.Str("NYX_STDLIB_PATH", ""); stdlib != "" {
		paths = append(paths, stdlib)
	}
	return paths
}

func executeImage(image []byte, libs []string, memSize int) error {
	m, err := vm.New(image, memSize)
	if err != nil {
		return err
	}
	for _, lib := range libs {
		if err := m.LoadExtension(lib); err != nil {
			return err
		}
	}
	return m.Run()
}

// defaultImageName is the output path spec.md section 6 documents for
// `nyx build FILE` when -o is omitted.
const defaultImageName = "out.nyb"
