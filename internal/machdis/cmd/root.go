// Package cmd is the machdis command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime/pprof"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/log"
	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"machdis/internal/disasm"
	"machdis/internal/logging"
	"machdis/internal/machox"
	"machdis/internal/report"
)

// ErrMissingArgument is returned when no input file is given.
var ErrMissingArgument = errors.New("missing input file argument")

func exactlyOneFile(cmd *cobra.Command, args []string) error {
	switch {
	case len(args) == 0:
		return ErrMissingArgument
	case len(args) > 1:
		return fmt.Errorf("accepts 1 file, received %d", len(args))
	}
	return nil
}

func newRootCmd(lg *log.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:   "machdis <file>",
		Short: "Disassemble the __TEXT,__text section of a Mach-O binary",
		Long: `machdis locates the __TEXT,__text section of a thin Mach-O executable
and prints every instruction in it with its id, raw bytes, registers read
and written, instruction groups and operands.

Decoding stops at the first bytes that are not a valid instruction.
Universal (fat) binaries, ELF and PE files are rejected.

"schema" is a subcommand, so a file with that name must be given as a
path such as ./schema.`,
		Example: `
# Disassemble a binary
machdis ./a.out

# Disassemble a file named schema
machdis ./schema

# Force the x86-64 decoder and log each step
MACHDIS_ARCH=amd64 MACHDIS_LOG_LEVEL=debug machdis ./a.out
  `,
		Args:          exactlyOneFile,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := LoadConfig()

			if cfg.CPUProfile != "" {
				f, err := os.Create(cfg.CPUProfile)
				if err != nil {
					return fmt.Errorf("could not create CPU profile: %w", err)
				}
				defer f.Close()
				if err := pprof.StartCPUProfile(f); err != nil {
					return fmt.Errorf("could not start CPU profile: %w", err)
				}
				defer pprof.StopCPUProfile()
			}

			out := cmd.OutOrStdout()
			return disassemble(cmd.Context(), cfg, args[0], out, colorFor(cfg, out), lg)
		},
	}
	root.AddCommand(newSchemaCmd())
	return root
}

// colorFor enables colour only when out is a terminal.
func colorFor(cfg Config, out io.Writer) bool {
	if cfg.NoColor {
		return false
	}
	f, ok := out.(*os.File)
	return ok && term.IsTerminal(f.Fd())
}

// disassemble runs the whole pipeline for path and writes the reports to out.
func disassemble(ctx context.Context, cfg Config, path string, out io.Writer, color bool, lg *log.Logger) error {
	img, err := machox.Open(path)
	if err != nil {
		return err
	}
	lg.Debug("parsed image", "path", path, "kind", img.Kind, "cpu", img.CPU, "segments", len(img.Segments()))

	region, err := img.CodeRegion()
	if err != nil {
		return err
	}
	lg.Debug("located code region",
		"segment", region.Segment, "section", region.Section,
		"addr", fmt.Sprintf("%#x", region.Addr), "size", len(region.Code),
		"symbols", len(region.Symbols))

	arch, mode, err := cfg.decoder(region.CPU)
	if err != nil {
		return err
	}
	dec, err := disasm.New(arch, mode, true)
	if err != nil {
		return err
	}
	lg.Debug("decoder ready", "arch", arch, "mode", mode)

	if err := ctx.Err(); err != nil {
		return err
	}

	rep := report.New(dec, report.WithSymbols(region.Symbols), report.WithLogger(lg))
	w := report.NewWriter(out, report.WithColor(color))
	return w.WriteAll(rep.Reports(region.Code, region.Addr))
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	lg := logging.Setup()
	rootCmd := newRootCmd(lg.Logger)

	var err error
	piped := !term.IsTerminal(os.Stdout.Fd())
	if piped {
		// Piped output goes through plain cobra so it stays free of styling.
		err = rootCmd.Execute()
	} else {
		err = fang.Execute(
			context.Background(),
			rootCmd,
			fang.WithNotifySignal(os.Interrupt),
		)
	}
	if err != nil {
		// fang renders its own error block on a terminal.
		if piped {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			if errors.Is(err, ErrMissingArgument) {
				fmt.Fprintln(os.Stderr, rootCmd.UseLine())
			}
		}
		lg.Debug("run failed", "err", err)
		_ = lg.Close()
		os.Exit(1)
	}
	_ = lg.Close()
}
