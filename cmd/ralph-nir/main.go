package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/raymyers/ralph-nir/pkg/lowerregs"
	"github.com/raymyers/ralph-nir/pkg/nir"
	"github.com/raymyers/ralph-nir/pkg/nirload"
	"github.com/raymyers/ralph-nir/pkg/regviz"
	"github.com/raymyers/ralph-nir/pkg/splitcopies"
)

var version = "0.1.0"

// Debug flags for dumping intermediate representations
var (
	dInput  bool
	dNIR    bool
	dRegSVG bool
)

// Pipeline options
var (
	noSplitCopies bool
	verbose       bool
	watchFiles    bool
	jobs          int
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rootCmd := newRootCmd(os.Stdout, os.Stderr)
	// Normalize CompCert-style single-dash flags to double-dash for pflag compatibility
	rootCmd.SetArgs(normalizeFlags(os.Args[1:]))
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		return 1
	}
	return 0
}

// debugFlagNames lists the dump flags that also accept a single dash
var debugFlagNames = []string{"dinput", "dnir", "dregsvg"}

// normalizeFlags converts single-dash dump flags like -dnir to --dnir
func normalizeFlags(args []string) []string {
	result := make([]string, len(args))
	for i, arg := range args {
		for _, flagName := range debugFlagNames {
			if arg == "-"+flagName {
				result[i] = "--" + flagName
				break
			}
		}
		if result[i] == "" {
			result[i] = arg
		}
	}
	return result
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ralph-nir [file...]",
		Short: "ralph-nir lowers shader locals to virtual registers",
		Long: `ralph-nir loads shader IR described in YAML, splits aggregate
copies, replaces every function-local variable with a virtual
register and dumps the result.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				cmd.Help()
				return nil
			}
			if watchFiles {
				return watch(cmd.Context(), args, out, errOut)
			}
			return processFiles(cmd.Context(), args, out, errOut)
		},
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	// Add debug flags
	rootCmd.Flags().BoolVarP(&dInput, "dinput", "", false, "Dump IR as loaded")
	rootCmd.Flags().BoolVarP(&dNIR, "dnir", "", false, "Dump IR after lowering locals to registers")
	rootCmd.Flags().BoolVarP(&dRegSVG, "dregsvg", "", false, "Draw register accesses of each function as SVG")

	rootCmd.Flags().BoolVar(&noSplitCopies, "no-split-copies", false, "Do not split copy_deref before lowering")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Report per-function statistics")
	rootCmd.Flags().BoolVarP(&watchFiles, "watch", "w", false, "Reprocess inputs whenever they change")
	rootCmd.Flags().IntVarP(&jobs, "jobs", "j", 0, "Files processed in parallel (0 = unlimited)")
	rootCmd.Flags().SetNormalizeFunc(underscoreToDash)

	return rootCmd
}

// underscoreToDash lets --no_split_copies stand for --no-split-copies
func underscoreToDash(f *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
}

// processFiles runs the pipeline on every file. Each file gets its own
// output buffer so concurrent runs do not interleave; buffers are flushed
// in argument order.
func processFiles(ctx context.Context, files []string, out, errOut io.Writer) error {
	type result struct {
		out, errOut bytes.Buffer
		err         error
	}
	results := make([]result, len(files))

	g, gctx := errgroup.WithContext(ctx)
	if jobs > 0 {
		g.SetLimit(jobs)
	}
	for i, filename := range files {
		i, filename := i, filename
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r := &results[i]
			r.err = compile(filename, &r.out, &r.errOut)
			return r.err
		})
	}
	err := g.Wait()

	for i := range results {
		r := &results[i]
		out.Write(r.out.Bytes())
		errOut.Write(r.errOut.Bytes())
		if r.err != nil {
			fmt.Fprintf(errOut, "ralph-nir: %v\n", r.err)
		}
	}
	return err
}

// compile loads, lowers and dumps one file
func compile(filename string, out, errOut io.Writer) error {
	shader, err := nirload.LoadFile(filename)
	if err != nil {
		return err
	}

	if dInput {
		if err := dumpShader(outputFilename(filename, ".input.nir"), shader, out); err != nil {
			return err
		}
	}

	if !noSplitCopies {
		if _, err := splitcopies.SplitShader(shader); err != nil {
			return fmt.Errorf("%s: %w", filename, err)
		}
	}

	total, err := lowerregs.LowerShaderStats(shader, func(fn *nir.Function, s lowerregs.Stats) {
		if verbose {
			fmt.Fprintf(errOut, "ralph-nir: %s: %s: %d loads, %d stores, %d registers\n",
				filename, fn.Name, s.Loads, s.Stores, s.Registers)
		}
	})
	if err != nil {
		return fmt.Errorf("%s: %w", filename, err)
	}

	if dNIR {
		if err := dumpShader(outputFilename(filename, ".lowered.nir"), shader, out); err != nil {
			return err
		}
	}

	if dRegSVG {
		for _, fn := range shader.FunctionsWithImpl() {
			if err := drawRegisters(outputFilename(filename, "."+fn.Name+".regs.svg"), fn.Impl); err != nil {
				return err
			}
		}
	}

	if !dInput && !dNIR {
		fmt.Fprintf(errOut, "ralph-nir: lowered %s (%d registers)\n", filename, total.Registers)
	}
	return nil
}

// dumpShader prints shader to path and, for convenience, to out. Block
// headers carry dominators and live-in values.
func dumpShader(path string, shader *nir.Shader, out io.Writer) error {
	for _, fn := range shader.FunctionsWithImpl() {
		fn.Impl.MetadataRequire(nir.MetadataDominance | nir.MetadataLiveSSADefs)
	}

	outFile, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating %s: %w", path, err)
	}
	defer outFile.Close()

	nir.NewPrinter(outFile).PrintShader(shader)
	nir.NewPrinter(out).PrintShader(shader)
	return nil
}

func drawRegisters(path string, impl *nir.Impl) error {
	outFile, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating %s: %w", path, err)
	}
	if err := regviz.Draw(outFile, impl); err != nil {
		outFile.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return outFile.Close()
}

// outputFilename replaces a .yaml/.yml extension with ext: shader.yaml ->
// shader.lowered.nir
func outputFilename(filename, ext string) string {
	for _, in := range []string{".yaml", ".yml"} {
		if strings.HasSuffix(filename, in) {
			return filename[:len(filename)-len(in)] + ext
		}
	}
	return filename + ext
}

// sameFile compares paths after cleaning, so "./a.yaml" matches "a.yaml"
func sameFile(a, b string) bool {
	return filepath.Clean(a) == filepath.Clean(b)
}
