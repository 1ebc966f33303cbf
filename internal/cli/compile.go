package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/stepc/internal/codecache"
	"github.com/roach88/stepc/internal/harness"
	"github.com/roach88/stepc/internal/ir"
	"github.com/roach88/stepc/internal/kernel"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output  string // output file path
	Listing bool   // print each program's disassembly
}

// CompiledCode describes one compiled code object.
type CompiledCode struct {
	ID           string       `json:"id"`
	Key          ir.Key       `json:"key"`
	Source       []string     `json:"source"`
	Instructions int          `json:"instructions"`
	Stats        kernel.Stats `json:"stats"`
	Listing      string       `json:"listing,omitempty"`
}

// CompilationResult holds the compiled code objects of a model.
type CompilationResult struct {
	Model     string          `json:"model"`
	Toolchain string          `json:"toolchain"`
	Code      []CompiledCode  `json:"code"`
	Cache     codecache.Stats `json:"cache"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <model-dir>",
		Short: "Compile a model's code objects",
		Long: `Compile every code object of a CUE model.

Each code object is fingerprinted from its statements, the types of the
variables it references and the toolchain id. With --cache-dir, compiled
programs are stored on disk and later runs load them instead of compiling.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write compiled programs as JSON to this file")
	cmd.Flags().BoolVar(&opts.Listing, "listing", false, "include program listings")

	return cmd
}

func runCompile(opts *CompileOptions, modelDir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	res, err := LoadModel(modelDir)
	if err != nil {
		return outputLoadError(formatter, err)
	}
	if len(res.Errors) > 0 {
		return outputValidationErrors(formatter, res.Model, res.Errors)
	}
	m := res.Model
	formatter.VerboseLog("Loaded model %s from %d CUE file(s)", m.Name, res.Files)

	st, err := opts.openStore("")
	if err != nil {
		return err
	}
	if st != nil {
		defer st.Close()
	}
	cache := opts.newCache(st, opts.newLogger(formatter.GetErrWriter()))

	result := &CompilationResult{Model: m.Name, Toolchain: kernel.ToolchainID()}
	programs := make(map[string]*kernel.Program, len(m.Code))
	for _, c := range m.Code {
		formatter.VerboseLog("Compiling code object: %s", c.ID)
		co, key, err := harness.CodeObject(ctx, cache, m, c)
		if err != nil {
			_ = formatter.Error(ErrorCode(err), err.Error(), nil)
			return WrapExitError(ExitCommandError, "compilation failed", err)
		}
		p := co.Program()
		programs[c.ID] = p
		cc := CompiledCode{
			ID:           c.ID,
			Key:          key,
			Source:       c.Source,
			Instructions: len(p.Scalars) + len(p.Splats) + len(p.Body),
			Stats:        p.Stats,
		}
		if opts.Listing {
			cc.Listing = p.Listing()
		}
		result.Code = append(result.Code, cc)
	}
	result.Cache = cache.Stats()

	if opts.Output != "" {
		if err := writeProgramsToFile(programs, opts.Output); err != nil {
			_ = formatter.Error(ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err), nil)
			return WrapExitError(ExitCommandError, "writing output file", err)
		}
	}

	return outputCompileSuccess(formatter, result, opts.Output)
}

// outputCompileSuccess outputs successful compilation results.
func outputCompileSuccess(formatter *OutputFormatter, result *CompilationResult, outputFile string) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✓ Compiled %d code object(s) for model %s\n\n", len(result.Code), result.Model)
	for _, c := range result.Code {
		fmt.Fprintf(w, "  %s: %s, %d instruction(s)", c.ID, c.Key.Short(), c.Instructions)
		if s := c.Stats; s.Folded+s.Simplified+s.Hoisted+s.Reused > 0 {
			fmt.Fprintf(w, " (folded %d, simplified %d, hoisted %d, reused %d)", s.Folded, s.Simplified, s.Hoisted, s.Reused)
		}
		fmt.Fprintln(w)
		if c.Listing != "" {
			for _, line := range strings.Split(strings.TrimRight(c.Listing, "\n"), "\n") {
				fmt.Fprintf(w, "      %s\n", line)
			}
		}
	}
	fmt.Fprintln(w)
	if result.Cache.DiskLoads > 0 {
		fmt.Fprintf(w, "Loaded %d from the cache directory, compiled %d\n", result.Cache.DiskLoads, result.Cache.Compiles)
	}
	if outputFile != "" {
		fmt.Fprintf(w, "Wrote programs to %s\n", outputFile)
	}
	return nil
}

// writeProgramsToFile writes the compiled programs, keyed by code object id.
func writeProgramsToFile(programs map[string]*kernel.Program, filename string) error {
	data, err := json.MarshalIndent(programs, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling programs: %w", err)
	}
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}
