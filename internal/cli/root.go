package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/stepc/internal/codecache"
	"github.com/roach88/stepc/internal/kernel"
	"github.com/roach88/stepc/internal/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	CacheDir   string // artifact store; empty = in-memory cache only
	Workers    int    // intra-execute goroutines
	MaxEntries int    // in-memory cache bound; 0 = unbounded
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the stepc CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "stepc",
		Short: "stepc - compiled per-step array updates",
		Long: `Compile per-element update statements into cached code objects and run
them step by step over growable typed buffers.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if opts.Workers < 1 {
				return fmt.Errorf("invalid workers %d: must be at least 1", opts.Workers)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.CacheDir, "cache-dir", "", "persistent code object store directory")
	cmd.PersistentFlags().IntVar(&opts.Workers, "workers", 1, "goroutines per code object execution")
	cmd.PersistentFlags().IntVar(&opts.MaxEntries, "max-entries", 0, "in-memory cache bound (0 = unbounded)")

	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewCacheCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// newLogger returns a text logger on w at debug level when verbose, warn
// level otherwise.
func (o *RootOptions) newLogger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if o.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// openStore opens the --cache-dir store, or returns nil if none is set.
func (o *RootOptions) openStore(runID string) (*store.Store, error) {
	if o.CacheDir == "" {
		return nil, nil
	}
	var sopts []store.Option
	if runID != "" {
		sopts = append(sopts, store.WithRunID(runID))
	}
	st, err := store.Open(o.CacheDir, sopts...)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open cache directory", err)
	}
	return st, nil
}

// newCache builds the code object cache the global flags describe. st may
// be nil.
func (o *RootOptions) newCache(st *store.Store, logger *slog.Logger) *codecache.Cache {
	copts := []codecache.Option{codecache.WithLogger(logger)}
	if o.MaxEntries > 0 {
		copts = append(copts, codecache.WithMaxEntries(o.MaxEntries))
	}
	if o.Workers > 1 {
		copts = append(copts, codecache.WithLinkOptions(kernel.WithWorkers(o.Workers)))
	}
	if st != nil {
		copts = append(copts, codecache.WithStore(st))
	}
	return codecache.New(copts...)
}

// formatter builds the command's output formatter. Verbose logs go to
// stderr so they never corrupt JSON.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}
