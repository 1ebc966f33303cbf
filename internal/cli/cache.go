package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/stepc/internal/ir"
	"github.com/roach88/stepc/internal/store"
)

// NewCacheCommand creates the cache command and its subcommands. They all
// need --cache-dir.
func NewCacheCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the persistent code object store",
	}
	cmd.AddCommand(newCacheListCommand(rootOpts))
	cmd.AddCommand(newCacheShowCommand(rootOpts))
	return cmd
}

func newCacheListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List stored code objects in creation order",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCacheList(opts, cmd)
		},
	}
}

func newCacheShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <key>",
		Short: "Show the manifest of one stored code object",
		Long: `Show the manifest of one stored code object. The key may be
abbreviated to any unique prefix.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCacheShow(opts, args[0], cmd)
		},
	}
}

// requireStore opens --cache-dir or fails with ErrCodeNoStore.
func requireStore(opts *RootOptions, formatter *OutputFormatter) (*store.Store, error) {
	if opts.CacheDir == "" {
		_ = formatter.Error(ErrCodeNoStore, "--cache-dir is required", nil)
		return nil, NewExitError(ExitCommandError, "--cache-dir is required")
	}
	st, err := opts.openStore("")
	if err != nil {
		_ = formatter.Error(ErrCodeNotFound, err.Error(), nil)
		return nil, err
	}
	return st, nil
}

func runCacheList(opts *RootOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	st, err := requireStore(opts, formatter)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	manifests, err := st.List(ctx)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "listing manifests", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(manifests)
	}
	w := formatter.Writer
	if len(manifests) == 0 {
		fmt.Fprintln(w, "No stored code objects.")
		return nil
	}
	for _, m := range manifests {
		fmt.Fprintf(w, "%4d  %s  %6d B  run %s  %s\n", m.Seq, m.Key.Short(), m.Size, m.RunID, strings.Join(m.Source, "; "))
	}
	return nil
}

func runCacheShow(opts *RootOptions, prefix string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	st, err := requireStore(opts, formatter)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	key, err := resolveKey(ctx, st, prefix)
	if err != nil {
		_ = formatter.Error(ErrCodeNotFound, err.Error(), nil)
		return WrapExitError(ExitCommandError, "no such code object", err)
	}
	m, err := st.Manifest(ctx, key)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "reading manifest", err)
	}
	p, err := st.Load(key)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "loading artifact", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(map[string]any{"manifest": m, "listing": p.Listing()})
	}
	w := formatter.Writer
	fmt.Fprintf(w, "key:       %s\n", m.Key)
	fmt.Fprintf(w, "toolchain: %s\n", m.Toolchain)
	fmt.Fprintf(w, "run:       %s (seq %d)\n", m.RunID, m.Seq)
	fmt.Fprintf(w, "size:      %d bytes\n", m.Size)
	fmt.Fprintln(w, "schema:")
	for _, v := range m.Schema {
		kind := "buffer"
		if v.Constant {
			kind = "constant"
		}
		fmt.Fprintf(w, "  %s %s %s\n", v.Name, v.Type, kind)
	}
	fmt.Fprintln(w, "source:")
	for _, s := range m.Source {
		fmt.Fprintf(w, "  %s\n", s)
	}
	fmt.Fprintln(w, "listing:")
	fmt.Fprint(w, p.Listing())
	return nil
}

// resolveKey expands a key prefix to the single stored key it names.
func resolveKey(ctx context.Context, st *store.Store, prefix string) (ir.Key, error) {
	if st.Has(ir.Key(prefix)) {
		return ir.Key(prefix), nil
	}
	manifests, err := st.List(ctx)
	if err != nil {
		return "", err
	}
	var found []ir.Key
	for _, m := range manifests {
		if strings.HasPrefix(string(m.Key), prefix) {
			found = append(found, m.Key)
		}
	}
	switch len(found) {
	case 0:
		return "", fmt.Errorf("no stored code object with key %q: %w", prefix, store.ErrNotFound)
	case 1:
		return found[0], nil
	}
	return "", errors.New("key prefix " + prefix + " is ambiguous")
}
