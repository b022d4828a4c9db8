package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/aleksaelezovic/quadkv/pkg/rdf"
	"github.com/aleksaelezovic/quadkv/pkg/store"
)

// GetOptions holds flags for the get command.
type GetOptions struct {
	*RootOptions
	patternFlags

	Limit   int
	Offset  int
	Reverse bool
	Order   string
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "get",
		Short: "Print the quads matching a pattern",
		Long: `Print the quads matching a pattern as N-Quads.

Terms use N-Quads syntax; DEFAULT names the default graph.

Example:
  quadkv get --subject '<http://example.org/alice>'
  quadkv get --predicate '<http://xmlns.com/foaf/0.1/age>' \
    --gte '"18"^^<http://www.w3.org/2001/XMLSchema#integer>' --limit 10`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(cmd.Context(), opts, cmd)
		},
	}

	opts.patternFlags.register(cmd.Flags())
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of quads (0 for all)")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "number of matching quads to skip")
	cmd.Flags().BoolVar(&opts.Reverse, "reverse", false, "walk the index backwards")
	cmd.Flags().StringVar(&opts.Order, "order", "", "preferred result order as role initials, e.g. OS")

	return cmd
}

func (o *GetOptions) getOpts() (*store.GetOpts, error) {
	order := make([]rdf.Role, 0, len(o.Order))
	for _, c := range o.Order {
		r, err := rdf.ParseRole(string(c))
		if err != nil {
			return nil, fmt.Errorf("--order: %w", err)
		}
		order = append(order, r)
	}
	return &store.GetOpts{
		Limit:            o.Limit,
		Offset:           o.Offset,
		Reverse:          o.Reverse,
		Order:            order,
		DefaultGraphMode: o.mode(),
	}, nil
}

func runGet(ctx context.Context, opts *GetOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	pattern, err := opts.pattern()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid pattern", err)
	}
	getOpts, err := opts.getOpts()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid options", err)
	}

	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer opts.closeStore(st)

	it, err := st.GetStream(ctx, pattern, getOpts)
	if err != nil {
		return WrapExitError(ExitFailure, "get failed", err)
	}
	defer it.Close()
	opts.logger.Debug("scanning", "sorting", roleNames(it.Sorting()), "reverse", it.Reverse())

	out := cmd.OutOrStdout()
	if opts.Format == "json" {
		quads := []jsonQuad{}
		for q, err := range it.All() {
			if err != nil {
				return WrapExitError(ExitFailure, "get failed", err)
			}
			quads = append(quads, toJSONQuad(q))
		}
		return json.NewEncoder(out).Encode(map[string]any{
			"sorting": roleNames(it.Sorting()),
			"reverse": it.Reverse(),
			"quads":   quads,
		})
	}

	w := rdf.NewNQuadsWriter(out)
	for q, err := range it.All() {
		if err != nil {
			_ = w.Flush()
			return WrapExitError(ExitFailure, "get failed", err)
		}
		if err := w.Write(q); err != nil {
			return err
		}
	}
	return w.Flush()
}

// NewCountCommand creates the count command.
func NewCountCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "count",
		Short: "Estimate the number of quads matching a pattern",
		Long: `Estimate the number of quads matching a pattern.

The estimate covers the key range of the selected index and ignores
constraints that the index prefix cannot enforce.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCount(cmd.Context(), opts, cmd)
		},
	}

	opts.patternFlags.register(cmd.Flags())

	return cmd
}

func runCount(ctx context.Context, opts *GetOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	pattern, err := opts.pattern()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid pattern", err)
	}

	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer opts.closeStore(st)

	n, err := st.GetApproximateSize(ctx, pattern, &store.GetOpts{DefaultGraphMode: opts.mode()})
	if err != nil {
		return WrapExitError(ExitFailure, "count failed", err)
	}
	return printResult(cmd.OutOrStdout(), opts.Format, map[string]any{"count": n}, strconv.FormatInt(n, 10))
}
