package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/aleksaelezovic/quadkv/pkg/rdf"
	"github.com/aleksaelezovic/quadkv/pkg/store"
)

// DeleteOptions holds flags for the delete command.
type DeleteOptions struct {
	*RootOptions
	patternFlags

	Match bool
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DeleteOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "delete [file.nq]...",
		Short: "Remove quads listed in files or matching a pattern",
		Long: `Remove the quads listed in N-Quads files, or with --match every quad
matching the pattern flags.

Example:
  quadkv delete stale.nq
  quadkv delete --match --graph '<http://example.org/g1>'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Match == (len(args) > 0) {
				return WrapExitError(ExitCommandError, "invalid arguments",
					fmt.Errorf("give either files or --match"))
			}
			return runDelete(cmd.Context(), opts, args, cmd)
		},
	}

	opts.patternFlags.register(cmd.Flags())
	cmd.Flags().BoolVar(&opts.Match, "match", false, "delete every quad matching the pattern flags")

	return cmd
}

func runDelete(ctx context.Context, opts *DeleteOptions, files []string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var pattern *store.Pattern
	if opts.Match {
		var err error
		if pattern, err = opts.pattern(); err != nil {
			return WrapExitError(ExitCommandError, "invalid pattern", err)
		}
	}

	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer opts.closeStore(st)

	total := 0
	if opts.Match {
		total, err = st.DeleteMatches(ctx, pattern, &store.GetOpts{DefaultGraphMode: opts.mode()})
		if err != nil {
			return WrapExitError(ExitFailure, "delete failed", err)
		}
	} else {
		for _, file := range files {
			n, err := deleteFile(ctx, st, file, cmd.InOrStdin())
			total += n
			if err != nil {
				return WrapExitError(ExitFailure, "delete failed", fmt.Errorf("%s: %w", file, err))
			}
		}
	}

	opts.logger.Info("delete finished", "quads", total)
	return printResult(cmd.OutOrStdout(), opts.Format, map[string]any{"deleted": total},
		fmt.Sprintf("deleted %d quads", total))
}

func deleteFile(ctx context.Context, st *store.Store, file string, stdin io.Reader) (int, error) {
	var r io.Reader = stdin
	if file != "-" {
		f, err := os.Open(file) // #nosec G304 - user-supplied input file
		if err != nil {
			return 0, err
		}
		defer f.Close()
		r = f
	}
	return st.DelStream(ctx, rdf.NewNQuadsReader(r).All())
}
