package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/aleksaelezovic/quadkv/pkg/rdf"
	"github.com/aleksaelezovic/quadkv/pkg/store"
)

// ImportOptions holds flags for the import command.
type ImportOptions struct {
	*RootOptions
	Workers int
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import <file.nq>...",
		Short: "Load N-Quads files into the store",
		Long: `Load one or more N-Quads (or N-Triples) files into the store.

Files are parsed and written concurrently; "-" reads standard input.
Quads that are already stored are left unchanged.

Example:
  quadkv import data.nq more.nt
  quadkv --backend sqlite --path quads.db import - < data.nq`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), opts, args, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Workers, "workers", runtime.NumCPU(), "number of files imported in parallel")

	return cmd
}

func runImport(ctx context.Context, opts *ImportOptions, files []string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer opts.closeStore(st)

	start := time.Now()
	var total atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(opts.Workers, 1))
	for _, file := range files {
		g.Go(func() error {
			n, err := importFile(gctx, st, file, opts.config.BatchSize, cmd.InOrStdin())
			total.Add(int64(n))
			if err != nil {
				return fmt.Errorf("%s: %w", file, err)
			}
			opts.logger.Debug("file imported", "file", file, "quads", n)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return WrapExitError(ExitFailure, "import failed", err)
	}

	opts.logger.Info("import finished", "files", len(files), "quads", total.Load(), "elapsed", time.Since(start))
	return printResult(cmd.OutOrStdout(), opts.Format,
		map[string]any{"files": len(files), "quads": total.Load()},
		fmt.Sprintf("imported %d quads from %d files", total.Load(), len(files)))
}

// importFile streams one file into the store in batches of batchSize and
// returns the number of quads written.
func importFile(ctx context.Context, st *store.Store, file string, batchSize int, stdin io.Reader) (int, error) {
	var r io.Reader = stdin
	if file != "-" {
		f, err := os.Open(file) // #nosec G304 - user-supplied input file
		if err != nil {
			return 0, err
		}
		defer f.Close()
		r = f
	}

	written := 0
	batch := make([]*rdf.Quad, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := st.MultiPut(ctx, batch); err != nil {
			return err
		}
		written += len(batch)
		batch = batch[:0]
		return nil
	}

	for quad, err := range rdf.NewNQuadsReader(r).All() {
		if err != nil {
			return written, err
		}
		batch = append(batch, quad)
		if len(batch) == batchSize {
			if err := flush(); err != nil {
				return written, err
			}
		}
	}
	return written, flush()
}
