package main

import (
	"fmt"
	"time"

	"github.com/hyperjump/grain/internal/indexer"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newBuildCmd(a *app) *cobra.Command {
	var sourcesOnly bool
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the corpus snapshot from the configured PDF directories and web links",
		Long: `build extracts every configured PDF directory and scrapes the links file, chunks
the text, embeds it and persists the combined corpus snapshot.

With --sources-only each source is persisted under its own prefix (pdf_<name>, web)
and the sources are then combined into the corpus.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			start := time.Now()
			m, err := a.newManager(ctx)
			if err != nil {
				return err
			}
			defer m.Close()

			idx := indexer.NewIndexer(a.cfg.Ingest,
				indexer.WithLogger(a.logger),
				indexer.WithMetrics(a.metrics))
			out := cmd.OutOrStdout()
			if sourcesOnly {
				prefixes, err := idx.BuildSources(ctx, m)
				if err != nil {
					return fmt.Errorf("build sources: %w", err)
				}
				fmt.Fprintf(out, "Persisted %d sources %v and combined %d chunks into %s in %s\n",
					len(prefixes), prefixes, m.Size(), m.CorpusName(), time.Since(start).Round(time.Millisecond))
				return nil
			}
			n, err := idx.BuildCorpus(ctx, m)
			if err != nil {
				return fmt.Errorf("build corpus: %w", err)
			}
			indexPath, chunksPath := m.Paths(m.CorpusName())
			a.logger.Info("corpus built", zap.Int("chunks", n), zap.Duration("elapsed", time.Since(start)))
			fmt.Fprintf(out, "Built %d chunks\n  index:  %s\n  chunks: %s\n", n, indexPath, chunksPath)
			return nil
		},
	}
	cmd.Flags().BoolVar(&sourcesOnly, "sources-only", false, "persist each source separately, then combine")
	return cmd
}

func newCombineCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "combine <prefix>...",
		Short: "Combine persisted source snapshots into the corpus snapshot",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			m, err := a.newManager(ctx)
			if err != nil {
				return err
			}
			defer m.Close()
			ok, err := m.Combine(ctx, args)
			if err != nil {
				return fmt.Errorf("combine: %w", err)
			}
			if !ok {
				return fmt.Errorf("combine: a source snapshot is missing in %s", m.Dir())
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Combined %d chunks from %v into %s\n", m.Size(), args, m.CorpusName())
			return nil
		},
	}
}
