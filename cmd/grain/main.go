// Package main is the Grain CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/hyperjump/grain/internal/answer"
	"github.com/hyperjump/grain/internal/cli"
	"github.com/hyperjump/grain/internal/config"
	"github.com/hyperjump/grain/internal/embedding"
	"github.com/hyperjump/grain/internal/index"
	"github.com/hyperjump/grain/internal/metrics"
	"github.com/hyperjump/grain/pkg/utils"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var version = "dev"

// app carries what PersistentPreRunE resolved for the subcommands.
type app struct {
	configPath string
	debug      bool
	output     string

	cfg      *config.Config
	resolved string
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// loadConfig loads config from path. With no path it uses config.yaml in the current
// directory when present, and the built-in defaults otherwise.
// Returns the config and the path that was actually loaded ("" for defaults).
func loadConfig(path string) (*config.Config, string, error) {
	if path == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, "", err
		}
		fallback := filepath.Join(cwd, "config.yaml")
		if _, statErr := os.Stat(fallback); statErr != nil {
			return config.Default(cwd), "", nil
		}
		path = fallback
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	cfg, resolved, err := loadConfig(a.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if a.debug {
		cfg.Debug = true
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	a.cfg = cfg
	a.resolved = resolved
	a.logger = logger
	a.metrics = metrics.New()
	logger.Debug("config loaded",
		zap.String("config_path", resolved),
		zap.String("embeddings_dir", cfg.Storage.EmbeddingsDir),
		zap.Bool("debug", cfg.Debug))
	return nil
}

func (a *app) format() (cli.OutputFormat, error) {
	return cli.ParseOutputFormat(a.output)
}

// newManager creates the embedder and an empty index manager.
func (a *app) newManager(ctx context.Context) (*index.Manager, error) {
	e, err := embedding.NewEmbedder(ctx, a.cfg.Embedding, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	return index.NewManagerFromConfig(e, a.cfg,
		index.WithLogger(a.logger),
		index.WithMetrics(a.metrics)), nil
}

// loadManager creates a manager and loads the corpus snapshot. A missing snapshot is an error.
func (a *app) loadManager(ctx context.Context) (*index.Manager, error) {
	m, err := a.newManager(ctx)
	if err != nil {
		return nil, err
	}
	ok, err := m.Load(ctx, m.CorpusName())
	if err != nil {
		_ = m.Close()
		return nil, err
	}
	if !ok {
		_ = m.Close()
		return nil, fmt.Errorf("no corpus snapshot %q in %s: run 'grain build' first", m.CorpusName(), m.Dir())
	}
	return m, nil
}

// newGenerator returns the configured answer generator, or nil when generation is disabled
// or unavailable (answers then fall back to the retrieved context).
func (a *app) newGenerator(ctx context.Context) answer.Generator {
	if a.cfg.Generation.Provider == "none" {
		return nil
	}
	g, err := answer.NewGeminiGenerator(ctx, a.cfg.Generation,
		answer.WithGeminiLogger(a.logger),
		answer.WithGeminiMetrics(a.metrics))
	if err != nil {
		a.logger.Warn("answer generation disabled", zap.Error(err))
		return nil
	}
	return g
}

func newRootCmd() *cobra.Command {
	a := &app{}
	rootCmd := &cobra.Command{
		Use:   "grain",
		Short: "Grain - retrieval core of a university assistant",
		Long: `grain builds a searchable corpus from university PDFs and web pages,
retrieves the chunks relevant to a question, and answers from them.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}
	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "", "config file path (default ./config.yaml or built-in defaults)")
	rootCmd.PersistentFlags().BoolVar(&a.debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&a.output, "output", "o", "text", "output format: text, compact, or json")

	rootCmd.AddCommand(
		newVersionCmd(),
		newBuildCmd(a),
		newCombineCmd(a),
		newSearchCmd(a),
		newAskCmd(a),
		newStatusCmd(a),
		newServeCmd(a),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "grain version %s\n", version)
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
