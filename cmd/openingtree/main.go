package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/isofarro/chess-opening-trees/internal/config"
	"github.com/isofarro/chess-opening-trees/internal/export"
	"github.com/isofarro/chess-opening-trees/internal/fen"
	"github.com/isofarro/chess-opening-trees/internal/httpapi"
	"github.com/isofarro/chess-opening-trees/internal/ingest"
	"github.com/isofarro/chess-opening-trees/internal/logx"
	"github.com/isofarro/chess-opening-trees/internal/prune"
	"github.com/isofarro/chess-opening-trees/internal/store"
	"github.com/isofarro/chess-opening-trees/internal/tree"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "openingtree",
		Short: "Build and query chess opening trees",
		Long:  "openingtree aggregates PGN game collections into SQLite opening trees and serves position statistics over HTTP.",
	}

	rootCmd.AddCommand(buildCmd())
	rootCmd.AddCommand(queryCmd())
	rootCmd.AddCommand(pruneCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(normaliseCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func buildCmd() *cobra.Command {
	var (
		treePath  string
		maxPly    int
		minRating int
		logLevel  string
	)

	cmd := &cobra.Command{
		Use:   "build <pgn-file> [pgn-file...]",
		Short: "Ingest PGN files into an opening tree",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logx.NewLogger(logLevel)

			st, err := store.Open(treePath, store.DefaultBusyTimeoutMS)
			if err != nil {
				return fmt.Errorf("open tree %s: %w", treePath, err)
			}
			defer st.Close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			imp := ingest.New(st, ingest.Config{MaxPly: maxPly, MinRating: minRating}, logger)
			for _, path := range args {
				err := imp.ImportFile(ctx, path)
				switch {
				case errors.Is(err, ingest.ErrAlreadyImported):
					logger.Info().Str("file", path).Msg("already imported, skipping")
				case err != nil:
					return fmt.Errorf("import %s: %w", path, err)
				}
			}

			positions, err := st.PositionCount()
			if err != nil {
				return err
			}
			moves, err := st.MoveCount()
			if err != nil {
				return err
			}
			logger.Info().Int64("positions", positions).Int64("moves", moves).Msg("tree built")
			return nil
		},
	}

	cmd.Flags().StringVar(&treePath, "tree", "tree.db", "path to the tree database")
	cmd.Flags().IntVar(&maxPly, "max-ply", 40, "plies kept per game")
	cmd.Flags().IntVar(&minRating, "min-rating", 0, "minimum rating for both players")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level")
	return cmd
}

func queryCmd() *cobra.Command {
	var treePath string

	cmd := &cobra.Command{
		Use:   "query <fen>",
		Short: "Look up a position and print its statistics as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.Open(treePath, store.DefaultBusyTimeoutMS)
			if err != nil {
				return fmt.Errorf("open tree %s: %w", treePath, err)
			}
			defer st.Close()

			t := tree.New(treeName(treePath), st)
			res, err := t.QueryPosition(args[0])
			switch {
			case errors.Is(err, fen.ErrInvalidPosition):
				return fmt.Errorf("invalid position %q: %w", args[0], err)
			case errors.Is(err, store.ErrNotFound):
				return fmt.Errorf("position not in tree: %s", args[0])
			case err != nil:
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}

	cmd.Flags().StringVar(&treePath, "tree", "tree.db", "path to the tree database")
	return cmd
}

func pruneCmd() *cobra.Command {
	var (
		treePath    string
		maxDistance int
		batchSize   int
		logLevel    string
	)

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove singleton positions far from the well-trodden tree",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logx.NewLogger(logLevel)

			st, err := store.Open(treePath, store.DefaultBusyTimeoutMS)
			if err != nil {
				return fmt.Errorf("open tree %s: %w", treePath, err)
			}
			defer st.Close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			p := prune.New(st, logger)
			return p.Run(ctx, maxDistance, batchSize, func(stage string, count int64) {
				fmt.Printf("%s: %d positions\n", stage, count)
			})
		},
	}

	cmd.Flags().StringVar(&treePath, "tree", "tree.db", "path to the tree database")
	cmd.Flags().IntVar(&maxDistance, "max-distance", 5, "keep singletons within this many moves of a repeated position")
	cmd.Flags().IntVar(&batchSize, "batch-size", 1000, "rows per deletion transaction")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level")
	return cmd
}

func serveCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the configured trees over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger := logx.NewLogger(cfg.Log.Level)

			if len(cfg.Trees) == 0 {
				return fmt.Errorf("no trees configured in %s", configPath)
			}

			trees := make(map[string]*tree.Tree, len(cfg.Trees))
			for _, tc := range cfg.Trees {
				st, err := store.Open(tc.Path, cfg.Database.BusyTimeoutMS)
				if err != nil {
					return fmt.Errorf("open tree %s: %w", tc.Name, err)
				}
				defer st.Close()
				trees[tc.Name] = tree.New(tc.Name, st)
				logger.Info().Str("tree", tc.Name).Str("path", tc.Path).Msg("tree loaded")
			}
			registry := tree.NewRegistry(trees)

			srv := &http.Server{
				Addr:         cfg.Server.Addr,
				Handler:      httpapi.NewRouter(logger, registry),
				ReadTimeout:  30 * time.Second,
				WriteTimeout: 60 * time.Second,
				IdleTimeout:  60 * time.Second,
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			go func() {
				logger.Info().Str("addr", srv.Addr).Msg("api listening")
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Fatal().Err(err).Msg("api server")
				}
			}()

			<-ctx.Done()
			logger.Info().Msg("shutting down")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "openingtree.toml", "path to the TOML config file")
	return cmd
}

func exportCmd() *cobra.Command {
	var (
		treePath string
		outPath  string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Dump a tree as zstd-compressed JSON lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.Open(treePath, store.DefaultBusyTimeoutMS)
			if err != nil {
				return fmt.Errorf("open tree %s: %w", treePath, err)
			}
			defer st.Close()

			out := os.Stdout
			if outPath != "" && outPath != "-" {
				f, err := os.Create(outPath)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}

			n, err := export.Tree(st, out)
			if err != nil {
				return fmt.Errorf("export: %w", err)
			}
			fmt.Fprintf(os.Stderr, "exported %d positions\n", n)
			return nil
		},
	}

	cmd.Flags().StringVar(&treePath, "tree", "tree.db", "path to the tree database")
	cmd.Flags().StringVar(&outPath, "out", "-", "output file (- for stdout)")
	return cmd
}

func normaliseCmd() *cobra.Command {
	var (
		treePath string
		dryRun   bool
	)

	cmd := &cobra.Command{
		Use:   "normalise",
		Short: "Re-canonicalize stored position keys, merging duplicates",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.Open(treePath, store.DefaultBusyTimeoutMS)
			if err != nil {
				return fmt.Errorf("open tree %s: %w", treePath, err)
			}
			defer st.Close()

			res, err := st.NormaliseFENs(fen.Canonicalize, dryRun)
			if err != nil {
				return fmt.Errorf("normalise: %w", err)
			}
			verb := "updated"
			if dryRun {
				verb = "would update"
			}
			fmt.Printf("processed %d positions: %s %d, merged %d\n",
				res.Processed, verb, res.Updated, res.Merged)
			return nil
		},
	}

	cmd.Flags().StringVar(&treePath, "tree", "tree.db", "path to the tree database")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would change without touching the store")
	return cmd
}

// treeName derives a display name from a database path: "trees/lichess.db"
// becomes "lichess".
func treeName(path string) string {
	base := path
	if i := strings.LastIndexByte(base, '/'); i >= 0 {
		base = base[i+1:]
	}
	if i := strings.IndexByte(base, '.'); i > 0 {
		base = base[:i]
	}
	return base
}
