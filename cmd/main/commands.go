package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/CTAG07/cadence/pkg/markov"
	"github.com/CTAG07/cadence/pkg/store"
	"github.com/CTAG07/cadence/pkg/text"
	"github.com/natefinch/atomic"
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	configPath     string
	trainOrder     int
	trainWorkers   int
	genLength      int
	genSeed        uint64
	genTemperature float64
	genTopK        int
	genState       string
	pruneMin       int
	importName     string
	exportOutput   string

	rootCmd = &cobra.Command{
		Use:           "cadence",
		Short:         "Train and sample order-k Markov models",
		SilenceUsage:  true,
		SilenceErrors: false,
		Version:       Version,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configPath)
		},
	}

	trainCmd = &cobra.Command{
		Use:   "train [model] [file...]",
		Short: "Train a model on text files, creating it if needed",
		Args:  cobra.MinimumNArgs(2),
		RunE:  runTrain,
	}

	generateCmd = &cobra.Command{
		Use:     "generate [model]",
		Short:   "Generate text from a trained model",
		Aliases: []string{"gen"},
		Args:    cobra.ExactArgs(1),
		RunE:    runGenerate,
	}

	modelsCmd = &cobra.Command{
		Use:     "models",
		Short:   "List stored models",
		Aliases: []string{"ls"},
		Args:    cobra.NoArgs,
		RunE:    runModels,
	}

	removeCmd = &cobra.Command{
		Use:     "remove [model]",
		Short:   "Delete a stored model",
		Aliases: []string{"rm"},
		Args:    cobra.ExactArgs(1),
		RunE:    runRemove,
	}

	exportCmd = &cobra.Command{
		Use:   "export [model]",
		Short: "Write a model as JSON to stdout or a file",
		Args:  cobra.ExactArgs(1),
		RunE:  runExport,
	}

	importCmd = &cobra.Command{
		Use:   "import [file]",
		Short: "Merge a JSON model into a stored model",
		Args:  cobra.ExactArgs(1),
		RunE:  runImport,
	}

	pruneCmd = &cobra.Command{
		Use:   "prune [model]",
		Short: "Remove rare transitions from a model",
		Args:  cobra.ExactArgs(1),
		RunE:  runPrune,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "./config.json", "path to the JSON or YAML config file")

	trainCmd.Flags().IntVar(&trainOrder, "order", 0, "order of a newly created model (default from config)")
	trainCmd.Flags().IntVar(&trainWorkers, "workers", 0, "training goroutines (default from config, 0 = GOMAXPROCS)")

	generateCmd.Flags().IntVarP(&genLength, "length", "n", 0, "number of symbols to generate (default from config)")
	generateCmd.Flags().Uint64Var(&genSeed, "seed", 0, "random seed for reproducible output")
	generateCmd.Flags().Float64Var(&genTemperature, "temperature", 0, "sampling temperature (default from config)")
	generateCmd.Flags().IntVar(&genTopK, "top-k", 0, "sample only from the k most frequent followers")
	generateCmd.Flags().StringVar(&genState, "state", "", "comma separated context to start from")

	pruneCmd.Flags().IntVar(&pruneMin, "min", 1, "remove transitions seen this many times or fewer")

	importCmd.Flags().StringVar(&importName, "name", "", "model to import into (required)")
	_ = importCmd.MarkFlagRequired("name")

	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "write to this file instead of stdout")

	rootCmd.AddCommand(serveCmd, trainCmd, generateCmd, modelsCmd, removeCmd, exportCmd, importCmd, pruneCmd)
}

// withLibrary opens the configured database and hands a ready library to fn.
// The context is cancelled on SIGINT or SIGTERM.
func withLibrary(fn func(ctx context.Context, lib *Library, cfg Config) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cm, err := NewConfigManager(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	cfg := cm.Get()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLogLevel(cfg.Server.LogLevel)}))
	cm.SetLogger(logger)

	db, err := openDatabase(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer func() {
		_ = db.Close()
	}()

	st, err := store.New(db, store.StringCodec{})
	if err != nil {
		return fmt.Errorf("error creating model store: %w", err)
	}
	defer st.Close()
	st.SetLogger(logger)

	workers := cfg.Model.Workers
	if trainWorkers > 0 {
		workers = trainWorkers
	}
	tokenizer := text.New(text.WithSeparator(cfg.Model.Separator), text.WithEOC(cfg.Model.EOC))
	return fn(ctx, NewLibrary(st, tokenizer, workers, logger), cfg)
}

func runTrain(cmd *cobra.Command, args []string) error {
	name, files := args[0], args[1:]
	return withLibrary(func(ctx context.Context, lib *Library, cfg Config) error {
		k := trainOrder
		if k == 0 {
			k = cfg.Model.DefaultOrder
		}
		if _, err := lib.Create(ctx, name, k); err != nil && !errors.Is(err, ErrModelExists) {
			return err
		} else if err == nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Created model %q (order %d)\n", name, k)
		}

		windows, err := lib.TrainFiles(ctx, name, files)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Trained %q on %d file(s), %d windows recorded\n", name, len(files), windows)
		return nil
	})
}

func runGenerate(cmd *cobra.Command, args []string) error {
	return withLibrary(func(ctx context.Context, lib *Library, cfg Config) error {
		length := genLength
		if length <= 0 {
			length = cfg.Model.DefaultLength
		}

		opts := []markov.GenerateOption[string]{
			markov.WithTemperature[string](cfg.Model.Temperature),
			markov.WithTopK[string](cfg.Model.TopK),
		}
		flags := cmd.Flags()
		if flags.Changed("temperature") {
			opts = append(opts, markov.WithTemperature[string](genTemperature))
		}
		if flags.Changed("top-k") {
			opts = append(opts, markov.WithTopK[string](genTopK))
		}
		if flags.Changed("seed") {
			opts = append(opts, markov.WithSeed[string](genSeed))
		}
		if genState != "" {
			opts = append(opts, markov.WithState(strings.Split(genState, ",")))
		}

		symbols, err := lib.Generate(ctx, args[0], length, opts...)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), lib.Tokenizer().Render(symbols))
		return err
	})
}

func runModels(cmd *cobra.Command, _ []string) error {
	return withLibrary(func(ctx context.Context, lib *Library, _ Config) error {
		models, err := lib.List(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "NAME\tORDER\tTRANSITIONS")
		for _, m := range models {
			_, _ = fmt.Fprintf(tw, "%s\t%d\t%d\n", m.Name, m.Order, m.Transitions)
		}
		return tw.Flush()
	})
}

func runRemove(cmd *cobra.Command, args []string) error {
	return withLibrary(func(ctx context.Context, lib *Library, _ Config) error {
		if err := lib.Remove(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed model %q\n", args[0])
		return nil
	})
}

func runExport(cmd *cobra.Command, args []string) error {
	return withLibrary(func(ctx context.Context, lib *Library, _ Config) error {
		if exportOutput == "" {
			return lib.Export(ctx, args[0], cmd.OutOrStdout())
		}
		var buf bytes.Buffer
		if err := lib.Export(ctx, args[0], &buf); err != nil {
			return err
		}
		if err := atomic.WriteFile(exportOutput, &buf); err != nil {
			return fmt.Errorf("failed to write export file: %w", err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Exported %q to %s\n", args[0], exportOutput)
		return nil
	})
}

func runImport(cmd *cobra.Command, args []string) error {
	return withLibrary(func(ctx context.Context, lib *Library, _ Config) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer func(f io.Closer) {
			_ = f.Close()
		}(f)

		if err = lib.Import(ctx, importName, f); err != nil {
			return err
		}
		info, err := lib.Info(ctx, importName)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Imported into %q, now %d transitions\n", info.Name, info.Transitions)
		return nil
	})
}

func runPrune(cmd *cobra.Command, args []string) error {
	return withLibrary(func(ctx context.Context, lib *Library, _ Config) error {
		removed, err := lib.Prune(ctx, args[0], pruneMin)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d transition(s) from %q\n", removed, args[0])
		return nil
	})
}
