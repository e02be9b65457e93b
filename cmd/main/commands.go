package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/SpeedyGo55/markov-llm/pkg/corpus"
	"github.com/SpeedyGo55/markov-llm/pkg/markov"
	"github.com/SpeedyGo55/markov-llm/pkg/store"
)

// cli carries what the one-shot commands share. The database is opened on
// first use, so commands that do not need it never touch it.
type cli struct {
	config *Config
	logger *slog.Logger
	out    io.Writer
	db     *sql.DB
	store  *store.Store
}

var commands = map[string]func(*cli, context.Context, []string) error{
	"train":    (*cli).train,
	"generate": (*cli).generate,
	"complete": (*cli).complete,
	"clean":    (*cli).clean,
	"stats":    (*cli).stats,
	"export":   (*cli).export,
	"import":   (*cli).importModel,
}

// runCommand executes a single command, writing its result to out.
func runCommand(configPath, name string, args []string, out io.Writer) error {
	cmd, ok := commands[name]
	if !ok {
		return fmt.Errorf("unknown command %q", name)
	}

	config, err := LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	c := &cli{
		config: config,
		logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLogLevel(config.Server.LogLevel)})),
		out:    out,
	}
	defer c.close()

	return cmd(c, context.Background(), args)
}

func (c *cli) openStore() (*store.Store, error) {
	if c.store != nil {
		return c.store, nil
	}
	db, err := initDB(c.config.Server.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	st, err := store.New(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	st.SetLogger(c.logger)
	c.db, c.store = db, st
	return st, nil
}

func (c *cli) close() {
	if c.store != nil {
		c.store.Close()
	}
	if c.db != nil {
		_ = c.db.Close()
	}
}

func (c *cli) loadChain(ctx context.Context, name string) (*markov.Chain, error) {
	st, err := c.openStore()
	if err != nil {
		return nil, err
	}
	chain, err := st.Load(ctx, name, c.config.Model.chainOptions(c.logger)...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("model %q not found", name)
	}
	return chain, err
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}

func (c *cli) train(ctx context.Context, args []string) error {
	fs := newFlagSet("train")
	corpusPath := fs.String("corpus", "", "training text file, or - for stdin")
	model := fs.String("model", c.config.Model.DefaultModel, "model name")
	order := fs.Int("order", 0, "state size; defaults to the model's, or the configured one for new models")
	clean := fs.Bool("clean", c.config.Model.CleanCorpus, "strip Project Gutenberg boilerplate before training")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *corpusPath == "" {
		return errors.New("train: -corpus is required")
	}

	src := io.Reader(os.Stdin)
	if *corpusPath != "-" {
		f, err := os.Open(*corpusPath)
		if err != nil {
			return fmt.Errorf("failed to open corpus: %w", err)
		}
		defer func(f *os.File) {
			_ = f.Close()
		}(f)
		src = f
	}

	reader := corpus.NewReader(
		corpus.WithMinTokens(c.config.Model.MinSentenceTokens),
		corpus.WithClean(*clean),
	)
	sentences, err := reader.ReadSentences(src)
	if err != nil {
		return err
	}

	st, err := c.openStore()
	if err != nil {
		return err
	}
	chain, err := st.Load(ctx, *model, c.config.Model.chainOptions(c.logger)...)
	if errors.Is(err, sql.ErrNoRows) {
		chain = markov.NewChain(c.config.Model.chainOptions(c.logger)...)
	} else if err != nil {
		return err
	}

	stateSize := *order
	if stateSize == 0 {
		stateSize = chain.StateSize()
	}
	if stateSize == 0 {
		stateSize = c.config.Model.StateSize
	}
	if err = chain.Train(sentences, stateSize); err != nil {
		return err
	}
	if _, err = st.Save(ctx, *model, chain); err != nil {
		return err
	}

	stats := chain.Stats()
	_, err = fmt.Fprintf(c.out, "trained %q (state size %d) on %d sentences: %d states, %d transitions\n",
		*model, stats.StateSize, len(sentences), stats.States, stats.Transitions)
	return err
}

func (c *cli) generate(ctx context.Context, args []string) error {
	fs := newFlagSet("generate")
	model := fs.String("model", c.config.Model.DefaultModel, "model name")
	length := fs.Int("length", c.config.Model.GenerateLength, "number of tokens to generate")
	if err := fs.Parse(args); err != nil {
		return err
	}

	chain, err := c.loadChain(ctx, *model)
	if err != nil {
		return err
	}
	text, err := chain.Generate(*length)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.out, text)
	return err
}

func (c *cli) complete(ctx context.Context, args []string) error {
	fs := newFlagSet("complete")
	model := fs.String("model", c.config.Model.DefaultModel, "model name")
	seed := fs.String("seed", "", "sentence to continue; the remaining arguments are used when empty")
	minLen := fs.Int("min", c.config.Model.CompleteMinLength, "minimum number of tokens in the result")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *seed == "" {
		*seed = strings.Join(fs.Args(), " ")
	}

	chain, err := c.loadChain(ctx, *model)
	if err != nil {
		return err
	}
	text, err := chain.Complete(*seed, *minLen)
	if err != nil {
		return err
	}
	if text == "" {
		c.logger.Warn("Nothing to complete: model is untrained or the seed is shorter than its state size",
			"model", *model,
			"state_size", chain.StateSize(),
		)
	}
	_, err = fmt.Fprintln(c.out, text)
	return err
}

func (c *cli) clean(_ context.Context, args []string) error {
	fs := newFlagSet("clean")
	in := fs.String("in", "", "book to clean")
	out := fs.String("out", "data.txt", "where to write the cleaned text")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		return errors.New("clean: -in is required")
	}
	if err := corpus.CleanFile(*in, *out); err != nil {
		return err
	}
	_, err := fmt.Fprintf(c.out, "cleaned text saved to %s\n", *out)
	return err
}

func (c *cli) stats(ctx context.Context, args []string) error {
	fs := newFlagSet("stats")
	model := fs.String("model", "", "model name; the whole database when empty")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var payload any
	if *model == "" {
		st, err := c.openStore()
		if err != nil {
			return err
		}
		if payload, err = st.GetStats(ctx); err != nil {
			return err
		}
	} else {
		chain, err := c.loadChain(ctx, *model)
		if err != nil {
			return err
		}
		payload = chain.Stats()
	}

	encoder := json.NewEncoder(c.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(payload)
}

func (c *cli) export(ctx context.Context, args []string) error {
	fs := newFlagSet("export")
	model := fs.String("model", c.config.Model.DefaultModel, "model name")
	out := fs.String("out", "-", "output file, or - for stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	chain, err := c.loadChain(ctx, *model)
	if err != nil {
		return err
	}
	if *out == "-" {
		return chain.ExportModel(c.out)
	}
	return chain.SaveFile(*out)
}

func (c *cli) importModel(ctx context.Context, args []string) error {
	fs := newFlagSet("import")
	model := fs.String("model", c.config.Model.DefaultModel, "model name to store the import under")
	in := fs.String("in", "", "JSON model file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		return errors.New("import: -in is required")
	}

	chain, err := markov.LoadFile(*in, c.config.Model.chainOptions(c.logger)...)
	if err != nil {
		return err
	}
	st, err := c.openStore()
	if err != nil {
		return err
	}
	info, err := st.Save(ctx, *model, chain)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(c.out, "imported %q (state size %d, %d states)\n", info.Name, info.StateSize, chain.Table().Len())
	return err
}
