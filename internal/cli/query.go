package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/docquery/internal/compiler"
	"github.com/roach88/docquery/internal/engine"
	"github.com/roach88/docquery/internal/model"
	"github.com/roach88/docquery/internal/queryir"
	"github.com/roach88/docquery/internal/store/sqlstore"
)

// ErrNoDatabase is returned when a command needs a store and none is
// configured.
var ErrNoDatabase = errors.New("no database configured (use --db, DOCQUERY_DATABASE or the config file)")

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query <model> <query-string>",
		Short: "Run a query against the SQLite store",
		Long: `Compile a query string and run it against a model's collection.

Models declared in the config file contribute their relations and
override hooks. Any other model name queries its default collection
without hooks.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, opts, args[0], args[1])
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	opts.addFlags(cmd)
	return cmd
}

func runQuery(cmd *cobra.Command, opts *CompileOptions, name, query string) error {
	formatter := newFormatter(cmd, opts.RootOptions)

	cfg, err := LoadConfig(cmd, opts.RootOptions)
	if err != nil {
		_ = formatter.Error("E001", err.Error(), nil)
		return WrapExitError(ExitCommandError, "load config", err)
	}

	copts, err := opts.compilerOptions()
	if err != nil {
		_ = formatter.Error("E002", err.Error(), nil)
		return WrapExitError(ExitCommandError, "load schema", err)
	}

	st, err := openStore(cfg)
	if err != nil {
		_ = formatter.Error("E004", err.Error(), nil)
		return WrapExitError(ExitCommandError, "open store", err)
	}
	defer st.Close()

	eng, err := newEngine(cfg, st)
	if err != nil {
		_ = formatter.Error("E005", err.Error(), nil)
		return WrapExitError(ExitCommandError, "load models", err)
	}
	if _, ok := eng.Models().Lookup(name); !ok {
		if err := eng.Register(model.New(name)); err != nil {
			_ = formatter.Error("E005", err.Error(), nil)
			return WrapExitError(ExitCommandError, "register model", err)
		}
	}

	raw, err := queryir.ParseRaw(query)
	if err != nil {
		_ = formatter.QueryError("E003", err)
		return WrapExitError(ExitFailure, "parse query", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	res, err := eng.Run(ctx, name, raw, copts)
	if err != nil {
		var qe *queryir.Error
		if errors.As(err, &qe) {
			_ = formatter.QueryError("E003", err)
			return WrapExitError(ExitFailure, "query rejected", err)
		}
		_ = formatter.Error("E006", err.Error(), nil)
		return WrapExitError(ExitCommandError, "query failed", err)
	}

	formatter.VerboseLog("%s query on %s returned %s", res.Type, name, res.Shape)
	return formatter.Success(res)
}

func openStore(cfg *Config) (*sqlstore.Store, error) {
	if cfg.Database == "" {
		return nil, ErrNoDatabase
	}
	st, err := sqlstore.Open(cfg.Database)
	if err != nil {
		return nil, err
	}
	for _, spec := range cfg.Models {
		spec.DefineRefs(st.Refs())
	}
	return st, nil
}

// newEngine builds an engine over st with every configured model
// registered.
func newEngine(cfg *Config, st *sqlstore.Store) (*engine.Engine, error) {
	c := compiler.New(cfg.compilerOptions()...)
	eng := engine.New(
		engine.WithCompiler(c),
		engine.WithSource(st),
		engine.WithLogger(slog.Default()),
	)
	for _, spec := range cfg.Models {
		m, err := spec.Build(c.Parser())
		if err != nil {
			return nil, err
		}
		if err := eng.Register(m); err != nil {
			return nil, fmt.Errorf("register %s: %w", spec.Name, err)
		}
	}
	return eng, nil
}
