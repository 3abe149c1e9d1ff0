package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/docquery/internal/compiler"
	"github.com/roach88/docquery/internal/queryir"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <schema.cue> <query-string>",
		Short: "Check a query string against a CUE schema",
		Long: `Compile a query string and check it against a CUE schema.

Exits 0 when the query is accepted, 1 when it is rejected (each violation
is listed with its @-rooted property path) and 2 when the schema itself
cannot be loaded.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, rootOpts, args[0], args[1])
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	return cmd
}

func runValidate(cmd *cobra.Command, opts *RootOptions, schemaPath, query string) error {
	formatter := newFormatter(cmd, opts)

	cfg, err := LoadConfig(cmd, opts)
	if err != nil {
		_ = formatter.Error("E001", err.Error(), nil)
		return WrapExitError(ExitCommandError, "load config", err)
	}

	s, err := loadSchema(schemaPath)
	if err != nil {
		_ = formatter.Error("E002", err.Error(), nil)
		return WrapExitError(ExitCommandError, "load schema", err)
	}

	q, err := compileArg(cfg, query, compiler.Options{Schema: s})
	if err != nil {
		_ = formatter.QueryError("E003", err)
		var qe *queryir.Error
		if opts.Format == "text" && errors.As(err, &qe) {
			for _, v := range qe.Violations {
				fmt.Fprintf(formatter.Writer, "  %s: %s\n", v.Property, v.Message)
			}
		}
		return WrapExitError(ExitFailure, "query rejected", err)
	}

	if opts.Format == "json" {
		return formatter.Success(map[string]any{"valid": true, "query": q.Document()})
	}
	return formatter.Success(fmt.Sprintf("✓ query accepted by %s", s.Name()))
}
