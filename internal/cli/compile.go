package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/docquery/internal/compiler"
	"github.com/roach88/docquery/internal/ir"
	"github.com/roach88/docquery/internal/queryir"
	"github.com/roach88/docquery/internal/schema"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Schema   string
	Sort     string
	Limit    int
	Fields   string
	Populate string
}

// CompileResult is the compile command's payload.
type CompileResult struct {
	Query       map[string]any `json:"query"`
	Fingerprint string         `json:"fingerprint"`
}

// String renders the canonical query followed by its fingerprint.
func (r CompileResult) String() string {
	doc, err := ir.MarshalCanonical(r.Query)
	if err != nil {
		return fmt.Sprintf("%v\nfingerprint: %s", r.Query, r.Fingerprint)
	}
	return fmt.Sprintf("%s\nfingerprint: %s", doc, r.Fingerprint)
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <query-string>",
		Short: "Compile a query string and print the structured query",
		Long: `Compile a URL-style query string (e.g. "name=ends(title 3)&sort=-createdAt&qType=allTotal")
into its structured form: type, filter, sort, skip, limit, projection and populate.

Defaults given by flags apply only when the query string does not set the key.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(cmd, opts, args[0])
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	opts.addFlags(cmd)
	return cmd
}

// addFlags registers the per-call default flags shared with query.
func (o *CompileOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.Schema, "schema", "", "CUE schema file to validate against")
	cmd.Flags().StringVar(&o.Sort, "sort", "", "default sort")
	cmd.Flags().IntVar(&o.Limit, "limit", 0, "default limit")
	cmd.Flags().StringVar(&o.Fields, "fields", "", "default projection")
	cmd.Flags().StringVar(&o.Populate, "populate", "", "default populate")
}

func runCompile(cmd *cobra.Command, opts *CompileOptions, query string) error {
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

	q, err := compileArg(cfg, query, copts)
	if err != nil {
		_ = formatter.QueryError("E003", err)
		return WrapExitError(ExitFailure, "compile failed", err)
	}

	fp, err := q.Fingerprint()
	if err != nil {
		_ = formatter.Error("E004", err.Error(), nil)
		return WrapExitError(ExitCommandError, "fingerprint", err)
	}
	formatter.VerboseLog("compiled %s query %s", q.Type, fp)

	return formatter.Success(CompileResult{Query: q.Document(), Fingerprint: fp})
}

// compilerOptions turns the default flags into compiler.Options. Unset
// flags stay nil so they never mask schema defaults.
func (o *CompileOptions) compilerOptions() (compiler.Options, error) {
	var out compiler.Options
	if o.Sort != "" {
		out.Sort = o.Sort
	}
	if o.Limit > 0 {
		out.Limit = o.Limit
	}
	if o.Fields != "" {
		out.Fields = o.Fields
	}
	if o.Populate != "" {
		out.Populate = o.Populate
	}
	if o.Schema != "" {
		s, err := loadSchema(o.Schema)
		if err != nil {
			return compiler.Options{}, err
		}
		out.Schema = s
	}
	return out, nil
}

// compileArg parses a query string and compiles it with cfg's compiler.
func compileArg(cfg *Config, query string, opts compiler.Options) (*queryir.CompiledQuery, error) {
	raw, err := queryir.ParseRaw(query)
	if err != nil {
		return nil, err
	}
	return compiler.New(cfg.compilerOptions()...).Compile(raw, opts)
}

func loadSchema(path string) (*schema.Schema, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	return schema.Compile(path, string(src))
}
