package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/docquery/internal/model"
	"github.com/roach88/docquery/internal/store"
)

// SeedResult is the seed command's payload.
type SeedResult struct {
	Collection string   `json:"collection"`
	Inserted   int      `json:"inserted"`
	IDs        []string `json:"ids"`
}

// String implements fmt.Stringer for text output.
func (r SeedResult) String() string {
	return fmt.Sprintf("✓ inserted %d documents into %s", r.Inserted, r.Collection)
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed <model> <file>",
		Short: "Insert documents from a YAML or JSON file",
		Long: `Insert a list of documents into a model's collection.

The file holds a YAML (or JSON) list of objects. Documents without an _id
get a generated one. The collection is taken from the model's config entry,
or derived from the model name.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd, rootOpts, args[0], args[1])
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	return cmd
}

func runSeed(cmd *cobra.Command, opts *RootOptions, name, path string) error {
	formatter := newFormatter(cmd, opts)

	cfg, err := LoadConfig(cmd, opts)
	if err != nil {
		_ = formatter.Error("E001", err.Error(), nil)
		return WrapExitError(ExitCommandError, "load config", err)
	}

	docs, err := readDocuments(path)
	if err != nil {
		_ = formatter.Error("E002", err.Error(), nil)
		return WrapExitError(ExitCommandError, "read documents", err)
	}

	st, err := openStore(cfg)
	if err != nil {
		_ = formatter.Error("E004", err.Error(), nil)
		return WrapExitError(ExitCommandError, "open store", err)
	}
	defer st.Close()

	coll := model.CollectionName(name)
	if spec, ok := cfg.spec(name); ok && spec.Collection != "" {
		coll = spec.Collection
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	inserted, err := st.Insert(ctx, coll, docs...)
	if err != nil {
		_ = formatter.Error("E006", err.Error(), nil)
		return WrapExitError(ExitCommandError, "insert", err)
	}

	ids := make([]string, len(inserted))
	for i, d := range inserted {
		ids[i] = d.ID()
	}
	formatter.VerboseLog("seeded %s from %s", coll, path)
	return formatter.Success(SeedResult{Collection: coll, Inserted: len(inserted), IDs: ids})
}

// readDocuments decodes a YAML or JSON list of objects.
func readDocuments(path string) ([]store.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var list []map[string]any
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	docs := make([]store.Document, len(list))
	for i, d := range list {
		docs[i] = store.Document(d)
	}
	return docs, nil
}
