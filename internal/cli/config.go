package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/roach88/docquery/internal/compiler"
	"github.com/roach88/docquery/internal/model"
	"github.com/roach88/docquery/internal/queryir"
)

// EnvPrefix is the prefix for environment overrides, e.g. DOCQUERY_DATABASE.
const EnvPrefix = "DOCQUERY"

// Config is the CLI configuration.
//
//	database: ./docs.db
//	defaultLimit: 25
//	maxPopulateDepth: 3
//	models:
//	  - name: project
//	    refs: {owner: users}
//	    queries:
//	      published: {filter: {status: published}}
type Config struct {
	Database         string `mapstructure:"database"`
	DefaultLimit     int    `mapstructure:"defaultLimit"`
	MaxPopulateDepth int    `mapstructure:"maxPopulateDepth"`

	// Models come from the same file but are decoded with yaml.v3:
	// viper folds map keys to lower case and hook names are case sensitive.
	Models []model.Spec `mapstructure:"-"`
}

// LoadConfig reads configuration from the --config file (or ./docquery.yaml
// when present), DOCQUERY_* environment variables and the --db flag, in
// increasing order of precedence.
func LoadConfig(cmd *cobra.Command, opts *RootOptions) (*Config, error) {
	v := viper.New()
	v.SetDefault("defaultLimit", queryir.DefaultLimit)
	v.SetDefault("maxPopulateDepth", queryir.DefaultMaxDepth)

	if opts.Config != "" {
		v.SetConfigFile(opts.Config)
	} else {
		v.SetConfigName("docquery")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.Config != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	for _, key := range []string{"database", "defaultLimit", "maxPopulateDepth"} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	if f := cmd.Flags().Lookup("db"); f != nil && f.Changed {
		if err := v.BindPFlag("database", f); err != nil {
			return nil, fmt.Errorf("bind --db: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if path := v.ConfigFileUsed(); path != "" {
		models, err := loadModels(path)
		if err != nil {
			return nil, err
		}
		cfg.Models = models
	}
	return cfg, nil
}

func loadModels(path string) ([]model.Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var doc struct {
		Models []model.Spec `yaml:"models"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse models in %s: %w", path, err)
	}
	return doc.Models, nil
}

// compilerOptions maps the config onto compiler options.
func (c *Config) compilerOptions() []compiler.Option {
	var out []compiler.Option
	if c.DefaultLimit > 0 {
		out = append(out, compiler.WithDefaultLimit(c.DefaultLimit))
	}
	if c.MaxPopulateDepth > 0 {
		out = append(out, compiler.WithMaxPopulateDepth(c.MaxPopulateDepth))
	}
	return out
}

// spec returns the configured spec for a model name.
func (c *Config) spec(name string) (model.Spec, bool) {
	for _, s := range c.Models {
		if s.Name == name {
			return s, true
		}
	}
	return model.Spec{}, false
}
