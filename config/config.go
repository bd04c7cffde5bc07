// Package config loads dblite settings from defaults, an optional config
// file, DBLITE_* environment variables and command-line flags, in that
// order of precedence (last wins).
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/stevemurr/dblite/schema"
	"github.com/stevemurr/dblite/store"
)

// EnvPrefix is prepended to every environment variable, e.g. DBLITE_URI or
// DBLITE_LOG_LEVEL.
const EnvPrefix = "DBLITE"

// ErrInvalid reports an unusable configuration.
var ErrInvalid = errors.New("invalid configuration")

// Config holds all settings.
type Config struct {
	URI            string   `mapstructure:"uri"`
	Driver         string   `mapstructure:"driver"`
	SchemaFile     string   `mapstructure:"schema_file"`
	Fields         []string `mapstructure:"fields"`
	Autocommit     string   `mapstructure:"autocommit"`
	Listen         string   `mapstructure:"listen"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	Log            Log      `mapstructure:"log"`
}

// Log configures logging.Init.
type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// flagKeys maps flag names to config keys.
var flagKeys = map[string]string{
	"uri":             "uri",
	"driver":          "driver",
	"schema":          "schema_file",
	"fields":          "fields",
	"autocommit":      "autocommit",
	"listen":          "listen",
	"allowed-origins": "allowed_origins",
	"log-level":       "log.level",
	"log-format":      "log.format",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("uri", "")
	v.SetDefault("driver", store.DriverCgo)
	v.SetDefault("schema_file", "")
	v.SetDefault("fields", []string{})
	v.SetDefault("autocommit", "false")
	v.SetDefault("listen", "0.0.0.0:8080")
	v.SetDefault("allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// RegisterFlags adds the global flags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Config file (json, yaml or toml)")
	fs.String("uri", "", "Store URI, sqlite://<path>:<table>")
	fs.String("driver", store.DriverCgo, "SQLite driver: sqlite3 (cgo) or sqlite (pure Go)")
	fs.String("schema", "", "Schema descriptor file")
	fs.StringSlice("fields", nil, `Field definitions, e.g. "name TEXT","age INTEGER"`)
	fs.String("autocommit", "false", "Autocommit policy: false, true or N")
	fs.String("log-level", "info", "Log level: debug, info, warn or error")
	fs.String("log-format", "text", "Log format: text or json")
}

// Load reads the configuration. path may be empty. fs may be nil; flags it
// does not define are ignored.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%w: reading %s: %w", ErrInvalid, path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("%w: binding --%s: %w", ErrInvalid, name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	cfg.Fields = trimAll(cfg.Fields)
	cfg.AllowedOrigins = trimAll(cfg.AllowedOrigins)
	return &cfg, nil
}

func trimAll(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Schema builds the schema from SchemaFile, or from Fields when no file is
// set.
func (c *Config) Schema() (*schema.Schema, error) {
	switch {
	case c.SchemaFile != "":
		return schema.Load(c.SchemaFile)
	case len(c.Fields) > 0:
		return schema.Parse(c.Fields...)
	default:
		return nil, fmt.Errorf("%w: no schema, set schema_file or fields", ErrInvalid)
	}
}

// Policy parses Autocommit.
func (c *Config) Policy() (store.Autocommit, error) {
	return store.ParseAutocommit(c.Autocommit)
}

// Options resolves everything Open needs apart from metrics.
func (c *Config) Options() (store.Options, error) {
	if c.URI == "" {
		return store.Options{}, fmt.Errorf("%w: no store URI, set uri", ErrInvalid)
	}
	backend, location, table, err := store.ParseURI(c.URI)
	if err != nil {
		return store.Options{}, err
	}
	sch, err := c.Schema()
	if err != nil {
		return store.Options{}, err
	}
	policy, err := c.Policy()
	if err != nil {
		return store.Options{}, err
	}
	return store.Options{
		Backend:    backend,
		Location:   location,
		Table:      table,
		Schema:     sch,
		Autocommit: policy,
		Driver:     c.Driver,
	}, nil
}
