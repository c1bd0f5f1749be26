package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. PGVIEW_PG_CONNSTRING.
const EnvPrefix = "PGVIEW"

// Config holds application-wide configuration
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	PG      PGConfig      `mapstructure:"pg"`
	Query   QueryConfig   `mapstructure:"query"`
	Catalog CatalogConfig `mapstructure:"catalog"`
	Metrics MetricsConfig `mapstructure:"metrics"`

	// File is the config file that was read, if any.
	File string `mapstructure:"-"`
}

type ServerConfig struct {
	ListenAddr        string        `mapstructure:"listenAddr"`
	BaseURL           string        `mapstructure:"baseURL"`
	MaxBodyBytes      int64         `mapstructure:"maxBodyBytes"`
	ReadHeaderTimeout time.Duration `mapstructure:"readHeaderTimeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdownTimeout"`
	// IPAllowlist restricts plain HTTP clients to these addresses or CIDR
	// prefixes. Empty allows everyone.
	IPAllowlist []string   `mapstructure:"ipAllowlist"`
	AllowTLS    bool       `mapstructure:"allowTLS"`
	CORS        CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowedOrigins"`
}

type PGConfig struct {
	// ConnString may contain __NAME__ placeholders, resolved from the
	// environment variable SecretPrefix+NAME.
	ConnString     string        `mapstructure:"connString"`
	MaxConns       int32         `mapstructure:"maxConns"`
	MinConns       int32         `mapstructure:"minConns"`
	ConnectTimeout time.Duration `mapstructure:"connectTimeout"`
	SecretPrefix   string        `mapstructure:"secretPrefix"`
}

type QueryConfig struct {
	TargetKey string        `mapstructure:"targetKey"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type CatalogConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
	Path    string `mapstructure:"path"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Server: ServerConfig{
			ListenAddr:        ":7273",
			MaxBodyBytes:      1 << 20,
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   15 * time.Second,
			CORS: CORSConfig{
				AllowedOrigins: []string{"*"},
			},
		},
		PG: PGConfig{
			ConnectTimeout: 30 * time.Second,
		},
		Query: QueryConfig{
			TargetKey: "view_name",
			Timeout:   30 * time.Second,
		},
		Catalog: CatalogConfig{Enabled: true},
		Metrics: MetricsConfig{
			Addr: ":9100",
			Path: "/metrics",
		},
	}
}

// flagKeys maps command line flags to config keys.
var flagKeys = map[string]string{
	"listen-addr":   "server.listenAddr",
	"base-url":      "server.baseURL",
	"conn-string":   "pg.connString",
	"target-key":    "query.targetKey",
	"query-timeout": "query.timeout",
	"catalog":       "catalog.enabled",
	"metrics":       "metrics.enabled",
	"metrics-addr":  "metrics.addr",
}

// Load reads config from file, environment and flags, in increasing order of
// precedence. flags may be nil.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("pgview")
		v.SetConfigType("yaml")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config"))
		}
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var notFound viper.ConfigFileNotFoundError
	if err := v.ReadInConfig(); err != nil && !errors.As(err, &notFound) {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults registers every key, so environment variables are seen by
// Unmarshal even when no config file mentions the key.
func setDefaults(v *viper.Viper, def Config) {
	v.SetDefault("server.listenAddr", def.Server.ListenAddr)
	v.SetDefault("server.baseURL", def.Server.BaseURL)
	v.SetDefault("server.maxBodyBytes", def.Server.MaxBodyBytes)
	v.SetDefault("server.readHeaderTimeout", def.Server.ReadHeaderTimeout)
	v.SetDefault("server.shutdownTimeout", def.Server.ShutdownTimeout)
	v.SetDefault("server.ipAllowlist", def.Server.IPAllowlist)
	v.SetDefault("server.allowTLS", def.Server.AllowTLS)
	v.SetDefault("server.cors.allowedOrigins", def.Server.CORS.AllowedOrigins)

	v.SetDefault("pg.connString", def.PG.ConnString)
	v.SetDefault("pg.maxConns", def.PG.MaxConns)
	v.SetDefault("pg.minConns", def.PG.MinConns)
	v.SetDefault("pg.connectTimeout", def.PG.ConnectTimeout)
	v.SetDefault("pg.secretPrefix", def.PG.SecretPrefix)

	v.SetDefault("query.targetKey", def.Query.TargetKey)
	v.SetDefault("query.timeout", def.Query.Timeout)

	v.SetDefault("catalog.enabled", def.Catalog.Enabled)

	v.SetDefault("metrics.enabled", def.Metrics.Enabled)
	v.SetDefault("metrics.addr", def.Metrics.Addr)
	v.SetDefault("metrics.path", def.Metrics.Path)
}

// Validate reports settings that cannot work together.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.ListenAddr == "" {
		errs = append(errs, errors.New("server.listenAddr is required"))
	}
	if c.Server.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("server.maxBodyBytes must be positive"))
	}
	if c.Query.Timeout <= 0 {
		errs = append(errs, errors.New("query.timeout must be positive"))
	}
	if strings.TrimSpace(c.Query.TargetKey) == "" {
		errs = append(errs, errors.New("query.targetKey is required"))
	}
	if c.PG.MinConns < 0 || c.PG.MaxConns < 0 {
		errs = append(errs, errors.New("pg.minConns and pg.maxConns must not be negative"))
	}
	if c.PG.MaxConns > 0 && c.PG.MinConns > c.PG.MaxConns {
		errs = append(errs, fmt.Errorf("pg.minConns (%d) exceeds pg.maxConns (%d)", c.PG.MinConns, c.PG.MaxConns))
	}
	if c.Server.BaseURL != "" && !strings.HasPrefix(c.Server.BaseURL, "/") {
		errs = append(errs, fmt.Errorf("server.baseURL %q must start with /", c.Server.BaseURL))
	}
	return errors.Join(errs...)
}
