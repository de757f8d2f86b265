package config

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const DefaultPrefix = "ASCETICQUERY"

type Backend string

const (
	BackendMemory   Backend = "memory"
	BackendPostgres Backend = "postgres"
	BackendMongo    Backend = "mongo"
	BackendElastic  Backend = "elastic"
)

type Postgres struct {
	DSN string `mapstructure:"dsn"`
}

type Mongo struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type Elastic struct {
	URL   string `mapstructure:"url"`
	Index string `mapstructure:"index"`
	Sniff bool   `mapstructure:"sniff"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type Paging struct {
	DefaultPageSize int `mapstructure:"default_page_size"`
}

type Config struct {
	Backend  Backend  `mapstructure:"backend"`
	Catalog  string   `mapstructure:"catalog"`
	Postgres Postgres `mapstructure:"postgres"`
	Mongo    Mongo    `mapstructure:"mongo"`
	Elastic  Elastic  `mapstructure:"elastic"`
	Log      Log      `mapstructure:"log"`
	Paging   Paging   `mapstructure:"paging"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("backend", string(BackendMemory))
	v.SetDefault("catalog", "")
	v.SetDefault("postgres.dsn", "")
	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "asceticquery")
	v.SetDefault("elastic.url", "http://localhost:9200")
	v.SetDefault("elastic.index", "")
	v.SetDefault("elastic.sniff", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("paging.default_page_size", 100)
}

// Load reads the optional config file, then PREFIX_SECTION_KEY environment
// variables over the defaults.
func Load(prefix, file string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrapf(err, "read config %s", file)
		}
	}
	v.SetEnvPrefix(prefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "unmarshal config")
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch c.Backend {
	case BackendMemory, BackendPostgres, BackendMongo, BackendElastic:
	default:
		return errors.Errorf("unknown backend %q", c.Backend)
	}
	if c.Backend == BackendPostgres && c.Postgres.DSN == "" {
		return errors.New("postgres backend needs postgres.dsn")
	}
	if c.Paging.DefaultPageSize <= 0 {
		return errors.Errorf("paging.default_page_size must be positive, got %d", c.Paging.DefaultPageSize)
	}
	return nil
}
