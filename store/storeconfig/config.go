// Package storeconfig selects and configures a store backend from
// environment variables.
package storeconfig

import (
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/caarlos0/env/v11"
	"github.com/dogmatiq/journal/store"
	"github.com/dogmatiq/journal/store/boltstore"
	"github.com/dogmatiq/journal/store/dynamostore"
	"github.com/dogmatiq/journal/store/memorystore"
	"github.com/dogmatiq/journal/store/redisstore"
	"github.com/dogmatiq/journal/store/sqlstore"
	"github.com/go-redis/redis"
	"go.etcd.io/bbolt"
)

// Backend identifies a store implementation.
type Backend string

const (
	// Memory selects memorystore. Events do not outlive the process.
	Memory Backend = "memory"

	// Bolt selects boltstore.
	Bolt Backend = "bolt"

	// SQL selects sqlstore. The binary must import a database/sql driver
	// matching JOURNAL_SQL_DRIVER.
	SQL Backend = "sql"

	// DynamoDB selects dynamostore.
	DynamoDB Backend = "dynamodb"

	// Redis selects redisstore.
	Redis Backend = "redis"
)

// Config is the environment-driven store configuration.
type Config struct {
	Backend  Backend        `env:"JOURNAL_STORE" envDefault:"memory"`
	Bolt     BoltConfig     `envPrefix:"JOURNAL_BOLT_"`
	SQL      SQLConfig      `envPrefix:"JOURNAL_SQL_"`
	DynamoDB DynamoDBConfig `envPrefix:"JOURNAL_DYNAMODB_"`
	Redis    RedisConfig    `envPrefix:"JOURNAL_REDIS_"`
}

// BoltConfig configures the BoltDB backend.
type BoltConfig struct {
	Path        string        `env:"PATH" envDefault:"journal.boltdb"`
	OpenTimeout time.Duration `env:"OPEN_TIMEOUT" envDefault:"10s"`
}

// SQLConfig configures the SQL backend.
type SQLConfig struct {
	Driver          string        `env:"DRIVER"`
	DSN             string        `env:"DSN"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS"`
	MaxOpenConns    int           `env:"MAX_OPEN_CONNS"`
	MaxConnLifetime time.Duration `env:"MAX_CONN_LIFETIME"`
}

// DynamoDBConfig configures the DynamoDB backend.
type DynamoDBConfig struct {
	Table  string `env:"TABLE" envDefault:"journal_event"`
	Region string `env:"REGION"`
}

// RedisConfig configures the Redis backend.
type RedisConfig struct {
	Addr      string `env:"ADDR" envDefault:"localhost:6379"`
	Password  string `env:"PASSWORD"`
	DB        int    `env:"DB"`
	KeyPrefix string `env:"KEY_PREFIX" envDefault:"journal:stream:"`
}

// Load loads the configuration from the process environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, cfg.Validate()
}

// LoadFromMap loads the configuration from the given variables instead of
// the process environment.
func LoadFromMap(vars map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(
		&cfg,
		env.Options{Environment: vars},
	); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate returns an error if the configuration is incomplete.
func (c Config) Validate() error {
	switch c.Backend {
	case Memory, Redis:
		return nil
	case Bolt:
		if c.Bolt.Path == "" {
			return errors.New("JOURNAL_BOLT_PATH must not be empty")
		}
	case SQL:
		if c.SQL.Driver == "" || c.SQL.DSN == "" {
			return errors.New("JOURNAL_SQL_DRIVER and JOURNAL_SQL_DSN must both be set")
		}
	case DynamoDB:
		if c.DynamoDB.Table == "" {
			return errors.New("JOURNAL_DYNAMODB_TABLE must not be empty")
		}
	default:
		return fmt.Errorf("unrecognized store backend %q", c.Backend)
	}

	return nil
}

// Factory returns a store.Factory for the configured backend.
func (c Config) Factory() (store.Factory, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	switch c.Backend {
	case Bolt:
		return boltstore.FileFactory(
			c.Bolt.Path,
			0,
			&bbolt.Options{Timeout: c.Bolt.OpenTimeout},
		), nil

	case SQL:
		f := &sqlstore.DSNFactory{
			DriverName:      c.SQL.Driver,
			DSN:             c.SQL.DSN,
			MaxIdleConns:    c.SQL.MaxIdleConns,
			MaxOpenConns:    c.SQL.MaxOpenConns,
			MaxConnLifetime: c.SQL.MaxConnLifetime,
		}
		return f.Open, nil

	case DynamoDB:
		var opts []func(*config.LoadOptions) error
		if c.DynamoDB.Region != "" {
			opts = append(opts, config.WithRegion(c.DynamoDB.Region))
		}
		return dynamostore.ConfigFactory(c.DynamoDB.Table, opts...), nil

	case Redis:
		return redisstore.Factory(
			&redis.Options{
				Addr:     c.Redis.Addr,
				Password: c.Redis.Password,
				DB:       c.Redis.DB,
			},
			c.Redis.KeyPrefix,
		), nil

	default:
		return memorystore.Factory(&memorystore.Store{}), nil
	}
}
