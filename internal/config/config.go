package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server     Server
	Database   Database
	Redis      Redis
	JWT        JWT
	LoggerMode LoggerMode
}

type Server struct {
	Addr        string
	Environment string
}

type Database struct {
	Driver string
	DSN    string
}

type Redis struct {
	Addr    string
	Channel string
}

type JWT struct {
	Secret    string
	ExpiresIn time.Duration
}

type LoggerMode struct {
	Development bool
	Level       string
}

// Load reads an optional config/<name>.yaml, then .env, then the environment.
// Later sources win. The short variables DB_DSN, JWT_SECRET and
// REDIS_ADDR are honoured as aliases. An empty redis.addr keeps the feed
// in-process.
func Load(name string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigName(name)
	v.SetConfigType("yaml")
	v.AddConfigPath("config")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AllowEmptyEnv(true)
	v.AutomaticEnv()
	_ = v.BindEnv("database.dsn", "DATABASE_DSN", "DB_DSN")
	_ = v.BindEnv("jwt.secret", "JWT_SECRET")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")

	return ParseConfig(v)
}

func ParseConfig(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return errors.New("database dsn is not set (DB_DSN)")
	}
	if c.JWT.Secret == "" {
		return errors.New("jwt secret is not set (JWT_SECRET)")
	}
	if c.JWT.ExpiresIn <= 0 {
		return errors.New("jwt expiry must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("database.driver", "pgx")
	v.SetDefault("database.dsn", "")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.channel", "cipher:feed")
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiresin", 24*time.Hour)
	v.SetDefault("loggermode.development", true)
	v.SetDefault("loggermode.level", "info")
}
