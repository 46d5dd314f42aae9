package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/rpattn/tradeboard/internal/db"
	"github.com/rpattn/tradeboard/pkg/validator"
)

// EnvPrefix namespaces environment overrides, e.g. TRADEBOARD_SERVER_ADDR.
const EnvPrefix = "TRADEBOARD"

// Config is the full application configuration.
type Config struct {
	Server   ServerConfig  `mapstructure:"server"`
	Upload   UploadConfig  `mapstructure:"upload"`
	Export   ExportConfig  `mapstructure:"export"`
	Session  SessionConfig `mapstructure:"session"`
	Log      LogConfig     `mapstructure:"log"`
	Database db.Config     `mapstructure:"database"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr" validate:"required"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" validate:"gt=0"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

type UploadConfig struct {
	MaxBytes  int64  `mapstructure:"max_bytes" validate:"gt=0"`
	SheetName string `mapstructure:"sheet_name" validate:"required"`
}

type ExportConfig struct {
	Directory string `mapstructure:"directory"`
}

type SessionConfig struct {
	TTL           time.Duration `mapstructure:"ttl" validate:"gt=0"`
	SweepInterval time.Duration `mapstructure:"sweep_interval" validate:"gt=0"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=trace debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=console json"`
	File   string `mapstructure:"file"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			AllowedOrigins:  []string{"http://localhost:3000"},
		},
		Upload:   UploadConfig{MaxBytes: 32 << 20, SheetName: "DATA"},
		Session:  SessionConfig{TTL: 2 * time.Hour, SweepInterval: 5 * time.Minute},
		Log:      LogConfig{Level: "info", Format: "console"},
		Database: db.DefaultConfig(),
	}
}

// Load reads config.yaml from configPath (when present), then .env and
// TRADEBOARD_* environment variables, and validates the result.
func Load(configPath string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, Default())

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		log.Debug().Str("component", "config").Str("path", configPath).Msg("no config.yaml found, using defaults and env vars")
	} else {
		log.Debug().Str("component", "config").Str("file", v.ConfigFileUsed()).Msg("loaded config file")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.Server.AllowedOrigins = splitList(cfg.Server.AllowedOrigins)

	if err := validator.Validate(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it during Unmarshal.
func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("server.addr", cfg.Server.Addr)
	v.SetDefault("server.read_timeout", cfg.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", cfg.Server.WriteTimeout)
	v.SetDefault("server.idle_timeout", cfg.Server.IdleTimeout)
	v.SetDefault("server.shutdown_timeout", cfg.Server.ShutdownTimeout)
	v.SetDefault("server.allowed_origins", cfg.Server.AllowedOrigins)

	v.SetDefault("upload.max_bytes", cfg.Upload.MaxBytes)
	v.SetDefault("upload.sheet_name", cfg.Upload.SheetName)
	v.SetDefault("export.directory", cfg.Export.Directory)
	v.SetDefault("session.ttl", cfg.Session.TTL)
	v.SetDefault("session.sweep_interval", cfg.Session.SweepInterval)

	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.file", cfg.Log.File)

	v.SetDefault("database.enabled", cfg.Database.Enabled)
	v.SetDefault("database.host", cfg.Database.Host)
	v.SetDefault("database.port", cfg.Database.Port)
	v.SetDefault("database.user", cfg.Database.User)
	v.SetDefault("database.password", cfg.Database.Password)
	v.SetDefault("database.dbname", cfg.Database.DBName)
	v.SetDefault("database.sslmode", cfg.Database.SSLMode)
	v.SetDefault("database.max_conns", cfg.Database.MaxConns)
}

// splitList accepts comma separated values coming from env vars.
func splitList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
