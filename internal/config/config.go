package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	Log       Log       `mapstructure:"log"       validate:"required"`
	Telemetry Telemetry `mapstructure:"telemetry" validate:"required"`
	Storage   Storage   `mapstructure:"storage"   validate:"required"`
	Remote    Remote    `mapstructure:"remote"`
	Account   Account   `mapstructure:"account"`
	Import    Import    `mapstructure:"import"`
	Export    Export    `mapstructure:"export"`
	UI        UI        `mapstructure:"ui"`
}

type Log struct {
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	LogDir   string `mapstructure:"log_dir"`
}

type Telemetry struct {
	Enabled     bool              `mapstructure:"enabled"`
	Exporter    string            `mapstructure:"exporter"     validate:"omitempty,oneof=otlp stdout none"`
	Endpoint    string            `mapstructure:"endpoint"`
	Protocol    string            `mapstructure:"protocol"     validate:"omitempty,oneof=grpc http"`
	Insecure    bool              `mapstructure:"insecure"`
	Headers     map[string]string `mapstructure:"headers"`
	ServiceName string            `mapstructure:"service_name"`
}

type Storage struct {
	Dir            string `mapstructure:"dir"             validate:"required"`
	Driver         string `mapstructure:"driver"          validate:"required,oneof=sqlite sqlite3"`
	PrimaryEnabled bool   `mapstructure:"primary_enabled"`
	SQLiteFile     string `mapstructure:"sqlite_file"     validate:"required"`
	FallbackFile   string `mapstructure:"fallback_file"   validate:"required"`
}

type Remote struct {
	Backend         string        `mapstructure:"backend"          validate:"oneof=firestore mongo memory none"`
	ProjectID       string        `mapstructure:"project_id"       validate:"required_if=Backend firestore"`
	CredentialsFile string        `mapstructure:"credentials_file" validate:"omitempty,file"`
	MongoURI        string        `mapstructure:"mongo_uri"        validate:"required_if=Backend mongo"`
	MongoDatabase   string        `mapstructure:"mongo_database"`
	BatchSize       int           `mapstructure:"batch_size"       validate:"min=1,max=500"`
	MaxRetries      int           `mapstructure:"max_retries"      validate:"min=0,max=10"`
	Timeout         time.Duration `mapstructure:"timeout"          validate:"gt=0"`
}

type Account struct {
	ID string `mapstructure:"id"`
}

type Import struct {
	Workers     int   `mapstructure:"workers"       validate:"min=1,max=64"`
	MaxFileSize int64 `mapstructure:"max_file_size" validate:"gt=0"`
}

type Export struct {
	Directory string `mapstructure:"directory"`
}

type UI struct {
	Progress bool `mapstructure:"progress"`
	Color    bool `mapstructure:"color"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.log_level", "info")
	v.SetDefault("log.log_dir", "logs")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.exporter", "none")
	v.SetDefault("telemetry.endpoint", "localhost:4317")
	v.SetDefault("telemetry.protocol", "grpc")
	v.SetDefault("telemetry.insecure", true)
	v.SetDefault("telemetry.service_name", "fba-boxes")
	v.SetDefault("storage.dir", "data")
	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.primary_enabled", true)
	v.SetDefault("storage.sqlite_file", "shipments.db")
	v.SetDefault("storage.fallback_file", "local-storage.db")
	v.SetDefault("remote.backend", "none")
	v.SetDefault("remote.project_id", "")
	v.SetDefault("remote.credentials_file", "")
	v.SetDefault("remote.mongo_uri", "")
	v.SetDefault("remote.mongo_database", "fba")
	v.SetDefault("remote.batch_size", 500)
	v.SetDefault("remote.max_retries", 3)
	v.SetDefault("remote.timeout", 30*time.Second)
	v.SetDefault("account.id", "")
	v.SetDefault("import.workers", 4)
	v.SetDefault("import.max_file_size", 10<<20)
	v.SetDefault("export.directory", ".")
	v.SetDefault("ui.progress", true)
	v.SetDefault("ui.color", true)
}

func Load(cfgFile string) (Config, error) {
	return LoadWith(viper.GetViper(), cfgFile)
}

// LoadWith reads configuration through v, so flags bound on v take
// precedence over the file and environment.
func LoadWith(v *viper.Viper, cfgFile string) (Config, error) {
	v.AutomaticEnv()
	v.SetEnvPrefix("FBA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.fba-boxes")
		v.AddConfigPath("/etc/fba-boxes")
		v.SetConfigType("yaml")
	}
	setDefaults(v)

	err := v.ReadInConfig()
	if err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("config read error: %w", err)
		}
	}

	var cfg Config
	if err := v.UnmarshalExact(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal error: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return Config{}, fmt.Errorf("validation failed: %w", err)
	}
	if cfg.Telemetry.Enabled && cfg.Telemetry.Exporter == "otlp" && cfg.Telemetry.Endpoint == "" {
		return Config{}, fmt.Errorf("telemetry.endpoint is required when using otlp exporter")
	}
	return cfg, nil
}
