package config

import (
	"log/slog"
	"net"
	"net/url"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/spf13/viper"
)

const (
	EnvDev     = "dev"
	EnvStaging = "staging"
	EnvProd    = "prod"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

type ServerConfig struct {
	Address     string `mapstructure:"address"`
	Environment string `mapstructure:"environment"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// CheckConfig holds the health check tunables shared by the pool section
// and every backend entry. In a backend entry, zero values inherit from
// the pool section.
type CheckConfig struct {
	HealthyAfter   int    `mapstructure:"healthy_after"`
	UnhealthyAfter int    `mapstructure:"unhealthy_after"`
	RemoveAfter    int    `mapstructure:"remove_after"`
	CheckInterval  string `mapstructure:"check_interval"`
	CheckTimeout   string `mapstructure:"check_timeout"`
	HealthyStatus  []int  `mapstructure:"healthy_status"`
	BodyContains   string `mapstructure:"body_contains"`
}

type PoolConfig struct {
	Healthcheck string `mapstructure:"healthcheck"`
	CheckConfig `mapstructure:",squash"`
}

type BackendConfig struct {
	Address     string            `mapstructure:"address"`
	Healthcheck string            `mapstructure:"healthcheck"`
	Method      string            `mapstructure:"method"`
	Headers     map[string]string `mapstructure:"headers"`
	Body        string            `mapstructure:"body"`
	CheckConfig `mapstructure:",squash"`
}

type Config struct {
	Server   ServerConfig    `mapstructure:"server"`
	Logging  LoggingConfig   `mapstructure:"logging"`
	Pool     PoolConfig      `mapstructure:"pool"`
	Backends []BackendConfig `mapstructure:"backends"`
}

// Load reads config.yaml from the given directories, or from ./config and
// the working directory when none are given. Environment variables
// override file values, with dots replaced by underscores
// (POOL_CHECK_INTERVAL).
func Load(paths ...string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.environment", EnvDev)
	v.SetDefault("server.address", ":8080")
	v.SetDefault("logging.level", LogLevelInfo)
	v.SetDefault("pool.healthcheck", "")
	v.SetDefault("pool.healthy_after", 3)
	v.SetDefault("pool.unhealthy_after", 1)
	v.SetDefault("pool.remove_after", 0)
	v.SetDefault("pool.check_interval", "10s")
	v.SetDefault("pool.check_timeout", "1s")
	v.SetDefault("pool.healthy_status", []int{200})
	v.SetDefault("pool.body_contains", "")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{"./config", "."}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Error("failed to read config file", slog.String("error", err.Error()))
			return nil, err
		}
		slog.Warn("config file not found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", slog.String("file", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		slog.Error("failed to unmarshal config", slog.String("error", err.Error()))
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Server,
			validation.Required,
			validation.By(func(value interface{}) error {
				sc, ok := value.(ServerConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a ServerConfig")
				}
				return validation.ValidateStruct(&sc,
					validation.Field(&sc.Environment,
						validation.Required,
						validation.In(EnvDev, EnvStaging, EnvProd),
					),
					validation.Field(&sc.Address,
						validation.Required,
						validation.By(validateHostPort),
					),
				)
			}),
		),
		validation.Field(&c.Logging,
			validation.Required,
			validation.By(func(value interface{}) error {
				lc, ok := value.(LoggingConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a LoggingConfig")
				}
				return validation.ValidateStruct(&lc,
					validation.Field(&lc.Level,
						validation.Required,
						validation.In(LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError),
					),
				)
			}),
		),
		validation.Field(&c.Pool,
			validation.By(func(value interface{}) error {
				pc, ok := value.(PoolConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a PoolConfig")
				}
				if err := validation.Validate(pc.Healthcheck, validation.By(validateHealthcheck)); err != nil {
					return validation.Errors{"healthcheck": err}
				}
				return validateCheckConfig(pc.CheckConfig)
			}),
		),
		validation.Field(&c.Backends,
			validation.Each(validation.By(c.validateBackendConfig)),
		),
	)
}

func validateCheckConfig(cc CheckConfig) error {
	return validation.ValidateStruct(&cc,
		validation.Field(&cc.HealthyAfter, validation.Min(0)),
		validation.Field(&cc.UnhealthyAfter, validation.Min(0)),
		validation.Field(&cc.RemoveAfter, validation.Min(0)),
		validation.Field(&cc.CheckInterval, validation.By(validateDuration)),
		validation.Field(&cc.CheckTimeout, validation.By(validateDuration)),
		validation.Field(&cc.HealthyStatus, validation.Each(validation.Min(100), validation.Max(599))),
	)
}

func (c *Config) validateBackendConfig(value interface{}) error {
	backend, ok := value.(BackendConfig)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a BackendConfig")
	}

	if err := validateAddress(backend.Address); err != nil {
		return err
	}

	if backend.Healthcheck == "" && c.Pool.Healthcheck == "" {
		return validation.NewError("validation_missing_healthcheck",
			"healthcheck must be set on the backend or the pool")
	}
	if err := validateHealthcheck(backend.Healthcheck); err != nil {
		return err
	}

	if err := validation.Validate(backend.Method,
		validation.In("GET", "HEAD", "POST", "PUT", "OPTIONS"),
	); err != nil {
		return validation.Errors{"method": err}
	}

	return validateCheckConfig(backend.CheckConfig)
}

func validateHostPort(value interface{}) error {
	addr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return validation.NewError("validation_invalid_hostport", "must be in host:port format")
	}

	if port == "" {
		return validation.NewError("validation_invalid_port", "port cannot be empty")
	}

	if host != "" {
		if err := is.Host.Validate(host); err != nil {
			return validation.NewError("validation_invalid_host", "invalid host")
		}
	}

	return nil
}

// validateDuration accepts an empty string, which means "inherit".
func validateDuration(value interface{}) error {
	durationStr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}
	if durationStr == "" {
		return nil
	}

	d, err := time.ParseDuration(durationStr)
	if err != nil {
		return validation.NewError("validation_invalid_duration", "must be a valid duration (e.g., 2s, 5m, 1h)")
	}
	if d <= 0 {
		return validation.NewError("validation_invalid_duration", "must be positive")
	}

	return nil
}

// validateAddress accepts host:port or an http(s) URL.
func validateAddress(address string) error {
	if address == "" {
		return validation.NewError("validation_empty_address", "backend address cannot be empty")
	}

	raw := address
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}

	parsedURL, err := url.Parse(raw)
	if err != nil {
		return validation.NewError("validation_invalid_address", "must be host:port or a valid URL")
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return validation.NewError("validation_invalid_scheme", "address must use http or https scheme")
	}

	if parsedURL.Host == "" {
		return validation.NewError("validation_missing_host", "address must have a host")
	}

	return nil
}

func validateHealthcheck(value interface{}) error {
	healthcheck, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}
	if healthcheck == "" {
		return nil
	}

	if _, err := url.Parse(healthcheck); err != nil {
		return validation.NewError("validation_invalid_healthcheck", "must be a path or a valid URL")
	}

	return nil
}

// ParseDuration parses a duration already checked by Validate. An empty
// string yields zero.
func ParseDuration(s string) time.Duration {
	if s == "" {
		return 0
	}
	d, _ := time.ParseDuration(s)
	return d
}
