// Package config loads the eventdemo settings from EVENTDEMO_ prefixed environment variables, which may then be overridden by flags.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/saylorsolutions/eventdemo/httpsec"
	"github.com/saylorsolutions/eventdemo/logging"
	flag "github.com/spf13/pflag"
)

const EnvPrefix = "EVENTDEMO_"

type Config struct {
	Addr            string        `env:"ADDR" envDefault:":8000"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat       string        `env:"LOG_FORMAT" envDefault:"auto"`
	LogFile         string        `env:"LOG_FILE"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"5s"`
	SchemaFiles     []string      `env:"SCHEMA_FILES" envSeparator:","`
	StrictEvents    bool          `env:"STRICT_EVENTS"`
	OTelEndpoint    string        `env:"OTEL_ENDPOINT"`
	ServiceName     string        `env:"SERVICE_NAME" envDefault:"eventdemo"`
	CORSOrigins     []string      `env:"CORS_ORIGINS" envSeparator:","`
}

// Load reads a [Config] from the environment and validates it.
func Load() (Config, error) {
	var conf Config
	if err := env.ParseWithOptions(&conf, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := conf.Validate(); err != nil {
		return Config{}, err
	}
	return conf, nil
}

// BindFlags registers flags that override the current values, so it should be called after [Load].
func (c *Config) BindFlags(flags *flag.FlagSet) {
	flags.StringVarP(&c.Addr, "addr", "a", c.Addr, "Address the HTTP server listens on")
	flags.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Minimum log level: debug, info, warn, or error")
	flags.StringVar(&c.LogFormat, "log-format", c.LogFormat, "Log output format: auto, json, or text")
	flags.StringVar(&c.LogFile, "log-file", c.LogFile, "Also append JSON logs to this file")
	flags.DurationVar(&c.ShutdownTimeout, "shutdown-timeout", c.ShutdownTimeout, "Time allowed for in-flight requests during shutdown")
	flags.StringSliceVarP(&c.SchemaFiles, "schemas", "s", c.SchemaFiles, "HCL schema files or directories to load")
	flags.BoolVar(&c.StrictEvents, "strict", c.StrictEvents, "Reject events that have no schema or handlers")
	flags.StringSliceVar(&c.CORSOrigins, "cors-origin", c.CORSOrigins, "Browser origins allowed to call the API, or * for any")
	flags.StringVar(&c.OTelEndpoint, "otel-endpoint", c.OTelEndpoint, "OTLP/HTTP endpoint URL for trace export, disabled if empty")
}

func (c Config) Validate() error {
	var errs []error
	if len(c.Addr) == 0 {
		errs = append(errs, errors.New("listen address is required"))
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if _, err := logging.ParseFormat(c.LogFormat); err != nil {
		errs = append(errs, err)
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("shutdown timeout must be positive, got %s", c.ShutdownTimeout))
	}
	for _, origin := range c.CORSOrigins {
		if origin == httpsec.CORSAnyOrigin {
			continue
		}
		if _, err := httpsec.NormalizeOrigin(origin); err != nil {
			errs = append(errs, err)
		}
	}
	if len(c.ServiceName) == 0 {
		errs = append(errs, errors.New("service name is required"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// Logging translates the log settings, which must already be valid.
func (c Config) Logging() logging.Config {
	level, _ := logging.ParseLevel(c.LogLevel)
	format, _ := logging.ParseFormat(c.LogFormat)
	return logging.Config{
		Level:  level,
		Format: format,
	}
}
