package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/creasty/defaults"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/roach88/ormsql/internal/querysql"
)

// Config is the merged command configuration.
//
// Precedence, highest first: flags, ORMSQL_* environment variables, the
// config file, the defaults below.
type Config struct {
	Model    string `mapstructure:"model"`
	Database string `mapstructure:"db"`
	LogLevel string `mapstructure:"log_level" default:"info"`

	Translator querysql.Config `mapstructure:",squash"`
}

// configKeys maps config keys to the flags that can override them. Flags a
// command does not declare are skipped.
var configKeys = map[string]string{
	"model":           "model",
	"db":              "db",
	"dialect":         "dialect",
	"max_fetch_depth": "max-fetch-depth",
	"fetch_profiles":  "profile",
	"log_level":       "log-level",
}

// fileOnlyKeys have no flag but can still come from the environment.
var fileOnlyKeys = []string{"cte_name_retries"}

// loadConfig reads the config file (if any) and layers the environment and
// the command's flags on top.
func loadConfig(cmd *cobra.Command, file string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ORMSQL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("ormsql")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := bindFlags(v, cmd.Flags()); err != nil {
		return nil, err
	}
	for _, key := range fileOnlyKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := defaults.Set(&cfg); err != nil {
		return nil, fmt.Errorf("apply config defaults: %w", err)
	}
	return &cfg, nil
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for key, name := range configKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

// settings loads the configuration and logger for one command run.
func settings(opts *RootOptions, cmd *cobra.Command) (*Config, *slog.Logger, error) {
	if !isValidFormat(opts.Format) {
		return nil, nil, NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
	}
	cfg, err := loadConfig(cmd, opts.ConfigFile)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "configuration error", err)
	}
	logger, err := newLogger(cmd.ErrOrStderr(), opts.Format, cfg.LogLevel, opts.Verbose)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "configuration error", err)
	}
	return cfg, logger, nil
}
