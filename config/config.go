// Package config loads dealflow.Config from a YAML file and the
// environment using viper.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	dealflow "github.com/CavellTopDev/pitchey-app-sub015"
)

// EnvPrefix is prepended to every environment override, so database.url
// is read from DEALFLOW_DATABASE_URL.
const EnvPrefix = "DEALFLOW"

// envKeys lists the settings that are commonly overridden per deployment.
var envKeys = []string{
	"database.url",
	"redis.addr",
	"redis.password",
	"redis.db",
	"http.addr",
	"runtime.codec",
	"runtime.lease_ttl",
	"runtime.sweep_schedule",
	"documents.root",
	"notify.legal_team_id",
}

// Load reads configuration from path. When path is empty it looks for
// config.yaml in the working directory and ./config, and a missing file
// is not an error. Values absent from the file keep their defaults.
func Load(path string) (dealflow.Config, error) {
	cfg := dealflow.DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return cfg, fmt.Errorf("config: bind env %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return cfg, fmt.Errorf("config: read: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("config: decode: %w", err)
	}

	return cfg, validate(cfg)
}

func validate(cfg dealflow.Config) error {
	switch cfg.Runtime.Codec {
	case "", "json", "msgpack":
	default:
		return fmt.Errorf("config: runtime.codec %q: must be json or msgpack", cfg.Runtime.Codec)
	}
	if cfg.Runtime.SweepConcurrency < 1 {
		return fmt.Errorf("config: runtime.sweep_concurrency must be positive")
	}
	if cfg.Production.MaxCounterRounds < 1 {
		return fmt.Errorf("config: production.max_counter_rounds must be positive")
	}
	return nil
}
