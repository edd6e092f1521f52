package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/roach88/streamplan/internal/plan"
)

// EnvPrefix prefixes every environment variable the CLI reads.
const EnvPrefix = "STREAMPLAN"

// Config keys. Flags use dashes, config files and the environment use
// underscores.
const (
	keyDB               = "db"
	keyRepartition      = "repartition"
	keyStateStorePrefix = "state_store_prefix"
)

var flagKeys = map[string]string{
	"db":                 keyDB,
	"repartition":        keyRepartition,
	"state-store-prefix": keyStateStorePrefix,
}

// bindFlags registers the settings flags with v and enables STREAMPLAN_*
// environment lookup for them.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	for name, key := range flagKeys {
		if f := flags.Lookup(name); f != nil {
			// Lookup succeeded, so binding cannot fail.
			_ = v.BindPFlag(key, f)
		}
	}
}

// loadSettings reads the optional config file and resolves the settings
// into opts.
func loadSettings(v *viper.Viper, opts *RootOptions) error {
	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", opts.ConfigFile, err)
		}
	}

	var cfg plan.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	cfg.Repartition = plan.RepartitionPolicy(strings.ToLower(string(cfg.Repartition)))
	if err := cfg.Validate(); err != nil {
		return err
	}

	opts.Compile = cfg
	opts.DB = v.GetString(keyDB)
	return nil
}
