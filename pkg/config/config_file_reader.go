// Package config resolves command line flags from a config file and the environment.
package config

import (
	"fmt"
	"log"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ConfigOptions is used to configure the loading of config parameters by "inboundd node".
type ConfigOptions struct {
	// FilePath is the path to the config file to be loaded, including the file name and extension.
	// If this is specified, config parameters will be loaded from that file, in addition to from environment
	// variables and command line arguments. The file may be any of the types supported by Viper (such as .yaml or
	// .json).
	FilePath string

	// EnvPrefix is the prefix to be added to environment variables to load variables that
	// override config file settings. For instance, setting it to "INBOUNDD" will cause it
	// to look for variables like "INBOUNDD_DATADIR".
	EnvPrefix string
}

// InitFileConfig initializes configuration according to the following precedence:
// 1. Command line flags
// 2. Environment variables
// 3. Config file
// 4. Cobra default values
func InitFileConfig(cmd *cobra.Command, options ConfigOptions) error {
	v := viper.New()

	if options.FilePath != "" {
		v.SetConfigFile(options.FilePath)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file %s: %w", options.FilePath, err)
		}
	}

	v.SetEnvPrefix(options.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	return bindFlags(cmd, v)
}

func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	var errs []string
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		configName := f.Name

		// Apply the viper config value to the flag when the flag is not set and viper has a value
		if !f.Changed && v.IsSet(configName) {
			if err := setFlag(cmd.Flags(), f, v.Get(configName)); err != nil {
				log.Printf("failed to bind flag %s: %v", f.Name, err)
				errs = append(errs, f.Name)
			}
		}
	})
	if len(errs) != 0 {
		return fmt.Errorf("failed to bind flags: %s", strings.Join(errs, ", "))
	}
	return nil
}

// setFlag assigns a config value to a flag. Lists from the config file are applied element by element.
func setFlag(flags *pflag.FlagSet, f *pflag.Flag, val interface{}) error {
	if list, ok := val.([]interface{}); ok {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			items := make([]string, 0, len(list))
			for _, item := range list {
				items = append(items, fmt.Sprintf("%v", item))
			}
			return sv.Replace(items)
		}
	}
	return flags.Set(f.Name, fmt.Sprintf("%v", val))
}
