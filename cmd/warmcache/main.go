// Command warmcache runs the cache layer as a standalone process, prints tier
// statistics and benchmarks the expiring cache.
//
// Configuration is read from WARMCACHE_* variables, then an optional config
// file (--config, any format viper understands), then command-line flags.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/IvanBrykalov/warmcache/config"
)

var (
	configPath string
	settings   = viper.New()
)

var rootCmd = &cobra.Command{
	Use:   "warmcache",
	Short: "Client-side cache tiers and prefetching",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configPath == "" {
			return nil
		}
		settings.SetConfigFile(configPath)
		if err := settings.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", configPath, err)
		}
		return nil
	},
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "Path to a config file (yaml, toml or json)")
	flags.String("log-level", "info", "Log level: debug, info, warn, error")
	flags.String("log-file", "", "Rotated JSON log file (empty disables)")
	_ = settings.BindPFlag("log_level", flags.Lookup("log-level"))
	_ = settings.BindPFlag("log_file", flags.Lookup("log-file"))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(benchCmd)
}

// loadConfig layers the config file and explicitly set flags over the
// environment.
func loadConfig(v *viper.Viper) (config.Config, error) {
	return config.Load(overrides(v))
}

// overrides maps every key v has a value for to its WARMCACHE_* name. Flags
// left at their default are skipped so they do not shadow the environment.
func overrides(v *viper.Viper) map[string]string {
	out := make(map[string]string)
	for _, k := range v.AllKeys() {
		if !v.IsSet(k) {
			continue
		}
		val := v.Get(k)
		switch t := val.(type) {
		case []any:
			parts := make([]string, len(t))
			for i, p := range t {
				parts[i] = fmt.Sprint(p)
			}
			out[config.EnvKey(k)] = strings.Join(parts, ",")
		default:
			out[config.EnvKey(k)] = v.GetString(k)
		}
	}
	return out
}
