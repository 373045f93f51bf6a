// Package config binds the process configuration from flags, environment
// variables and an optional YAML file: built-in defaults, layered with
// an optional YAML file, DINGO_-prefixed environment variables, and
// finally explicit command-line flags.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// flagToKey maps each pflag name registered in BindFlags to its
// mapstructure config key, since viper.BindPFlags alone would key on the
// dashed flag name rather than the underscored struct tag.
var flagToKey = map[string]string{
	"executor-heartbeat-timeout":               "executor_heartbeat_timeout",
	"executor-delete-after-heartbeat-timeout":  "executor_delete_after_heartbeat_timeout",
	"store-heartbeat-timeout":                  "store_heartbeat_timeout",
	"region-heartbeat-timeout":                 "region_heartbeat_timeout",
	"region-delete-after-deleted-time":         "region_delete_after_deleted_time",
	"store-heartbeat-report-region-multiple":   "store_heartbeat_report_region_multiple",
	"enable-balance-leader":                    "enable_balance_leader",
	"enable-balance-region":                    "enable_balance_region",
	"raft-snapshot-policy":                     "raft_snapshot_policy",
	"log-level":                                "log_level",
	"log-json":                                 "log_json",
	"metrics-addr":                              "metrics_addr",
	"data-dir":                                  "data_dir",
}

func bindFlagKeys(v *viper.Viper, flags *pflag.FlagSet) error {
	for flagName, key := range flagToKey {
		f := flags.Lookup(flagName)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return err
		}
	}
	return nil
}

// Config is the full set of tunables a dingo-executor process reads at
// startup, spanning the heartbeat cadences, the balance feature flags and
// the ambient logging/metrics/storage settings.
type Config struct {
	ExecutorHeartbeatTimeout            time.Duration `mapstructure:"executor_heartbeat_timeout"`
	ExecutorDeleteAfterHeartbeatTimeout time.Duration `mapstructure:"executor_delete_after_heartbeat_timeout"`
	StoreHeartbeatTimeout                time.Duration `mapstructure:"store_heartbeat_timeout"`
	RegionHeartbeatTimeout                time.Duration `mapstructure:"region_heartbeat_timeout"`
	RegionDeleteAfterDeletedTime           time.Duration `mapstructure:"region_delete_after_deleted_time"`
	StoreHeartbeatReportRegionMultiple     int64         `mapstructure:"store_heartbeat_report_region_multiple"`
	EnableBalanceLeader                    bool          `mapstructure:"enable_balance_leader"`
	EnableBalanceRegion                    bool          `mapstructure:"enable_balance_region"`
	RaftSnapshotPolicy                     string        `mapstructure:"raft_snapshot_policy"`

	LogLevel    string `mapstructure:"log_level"`
	LogJSON     bool   `mapstructure:"log_json"`
	MetricsAddr string `mapstructure:"metrics_addr"`
	DataDir     string `mapstructure:"data_dir"`
}

// setDefaults sets the built-in default for every config key on viper,
// before any flag, env var or config file has a chance to override them.
func setDefaults(v *viper.Viper) {
	v.SetDefault("executor_heartbeat_timeout", 30*time.Second)
	v.SetDefault("executor_delete_after_heartbeat_timeout", 300*time.Second)
	v.SetDefault("store_heartbeat_timeout", 30*time.Second)
	v.SetDefault("region_heartbeat_timeout", 30*time.Second)
	v.SetDefault("region_delete_after_deleted_time", 86400*time.Second)
	v.SetDefault("store_heartbeat_report_region_multiple", 3)
	v.SetDefault("enable_balance_leader", false)
	v.SetDefault("enable_balance_region", false)
	v.SetDefault("raft_snapshot_policy", "dingo")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)
	v.SetDefault("metrics_addr", ":9100")
	v.SetDefault("data_dir", "./data")
}

// BindFlags registers every config key as a persistent pflag on cmd, so
// each can be set on the command line.
func BindFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.Duration("executor-heartbeat-timeout", 30*time.Second, "Time since last contact before a worker is considered unhealthy")
	flags.Duration("executor-delete-after-heartbeat-timeout", 300*time.Second, "Time past the heartbeat timeout before an unhealthy worker is forgotten")
	flags.Duration("store-heartbeat-timeout", 30*time.Second, "Time since last store heartbeat before a store is considered unhealthy")
	flags.Duration("region-heartbeat-timeout", 30*time.Second, "Time since last region heartbeat before a region is considered unhealthy")
	flags.Duration("region-delete-after-deleted-time", 86400*time.Second, "Time a tombstoned region is retained before garbage collection")
	flags.Int64("store-heartbeat-report-region-multiple", 3, "Report region metrics on every Nth full store heartbeat")
	flags.Bool("enable-balance-leader", false, "Enable periodic region leader rebalancing")
	flags.Bool("enable-balance-region", false, "Enable periodic region placement rebalancing")
	flags.String("raft-snapshot-policy", "dingo", "Snapshot epoch policy applied to reported region metrics")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.Bool("log-json", false, "Output logs in JSON format")
	flags.String("metrics-addr", ":9100", "Address the Prometheus metrics server listens on")
	flags.String("data-dir", "./data", "Directory holding the local store-view and raft state")
}

// Load builds a Config by layering, lowest to highest priority: built-in
// defaults, an optional YAML config file, DINGO_-prefixed environment
// variables, then flags explicitly set on cmd.
func Load(cmd *cobra.Command, configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("DINGO")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read config file: %w", err)
		}
	} else {
		v.SetConfigName("dingo-executor")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("config: read config file: %w", err)
			}
		}
	}

	if cmd != nil {
		if err := bindFlagKeys(v, cmd.PersistentFlags()); err != nil {
			return nil, fmt.Errorf("config: bind flags: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}
