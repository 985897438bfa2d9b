package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config wraps a viper instance and provides typed accessors for every
// configuration key. Create one via New().
type Config struct {
	v *viper.Viper
}

// New initialises a Config by loading values from environment
// variables, the config file, and compiled defaults (in that priority
// order; CLI flags, bound later via BindFlags, take highest priority).
func New() (*Config, error) {
	v := viper.New()

	for _, o := range Options {
		v.SetDefault(o.Key, o.Default)
	}

	// Attempt to load a config file from the current directory or
	// the system-wide location.
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/ddb/")

	if err := v.ReadInConfig(); err != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if !(errors.As(err, &notFoundErr) || errors.Is(err, os.ErrNotExist)) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Environment variables are prefixed with DDB_ and use underscores
	// in place of dots (e.g. DDB_TRACKER_SHARD_COUNT).
	v.SetEnvPrefix("DDB")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	return &Config{v: v}, nil
}

// BindFlags registers CLI flags for the given option slice and binds
// them to the underlying viper keys so that flag values override file
// and environment sources.
func (c *Config) BindFlags(fs *pflag.FlagSet, options []Option) error {
	for _, o := range options {
		switch v := o.Default.(type) {
		case string:
			fs.String(o.Flag, v, o.Description)
		case int:
			fs.Int(o.Flag, v, o.Description)
		case bool:
			fs.Bool(o.Flag, v, o.Description)
		case []string:
			fs.StringSlice(o.Flag, v, o.Description)
		case time.Duration:
			fs.Duration(o.Flag, v, o.Description)
		default:
			return fmt.Errorf("unsupported flag type for key: %s", o.Key)
		}

		if err := c.v.BindPFlag(o.Key, fs.Lookup(o.Flag)); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", o.Flag, err)
		}
	}

	return nil
}

// ---------------------------------------------------------------------------
// HTTP read surface / tunnel
// ---------------------------------------------------------------------------

// ListenAddress returns the HTTP listen address for the read surface.
func (c *Config) ListenAddress() string {
	return c.v.GetString(keyListenAddress)
}

// ListenAllowedOrigins returns the list of allowed CORS origins.
func (c *Config) ListenAllowedOrigins() []string {
	return c.v.GetStringSlice(keyListenAllowedOrigins)
}

// TunnelAddress returns the listen address for the chisel tunnel
// server that debuggee hosts reverse-connect to.
func (c *Config) TunnelAddress() string {
	return c.v.GetString(keyTunnelAddress)
}

// TunnelKeySeed returns the seed used to derive the tunnel server's
// SSH host key.
func (c *Config) TunnelKeySeed() string {
	return c.v.GetString(keyTunnelKeySeed)
}

// ---------------------------------------------------------------------------
// Discovery
// ---------------------------------------------------------------------------

// DiscoveryBackend returns which discovery producer to run: "static",
// "mqtt", or "kubernetes".
func (c *Config) DiscoveryBackend() string {
	return c.v.GetString(keyDiscoveryBackend)
}

// DiscoveryMQTTBrokerURL returns the MQTT broker URL.
func (c *Config) DiscoveryMQTTBrokerURL() string {
	return c.v.GetString(keyDiscoveryMQTTBrokerURL)
}

// DiscoveryMQTTClientID returns the MQTT client id.
func (c *Config) DiscoveryMQTTClientID() string {
	return c.v.GetString(keyDiscoveryMQTTClientID)
}

// DiscoveryMQTTTopic returns the MQTT discovery topic.
func (c *Config) DiscoveryMQTTTopic() string {
	return c.v.GetString(keyDiscoveryMQTTTopic)
}

// DiscoveryKubernetesNamespace returns the namespace watched by the
// kubernetes discovery backend.
func (c *Config) DiscoveryKubernetesNamespace() string {
	return c.v.GetString(keyDiscoveryKubernetesNamespace)
}

// DiscoveryKubernetesLabelSelector returns the pod label selector.
func (c *Config) DiscoveryKubernetesLabelSelector() string {
	return c.v.GetString(keyDiscoveryKubernetesSelector)
}

// DiscoveryKubernetesHashLabel returns the pod label carrying the
// binary content hash.
func (c *Config) DiscoveryKubernetesHashLabel() string {
	return c.v.GetString(keyDiscoveryKubernetesHashLabel)
}

// DiscoveryKubernetesAliasLabel returns the pod label carrying the
// human-readable alias.
func (c *Config) DiscoveryKubernetesAliasLabel() string {
	return c.v.GetString(keyDiscoveryKubernetesAlias)
}

// ---------------------------------------------------------------------------
// Tracker / proclet controller
// ---------------------------------------------------------------------------

// TrackerShardCount returns the number of session-sharded tracker
// worker goroutines.
func (c *Config) TrackerShardCount() int {
	return c.v.GetInt(keyTrackerShardCount)
}

// TrackerInterruptTimeout returns the deadline for a parent session to
// reach all-threads-stopped during a distributed backtrace.
func (c *Config) TrackerInterruptTimeout() time.Duration {
	return c.v.GetDuration(keyTrackerInterruptTimeout)
}

// TrackerInterruptPoll returns the poll interval used while waiting
// for all-threads-stopped.
func (c *Config) TrackerInterruptPoll() time.Duration {
	return c.v.GetDuration(keyTrackerInterruptPoll)
}

// ProcletControllerAddress returns the proclet controller RPC address.
func (c *Config) ProcletControllerAddress() string {
	return c.v.GetString(keyProcletControllerAddr)
}
