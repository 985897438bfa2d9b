package config

import (
	"strings"
	"time"
)

// Option describes a single configuration entry: its viper key, the
// corresponding CLI flag name, the compiled default, and a
// human-readable description shown in --help output.
type Option struct {
	Key         string
	Flag        string
	Default     any
	Description string
}

// Options defines every configuration entry the coordinator accepts.
// Each entry is registered as a viper default and a CLI flag on the
// "serve" subcommand.
var Options = []Option{
	{Key: keyListenAddress, Flag: toFlag(keyListenAddress), Default: ":8299", Description: "HTTP read-surface listen address"},
	{Key: keyListenAllowedOrigins, Flag: toFlag(keyListenAllowedOrigins), Default: []string{}, Description: "Allowed CORS origins for the HTTP read surface"},
	{Key: keyTunnelAddress, Flag: toFlag(keyTunnelAddress), Default: ":8300", Description: "Reverse tunnel listen address"},
	{Key: keyTunnelKeySeed, Flag: toFlag(keyTunnelKeySeed), Default: "change-me", Description: "Seed for the tunnel server's SSH host key"},

	{Key: keyDiscoveryBackend, Flag: toFlag(keyDiscoveryBackend), Default: "static", Description: "Discovery backend: static, mqtt, or kubernetes"},
	{Key: keyDiscoveryMQTTBrokerURL, Flag: toFlag(keyDiscoveryMQTTBrokerURL), Default: "tcp://127.0.0.1:1883", Description: "MQTT broker URL for the mqtt discovery backend"},
	{Key: keyDiscoveryMQTTClientID, Flag: toFlag(keyDiscoveryMQTTClientID), Default: "ddb-coordinator", Description: "MQTT client id"},
	{Key: keyDiscoveryMQTTTopic, Flag: toFlag(keyDiscoveryMQTTTopic), Default: "ddb/discovery", Description: "MQTT discovery topic"},
	{Key: keyDiscoveryKubernetesNamespace, Flag: toFlag(keyDiscoveryKubernetesNamespace), Default: "default", Description: "Namespace watched by the kubernetes discovery backend"},
	{Key: keyDiscoveryKubernetesSelector, Flag: toFlag(keyDiscoveryKubernetesSelector), Default: "ddb.io/debuggee=true", Description: "Label selector for debuggee pods"},
	{Key: keyDiscoveryKubernetesHashLabel, Flag: toFlag(keyDiscoveryKubernetesHashLabel), Default: "ddb.io/hash", Description: "Pod label carrying the binary content hash"},
	{Key: keyDiscoveryKubernetesAlias, Flag: toFlag(keyDiscoveryKubernetesAlias), Default: "ddb.io/alias", Description: "Pod label carrying the human-readable alias"},

	{Key: keyTrackerShardCount, Flag: toFlag(keyTrackerShardCount), Default: 8, Description: "Number of session-sharded tracker worker goroutines"},
	{Key: keyTrackerInterruptTimeout, Flag: toFlag(keyTrackerInterruptTimeout), Default: time.Second, Description: "Deadline for a parent session to reach all-threads-stopped during a distributed backtrace"},
	{Key: keyTrackerInterruptPoll, Flag: toFlag(keyTrackerInterruptPoll), Default: 10 * time.Millisecond, Description: "Poll interval while waiting for all-threads-stopped"},
	{Key: keyProcletControllerAddr, Flag: toFlag(keyProcletControllerAddr), Default: "127.0.0.1:9000", Description: "Proclet controller RPC address"},
}

// toFlag converts a viper key like "tracker.shard_count" into a CLI
// flag like "tracker-shard-count" by lower-casing and replacing dots
// and underscores with hyphens.
func toFlag(key string) string {
	flag := strings.ToLower(key)
	flag = strings.ReplaceAll(flag, ".", "-")
	flag = strings.ReplaceAll(flag, "_", "-")
	return flag
}
