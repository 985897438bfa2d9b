// Package config provides unified configuration loading from files,
// environment variables, and CLI flags using viper and pflag.
//
// Resolution order (highest wins):
//  1. CLI flags
//  2. Environment variables (prefix DDB_)
//  3. Config file (config.yaml in . or /etc/ddb/)
//  4. Compiled defaults
package config

// Viper keys for the coordinator's HTTP read surface and tunnel.
const (
	keyListenAddress        = "listen.address"
	keyListenAllowedOrigins = "listen.allowed_origins"
	keyTunnelAddress        = "tunnel.address"
	keyTunnelKeySeed        = "tunnel.key_seed"
)

// Viper keys for service discovery.
const (
	keyDiscoveryBackend             = "discovery.backend"
	keyDiscoveryMQTTBrokerURL       = "discovery.mqtt.broker_url"
	keyDiscoveryMQTTClientID        = "discovery.mqtt.client_id"
	keyDiscoveryMQTTTopic           = "discovery.mqtt.topic"
	keyDiscoveryKubernetesNamespace = "discovery.kubernetes.namespace"
	keyDiscoveryKubernetesSelector  = "discovery.kubernetes.label_selector"
	keyDiscoveryKubernetesHashLabel = "discovery.kubernetes.hash_label"
	keyDiscoveryKubernetesAlias     = "discovery.kubernetes.alias_label"
)

// Viper keys for the command tracker and the proclet controller client.
const (
	keyTrackerShardCount       = "tracker.shard_count"
	keyTrackerInterruptTimeout = "tracker.interrupt_timeout"
	keyTrackerInterruptPoll    = "tracker.interrupt_poll"
	keyProcletControllerAddr   = "proclet.controller_address"
)
