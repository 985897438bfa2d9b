// Package discovery implements the pluggable service-discovery ingress
// that feeds new debugger sessions into the coordinator: a static list
// for manual testing, an MQTT-based producer for the original broker
// protocol, and a Kubernetes Pod-watch producer (spec.md §4.1, §6).
package discovery

import "context"

// ServiceInfo is what a DiscoveryProducer reports about a newly-seen
// debuggee process: enough to register a Session and, once connected,
// correlate it against the ServiceMeta surfaced on the HTTP read API.
type ServiceInfo struct {
	IP       string
	Tag      string
	PID      uint64
	Hash     string // content hash identifying the running binary (group identity)
	Alias    string
	UserData map[string]string
}

// Producer emits ServiceInfo events for debuggee processes as they
// appear, until ctx is canceled.
type Producer interface {
	// Run blocks, delivering ServiceInfo values to onDiscover as they
	// arrive, until ctx is canceled or an unrecoverable error occurs.
	Run(ctx context.Context, onDiscover func(ServiceInfo)) error
}
