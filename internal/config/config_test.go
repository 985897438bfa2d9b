package config

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestNewDefaults(t *testing.T) {
	c, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if got := c.ListenAddress(); got != ":8299" {
		t.Errorf("ListenAddress() = %q, want %q", got, ":8299")
	}
	if got := c.TunnelAddress(); got != ":8300" {
		t.Errorf("TunnelAddress() = %q, want %q", got, ":8300")
	}
	if got := c.DiscoveryBackend(); got != "static" {
		t.Errorf("DiscoveryBackend() = %q, want %q", got, "static")
	}
	if got := c.TrackerShardCount(); got != 8 {
		t.Errorf("TrackerShardCount() = %d, want 8", got)
	}
	if got := c.TrackerInterruptTimeout(); got != time.Second {
		t.Errorf("TrackerInterruptTimeout() = %v, want 1s", got)
	}
}

func TestNewEnvOverride(t *testing.T) {
	t.Setenv("DDB_TRACKER_SHARD_COUNT", "16")
	t.Setenv("DDB_DISCOVERY_BACKEND", "mqtt")

	c, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if got := c.TrackerShardCount(); got != 16 {
		t.Errorf("TrackerShardCount() = %d, want 16", got)
	}
	if got := c.DiscoveryBackend(); got != "mqtt" {
		t.Errorf("DiscoveryBackend() = %q, want %q", got, "mqtt")
	}
}

func TestBindFlagsOverridesDefault(t *testing.T) {
	c, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	if err := c.BindFlags(fs, Options); err != nil {
		t.Fatalf("BindFlags() error = %v", err)
	}

	if err := fs.Parse([]string{"--listen-address", ":9000", "--tracker-shard-count", "4"}); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if got := c.ListenAddress(); got != ":9000" {
		t.Errorf("ListenAddress() = %q, want %q", got, ":9000")
	}
	if got := c.TrackerShardCount(); got != 4 {
		t.Errorf("TrackerShardCount() = %d, want 4", got)
	}
}

func TestBindFlagsRejectsUnsupportedType(t *testing.T) {
	c, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	bad := []Option{{Key: "bad.key", Flag: "bad-key", Default: 3.14, Description: "unsupported"}}
	if err := c.BindFlags(fs, bad); err == nil {
		t.Fatal("BindFlags() error = nil, want error for unsupported flag type")
	}
}
