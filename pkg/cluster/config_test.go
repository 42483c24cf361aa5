package cluster

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestUnmarshalEnvDefaults(t *testing.T) {
	var c Config
	err := c.UnmarshalEnv([]string{
		"IP_DNS=127.0.0.1",
		"PORT_DNS=6000",
	})
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if c.DNSIP != "127.0.0.1" || c.DNSPort != 6000 {
		t.Fatalf("unexpected dns config: %+v", c)
	}
	if c.HeartbeatInterval.Duration() != 5*time.Second {
		t.Fatalf("expected default heartbeat interval 5s, got %s", c.HeartbeatInterval.Duration())
	}
	if c.ChannelWaitTimeout.Duration() != time.Second {
		t.Fatalf("expected default channel wait timeout 1s, got %s", c.ChannelWaitTimeout.Duration())
	}
	if c.LogLevel != zerolog.InfoLevel {
		t.Fatalf("expected default log level info, got %s", c.LogLevel)
	}
}

func TestUnmarshalEnvOverrides(t *testing.T) {
	var c Config
	err := c.UnmarshalEnv([]string{
		"IP_DNS=10.0.0.1",
		"PORT_DNS=6001",
		"HEARTBEAT_INTERVAL_SECOND=30",
		"TIMEOUT_CHANNEL_WAIT=2",
		"LOG_LEVEL=debug",
		"LOG_STDOUT_PRETTY=true",
	})
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if c.HeartbeatInterval.Duration() != 30*time.Second {
		t.Fatalf("expected 30s heartbeat interval, got %s", c.HeartbeatInterval.Duration())
	}
	if c.ChannelWaitTimeout.Duration() != 2*time.Second {
		t.Fatalf("expected 2s channel wait timeout, got %s", c.ChannelWaitTimeout.Duration())
	}
	if c.LogLevel != zerolog.DebugLevel {
		t.Fatalf("expected debug log level, got %s", c.LogLevel)
	}
	if !c.LogStdoutPretty {
		t.Fatal("expected LogStdoutPretty true")
	}
}

func TestUnmarshalEnvMissingRequired(t *testing.T) {
	var c Config
	if err := c.UnmarshalEnv([]string{"PORT_DNS=6000"}); err == nil {
		t.Fatal("expected error for missing IP_DNS")
	}
}

func TestDNSAddrInvalid(t *testing.T) {
	c := Config{DNSIP: "not-an-ip"}
	if _, err := c.DNSAddr(); err == nil {
		t.Fatal("expected error for invalid IP_DNS")
	}
}
