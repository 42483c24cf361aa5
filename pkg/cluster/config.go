package cluster

import (
	"fmt"
	"net"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Seconds is a duration read from the environment as a plain integer number
// of seconds (matching HEARTBEAT_INTERVAL_SECOND / TIMEOUT_CHANNEL_WAIT in
// the external interface), rather than a Go duration string.
type Seconds time.Duration

func (s Seconds) Duration() time.Duration { return time.Duration(s) }

// Config holds every environment variable a node role reads at startup. The
// env struct tag gives the variable name and a default value, following the
// "?=" convention: a plain "=" supplies a default used when the variable is
// missing or set to empty, while "?=" allows the variable to be explicitly
// set to empty. A tag with no default marks a required variable.
type Config struct {
	// IPv4 address of the DNS node.
	DNSIP string `env:"IP_DNS"`

	// Listen port of the DNS node.
	DNSPort uint16 `env:"PORT_DNS"`

	// Default Master listen port, used by cmd/clusterd when --role=master
	// and --port was left at its generic default, so the Master's
	// advertised address does not have to collide with the shared
	// --port flag default used by every other role.
	MasterPort uint16 `env:"MASTER_PORT=7000"`

	// Interval between Master heartbeat broadcasts to Data nodes.
	HeartbeatInterval Seconds `env:"HEARTBEAT_INTERVAL_SECOND=5"`

	// Bounded-wait timeout for a processor's inbound channel receive. This
	// also doubles as the Master's heartbeat-tick clock (see the processor
	// design).
	ChannelWaitTimeout Seconds `env:"TIMEOUT_CHANNEL_WAIT=1"`

	// Minimum log level.
	LogLevel zerolog.Level `env:"LOG_LEVEL=info"`

	// Use zerolog's human-readable console writer instead of JSON.
	LogStdoutPretty bool `env:"LOG_STDOUT_PRETTY=false"`
}

// DNSAddr returns the configured DNS node address.
func (c *Config) DNSAddr() (net.IP, error) {
	ip := net.ParseIP(c.DNSIP).To4()
	if ip == nil {
		return nil, fmt.Errorf("cluster: invalid IP_DNS %q", c.DNSIP)
	}
	return ip, nil
}

// UnmarshalEnv unmarshals an array of "KEY=VALUE" environment entries into c,
// filling in default values for anything missing.
func (c *Config) UnmarshalEnv(es []string) error {
	em := map[string]string{}
	for _, e := range es {
		if k, v, ok := strings.Cut(e, "="); ok {
			em[k] = v
		}
	}

	cv := reflect.ValueOf(c).Elem()
	for _, ctf := range reflect.VisibleFields(cv.Type()) {
		env, ok := ctf.Tag.Lookup("env")
		if !ok {
			continue
		}

		var unsettable bool
		key, val, _ := strings.Cut(env, "=")
		if strings.HasSuffix(key, "?") {
			key = strings.TrimSuffix(key, "?")
			unsettable = true
		}

		if v, exists := em[key]; exists {
			if unsettable || v != "" {
				val = v
			}
		} else if val == "" {
			return fmt.Errorf("cluster: missing required environment variable %q", key)
		}

		cvf := cv.FieldByName(ctf.Name)
		switch cvf.Interface().(type) {
		case string:
			cvf.SetString(val)
		case uint16:
			v, err := strconv.ParseUint(val, 10, 16)
			if err != nil {
				return fmt.Errorf("cluster: env %s: parse %q: %w", key, val, err)
			}
			cvf.SetUint(v)
		case bool:
			if val == "" {
				cvf.SetBool(false)
				continue
			}
			v, err := strconv.ParseBool(val)
			if err != nil {
				return fmt.Errorf("cluster: env %s: parse %q: %w", key, val, err)
			}
			cvf.SetBool(v)
		case Seconds:
			v, err := strconv.ParseUint(val, 10, 64)
			if err != nil {
				return fmt.Errorf("cluster: env %s: parse %q: %w", key, val, err)
			}
			cvf.Set(reflect.ValueOf(Seconds(time.Duration(v) * time.Second)))
		case zerolog.Level:
			v, err := zerolog.ParseLevel(val)
			if err != nil {
				return fmt.Errorf("cluster: env %s: parse %q: %w", key, val, err)
			}
			cvf.Set(reflect.ValueOf(v))
		default:
			return fmt.Errorf("cluster: unhandled config field type %T for %s", cvf.Interface(), key)
		}
	}
	return nil
}
