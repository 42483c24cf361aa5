// Package metricsx extends github.com/VictoriaMetrics/metrics with helpers
// for building labeled metric names.
package metricsx

import "strings"

// FormatName builds a `base{k1="v1",k2="v2",...}` metric name from base and
// an alternating key/value label list.
func FormatName(base string, kv ...string) string {
	var b strings.Builder
	b.WriteString(base)
	b.WriteByte('{')
	for i := 1; i < len(kv); i += 2 {
		if i > 1 {
			b.WriteByte(',')
		}
		b.WriteString(kv[i-1])
		b.WriteString("=\"")
		b.WriteString(kv[i])
		b.WriteByte('"')
	}
	b.WriteByte('}')
	return b.String()
}
