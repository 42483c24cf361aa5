package cluster

import (
	"io"

	"github.com/VictoriaMetrics/metrics"

	"github.com/nodecluster/blobstore/pkg/metricsx"
	"github.com/nodecluster/blobstore/pkg/wire"
)

// Metrics holds the process-local counters for one node instance. It is
// exposed through an internal *metrics.Set rather than an HTTP handler,
// since this system has no HTTP surface.
type Metrics struct {
	set *metrics.Set

	DroppedInbound   *metrics.Counter
	DispatchFailures *metrics.Counter

	rxByKind [wire.Notify + 1]*metrics.Counter
	txByKind [wire.Notify + 1]*metrics.Counter
}

// NewMetrics builds a fresh metric set labeled with this node's role.
func NewMetrics(role wire.Role) *Metrics {
	set := metrics.NewSet()
	m := &Metrics{
		set:              set,
		DroppedInbound:   set.NewCounter(metricsx.FormatName("blobstore_packets_dropped_total", "role", role.String())),
		DispatchFailures: set.NewCounter(metricsx.FormatName("blobstore_dispatch_failures_total", "role", role.String())),
	}
	for k := wire.Kind(0); k <= wire.Notify; k++ {
		m.rxByKind[k] = set.GetOrCreateCounter(metricsx.FormatName("blobstore_packets_rx_total", "role", role.String(), "kind", k.String()))
		m.txByKind[k] = set.GetOrCreateCounter(metricsx.FormatName("blobstore_packets_tx_total", "role", role.String(), "kind", k.String()))
	}
	return m
}

func (m *Metrics) RxKind(k wire.Kind) {
	if k.Valid() {
		m.rxByKind[k].Inc()
	}
}

func (m *Metrics) TxKind(k wire.Kind) {
	if k.Valid() {
		m.txByKind[k].Inc()
	}
}

// WritePrometheus writes m's current values in Prometheus text exposition
// format to w. Nothing in this system serves it over HTTP; it exists so an
// operator or test can snapshot counters on demand.
func (m *Metrics) WritePrometheus(w io.Writer) {
	m.set.WritePrometheus(w)
}
