package bridge

import "github.com/prometheus/client_golang/prometheus"

// metrics holds the Prometheus collectors a State reports through, grounded
// on vango-go-vango's use of prometheus/client_golang for request/latency
// instrumentation — generalized here from HTTP request counters to
// flush/call counters. Each State constructed with metrics enabled builds
// its own collectors and registers them against Options.MetricsRegistry
// (prometheus.DefaultRegisterer unless set), so programs that never touch
// bridge.Options.EnableMetrics never pay for it.
type metrics struct {
	flushesTotal   prometheus.Counter
	messagesSent   prometheus.Counter
	messagesRecv   prometheus.Counter
	callsOutbound  prometheus.Counter
	callsInbound   prometheus.Counter
	callDuration   prometheus.Histogram
	objectsCreated prometheus.Counter
	objectsClosed  prometheus.Counter
}

func newMetrics(reg prometheus.Registerer, namespace string) *metrics {
	m := &metrics{
		flushesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "flushes_total", Help: "Total number of outbound flush batches sent.",
		}),
		messagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "messages_sent_total", Help: "Total number of wire frames sent.",
		}),
		messagesRecv: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "messages_received_total", Help: "Total number of wire frames received.",
		}),
		callsOutbound: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "calls_outbound_total", Help: "Total number of method calls issued to the remote peer.",
		}),
		callsInbound: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "calls_inbound_total", Help: "Total number of method calls dispatched locally.",
		}),
		callDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "call_duration_seconds", Help: "Outbound call round-trip latency.",
			Buckets: prometheus.DefBuckets,
		}),
		objectsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "objects_created_total", Help: "Total number of objects admitted onto the wire.",
		}),
		objectsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "objects_closed_total", Help: "Total number of objects closed.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.flushesTotal, m.messagesSent, m.messagesRecv,
			m.callsOutbound, m.callsInbound, m.callDuration,
			m.objectsCreated, m.objectsClosed)
	}
	return m
}
