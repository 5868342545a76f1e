package lrcp

import "github.com/prometheus/client_golang/prometheus"

// Metrics is the set of Router-wide counters and gauges exposed on
// /metrics. A nil *Metrics is safe to use everywhere below: Router can
// be constructed without metrics wiring (e.g. in tests) and every
// method becomes a no-op.
type Metrics struct {
	SessionsOpened     prometheus.Counter
	SessionsClosed     prometheus.Counter
	SessionsActive     prometheus.Gauge
	Retransmits        prometheus.Counter
	ProtocolViolations prometheus.Counter
	BytesReceived      prometheus.Counter
	BytesSent          prometheus.Counter
}

// NewMetrics registers a fresh set of LRCP collectors against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SessionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lrcp_sessions_opened_total",
			Help: "Total LRCP sessions accepted.",
		}),
		SessionsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lrcp_sessions_closed_total",
			Help: "Total LRCP sessions torn down.",
		}),
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lrcp_sessions_active",
			Help: "LRCP sessions currently open.",
		}),
		Retransmits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lrcp_retransmits_total",
			Help: "Total data messages retransmitted.",
		}),
		ProtocolViolations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lrcp_protocol_violations_total",
			Help: "Total malformed or out-of-protocol datagrams dropped.",
		}),
		BytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lrcp_bytes_received_total",
			Help: "Total application bytes delivered from peers.",
		}),
		BytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lrcp_bytes_sent_total",
			Help: "Total application bytes delivered to peers.",
		}),
	}
	reg.MustRegister(
		m.SessionsOpened, m.SessionsClosed, m.SessionsActive,
		m.Retransmits, m.ProtocolViolations, m.BytesReceived, m.BytesSent,
	)
	return m
}

func (m *Metrics) sessionOpened() {
	if m == nil {
		return
	}
	m.SessionsOpened.Inc()
	m.SessionsActive.Inc()
}

func (m *Metrics) sessionClosed() {
	if m == nil {
		return
	}
	m.SessionsClosed.Inc()
	m.SessionsActive.Dec()
}

func (m *Metrics) retransmit() {
	if m == nil {
		return
	}
	m.Retransmits.Inc()
}

func (m *Metrics) violation() {
	if m == nil {
		return
	}
	m.ProtocolViolations.Inc()
}

func (m *Metrics) bytesReceived(n int) {
	if m == nil {
		return
	}
	m.BytesReceived.Add(float64(n))
}

func (m *Metrics) bytesSent(n int) {
	if m == nil {
		return
	}
	m.BytesSent.Add(float64(n))
}
