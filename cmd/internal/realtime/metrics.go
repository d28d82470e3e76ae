package realtime

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the gateway's Prometheus instruments. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	connections   prometheus.Gauge
	rooms         prometheus.Gauge
	inbound       *prometheus.CounterVec
	movesRejected prometheus.Counter
	dropped       prometheus.Counter
}

// NewMetrics builds the instruments and registers them with reg when it is
// non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "plaza", Subsystem: "ws", Name: "connections",
			Help: "Open realtime connections.",
		}),
		rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "plaza", Subsystem: "ws", Name: "rooms",
			Help: "Rooms with at least one member.",
		}),
		inbound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "plaza", Subsystem: "ws", Name: "inbound_messages_total",
			Help: "Inbound frames by message type.",
		}, []string{"type"}),
		movesRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "plaza", Subsystem: "ws", Name: "moves_rejected_total",
			Help: "MOVE requests that failed the adjacency or bounds check.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "plaza", Subsystem: "ws", Name: "dropped_messages_total",
			Help: "Outbound frames dropped because a peer's send buffer was full.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.connections, m.rooms, m.inbound, m.movesRejected, m.dropped)
	}
	return m
}

func (m *Metrics) connOpened() {
	if m != nil {
		m.connections.Inc()
	}
}

func (m *Metrics) connClosed() {
	if m != nil {
		m.connections.Dec()
	}
}

func (m *Metrics) setRooms(n int) {
	if m != nil {
		m.rooms.Set(float64(n))
	}
}

func (m *Metrics) received(typ string) {
	if m != nil {
		m.inbound.WithLabelValues(typ).Inc()
	}
}

func (m *Metrics) moveRejected() {
	if m != nil {
		m.movesRejected.Inc()
	}
}

func (m *Metrics) droppedFrame() {
	if m != nil {
		m.dropped.Inc()
	}
}
