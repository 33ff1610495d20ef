package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/gelchrist-coder/gel-invent/internal/core/event"
	"github.com/gelchrist-coder/gel-invent/internal/core/service"
)

const namespace = "pos_offline"

// Metrics exports outbox and sync health. It implements service.SyncObserver.
type Metrics struct {
	pending     prometheus.Gauge
	submissions *prometheus.CounterVec
	passes      *prometheus.CounterVec
	online      prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "outbox_pending",
			Help:      "Sales waiting in the outbox for server confirmation.",
		}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Sale submissions to the remote service by result.",
		}, []string{"result"}),
		passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_passes_total",
			Help:      "Outbox drain passes by outcome.",
		}, []string{"outcome"}),
		online: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online",
			Help:      "1 while the terminal reports connectivity.",
		}),
	}
	reg.MustRegister(m.pending, m.submissions, m.passes, m.online)
	return m
}

// Watch keeps the gauges in line with bus transitions. pending is re-read on
// every outbox change. The returned func detaches the subscriptions.
func (m *Metrics) Watch(bus *event.Bus, pending func(context.Context) int, online bool) func() {
	m.pending.Set(float64(pending(context.Background())))
	m.setOnline(online)

	unsubscribe := []func(){
		bus.Subscribe(event.TopicOutboxChanged, func(event.Event) {
			m.pending.Set(float64(pending(context.Background())))
		}),
		bus.Subscribe(event.TopicOnline, func(event.Event) { m.setOnline(true) }),
		bus.Subscribe(event.TopicOffline, func(event.Event) { m.setOnline(false) }),
	}
	return func() {
		for _, fn := range unsubscribe {
			fn()
		}
	}
}

func (m *Metrics) SubmissionSucceeded() {
	m.submissions.WithLabelValues("success").Inc()
}

func (m *Metrics) SubmissionFailed() {
	m.submissions.WithLabelValues("failure").Inc()
}

func (m *Metrics) PassCompleted(result service.SyncResult) {
	switch {
	case result.Skipped:
		m.passes.WithLabelValues("skipped").Inc()
	case result.Err != nil:
		m.passes.WithLabelValues("stopped").Inc()
	default:
		m.passes.WithLabelValues("drained").Inc()
	}
}

func (m *Metrics) setOnline(online bool) {
	if online {
		m.online.Set(1)
		return
	}
	m.online.Set(0)
}
