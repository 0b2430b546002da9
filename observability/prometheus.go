package observability

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusObserver converts events into Prometheus counters.
type PrometheusObserver struct {
	events      *prometheus.CounterVec
	tripwires   *prometheus.CounterVec
	escalations *prometheus.CounterVec
	handoffs    *prometheus.CounterVec
}

// NewPrometheusObserver creates the collectors and registers them with reg.
// A nil registerer falls back to prometheus.DefaultRegisterer.
func NewPrometheusObserver(reg prometheus.Registerer, namespace string) (*PrometheusObserver, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "realtimemesh"
	}

	o := &PrometheusObserver{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Observability events by type and source.",
		}, []string{"type", "source"}),
		tripwires: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "guardrail_tripwires_total",
			Help:      "Guardrail tripwires by moderation category.",
		}, []string{"category"}),
		escalations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "escalations_total",
			Help:      "Supervisor escalations by outcome.",
		}, []string{"outcome"}),
		handoffs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handoffs_total",
			Help:      "Agent handoffs by target and source.",
		}, []string{"to", "source", "accepted"}),
	}

	for _, c := range []prometheus.Collector{o.events, o.tripwires, o.escalations, o.handoffs} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}
	return o, nil
}

func (o *PrometheusObserver) OnEvent(_ context.Context, event Event) {
	o.events.WithLabelValues(string(event.Type), event.Source).Inc()

	switch event.Type {
	case EventGuardrailTripped:
		o.tripwires.WithLabelValues(stringValue(event.Data, "category")).Inc()
	case EventEscalationCompleted:
		o.escalations.WithLabelValues("completed").Inc()
	case EventEscalationFailed:
		o.escalations.WithLabelValues("failed").Inc()
	case EventHandoffApplied:
		o.handoffs.WithLabelValues(stringValue(event.Data, "to"), stringValue(event.Data, "source"), "true").Inc()
	case EventHandoffRejected:
		o.handoffs.WithLabelValues(stringValue(event.Data, "to"), stringValue(event.Data, "source"), "false").Inc()
	}
}

func stringValue(data map[string]any, key string) string {
	if v, ok := data[key]; ok {
		return fmt.Sprint(v)
	}
	return ""
}
