// Package metrics holds the Prometheus collectors of the messenger core.
// Collectors work unregistered; Register exposes them on a registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bijoy"

var (
	MessagesAppended = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_appended_total",
		Help:      "Messages appended to conversation logs.",
	})

	AppendsBlocked = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_blocked_total",
		Help:      "Appends dropped because the conversation is blocked.",
	})

	Recordings = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "recordings_total",
		Help:      "Finished voice recordings by outcome.",
	}, []string{"outcome"})

	LiveSessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "live_sessions_active",
		Help:      "Live audio sessions not yet closed.",
	})

	LiveSessionsEnded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "live_sessions_ended_total",
		Help:      "Closed live audio sessions by whether they failed.",
	}, []string{"result"})

	UplinkFrames = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "live_uplink_frames_total",
		Help:      "Captured uplink frames by fate (sent or muted).",
	}, []string{"fate"})

	Interruptions = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "live_interruptions_total",
		Help:      "Interruption signals received from the conversational endpoint.",
	})
)

// Register adds every collector to reg
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		MessagesAppended,
		AppendsBlocked,
		Recordings,
		LiveSessionsActive,
		LiveSessionsEnded,
		UplinkFrames,
		Interruptions,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Handler serves the metrics of reg in the Prometheus text format
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
