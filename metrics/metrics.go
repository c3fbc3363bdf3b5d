package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Message metrics
var (
	MessagesScanned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "warden_messages_scanned_total",
		Help: "Number of messages run through the detector",
	})

	Violations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_violations_total",
		Help: "Number of messages flagged, by the text form that matched",
	}, []string{"form"})
)

// Enforcement metrics
var (
	Mutes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_mutes_total",
		Help: "Number of mutes applied, by source (auto or manual)",
	}, []string{"source"})

	Unmutes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_unmutes_total",
		Help: "Number of unmutes attempted, by source (timer or manual)",
	}, []string{"source"})

	PlatformErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_platform_errors_total",
		Help: "Number of failed platform actions",
	}, []string{"action"})
)

// Command metrics
var (
	Commands = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_commands_total",
		Help: "Number of moderator commands handled",
	}, []string{"command", "result"})
)
