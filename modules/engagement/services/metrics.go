package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/stafflink/engage-sdk/modules/engagement/domain/changerequest"
)

var (
	engagementTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "engagement",
		Subsystem: "workflow",
		Name:      "transitions_total",
		Help:      "Total number of change-request workflow actions broken down by action and result.",
	}, []string{"action", "result"})

	engagementWriteConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "engagement",
		Subsystem: "write",
		Name:      "conflicts_total",
		Help:      "Total number of engagement write conflicts broken down by kind.",
	}, []string{"kind"})

	engagementPermissionDenials = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "engagement",
		Subsystem: "gate",
		Name:      "denials_total",
		Help:      "Total number of permission denials broken down by reason.",
	}, []string{"reason"})
)

func recordTransition(action changerequest.Action, result string) {
	engagementTransitions.WithLabelValues(string(action), result).Inc()
}

func recordWriteConflict(kind string) {
	if kind == "" {
		kind = "other"
	}
	engagementWriteConflicts.WithLabelValues(kind).Inc()
}

func recordPermissionDenial(reason string) {
	engagementPermissionDenials.WithLabelValues(reason).Inc()
}
