package inbound

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	messagesAccepted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inbound_messages_accepted_total",
			Help: "Total number of submissions accepted by the inbound queue",
		})
	submissionsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inbound_submissions_rejected_total",
			Help: "Total number of submissions rejected by the inbound queue, by reason",
		}, []string{"reason"})
	relayersUnpaid = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inbound_relayers_unpaid_total",
			Help: "Total number of accepted submissions for which the fee account could not pay a reward",
		})
	operatingModeGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "inbound_operating_mode",
			Help: "Current operating mode of the inbound queue (0 = normal, 1 = halted)",
		})
)
