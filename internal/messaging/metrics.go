// internal/messaging/metrics.go

package messaging

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	messagesPersisted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jootiya_chat_messages_persisted_total",
			Help: "Messages stored, by kind and whether the insert was a replay",
		},
		[]string{"kind", "replayed"},
	)

	readFlips = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "jootiya_chat_read_flips_total",
			Help: "Messages whose read_at went from null to set",
		},
	)

	eventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jootiya_chat_events_published_total",
			Help: "Realtime events published, by type and outcome",
		},
		[]string{"type", "outcome"},
	)

	wsConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "jootiya_chat_websocket_connections",
			Help: "Currently open websocket connections",
		},
	)

	wsSubscriptions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "jootiya_chat_websocket_subscriptions",
			Help: "Currently active conversation subscriptions",
		},
	)

	uploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jootiya_chat_uploads_total",
			Help: "Object uploads and deletions, by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	notificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jootiya_chat_offline_notifications_total",
			Help: "Offline notifications, by channel and outcome",
		},
		[]string{"channel", "outcome"},
	)
)

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
