// Package metrics holds the application's Prometheus collectors. Collectors
// are registered on the default registry at init and served by the HTTP
// kernel at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MessagesSent counts user messages accepted into the store, per room.
	MessagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chattersphere",
		Name:      "messages_sent_total",
		Help:      "User messages written to the message store.",
	}, []string{"room"})

	// BotReplies counts bot replies by the pipeline stage that produced them.
	BotReplies = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chattersphere",
		Name:      "bot_replies_total",
		Help:      "Bot replies written, labelled by source stage.",
	}, []string{"room", "source"})

	// BotGenerationFailures counts generative calls that fell back to a
	// canned response.
	BotGenerationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "chattersphere",
		Name:      "bot_generation_failures_total",
		Help:      "Generative text calls that failed and used the canned fallback.",
	})

	// ConnectedClients tracks live websocket connections per room.
	ConnectedClients = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "chattersphere",
		Name:      "connected_clients",
		Help:      "Currently connected websocket clients.",
	}, []string{"room"})

	// PresenceOnline tracks users currently online per room.
	PresenceOnline = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "chattersphere",
		Name:      "presence_online_users",
		Help:      "Users currently marked online.",
	}, []string{"room"})
)
