package relaypool

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var connectCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "quotebot_relay_connects",
	Help: "Number of relay websocket connections dialed",
})

var queryCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "quotebot_relay_queries",
	Help: "Number of fan-out relay queries",
}, []string{"status"})

var eventsFetched = promauto.NewCounter(prometheus.CounterOpts{
	Name: "quotebot_relay_events_fetched",
	Help: "Number of deduplicated events returned by relay queries",
})

var publishCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "quotebot_relay_publishes",
	Help: "Number of per-relay publish attempts",
}, []string{"status"})
