package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var pollCycles = promauto.NewCounter(prometheus.CounterOpts{
	Name: "quotebot_poll_cycles",
	Help: "Number of poll cycles started",
})

var pollErrors = promauto.NewCounter(prometheus.CounterOpts{
	Name: "quotebot_poll_errors",
	Help: "Number of poll cycles that failed to fetch the mention window",
})

var mentionsFetched = promauto.NewCounter(prometheus.CounterOpts{
	Name: "quotebot_mentions_fetched",
	Help: "Number of candidate mention events returned by poll fetches",
})

var lastPollTime = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "quotebot_last_poll_time",
	Help: "Unix timestamp of the last successful poll fetch",
})
