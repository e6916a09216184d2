package quote

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("quote")

var mentionsProcessed = promauto.NewCounter(prometheus.CounterOpts{
	Name: "quotebot_mentions_processed",
	Help: "Number of mentions handled end to end",
})

var mentionsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "quotebot_mentions_skipped",
	Help: "Number of mentions skipped without a reply, by reason",
}, []string{"reason"})

var repliesSent = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "quotebot_replies_sent",
	Help: "Number of replies published, by kind",
}, []string{"kind"})

var repliesSendFailed = promauto.NewCounter(prometheus.CounterOpts{
	Name: "quotebot_replies_send_failed",
	Help: "Number of replies no relay accepted",
})

var renderFailures = promauto.NewCounter(prometheus.CounterOpts{
	Name: "quotebot_render_failures",
	Help: "Number of mentions dropped because quote rendering failed",
})

var pipelineDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "quotebot_pipeline_duration_sec",
	Help:    "Time to fully handle one mention",
	Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
})
