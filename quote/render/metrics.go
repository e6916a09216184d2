package render

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("render")

var renderDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name: "quotebot_site_render_duration_sec",
	Help: "Duration of headless-browser quote renders",
})

var renderCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "quotebot_site_render_count",
	Help: "Number of headless-browser quote renders, by outcome",
}, []string{"status"})

var uploadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name: "quotebot_imgbb_upload_duration_sec",
	Help: "Duration of imgBB upload API calls",
})

var uploadCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "quotebot_imgbb_upload_count",
	Help: "Number of imgBB upload API calls, by HTTP status code",
}, []string{"status"})
