package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 点击结果标签
const (
	ClickAllowed = "allowed"
	ClickBlocked = "blocked"
)

// 转化入库结果标签
const (
	OutcomeCreated    = "created"
	OutcomeDuplicate  = "duplicate"
	OutcomeUnresolved = "unresolved"
	OutcomeError      = "error"
)

var (
	clicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tipster_clicks_total",
			Help: "Total number of redirect clicks recorded",
		},
		[]string{"result"},
	)

	conversionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tipster_conversions_total",
			Help: "Total number of conversion signals by channel and outcome",
		},
		[]string{"channel", "outcome"},
	)

	payoutsGenerated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tipster_payouts_generated_total",
			Help: "Total number of payouts created",
		},
	)

	geoLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tipster_geo_lookups_total",
			Help: "Country lookups by resolving source",
		},
		[]string{"source"},
	)
)

// ObserveClick 记录一次点击
func ObserveClick(result string) {
	clicksTotal.WithLabelValues(result).Inc()
}

// ObserveConversion 记录一次转化信号
func ObserveConversion(channel, outcome string) {
	conversionsTotal.WithLabelValues(channel, outcome).Inc()
}

// AddPayoutsGenerated 累加生成的结算单数量
func AddPayoutsGenerated(count int) {
	if count <= 0 {
		return
	}
	payoutsGenerated.Add(float64(count))
}

// ObserveGeoLookup 记录国家识别来源
func ObserveGeoLookup(source string) {
	geoLookups.WithLabelValues(source).Inc()
}

// Handler 暴露 prometheus 指标
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
