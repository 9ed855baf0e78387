package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var uptimeSeconds = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "mxcp_uptime_seconds",
	Help: "Seconds since the server process started.",
})

// MetricsManager exposes the process-wide Prometheus registry over HTTP and
// keeps the uptime gauge fresh. Request counters and histograms register
// themselves from the packages that own them.
type MetricsManager struct {
	logger  *zap.Logger
	started time.Time
	done    chan struct{}
}

// NewMetricsManager starts the uptime updater.
func NewMetricsManager(logger *zap.Logger) *MetricsManager {
	mm := &MetricsManager{
		logger:  logger,
		started: time.Now(),
		done:    make(chan struct{}),
	}
	go mm.updateUptime()
	return mm
}

// Handler serves the default registry in Prometheus exposition format.
func (mm *MetricsManager) Handler() http.Handler {
	return promhttp.Handler()
}

// Close stops the uptime updater.
func (mm *MetricsManager) Close() {
	close(mm.done)
}

func (mm *MetricsManager) updateUptime() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	uptimeSeconds.Set(0)
	for {
		select {
		case <-mm.done:
			return
		case <-ticker.C:
			uptimeSeconds.Set(time.Since(mm.started).Seconds())
		}
	}
}
