package metrics

import (
	"fmt"
	"net/http"

	"github.com/downfa11-org/journal/util"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func init() {
	prometheus.MustRegister(EntriesAppended, BytesAppended, AppendLatency, Rollovers, Truncations)
	prometheus.MustRegister(Compactions, Segments, InvalidFrames, RecoveryFailures)
}

func StartMetricsServer(port int) {
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		addr := fmt.Sprintf(":%d", port)
		util.Info("[METRICS] Prometheus exporter listening on %s", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			util.Error("[METRICS] Failed to start metrics server: %v", err)
		}
	}()
}
