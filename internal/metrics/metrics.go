package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every logguard metric plus the Go and process collectors
var Registry = prometheus.NewRegistry()

var (
	LogsGenerated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "logguard_logs_generated_total",
		Help: "Synthetic log rows written by the generator",
	}, []string{"attack_type"})

	LogsIngested = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "logguard_logs_ingested_total",
		Help: "Log rows inserted from ingested files",
	}, []string{"format"})

	DetectionRuns = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "logguard_detection_runs_total",
		Help: "Completed detection passes",
	})

	Classifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "logguard_classifications_total",
		Help: "Sources classified as active attackers",
	}, []string{"attack_type", "severity"})

	AlertsCreated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "logguard_alerts_created_total",
		Help: "Alerts raised for new or escalated patterns",
	}, []string{"severity"})

	APIRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "logguard_api_requests_total",
		Help: "Read API requests by route and status",
	}, []string{"route", "status"})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		LogsGenerated,
		LogsIngested,
		DetectionRuns,
		Classifications,
		AlertsCreated,
		APIRequests,
	)
}

// Handler serves the registry in the Prometheus exposition format
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}

// WriteTextfile writes the registry for the node_exporter textfile collector. An empty path is a no-op.
func WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, Registry)
}
