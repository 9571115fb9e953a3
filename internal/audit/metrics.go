package audit

import "github.com/prometheus/client_golang/prometheus"

var (
	probesInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Subsystem: "restartcheck",
		Name:      "probes_in_flight",
		Help:      "Number of node probes currently executing.",
	})
	probePeakInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Subsystem: "restartcheck",
		Name:      "probe_peak_in_flight",
		Help:      "Highest number of probes observed executing at once.",
	})
	checkResultsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "restartcheck",
		Name:      "check_results_total",
		Help:      "Check results produced, by outcome.",
	}, []string{"outcome"})
	clusterFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "restartcheck",
		Name:      "cluster_failures_total",
		Help:      "Clusters whose discovery failed, by stage.",
	}, []string{"stage"})
	pendingRestartNodes = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Subsystem: "restartcheck",
		Name:      "pending_restart_nodes",
		Help:      "Nodes reporting a pending restart, by cluster.",
	}, []string{"cluster"})
)

func init() {
	prometheus.MustRegister(probesInFlight)
	prometheus.MustRegister(probePeakInFlight)
	prometheus.MustRegister(checkResultsTotal)
	prometheus.MustRegister(clusterFailuresTotal)
	prometheus.MustRegister(pendingRestartNodes)
}
