package audit

import (
	"context"
	"fmt"
	"log/slog"
)

// Directory resolves cluster names into their live member nodes. The two
// phases map to the two discovery failure modes the report distinguishes:
// a cluster that cannot be reached at all, and a cluster whose member list
// cannot be read.
type Directory interface {
	Connect(ctx context.Context, name string) (Cluster, error)
}

// Cluster is the handle to one connected cluster.
type Cluster interface {
	Nodes(ctx context.Context) ([]NodeTarget, error)
}

// Orchestrator walks the cluster list, submits every discovered node to the
// dispatcher and assembles the complete result set. Clusters are visited
// one at a time; parallelism lives in the node probes, where the fan-out is.
type Orchestrator struct {
	directory  Directory
	dispatcher *Dispatcher
	collector  *Collector
	logger     *slog.Logger
}

// NewOrchestrator wires the pipeline stages together.
func NewOrchestrator(directory Directory, dispatcher *Dispatcher, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		directory:  directory,
		dispatcher: dispatcher,
		collector:  NewCollector(logger),
		logger:     logger,
	}
}

// Run audits every cluster and returns one row per discovered node plus one
// synthetic row per cluster whose discovery failed. It always runs to
// completion: a failed cluster never stops the ones after it, and every
// submitted probe is resolved even when ctx is cancelled mid-run.
func (o *Orchestrator) Run(ctx context.Context, clusters []ClusterTarget) []CheckResult {
	results := make([]CheckResult, 0, len(clusters))
	var jobs []ProbeJob
	for i, target := range clusters {
		o.logger.Info("auditing cluster",
			"cluster", target.Name, "position", i+1, "clusters", len(clusters))
		cluster, err := o.directory.Connect(ctx, target.Name)
		if err != nil {
			clusterFailuresTotal.WithLabelValues("connect").Inc()
			o.logger.Error("cluster unavailable", "cluster", target.Name, "error", err)
			results = append(results, syntheticResult(target.Name, "cluster unavailable", err))
			continue
		}
		nodes, err := cluster.Nodes(ctx)
		if err != nil {
			clusterFailuresTotal.WithLabelValues("enumerate").Inc()
			o.logger.Error("node listing failed", "cluster", target.Name, "error", err)
			results = append(results, syntheticResult(target.Name, "nodes unavailable", err))
			continue
		}
		o.logger.Info("cluster enumerated", "cluster", target.Name, "nodes", len(nodes))
		for _, node := range nodes {
			jobs = append(jobs, ProbeJob{Node: node, Handle: o.dispatcher.Submit(node)})
		}
	}

	results = append(results, o.collector.Collect(jobs)...)
	updatePendingGauge(results)
	return results
}

// syntheticResult stands in for every node of a cluster that could not be
// audited. The parenthesised marker in ComputerName keeps the row visibly
// distinct from real nodes in the report.
func syntheticResult(cluster, marker string, err error) CheckResult {
	return CheckResult{
		ClusterName:    cluster,
		ComputerName:   fmt.Sprintf("%s (%s)", cluster, marker),
		CheckSucceeded: false,
		Diagnostic:     err.Error(),
	}
}

func updatePendingGauge(results []CheckResult) {
	counts := make(map[string]int)
	for _, r := range results {
		if r.PendingRestart != nil && *r.PendingRestart {
			counts[r.ClusterName]++
		} else if _, ok := counts[r.ClusterName]; !ok {
			counts[r.ClusterName] = 0
		}
	}
	for cluster, n := range counts {
		pendingRestartNodes.WithLabelValues(cluster).Set(float64(n))
	}
}
