package audit

import (
	"log/slog"

	"github.com/restartcheck/restartcheck/internal/probe"
)

// Collector resolves probe handles into report rows. It is the only writer
// of the accumulated result list, so no locking is needed around it.
type Collector struct {
	logger *slog.Logger
}

// NewCollector returns a collector logging through logger.
func NewCollector(logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{logger: logger}
}

// Collect resolves every job in submission order and returns one row per
// job. A slow early probe delays rows queued behind it; the report content
// does not depend on resolution order.
func (c *Collector) Collect(jobs []ProbeJob) []CheckResult {
	results := make([]CheckResult, 0, len(jobs))
	for _, job := range jobs {
		results = append(results, c.Resolve(job.Handle, job.Node))
	}
	return results
}

// Resolve blocks until the handle's probe finished and converts the answer
// into a report row. A probe error yields a row with CheckSucceeded false
// and both state fields null; states are never invented for failed checks.
func (c *Collector) Resolve(h *Handle, node NodeTarget) CheckResult {
	out := <-h.done
	if out.err != nil {
		checkResultsTotal.WithLabelValues("failed").Inc()
		c.logger.Error("node check failed",
			"cluster", node.ClusterName, "node", node.Name, "error", out.err)
		return CheckResult{
			ClusterName:    node.ClusterName,
			ComputerName:   node.Name,
			NodeState:      node.MembershipState,
			CheckSucceeded: false,
			Diagnostic:     probe.Describe(out.err),
		}
	}
	checkResultsTotal.WithLabelValues("succeeded").Inc()
	c.logger.Debug("node check finished",
		"cluster", node.ClusterName, "node", node.Name,
		"pendingRestart", out.result.PendingRestart)
	pending := out.result.PendingRestart
	msi := out.result.MsiInstallationInProgress
	return CheckResult{
		ClusterName:               node.ClusterName,
		ComputerName:              node.Name,
		NodeState:                 node.MembershipState,
		PendingRestart:            &pending,
		MsiInstallationInProgress: &msi,
		Reasons:                   out.result.Reasons,
		CheckSucceeded:            true,
	}
}
