// Package audit implements the fleet audit pipeline: cluster discovery,
// bounded parallel node probing, result collection and run summaries.
package audit

import "time"

// Limits for the run configuration. Out-of-range values are rejected before
// any probe is dispatched.
const (
	MinThrottleLimit     = 1
	MaxThrottleLimit     = 50
	DefaultThrottleLimit = 10

	MinProbeTimeout     = 5 * time.Second
	MaxProbeTimeout     = 300 * time.Second
	DefaultProbeTimeout = 30 * time.Second
)

// ClusterTarget identifies one cluster to audit. Targets come from the run
// input (arguments or a clusters file) and are consumed once per run.
type ClusterTarget struct {
	Name string
}

// NodeTarget is one discovered member node of a cluster. MembershipState is
// an opaque label from the directory (e.g. "Up", "Paused") that is carried
// through to the report unchanged; the pipeline never interprets it.
type NodeTarget struct {
	Name            string
	Address         string
	ClusterName     string
	MembershipState string
}

// ProbeAddress returns the address probes should dial: the discovery-provided
// address when present, the node name otherwise.
func (n NodeTarget) ProbeAddress() string {
	if n.Address != "" {
		return n.Address
	}
	return n.Name
}

// CheckResult is one row of the final report. Exactly one exists per
// discovered node, plus one synthetic row per cluster whose discovery
// failed, so no node and no failure is ever silently dropped.
//
// PendingRestart and MsiInstallationInProgress are nil exactly when the
// check never produced an answer, i.e. when CheckSucceeded is false.
type CheckResult struct {
	ClusterName               string
	ComputerName              string
	NodeState                 string
	PendingRestart            *bool
	MsiInstallationInProgress *bool
	Reasons                   []string
	CheckSucceeded            bool
	Diagnostic                string
}

// RunSummary holds the run-level counters, computed once over the final
// result set and never mutated afterwards.
type RunSummary struct {
	Total          int
	Succeeded      int
	Failed         int
	PendingRestart int
}

// Summarize computes the run counters for a finished result set.
func Summarize(results []CheckResult) RunSummary {
	s := RunSummary{Total: len(results)}
	for _, r := range results {
		if r.CheckSucceeded {
			s.Succeeded++
		} else {
			s.Failed++
		}
		if r.PendingRestart != nil && *r.PendingRestart {
			s.PendingRestart++
		}
	}
	return s
}
