package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummarize(t *testing.T) {
	pTrue := true
	pFalse := false
	for _, tc := range []struct {
		it      string
		results []CheckResult
		want    RunSummary
	}{
		{
			it:   "empty run",
			want: RunSummary{},
		},
		{
			it: "counts pending and failed independently",
			results: []CheckResult{
				{CheckSucceeded: true, PendingRestart: &pTrue},
				{CheckSucceeded: true, PendingRestart: &pFalse},
				{CheckSucceeded: false},
			},
			want: RunSummary{Total: 3, Succeeded: 2, Failed: 1, PendingRestart: 1},
		},
		{
			it: "failed rows never count as pending",
			results: []CheckResult{
				{CheckSucceeded: false},
				{CheckSucceeded: false},
			},
			want: RunSummary{Total: 2, Failed: 2},
		},
	} {
		t.Run(tc.it, func(t *testing.T) {
			assert.Equal(t, tc.want, Summarize(tc.results))
		})
	}
}

func TestNodeTargetProbeAddress(t *testing.T) {
	withAddress := NodeTarget{Name: "n1", Address: "10.0.0.1"}
	assert.Equal(t, "10.0.0.1", withAddress.ProbeAddress())

	nameOnly := NodeTarget{Name: "n1"}
	assert.Equal(t, "n1", nameOnly.ProbeAddress())
}
