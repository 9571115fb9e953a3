package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/restartcheck/restartcheck/internal/audit"
)

func TestMessage(t *testing.T) {
	summary := audit.RunSummary{Total: 12, Succeeded: 10, Failed: 2, PendingRestart: 3}

	assert.Equal(t,
		"restartcheck: 3 of 12 nodes pending restart (2 check failures)",
		Message("", summary))
	assert.Equal(t,
		"pending=3 total=12 failed=2",
		Message("pending=%d total=%d failed=%d", summary))
}

func TestSendWithoutURLsIsNoop(t *testing.T) {
	n := New(nil, "", nil)
	assert.NoError(t, n.Send(audit.RunSummary{Total: 1}))
}

func TestSendUnknownService(t *testing.T) {
	n := New([]string{"carrier-pigeon://coop"}, "", nil)
	err := n.Send(audit.RunSummary{Total: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "carrier-pigeon")
}

func Test_scheme(t *testing.T) {
	assert.Equal(t, "slack", scheme("slack://token@channel"))
	assert.Equal(t, "notification", scheme("no-colon-here"))
}
