package probe

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "probe.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func TestNewCommandProber(t *testing.T) {
	for _, tc := range []struct {
		it      string
		command string
		wantErr bool
	}{
		{it: "plain command", command: "true"},
		{it: "quoted arguments survive lexing", command: `check-host --label "pending restart" {}`},
		{it: "empty command is rejected", command: "", wantErr: true},
		{it: "unbalanced quote is rejected", command: `check-host "oops`, wantErr: true},
	} {
		t.Run(tc.it, func(t *testing.T) {
			_, err := NewCommandProber(tc.command)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCommandProberExitZeroMeansPending(t *testing.T) {
	p, err := NewCommandProber("true")
	require.NoError(t, err)

	got, err := p.Check(context.Background(), "node-1")
	require.NoError(t, err)
	assert.True(t, got.PendingRestart)
	assert.Equal(t, []string{"command:true"}, got.Reasons)
}

func TestCommandProberExitOneMeansClean(t *testing.T) {
	p, err := NewCommandProber("false")
	require.NoError(t, err)

	got, err := p.Check(context.Background(), "node-1")
	require.NoError(t, err)
	assert.False(t, got.PendingRestart)
	assert.Empty(t, got.Reasons)
}

func TestCommandProberOtherExitCodesFail(t *testing.T) {
	script := writeScript(t, "echo 'ssh: connect refused' >&2\nexit 3")
	p, err := NewCommandProber(script)
	require.NoError(t, err)

	_, err = p.Check(context.Background(), "node-1")
	require.Error(t, err)
	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, KindUnexpected, perr.Kind)
	assert.Contains(t, err.Error(), "exited 3")
	assert.Contains(t, err.Error(), "connect refused")
}

func TestCommandProberSubstitutesTarget(t *testing.T) {
	script := writeScript(t, `[ "$1" = "node-1" ]`)
	p, err := NewCommandProber(script + " {}")
	require.NoError(t, err)

	got, err := p.Check(context.Background(), "node-1")
	require.NoError(t, err)
	assert.True(t, got.PendingRestart, "the placeholder must carry the node address")

	got, err = p.Check(context.Background(), "other-node")
	require.NoError(t, err)
	assert.False(t, got.PendingRestart)
}

func TestCommandProberAppendsTargetWithoutPlaceholder(t *testing.T) {
	script := writeScript(t, `[ "$1" = "node-9" ]`)
	p, err := NewCommandProber(script)
	require.NoError(t, err)

	got, err := p.Check(context.Background(), "node-9")
	require.NoError(t, err)
	assert.True(t, got.PendingRestart)
}

func TestCommandProberJSONAnswer(t *testing.T) {
	script := writeScript(t,
		`echo '{"pendingRestart":true,"msiInstallationInProgress":true,"reasons":["agent:patch-window"]}'`)
	p, err := NewCommandProber(script)
	require.NoError(t, err)

	got, err := p.Check(context.Background(), "node-1")
	require.NoError(t, err)
	assert.True(t, got.PendingRestart)
	assert.True(t, got.MsiInstallationInProgress)
	assert.Equal(t, []string{"agent:patch-window"}, got.Reasons)
}

func TestCommandProberJSONAnswerOnExitOne(t *testing.T) {
	script := writeScript(t,
		`echo '{"pendingRestart":false,"msiInstallationInProgress":true,"reasons":[]}'`+"\nexit 1")
	p, err := NewCommandProber(script)
	require.NoError(t, err)

	got, err := p.Check(context.Background(), "node-1")
	require.NoError(t, err)
	assert.False(t, got.PendingRestart)
	assert.True(t, got.MsiInstallationInProgress)
}

func TestCommandProberHonoursContext(t *testing.T) {
	script := writeScript(t, "sleep 10")
	p, err := NewCommandProber(script)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = p.Check(ctx, "node-1")
	require.Error(t, err)
	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, KindTransport, perr.Kind)
}

func Test_parseCommandJSON(t *testing.T) {
	for _, tc := range []struct {
		it     string
		stdout string
		wantOK bool
	}{
		{it: "full answer", stdout: `{"pendingRestart":false,"msiInstallationInProgress":false,"reasons":[]}`, wantOK: true},
		{it: "empty output", stdout: "", wantOK: false},
		{it: "plain text", stdout: "node looks fine", wantOK: false},
		{it: "json without the verdict", stdout: `{"reasons":["x"]}`, wantOK: false},
		{it: "broken json", stdout: `{"pendingRestart":`, wantOK: false},
	} {
		t.Run(tc.it, func(t *testing.T) {
			_, ok := parseCommandJSON([]byte(tc.stdout), "check-host")
			assert.Equal(t, tc.wantOK, ok)
		})
	}
}

func Test_parseCommandJSONBackfillsReasons(t *testing.T) {
	got, ok := parseCommandJSON([]byte(`{"pendingRestart":true}`), "check-host")
	require.True(t, ok)
	assert.Equal(t, []string{"command:check-host"}, got.Reasons)
}
