package probe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_parseChecklist(t *testing.T) {
	for _, tc := range []struct {
		it      string
		stdout  string
		want    Result
		wantErr string
	}{
		{
			it:     "pending restart with reasons",
			stdout: `{"pendingRestart":true,"msiInstallationInProgress":false,"reasons":["CBS:RebootPending","Netlogon:JoinDomain"]}`,
			want: Result{
				PendingRestart: true,
				Reasons:        []string{"CBS:RebootPending", "Netlogon:JoinDomain"},
			},
		},
		{
			it:     "clean host",
			stdout: `{"pendingRestart":false,"msiInstallationInProgress":false,"reasons":[]}`,
			want:   Result{Reasons: []string{}},
		},
		{
			it:     "installer running without a pending restart",
			stdout: `{"pendingRestart":false,"msiInstallationInProgress":true,"reasons":[]}`,
			want:   Result{MsiInstallationInProgress: true, Reasons: []string{}},
		},
		{
			it:     "surrounding whitespace is tolerated",
			stdout: "\r\n {\"pendingRestart\":false,\"msiInstallationInProgress\":false,\"reasons\":[]} \r\n",
			want:   Result{Reasons: []string{}},
		},
		{
			it:      "plain text output is rejected",
			stdout:  "The term 'ConvertTo-Json' is not recognized",
			wantErr: "parsing checklist output",
		},
		{
			it:      "json without the verdict is rejected",
			stdout:  `{"reasons":[]}`,
			wantErr: "misses pendingRestart",
		},
	} {
		t.Run(tc.it, func(t *testing.T) {
			got, err := parseChecklist(tc.stdout)
			if tc.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNewWinRMProberDefaults(t *testing.T) {
	plain := NewWinRMProber(WinRMConfig{})
	assert.Equal(t, 5985, plain.cfg.Port)
	assert.NotZero(t, plain.cfg.Timeout)

	tls := NewWinRMProber(WinRMConfig{HTTPS: true})
	assert.Equal(t, 5986, tls.cfg.Port)

	fixed := NewWinRMProber(WinRMConfig{Port: 15985})
	assert.Equal(t, 15985, fixed.cfg.Port)
}

func Test_truncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "0123456789...", truncate("0123456789abcdef", 10))
}
