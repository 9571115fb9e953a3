package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/masterzen/winrm"
)

// pendingRestartScript is the remote checklist. It inspects the registry
// locations Windows uses to flag an outstanding restart, plus the installer
// in-progress marker, and prints a single compact JSON object.
const pendingRestartScript = `$reasons = @()
if (Test-Path 'HKLM:\SOFTWARE\Microsoft\Windows\CurrentVersion\Component Based Servicing\RebootPending') { $reasons += 'CBS:RebootPending' }
if (Test-Path 'HKLM:\SOFTWARE\Microsoft\Windows\CurrentVersion\WindowsUpdate\Auto Update\RebootRequired') { $reasons += 'WindowsUpdate:RebootRequired' }
if ((Get-ItemProperty 'HKLM:\SYSTEM\CurrentControlSet\Control\Session Manager' -Name PendingFileRenameOperations -ErrorAction SilentlyContinue)) { $reasons += 'SessionManager:PendingFileRenameOperations' }
if (Test-Path 'HKLM:\SYSTEM\CurrentControlSet\Services\Netlogon\JoinDomain') { $reasons += 'Netlogon:JoinDomain' }
if (Test-Path 'HKLM:\SYSTEM\CurrentControlSet\Services\Netlogon\AvoidSpnSet') { $reasons += 'Netlogon:AvoidSpnSet' }
$active = (Get-ItemProperty 'HKLM:\SYSTEM\CurrentControlSet\Control\ComputerName\ActiveComputerName' -ErrorAction SilentlyContinue).ComputerName
$pending = (Get-ItemProperty 'HKLM:\SYSTEM\CurrentControlSet\Control\ComputerName\ComputerName' -ErrorAction SilentlyContinue).ComputerName
if ($active -and $pending -and ($active -ne $pending)) { $reasons += 'ComputerName:RenamePending' }
$msi = Test-Path 'HKLM:\SOFTWARE\Microsoft\Windows\CurrentVersion\Installer\InProgress'
[pscustomobject]@{ pendingRestart = ($reasons.Count -gt 0); msiInstallationInProgress = [bool]$msi; reasons = @($reasons) } | ConvertTo-Json -Compress`

// reachableWait bounds the TCP pre-check so a dead host is reported quickly.
const reachableWait = 5 * time.Second

// WinRMConfig carries the connection settings shared by every probe of a run.
type WinRMConfig struct {
	Port     int
	HTTPS    bool
	Insecure bool
	Username string
	Password string
	Timeout  time.Duration
}

// WinRMProber runs the pending-restart checklist on Windows hosts over WinRM.
type WinRMProber struct {
	cfg WinRMConfig
}

// NewWinRMProber returns a prober for the given connection settings. A zero
// port selects the WinRM default for the chosen scheme.
func NewWinRMProber(cfg WinRMConfig) *WinRMProber {
	if cfg.Port == 0 {
		if cfg.HTTPS {
			cfg.Port = 5986
		} else {
			cfg.Port = 5985
		}
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &WinRMProber{cfg: cfg}
}

func (p *WinRMProber) Check(ctx context.Context, target string) (Result, error) {
	if err := Reachable(ctx, target, p.cfg.Port, reachableWait); err != nil {
		return Result{}, &Error{Kind: KindUnreachable, Err: fmt.Errorf("tcp %d: %w", p.cfg.Port, err)}
	}
	endpoint := winrm.NewEndpoint(target, p.cfg.Port, p.cfg.HTTPS, p.cfg.Insecure, nil, nil, nil, p.cfg.Timeout)
	client, err := winrm.NewClient(endpoint, p.cfg.Username, p.cfg.Password)
	if err != nil {
		return Result{}, &Error{Kind: KindTransport, Err: err}
	}
	stdout, stderr, code, err := client.RunWithContextWithString(ctx, winrm.Powershell(pendingRestartScript), "")
	if err != nil {
		return Result{}, Classify(err)
	}
	if code != 0 {
		return Result{}, Errorf(KindUnexpected, "checklist exited %d: %s", code, strings.TrimSpace(stderr))
	}
	return parseChecklist(stdout)
}

type checklistOutput struct {
	PendingRestart            *bool    `json:"pendingRestart"`
	MsiInstallationInProgress bool     `json:"msiInstallationInProgress"`
	Reasons                   []string `json:"reasons"`
}

func parseChecklist(stdout string) (Result, error) {
	var out checklistOutput
	trimmed := strings.TrimSpace(stdout)
	if err := json.Unmarshal([]byte(trimmed), &out); err != nil {
		return Result{}, Errorf(KindUnexpected, "parsing checklist output %q: %v", truncate(trimmed, 120), err)
	}
	if out.PendingRestart == nil {
		return Result{}, Errorf(KindUnexpected, "checklist output %q misses pendingRestart", truncate(trimmed, 120))
	}
	return Result{
		PendingRestart:            *out.PendingRestart,
		MsiInstallationInProgress: out.MsiInstallationInProgress,
		Reasons:                   out.Reasons,
	}, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
