// Package directory provides the cluster discovery backends: WinRM against
// the failover-cluster cmdlets, and a Consul catalog lookup for fleets that
// register cluster members as services.
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/masterzen/winrm"

	"github.com/restartcheck/restartcheck/internal/audit"
)

// WinRMConfig carries the session settings for directory lookups. With Host
// set, every lookup goes through that management host; otherwise the cluster
// name itself is dialled, which works when cluster names resolve in DNS.
type WinRMConfig struct {
	Host     string
	Port     int
	HTTPS    bool
	Insecure bool
	Username string
	Password string
	Timeout  time.Duration
}

// WinRMDirectory discovers cluster members with Get-ClusterNode over WinRM.
type WinRMDirectory struct {
	cfg WinRMConfig
}

func NewWinRMDirectory(cfg WinRMConfig) *WinRMDirectory {
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
	return &WinRMDirectory{cfg: cfg}
}

// Connect opens a session and verifies the cluster answers to its name, so
// an unreachable or unknown cluster fails here and not during enumeration.
func (d *WinRMDirectory) Connect(ctx context.Context, name string) (audit.Cluster, error) {
	host := d.cfg.Host
	if host == "" {
		host = name
	}
	endpoint := winrm.NewEndpoint(host, d.cfg.Port, d.cfg.HTTPS, d.cfg.Insecure, nil, nil, nil, d.cfg.Timeout)
	client, err := winrm.NewClient(endpoint, d.cfg.Username, d.cfg.Password)
	if err != nil {
		return nil, fmt.Errorf("winrm session to %s: %w", host, err)
	}
	script := fmt.Sprintf("(Get-Cluster -Name %s).Name", psQuote(name))
	stdout, stderr, code, err := client.RunWithContextWithString(ctx, winrm.Powershell(script), "")
	if err != nil {
		return nil, fmt.Errorf("connecting to cluster %q via %s: %w", name, host, err)
	}
	if code != 0 {
		return nil, fmt.Errorf("cluster %q not available via %s: %s", name, host, strings.TrimSpace(stderr))
	}
	if strings.TrimSpace(stdout) == "" {
		return nil, fmt.Errorf("cluster %q unknown to %s", name, host)
	}
	return &winrmCluster{name: name, client: client}, nil
}

type winrmCluster struct {
	name   string
	client *winrm.Client
}

func (c *winrmCluster) Nodes(ctx context.Context) ([]audit.NodeTarget, error) {
	// State is an enum; ToString() keeps the JSON readable across PowerShell
	// versions instead of serialising the numeric value.
	script := fmt.Sprintf(
		"Get-ClusterNode -Cluster %s | Select-Object Name,@{n='State';e={$_.State.ToString()}} | ConvertTo-Json -Compress",
		psQuote(c.name))
	stdout, stderr, code, err := c.client.RunWithContextWithString(ctx, winrm.Powershell(script), "")
	if err != nil {
		return nil, fmt.Errorf("listing nodes of %q: %w", c.name, err)
	}
	if code != 0 {
		return nil, fmt.Errorf("listing nodes of %q failed: %s", c.name, strings.TrimSpace(stderr))
	}
	return parseClusterNodes(stdout, c.name)
}

type clusterNodeRow struct {
	Name  string `json:"Name"`
	State string `json:"State"`
}

// parseClusterNodes decodes ConvertTo-Json output, which emits a bare object
// for a single-node cluster and an array otherwise.
func parseClusterNodes(stdout, cluster string) ([]audit.NodeTarget, error) {
	trimmed := strings.TrimSpace(stdout)
	if trimmed == "" {
		return nil, errors.New("empty node listing")
	}
	var rows []clusterNodeRow
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal([]byte(trimmed), &rows); err != nil {
			return nil, fmt.Errorf("parsing node listing: %w", err)
		}
	} else {
		var row clusterNodeRow
		if err := json.Unmarshal([]byte(trimmed), &row); err != nil {
			return nil, fmt.Errorf("parsing node listing: %w", err)
		}
		rows = append(rows, row)
	}
	nodes := make([]audit.NodeTarget, 0, len(rows))
	for _, row := range rows {
		if row.Name == "" {
			return nil, fmt.Errorf("node listing entry without a name: %s", trimmed)
		}
		nodes = append(nodes, audit.NodeTarget{
			Name:            row.Name,
			ClusterName:     cluster,
			MembershipState: row.State,
		})
	}
	return nodes, nil
}

// psQuote single-quotes s for safe interpolation into a PowerShell command.
func psQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
