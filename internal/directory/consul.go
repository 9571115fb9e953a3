package directory

import (
	"context"
	"fmt"

	consulapi "github.com/hashicorp/consul/api"

	"github.com/restartcheck/restartcheck/internal/audit"
)

// ConsulDirectory treats a consul service as a cluster: its registered
// instances are the member nodes. Useful for mixed fleets that already
// register Windows hosts in consul instead of exposing the cluster cmdlets.
type ConsulDirectory struct {
	client *consulapi.Client
}

// NewConsulDirectory builds a client for addr, falling back to the standard
// CONSUL_HTTP_ADDR environment handling when addr is empty.
func NewConsulDirectory(addr string) (*ConsulDirectory, error) {
	cfg := consulapi.DefaultConfig()
	if addr != "" {
		cfg.Address = addr
	}
	client, err := consulapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("consul client: %w", err)
	}
	return &ConsulDirectory{client: client}, nil
}

// Connect verifies the service exists in the catalog. The member listing is
// a separate health query so the two discovery failure modes stay distinct.
func (d *ConsulDirectory) Connect(ctx context.Context, name string) (audit.Cluster, error) {
	opts := (&consulapi.QueryOptions{}).WithContext(ctx)
	services, _, err := d.client.Catalog().Service(name, "", opts)
	if err != nil {
		return nil, fmt.Errorf("consul catalog lookup for %q: %w", name, err)
	}
	if len(services) == 0 {
		return nil, fmt.Errorf("service %q not in consul catalog", name)
	}
	return &consulCluster{name: name, client: d.client}, nil
}

type consulCluster struct {
	name   string
	client *consulapi.Client
}

func (c *consulCluster) Nodes(ctx context.Context) ([]audit.NodeTarget, error) {
	opts := (&consulapi.QueryOptions{}).WithContext(ctx)
	entries, _, err := c.client.Health().Service(c.name, "", false, opts)
	if err != nil {
		return nil, fmt.Errorf("consul health listing for %q: %w", c.name, err)
	}
	nodes := make([]audit.NodeTarget, 0, len(entries))
	for _, entry := range entries {
		nodes = append(nodes, audit.NodeTarget{
			Name:            entry.Node.Node,
			Address:         entry.Node.Address,
			ClusterName:     c.name,
			MembershipState: membershipState(entry.Checks),
		})
	}
	return nodes, nil
}

// membershipState folds consul's aggregated check status into the membership
// vocabulary used across backends, so reports read the same regardless of
// where discovery came from.
func membershipState(checks consulapi.HealthChecks) string {
	switch checks.AggregatedStatus() {
	case consulapi.HealthPassing:
		return "Up"
	case consulapi.HealthWarning, consulapi.HealthMaint:
		return "Paused"
	case consulapi.HealthCritical:
		return "Down"
	default:
		return "Unknown"
	}
}
