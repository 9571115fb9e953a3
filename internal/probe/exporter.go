package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/common/expfmt"
	"github.com/prometheus/common/model"
)

// ExporterConfig selects the scrape endpoint and the metric to read.
type ExporterConfig struct {
	Port   int
	Metric string
	Path   string
	Client *http.Client
}

// ExporterProber reads the pending-restart state from a Prometheus exporter
// running on the node, for fleets that already expose it that way. Exporters
// only publish the reboot flag, so MsiInstallationInProgress is always false
// and a pending restart carries the metric name as its single reason.
type ExporterProber struct {
	client *http.Client
	port   int
	metric string
	path   string
}

// NewExporterProber returns a prober scraping node_reboot_required on port
// 9100 unless configured otherwise.
func NewExporterProber(cfg ExporterConfig) *ExporterProber {
	if cfg.Port == 0 {
		cfg.Port = 9100
	}
	if cfg.Metric == "" {
		cfg.Metric = "node_reboot_required"
	}
	if cfg.Path == "" {
		cfg.Path = "/metrics"
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 30 * time.Second}
	}
	return &ExporterProber{client: cfg.Client, port: cfg.Port, metric: cfg.Metric, path: cfg.Path}
}

func (p *ExporterProber) Check(ctx context.Context, target string) (Result, error) {
	if err := Reachable(ctx, target, p.port, reachableWait); err != nil {
		return Result{}, &Error{Kind: KindUnreachable, Err: fmt.Errorf("tcp %d: %w", p.port, err)}
	}
	url := fmt.Sprintf("http://%s:%d%s", target, p.port, p.path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Result{}, Errorf(KindUnexpected, "building request for %s: %v", url, err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return Result{}, Classify(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Result{}, Errorf(KindTransport, "scraping %s: http status %d", url, resp.StatusCode)
	}
	value, err := parseMetricValue(resp.Body, p.metric)
	if err != nil {
		return Result{}, Errorf(KindUnexpected, "scraping %s: %v", url, err)
	}
	res := Result{PendingRestart: value != 0}
	if res.PendingRestart {
		res.Reasons = []string{"exporter:" + p.metric}
	}
	return res, nil
}

// parseMetricValue extracts the first sample of the named family from an
// exposition-format payload.
func parseMetricValue(body io.Reader, name string) (float64, error) {
	parser := expfmt.NewTextParser(model.LegacyValidation)
	families, err := parser.TextToMetricFamilies(body)
	if err != nil {
		return 0, fmt.Errorf("parsing metrics: %w", err)
	}
	family, ok := families[name]
	if !ok {
		return 0, fmt.Errorf("metric %s not exposed, wrong exporter?", name)
	}
	for _, m := range family.GetMetric() {
		switch {
		case m.GetGauge() != nil:
			return m.GetGauge().GetValue(), nil
		case m.GetCounter() != nil:
			return m.GetCounter().GetValue(), nil
		case m.GetUntyped() != nil:
			return m.GetUntyped().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %s has no readable sample", name)
}
