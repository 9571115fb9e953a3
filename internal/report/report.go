// Package report renders a finished audit into CSV.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/restartcheck/restartcheck/internal/audit"
)

var header = []string{
	"ClusterName",
	"ComputerName",
	"NodeState",
	"PendingRestart",
	"MsiInstallationInProgress",
	"Reasons",
	"CheckSucceeded",
}

// WriteCSV writes one row per result in the order given. Null state fields
// of failed checks render as empty cells, never as false. With detailed set
// a Diagnostic column carries the failure descriptions.
func WriteCSV(w io.Writer, results []audit.CheckResult, detailed bool) error {
	cw := csv.NewWriter(w)
	head := header
	if detailed {
		head = append(append([]string{}, header...), "Diagnostic")
	}
	if err := cw.Write(head); err != nil {
		return fmt.Errorf("writing report header: %w", err)
	}
	for _, r := range results {
		row := []string{
			r.ClusterName,
			r.ComputerName,
			r.NodeState,
			formatBool(r.PendingRestart),
			formatBool(r.MsiInstallationInProgress),
			strings.Join(r.Reasons, "; "),
			strconv.FormatBool(r.CheckSucceeded),
		}
		if detailed {
			row = append(row, r.Diagnostic)
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing report row for %s: %w", r.ComputerName, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFile renders the report to path in one shot. Nothing is written
// until the full result set exists, so a crash mid-run leaves no torso.
func WriteFile(path string, results []audit.CheckResult, detailed bool) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating report file: %w", err)
	}
	if err := WriteCSV(f, results, detailed); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing report file: %w", err)
	}
	return nil
}

func formatBool(b *bool) string {
	if b == nil {
		return ""
	}
	return strconv.FormatBool(*b)
}
