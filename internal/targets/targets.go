// Package targets reads the list of clusters a run should audit.
package targets

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/restartcheck/restartcheck/internal/audit"
)

// Load returns the clusters named on the command line, or read from the
// clusters file when no arguments were given. Passing both is rejected so a
// stray argument can never silently shadow the file.
func Load(args []string, clustersFile string) ([]audit.ClusterTarget, error) {
	switch {
	case len(args) > 0 && clustersFile != "":
		return nil, errors.New("cluster arguments and --clusters-file are mutually exclusive")
	case len(args) > 0:
		return fromArgs(args)
	case clustersFile != "":
		return fromFile(clustersFile)
	default:
		return nil, errors.New("no clusters to audit, pass names or --clusters-file")
	}
}

func fromArgs(args []string) ([]audit.ClusterTarget, error) {
	clusters := make([]audit.ClusterTarget, 0, len(args))
	for _, arg := range args {
		name := strings.TrimSpace(arg)
		if name == "" {
			continue
		}
		clusters = append(clusters, audit.ClusterTarget{Name: name})
	}
	if len(clusters) == 0 {
		return nil, errors.New("no clusters to audit, all arguments were blank")
	}
	return clusters, nil
}

// fromFile reads a CSV with a Cluster column. Extra columns are tolerated
// so inventory exports can be fed in unmodified.
func fromFile(path string) ([]audit.ClusterTarget, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening clusters file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1
	head, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("reading clusters file header: %w", err)
	}
	col := -1
	for i, name := range head {
		if strings.EqualFold(strings.TrimSpace(name), "Cluster") {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, fmt.Errorf("clusters file %s has no Cluster column", path)
	}

	var clusters []audit.ClusterTarget
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading clusters file: %w", err)
		}
		if col >= len(record) {
			continue
		}
		name := strings.TrimSpace(record[col])
		if name == "" {
			continue
		}
		clusters = append(clusters, audit.ClusterTarget{Name: name})
	}
	if len(clusters) == 0 {
		return nil, fmt.Errorf("clusters file %s lists no clusters", path)
	}
	return clusters, nil
}
