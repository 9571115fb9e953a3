// Package probe defines how a single node is asked for its pending-restart
// state, plus the failure taxonomy the report exposes for probes that never
// produced an answer.
package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// Result is a successful answer from one node. Reasons is non-empty exactly
// when PendingRestart is true and names the conditions that were detected.
type Result struct {
	PendingRestart            bool
	MsiInstallationInProgress bool
	Reasons                   []string
}

// Prober asks one node for its pending-restart state. Implementations must
// honour ctx cancellation and deadlines, and must be safe for concurrent use
// since one Prober is shared by every dispatcher worker.
type Prober interface {
	Check(ctx context.Context, target string) (Result, error)
}

// Kind classifies a probe failure for the report.
type Kind string

const (
	KindUnreachable   Kind = "host-unreachable"
	KindAuthorization Kind = "authorization-failure"
	KindTransport     Kind = "transport-failure"
	KindUnexpected    Kind = "unexpected-failure"
)

// Error is a classified probe failure.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string { return string(e.Kind) + ": " + e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

// Errorf builds a classified failure from a format string.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Describe renders err for a report row. Unclassified errors get the
// unexpected-failure kind so every diagnostic names its failure class.
func Describe(err error) string {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Error()
	}
	return string(KindUnexpected) + ": " + err.Error()
}

// Classify wraps an error coming back from a remote session into the failure
// taxonomy. Authentication rejections are kept distinct from transport
// problems so the report can tell a credential issue from a network one.
func Classify(err error) *Error {
	var perr *Error
	if errors.As(err, &perr) {
		return perr
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "401") ||
		strings.Contains(msg, "unauthorized") ||
		strings.Contains(msg, "access is denied") ||
		strings.Contains(msg, "authentication"):
		return &Error{Kind: KindAuthorization, Err: err}
	case errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "http error"):
		return &Error{Kind: KindTransport, Err: err}
	default:
		return &Error{Kind: KindUnexpected, Err: err}
	}
}

// Reachable dials target:port over TCP and reports whether anything answers
// within wait. Probers use it as a cheap pre-check so a powered-off host
// fails fast as host-unreachable instead of burning the whole probe timeout.
func Reachable(ctx context.Context, target string, port int, wait time.Duration) error {
	d := net.Dialer{Timeout: wait}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(target, strconv.Itoa(port)))
	if err != nil {
		return err
	}
	return conn.Close()
}
