package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/shlex"
)

// CommandProber delegates the check to an operator-supplied command, for
// fleets with their own tooling (ssh wrappers, site agents). Every "{}" in
// the command is replaced by the node address; without a placeholder the
// address is appended as the last argument.
//
// Exit code 0 reports a pending restart and exit code 1 a clean host. Any
// other exit code, or a command that cannot be started, is a probe failure.
// A command may instead print a JSON object with pendingRestart,
// msiInstallationInProgress and reasons fields to answer in full.
type CommandProber struct {
	argv []string
}

// NewCommandProber shell-lexes command once so quoting mistakes surface at
// startup, not per node.
func NewCommandProber(command string) (*CommandProber, error) {
	if command == "" {
		return nil, errors.New("no probe command specified")
	}
	argv, err := shlex.Split(command)
	if err != nil {
		return nil, fmt.Errorf("parsing probe command: %w", err)
	}
	if len(argv) == 0 {
		return nil, errors.New("probe command is empty")
	}
	return &CommandProber{argv: argv}, nil
}

func (p *CommandProber) Check(ctx context.Context, target string) (Result, error) {
	argv := make([]string, len(p.argv))
	substituted := false
	for i, arg := range p.argv {
		if strings.Contains(arg, "{}") {
			argv[i] = strings.ReplaceAll(arg, "{}", target)
			substituted = true
		} else {
			argv[i] = arg
		}
	}
	if !substituted {
		argv = append(argv, target)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if ctx.Err() != nil {
		return Result{}, &Error{Kind: KindTransport, Err: fmt.Errorf("probe command: %w", ctx.Err())}
	}

	name := filepath.Base(argv[0])
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		if res, ok := parseCommandJSON(stdout.Bytes(), name); ok {
			return res, nil
		}
		return Result{PendingRestart: true, Reasons: []string{"command:" + name}}, nil
	case errors.As(err, &exitErr):
		if exitErr.ExitCode() == 1 {
			if res, ok := parseCommandJSON(stdout.Bytes(), name); ok {
				return res, nil
			}
			return Result{}, nil
		}
		return Result{}, Errorf(KindUnexpected, "probe command exited %d: %s",
			exitErr.ExitCode(), truncate(strings.TrimSpace(stderr.String()), 200))
	default:
		return Result{}, Classify(fmt.Errorf("running probe command: %w", err))
	}
}

// parseCommandJSON accepts a full answer on stdout. The pendingRestart key
// must be present so plain diagnostic output is never mistaken for JSON. A
// pending restart without reasons gets the command name as its reason, since
// every pending row must say what was detected.
func parseCommandJSON(stdout []byte, name string) (Result, bool) {
	trimmed := bytes.TrimSpace(stdout)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Result{}, false
	}
	var out checklistOutput
	if err := json.Unmarshal(trimmed, &out); err != nil || out.PendingRestart == nil {
		return Result{}, false
	}
	res := Result{
		PendingRestart:            *out.PendingRestart,
		MsiInstallationInProgress: out.MsiInstallationInProgress,
		Reasons:                   out.Reasons,
	}
	if res.PendingRestart && len(res.Reasons) == 0 {
		res.Reasons = []string{"command:" + name}
	}
	return res, true
}
