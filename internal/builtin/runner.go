package builtin

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strings"

	"github.com/imamik/stagehand/internal/platform/ssh"
)

// Output is the result of a command run on a node.
type Output struct {
	Combined string
	ExitCode int
}

// Runner runs a shell command on a node. A non-zero exit is reported in
// Output; the error is set only when the command could not be run.
type Runner interface {
	Run(ctx context.Context, node, command string) (Output, error)
}

// LocalRunner runs commands with sh on the control host.
type LocalRunner struct{}

// Run implements Runner.
func (LocalRunner) Run(ctx context.Context, _ string, command string) (Output, error) {
	// #nosec G204 -- commands come from the operator's plan file
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	combined, err := cmd.CombinedOutput()
	out := Output{Combined: string(combined)}
	if err == nil {
		return out, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return out, fmt.Errorf("command interrupted: %w", ctxErr)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		out.ExitCode = exitErr.ExitCode()
		return out, nil
	}
	return out, fmt.Errorf("failed to run command: %w", err)
}

// SSHRunner runs commands on remote nodes.
type SSHRunner struct {
	Client *ssh.Client
}

// Run implements Runner.
func (r SSHRunner) Run(ctx context.Context, node, command string) (Output, error) {
	out, err := r.Client.Run(ctx, node, command)
	return Output(out), err
}

// Transport selects how a command reaches a node.
type Transport string

const (
	// TransportAuto runs locally for loopback nodes and over SSH otherwise.
	TransportAuto Transport = "auto"
	// TransportSSH always uses SSH.
	TransportSSH Transport = "ssh"
	// TransportLocal always runs on the control host.
	TransportLocal Transport = "local"
)

func parseTransport(v string) (Transport, error) {
	switch t := Transport(v); t {
	case "":
		return TransportAuto, nil
	case TransportAuto, TransportSSH, TransportLocal:
		return t, nil
	default:
		return "", fmt.Errorf("param \"transport\": unknown transport %q (want auto, ssh or local)", v)
	}
}

// isLoopback reports whether node names the control host.
func isLoopback(node string) bool {
	host := node
	if h, _, err := net.SplitHostPort(node); err == nil {
		host = h
	}
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// expand substitutes ${NODE} and plan config keys in command. References to
// anything else are left for the shell.
func expand(command, node string, snapshot map[string]string) string {
	return os.Expand(command, func(key string) string {
		if key == "NODE" {
			return node
		}
		if v, ok := snapshot[key]; ok {
			return v
		}
		return "${" + key + "}"
	})
}

// remote is a command bound to its transport.
type remote struct {
	command   string
	transport Transport
	deps      *Deps
}

func (r remote) run(ctx context.Context, node string, snapshot map[string]string) (Output, error) {
	runner, err := r.runner(node)
	if err != nil {
		return Output{}, err
	}
	return runner.Run(ctx, node, expand(r.command, node, snapshot))
}

func (r remote) runner(node string) (Runner, error) {
	if r.transport == TransportLocal || (r.transport == TransportAuto && isLoopback(node)) {
		return r.deps.local(), nil
	}
	if r.deps.SSH == nil {
		return nil, errors.New("ssh transport is not configured (set STAGEHAND_SSH_KEY)")
	}
	return r.deps.SSH, nil
}

// tail trims long command output to its last lines for result details.
func tail(s string, lines int) string {
	s = strings.TrimRight(s, "\n")
	parts := strings.Split(s, "\n")
	if len(parts) <= lines {
		return s
	}
	return "..." + "\n" + strings.Join(parts[len(parts)-lines:], "\n")
}
