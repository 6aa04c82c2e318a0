package builtin

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/imamik/stagehand/internal/plan"
	"github.com/imamik/stagehand/internal/util/netutil"
)

// DefaultRebootExitCode is the exit status a command uses to report that it
// succeeded but the node must restart before the change takes effect.
const DefaultRebootExitCode = 3010

const outputLines = 5

func newNoop(raw map[string]string) (plan.Operation, error) {
	p := params(raw)
	if err := p.only("rebootRequired", "detail"); err != nil {
		return nil, err
	}
	reboot, err := p.boolean("rebootRequired", false)
	if err != nil {
		return nil, err
	}
	detail := p["detail"]
	if detail == "" {
		detail = "nothing to do"
	}
	return plan.OperationFunc(func(context.Context, string, map[string]string) (plan.Result, error) {
		return plan.Result{Success: true, RebootRequired: reboot, Detail: detail}, nil
	}), nil
}

type commandOperation struct {
	remote
	rebootExitCode int
}

func (d *Deps) newCommandOperation(raw map[string]string) (plan.Operation, error) {
	p := params(raw)
	if err := p.only("command", "transport", "rebootExitCode"); err != nil {
		return nil, err
	}
	r, err := d.remote(p)
	if err != nil {
		return nil, err
	}
	code, err := p.integer("rebootExitCode", DefaultRebootExitCode)
	if err != nil {
		return nil, err
	}
	return &commandOperation{remote: r, rebootExitCode: code}, nil
}

// Apply implements plan.Operation.
func (o *commandOperation) Apply(ctx context.Context, node string, snapshot map[string]string) (plan.Result, error) {
	out, err := o.run(ctx, node, snapshot)
	if err != nil {
		return plan.Result{}, err
	}
	o.deps.Logger.V(1).Info("command finished", "node", node, "exitCode", out.ExitCode)

	switch out.ExitCode {
	case 0:
		return plan.Result{Success: true, Detail: tail(out.Combined, outputLines)}, nil
	case o.rebootExitCode:
		return plan.Result{
			Success:        true,
			RebootRequired: true,
			Detail:         fmt.Sprintf("exit %d: reboot required", out.ExitCode),
		}, nil
	default:
		return plan.Result{Detail: exitDetail(out)}, nil
	}
}

func newWaitForPort(raw map[string]string) (plan.Operation, error) {
	p := params(raw)
	if err := p.only("port", "interval", "timeout"); err != nil {
		return nil, err
	}
	port, err := p.port("port")
	if err != nil {
		return nil, err
	}
	interval, err := p.duration("interval", 5*time.Second)
	if err != nil {
		return nil, err
	}
	timeout, err := p.duration("timeout", 5*time.Minute)
	if err != nil {
		return nil, err
	}
	return plan.OperationFunc(func(ctx context.Context, node string, _ map[string]string) (plan.Result, error) {
		host := hostOf(node)
		if err := netutil.WaitForPort(ctx, host, port, interval, timeout); err != nil {
			return plan.Result{Detail: err.Error()}, nil
		}
		return plan.Result{Success: true, Detail: net.JoinHostPort(host, strconv.Itoa(port)) + " is accepting connections"}, nil
	}), nil
}

func exitDetail(out Output) string {
	if out.Combined == "" {
		return fmt.Sprintf("exit %d", out.ExitCode)
	}
	return fmt.Sprintf("exit %d: %s", out.ExitCode, tail(out.Combined, outputLines))
}

// hostOf strips a port from node, if present.
func hostOf(node string) string {
	if h, _, err := net.SplitHostPort(node); err == nil {
		return h
	}
	return node
}
