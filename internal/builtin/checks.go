package builtin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/imamik/stagehand/internal/platform/hcloud"
	"github.com/imamik/stagehand/internal/util/netutil"
	"github.com/imamik/stagehand/internal/validation"
)

type commandCheck struct {
	remote
	rebootExitCode int
}

func (d *Deps) newCommandCheck(raw map[string]string) (validation.Check, error) {
	p := params(raw)
	if err := p.only("command", "transport", "rebootExitCode"); err != nil {
		return nil, err
	}
	r, err := d.remote(p)
	if err != nil {
		return nil, err
	}
	code, err := p.integer("rebootExitCode", 0)
	if err != nil {
		return nil, err
	}
	return &commandCheck{remote: r, rebootExitCode: code}, nil
}

// Check implements validation.Check.
func (c *commandCheck) Check(ctx context.Context, node string, env validation.Env) validation.Report {
	out, err := c.run(ctx, node, env.Snapshot)
	if err != nil {
		return validation.Report{Detail: err.Error()}
	}
	if out.ExitCode == 0 {
		return validation.Report{Passed: true}
	}
	return validation.Report{
		Detail:         exitDetail(out),
		RebootRequired: c.rebootExitCode != 0 && out.ExitCode == c.rebootExitCode,
	}
}

func newTCPPortCheck(raw map[string]string) (validation.Check, error) {
	p := params(raw)
	if err := p.only("port", "timeout"); err != nil {
		return nil, err
	}
	port, err := p.port("port")
	if err != nil {
		return nil, err
	}
	timeout, err := p.duration("timeout", 5*time.Second)
	if err != nil {
		return nil, err
	}
	return validation.CheckFunc(func(ctx context.Context, node string, _ validation.Env) validation.Report {
		if err := netutil.ProbePort(ctx, hostOf(node), port, timeout); err != nil {
			return validation.Report{Detail: err.Error()}
		}
		return validation.Report{Passed: true}
	}), nil
}

func (d *Deps) newServerRunningCheck(raw map[string]string) (validation.Check, error) {
	p := params(raw)
	if err := p.only("server"); err != nil {
		return nil, err
	}
	if d.HCloud == nil {
		return nil, errors.New("hetzner cloud is not configured (set HCLOUD_TOKEN)")
	}
	servers := d.HCloud
	return validation.CheckFunc(func(ctx context.Context, node string, _ validation.Env) validation.Report {
		name := p["server"]
		if name == "" {
			name = hostOf(node)
		}
		srv, err := servers.GetServer(ctx, name)
		if err != nil {
			if hcloud.IsNotFound(err) {
				return validation.Report{Detail: fmt.Sprintf("server %s does not exist", name)}
			}
			return validation.Report{Detail: err.Error()}
		}
		if !srv.Running() {
			return validation.Report{Detail: fmt.Sprintf("server %s is %s", name, srv.Status)}
		}
		return validation.Report{Passed: true}
	}), nil
}

func newConfigKeyCheck(raw map[string]string) (validation.Check, error) {
	p := params(raw)
	if err := p.only("key", "value"); err != nil {
		return nil, err
	}
	key, err := p.required("key")
	if err != nil {
		return nil, err
	}
	want, exact := p["value"]
	return validation.CheckFunc(func(_ context.Context, _ string, env validation.Env) validation.Report {
		got := env.Snapshot[key]
		switch {
		case got == "":
			return validation.Report{Detail: fmt.Sprintf("config key %q is not set", key)}
		case exact && got != want:
			return validation.Report{Detail: fmt.Sprintf("config key %q is %q, want %q", key, got, want)}
		}
		return validation.Report{Passed: true}
	}), nil
}
