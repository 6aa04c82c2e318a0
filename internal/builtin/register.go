package builtin

import (
	"context"
	"errors"

	"github.com/go-logr/logr"

	"github.com/imamik/stagehand/internal/plan"
	"github.com/imamik/stagehand/internal/platform/hcloud"
)

// ServerGetter looks up a Hetzner Cloud server by name.
type ServerGetter interface {
	GetServer(ctx context.Context, name string) (*hcloud.Server, error)
}

// Deps are the collaborators built-in operations and checks reach nodes
// through. A nil SSH runner or HCloud getter disables what needs it: checks
// fail to load, commands fail when they reach a remote node.
type Deps struct {
	SSH    Runner
	Local  Runner
	HCloud ServerGetter
	Logger logr.Logger
}

// Register adds every built-in operation and check to reg.
func Register(reg *plan.Registry, deps Deps) {
	d := &deps
	if d.Logger.GetSink() == nil {
		d.Logger = logr.Discard()
	}

	reg.RegisterOperation("noop", newNoop)
	reg.RegisterOperation("command", d.newCommandOperation)
	reg.RegisterOperation("wait-for-port", newWaitForPort)

	reg.RegisterCheck("command", d.newCommandCheck)
	reg.RegisterCheck("tcp-port", newTCPPortCheck)
	reg.RegisterCheck("hcloud-server-running", d.newServerRunningCheck)
	reg.RegisterCheck("config-key", newConfigKeyCheck)
}

func (d *Deps) local() Runner {
	if d.Local != nil {
		return d.Local
	}
	return LocalRunner{}
}

func (d *Deps) remote(p params) (remote, error) {
	command, err := p.required("command")
	if err != nil {
		return remote{}, err
	}
	transport, err := parseTransport(p["transport"])
	if err != nil {
		return remote{}, err
	}
	if transport == TransportSSH && d.SSH == nil {
		return remote{}, errors.New("ssh transport is not configured (set STAGEHAND_SSH_KEY)")
	}
	return remote{command: command, transport: transport, deps: d}, nil
}
