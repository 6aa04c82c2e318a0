package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-logr/logr"

	"github.com/imamik/stagehand/internal/builtin"
	"github.com/imamik/stagehand/internal/config"
	"github.com/imamik/stagehand/internal/events"
	"github.com/imamik/stagehand/internal/executor"
	"github.com/imamik/stagehand/internal/fleet"
	"github.com/imamik/stagehand/internal/journal"
	"github.com/imamik/stagehand/internal/metrics"
	"github.com/imamik/stagehand/internal/orchestrator"
	"github.com/imamik/stagehand/internal/plan"
	"github.com/imamik/stagehand/internal/platform/hcloud"
	"github.com/imamik/stagehand/internal/platform/s3"
	"github.com/imamik/stagehand/internal/platform/ssh"
	"github.com/imamik/stagehand/internal/state"
	"github.com/imamik/stagehand/internal/ui"
	"github.com/imamik/stagehand/internal/validation"
)

// Options are the flags shared by every plan command.
type Options struct {
	// ConfigPath is the plan file. Empty means stagehand.yaml is searched
	// for from the working directory upwards.
	ConfigPath string
	// PlanID selects a plan instance other than the id in the plan file.
	PlanID    string
	Verbose   bool
	LogFormat string
}

// objectStore is the S3 client surface the s3 backend uses.
type objectStore interface {
	state.ObjectStore
	EnsureBucket(ctx context.Context, bucket string) error
}

// Factory function variables - can be replaced in tests.
var (
	loadSettings = config.Load
	findPlanFile = plan.FindFile
	loadPlanFile = plan.LoadFile
	readKeyFile  = os.ReadFile

	newObjectStore = func(ctx context.Context, cfg s3.Config) (objectStore, error) {
		return s3.NewClient(ctx, cfg)
	}
	newSSHRunner = func(cfg ssh.Config) (builtin.Runner, error) {
		client, err := ssh.NewClient(cfg)
		if err != nil {
			return nil, err
		}
		return builtin.SSHRunner{Client: client}, nil
	}
	newServerGetter = func(token string) builtin.ServerGetter {
		return hcloud.NewClient(token)
	}
	openJournal = journal.Open

	// stdout receives command output.
	stdout io.Writer = os.Stdout
	// styled reports whether output should carry terminal styling.
	styled = func() bool { return ui.IsTerminal(os.Stdout) }
)

func theme() ui.Theme {
	return ui.NewTheme(styled())
}

// session holds everything a command needs for one plan instance.
type session struct {
	logger   logr.Logger
	settings *config.Settings
	file     *plan.File
	plan     *plan.Plan
	store    state.Store
	journal  *journal.Journal
	metrics  *metrics.Recorder

	closers []func()
}

type sessionMode int

const (
	// readOnly sessions only read state.
	readOnly sessionMode = iota
	// exclusive sessions may write state and hold the plan lock.
	exclusive
)

// openSession loads settings and the plan file, compiles the plan when
// compile is set, and opens the state store and sinks.
func openSession(ctx context.Context, opts Options, mode sessionMode, compile bool) (*session, error) {
	logger, syncLog, err := newLogger(opts.Verbose, opts.LogFormat)
	if err != nil {
		return nil, err
	}
	s := &session{logger: logger, closers: []func(){syncLog}}
	if err := s.open(ctx, opts, mode, compile); err != nil {
		s.close()
		return nil, err
	}
	return s, nil
}

func (s *session) open(ctx context.Context, opts Options, mode sessionMode, compile bool) error {
	s.settings = loadSettings()
	if err := s.settings.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}

	var err error
	if s.file, err = resolvePlanFile(opts); err != nil {
		return err
	}
	if compile {
		if s.plan, err = s.compile(); err != nil {
			return err
		}
	}

	if err := s.openStore(ctx, mode); err != nil {
		return err
	}
	return s.openSinks()
}

// resolvePlanFile reads the plan file and applies the --plan-id override.
func resolvePlanFile(opts Options) (*plan.File, error) {
	path := opts.ConfigPath
	if path == "" {
		found, err := findPlanFile()
		if err != nil {
			return nil, err
		}
		path = found
	}
	f, err := loadPlanFile(path)
	if err != nil {
		return nil, err
	}
	if opts.PlanID != "" {
		if err := plan.ValidateID(opts.PlanID); err != nil {
			return nil, fmt.Errorf("invalid --plan-id: %w", err)
		}
		f.ID = opts.PlanID
	}
	return f, nil
}

func (s *session) planID() string {
	return s.file.ID
}

func (s *session) compile() (*plan.Plan, error) {
	reg := plan.NewRegistry()
	builtin.Register(reg, s.builtinDeps())
	p, err := reg.Compile(s.file, plan.Defaults{
		NodeTimeout: s.settings.NodeTimeout,
		RetryDelay:  s.settings.RetryInitialDelay,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load plan %s: %w", s.file.ID, err)
	}
	return p, nil
}

func (s *session) builtinDeps() builtin.Deps {
	deps := builtin.Deps{Logger: s.logger.WithName("builtin")}

	if key, err := readKeyFile(s.settings.SSH.KeyPath); err == nil {
		runner, err := newSSHRunner(ssh.Config{
			User:       s.settings.SSH.User,
			Port:       s.settings.SSH.Port,
			PrivateKey: key,
		})
		if err != nil {
			s.logger.Info("ssh transport disabled", "key", s.settings.SSH.KeyPath, "error", err.Error())
		} else {
			deps.SSH = runner
		}
	} else {
		s.logger.V(1).Info("ssh transport disabled", "key", s.settings.SSH.KeyPath, "error", err.Error())
	}

	if s.settings.HCloudToken != "" {
		deps.HCloud = newServerGetter(s.settings.HCloudToken)
	}
	return deps
}

func (s *session) openStore(ctx context.Context, mode sessionMode) error {
	switch s.settings.StateBackend {
	case config.BackendS3:
		cfg := s.settings.S3
		client, err := newObjectStore(ctx, s3.Config{
			Endpoint:     cfg.Endpoint,
			Region:       cfg.Region,
			AccessKey:    cfg.AccessKey,
			SecretKey:    cfg.SecretKey,
			UsePathStyle: cfg.UsePathStyle,
		})
		if err != nil {
			return err
		}
		if mode == exclusive {
			if err := client.EnsureBucket(ctx, cfg.Bucket); err != nil {
				return err
			}
		}
		s.store = state.NewS3Store(client, cfg.Bucket, cfg.Prefix)
		s.logger.V(1).Info("using s3 state backend", "bucket", cfg.Bucket, "prefix", cfg.Prefix)
	default:
		fs := state.NewFileStore(s.settings.StateDir, s.logger.WithName("state"))
		if mode == exclusive {
			unlock, err := fs.Lock(s.planID())
			if err != nil {
				if errors.Is(err, state.ErrLocked) {
					return fmt.Errorf("another stagehand process is working on plan %s: %w", s.planID(), err)
				}
				return err
			}
			s.closers = append(s.closers, func() {
				if err := unlock(); err != nil {
					s.logger.Error(err, "failed to release plan lock")
				}
			})
		}
		s.store = fs
	}
	return nil
}

func (s *session) openSinks() error {
	if path := s.settings.JournalPath; path != "" {
		j, err := openJournal(path)
		if err != nil {
			return fmt.Errorf("failed to open journal: %w", err)
		}
		s.journal = j
		s.closers = append(s.closers, func() { _ = j.Close() })
	}
	if path := s.settings.MetricsFile; path != "" {
		s.metrics = metrics.NewRecorder()
		s.closers = append(s.closers, func() {
			if err := s.metrics.WriteTextfile(path); err != nil {
				s.logger.Error(err, "failed to write metrics", "path", path)
			}
		})
	}
	return nil
}

func (s *session) sink() events.Sink {
	sinks := events.Multi{events.LogSink{Logger: s.logger.WithName("events")}}
	if s.journal != nil {
		sinks = append(sinks, s.journal)
	}
	if s.metrics != nil {
		sinks = append(sinks, s.metrics)
	}
	return sinks
}

func (s *session) orchestrator(opts ...orchestrator.Option) *orchestrator.Orchestrator {
	engine := validation.NewEngine(s.logger.WithName("validation"),
		validation.WithParallelism(s.settings.ValidationParallelism))
	exec := executor.New(engine, s.logger.WithName("executor"))
	coordinator := fleet.NewCoordinator(exec, s.logger.WithName("fleet"))

	opts = append([]orchestrator.Option{
		orchestrator.WithSink(s.sink()),
		orchestrator.WithLogger(s.logger.WithName("orchestrator")),
	}, opts...)
	return orchestrator.New(s.plan, s.store, engine, coordinator, opts...)
}

// close releases resources in reverse order of acquisition.
func (s *session) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}
