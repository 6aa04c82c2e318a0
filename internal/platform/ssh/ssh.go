package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/imamik/stagehand/internal/util/retry"
)

const (
	defaultPort        = 22
	defaultDialTimeout = 10 * time.Second
	defaultMaxAttempts = 5
	defaultRetryDelay  = 2 * time.Second
	defaultMaxDelay    = 10 * time.Second
)

// Config holds SSH client configuration shared by all nodes.
type Config struct {
	Port       int
	User       string
	PrivateKey []byte

	// DialTimeout bounds establishing the TCP connection and handshake.
	// If zero, defaultDialTimeout is used.
	DialTimeout time.Duration

	// MaxAttempts is the number of connection attempts per command.
	// If zero, defaultMaxAttempts is used.
	MaxAttempts int

	// RetryDelay is the initial delay between connection attempts.
	// If zero, defaultRetryDelay is used.
	RetryDelay time.Duration

	// HostKeyCallback handles host key verification.
	// If nil, ssh.InsecureIgnoreHostKey() is used.
	HostKeyCallback ssh.HostKeyCallback
}

// Output is the result of a remote command.
type Output struct {
	// Combined holds stdout and stderr, interleaved.
	Combined string
	ExitCode int
}

// Client runs commands on remote hosts. It parses the private key once and
// creates a connection per Run call.
type Client struct {
	config Config
	signer ssh.Signer
}

// NewClient creates a client and validates the private key.
func NewClient(cfg Config) (*Client, error) {
	if cfg.User == "" {
		return nil, errors.New("config user cannot be empty")
	}
	if len(cfg.PrivateKey) == 0 {
		return nil, errors.New("config private key cannot be empty")
	}

	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if cfg.HostKeyCallback == nil {
		cfg.HostKeyCallback = ssh.InsecureIgnoreHostKey() //nolint:gosec // nodes are operator-declared lab hosts
	}

	signer, err := ssh.ParsePrivateKey(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return &Client{config: cfg, signer: signer}, nil
}

// Address returns host:port for host. A host that already carries a port
// keeps it.
func (c *Client) Address(host string) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	return net.JoinHostPort(host, strconv.Itoa(c.config.Port))
}

// Run executes command on host. A non-zero exit status is reported in Output;
// the error is only set when the command could not be run at all.
func (c *Client) Run(ctx context.Context, host, command string) (Output, error) {
	client, err := c.connect(ctx, c.Address(host))
	if err != nil {
		return Output{}, err
	}
	defer func() { _ = client.Close() }()

	return c.runCommand(ctx, client, host, command)
}

// connect establishes an SSH connection with retry.
func (c *Client) connect(ctx context.Context, addr string) (*ssh.Client, error) {
	config := &ssh.ClientConfig{
		User:            c.config.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(c.signer)},
		HostKeyCallback: c.config.HostKeyCallback,
		Timeout:         c.config.DialTimeout,
	}

	var client *ssh.Client
	attempts, err := retry.Do(ctx, func(int) error {
		var dialErr error
		client, dialErr = dial(ctx, addr, config)
		if isAuthError(dialErr) {
			return retry.Fatal(dialErr)
		}
		return dialErr
	},
		retry.WithMaxAttempts(c.config.MaxAttempts),
		retry.WithInitialDelay(c.config.RetryDelay),
		retry.WithMaxDelay(defaultMaxDelay),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to establish SSH connection to %s after %d attempts: %w", addr, attempts, err)
	}
	return client, nil
}

func dial(ctx context.Context, addr string, config *ssh.ClientConfig) (*ssh.Client, error) {
	d := net.Dialer{Timeout: config.Timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	if config.Timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(config.Timeout))
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	_ = conn.SetDeadline(time.Time{})
	return ssh.NewClient(sshConn, chans, reqs), nil
}

func isAuthError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "unable to authenticate")
}

// lockedBuffer lets stdout and stderr share one buffer; the session copies
// each stream on its own goroutine.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// runCommand executes command on an established connection. Cancelling ctx
// closes the session.
func (c *Client) runCommand(ctx context.Context, client *ssh.Client, host, command string) (Output, error) {
	session, err := client.NewSession()
	if err != nil {
		return Output{}, fmt.Errorf("failed to create SSH session on %s: %w", host, err)
	}
	defer func() { _ = session.Close() }()

	buf := &lockedBuffer{}
	session.Stdout = buf
	session.Stderr = buf

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		_ = session.Close()
		<-done
		return Output{Combined: buf.String()}, fmt.Errorf("command on %s interrupted: %w", host, ctx.Err())
	case err = <-done:
	}

	out := Output{Combined: buf.String()}
	if err == nil {
		return out, nil
	}
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		out.ExitCode = exitErr.ExitStatus()
		return out, nil
	}
	return out, fmt.Errorf("command failed on %s: %w", host, err)
}
