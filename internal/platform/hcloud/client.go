package hcloud

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"

	"github.com/imamik/stagehand/internal/util/retry"
)

const (
	defaultMaxAttempts  = 5
	defaultInitialDelay = 2 * time.Second
	defaultMaxDelay     = 30 * time.Second
)

// ErrServerNotFound is returned when no server carries the requested name.
var ErrServerNotFound = errors.New("server not found")

// Server holds the server fields node checks look at.
type Server struct {
	ID         int64
	Name       string
	Status     hcloud.ServerStatus
	PublicIPv4 string
	Labels     map[string]string
}

// Running reports whether the server is powered on.
func (s *Server) Running() bool {
	return s.Status == hcloud.ServerStatusRunning
}

// Client queries the Hetzner Cloud API.
type Client struct {
	client       *hcloud.Client
	maxAttempts  int
	initialDelay time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHCloudClient sets a custom hcloud client (useful for testing).
func WithHCloudClient(hc *hcloud.Client) ClientOption {
	return func(c *Client) {
		c.client = hc
	}
}

// WithRetry sets how often a lookup is attempted while the API reports a
// transient error.
func WithRetry(maxAttempts int, initialDelay time.Duration) ClientOption {
	return func(c *Client) {
		if maxAttempts > 0 {
			c.maxAttempts = maxAttempts
		}
		if initialDelay > 0 {
			c.initialDelay = initialDelay
		}
	}
}

// NewClient creates a client authenticated with token.
func NewClient(token string, opts ...ClientOption) *Client {
	c := &Client{
		client:       hcloud.NewClient(hcloud.WithToken(token), hcloud.WithApplication("stagehand", "")),
		maxAttempts:  defaultMaxAttempts,
		initialDelay: defaultInitialDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetServer returns the server named name.
func (c *Client) GetServer(ctx context.Context, name string) (*Server, error) {
	var server *hcloud.Server
	_, err := retry.Do(ctx, func(int) error {
		var getErr error
		server, _, getErr = c.client.Server.GetByName(ctx, name)
		if getErr != nil && !isTransient(getErr) {
			return retry.Fatal(getErr)
		}
		return getErr
	},
		retry.WithMaxAttempts(c.maxAttempts),
		retry.WithInitialDelay(c.initialDelay),
		retry.WithMaxDelay(defaultMaxDelay),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get server %s: %w", name, err)
	}
	if server == nil {
		return nil, fmt.Errorf("%s: %w", name, ErrServerNotFound)
	}

	s := &Server{
		ID:     server.ID,
		Name:   server.Name,
		Status: server.Status,
		Labels: server.Labels,
	}
	if ip := server.PublicNet.IPv4.IP; ip != nil && !ip.IsUnspecified() {
		s.PublicIPv4 = ip.String()
	}
	return s, nil
}
