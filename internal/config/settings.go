package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Backend selects where checkpoints are persisted.
type Backend string

const (
	// BackendFile stores one JSON file per plan under StateDir.
	BackendFile Backend = "file"
	// BackendS3 stores one JSON object per plan in an S3 bucket.
	BackendS3 Backend = "s3"
)

// S3 holds object storage settings for the s3 state backend.
type S3 struct {
	Endpoint     string
	Region       string
	Bucket       string
	Prefix       string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

// SSH holds credentials for stages that run commands on remote nodes.
type SSH struct {
	User    string
	KeyPath string
	Port    int
}

// Settings holds all tool settings.
type Settings struct {
	StateDir     string
	StateBackend Backend
	S3           S3

	NodeTimeout           time.Duration // Default bound for one stage on one node
	RetryInitialDelay     time.Duration // Default delay before retrying an idempotent stage
	ValidationParallelism int           // Nodes validated concurrently

	SSH         SSH
	HCloudToken string

	JournalPath string // SQLite transition journal; empty disables it
	MetricsFile string // Prometheus textfile written after each run; empty disables it
}

// Load reads settings from environment variables.
// If an environment variable is not set or invalid, a default value is used.
//
// Environment Variables:
//   - STAGEHAND_STATE_DIR (default: .stagehand)
//   - STAGEHAND_STATE_BACKEND (default: file)
//   - STAGEHAND_S3_ENDPOINT, STAGEHAND_S3_REGION (default: us-east-1),
//     STAGEHAND_S3_BUCKET, STAGEHAND_S3_PREFIX (default: stagehand),
//     STAGEHAND_S3_ACCESS_KEY, STAGEHAND_S3_SECRET_KEY,
//     STAGEHAND_S3_PATH_STYLE (default: true)
//   - STAGEHAND_TIMEOUT_NODE (default: 30m)
//   - STAGEHAND_RETRY_INITIAL_DELAY (default: 2s)
//   - STAGEHAND_VALIDATION_PARALLELISM (default: 8)
//   - STAGEHAND_SSH_USER (default: root)
//   - STAGEHAND_SSH_KEY (default: ~/.ssh/id_ed25519)
//   - STAGEHAND_SSH_PORT (default: 22)
//   - HCLOUD_TOKEN
//   - STAGEHAND_JOURNAL
//   - STAGEHAND_METRICS_FILE
func Load() *Settings {
	return &Settings{
		StateDir:     parseString("STAGEHAND_STATE_DIR", ".stagehand"),
		StateBackend: Backend(parseString("STAGEHAND_STATE_BACKEND", string(BackendFile))),
		S3: S3{
			Endpoint:     os.Getenv("STAGEHAND_S3_ENDPOINT"),
			Region:       parseString("STAGEHAND_S3_REGION", "us-east-1"),
			Bucket:       os.Getenv("STAGEHAND_S3_BUCKET"),
			Prefix:       parseString("STAGEHAND_S3_PREFIX", "stagehand"),
			AccessKey:    os.Getenv("STAGEHAND_S3_ACCESS_KEY"),
			SecretKey:    os.Getenv("STAGEHAND_S3_SECRET_KEY"),
			UsePathStyle: parseBool("STAGEHAND_S3_PATH_STYLE", true),
		},
		NodeTimeout:           parseDuration("STAGEHAND_TIMEOUT_NODE", 30*time.Minute),
		RetryInitialDelay:     parseDuration("STAGEHAND_RETRY_INITIAL_DELAY", 2*time.Second),
		ValidationParallelism: parseInt("STAGEHAND_VALIDATION_PARALLELISM", 8),
		SSH: SSH{
			User:    parseString("STAGEHAND_SSH_USER", "root"),
			KeyPath: parseString("STAGEHAND_SSH_KEY", defaultKeyPath()),
			Port:    parseInt("STAGEHAND_SSH_PORT", 22),
		},
		HCloudToken: os.Getenv("HCLOUD_TOKEN"),
		JournalPath: os.Getenv("STAGEHAND_JOURNAL"),
		MetricsFile: os.Getenv("STAGEHAND_METRICS_FILE"),
	}
}

// Validate reports settings that cannot work together.
func (s *Settings) Validate() error {
	switch s.StateBackend {
	case BackendFile:
		if s.StateDir == "" {
			return fmt.Errorf("state directory is required for the %s backend", BackendFile)
		}
	case BackendS3:
		if s.S3.Bucket == "" {
			return fmt.Errorf("STAGEHAND_S3_BUCKET is required for the %s backend", BackendS3)
		}
		if s.S3.AccessKey == "" || s.S3.SecretKey == "" {
			return fmt.Errorf("STAGEHAND_S3_ACCESS_KEY and STAGEHAND_S3_SECRET_KEY are required for the %s backend", BackendS3)
		}
	default:
		return fmt.Errorf("unknown state backend %q (want %s or %s)", s.StateBackend, BackendFile, BackendS3)
	}
	return nil
}

func defaultKeyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".ssh", "id_ed25519")
}

func parseString(envVar, defaultVal string) string {
	if val := os.Getenv(envVar); val != "" {
		return val
	}
	return defaultVal
}

// parseDuration parses a duration from an environment variable.
// If the variable is not set, not positive or parsing fails, the default value is returned.
func parseDuration(envVar string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(envVar)
	if val == "" {
		return defaultVal
	}

	d, err := time.ParseDuration(val)
	if err != nil || d <= 0 {
		return defaultVal
	}

	return d
}

// parseInt parses a positive integer from an environment variable.
// If the variable is not set or parsing fails, the default value is returned.
func parseInt(envVar string, defaultVal int) int {
	val := os.Getenv(envVar)
	if val == "" {
		return defaultVal
	}

	i, err := strconv.Atoi(val)
	if err != nil || i <= 0 {
		return defaultVal
	}

	return i
}

func parseBool(envVar string, defaultVal bool) bool {
	val := os.Getenv(envVar)
	if val == "" {
		return defaultVal
	}

	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}

	return b
}
