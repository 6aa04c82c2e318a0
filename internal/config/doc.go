// Package config loads stagehand's tool settings from the environment.
//
// Settings cover where checkpoints are stored, default per-node timeouts,
// SSH credentials for remote command stages and optional sinks. Plan files
// are handled by package plan; nothing here describes the rollout itself.
//
// Every setting has a default. A variable that is set but cannot be parsed
// falls back to its default rather than failing the run.
package config
