// Package state holds the durable record of deployment progress.
//
// [DeploymentState] is the single source of truth for how far a plan got:
// which stages completed, which stage is current, and every per-node result
// ever recorded. A [Store] persists it atomically: after a crash, Load returns
// either the previous or the new version, never a mix.
//
// Two stores are provided. [FileStore] writes one JSON file per plan and
// replaces it by rename. [S3Store] keeps the same JSON document as an object,
// relying on the object store's atomic PUT.
package state
