// Package fleet fans a stage out across the node set and applies the stage's
// barrier policy to the joined results.
//
// Nodes run concurrently with no locking between them; the only
// synchronization point is the join after every node reports or times out.
// Node operations run on a context detached from the caller's cancellation,
// bounded only by the stage's per-node timeout, so an operator abort never
// leaves a node without a recorded result.
package fleet
