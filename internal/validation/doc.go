// Package validation runs named checks against nodes and turns their reports
// into a gating decision.
//
// Checks are read-only probes of a node or its environment. Each returns a
// [Report] carrying a [Severity]. The [Engine] evaluates a list of bound
// checks across a node set with bounded parallelism, and [Evaluate] decides
// whether a stage may proceed: any failed Blocking report stops it, failed
// Warning reports are surfaced but do not.
//
// Reports are advisory. They are produced fresh on every run and never stored
// as deployment state.
package validation
