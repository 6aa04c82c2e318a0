// Package retry provides exponential backoff retry logic for transient failures.
//
// The [Do] function retries an operation up to a total number of attempts,
// with an initial delay that grows by a multiplier up to a maximum delay. It
// is used by the node executor for stages declared idempotent and by the SSH
// transport while a node is still coming up.
package retry
