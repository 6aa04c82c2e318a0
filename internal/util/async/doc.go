// Package async provides utilities for parallel task execution.
//
// The [Gather] function runs independent tasks concurrently, bounds each one
// with its own deadline, and returns one result per task in input order. A
// task that misses its deadline is represented by the value its OnTimeout
// callback produces, so callers always get a complete result set.
package async
