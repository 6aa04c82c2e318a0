// Package executor runs one stage against one node and classifies the result.
//
// Every call ends in exactly one [state.Outcome]. Operation errors, panics and
// timeouts are captured as a Failed result rather than returned, so a broken
// node never aborts the rest of the fleet.
//
// Classification, in order:
//
//  1. skipWhen checks all pass: Skipped.
//  2. The previous attempt was RebootPending: post-conditions decide
//     (Success, RebootPending or Failed). With no checks at all the reboot is
//     acknowledged as Success. With only skipWhen checks the operation is
//     applied again.
//  3. The operation is applied. An error or a failed result is Failed. A
//     reboot signal, from the operation or the stage definition, is
//     RebootPending. Otherwise post-conditions must pass for Success.
//
// Idempotent stages retry Failed attempts up to their configured bound; each
// attempt is returned so the caller can record the full history.
package executor
