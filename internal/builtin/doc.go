// Package builtin provides the operations and checks every plan can use.
//
// Operations:
//
//   - noop: does nothing. Param rebootRequired (bool) makes it report that a
//     reboot is needed, which is how placeholder reboot stages are modelled.
//   - command: runs a shell command on the node. Exit 0 succeeds, exit
//     rebootExitCode (default 3010) succeeds with a reboot required, any
//     other exit fails with the command output as detail.
//   - wait-for-port: polls node:port until it accepts connections.
//
// Checks:
//
//   - command: passes when the command exits 0.
//   - tcp-port: passes when node:port accepts a TCP connection.
//   - hcloud-server-running: passes when the Hetzner Cloud server named like
//     the node exists and is running.
//   - config-key: passes when the plan config holds a non-empty key, or the
//     given value when one is set.
//
// Commands may reference ${NODE} and any plan config key as ${key}. Commands
// run over SSH unless the node is a loopback name or transport is local.
package builtin
