// Package ssh runs commands on deployment nodes over SSH.
//
// One Client holds a parsed key and connects to any node on demand, so a
// whole fleet shares a single client. Connections are retried with backoff
// because nodes are routinely unreachable while they reboot between stages.
// The remote exit status is returned as data: a non-zero exit is not an
// error, since stage operations give specific exit codes meaning (for
// example a reboot request).
//
// Security: host key verification is disabled unless HostKeyCallback is set.
package ssh
