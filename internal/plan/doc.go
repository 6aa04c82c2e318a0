// Package plan defines deployment stages and loads them from plan files.
//
// A plan file (YAML) names the plan, its node set, a configuration snapshot
// and an ordered list of stages. Each stage references an operation and any
// number of checks by name. A [Registry] resolves those names into bound
// callbacks, producing an immutable [Plan] whose [Stage] values the
// orchestrator walks in order.
//
// # File format
//
//	id: hyperv-cluster
//	nodes: [hv1, hv2]
//	config:
//	  domain: corp.local
//	stages:
//	  - id: install-role
//	    requiresReboot: true
//	    barrier: AllMustSucceed
//	    validation:
//	      - check: tcp-port
//	        params: {port: "22"}
//	    skipWhen:
//	      - check: command
//	        params: {command: "test -f /etc/role-installed"}
//	    operation:
//	      name: command
//	      params: {command: "install-role"}
//	  - id: create-cluster
//	    dependsOn: [install-role]
//	    operation: {name: noop}
package plan
