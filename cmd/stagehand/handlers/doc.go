// Package handlers implements the business logic for stagehand CLI commands.
//
// Each handler wires settings, the plan file, the state store and the
// orchestrator for one command. Collaborators are created through
// package-level factory variables so tests can replace them.
//
// Handlers report how the process should exit through [ExitError]: a halted
// plan exits 1, a plan paused for reboot exits 2 and any internal failure
// exits 3.
package handlers
