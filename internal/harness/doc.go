// Package harness runs YAML-defined match scenarios against a real
// store and controller.
//
// A scenario describes a flow of scoring actions (points, highlights,
// undos, game and match ends) plus assertions on the final projected
// state. The runner executes the flow through the controller's
// single-writer loop, formats a step-by-step trace, and compares it
// against a golden file. Clock, randomness, and event ids are pinned so
// traces are reproducible.
package harness
