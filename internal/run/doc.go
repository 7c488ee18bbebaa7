// Package run drives the engine through its run-state machine.
//
// States move Idle -> Running -> {Paused, Idle, Cancelled}, Paused ->
// {Running, Idle, Cancelled} and Cancelled -> {Running, Idle}. Invalid
// transitions are no-ops that return false.
//
// # Cooperative interruption
//
// The engine owns the timestep loop while it executes a multi-step command.
// Once per timestep it calls [Controller.Checkpoint], which is the only point
// where the host can stop it early. Cancel is latched and advisory: the
// engine stops at its next checkpoint, never mid-step.
package run
