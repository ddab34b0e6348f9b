// Package strategy implements the rule engine that reacts to incoming
// telemetry.
//
// A Strategy belongs to a project and watches one trigger device. Its
// ordered condition chain compares sensor readings against typed
// thresholds; when the chain holds, its actions run: email notification,
// actuator control, or webhook call.
//
// The Engine implements the telemetry data sink, so evaluation happens
// synchronously after each ingestion transaction commits, once per
// created sensor data row, in insertion order. Isolation is layered:
// one failing strategy never affects the others, one failing action
// never stops the remaining actions of the same strategy, and every
// action attempt — success or failure — leaves exactly one StrategyLog
// row behind.
//
// # Condition chain semantics
//
// Conditions are walked in position order. Only conditions bound to the
// sensor that produced the data row are evaluated; the rest keep their
// list positions but contribute no verdict. The first evaluated
// condition seeds the running result, and each later one is folded in
// using the logical operator of the condition immediately preceding it
// in list order (a nil operator leaves the result unchanged). The walk
// never short-circuits. A chain in which nothing was evaluated does not
// hold.
package strategy
