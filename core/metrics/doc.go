// Package metrics defines the sinks that record bridge and hub activity.
// A Sink must record published samples; the optional recorder interfaces
// let a sink opt into command, loop error and enrollment events.
package metrics
