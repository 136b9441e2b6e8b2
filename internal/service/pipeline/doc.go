// Package pipeline pushes the Application state of one deployment cycle
// through the ordered stages prepare, validate and start.
//
// Every stage returns an Outcome instead of an error: Continue hands a new
// state to the next stage, Abort ends the cycle with a fault and
// RollbackRequested runs the rollback stage before the launch fault is
// surfaced. Stages never mutate their input; they return a clone.
package pipeline
