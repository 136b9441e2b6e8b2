// Package launcher starts the managed application and classifies its startup.
//
// A launch runs two concurrent units: a drain goroutine copying the combined
// output of the child into a bounded Transcript, and the calling goroutine
// polling that transcript for success or failure markers. When polling ends
// the transcript stops recording; a child that did not start successfully is
// cancelled exactly once. The live health check has the final word over the
// transcript.
package launcher
