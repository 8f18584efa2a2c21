// Package notifications delivers job snapshots to caller-supplied webhook
// endpoints when a job reaches a terminal state.
package notifications
