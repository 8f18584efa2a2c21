// Package workflow runs the job queue: a manager claims pending jobs from the
// store and drives each one through its pipeline to a terminal state, firing
// the webhook notification exactly once per finished job.
package workflow
