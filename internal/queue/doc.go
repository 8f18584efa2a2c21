// Package queue persists processing jobs in SQLite and mediates every status
// transition. Handlers enqueue pending jobs, the workflow manager claims and
// advances them, and terminal states are final once recorded.
package queue
