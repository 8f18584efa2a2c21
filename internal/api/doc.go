// Package api exposes the HTTP surface for submitting videos, polling job
// state, and merging processed steps. Handlers validate input and record
// jobs; the workflow manager does the processing.
package api
