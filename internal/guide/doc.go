// Package guide defines the produced how-to document model shared by the
// pipeline, the merge service, and the API.
package guide
