// Package merge combines a run of consecutive guide steps into a single step
// with one concatenated clip and a summarized description.
package merge
