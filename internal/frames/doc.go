// Package frames extracts per-step stills and short clips from a processed
// video and uploads them to object storage. It also provides a standalone
// interval sampler that drops near-duplicate frames using a perceptual hash.
package frames
