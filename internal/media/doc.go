// Package media wraps the ffmpeg and ffprobe binaries for the operations the
// pipeline needs: stream separation, audio compression, frame and clip
// extraction, and concat merging. All commands honor a kill timeout so a
// wedged tool cannot stall a job forever.
package media
