// Package transcript converts timed transcription segments into the XML
// document the step extraction prompt consumes, and parses it back for
// inspection tooling.
package transcript
