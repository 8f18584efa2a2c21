// Package sources classifies video URLs and downloads them into a local
// working directory ahead of processing.
package sources
