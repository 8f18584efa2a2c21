// Package language normalizes the caller-supplied preferred language into the
// form the generation prompts expect.
package language
