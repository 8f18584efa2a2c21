// Package planner turns a transcript into a structured how-to guide by
// prompting the LLM and cleaning up the steps it returns.
package planner
