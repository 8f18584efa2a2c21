package language

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// DefaultLanguage is used when a request carries no preference.
const DefaultLanguage = "English"

// Normalize returns the canonical BCP-47 tag for the input, or empty when the
// input cannot be parsed as a language.
func Normalize(input string) string {
	input = strings.TrimSpace(input)
	if input == "" {
		return ""
	}
	tag, err := language.Parse(input)
	if err != nil {
		return ""
	}
	return tag.String()
}

// PromptName resolves the human-readable English name used inside generation
// prompts. Unrecognized input is passed through title-cased so a caller can
// request languages the matcher does not know about.
func PromptName(input string) string {
	input = strings.TrimSpace(input)
	if input == "" {
		return DefaultLanguage
	}
	if tag, err := language.Parse(input); err == nil {
		if name := display.English.Languages().Name(tag); name != "" {
			return name
		}
	}
	return cases.Title(language.English).String(input)
}
