package planner

import (
	"fmt"
	"regexp"
	"strings"
)

// StepGenerationSystemPrompt is the system prompt sent to the LLM when turning
// a transcript into a step-by-step guide.
const StepGenerationSystemPrompt = `You are an expert technical writer specializing in creating step-by-step guides from video transcripts. Your task is to create a clear, actionable how-to guide.

KEY REQUIREMENTS:
1. Focus on ACTIONABLE steps only
2. Each step must have a valid timestamp from the transcript
3. Steps should be chronological and not skip important actions
4. Each step should be a single, clear instruction
5. Use clear, direct language for instructions

CUSTOMIZATION RULES:
1. If Preferred Number of steps is specified, strictly generate at max exactly that many steps
2. If Preferred Number of steps is "auto", generate steps based on content importance
3. If Preferred Language is specified, generate step descriptions in that language
4. If Preferred Language is "English", use English for step descriptions
5. If Preferred Tonality is specified, use that tone to write the text contents.

Your output must follow this JSON format:
{
  "title": "Clear, action-oriented title",
  "overview": "Brief description of what will be learned (max 2 sentences)",
  "steps": [
    {
      "timestamp": timestamp_in_seconds,
      "title": "Clear, Concise, actionable instruction",
      "description": "Context of the step (max 2 sentences)"
    }
  ]
}

IMPORTANT RULES:
- Each timestamp must exist within the given video duration
- Steps must be in chronological order
- Each step description should start with an action verb
- Keep step descriptions concise but clear
- Include all necessary steps to achieve the goal
- Focus on the HOW rather than the WHY
- Timestamps should match significant actions in the transcript
- If Preferred Language is specified, generate step descriptions in that language
- If Preferred Number of Steps is specified, generate exactly that many steps (at max)
- If Preferred Tonality is specified, strictly stick to that personality`

// stepGenerationUserPrompt carries the transcript plus the caller preferences.
const stepGenerationUserPrompt = `Please create a step-by-step guide from this video transcript. The video duration is {{videoDuration}} seconds.

User Preferences:
- Number of steps: {{preferredNumberOfSteps}}
- Language: {{preferredLanguage}}
- Tonality: {{preferredTonality}}

Transcript:
{{xmlTranscript}}`

// MergeSummarySystemPrompt is the system prompt used when condensing several
// step descriptions into one narrative.
const MergeSummarySystemPrompt = `You are an expert in summarizing technical instructions. Your task is to create a concise summary of multiple step descriptions.

KEY REQUIREMENTS:
1. Produce a brief summary
2. Maintain the essential actions in order
3. Focus on key steps and outcomes
4. Use clear, concise language
5. Limit to 2-3 sentences maximum

IMPORTANT GUIDELINES:
- Capture the main goal and critical steps
- Omit minor details or repetitive actions
- Use active voice and technical terms accurately
- Ensure the summary is coherent and easy to understand`

const mergeSummaryUserPrompt = `Please merge these step descriptions into a single, flowing narrative:

{{stepDescriptions}}
`

var placeholderPattern = regexp.MustCompile(`\{\{([a-zA-Z][a-zA-Z0-9]*)\}\}`)

// renderPrompt substitutes {{name}} placeholders in a template. A placeholder
// without a value is an error so prompt edits cannot silently ship half-filled.
func renderPrompt(template string, values map[string]string) (string, error) {
	var missing []string
	rendered := placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		value, ok := values[name]
		if !ok {
			missing = append(missing, name)
			return match
		}
		return value
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("prompt template missing values for placeholders: %s", strings.Join(missing, ", "))
	}
	return rendered, nil
}

// BuildMergeUserPrompt renders the merge summary prompt for the given step
// descriptions XML.
func BuildMergeUserPrompt(stepDescriptionsXML string) (string, error) {
	return renderPrompt(mergeSummaryUserPrompt, map[string]string{
		"stepDescriptions": stepDescriptionsXML,
	})
}
