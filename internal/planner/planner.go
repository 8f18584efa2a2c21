package planner

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"vid2doc/internal/language"
	"vid2doc/internal/services/llm"
)

// Client captures the LLM surface the planner needs.
type Client interface {
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Preferences are the caller-supplied knobs for guide generation.
type Preferences struct {
	NumberOfSteps string
	Language      string
	Tonality      string
}

// withDefaults fills blank preferences with the documented defaults.
func (p Preferences) withDefaults() Preferences {
	if strings.TrimSpace(p.NumberOfSteps) == "" {
		p.NumberOfSteps = "auto"
	}
	p.Language = language.PromptName(p.Language)
	if strings.TrimSpace(p.Tonality) == "" {
		p.Tonality = "auto"
	}
	return p
}

// Step is one actionable instruction anchored to a moment in the video.
type Step struct {
	Timestamp   float64 `json:"timestamp"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
}

// Guide is the structured how-to document produced from a transcript.
type Guide struct {
	Title    string `json:"title"`
	Overview string `json:"overview"`
	Steps    []Step `json:"steps"`
}

// Planner generates guides through an LLM client.
type Planner struct {
	client Client
}

// New returns a Planner backed by the given LLM client.
func New(client Client) *Planner {
	return &Planner{client: client}
}

// ExtractSteps prompts the LLM with the transcript and returns the cleaned
// guide. Steps outside the video duration are clamped, empty steps dropped,
// and the result is ordered by timestamp.
func (p *Planner) ExtractSteps(ctx context.Context, xmlTranscript string, videoDuration float64, prefs Preferences) (Guide, error) {
	prefs = prefs.withDefaults()
	userPrompt, err := renderPrompt(stepGenerationUserPrompt, map[string]string{
		"videoDuration":          fmt.Sprintf("%d", int(math.Floor(videoDuration))),
		"preferredNumberOfSteps": prefs.NumberOfSteps,
		"preferredLanguage":      prefs.Language,
		"preferredTonality":      prefs.Tonality,
		"xmlTranscript":          xmlTranscript,
	})
	if err != nil {
		return Guide{}, err
	}

	response, err := p.client.CompleteJSON(ctx, StepGenerationSystemPrompt, userPrompt)
	if err != nil {
		return Guide{}, fmt.Errorf("generate guide: %w", err)
	}

	var guide Guide
	if err := llm.DecodeLLMJSON(response, &guide); err != nil {
		return Guide{}, fmt.Errorf("decode guide: %w", err)
	}

	guide.Title = strings.TrimSpace(guide.Title)
	guide.Overview = strings.TrimSpace(guide.Overview)
	guide.Steps = NormalizeSteps(guide.Steps, videoDuration)
	if len(guide.Steps) == 0 {
		return Guide{}, fmt.Errorf("guide contains no usable steps")
	}
	return guide, nil
}

// NormalizeSteps clamps timestamps to [0, videoDuration], trims text, sorts by
// time, and drops steps with empty descriptions or a timestamp equal to the
// previous step's.
func NormalizeSteps(steps []Step, videoDuration float64) []Step {
	cleaned := make([]Step, 0, len(steps))
	for _, step := range steps {
		cleaned = append(cleaned, Step{
			Timestamp:   math.Min(math.Max(0, step.Timestamp), videoDuration),
			Title:       strings.TrimSpace(step.Title),
			Description: strings.TrimSpace(step.Description),
		})
	}
	sort.SliceStable(cleaned, func(i, j int) bool {
		return cleaned[i].Timestamp < cleaned[j].Timestamp
	})

	result := make([]Step, 0, len(cleaned))
	for _, step := range cleaned {
		if step.Description == "" {
			continue
		}
		if len(result) > 0 && result[len(result)-1].Timestamp == step.Timestamp {
			continue
		}
		result = append(result, step)
	}
	return result
}
