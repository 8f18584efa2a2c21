package workflow

import (
	"encoding/json"

	"vid2doc/internal/guide"
	"vid2doc/internal/notifications"
	"vid2doc/internal/planner"
)

// Options carries the caller-supplied knobs stored alongside a job.
type Options struct {
	PreferredNumberOfSteps string          `json:"preferredNumberOfSteps,omitempty"`
	PreferredLanguage      string          `json:"preferredLanguage,omitempty"`
	PreferredTonality      string          `json:"preferredTonality,omitempty"`
	CallbackURL            string          `json:"callbackUrl,omitempty"`
	WebhookSecret          string          `json:"webhookSecret,omitempty"`
	CreatorInfo            json.RawMessage `json:"creatorInfo,omitempty"`
}

// ParseOptions decodes stored job options. Malformed or empty input yields
// zero options rather than an error; a job is never failed over its options.
func ParseOptions(raw string) Options {
	var opts Options
	if raw == "" {
		return opts
	}
	_ = json.Unmarshal([]byte(raw), &opts)
	return opts
}

// Encode renders the options for storage.
func (o Options) Encode() (string, error) {
	data, err := json.Marshal(o)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Preferences maps the stored options onto planner preferences.
func (o Options) Preferences() planner.Preferences {
	return planner.Preferences{
		NumberOfSteps: o.PreferredNumberOfSteps,
		Language:      o.PreferredLanguage,
		Tonality:      o.PreferredTonality,
	}
}

// Webhook returns the delivery target, zero-valued when none was supplied.
func (o Options) Webhook() notifications.WebhookConfig {
	return notifications.WebhookConfig{URL: o.CallbackURL, Secret: o.WebhookSecret}
}

// MergeInput is the payload stored for merge jobs.
type MergeInput struct {
	ProjectID string                `json:"projectId"`
	Steps     []guide.ProcessedStep `json:"steps"`
}
