package guide

// Media kinds carried by a split step.
const (
	MediaTypeImage = "image"
	MediaTypeVideo = "video"
)

// TranscriptSegment is one timed line of the spoken transcript.
type TranscriptSegment struct {
	Timestamp float64 `json:"timestamp"`
	Text      string  `json:"text"`
}

// ProcessedStep is one guide step with its extracted media references.
// FramePath and VideoPath may be empty when extraction for that timestamp
// failed; the rest of the document is still valid.
type ProcessedStep struct {
	SerialNumber  int     `json:"serialNumber"`
	Title         string  `json:"title"`
	Timestamp     float64 `json:"timestamp"`
	Description   string  `json:"description"`
	FramePath     string  `json:"framePath"`
	VideoPath     string  `json:"videoPath"`
	VideoDuration float64 `json:"videoDuration"`
}

// SplitStep is a flattened view of a step carrying exactly one media kind so
// renderers can lay out images and clips independently.
type SplitStep struct {
	SerialNumber  int     `json:"serialNumber"`
	Title         string  `json:"title"`
	Timestamp     float64 `json:"timestamp"`
	Description   string  `json:"description"`
	MediaType     string  `json:"mediaType"`
	MediaPath     string  `json:"mediaPath"`
	VideoDuration float64 `json:"videoDuration"`
}

// ProcessedVideo is the complete document produced for one job.
type ProcessedVideo struct {
	ProjectID     string              `json:"projectId"`
	Title         string              `json:"title"`
	Overview      string              `json:"overview"`
	Steps         []ProcessedStep     `json:"steps"`
	Transcript    []TranscriptSegment `json:"transcript"`
	VideoDuration float64             `json:"videoDuration"`
	SplittedSteps []SplitStep         `json:"splittedSteps"`
}

// SplitSteps expands each step into its video and image entries, in that
// order, mirroring the step's serial number.
func SplitSteps(steps []ProcessedStep) []SplitStep {
	split := make([]SplitStep, 0, len(steps)*2)
	for _, step := range steps {
		split = append(split,
			SplitStep{
				SerialNumber:  step.SerialNumber,
				Title:         step.Title,
				Timestamp:     step.Timestamp,
				Description:   step.Description,
				MediaType:     MediaTypeVideo,
				MediaPath:     step.VideoPath,
				VideoDuration: step.VideoDuration,
			},
			SplitStep{
				SerialNumber:  step.SerialNumber,
				Title:         step.Title,
				Timestamp:     step.Timestamp,
				Description:   step.Description,
				MediaType:     MediaTypeImage,
				MediaPath:     step.FramePath,
				VideoDuration: step.VideoDuration,
			},
		)
	}
	return split
}

// ValidConsecutive reports whether the serial numbers form a contiguous
// ascending run. The run may start at any serial.
func ValidConsecutive(steps []ProcessedStep) bool {
	for i := 1; i < len(steps); i++ {
		if steps[i].SerialNumber != steps[i-1].SerialNumber+1 {
			return false
		}
	}
	return true
}
