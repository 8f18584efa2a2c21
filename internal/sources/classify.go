package sources

import "regexp"

// Kind identifies where a video URL points.
type Kind string

const (
	KindYouTube    Kind = "youtube"
	KindLoom       Kind = "loom"
	KindCloudFront Kind = "cloudfront"
	KindS3         Kind = "s3"
	KindInvalid    Kind = "none"
)

var (
	youtubePattern    = regexp.MustCompile(`^(https?://)?(www\.)?(youtube\.com|youtu\.be)/.+`)
	loomPattern       = regexp.MustCompile(`^(https?://)?(www\.)?loom\.com/.+`)
	cloudfrontPattern = regexp.MustCompile(`^(https?://)?([a-z0-9-]+\.)?cloudfront\.net/.+`)
	s3Pattern         = regexp.MustCompile(`^(https?://)?([a-z0-9-]+\.)?s3\.amazonaws\.com/.+`)
)

// Classify returns the source kind for a raw URL, or KindInvalid when no
// supported host matches.
func Classify(rawURL string) Kind {
	switch {
	case youtubePattern.MatchString(rawURL):
		return KindYouTube
	case loomPattern.MatchString(rawURL):
		return KindLoom
	case cloudfrontPattern.MatchString(rawURL):
		return KindCloudFront
	case s3Pattern.MatchString(rawURL):
		return KindS3
	default:
		return KindInvalid
	}
}
