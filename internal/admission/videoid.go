package admission

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// DeriveVideoID extracts the canonical video identifier from a source URL.
// The parse is pure and deterministic; anything that does not yield a valid
// identifier is a validation error.
func DeriveVideoID(rawURL string) (string, error) {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return "", fmt.Errorf("%w: video url is required", ErrValidation)
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: malformed video url", ErrValidation)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("%w: video url must be http or https", ErrValidation)
	}

	host := strings.ToLower(strings.TrimPrefix(parsed.Hostname(), "www."))
	var candidate string
	switch host {
	case "youtube.com", "m.youtube.com", "music.youtube.com":
		candidate = idFromPath(parsed)
	case "youtu.be":
		candidate = strings.Trim(parsed.Path, "/")
	default:
		return "", fmt.Errorf("%w: unsupported video host %q", ErrValidation, parsed.Hostname())
	}

	if !videoIDPattern.MatchString(candidate) {
		return "", fmt.Errorf("%w: could not derive video id from url", ErrValidation)
	}
	return candidate, nil
}

func idFromPath(parsed *url.URL) string {
	path := strings.Trim(parsed.Path, "/")
	switch {
	case path == "watch":
		return parsed.Query().Get("v")
	case strings.HasPrefix(path, "shorts/"):
		return strings.TrimPrefix(path, "shorts/")
	case strings.HasPrefix(path, "embed/"):
		return strings.TrimPrefix(path, "embed/")
	case strings.HasPrefix(path, "live/"):
		return strings.TrimPrefix(path, "live/")
	default:
		return ""
	}
}
