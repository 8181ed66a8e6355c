package media

import (
	"mime"
	"regexp"
	"strings"
)

var (
	slashRuns = regexp.MustCompile(`/+|\\+`)
	extSuffix = regexp.MustCompile(`\.[a-zA-Z0-9]+$`)
)

// SanitizeFilename strips path separators from name and appends ".png"
// when it has no extension. An empty name becomes fallback.
func SanitizeFilename(name, fallback string) string {
	if name == "" {
		name = fallback
	}
	name = slashRuns.ReplaceAllString(name, "")
	if !extSuffix.MatchString(name) {
		name += ".png"
	}
	return name
}

// Extension maps an image content type to a file extension without the dot.
func Extension(contentType string) string {
	ct, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		ct = strings.ToLower(strings.TrimSpace(contentType))
	}
	switch ct {
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	default:
		return "png"
	}
}
