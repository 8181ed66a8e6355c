// Package prompt builds the text prompts sent to image generation APIs.
package prompt

import "strings"

// SystemDirective is the designer brief recorded on every generation.
const SystemDirective = "You are an award-winning book cover designer. Create a striking, genre-specific cover concept that visually communicates the story's tone, using color, composition, and symbolism. Leave space for title and author. No text. No watermark. No frame."

const coverSuffix = ", cinematic composition, professional book cover design, clean space for typography, no text, no watermark, no frame, aspect ratio 2:3"

var genreStyles = map[string]string{
	"fiction":     "literary fiction, clean modern design, thoughtful composition",
	"mystery":     "suspenseful thriller, dark atmospheric lighting, noir elements",
	"romance":     "romantic elegance, soft lighting, emotional warmth",
	"fantasy":     "magical elements, rich colors, enchanting atmosphere",
	"sci-fi":      "futuristic design, technological elements, cosmic themes",
	"non-fiction": "professional clean design, bold typography space, authoritative feel",
	"memoir":      "personal intimate design, emotional depth, authentic feel",
	"poetry":      "artistic elegant design, creative typography space, lyrical atmosphere",
}

var colorModifiers = map[string]string{
	"warm":       "warm color palette, golden tones, inviting atmosphere",
	"cool":       "cool color palette, blues and teals, calming mood",
	"dark":       "dark moody palette, deep shadows, dramatic contrast",
	"bright":     "bright vibrant colors, high energy, optimistic feel",
	"earthy":     "earth tones, natural colors, organic feel",
	"vibrant":    "saturated vibrant colors, bold and striking",
	"muted":      "muted subtle colors, sophisticated restraint",
	"monochrome": "monochromatic design, single color focus",
}

// Genres lists the genres with a dedicated style, in display order.
var Genres = []string{"fiction", "mystery", "romance", "fantasy", "sci-fi", "non-fiction", "memoir", "poetry"}

// Colors lists the recognised color moods, in display order.
var Colors = []string{"warm", "cool", "dark", "bright", "earthy", "vibrant", "muted", "monochrome"}

// Cover builds the prompt for a full cover generation. Unknown genres fall
// back to a generic style and unknown colors are ignored.
func Cover(genre, vibe, color string) string {
	style, ok := genreStyles[genre]
	if !ok {
		style = "professional design"
	}

	var sb strings.Builder
	sb.WriteString("A ")
	sb.WriteString(genre)
	sb.WriteString(" book cover concept, ")
	sb.WriteString(style)
	if mod, ok := colorModifiers[color]; ok {
		sb.WriteString(", ")
		sb.WriteString(mod)
	}
	if vibe != "" {
		sb.WriteString(", incorporating themes of ")
		sb.WriteString(vibe)
	}
	sb.WriteString(coverSuffix)
	return sb.String()
}
