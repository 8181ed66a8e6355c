package prompt

import "strings"

// MockupNegative lists what the mockup model must not draw.
const MockupNegative = "text, letters, words, typography, captions, watermarks, UI, hands covering book, fingers obscuring cover, blur, distortion, extra logos, extra images"

// MockupStyle describes the scene for a named mockup style.
func MockupStyle(style string) string {
	switch strings.ToLower(style) {
	case "desk":
		return "on a wooden desk with soft daylight, subtle shadows, minimal props"
	case "studio":
		return "studio backdrop, soft key light, crisp shadows, product photography"
	case "cozy":
		return "on a cozy table with a mug and warm light, shallow depth of field"
	case "minimal":
		return "minimal background, neutral tones, clean composition, product packshot"
	default:
		return "on a neutral surface with soft light"
	}
}

// Mockup builds the photoreal mockup prompt for style.
func Mockup(style string) string {
	return "Photorealistic product mockup of a single book with the provided cover image printed on the front, " +
		MockupStyle(style) +
		". Maintain realistic lighting and materials. Do not add text or logos. Do not crop the cover. Use the provided image EXACTLY as the cover artwork, unchanged."
}
