package prompt

import "strings"

// Lang is a supported prompt language.
type Lang string

const (
	English Lang = "en"
	French  Lang = "fr"
)

const frenchAccents = "àâäéèêëîïôöùûüçœ"

// Matched as substrings of the lowercased text, so the surrounding spaces
// matter.
var frenchSignals = []string{
	" le ", " la ", " les ", " un ", " une ", " des ", " et ", " ou ", " mais ", " donc ", " or ", " ni ", " car ",
	" je ", " tu ", " il ", " elle ", " nous ", " vous ", " ils ", " elles ",
	" que ", " qui ", " dont ", " où ", " pour ", " avec ", " sans ", " sur ", " sous ", " parmi ", " chez ",
	" l'amour", " beauté", " rêve", " couleur", " lumière", " nuit", " âme", " coeur",
}

// DetectLanguage returns French when the text has French accented letters
// or common French words, English otherwise.
func DetectLanguage(text string) Lang {
	text = strings.ToLower(text)
	if strings.ContainsAny(text, frenchAccents) {
		return French
	}
	for _, w := range frenchSignals {
		if strings.Contains(text, w) {
			return French
		}
	}
	return English
}

// LanguageStyle is the aesthetics clause for lang. Both variants forbid lettering.
func LanguageStyle(lang Lang) string {
	if lang == French {
		return "French literary cover aesthetics, European design sensibility, subtle symbolism; strictly no text or lettering in any language."
	}
	return "Contemporary English-language cover aesthetics; strictly no text or lettering in any language."
}
