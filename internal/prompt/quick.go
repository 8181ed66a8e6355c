package prompt

import (
	"strings"
	"unicode/utf8"
)

const (
	quickPoetryStyle = "artistic elegant design, creative symbolism, lyrical atmosphere, minimalistic composition"
	flatArtwork      = ", flat 2D artwork, no book mockups, no 3D render, no drop shadows, no perspective book objects, no staged product shots"

	ellipsis = "…"
)

// Quick builds the poetry prompt used when generating straight from pasted text.
func Quick(title, vibe, color string, lang Lang) string {
	var sb strings.Builder
	sb.WriteString(`A poetry book cover concept for "`)
	sb.WriteString(title)
	sb.WriteString(`", `)
	sb.WriteString(quickPoetryStyle)
	if mod, ok := colorModifiers[color]; ok {
		sb.WriteString(", ")
		sb.WriteString(mod)
	}
	if vibe != "" {
		sb.WriteString(", inspired by the following text: ")
		sb.WriteString(Truncate(vibe, 300))
	}
	sb.WriteString(", ")
	sb.WriteString(LanguageStyle(lang))
	sb.WriteString(flatArtwork)
	sb.WriteString(coverSuffix)
	return sb.String()
}

// Truncate shortens s to n runes, the last being an ellipsis.
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + ellipsis
}

// Inferred holds the book details guessed from a block of text.
type Inferred struct {
	Title  string
	Author string
	Vibe   string
}

// Infer guesses a title, author and mood from pasted text: the first
// non-empty line is the title, a final "by ..." line names the author, and
// the text itself is the vibe.
func Infer(text string) Inferred {
	var lines []string
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}

	out := Inferred{Title: "Untitled", Author: "Unknown", Vibe: text}
	if len(lines) > 0 {
		out.Title = lines[0]
		if r := []rune(out.Title); len(r) > 80 {
			out.Title = string(r[:77]) + ellipsis
		}
		last := lines[len(lines)-1]
		if strings.HasPrefix(strings.ToLower(last), "by ") {
			out.Author = strings.TrimSpace(last[3:])
		}
	}
	if r := []rune(text); len(r) > 800 {
		out.Vibe = string(r[:800]) + ellipsis
	}
	return out
}
