package prompt

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestCover_KnownGenreAndColor(t *testing.T) {
	got := Cover("mystery", "a drowned lighthouse", "cool")
	want := "A mystery book cover concept, suspenseful thriller, dark atmospheric lighting, noir elements" +
		", cool color palette, blues and teals, calming mood" +
		", incorporating themes of a drowned lighthouse" +
		", cinematic composition, professional book cover design, clean space for typography, no text, no watermark, no frame, aspect ratio 2:3"
	if got != want {
		t.Errorf("Cover =\n%q\nwant\n%q", got, want)
	}
}

func TestCover_UnknownGenreAndColor(t *testing.T) {
	got := Cover("cookbook", "", "neon")
	want := "A cookbook book cover concept, professional design" + coverSuffix
	if got != want {
		t.Errorf("Cover = %q, want %q", got, want)
	}
}

func TestCover_EveryGenreHasStyle(t *testing.T) {
	for _, g := range Genres {
		if strings.Contains(Cover(g, "", ""), "professional design,") {
			t.Errorf("genre %q fell back to the generic style", g)
		}
	}
	for _, c := range Colors {
		if _, ok := colorModifiers[c]; !ok {
			t.Errorf("color %q has no modifier", c)
		}
	}
}

func TestQuick(t *testing.T) {
	vibe := strings.Repeat("x", 400)
	got := Quick("Soleil", vibe, "warm", French)

	if !strings.HasPrefix(got, `A poetry book cover concept for "Soleil", artistic elegant design, creative symbolism`) {
		t.Errorf("unexpected prefix: %q", got[:80])
	}
	if !strings.Contains(got, ", warm color palette, golden tones, inviting atmosphere") {
		t.Error("missing color modifier")
	}
	if !strings.Contains(got, "inspired by the following text: "+strings.Repeat("x", 299)+"…,") {
		t.Error("vibe not truncated to 300 runes")
	}
	if !strings.Contains(got, "French literary cover aesthetics") {
		t.Error("missing French style")
	}
	if !strings.Contains(got, "flat 2D artwork, no book mockups") {
		t.Error("missing flat artwork clause")
	}
	if !strings.HasSuffix(got, coverSuffix) {
		t.Error("missing standard suffix")
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exactly", 7, "exactly"},
		{"abcdefgh", 5, "abcd…"},
		{"éèêëà", 3, "éè…"},
	}
	for _, tt := range tests {
		if got := Truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestInfer(t *testing.T) {
	got := Infer("\n  Les Feuilles Mortes  \r\nOh! je voudrais tant\r\nBy Jacques Prévert\n")
	if got.Title != "Les Feuilles Mortes" {
		t.Errorf("Title = %q", got.Title)
	}
	if got.Author != "Jacques Prévert" {
		t.Errorf("Author = %q", got.Author)
	}
	if !strings.Contains(got.Vibe, "je voudrais tant") {
		t.Errorf("Vibe = %q", got.Vibe)
	}
}

func TestInfer_Defaults(t *testing.T) {
	got := Infer("   \n  ")
	if got.Title != "Untitled" || got.Author != "Unknown" {
		t.Errorf("got %+v", got)
	}

	got = Infer("only one line of poetry here")
	if got.Author != "Unknown" {
		t.Errorf("Author = %q, want Unknown", got.Author)
	}
}

func TestInfer_LongTitleAndVibe(t *testing.T) {
	title := strings.Repeat("t", 90)
	text := title + "\n" + strings.Repeat("v", 900)
	got := Infer(text)
	if utf8.RuneCountInString(got.Title) != 78 || !strings.HasSuffix(got.Title, "…") {
		t.Errorf("Title = %q", got.Title)
	}
	if utf8.RuneCountInString(got.Vibe) != 801 || !strings.HasSuffix(got.Vibe, "…") {
		t.Errorf("Vibe has %d runes", utf8.RuneCountInString(got.Vibe))
	}
}

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		text string
		want Lang
	}{
		{"The rain falls softly on the town", English},
		{"Sous le pont Mirabeau coule la Seine", French},
		{"regarde le ciel bleu", French},
		{"Le ciel bleu", English}, // signals need a leading space
		{"un jour je partirai", French},
		{"Café", French},
		{"", English},
	}
	for _, tt := range tests {
		if got := DetectLanguage(tt.text); got != tt.want {
			t.Errorf("DetectLanguage(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestLanguageStyle(t *testing.T) {
	for _, l := range []Lang{English, French} {
		if !strings.Contains(LanguageStyle(l), "strictly no text or lettering in any language.") {
			t.Errorf("style for %s does not forbid lettering", l)
		}
	}
}

func TestMockup(t *testing.T) {
	if MockupStyle("DESK") != "on a wooden desk with soft daylight, subtle shadows, minimal props" {
		t.Error("desk style should be case-insensitive")
	}
	if MockupStyle("") != "on a neutral surface with soft light" {
		t.Error("default style mismatch")
	}
	got := Mockup("studio")
	if !strings.HasPrefix(got, "Photorealistic product mockup of a single book with the provided cover image printed on the front, studio backdrop") {
		t.Errorf("Mockup = %q", got)
	}
	if !strings.HasSuffix(got, "Use the provided image EXACTLY as the cover artwork, unchanged.") {
		t.Errorf("Mockup = %q", got)
	}
}
