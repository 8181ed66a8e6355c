package ocr

import "testing"

func TestHasVisibleText(t *testing.T) {
	tests := map[string]bool{
		"":           false,
		" \n\t  \r ": false,
		"  A ":       true,
		" é":    true,
	}
	for in, want := range tests {
		if got := hasVisibleText(in); got != want {
			t.Errorf("hasVisibleText(%q) = %v, want %v", in, got, want)
		}
	}
}
