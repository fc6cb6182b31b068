package store

import "testing"

func TestTitleSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		min  float64
		max  float64
	}{
		{"buy milk", "buy milk", 1.0, 1.0},
		{"buy milk", "Buy milk and eggs", 0.5, 0.99},
		{"buy milk", "walk the dog", 0, 0},
		{"", "buy milk", 0, 0},
		{"buy milk", "", 0, 0},
		{"call mom", "Call Mom!", 1.0, 1.0},
	}
	for _, tt := range tests {
		got := TitleSimilarity(tt.a, tt.b)
		if got < tt.min || got > tt.max {
			t.Errorf("TitleSimilarity(%q, %q) = %v, want in [%v, %v]", tt.a, tt.b, got, tt.min, tt.max)
		}
	}
}

func TestTitleSimilaritySymmetric(t *testing.T) {
	a, b := "review quarterly report", "quarterly report review meeting"
	if TitleSimilarity(a, b) != TitleSimilarity(b, a) {
		t.Fatal("similarity must be symmetric")
	}
}

func TestTokenizeDropsShortTokens(t *testing.T) {
	tokens := tokenize("a buy the-milk x")
	for _, tok := range tokens {
		if len(tok) < minTokenLen {
			t.Fatalf("token %q shorter than min length", tok)
		}
	}
}
