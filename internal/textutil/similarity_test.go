package textutil

import (
	"math"
	"testing"
)

func TestCosineSimilarityNil(t *testing.T) {
	tests := []struct {
		name string
		a    *Fingerprint
		b    *Fingerprint
	}{
		{"both nil", nil, nil},
		{"a nil", nil, NewFingerprint("shingeki no kyojin")},
		{"b nil", NewFingerprint("shingeki no kyojin"), nil},
		{"zero norm", &Fingerprint{tokens: map[string]float64{}}, NewFingerprint("one piece")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CosineSimilarity(tt.a, tt.b); got != 0 {
				t.Errorf("CosineSimilarity() = %v, want 0", got)
			}
		})
	}
}

func TestCosineSimilarityIdenticalAndDisjoint(t *testing.T) {
	if got := TokenCosine("Boku no Hero Academia", "boku no hero academia"); math.Abs(got-1) > 1e-9 {
		t.Errorf("TokenCosine(identical) = %v, want 1", got)
	}
	if got := TokenCosine("One Piece", "Naruto Shippuden"); got != 0 {
		t.Errorf("TokenCosine(disjoint) = %v, want 0", got)
	}
}

func TestCosineSimilarityReorderedTokens(t *testing.T) {
	got := TokenCosine("Kaguya-sama Love is War", "Love is War Kaguya-sama")
	if math.Abs(got-1) > 1e-9 {
		t.Errorf("TokenCosine(reordered) = %v, want 1", got)
	}
}

func TestCosineSimilaritySymmetric(t *testing.T) {
	a := NewFingerprint("spy x family season 2")
	b := NewFingerprint("spy family")
	if ab, ba := CosineSimilarity(a, b), CosineSimilarity(b, a); ab != ba {
		t.Errorf("CosineSimilarity not symmetric: (%v, %v)", ab, ba)
	}
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"simple words", "Hello World", []string{"hello", "world"}},
		{"filters single characters", "Spy x Family", []string{"spy", "family"}},
		{"punctuation", "Kaguya-sama: Love is War", []string{"kaguya", "sama", "love", "is", "war"}},
		{"digits kept", "Mob Psycho 100", []string{"mob", "psycho", "100"}},
		{"non latin", "進撃の巨人 final", []string{"進撃の巨人", "final"}},
		{"empty", "", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Tokenize(tt.input)
			if len(got) != len(tt.want) {
				t.Fatalf("Tokenize() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("token[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestNormalizedLevenshtein(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "gintama", "gintama", 1},
		{"both empty", "", "", 1},
		{"one empty", "gintama", "", 0},
		{"one edit of ten", "abcdefghij", "abcdefghiX", 0.9},
		{"disjoint", "abc", "xyz", 0},
		{"runes not bytes", "進撃の巨人", "進撃の巨大", 0.8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizedLevenshtein(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("NormalizedLevenshtein(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
			if back := NormalizedLevenshtein(tt.b, tt.a); back != got {
				t.Errorf("not symmetric: %v vs %v", got, back)
			}
		})
	}
}
