package textutil

import (
	"math"
	"testing"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "   ", ""},
		{"case fold", "PORTAL 2", "portal 2"},
		{"trademark", "Half-Life™ 2", "half life 2"},
		{"registered", "Adobe® Photoshop®", "adobe photoshop"},
		{"diacritics", "Pokémon Café", "pokemon cafe"},
		{"punctuation collapse", "  Tom Clancy's   The Division: 2 ", "tom clancys the division 2"},
		{"fullwidth", "ＦＦＸＶ", "ffxv"},
		{"only symbols", "™ ®", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeName(tt.in); got != tt.want {
				t.Errorf("NormalizeName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestEqualNames(t *testing.T) {
	if !EqualNames("Portal 2", "portal   2") {
		t.Error("expected names to match")
	}
	if EqualNames("", "") {
		t.Error("empty names must not match")
	}
	if EqualNames("Portal", "Portal 2") {
		t.Error("different products must not match")
	}
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"Portal 2", "PORTAL 2", 1},
		{"", "Portal", 0},
		{"abcd", "abcx", 0.75},
		{"abc", "xyz", 0},
	}
	for _, tt := range tests {
		got := Similarity(tt.a, tt.b)
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Similarity(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestSimilaritySymmetric(t *testing.T) {
	a, b := "The Witcher 3: Wild Hunt", "Witcher 3 Wild Hunt"
	if Similarity(a, b) != Similarity(b, a) {
		t.Fatal("similarity should be symmetric")
	}
	if s := Similarity(a, b); s <= 0.5 || s >= 1 {
		t.Fatalf("unexpected similarity %v", s)
	}
}

func TestBestMatch(t *testing.T) {
	idx, score := BestMatch("Hades", []string{"Hades II", "Hades", "Hadesville"})
	if idx != 1 || score != 1 {
		t.Fatalf("BestMatch = %d, %v", idx, score)
	}
	if idx, _ := BestMatch("x", nil); idx != -1 {
		t.Fatalf("expected -1 for empty candidates, got %d", idx)
	}
}
