package inventory

import "testing"

func TestCategoryKind(t *testing.T) {
	tests := []struct {
		category Category
		want     Kind
	}{
		{"", KindSoftware},
		{"game", KindGame},
		{"Game/VR", KindGame},
		{"software", KindSoftware},
		{"software/utility", KindSoftware},
		{"office-component", KindNone},
		{"runtime", KindNone},
		{"gamepad-driver", KindNone},
	}
	for _, tt := range tests {
		if got := tt.category.Kind(); got != tt.want {
			t.Errorf("Category(%q).Kind() = %q, want %q", tt.category, got, tt.want)
		}
	}
}

func TestCandidateAttributes(t *testing.T) {
	c := Candidate{Name: "Portal 2"}
	c.SetAttr("library", "D:/Steam")
	c.SetAttr("empty", "  ")
	c.AbsorbAttributes(map[string]string{"library": "C:/other", AttrPublisher: "Valve"})

	if c.Attributes["library"] != "D:/Steam" {
		t.Fatalf("existing attribute overwritten: %v", c.Attributes)
	}
	if c.Attributes[AttrPublisher] != "Valve" {
		t.Fatalf("missing absorbed attribute: %v", c.Attributes)
	}
	if _, ok := c.Attributes["empty"]; ok {
		t.Fatal("empty values should not be recorded")
	}

	clone := c.Clone()
	clone.Attributes["library"] = "changed"
	if c.Attributes["library"] != "D:/Steam" {
		t.Fatal("clone shares attribute map")
	}
}

func TestCandidateKey(t *testing.T) {
	a := Candidate{Name: "PORTAL™ 2"}
	b := Candidate{Name: "portal 2"}
	if a.Key() != b.Key() {
		t.Fatalf("keys differ: %q vs %q", a.Key(), b.Key())
	}
}
