package ai

import (
	"strings"
	"testing"
)

func TestParseClassification(t *testing.T) {
	got, err := parseClassification("```json\n{\"category\": \"Electronics\", \"fragile\": true}\n```")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.Category != "Electronics" || !got.Fragile {
		t.Fatalf("unexpected result: %+v", got)
	}
	if _, err := parseClassification("not json"); err == nil {
		t.Fatal("expected error for non-JSON reply")
	}
}

func TestNormalizeCategory(t *testing.T) {
	cases := map[string]string{
		"electronics":   "electronics",
		" Food ":        "food",
		"Vehicle Parts": "vehicle_parts",
		"spaceship":     "other",
		"":              "other",
	}
	for in, want := range cases {
		if got := normalizeCategory(in); got != want {
			t.Fatalf("normalizeCategory(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSystemPromptListsCategories(t *testing.T) {
	p := buildSystemPrompt()
	for _, c := range Categories {
		if !strings.Contains(p, c) {
			t.Fatalf("prompt misses category %q", c)
		}
	}
}
