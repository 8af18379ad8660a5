package main

import (
	"testing"

	"github.com/zhouzirui/language-partner/backend/internal/annotate"
)

func TestRenderMarksKeywords(t *testing.T) {
	segments := annotate.Annotate("コーヒーをください", []string{"コーヒー"}, map[string]string{"コーヒー": "coffee"})
	if got := render(segments); got != "コーヒー[coffee]をください" {
		t.Fatalf("unexpected render %q", got)
	}
}

func TestFormatOf(t *testing.T) {
	if got := formatOf("clip.MP3"); got != "mp3" {
		t.Fatalf("formatOf = %q", got)
	}
	if got := formatOf("noext"); got != "wav" {
		t.Fatalf("formatOf = %q", got)
	}
}
