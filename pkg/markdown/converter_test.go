package markdown

import (
	"strings"
	"testing"
)

func TestToHTML(t *testing.T) {
	got := ToHTML("*adjusts lab coat* Welcome to the **Future Gadget Lab**.")

	if !strings.Contains(got, "<em>adjusts lab coat</em>") || !strings.Contains(got, "<strong>Future Gadget Lab</strong>") {
		t.Fatalf("unexpected html %q", got)
	}
	if !strings.HasPrefix(got, "<p>") {
		t.Fatalf("expected a paragraph, got %q", got)
	}
}

func TestToHTMLDropsRawHTML(t *testing.T) {
	got := ToHTML(`Hello <script>alert(1)</script> there`)
	if strings.Contains(got, "<script>") {
		t.Fatalf("raw html must be skipped, got %q", got)
	}
}

func TestToHTMLEmpty(t *testing.T) {
	if got := ToHTML("  \n "); got != "" {
		t.Fatalf("expected empty output, got %q", got)
	}
}

func TestToHTMLWithNames(t *testing.T) {
	got := ToHTMLWithNames("{{char}} glares at {{ user }}.", Names{Char: "Kurisu", User: "Okabe"})
	if got != "<p>Kurisu glares at Okabe.</p>" {
		t.Fatalf("unexpected html %q", got)
	}

	got = ToHTMLWithNames("{{char}} waves.", Names{})
	if !strings.Contains(got, "{{char}}") {
		t.Fatalf("expected placeholder to stay, got %q", got)
	}
}
