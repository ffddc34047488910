package draftfile

import (
	"testing"

	"github.com/starford/echoes/internal/models"
)

func TestParse_FrontmatterAndBody(t *testing.T) {
	input := []byte("---\ntitle: My New Tale\nsubtitle: Short\nthumbnail: https://example.com/a.png\n---\nPara one\n\nPara two\n")
	d, err := Parse(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := models.Draft{
		Title:        "My New Tale",
		Subtitle:     "Short",
		ThumbnailURL: "https://example.com/a.png",
		Body:         "Para one\n\nPara two",
	}
	if d != want {
		t.Errorf("draft = %+v, want %+v", d, want)
	}
}

func TestParse_NoFrontmatterUsesHeading(t *testing.T) {
	d, err := Parse([]byte("# Just a heading\nSome text.\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Title != "Just a heading" {
		t.Errorf("title = %q, want %q", d.Title, "Just a heading")
	}
	if d.Body != "Some text." {
		t.Errorf("body = %q", d.Body)
	}
}

func TestParse_CRLF(t *testing.T) {
	d, err := Parse([]byte("---\r\ntitle: T\r\n---\r\na\r\n\r\nb\r\n"))
	if err != nil {
		t.Fatal(err)
	}
	if d.Title != "T" || d.Body != "a\n\nb" {
		t.Errorf("draft = %+v", d)
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	if _, err := Parse([]byte("---\n: invalid: yaml: {{{\n---\nBody\n")); err == nil {
		t.Error("expected error for invalid frontmatter")
	}
}

func TestParse_UnclosedFrontmatterIsBody(t *testing.T) {
	d, err := Parse([]byte("---\ntitle: x\nno end"))
	if err != nil {
		t.Fatal(err)
	}
	if d.Title != "" || d.Body != "---\ntitle: x\nno end" {
		t.Errorf("draft = %+v", d)
	}
}
