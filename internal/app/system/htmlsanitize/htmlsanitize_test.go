package htmlsanitize_test

import (
	"strings"
	"testing"

	"github.com/dalemusser/coachhub/internal/app/system/htmlsanitize"
)

func TestText_Empty(t *testing.T) {
	if got := htmlsanitize.Text(""); got != "" {
		t.Errorf("expected empty string, got %q", got)
	}
}

func TestText_PlainText(t *testing.T) {
	if got := htmlsanitize.Text("  no longer working together "); got != "no longer working together" {
		t.Errorf("expected trimmed plain text, got %q", got)
	}
}

func TestText_RemovesScript(t *testing.T) {
	got := htmlsanitize.Text("<p>Hello</p><script>alert('xss')</script>")
	if strings.Contains(got, "script") || strings.Contains(got, "alert") {
		t.Errorf("expected script removed, got %q", got)
	}
	if !strings.Contains(got, "Hello") {
		t.Errorf("expected text content preserved, got %q", got)
	}
}

func TestText_RemovesTags(t *testing.T) {
	got := htmlsanitize.Text(`<a href="javascript:alert(1)">click</a> <b>bold</b>`)
	if strings.ContainsAny(got, "<>") {
		t.Errorf("expected all tags removed, got %q", got)
	}
}

func TestLimit(t *testing.T) {
	got := htmlsanitize.Limit("<b>abcdef</b>", 3)
	if got != "abc" {
		t.Errorf("Limit: got %q, want %q", got, "abc")
	}
	if got := htmlsanitize.Limit("short", 0); got != "short" {
		t.Errorf("Limit with n=0: got %q", got)
	}
}
