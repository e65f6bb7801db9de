package generate

import (
	"strings"
	"testing"
)

func TestBuildPrompt(t *testing.T) {
	prompt := BuildPrompt("go", "package main\n\nfunc main() {", "\tfmt.Pri", "}")

	for _, want := range []string{
		"[INST]",
		"go",
		"Code before the current line:\npackage main\n\nfunc main() {",
		"Current line:\n\tfmt.Pri",
		"Code after the current line:\n}",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
	if !strings.HasSuffix(prompt, "[/INST]") {
		t.Errorf("prompt should end with [/INST]:\n%s", prompt)
	}
	if i, j := strings.Index(prompt, "Code before"), strings.Index(prompt, "Current line"); i > j {
		t.Error("preceding block should come before the current line")
	}
}

func TestBuildPromptEmptyBlocks(t *testing.T) {
	prompt := BuildPrompt("python", "", "import os", "")
	if !strings.Contains(prompt, "Current line:\nimport os") {
		t.Errorf("unexpected prompt:\n%s", prompt)
	}
}

func TestBuildPromptFromWindow(t *testing.T) {
	w := ContextWindow{Preceding: []string{"a", "b"}, Current: "c", Following: []string{"d", "e"}}
	got := buildPromptFromWindow("text", w)
	want := BuildPrompt("text", "a\nb", "c", "d\ne")
	if got != want {
		t.Errorf("window prompt differs:\n%s\n---\n%s", got, want)
	}
}
