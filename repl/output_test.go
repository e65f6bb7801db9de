package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/BurntSushi/toml"

	ghostline "github.com/Paranoid-AF/ghostline"
	"github.com/Paranoid-AF/ghostline/generate"
)

func TestWriteEntryWithSuggestion(t *testing.T) {
	pos := generate.Position{Line: 2, Character: 17}
	sug := &generate.Suggestion{Text: `) { return "a" + b; }`, Position: pos}
	notices := []ghostline.Notice{{Level: "warning", Message: "slow"}}
	e := newEntry(3, "coder:7b", "javascript", "function add(a, b", pos, sug, generate.StatusReady, notices, 120*time.Millisecond)

	var buf bytes.Buffer
	if err := writeEntry(&buf, e); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(buf.String(), "# ═") {
		t.Errorf("expected a rule before the entry:\n%s", buf.String())
	}

	var got entry
	if _, err := toml.Decode(buf.String(), &got); err != nil {
		t.Fatalf("entry is not valid TOML: %v\n%s", err, buf.String())
	}
	if got.Request.ID != 3 || got.Request.Status != "ready" || got.Request.DurationMS != 120 {
		t.Errorf("unexpected request %+v", got.Request)
	}
	if got.Request.Current != "function add(a, b" || got.Request.Character != 17 {
		t.Errorf("unexpected request position %+v", got.Request)
	}
	if got.Suggestion == nil || got.Suggestion.Text != sug.Text || got.Suggestion.Line != 2 {
		t.Errorf("unexpected suggestion %+v", got.Suggestion)
	}
	if len(got.Notices) != 1 || got.Notices[0].Message != "slow" {
		t.Errorf("unexpected notices %+v", got.Notices)
	}
}

func TestWriteEntryWithoutSuggestion(t *testing.T) {
	e := newEntry(1, "coder:7b", "go", "x", generate.Position{}, nil, generate.StatusModelNotFound, nil, 0)

	var buf bytes.Buffer
	if err := writeEntry(&buf, e); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(buf.String(), "[suggestion]") {
		t.Errorf("expected no suggestion table:\n%s", buf.String())
	}
	if !strings.Contains(buf.String(), `status = "model_not_found"`) {
		t.Errorf("expected status in output:\n%s", buf.String())
	}
}

func TestCRLFWriter(t *testing.T) {
	var buf bytes.Buffer
	w := &crlfWriter{w: &buf}
	n, err := w.Write([]byte("a\nb\n"))
	if err != nil {
		t.Fatal(err)
	}
	if n != 4 {
		t.Errorf("expected original length 4, got %d", n)
	}
	if buf.String() != "a\r\nb\r\n" {
		t.Errorf("got %q", buf.String())
	}
}
