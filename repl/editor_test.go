package main

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

func readLine(t *testing.T, input string, complete CompleteFunc) (string, string, error) {
	t.Helper()
	var out bytes.Buffer
	e := newEditorWith(strings.NewReader(input), &out)
	line, err := e.ReadLine(prompt, complete)
	return line, out.String(), err
}

func TestReadLineEditing(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "abc\r", "abc"},
		{"newline", "abc\n", "abc"},
		{"backspace", "abx\x7fc\r", "abc"},
		{"backspace multibyte", "hé\x7f\r", "h"},
		{"insert mid-line", "ac\x1b[Db\r", "abc"},
		{"home", "bc\x01a\r", "abc"},
		{"end", "ab\x01\x05c\r", "abc"},
		{"clear line", "junk\x15abc\r", "abc"},
		{"delete key", "abxc\x1b[D\x1b[D\x1b[3~\r", "abc"},
		{"ctrl-d mid-line ignored", "ab\x04c\r", "abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _, err := readLine(t, tt.input, nil)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestReadLineInterrupt(t *testing.T) {
	if _, _, err := readLine(t, "ab\x03", nil); !errors.Is(err, ErrInterrupt) {
		t.Errorf("expected ErrInterrupt, got %v", err)
	}
	if _, _, err := readLine(t, "\x04", nil); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestReadLineTabShowsThenAcceptsGhost(t *testing.T) {
	var calls []int
	complete := func(text string, cursor int) string {
		calls = append(calls, cursor)
		if text != "hello" {
			t.Errorf("complete got text %q", text)
		}
		return " world"
	}

	got, out, err := readLine(t, "hello\t\t\r", complete)
	if err != nil {
		t.Fatal(err)
	}
	if got != "hello world" {
		t.Errorf("got %q", got)
	}
	if len(calls) != 1 || calls[0] != 5 {
		t.Errorf("expected one completion at cursor 5, got %v", calls)
	}
	if !strings.Contains(out, "\x1b[2m world\x1b[0m") {
		t.Errorf("expected dim ghost text in output %q", out)
	}
}

func TestReadLineGhostDismissedByTyping(t *testing.T) {
	got, _, err := readLine(t, "hi\tX\r", func(string, int) string { return "ghost" })
	if err != nil {
		t.Fatal(err)
	}
	if got != "hiX" {
		t.Errorf("got %q", got)
	}
}

func TestReadLineRightAcceptsGhostAtEnd(t *testing.T) {
	got, _, err := readLine(t, "hi\t\x1b[C\r", func(string, int) string { return " there" })
	if err != nil {
		t.Fatal(err)
	}
	if got != "hi there" {
		t.Errorf("got %q", got)
	}
}

func TestReadLineCursorCountsRunes(t *testing.T) {
	var cursor int
	_, _, err := readLine(t, "héllo\x1b[D\t\r", func(_ string, c int) string {
		cursor = c
		return ""
	})
	if err != nil {
		t.Fatal(err)
	}
	if cursor != 4 {
		t.Errorf("expected rune cursor 4, got %d", cursor)
	}
}

func TestPrevRune(t *testing.T) {
	buf := []byte("aé")
	r, size := prevRune(buf, len(buf))
	if r != 'é' || size != 2 {
		t.Errorf("got %q/%d", r, size)
	}
	if _, size := prevRune(buf, 0); size != 0 {
		t.Errorf("expected size 0 at start, got %d", size)
	}
}
